package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"thirdcoast.systems/relay/internal/store"
)

// progress records pct for the running job. Values below the last recorded
// one are ignored and writes are limited to one per ProgressInterval, except
// for the final 100.
func (m *Manager) progress(ctx context.Context, e *entry, pct int) {
	pct = min(max(pct, 0), 100)
	if pct <= e.progress {
		return
	}
	if pct < 100 && !e.limiter.Allow() {
		return
	}
	e.progress = pct
	if err := m.deps.Store.SetJobProgress(ctx, e.id, pct); err != nil {
		if ctx.Err() == nil {
			slog.Warn("Failed to record progress", "job_id", e.id, "error", err)
		}
		return
	}
	m.notify(e.id)
}

// Subscribe delivers a snapshot of the job after every recorded change until
// cancel is called. Slow subscribers miss intermediate snapshots; the channel
// is closed when the manager stops.
func (m *Manager) Subscribe(id uuid.UUID) (<-chan store.Job, func()) {
	ch := make(chan store.Job, 8)
	m.subMu.Lock()
	if m.subsDone {
		close(ch)
		m.subMu.Unlock()
		return ch, func() {}
	}
	if m.subs[id] == nil {
		m.subs[id] = map[chan store.Job]struct{}{}
	}
	m.subs[id][ch] = struct{}{}
	m.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subMu.Lock()
			defer m.subMu.Unlock()
			if _, ok := m.subs[id][ch]; !ok {
				return
			}
			delete(m.subs[id], ch)
			if len(m.subs[id]) == 0 {
				delete(m.subs, id)
			}
		})
	}
}

// notify fans the stored state of id out to its subscribers. Calls are
// serialized so subscribers see snapshots in store order.
func (m *Manager) notify(id uuid.UUID) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.subMu.Lock()
	n := len(m.subs[id])
	m.subMu.Unlock()
	if n == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	job, err := m.deps.Store.GetJob(ctx, id)
	if err != nil {
		slog.Warn("Failed to load job for subscribers", "job_id", id, "error", err)
		return
	}

	m.subMu.Lock()
	defer m.subMu.Unlock()
	for ch := range m.subs[id] {
		select {
		case ch <- *job:
			continue
		default:
		}
		if !job.State.Terminal() {
			continue
		}
		// full: drop the oldest so the terminal snapshot lands
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- *job:
		default:
		}
	}
}

// Get returns the stored job.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*store.Job, error) {
	return m.deps.Store.GetJob(ctx, id)
}

// List returns an owner's jobs, newest first.
func (m *Manager) List(ctx context.Context, ownerID string, limit int) ([]*store.Job, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return m.deps.Store.ListJobs(ctx, ownerID, limit)
}
