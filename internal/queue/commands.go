package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"thirdcoast.systems/relay/internal/store"
)

var (
	// ErrPaused is the cancellation cause of a job paused by its owner.
	ErrPaused = errors.New("job paused")
	// ErrCancelled is the cancellation cause of a job cancelled by its owner.
	ErrCancelled = errors.New("job cancelled")
	// ErrUnknownAction is returned by ParseAction.
	ErrUnknownAction = errors.New("unknown job action")
)

// Command is an owner signal for one job.
type Command interface {
	Job() uuid.UUID
}

type Pause struct{ JobID uuid.UUID }
type Resume struct{ JobID uuid.UUID }
type Cancel struct{ JobID uuid.UUID }

func (c Pause) Job() uuid.UUID  { return c.JobID }
func (c Resume) Job() uuid.UUID { return c.JobID }
func (c Cancel) Job() uuid.UUID { return c.JobID }

// ParseAction maps the action segment of /jobs/{id}/{action} to a command.
func ParseAction(action string, id uuid.UUID) (Command, error) {
	switch action {
	case "pause":
		return Pause{JobID: id}, nil
	case "resume":
		return Resume{JobID: id}, nil
	case "cancel":
		return Cancel{JobID: id}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
}

// Dispatch applies cmd and returns the job afterwards. A job whose state does
// not allow the command yields store.ErrConflict; an unknown job
// store.ErrNotFound. Pause and cancel of a running job wait for its worker to
// reach the next checkpoint.
func (m *Manager) Dispatch(ctx context.Context, cmd Command) (*store.Job, error) {
	job, err := m.deps.Store.GetJob(ctx, cmd.Job())
	if err != nil {
		return nil, err
	}

	var want store.JobState
	switch c := cmd.(type) {
	case Pause:
		want = store.JobPaused
		err = m.interrupt(ctx, c.JobID, ErrPaused)
	case Resume:
		// a worker may claim the job straight away
		want = ""
		err = m.deps.Store.TransitionJob(ctx, c.JobID, store.JobPending, store.JobPaused)
		if err == nil {
			m.notify(c.JobID)
			m.signal()
		}
	case Cancel:
		want = store.JobCancelled
		err = m.cancel(ctx, c.JobID)
	default:
		return nil, fmt.Errorf("queue: unhandled command %T", cmd)
	}
	if err != nil {
		return job, err
	}

	job, err = m.deps.Store.GetJob(ctx, cmd.Job())
	if err != nil {
		return nil, err
	}
	if want != "" && job.State != want {
		// the worker finished before it saw the signal
		return job, store.ErrConflict
	}
	slog.Info("Job command applied", "job_id", job.ID, "command", fmt.Sprintf("%T", cmd), "state", job.State)
	return job, nil
}

// interrupt signals the worker running id and waits for it to settle.
func (m *Manager) interrupt(ctx context.Context, id uuid.UUID, cause error) error {
	m.mu.Lock()
	e, ok := m.jobs[id]
	if !ok || e.cancel == nil {
		m.mu.Unlock()
		return store.ErrConflict
	}
	e.cancel(cause)
	stopped := e.stopped
	m.mu.Unlock()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) cancel(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	e, ok := m.jobs[id]
	if ok && e.cancel != nil {
		m.mu.Unlock()
		return m.interrupt(ctx, id, ErrCancelled)
	}
	// not running: claim holds mu around its PENDING -> RUNNING move, so this
	// cannot race a worker picking the job up
	err := m.deps.Store.TransitionJob(ctx, id, store.JobCancelled, store.JobPending, store.JobPaused)
	if err == nil && ok {
		m.dropLocked(e)
	}
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.removeScratch(id)
	m.notify(id)
	return nil
}
