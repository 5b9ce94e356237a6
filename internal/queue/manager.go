// Package queue admits acquisition requests and drives them through
// extract, download, split and store with a bounded worker pool.
package queue

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"thirdcoast.systems/relay/internal/blobstore"
	"thirdcoast.systems/relay/internal/extract"
	"thirdcoast.systems/relay/internal/faults"
	"thirdcoast.systems/relay/internal/metrics"
	"thirdcoast.systems/relay/internal/splitter"
	"thirdcoast.systems/relay/internal/store"
)

// Prober lists the renditions of a URL.
type Prober interface {
	Probe(ctx context.Context, url string) (*extract.Probe, error)
}

// Fetcher downloads the selected renditions of url into destDir and returns
// the produced file. progress receives percentages in [0, 100].
type Fetcher interface {
	Fetch(ctx context.Context, url, destDir string, sel extract.Selection, progress func(percent float64)) (string, error)
}

// Splitter partitions a file into chunks of at most max bytes.
type Splitter interface {
	Split(ctx context.Context, path string, max int64) ([]splitter.Chunk, error)
}

type Deps struct {
	Store    store.Store
	Prober   Prober
	Fetcher  Fetcher
	Splitter Splitter
	Channel  blobstore.Channel
}

type Options struct {
	Workers     int
	MaxAttempts int
	// DailyQuota is the free tier's acquisition limit per UTC day and
	// PremiumQuota the premium tier's; 0 means unlimited.
	DailyQuota   int
	PremiumQuota int
	MaxChunkSize int64
	DiskCeiling  int64
	ScratchDir   string

	DownloadTimeout  time.Duration
	PollInterval     time.Duration
	ProgressInterval time.Duration
	RetryBase        time.Duration
	RetryCap         time.Duration
}

func (o *Options) setDefaults() {
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.MaxChunkSize <= 0 {
		o.MaxChunkSize = 2_000_000_000
	}
	if o.DiskCeiling <= 0 {
		o.DiskCeiling = 10 * o.MaxChunkSize
	}
	if o.ScratchDir == "" {
		o.ScratchDir = filepath.Join(os.TempDir(), "relay-scratch")
	}
	if o.DownloadTimeout <= 0 {
		o.DownloadTimeout = 2 * time.Hour
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.ProgressInterval <= 0 {
		o.ProgressInterval = time.Second
	}
	if o.RetryBase <= 0 {
		o.RetryBase = time.Second
	}
	if o.RetryCap <= 0 {
		o.RetryCap = 30 * time.Second
	}
}

// entry is the registry record of a job the manager holds resources for:
// running jobs, paused jobs keeping their scratch reservation, and requeued
// jobs remembering their disk estimate.
type entry struct {
	id       uuid.UUID
	owner    string
	estimate int64
	reserved int64

	// set while a worker runs the job
	cancel   context.CancelCauseFunc
	stopped  chan struct{}
	lock     *sync.Mutex
	progress int
	limiter  *rate.Limiter
}

// Manager is the job registry and worker pool.
type Manager struct {
	deps Deps
	opts Options
	now  func() time.Time

	mu     sync.Mutex
	jobs   map[uuid.UUID]*entry
	owners map[string]*sync.Mutex
	disk   *diskTracker

	admit sync.Mutex

	subMu    sync.Mutex
	subs     map[uuid.UUID]map[chan store.Job]struct{}
	subsDone bool
	notifyMu sync.Mutex

	wake chan struct{}
	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

func New(deps Deps, opts Options) *Manager {
	opts.setDefaults()
	return &Manager{
		deps:   deps,
		opts:   opts,
		now:    time.Now,
		jobs:   map[uuid.UUID]*entry{},
		owners: map[string]*sync.Mutex{},
		disk:   newDiskTracker(opts.DiskCeiling),
		subs:   map[uuid.UUID]map[chan store.Job]struct{}{},
		wake:   make(chan struct{}, 1),
	}
}

// Start recovers jobs orphaned by a previous process and launches the
// workers. Workers run until Stop is called or ctx ends.
func (m *Manager) Start(ctx context.Context) error {
	if err := os.MkdirAll(m.opts.ScratchDir, 0o755); err != nil {
		return err
	}

	slog.Info("Recovering jobs left active by a previous instance")
	n, err := m.deps.Store.RecoverJobs(ctx)
	if err != nil {
		slog.Error("Failed to recover stuck jobs", "error", err)
	} else if n > 0 {
		slog.Info("Recovered stuck jobs", "count", n)
	}

	m.ctx, m.stop = context.WithCancel(ctx)
	for i := 0; i < m.opts.Workers; i++ {
		m.wg.Add(1)
		go m.worker(m.ctx)
	}
	slog.Info("Download workers started", "workers", m.opts.Workers,
		"disk_ceiling", humanize.Bytes(uint64(m.opts.DiskCeiling)),
		"max_chunk", humanize.Bytes(uint64(m.opts.MaxChunkSize)))
	return nil
}

// Stop cancels running jobs and waits for the workers. Interrupted jobs keep
// their active state and are recovered by the next Start.
func (m *Manager) Stop() {
	if m.stop == nil {
		return
	}
	m.stop()
	m.wg.Wait()
	m.subMu.Lock()
	for id, set := range m.subs {
		for ch := range set {
			close(ch)
		}
		delete(m.subs, id)
	}
	m.subsDone = true
	m.subMu.Unlock()
	slog.Info("Download workers stopped")
}

// DiskReserved reports the scratch bytes reserved by in-flight jobs.
func (m *Manager) DiskReserved() int64 { return m.disk.Used() }

func (m *Manager) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) worker(ctx context.Context) {
	defer m.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}

		// drain as many jobs as can be claimed
		for {
			e, jctx, job, ok := m.claim(ctx)
			if !ok {
				break
			}
			m.run(jctx, e, job)
		}

		select {
		case <-ctx.Done():
			return
		case <-m.wake:
		case <-time.After(m.opts.PollInterval):
		}
	}
}

const claimScan = 200

// claim picks the oldest PENDING job whose owner is idle and whose disk
// estimate fits, and moves it to RUNNING.
func (m *Manager) claim(ctx context.Context) (*entry, context.Context, *store.Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending, err := m.deps.Store.ListJobsByState(ctx, store.JobPending, claimScan)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("Failed to list pending jobs", "error", err)
		}
		return nil, nil, nil, false
	}

	// an owner whose oldest job waits for disk does not get a younger one run first
	blocked := map[string]bool{}
	for _, job := range pending {
		if blocked[job.OwnerID] {
			continue
		}
		lock := m.ownerLock(job.OwnerID)
		if !lock.TryLock() {
			continue
		}

		e := m.jobs[job.ID]
		if e == nil {
			e = &entry{id: job.ID, owner: job.OwnerID}
		}
		reservedNow := false
		if e.reserved == 0 {
			need := e.estimate
			if need <= 0 {
				need = m.opts.MaxChunkSize
			}
			if !m.disk.reserve(need) {
				lock.Unlock()
				blocked[job.OwnerID] = true
				continue
			}
			e.reserved = need
			reservedNow = true
		}

		if err := m.deps.Store.TransitionJob(ctx, job.ID, store.JobRunning, store.JobPending); err != nil {
			if reservedNow {
				m.disk.release(e.reserved)
				e.reserved = 0
			}
			lock.Unlock()
			continue
		}

		jctx, cancel := context.WithCancelCause(ctx)
		e.cancel = cancel
		e.stopped = make(chan struct{})
		e.lock = lock
		e.progress = job.Progress
		e.limiter = rate.NewLimiter(rate.Every(m.opts.ProgressInterval), 1)
		m.jobs[job.ID] = e

		job.State = store.JobRunning
		return e, jctx, job, true
	}
	return nil, nil, nil, false
}

func (m *Manager) ownerLock(owner string) *sync.Mutex {
	l, ok := m.owners[owner]
	if !ok {
		l = &sync.Mutex{}
		m.owners[owner] = l
	}
	return l
}

func (m *Manager) run(ctx context.Context, e *entry, job *store.Job) {
	defer close(e.stopped)
	metrics.ActiveJobs.Inc()
	defer metrics.ActiveJobs.Dec()

	slog.Info("Running job", "job_id", job.ID, "owner_id", job.OwnerID, "url", job.SourceURL, "profile", job.Profile)
	m.notify(job.ID)

	started := time.Now()
	err := m.execute(ctx, e, job)
	m.settle(ctx, e, job, err)
	metrics.PipelineSeconds.WithLabelValues("total").Observe(time.Since(started).Seconds())
}

// settle records the outcome of a run and releases what the job held.
func (m *Manager) settle(jctx context.Context, e *entry, job *store.Job, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	st := m.deps.Store
	cause := context.Cause(jctx)
	var requeue *requeueError

	switch {
	case err == nil:
		slog.Info("Job done", "job_id", job.ID)
		metrics.JobsFinished.WithLabelValues(string(store.JobDone), "").Inc()
		m.drop(e)

	case jctx.Err() != nil && errors.Is(cause, ErrCancelled):
		if terr := st.TransitionJob(ctx, job.ID, store.JobCancelled, store.ActiveStates...); terr != nil {
			slog.Error("Failed to mark job cancelled", "job_id", job.ID, "error", terr)
		}
		slog.Info("Job cancelled", "job_id", job.ID)
		metrics.JobsFinished.WithLabelValues(string(store.JobCancelled), "").Inc()
		m.drop(e)

	case jctx.Err() != nil && errors.Is(cause, ErrPaused):
		if terr := st.TransitionJob(ctx, job.ID, store.JobPaused, store.ActiveStates...); terr != nil {
			slog.Error("Failed to mark job paused", "job_id", job.ID, "error", terr)
		}
		slog.Info("Job paused", "job_id", job.ID, "reserved", humanize.Bytes(uint64(e.reserved)))
		// scratch files and the reservation stay for the resume
		m.park(e, false)

	case jctx.Err() != nil:
		// shutting down: the state stays active for RecoverJobs
		slog.Warn("Job interrupted by shutdown", "job_id", job.ID)
		m.park(e, true)
		m.forget(e.id)

	case errors.As(err, &requeue):
		if terr := st.TransitionJob(ctx, job.ID, store.JobPending, store.ActiveStates...); terr != nil {
			slog.Error("Failed to requeue job", "job_id", job.ID, "error", terr)
		}
		slog.Info("Job waits for scratch space", "job_id", job.ID, "estimate", humanize.Bytes(uint64(requeue.need)))
		e.estimate = requeue.need
		m.park(e, true)

	default:
		code := faults.CodeOf(err)
		msg := faults.Message(err)
		slog.Error("Job failed", "job_id", job.ID, "code", code, "error", err)
		if ferr := st.FailJob(ctx, job.ID, code, msg); ferr != nil {
			slog.Error("Failed to record job failure", "job_id", job.ID, "error", ferr)
		}
		metrics.JobsFinished.WithLabelValues(string(store.JobFailed), string(code)).Inc()
		m.drop(e)
	}

	m.notify(job.ID)
	m.signal()
}

// park ends a run without finishing the job: the owner is released and, when
// release is set, so is the disk reservation.
func (m *Manager) park(e *entry, release bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.cancel(nil)
	e.cancel = nil
	if e.lock != nil {
		e.lock.Unlock()
		e.lock = nil
	}
	if release {
		m.disk.release(e.reserved)
		e.reserved = 0
	}
}

func (m *Manager) forget(id uuid.UUID) {
	m.mu.Lock()
	delete(m.jobs, id)
	m.mu.Unlock()
}

// drop forgets a finished job and frees everything it held.
func (m *Manager) drop(e *entry) {
	m.mu.Lock()
	m.dropLocked(e)
	m.mu.Unlock()
	m.removeScratch(e.id)
}

func (m *Manager) dropLocked(e *entry) {
	if e.cancel != nil {
		e.cancel(nil)
		e.cancel = nil
	}
	if e.lock != nil {
		e.lock.Unlock()
		e.lock = nil
	}
	m.disk.release(e.reserved)
	e.reserved = 0
	delete(m.jobs, e.id)
}

func (m *Manager) scratchDir(id uuid.UUID) string {
	return filepath.Join(m.opts.ScratchDir, id.String())
}

func (m *Manager) removeScratch(id uuid.UUID) {
	if err := os.RemoveAll(m.scratchDir(id)); err != nil {
		slog.Warn("Failed to remove scratch dir", "job_id", id, "error", err)
	}
}
