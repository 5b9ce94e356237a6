package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sethvargo/go-retry"
	"thirdcoast.systems/relay/internal/blobstore"
	"thirdcoast.systems/relay/internal/extract"
	"thirdcoast.systems/relay/internal/faults"
	"thirdcoast.systems/relay/internal/metrics"
	"thirdcoast.systems/relay/internal/sourceid"
	"thirdcoast.systems/relay/internal/splitter"
	"thirdcoast.systems/relay/internal/store"
	"thirdcoast.systems/relay/pkg/utils/filename"
	"thirdcoast.systems/relay/pkg/utils/format"
)

// Share of job progress given to the download; splitting and storing fill
// the rest.
const (
	downloadShare   = 90
	splitProgress   = 92
	storingProgress = 99
)

// requeueError sends a job back to PENDING until need bytes of scratch space
// can be reserved.
type requeueError struct{ need int64 }

func (e *requeueError) Error() string {
	return fmt.Sprintf("needs %s of scratch space", humanize.Bytes(uint64(e.need)))
}

type fetched struct {
	probe *extract.Probe
	path  string
}

// execute runs the pipeline for one claimed job. It returns nil once the job
// is DONE.
func (m *Manager) execute(ctx context.Context, e *entry, job *store.Job) error {
	st := m.deps.Store

	identity, err := sourceid.Normalize(job.SourceURL)
	if err != nil {
		return err
	}

	// another job may have stored the source while this one was queued
	if a, err := st.FindBySource(ctx, identity.Normalized); err == nil {
		slog.Info("Source already stored, skipping download", "job_id", job.ID, "artifact_id", a.ID)
		return st.CompleteJob(context.WithoutCancel(ctx), job.ID, a.ID)
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	dir := m.scratchDir(job.ID)
	attempts := job.Attempts
	backoff := retry.WithMaxRetries(uint64(m.opts.MaxAttempts-1),
		retry.WithCappedDuration(m.opts.RetryCap, retry.NewExponential(m.opts.RetryBase)))

	var got fetched
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		var err error
		got, err = m.acquire(ctx, e, job, dir, attempts)
		if err == nil || ctx.Err() != nil || !faults.Retryable(err) {
			return err
		}
		metrics.JobAttempts.Inc()
		slog.Warn("Transient failure, retrying", "job_id", job.ID, "attempt", attempts, "error", err)
		return retry.RetryableError(err)
	})
	if err != nil {
		return err
	}

	if err := st.TransitionJob(ctx, job.ID, store.JobSplitting, store.JobDownloading); err != nil {
		return err
	}
	started := time.Now()
	chunks, err := m.deps.Splitter.Split(ctx, got.path, m.maxChunk())
	metrics.PipelineSeconds.WithLabelValues("split").Observe(time.Since(started).Seconds())
	if err != nil {
		return err
	}
	m.progress(ctx, e, splitProgress)

	if err := st.TransitionJob(ctx, job.ID, store.JobStoring, store.JobSplitting); err != nil {
		return err
	}
	started = time.Now()
	art, err := m.persist(ctx, e, job, identity, got, chunks)
	metrics.PipelineSeconds.WithLabelValues("store").Observe(time.Since(started).Seconds())
	if err != nil {
		return err
	}

	// past this point the artifact exists; a late cancel must not strand the job
	return st.CompleteJob(context.WithoutCancel(ctx), job.ID, art.ID)
}

// acquire is one attempt at probing and downloading.
func (m *Manager) acquire(ctx context.Context, e *entry, job *store.Job, dir string, attempt int) (fetched, error) {
	st := m.deps.Store

	started := time.Now()
	probe, err := m.deps.Prober.Probe(ctx, job.SourceURL)
	metrics.PipelineSeconds.WithLabelValues("extract").Observe(time.Since(started).Seconds())
	if err != nil {
		return fetched{}, err
	}
	// a requeue for disk space is not an attempt
	sel := extract.Select(probe.Renditions, job.Profile)
	if err := m.fit(e, sel.EstimatedSize); err != nil {
		return fetched{}, err
	}
	if err := st.SetJobDetails(ctx, job.ID, probe.Title, attempt); err != nil {
		return fetched{}, err
	}

	if err := st.TransitionJob(ctx, job.ID, store.JobDownloading, store.JobRunning, store.JobDownloading); err != nil {
		return fetched{}, err
	}
	m.notify(job.ID)

	slog.Info("Downloading", "job_id", job.ID, "url", job.SourceURL, "format", sel.Format,
		"length", format.Duration(probe.Duration),
		"estimate", humanize.Bytes(uint64(max(sel.EstimatedSize, 0))), "attempt", attempt)

	dctx, cancel := context.WithTimeout(ctx, m.opts.DownloadTimeout)
	defer cancel()
	started = time.Now()
	path, err := m.deps.Fetcher.Fetch(dctx, job.SourceURL, dir, sel, func(pct float64) {
		m.progress(ctx, e, int(pct*downloadShare/100))
	})
	metrics.PipelineSeconds.WithLabelValues("download").Observe(time.Since(started).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return fetched{}, ctx.Err()
		}
		if dctx.Err() != nil {
			return fetched{}, faults.Wrap(faults.NetworkError, fmt.Sprintf("download did not finish within %s", m.opts.DownloadTimeout), err)
		}
		return fetched{}, err
	}
	m.progress(ctx, e, downloadShare)
	return fetched{probe: probe, path: path}, nil
}

// fit grows the job's disk reservation to the download estimate: twice the
// size when the file will be split, since the chunks sit next to it.
func (m *Manager) fit(e *entry, size int64) error {
	need := size
	if need <= 0 {
		need = m.opts.MaxChunkSize
	} else if need > m.maxChunk() {
		need *= 2
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if need <= e.reserved {
		return nil
	}
	if !m.disk.resize(e.reserved, need) {
		return &requeueError{need: need}
	}
	e.reserved = need
	return nil
}

func (m *Manager) maxChunk() int64 {
	limit := m.opts.MaxChunkSize
	if n := m.deps.Channel.MaxObjectSize(); n > 0 && n < limit {
		limit = n
	}
	return limit
}

// persist uploads the chunks and writes the artifact. A concurrent writer of
// the same source wins; this job then adopts its artifact.
func (m *Manager) persist(ctx context.Context, e *entry, job *store.Job, identity sourceid.Identity, got fetched, chunks []splitter.Chunk) (*store.Artifact, error) {
	ch := m.deps.Channel
	ext := strings.ToLower(filepath.Ext(got.path))

	art := &store.Artifact{
		ID:             identity.ArtifactID(),
		SourceIdentity: identity.Normalized,
		Title:          got.probe.Title,
		Duration:       got.probe.Duration,
		Container:      strings.TrimPrefix(ext, "."),
	}

	var handles []blobstore.Handle
	for i, c := range chunks {
		title := got.probe.Title
		if len(chunks) > 1 {
			title = fmt.Sprintf("%s part %02d", title, i+1)
		}
		name := filename.WithExt(title, fmt.Sprintf("%s_%02d", job.ID, i+1), ext, 120)

		h, err := ch.Upload(ctx, name, c.Path)
		if err != nil {
			m.discard(handles)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if faults.CodeOf(err) == faults.Internal {
				err = faults.Wrap(faults.StorageWriteFailed, "upload chunk", err)
			}
			return nil, err
		}
		handles = append(handles, h)

		duration := c.Duration
		if len(chunks) == 1 && duration <= 0 {
			duration = got.probe.Duration
		}
		art.Chunks = append(art.Chunks, store.Chunk{
			Index:      i,
			StorageRef: string(h),
			Size:       c.Size,
			Start:      c.Start,
			Duration:   duration,
		})
		art.TotalSize += c.Size
		m.progress(ctx, e, splitProgress+(storingProgress-splitProgress)*(i+1)/len(chunks))
	}

	stored, err := m.deps.Store.PutArtifact(context.WithoutCancel(ctx), art)
	if err == nil {
		slog.Info("Stored artifact", "job_id", job.ID, "artifact_id", stored.ID,
			"chunks", len(stored.Chunks), "size", humanize.Bytes(uint64(stored.TotalSize)))
		return stored, nil
	}
	if faults.CodeOf(err) != faults.DuplicateIdentity {
		m.discard(handles)
		return nil, faults.Wrap(faults.StorageWriteFailed, "record artifact", err)
	}

	winner, ferr := m.deps.Store.FindBySource(context.WithoutCancel(ctx), identity.Normalized)
	if ferr != nil {
		m.discard(handles)
		return nil, faults.Wrap(faults.StorageWriteFailed, "load concurrent artifact", ferr)
	}
	slog.Info("Lost store race, adopting existing artifact", "job_id", job.ID, "artifact_id", winner.ID)
	m.discard(handles)
	return winner, nil
}

// discard deletes uploaded handles no stored artifact references.
// Content-addressed channels hand out the same handle for identical bytes, so
// a handle from this attempt may already belong to another artifact.
func (m *Manager) discard(handles []blobstore.Handle) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, h := range handles {
		inUse, err := m.deps.Store.ChunkInUse(ctx, string(h))
		if err != nil {
			slog.Warn("Failed to check blob references, keeping it", "ref", h, "error", err)
			continue
		}
		if inUse {
			continue
		}
		if err := m.deps.Channel.Delete(ctx, h); err != nil {
			slog.Warn("Failed to delete orphaned blob", "ref", h, "error", err)
		}
	}
}
