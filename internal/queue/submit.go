package queue

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"thirdcoast.systems/relay/internal/extract"
	"thirdcoast.systems/relay/internal/faults"
	"thirdcoast.systems/relay/internal/metrics"
	"thirdcoast.systems/relay/internal/sourceid"
	"thirdcoast.systems/relay/internal/store"
)

// Outcome is how a submission was admitted.
type Outcome string

const (
	// OutcomeQueued: a new PENDING job was created.
	OutcomeQueued Outcome = "queued"
	// OutcomeCacheHit: the source is already stored; the job is DONE.
	OutcomeCacheHit Outcome = "cache_hit"
	// OutcomeJoined: the owner already has an open job for the source.
	OutcomeJoined Outcome = "joined"
	// OutcomeRejected: the job was recorded as FAILED (quota).
	OutcomeRejected Outcome = "rejected"
)

type Submission struct {
	Job     *store.Job
	Outcome Outcome
}

// ErrOwnerRequired is returned when a submission carries no owner id.
var ErrOwnerRequired = errors.New("owner_id is required")

// Submit admits an acquisition request. A stored source short-circuits to a
// DONE job without consuming quota; a repeat from the same owner while a job
// for the source is open returns that job.
func (m *Manager) Submit(ctx context.Context, ownerID, rawURL, profile string) (*Submission, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, ErrOwnerRequired
	}
	identity, err := sourceid.Normalize(rawURL)
	if err != nil {
		return nil, err
	}
	profile, err = extract.NormalizeProfile(profile)
	if err != nil {
		return nil, err
	}
	st := m.deps.Store

	m.admit.Lock()
	defer m.admit.Unlock()

	job := &store.Job{
		ID:             uuid.New(),
		OwnerID:        ownerID,
		SourceURL:      strings.TrimSpace(rawURL),
		SourceIdentity: identity.Normalized,
		Profile:        profile,
		State:          store.JobPending,
	}

	a, err := st.FindBySource(ctx, identity.Normalized)
	switch {
	case err == nil:
		now := m.now()
		job.State = store.JobDone
		job.Progress = 100
		job.Title = a.Title
		job.ResultRef = &a.ID
		job.FinishedAt = &now
		if err := st.CreateJob(ctx, job); err != nil {
			return nil, err
		}
		slog.Info("Cache hit", "job_id", job.ID, "owner_id", ownerID, "artifact_id", a.ID)
		metrics.JobsSubmitted.WithLabelValues(string(OutcomeCacheHit)).Inc()
		return &Submission{Job: job, Outcome: OutcomeCacheHit}, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	open, err := st.FindOpenJob(ctx, ownerID, identity.Normalized)
	switch {
	case err == nil:
		metrics.JobsSubmitted.WithLabelValues(string(OutcomeJoined)).Inc()
		return &Submission{Job: open, Outcome: OutcomeJoined}, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	_, limit, err := m.tier(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if limit > 0 {
		if _, err := st.ConsumeQuota(ctx, ownerID, m.now(), limit); err != nil {
			if faults.CodeOf(err) != faults.QuotaExceeded {
				return nil, err
			}
			now := m.now()
			job.State = store.JobFailed
			job.ErrorCode = faults.QuotaExceeded
			job.ErrorMessage = faults.Message(err)
			job.FinishedAt = &now
			if err := st.CreateJob(ctx, job); err != nil {
				return nil, err
			}
			slog.Info("Submission over quota", "job_id", job.ID, "owner_id", ownerID)
			metrics.JobsSubmitted.WithLabelValues(string(OutcomeRejected)).Inc()
			metrics.JobsFinished.WithLabelValues(string(store.JobFailed), string(faults.QuotaExceeded)).Inc()
			return &Submission{Job: job, Outcome: OutcomeRejected}, nil
		}
	}

	if err := st.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	slog.Info("Job queued", "job_id", job.ID, "owner_id", ownerID, "source", identity.Normalized, "profile", profile)
	metrics.JobsSubmitted.WithLabelValues(string(OutcomeQueued)).Inc()
	m.signal()
	return &Submission{Job: job, Outcome: OutcomeQueued}, nil
}
