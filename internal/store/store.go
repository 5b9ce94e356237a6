// Package store holds the persisted domain model (jobs, artifacts, chunks and
// transcoded variants) and the interfaces the Postgres and SQLite backends implement.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"thirdcoast.systems/relay/internal/faults"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a guarded update finds the row in a state that
	// does not allow it (terminal jobs, unexpected source state).
	ErrConflict = errors.New("store: state conflict")
)

type JobState string

const (
	JobPending     JobState = "PENDING"
	JobRunning     JobState = "RUNNING"
	JobDownloading JobState = "DOWNLOADING"
	JobSplitting   JobState = "SPLITTING"
	JobStoring     JobState = "STORING"
	JobPaused      JobState = "PAUSED"
	JobDone        JobState = "DONE"
	JobFailed      JobState = "FAILED"
	JobCancelled   JobState = "CANCELLED"
)

// Terminal reports whether the job can no longer change.
func (s JobState) Terminal() bool {
	return s == JobDone || s == JobFailed || s == JobCancelled
}

// Active reports whether a worker currently owns the job.
func (s JobState) Active() bool {
	switch s {
	case JobRunning, JobDownloading, JobSplitting, JobStoring:
		return true
	}
	return false
}

// ActiveStates lists every state in which a worker owns the job.
var ActiveStates = []JobState{JobRunning, JobDownloading, JobSplitting, JobStoring}

// OpenStates lists every non-terminal state.
var OpenStates = []JobState{JobPending, JobRunning, JobDownloading, JobSplitting, JobStoring, JobPaused}

type Job struct {
	ID             uuid.UUID   `json:"id"`
	OwnerID        string      `json:"owner_id"`
	SourceURL      string      `json:"source_url"`
	SourceIdentity string      `json:"source_identity"`
	Profile        string      `json:"profile"`
	State          JobState    `json:"state"`
	Progress       int         `json:"progress"`
	Attempts       int         `json:"attempts"`
	Title          string      `json:"title,omitempty"`
	ResultRef      *uuid.UUID  `json:"result_ref,omitempty"`
	ErrorCode      faults.Code `json:"error_code,omitempty"`
	ErrorMessage   string      `json:"error_message,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	StartedAt      *time.Time  `json:"started_at,omitempty"`
	FinishedAt     *time.Time  `json:"finished_at,omitempty"`
}

// Chunk is one independently playable piece of an artifact.
type Chunk struct {
	Index      int     `json:"index"`
	StorageRef string  `json:"storage_ref"`
	Size       int64   `json:"size"`
	Start      float64 `json:"start_seconds"`
	Duration   float64 `json:"duration_seconds"`
}

type Artifact struct {
	ID             uuid.UUID `json:"id"`
	SourceIdentity string    `json:"source_identity"`
	ChunkCount     int       `json:"chunk_count"`
	TotalSize      int64     `json:"total_size"`
	Duration       float64   `json:"duration_seconds"`
	Title          string    `json:"title"`
	Container      string    `json:"container"`
	CreatedAt      time.Time `json:"created_at"`
	Chunks         []Chunk   `json:"chunks,omitempty"`
}

// Variant is a transcoded derivative of an artifact for one profile.
type Variant struct {
	ID          uuid.UUID `json:"id"`
	ArtifactID  uuid.UUID `json:"artifact_id"`
	Profile     string    `json:"profile"`
	StoragePath string    `json:"storage_path"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (v *Variant) Expired(now time.Time) bool {
	return !now.Before(v.ExpiresAt)
}

type ShareLink struct {
	Code       string    `json:"code"`
	ArtifactID uuid.UUID `json:"artifact_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Tier selects an owner's daily acquisition limit.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// ErrInvalidTier is returned for a tier name other than free or premium.
var ErrInvalidTier = errors.New("tier must be free or premium")

func ParseTier(s string) (Tier, error) {
	switch t := Tier(strings.ToLower(strings.TrimSpace(s))); t {
	case TierFree, TierPremium:
		return t, nil
	}
	return "", ErrInvalidTier
}

// OwnerUsage counts an owner's jobs by state and the artifacts their
// finished jobs point at.
type OwnerUsage struct {
	Jobs      map[JobState]int `json:"jobs"`
	Artifacts int              `json:"artifacts"`
	TotalSize int64            `json:"total_size"`
}

// ArtifactStore is the single source of truth for already-acquired sources.
type ArtifactStore interface {
	FindBySource(ctx context.Context, identity string) (*Artifact, error)
	GetArtifact(ctx context.Context, id uuid.UUID) (*Artifact, error)
	// PutArtifact writes the artifact and its chunks atomically. A concurrent
	// put for the same source identity fails with faults.DuplicateIdentity.
	PutArtifact(ctx context.Context, a *Artifact) (*Artifact, error)
	Resolve(ctx context.Context, id uuid.UUID) ([]Chunk, error)
	// ChunkInUse reports whether any stored artifact references storageRef.
	ChunkInUse(ctx context.Context, storageRef string) (bool, error)
}

type JobStore interface {
	CreateJob(ctx context.Context, j *Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*Job, error)
	ListJobs(ctx context.Context, ownerID string, limit int) ([]*Job, error)
	ListJobsByState(ctx context.Context, state JobState, limit int) ([]*Job, error)
	FindOpenJob(ctx context.Context, ownerID, identity string) (*Job, error)
	// TransitionJob moves a job to state `to` if its current state is one of
	// `from` (any non-terminal state when from is empty). ErrConflict otherwise.
	TransitionJob(ctx context.Context, id uuid.UUID, to JobState, from ...JobState) error
	// SetJobProgress never lowers the stored value.
	SetJobProgress(ctx context.Context, id uuid.UUID, progress int) error
	SetJobDetails(ctx context.Context, id uuid.UUID, title string, attempts int) error
	// CompleteJob sets DONE and result_ref in one write.
	CompleteJob(ctx context.Context, id uuid.UUID, artifactID uuid.UUID) error
	FailJob(ctx context.Context, id uuid.UUID, code faults.Code, msg string) error
	// RecoverJobs resets jobs left active by a previous process to PENDING.
	RecoverJobs(ctx context.Context) (int64, error)
}

type VariantStore interface {
	GetVariant(ctx context.Context, artifactID uuid.UUID, profile string) (*Variant, error)
	// PutVariant inserts or replaces the variant for (artifact, profile).
	PutVariant(ctx context.Context, v *Variant) (*Variant, error)
	ExpiredVariants(ctx context.Context, now time.Time, limit int) ([]*Variant, error)
	// DeleteExpiredVariant removes the variant row only while it is still
	// expired at now and returns its storage path. A row renewed since it was
	// listed is kept and ErrNotFound returned.
	DeleteExpiredVariant(ctx context.Context, id uuid.UUID, now time.Time) (string, error)
}

type QuotaStore interface {
	// ConsumeQuota atomically counts one acquisition for owner on day and
	// returns the new total. It fails with faults.QuotaExceeded once limit is reached.
	ConsumeQuota(ctx context.Context, ownerID string, day time.Time, limit int) (int, error)
	QuotaUsed(ctx context.Context, ownerID string, day time.Time) (int, error)
}

type OwnerStore interface {
	// GetOwnerTier returns ErrNotFound for an owner never given a tier.
	GetOwnerTier(ctx context.Context, ownerID string) (Tier, error)
	SetOwnerTier(ctx context.Context, ownerID string, tier Tier) error
	OwnerUsage(ctx context.Context, ownerID string) (*OwnerUsage, error)
}

type ShareStore interface {
	CreateShareLink(ctx context.Context, code string, artifactID uuid.UUID) (*ShareLink, error)
	GetShareLink(ctx context.Context, code string) (*ShareLink, error)
}

// Store is the full persistence surface used by the services.
type Store interface {
	ArtifactStore
	JobStore
	VariantStore
	QuotaStore
	OwnerStore
	ShareStore
	Close()
}

// QuotaDay truncates t to the UTC day used for quota accounting.
func QuotaDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
