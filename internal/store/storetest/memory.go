// Package storetest provides an in-memory store.Store for tests.
package storetest

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"thirdcoast.systems/relay/internal/faults"
	"thirdcoast.systems/relay/internal/store"
)

type quotaKey struct {
	owner string
	day   time.Time
}

// Memory is a mutex-guarded map store with the same guarded-update semantics
// as the SQL backends.
type Memory struct {
	mu sync.Mutex

	now func() time.Time

	artifacts  map[uuid.UUID]*store.Artifact
	bySource   map[string]uuid.UUID
	jobs       map[uuid.UUID]*store.Job
	variants   map[uuid.UUID]*store.Variant
	quota      map[quotaKey]int
	tiers      map[string]store.Tier
	shareLinks map[string]*store.ShareLink

	// PutArtifactHook runs before PutArtifact takes the lock. Tests use it to
	// force races between workers.
	PutArtifactHook func(a *store.Artifact)
}

var _ store.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		now:        time.Now,
		artifacts:  map[uuid.UUID]*store.Artifact{},
		bySource:   map[string]uuid.UUID{},
		jobs:       map[uuid.UUID]*store.Job{},
		variants:   map[uuid.UUID]*store.Variant{},
		quota:      map[quotaKey]int{},
		tiers:      map[string]store.Tier{},
		shareLinks: map[string]*store.ShareLink{},
	}
}

func (m *Memory) Close() {}

func copyArtifact(a *store.Artifact) *store.Artifact {
	c := *a
	c.Chunks = slices.Clone(a.Chunks)
	return &c
}

func copyJob(j *store.Job) *store.Job {
	c := *j
	return &c
}

// --- artifacts ---

func (m *Memory) FindBySource(_ context.Context, identity string) (*store.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.bySource[identity]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyArtifact(m.artifacts[id]), nil
}

func (m *Memory) GetArtifact(_ context.Context, id uuid.UUID) (*store.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.artifacts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyArtifact(a), nil
}

func (m *Memory) PutArtifact(_ context.Context, a *store.Artifact) (*store.Artifact, error) {
	if m.PutArtifactHook != nil {
		m.PutArtifactHook(a)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bySource[a.SourceIdentity]; ok {
		return nil, faults.New(faults.DuplicateIdentity, a.SourceIdentity)
	}
	if _, ok := m.artifacts[a.ID]; ok {
		return nil, faults.New(faults.DuplicateIdentity, a.SourceIdentity)
	}
	c := copyArtifact(a)
	c.ChunkCount = len(c.Chunks)
	c.CreatedAt = m.now()
	m.artifacts[c.ID] = c
	m.bySource[c.SourceIdentity] = c.ID
	return copyArtifact(c), nil
}

func (m *Memory) Resolve(_ context.Context, id uuid.UUID) ([]store.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.artifacts[id]
	if !ok || len(a.Chunks) == 0 {
		return nil, store.ErrNotFound
	}
	return slices.Clone(a.Chunks), nil
}

func (m *Memory) ChunkInUse(_ context.Context, storageRef string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.artifacts {
		if slices.ContainsFunc(a.Chunks, func(c store.Chunk) bool { return c.StorageRef == storageRef }) {
			return true, nil
		}
	}
	return false, nil
}

// ArtifactCount reports how many artifacts have been stored.
func (m *Memory) ArtifactCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.artifacts)
}

// --- jobs ---

func (m *Memory) CreateJob(_ context.Context, j *store.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	if j.State == "" {
		j.State = store.JobPending
	}
	now := m.now()
	j.CreatedAt = now
	j.UpdatedAt = now
	if j.State.Terminal() && j.FinishedAt == nil {
		j.FinishedAt = &now
	}
	m.jobs[j.ID] = copyJob(j)
	return nil
}

func (m *Memory) GetJob(_ context.Context, id uuid.UUID) (*store.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyJob(j), nil
}

func (m *Memory) sorted(filter func(*store.Job) bool) []*store.Job {
	var out []*store.Job
	for _, j := range m.jobs {
		if filter(j) {
			out = append(out, copyJob(j))
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].ID.String() < out[b].ID.String()
		}
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	return out
}

func (m *Memory) ListJobs(_ context.Context, ownerID string, limit int) ([]*store.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.sorted(func(j *store.Job) bool { return j.OwnerID == ownerID })
	slices.Reverse(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) ListJobsByState(_ context.Context, state store.JobState, limit int) ([]*store.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.sorted(func(j *store.Job) bool { return j.State == state })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) FindOpenJob(_ context.Context, ownerID, identity string) (*store.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.sorted(func(j *store.Job) bool {
		return j.OwnerID == ownerID && j.SourceIdentity == identity && !j.State.Terminal()
	})
	if len(out) == 0 {
		return nil, store.ErrNotFound
	}
	return out[0], nil
}

func (m *Memory) open(id uuid.UUID) (*store.Job, error) {
	j, ok := m.jobs[id]
	if !ok || j.State.Terminal() {
		return nil, store.ErrConflict
	}
	return j, nil
}

func (m *Memory) TransitionJob(_ context.Context, id uuid.UUID, to store.JobState, from ...store.JobState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(from) == 0 {
		from = store.OpenStates
	}
	j, ok := m.jobs[id]
	if !ok || !slices.Contains(from, j.State) {
		return store.ErrConflict
	}
	now := m.now()
	j.State = to
	j.UpdatedAt = now
	if to == store.JobRunning && j.StartedAt == nil {
		j.StartedAt = &now
	}
	if to.Terminal() {
		j.FinishedAt = &now
	}
	return nil
}

func (m *Memory) SetJobProgress(_ context.Context, id uuid.UUID, progress int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, err := m.open(id)
	if err != nil {
		return err
	}
	j.Progress = max(j.Progress, progress)
	j.UpdatedAt = m.now()
	return nil
}

func (m *Memory) SetJobDetails(_ context.Context, id uuid.UUID, title string, attempts int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, err := m.open(id)
	if err != nil {
		return err
	}
	j.Title = title
	j.Attempts = attempts
	j.UpdatedAt = m.now()
	return nil
}

func (m *Memory) CompleteJob(_ context.Context, id uuid.UUID, artifactID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, err := m.open(id)
	if err != nil {
		return err
	}
	now := m.now()
	ref := artifactID
	j.State = store.JobDone
	j.ResultRef = &ref
	j.Progress = 100
	j.ErrorCode = ""
	j.ErrorMessage = ""
	j.UpdatedAt = now
	j.FinishedAt = &now
	return nil
}

func (m *Memory) FailJob(_ context.Context, id uuid.UUID, code faults.Code, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, err := m.open(id)
	if err != nil {
		return err
	}
	now := m.now()
	j.State = store.JobFailed
	j.ErrorCode = code
	j.ErrorMessage = msg
	j.UpdatedAt = now
	j.FinishedAt = &now
	return nil
}

func (m *Memory) RecoverJobs(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, j := range m.jobs {
		if j.State.Active() {
			j.State = store.JobPending
			j.UpdatedAt = m.now()
			n++
		}
	}
	return n, nil
}

// --- variants ---

func (m *Memory) GetVariant(_ context.Context, artifactID uuid.UUID, profile string) (*store.Variant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.variants {
		if v.ArtifactID == artifactID && v.Profile == profile {
			c := *v
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *Memory) PutVariant(_ context.Context, v *store.Variant) (*store.Variant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.artifacts[v.ArtifactID]; !ok {
		return nil, store.ErrNotFound
	}
	c := *v
	// a replacement keeps the row id, as the SQL upserts do
	for id, existing := range m.variants {
		if existing.ArtifactID == v.ArtifactID && existing.Profile == v.Profile {
			c.ID = id
		}
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = m.now()
	m.variants[c.ID] = &c
	out := c
	return &out, nil
}

func (m *Memory) ExpiredVariants(_ context.Context, now time.Time, limit int) ([]*store.Variant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.Variant
	for _, v := range m.variants {
		if v.Expired(now) {
			c := *v
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ExpiresAt.Before(out[b].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) DeleteExpiredVariant(_ context.Context, id uuid.UUID, now time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.variants[id]
	if !ok || !v.Expired(now) {
		return "", store.ErrNotFound
	}
	delete(m.variants, id)
	return v.StoragePath, nil
}

// --- owners ---

func (m *Memory) ConsumeQuota(_ context.Context, ownerID string, day time.Time, limit int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := quotaKey{owner: ownerID, day: store.QuotaDay(day)}
	if m.quota[k] >= limit {
		return m.quota[k], faults.Newf(faults.QuotaExceeded, "daily limit of %d acquisitions reached", limit)
	}
	m.quota[k]++
	return m.quota[k], nil
}

func (m *Memory) QuotaUsed(_ context.Context, ownerID string, day time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.quota[quotaKey{owner: ownerID, day: store.QuotaDay(day)}], nil
}

func (m *Memory) GetOwnerTier(_ context.Context, ownerID string) (store.Tier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tiers[ownerID]
	if !ok {
		return "", store.ErrNotFound
	}
	return t, nil
}

func (m *Memory) SetOwnerTier(_ context.Context, ownerID string, tier store.Tier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tiers[ownerID] = tier
	return nil
}

func (m *Memory) OwnerUsage(_ context.Context, ownerID string) (*store.OwnerUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := &store.OwnerUsage{Jobs: map[store.JobState]int{}}
	seen := map[uuid.UUID]bool{}
	for _, j := range m.jobs {
		if j.OwnerID != ownerID {
			continue
		}
		u.Jobs[j.State]++
		if j.State != store.JobDone || j.ResultRef == nil || seen[*j.ResultRef] {
			continue
		}
		seen[*j.ResultRef] = true
		if a, ok := m.artifacts[*j.ResultRef]; ok {
			u.Artifacts++
			u.TotalSize += a.TotalSize
		}
	}
	return u, nil
}

func (m *Memory) CreateShareLink(_ context.Context, code string, artifactID uuid.UUID) (*store.ShareLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.shareLinks[code]; ok {
		return nil, store.ErrConflict
	}
	if _, ok := m.artifacts[artifactID]; !ok {
		return nil, store.ErrNotFound
	}
	l := &store.ShareLink{Code: code, ArtifactID: artifactID, CreatedAt: m.now()}
	m.shareLinks[code] = l
	c := *l
	return &c, nil
}

func (m *Memory) GetShareLink(_ context.Context, code string) (*store.ShareLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.shareLinks[code]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *l
	return &c, nil
}
