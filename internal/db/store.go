package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"thirdcoast.systems/relay/internal/faults"
	"thirdcoast.systems/relay/internal/store"
)

// Store implements store.Store on Postgres.
type Store struct {
	dbc *DatabaseConnection
}

var _ store.Store = (*Store)(nil)

func NewStore(dbc *DatabaseConnection) *Store {
	return &Store{dbc: dbc}
}

func (s *Store) Close() { s.dbc.Close() }

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func affected(n int64, err error) error {
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrConflict
	}
	return nil
}

// --- artifacts ---

func (s *Store) FindBySource(ctx context.Context, identity string) (*store.Artifact, error) {
	row, err := s.dbc.Queries(ctx).GetArtifactBySource(ctx, identity)
	if err != nil {
		return nil, notFound(err)
	}
	return s.withChunks(ctx, row)
}

func (s *Store) GetArtifact(ctx context.Context, id uuid.UUID) (*store.Artifact, error) {
	row, err := s.dbc.Queries(ctx).GetArtifact(ctx, PgUUID(id))
	if err != nil {
		return nil, notFound(err)
	}
	return s.withChunks(ctx, row)
}

func (s *Store) withChunks(ctx context.Context, row *Artifact) (*store.Artifact, error) {
	a := toArtifact(row)
	chunks, err := s.Resolve(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	a.Chunks = chunks
	return a, nil
}

func (s *Store) PutArtifact(ctx context.Context, a *store.Artifact) (*store.Artifact, error) {
	if len(a.Chunks) == 0 {
		return nil, fmt.Errorf("put artifact %s: no chunks", a.ID)
	}

	var out *store.Artifact
	err := s.dbc.InTx(ctx, func(q *Queries) error {
		row, err := q.InsertArtifact(ctx, &InsertArtifactParams{
			ID:              PgUUID(a.ID),
			SourceIdentity:  a.SourceIdentity,
			ChunkCount:      int32(len(a.Chunks)),
			TotalSize:       a.TotalSize,
			DurationSeconds: a.Duration,
			Title:           a.Title,
			Container:       a.Container,
		})
		if err != nil {
			return err
		}
		for _, c := range a.Chunks {
			if err := q.InsertArtifactChunk(ctx, &InsertArtifactChunkParams{
				ArtifactID:      row.ID,
				Idx:             int32(c.Index),
				StorageRef:      c.StorageRef,
				Size:            c.Size,
				StartSeconds:    c.Start,
				DurationSeconds: c.Duration,
			}); err != nil {
				return err
			}
		}
		out = toArtifact(row)
		out.Chunks = append([]store.Chunk(nil), a.Chunks...)
		return nil
	})
	if IsUniqueViolation(err) {
		return nil, faults.Wrap(faults.DuplicateIdentity, a.SourceIdentity, err)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Resolve(ctx context.Context, id uuid.UUID) ([]store.Chunk, error) {
	rows, err := s.dbc.Queries(ctx).ListArtifactChunks(ctx, PgUUID(id))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	chunks := make([]store.Chunk, 0, len(rows))
	for _, r := range rows {
		chunks = append(chunks, store.Chunk{
			Index:      int(r.Idx),
			StorageRef: r.StorageRef,
			Size:       r.Size,
			Start:      r.StartSeconds,
			Duration:   r.DurationSeconds,
		})
	}
	return chunks, nil
}

func (s *Store) ChunkInUse(ctx context.Context, storageRef string) (bool, error) {
	return s.dbc.Queries(ctx).ChunkInUse(ctx, storageRef)
}

// --- jobs ---

func (s *Store) CreateJob(ctx context.Context, j *store.Job) error {
	var finished pgtype.Timestamptz
	if j.FinishedAt != nil {
		finished = Timestamptz(*j.FinishedAt)
	}
	row, err := s.dbc.Queries(ctx).CreateJob(ctx, &CreateJobParams{
		ID:               PgUUID(j.ID),
		OwnerID:          j.OwnerID,
		SourceURL:        j.SourceURL,
		SourceIdentity:   j.SourceIdentity,
		RequestedProfile: j.Profile,
		State:            string(j.State),
		Progress:         int32(j.Progress),
		Title:            strPtr(j.Title),
		ResultRef:        NullPgUUID(j.ResultRef),
		ErrorCode:        strPtr(string(j.ErrorCode)),
		ErrorMessage:     strPtr(j.ErrorMessage),
		FinishedAt:       finished,
	})
	if err != nil {
		return err
	}
	*j = *toJob(row)
	return nil
}

func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*store.Job, error) {
	row, err := s.dbc.Queries(ctx).GetJob(ctx, PgUUID(id))
	if err != nil {
		return nil, notFound(err)
	}
	return toJob(row), nil
}

func (s *Store) ListJobs(ctx context.Context, ownerID string, limit int) ([]*store.Job, error) {
	rows, err := s.dbc.Queries(ctx).ListJobsByOwner(ctx, &ListJobsByOwnerParams{OwnerID: ownerID, Lim: int32(limit)})
	if err != nil {
		return nil, err
	}
	return toJobs(rows), nil
}

func (s *Store) ListJobsByState(ctx context.Context, state store.JobState, limit int) ([]*store.Job, error) {
	rows, err := s.dbc.Queries(ctx).ListJobsByState(ctx, &ListJobsByStateParams{State: string(state), Lim: int32(limit)})
	if err != nil {
		return nil, err
	}
	return toJobs(rows), nil
}

func (s *Store) FindOpenJob(ctx context.Context, ownerID, identity string) (*store.Job, error) {
	row, err := s.dbc.Queries(ctx).FindOpenJob(ctx, &FindOpenJobParams{OwnerID: ownerID, SourceIdentity: identity})
	if err != nil {
		return nil, notFound(err)
	}
	return toJob(row), nil
}

func (s *Store) TransitionJob(ctx context.Context, id uuid.UUID, to store.JobState, from ...store.JobState) error {
	if len(from) == 0 {
		from = store.OpenStates
	}
	states := make([]string, 0, len(from))
	for _, st := range from {
		states = append(states, string(st))
	}
	return affected(s.dbc.Queries(ctx).TransitionJob(ctx, &TransitionJobParams{
		ToState:    string(to),
		ID:         PgUUID(id),
		FromStates: states,
	}))
}

func (s *Store) SetJobProgress(ctx context.Context, id uuid.UUID, progress int) error {
	return affected(s.dbc.Queries(ctx).SetJobProgress(ctx, &SetJobProgressParams{Progress: int32(progress), ID: PgUUID(id)}))
}

func (s *Store) SetJobDetails(ctx context.Context, id uuid.UUID, title string, attempts int) error {
	return affected(s.dbc.Queries(ctx).SetJobDetails(ctx, &SetJobDetailsParams{ID: PgUUID(id), Title: strPtr(title), Attempts: int32(attempts)}))
}

func (s *Store) CompleteJob(ctx context.Context, id uuid.UUID, artifactID uuid.UUID) error {
	return affected(s.dbc.Queries(ctx).CompleteJob(ctx, &CompleteJobParams{ID: PgUUID(id), ResultRef: PgUUID(artifactID)}))
}

func (s *Store) FailJob(ctx context.Context, id uuid.UUID, code faults.Code, msg string) error {
	c := string(code)
	return affected(s.dbc.Queries(ctx).FailJob(ctx, &FailJobParams{ID: PgUUID(id), ErrorCode: &c, ErrorMessage: strPtr(msg)}))
}

func (s *Store) RecoverJobs(ctx context.Context) (int64, error) {
	return s.dbc.Queries(ctx).RecoverJobs(ctx)
}

// --- variants ---

func (s *Store) GetVariant(ctx context.Context, artifactID uuid.UUID, profile string) (*store.Variant, error) {
	row, err := s.dbc.Queries(ctx).GetVariant(ctx, &GetVariantParams{ArtifactID: PgUUID(artifactID), Profile: profile})
	if err != nil {
		return nil, notFound(err)
	}
	return toVariant(row), nil
}

func (s *Store) PutVariant(ctx context.Context, v *store.Variant) (*store.Variant, error) {
	row, err := s.dbc.Queries(ctx).UpsertVariant(ctx, &UpsertVariantParams{
		ArtifactID:  PgUUID(v.ArtifactID),
		Profile:     v.Profile,
		StoragePath: v.StoragePath,
		Size:        v.Size,
		ExpiresAt:   Timestamptz(v.ExpiresAt),
	})
	if err != nil {
		return nil, err
	}
	return toVariant(row), nil
}

func (s *Store) ExpiredVariants(ctx context.Context, now time.Time, limit int) ([]*store.Variant, error) {
	rows, err := s.dbc.Queries(ctx).ListExpiredVariants(ctx, &ListExpiredVariantsParams{ExpiresAt: Timestamptz(now), Limit: int32(limit)})
	if err != nil {
		return nil, err
	}
	out := make([]*store.Variant, 0, len(rows))
	for _, r := range rows {
		out = append(out, toVariant(r))
	}
	return out, nil
}

func (s *Store) DeleteExpiredVariant(ctx context.Context, id uuid.UUID, now time.Time) (string, error) {
	path, err := s.dbc.Queries(ctx).DeleteExpiredVariant(ctx, &DeleteExpiredVariantParams{ID: PgUUID(id), ExpiresAt: Timestamptz(now)})
	if err != nil {
		return "", notFound(err)
	}
	return path, nil
}

// --- owners ---

func (s *Store) ConsumeQuota(ctx context.Context, ownerID string, day time.Time, limit int) (int, error) {
	n, err := s.dbc.Queries(ctx).ConsumeQuota(ctx, &ConsumeQuotaParams{
		OwnerID:    ownerID,
		Day:        pgtype.Date{Time: store.QuotaDay(day), Valid: true},
		QuotaLimit: int32(limit),
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return limit, faults.Newf(faults.QuotaExceeded, "daily limit of %d acquisitions reached", limit)
	}
	return int(n), err
}

func (s *Store) QuotaUsed(ctx context.Context, ownerID string, day time.Time) (int, error) {
	n, err := s.dbc.Queries(ctx).GetQuotaCount(ctx, &GetQuotaCountParams{
		OwnerID: ownerID,
		Day:     pgtype.Date{Time: store.QuotaDay(day), Valid: true},
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return int(n), err
}

func (s *Store) GetOwnerTier(ctx context.Context, ownerID string) (store.Tier, error) {
	tier, err := s.dbc.Queries(ctx).GetOwnerTier(ctx, ownerID)
	if err != nil {
		return "", notFound(err)
	}
	return store.Tier(tier), nil
}

func (s *Store) SetOwnerTier(ctx context.Context, ownerID string, tier store.Tier) error {
	return s.dbc.Queries(ctx).UpsertOwnerTier(ctx, &UpsertOwnerTierParams{OwnerID: ownerID, Tier: string(tier)})
}

func (s *Store) OwnerUsage(ctx context.Context, ownerID string) (*store.OwnerUsage, error) {
	q := s.dbc.Queries(ctx)
	rows, err := q.CountOwnerJobsByState(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	u := &store.OwnerUsage{Jobs: make(map[store.JobState]int, len(rows))}
	for _, r := range rows {
		u.Jobs[store.JobState(r.State)] = int(r.Jobs)
	}
	totals, err := q.GetOwnerArtifactTotals(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	u.Artifacts = int(totals.Artifacts)
	u.TotalSize = totals.TotalSize
	return u, nil
}

func (s *Store) CreateShareLink(ctx context.Context, code string, artifactID uuid.UUID) (*store.ShareLink, error) {
	row, err := s.dbc.Queries(ctx).CreateShareLink(ctx, &CreateShareLinkParams{Code: code, ArtifactID: PgUUID(artifactID)})
	if IsUniqueViolation(err) {
		return nil, store.ErrConflict
	}
	if err != nil {
		return nil, err
	}
	return &store.ShareLink{Code: row.Code, ArtifactID: FromPgUUID(row.ArtifactID), CreatedAt: row.CreatedAt.Time}, nil
}

func (s *Store) GetShareLink(ctx context.Context, code string) (*store.ShareLink, error) {
	row, err := s.dbc.Queries(ctx).GetShareLink(ctx, code)
	if err != nil {
		return nil, notFound(err)
	}
	return &store.ShareLink{Code: row.Code, ArtifactID: FromPgUUID(row.ArtifactID), CreatedAt: row.CreatedAt.Time}, nil
}

// --- row mapping ---

func toArtifact(r *Artifact) *store.Artifact {
	return &store.Artifact{
		ID:             FromPgUUID(r.ID),
		SourceIdentity: r.SourceIdentity,
		ChunkCount:     int(r.ChunkCount),
		TotalSize:      r.TotalSize,
		Duration:       r.DurationSeconds,
		Title:          r.Title,
		Container:      r.Container,
		CreatedAt:      r.CreatedAt.Time,
	}
}

func toJob(r *Job) *store.Job {
	j := &store.Job{
		ID:             FromPgUUID(r.ID),
		OwnerID:        r.OwnerID,
		SourceURL:      r.SourceURL,
		SourceIdentity: r.SourceIdentity,
		Profile:        r.RequestedProfile,
		State:          store.JobState(r.State),
		Progress:       int(r.Progress),
		Attempts:       int(r.Attempts),
		Title:          derefStr(r.Title),
		ErrorCode:      faults.Code(derefStr(r.ErrorCode)),
		ErrorMessage:   derefStr(r.ErrorMessage),
		CreatedAt:      r.CreatedAt.Time,
		UpdatedAt:      r.UpdatedAt.Time,
		StartedAt:      NilTimePtr(r.StartedAt),
		FinishedAt:     NilTimePtr(r.FinishedAt),
	}
	if r.ResultRef.Valid {
		ref := FromPgUUID(r.ResultRef)
		j.ResultRef = &ref
	}
	return j
}

func toJobs(rows []*Job) []*store.Job {
	out := make([]*store.Job, 0, len(rows))
	for _, r := range rows {
		out = append(out, toJob(r))
	}
	return out
}

func toVariant(r *TranscodedVariant) *store.Variant {
	return &store.Variant{
		ID:          FromPgUUID(r.ID),
		ArtifactID:  FromPgUUID(r.ArtifactID),
		Profile:     r.Profile,
		StoragePath: r.StoragePath,
		Size:        r.Size,
		CreatedAt:   r.CreatedAt.Time,
		ExpiresAt:   r.ExpiresAt.Time,
	}
}
