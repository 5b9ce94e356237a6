package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"thirdcoast.systems/relay/internal/faults"
	"thirdcoast.systems/relay/internal/sqlite/sqlc"
	"thirdcoast.systems/relay/internal/store"
)

// Store implements store.Store on a SQLite file.
type Store struct {
	db  *DB
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

func NewStore(db *DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) Close() { _ = s.db.Close() }

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
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

func unixNano(t time.Time) int64 { return t.UTC().UnixNano() }

func fromNano(n int64) time.Time { return time.Unix(0, n).UTC() }

func fromNullNano(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNano(n.Int64)
	return &t
}

func nullNano(t time.Time) sql.NullInt64 {
	return sql.NullInt64{Int64: unixNano(t), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// --- artifacts ---

func (s *Store) FindBySource(ctx context.Context, identity string) (*store.Artifact, error) {
	row, err := s.db.Queries.GetArtifactBySource(ctx, identity)
	if err != nil {
		return nil, notFound(err)
	}
	return s.withChunks(ctx, row)
}

func (s *Store) GetArtifact(ctx context.Context, id uuid.UUID) (*store.Artifact, error) {
	row, err := s.db.Queries.GetArtifact(ctx, id.String())
	if err != nil {
		return nil, notFound(err)
	}
	return s.withChunks(ctx, row)
}

func (s *Store) withChunks(ctx context.Context, row sqlc.Artifact) (*store.Artifact, error) {
	a, err := toArtifact(row)
	if err != nil {
		return nil, err
	}
	if a.Chunks, err = s.Resolve(ctx, a.ID); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Store) PutArtifact(ctx context.Context, a *store.Artifact) (*store.Artifact, error) {
	if len(a.Chunks) == 0 {
		return nil, fmt.Errorf("put artifact %s: no chunks", a.ID)
	}
	created := fromNano(unixNano(s.now()))
	err := s.db.inTx(ctx, func(q *sqlc.Queries) error {
		if err := q.InsertArtifact(ctx, sqlc.InsertArtifactParams{
			ID:              a.ID.String(),
			SourceIdentity:  a.SourceIdentity,
			ChunkCount:      int64(len(a.Chunks)),
			TotalSize:       a.TotalSize,
			DurationSeconds: a.Duration,
			Title:           a.Title,
			Container:       a.Container,
			CreatedAt:       unixNano(created),
		}); err != nil {
			return err
		}
		for _, c := range a.Chunks {
			if err := q.InsertArtifactChunk(ctx, sqlc.InsertArtifactChunkParams{
				ArtifactID:      a.ID.String(),
				Idx:             int64(c.Index),
				StorageRef:      c.StorageRef,
				Size:            c.Size,
				StartSeconds:    c.Start,
				DurationSeconds: c.Duration,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if IsUniqueViolation(err) {
		return nil, faults.Wrap(faults.DuplicateIdentity, a.SourceIdentity, err)
	}
	if err != nil {
		return nil, err
	}

	out := *a
	out.ChunkCount = len(a.Chunks)
	out.CreatedAt = created
	out.Chunks = append([]store.Chunk(nil), a.Chunks...)
	return &out, nil
}

func (s *Store) Resolve(ctx context.Context, id uuid.UUID) ([]store.Chunk, error) {
	rows, err := s.db.Queries.ListArtifactChunks(ctx, id.String())
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
	n, err := s.db.Queries.ChunkInUse(ctx, storageRef)
	return n != 0, err
}

// --- jobs ---

func (s *Store) CreateJob(ctx context.Context, j *store.Job) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	if j.State == "" {
		j.State = store.JobPending
	}
	now := unixNano(s.now())
	var ref sql.NullString
	if j.ResultRef != nil {
		ref = sql.NullString{String: j.ResultRef.String(), Valid: true}
	}
	var finished sql.NullInt64
	if j.FinishedAt != nil {
		finished = nullNano(*j.FinishedAt)
	} else if j.State.Terminal() {
		finished = sql.NullInt64{Int64: now, Valid: true}
	}

	err := s.db.Queries.CreateJob(ctx, sqlc.CreateJobParams{
		ID:               j.ID.String(),
		OwnerID:          j.OwnerID,
		SourceURL:        j.SourceURL,
		SourceIdentity:   j.SourceIdentity,
		RequestedProfile: j.Profile,
		State:            string(j.State),
		Progress:         int64(j.Progress),
		Attempts:         int64(j.Attempts),
		Title:            nullString(j.Title),
		ResultRef:        ref,
		ErrorCode:        nullString(string(j.ErrorCode)),
		ErrorMessage:     nullString(j.ErrorMessage),
		CreatedAt:        now,
		UpdatedAt:        now,
		FinishedAt:       finished,
	})
	if err != nil {
		return err
	}
	j.CreatedAt = fromNano(now)
	j.UpdatedAt = j.CreatedAt
	j.FinishedAt = fromNullNano(finished)
	return nil
}

func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*store.Job, error) {
	row, err := s.db.Queries.GetJob(ctx, id.String())
	if err != nil {
		return nil, notFound(err)
	}
	return toJob(row)
}

func (s *Store) ListJobs(ctx context.Context, ownerID string, limit int) ([]*store.Job, error) {
	rows, err := s.db.Queries.ListJobsByOwner(ctx, sqlc.ListJobsByOwnerParams{OwnerID: ownerID, Limit: int64(limit)})
	if err != nil {
		return nil, err
	}
	return toJobs(rows)
}

func (s *Store) ListJobsByState(ctx context.Context, state store.JobState, limit int) ([]*store.Job, error) {
	rows, err := s.db.Queries.ListJobsByState(ctx, sqlc.ListJobsByStateParams{State: string(state), Limit: int64(limit)})
	if err != nil {
		return nil, err
	}
	return toJobs(rows)
}

func (s *Store) FindOpenJob(ctx context.Context, ownerID, identity string) (*store.Job, error) {
	row, err := s.db.Queries.FindOpenJob(ctx, sqlc.FindOpenJobParams{OwnerID: ownerID, SourceIdentity: identity})
	if err != nil {
		return nil, notFound(err)
	}
	return toJob(row)
}

func (s *Store) TransitionJob(ctx context.Context, id uuid.UUID, to store.JobState, from ...store.JobState) error {
	if len(from) == 0 {
		from = store.OpenStates
	}
	now := s.now()
	arg := sqlc.TransitionJobParams{
		State:     string(to),
		UpdatedAt: unixNano(now),
		ID:        id.String(),
	}
	if to == store.JobRunning {
		arg.StartedAt = nullNano(now)
	}
	if to.Terminal() {
		arg.FinishedAt = nullNano(now)
	}
	for _, st := range from {
		arg.FromStates = append(arg.FromStates, string(st))
	}
	return affected(s.db.Queries.TransitionJob(ctx, arg))
}

func (s *Store) SetJobProgress(ctx context.Context, id uuid.UUID, progress int) error {
	return affected(s.db.Queries.SetJobProgress(ctx, sqlc.SetJobProgressParams{
		Progress:  int64(progress),
		UpdatedAt: unixNano(s.now()),
		ID:        id.String(),
	}))
}

func (s *Store) SetJobDetails(ctx context.Context, id uuid.UUID, title string, attempts int) error {
	return affected(s.db.Queries.SetJobDetails(ctx, sqlc.SetJobDetailsParams{
		Title:     nullString(title),
		Attempts:  int64(attempts),
		UpdatedAt: unixNano(s.now()),
		ID:        id.String(),
	}))
}

func (s *Store) CompleteJob(ctx context.Context, id uuid.UUID, artifactID uuid.UUID) error {
	now := s.now()
	return affected(s.db.Queries.CompleteJob(ctx, sqlc.CompleteJobParams{
		ResultRef:  sql.NullString{String: artifactID.String(), Valid: true},
		UpdatedAt:  unixNano(now),
		FinishedAt: nullNano(now),
		ID:         id.String(),
	}))
}

func (s *Store) FailJob(ctx context.Context, id uuid.UUID, code faults.Code, msg string) error {
	now := s.now()
	return affected(s.db.Queries.FailJob(ctx, sqlc.FailJobParams{
		ErrorCode:    nullString(string(code)),
		ErrorMessage: nullString(msg),
		UpdatedAt:    unixNano(now),
		FinishedAt:   nullNano(now),
		ID:           id.String(),
	}))
}

func (s *Store) RecoverJobs(ctx context.Context) (int64, error) {
	return s.db.Queries.RecoverJobs(ctx, unixNano(s.now()))
}

// --- variants ---

func (s *Store) GetVariant(ctx context.Context, artifactID uuid.UUID, profile string) (*store.Variant, error) {
	row, err := s.db.Queries.GetVariant(ctx, sqlc.GetVariantParams{ArtifactID: artifactID.String(), Profile: profile})
	if err != nil {
		return nil, notFound(err)
	}
	return toVariant(row)
}

func (s *Store) PutVariant(ctx context.Context, v *store.Variant) (*store.Variant, error) {
	id := v.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	row, err := s.db.Queries.UpsertVariant(ctx, sqlc.UpsertVariantParams{
		ID:          id.String(),
		ArtifactID:  v.ArtifactID.String(),
		Profile:     v.Profile,
		StoragePath: v.StoragePath,
		Size:        v.Size,
		CreatedAt:   unixNano(s.now()),
		ExpiresAt:   unixNano(v.ExpiresAt),
	})
	if err != nil {
		return nil, err
	}
	return toVariant(row)
}

func (s *Store) ExpiredVariants(ctx context.Context, now time.Time, limit int) ([]*store.Variant, error) {
	rows, err := s.db.Queries.ListExpiredVariants(ctx, sqlc.ListExpiredVariantsParams{ExpiresAt: unixNano(now), Limit: int64(limit)})
	if err != nil {
		return nil, err
	}
	out := make([]*store.Variant, 0, len(rows))
	for _, r := range rows {
		v, err := toVariant(r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Store) DeleteExpiredVariant(ctx context.Context, id uuid.UUID, now time.Time) (string, error) {
	path, err := s.db.Queries.DeleteExpiredVariant(ctx, sqlc.DeleteExpiredVariantParams{ID: id.String(), ExpiresAt: unixNano(now)})
	if err != nil {
		return "", notFound(err)
	}
	return path, nil
}

// --- owners ---

func quotaDay(day time.Time) string { return store.QuotaDay(day).Format(time.DateOnly) }

func (s *Store) ConsumeQuota(ctx context.Context, ownerID string, day time.Time, limit int) (int, error) {
	n, err := s.db.Queries.ConsumeQuota(ctx, sqlc.ConsumeQuotaParams{
		OwnerID:    ownerID,
		Day:        quotaDay(day),
		QuotaLimit: int64(limit),
	})
	if errors.Is(err, sql.ErrNoRows) {
		return limit, faults.Newf(faults.QuotaExceeded, "daily limit of %d acquisitions reached", limit)
	}
	return int(n), err
}

func (s *Store) QuotaUsed(ctx context.Context, ownerID string, day time.Time) (int, error) {
	n, err := s.db.Queries.GetQuotaCount(ctx, sqlc.GetQuotaCountParams{OwnerID: ownerID, Day: quotaDay(day)})
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return int(n), err
}

func (s *Store) GetOwnerTier(ctx context.Context, ownerID string) (store.Tier, error) {
	tier, err := s.db.Queries.GetOwnerTier(ctx, ownerID)
	if err != nil {
		return "", notFound(err)
	}
	return store.Tier(tier), nil
}

func (s *Store) SetOwnerTier(ctx context.Context, ownerID string, tier store.Tier) error {
	return s.db.Queries.UpsertOwnerTier(ctx, sqlc.UpsertOwnerTierParams{
		OwnerID:   ownerID,
		Tier:      string(tier),
		UpdatedAt: unixNano(s.now()),
	})
}

func (s *Store) OwnerUsage(ctx context.Context, ownerID string) (*store.OwnerUsage, error) {
	rows, err := s.db.Queries.CountOwnerJobsByState(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	u := &store.OwnerUsage{Jobs: make(map[store.JobState]int, len(rows))}
	for _, r := range rows {
		u.Jobs[store.JobState(r.State)] = int(r.Jobs)
	}
	totals, err := s.db.Queries.GetOwnerArtifactTotals(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	u.Artifacts = int(totals.Artifacts)
	u.TotalSize = totals.TotalSize
	return u, nil
}

func (s *Store) CreateShareLink(ctx context.Context, code string, artifactID uuid.UUID) (*store.ShareLink, error) {
	now := unixNano(s.now())
	err := s.db.Queries.CreateShareLink(ctx, sqlc.CreateShareLinkParams{Code: code, ArtifactID: artifactID.String(), CreatedAt: now})
	if IsUniqueViolation(err) {
		return nil, store.ErrConflict
	}
	if err != nil {
		return nil, err
	}
	return &store.ShareLink{Code: code, ArtifactID: artifactID, CreatedAt: fromNano(now)}, nil
}

func (s *Store) GetShareLink(ctx context.Context, code string) (*store.ShareLink, error) {
	row, err := s.db.Queries.GetShareLink(ctx, code)
	if err != nil {
		return nil, notFound(err)
	}
	id, err := uuid.Parse(row.ArtifactID)
	if err != nil {
		return nil, fmt.Errorf("share link artifact %q: %w", row.ArtifactID, err)
	}
	return &store.ShareLink{Code: row.Code, ArtifactID: id, CreatedAt: fromNano(row.CreatedAt)}, nil
}

// --- row mapping ---

func toArtifact(r sqlc.Artifact) (*store.Artifact, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("artifact id %q: %w", r.ID, err)
	}
	return &store.Artifact{
		ID:             id,
		SourceIdentity: r.SourceIdentity,
		ChunkCount:     int(r.ChunkCount),
		TotalSize:      r.TotalSize,
		Duration:       r.DurationSeconds,
		Title:          r.Title,
		Container:      r.Container,
		CreatedAt:      fromNano(r.CreatedAt),
	}, nil
}

func toJob(r sqlc.Job) (*store.Job, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("job id %q: %w", r.ID, err)
	}
	j := &store.Job{
		ID:             id,
		OwnerID:        r.OwnerID,
		SourceURL:      r.SourceURL,
		SourceIdentity: r.SourceIdentity,
		Profile:        r.RequestedProfile,
		State:          store.JobState(r.State),
		Progress:       int(r.Progress),
		Attempts:       int(r.Attempts),
		Title:          r.Title.String,
		ErrorCode:      faults.Code(r.ErrorCode.String),
		ErrorMessage:   r.ErrorMessage.String,
		CreatedAt:      fromNano(r.CreatedAt),
		UpdatedAt:      fromNano(r.UpdatedAt),
		StartedAt:      fromNullNano(r.StartedAt),
		FinishedAt:     fromNullNano(r.FinishedAt),
	}
	if r.ResultRef.Valid {
		ref, err := uuid.Parse(r.ResultRef.String)
		if err != nil {
			return nil, fmt.Errorf("job result_ref %q: %w", r.ResultRef.String, err)
		}
		j.ResultRef = &ref
	}
	return j, nil
}

func toJobs(rows []sqlc.Job) ([]*store.Job, error) {
	out := make([]*store.Job, 0, len(rows))
	for _, r := range rows {
		j, err := toJob(r)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}

func toVariant(r sqlc.TranscodedVariant) (*store.Variant, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("variant id %q: %w", r.ID, err)
	}
	artifactID, err := uuid.Parse(r.ArtifactID)
	if err != nil {
		return nil, fmt.Errorf("variant artifact %q: %w", r.ArtifactID, err)
	}
	return &store.Variant{
		ID:          id,
		ArtifactID:  artifactID,
		Profile:     r.Profile,
		StoragePath: r.StoragePath,
		Size:        r.Size,
		CreatedAt:   fromNano(r.CreatedAt),
		ExpiresAt:   fromNano(r.ExpiresAt),
	}, nil
}
