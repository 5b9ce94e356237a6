package db

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"
	"thirdcoast.systems/relay/internal/store"
)

func TestIsUniqueViolation(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "artifacts_source_identity_key"}
	require.True(t, IsUniqueViolation(dup))
	require.True(t, IsUniqueViolation(fmt.Errorf("insert artifact: %w", dup)))
	require.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	require.False(t, IsUniqueViolation(errors.New("23505")))
	require.False(t, IsUniqueViolation(nil))
}

func TestPgUUID(t *testing.T) {
	id := uuid.New()
	require.Equal(t, id, FromPgUUID(PgUUID(id)))
	require.True(t, NullPgUUID(&id).Valid)
	require.False(t, NullPgUUID(nil).Valid)
	require.Equal(t, uuid.Nil, FromPgUUID(pgtype.UUID{}))
}

func TestNilTimePtr(t *testing.T) {
	require.Nil(t, NilTimePtr(pgtype.Timestamptz{}))
	now := time.Now()
	got := NilTimePtr(Timestamptz(now))
	require.NotNil(t, got)
	require.True(t, now.Equal(*got))
}

func TestStoreErrors(t *testing.T) {
	require.ErrorIs(t, notFound(pgx.ErrNoRows), store.ErrNotFound)
	require.ErrorIs(t, notFound(fmt.Errorf("get job: %w", pgx.ErrNoRows)), store.ErrNotFound)
	boom := errors.New("boom")
	require.Equal(t, boom, notFound(boom))

	require.ErrorIs(t, affected(0, nil), store.ErrConflict)
	require.NoError(t, affected(1, nil))
	require.Equal(t, boom, affected(1, boom))
}

func TestStrPtr(t *testing.T) {
	require.Nil(t, strPtr(""))
	require.Equal(t, "x", derefStr(strPtr("x")))
	require.Empty(t, derefStr(nil))
}
