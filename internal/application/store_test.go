package application

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"thirdcoast.systems/relay/internal/blobstore"
	"thirdcoast.systems/relay/internal/config"
)

func TestIsSQLiteDSN(t *testing.T) {
	require.True(t, IsSQLiteDSN("sqlite:///var/lib/relay.db"))
	require.True(t, IsSQLiteDSN("file:relay.db"))
	require.False(t, IsSQLiteDSN("postgres://u:p@localhost/relay"))
}

func TestOpenStoreSQLite(t *testing.T) {
	conf := config.Config{DatabaseDSN: "sqlite://" + filepath.Join(t.TempDir(), "relay.db")}
	s, err := OpenStore(context.Background(), conf)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	n, err := s.RecoverJobs(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestOpenChannel(t *testing.T) {
	conf := config.Config{}
	conf.BlobDir = t.TempDir()
	ch, err := OpenChannel(conf)
	require.NoError(t, err)
	require.IsType(t, &blobstore.FS{}, ch)

	conf.Backend = "telegram"
	ch, err = OpenChannel(conf)
	require.NoError(t, err)
	require.Equal(t, "telegram", ch.Name())
	require.EqualValues(t, blobstore.TelegramMaxObjectSize, ch.MaxObjectSize())

	conf.Backend = "s3"
	_, err = OpenChannel(conf)
	require.Error(t, err)
}
