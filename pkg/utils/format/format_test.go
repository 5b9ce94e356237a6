package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDuration(t *testing.T) {
	require.Equal(t, "0:00", Duration(-1))
	require.Equal(t, "3:32", Duration(212))
	require.Equal(t, "1:01:05", Duration(3665))
}

func TestElapsed(t *testing.T) {
	require.Equal(t, "3.2s", Elapsed(3200*time.Millisecond))
	require.Equal(t, "1.5m", Elapsed(90*time.Second))
	require.Equal(t, "2.0h", Elapsed(2*time.Hour))
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", Truncate("short", 10))
	require.Equal(t, "abcd...", Truncate("abcdefghij", 7))
	require.Equal(t, "日本...", Truncate("日本語のタイトル", 5))
	require.Equal(t, "..", Truncate("abcdef", 2))
}

func TestBar(t *testing.T) {
	require.Equal(t, "[.....]", Bar(0, 5))
	require.Equal(t, "[##...]", Bar(40, 5))
	require.Equal(t, "[#####]", Bar(250, 5))
}
