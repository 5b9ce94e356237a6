package filename

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	require.Equal(t, "My-Video-Part-1", Sanitize("  My Video: Part 1?  ", 0))
	require.Equal(t, "a-b", Sanitize("a__--b", 0))
	require.Equal(t, "hidden", Sanitize("..hidden..", 0))
	require.Equal(t, "", Sanitize("   ", 0))
}

func TestSanitize_NormalizesAndTruncatesOnRuneBoundary(t *testing.T) {
	// "e" + combining acute composes to a single rune
	require.Equal(t, "café", Sanitize("café", 0))

	s := Sanitize("日本語のタイトル", 7)
	require.True(t, utf8.ValidString(s))
	require.Equal(t, "日本", s)
}

func TestWithExt(t *testing.T) {
	require.Equal(t, "clip.mp4", WithExt("clip", "artifact", ".mp4", 0))
	require.Equal(t, "artifact.mp4", WithExt("///", "artifact", ".mp4", 0))
}
