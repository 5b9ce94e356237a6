// Package filename provides utilities for sanitizing strings into safe filenames.
package filename

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// invalidCharsRe matches characters not safe for filenames across all major OSes.
var invalidCharsRe = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

// multiDash collapses runs of dashes/underscores.
var multiDash = regexp.MustCompile(`[-_]{2,}`)

// Sanitize converts an arbitrary string into a filename-safe slug.
// Invalid filesystem characters and whitespace become dashes, the result is
// NFC-normalized, and leading/trailing dashes and dots are stripped. The
// output is truncated to maxLen bytes (defaults to 120) on a rune boundary.
func Sanitize(name string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = 120
	}

	s := norm.NFC.String(strings.TrimSpace(name))
	if s == "" {
		return ""
	}

	s = invalidCharsRe.ReplaceAllString(s, "-")
	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			return '-'
		}
		return r
	}, s)
	s = multiDash.ReplaceAllString(s, "-")

	// Avoid hidden files and trailing dots on Windows.
	s = strings.Trim(s, "-.")

	if len(s) > maxLen {
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = strings.TrimRight(s[:cut], "-.")
	}

	return s
}

// WithExt returns Sanitize(name) + ext, or fallback + ext when name sanitizes
// to nothing.
func WithExt(name, fallback, ext string, maxLen int) string {
	s := Sanitize(name, maxLen)
	if s == "" {
		s = fallback
	}
	return s + ext
}
