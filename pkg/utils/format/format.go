// Package format renders job and artifact values for terminal output.
package format

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Duration converts seconds to "M:SS" or "H:MM:SS" display format.
func Duration(seconds float64) string {
	if seconds < 0 {
		return "0:00"
	}
	s := int(seconds)
	h := s / 3600
	m := (s % 3600) / 60
	sec := s % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%d:%02d", m, sec)
}

// Elapsed formats a wall-clock span (e.g. "3.2s", "1.5m", "2.0h").
func Elapsed(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%.1fm", d.Minutes())
	default:
		return fmt.Sprintf("%.1fh", d.Hours())
	}
}

// Truncate shortens s to at most max runes, ending in "..." when cut.
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	if max <= 3 {
		return strings.Repeat(".", max)
	}
	r := []rune(s)
	return string(r[:max-3]) + "..."
}

// Bar draws a fixed-width progress bar for pct in [0, 100].
func Bar(pct, width int) string {
	pct = min(max(pct, 0), 100)
	filled := pct * width / 100
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}
