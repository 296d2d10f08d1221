package core

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
)

// NewID returns a fresh identifier for scenes and artifacts.
func NewID() string { return uuid.NewString() }

// FormatClock renders seconds as HH:MM:SS for wire-facing timestamps.
func FormatClock(sec float64) string {
	sec = math.Max(sec, 0)
	h := int(sec) / 3600
	m := (int(sec) % 3600) / 60
	s := int(sec) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// SanitizeName reduces free text to a filesystem-safe fragment for output
// filenames.
func SanitizeName(s string, maxLen int) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	out := b.String()
	if maxLen > 0 && len(out) > maxLen {
		out = out[:maxLen]
	}
	if out == "" {
		out = "untitled"
	}
	return out
}
