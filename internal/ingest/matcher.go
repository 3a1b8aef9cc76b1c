// Package ingest brings external feed records into the catalog: fuzzy
// duplicate matching, batch planning, and the per-feed importer loop.
package ingest

import (
	"strings"
	"time"
	"unicode"

	"github.com/localdeck/steward/internal/core/domain"
)

// MatchOptions tunes duplicate detection.
type MatchOptions struct {
	// TimeWindow is the maximum start-time distance between two records
	// describing the same happening. Strict: a distance equal to the
	// window does not match.
	TimeWindow time.Duration
	// AllowCrossSource permits matches across different feeds.
	AllowCrossSource bool
}

// DefaultMatchOptions matches within one hour, same feed only.
var DefaultMatchOptions = MatchOptions{TimeWindow: time.Hour}

// NormalizeTitle lowercases, trims, strips punctuation and symbols, and
// collapses whitespace runs so cosmetic differences do not defeat matching.
func NormalizeTitle(title string) string {
	var b strings.Builder
	b.Grow(len(title))

	lastSpace := true
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// IsDuplicate reports whether two records describe the same real-world
// happening. Pure and symmetric: IsDuplicate(a, b) == IsDuplicate(b, a).
func IsDuplicate(a, b domain.Event, opts MatchOptions) bool {
	if opts.TimeWindow <= 0 {
		opts.TimeWindow = DefaultMatchOptions.TimeWindow
	}

	// Identical submissions short-circuit the fuzzy path.
	if a.Title == b.Title && a.Source == b.Source && a.StartsAt.Equal(b.StartsAt) {
		return true
	}

	if !opts.AllowCrossSource && a.Source != b.Source {
		return false
	}
	if absDuration(a.StartsAt.Sub(b.StartsAt)) >= opts.TimeWindow {
		return false
	}

	na, nb := NormalizeTitle(a.Title), NormalizeTitle(b.Title)
	if na == nb {
		return true
	}
	// Containment requires both sides non-empty: an empty string is
	// contained in everything.
	if na == "" || nb == "" {
		return false
	}
	return strings.Contains(na, nb) || strings.Contains(nb, na)
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
