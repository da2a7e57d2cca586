// Package match decides whether two catalog records describe the same
// work: title normalization, a staged similarity score in [0,1] and the
// search pipeline that applies it across candidate titles.
package match

import (
	"strings"
	"unicode"
)

// Words removed from normalized titles as whole-word matches only.
// Articles plus the release-variant markers catalogs tack onto titles
// ("Solo Leveling (Official Colored)" must match "Solo Leveling").
var stopWords = map[string]struct{}{
	"a":        {},
	"an":       {},
	"the":      {},
	"official": {},
	"colored":  {},
}

// Normalize canonicalizes a free-text title for comparison: lowercase,
// title-separator punctuation (colon, hyphen, dashes) collapsed to a
// space, all other non-alphanumerics stripped, stop words removed,
// whitespace collapsed. Idempotent; empty input normalizes to "".
func Normalize(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == ':' || r == '-' || r == '–' || r == '—' || unicode.IsSpace(r):
			b.WriteRune(' ')
		}
		// everything else is stripped
	}

	fields := strings.Fields(b.String())
	kept := fields[:0]
	for _, w := range fields {
		if _, stop := stopWords[w]; !stop {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}
