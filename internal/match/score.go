package match

import (
	"strings"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
)

// TitleSet is one side of a comparison: the record's primary title,
// its alternates/synonyms and the publication year (0 when unknown).
type TitleSet struct {
	Primary    string
	Alternates []string
	Year       int
}

// normalized returns the non-empty normalized titles, primary first,
// without duplicates.
func (t TitleSet) normalized() []string {
	seen := make(map[string]struct{}, 1+len(t.Alternates))
	out := make([]string, 0, 1+len(t.Alternates))
	for _, raw := range append([]string{t.Primary}, t.Alternates...) {
		n := Normalize(raw)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// Score rates how likely two catalog records describe the same work,
// returning a confidence in [0,1].
//
// This is an ordered decision cascade, not weighted voting: the first
// matching stage wins.
//
//  1. any normalized title equal on both sides        -> 1.00
//  2. primary-title ratio > 95                        -> 0.95
//  3. primary-title ratio > 85:
//     years within 1                                  -> 0.90
//     years present but further apart                 -> 0.70
//     either year missing                             -> 0.85
//  4. best pairwise ratio across all titles > 90      -> 0.85
//     > 85                                            -> 0.80
//  5. primary-title token overlap (|∩| / max size,
//     both sides >= 2 tokens) > 0.70 + years within 1 -> 0.80
//     overlap > 0.85                                  -> 0.75
//  6. fallback: best pairwise ratio / 100
//
// Stage 3 deliberately scores contradictory years (0.70) below missing
// years (0.85). That calibration is preserved as-is from the matching
// contract; see DESIGN.md before "fixing" it.
func Score(a, b TitleSet) float64 {
	titlesA := a.normalized()
	titlesB := b.normalized()
	if len(titlesA) == 0 || len(titlesB) == 0 {
		return 0
	}

	// stage 1: exact match on any title pair
	setB := make(map[string]struct{}, len(titlesB))
	for _, t := range titlesB {
		setB[t] = struct{}{}
	}
	for _, t := range titlesA {
		if _, ok := setB[t]; ok {
			return 1.00
		}
	}

	primA, primB := titlesA[0], titlesB[0]
	primRatio := fuzzy.Ratio(primA, primB)

	// stage 2: very high primary similarity trumps everything else,
	// including year gaps
	if primRatio > 95 {
		return 0.95
	}

	// stage 3: strong similarity, corroborated or contradicted by year
	if primRatio > 85 {
		if a.Year > 0 && b.Year > 0 {
			if yearGap(a.Year, b.Year) <= 1 {
				return 0.90
			}
			return 0.70
		}
		return 0.85
	}

	// stage 4: best alternate-title similarity
	best := primRatio
	for _, ta := range titlesA {
		for _, tb := range titlesB {
			if r := fuzzy.Ratio(ta, tb); r > best {
				best = r
			}
		}
	}
	if best > 90 {
		return 0.85
	}
	if best > 85 {
		return 0.80
	}

	// stage 5: token overlap on the primary titles
	if overlap, ok := tokenOverlap(primA, primB); ok {
		if overlap > 0.70 && a.Year > 0 && b.Year > 0 && yearGap(a.Year, b.Year) <= 1 {
			return 0.80
		}
		if overlap > 0.85 {
			return 0.75
		}
	}

	// stage 6: bare similarity, no stage bonus
	return float64(best) / 100
}

// tokenOverlap computes |intersection| / max(|A|,|B|) over the word
// sets of two normalized titles. ok is false unless both sides have at
// least two tokens.
func tokenOverlap(a, b string) (float64, bool) {
	tokensA := tokenSet(a)
	tokensB := tokenSet(b)
	if len(tokensA) < 2 || len(tokensB) < 2 {
		return 0, false
	}
	inter := 0
	for w := range tokensA {
		if _, ok := tokensB[w]; ok {
			inter++
		}
	}
	denom := len(tokensA)
	if len(tokensB) > denom {
		denom = len(tokensB)
	}
	return float64(inter) / float64(denom), true
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(s)
	out := make(map[string]struct{}, len(fields))
	for _, w := range fields {
		out[w] = struct{}{}
	}
	return out
}

func yearGap(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
