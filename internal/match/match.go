// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package match provides the fuzzy string-matching primitive shared by
// bibliography matching, taxonomy repair, and relevance-evidence validation.
// Scoring is pure and deterministic: identical inputs always yield identical
// scores.
package match

import (
	"regexp"
	"strings"
)

var (
	latexCommand = regexp.MustCompile(`\\[a-zA-Z]+`)
	nonAlnum     = regexp.MustCompile(`[^a-z0-9]+`)
	spaces       = regexp.MustCompile(`\s+`)
)

// Normalize lowercases s, strips LaTeX commands and markup punctuation, and
// collapses whitespace. Two strings that normalize equal are considered an
// exact match.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ToLower(s)
	s = latexCommand.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, "&", " and ")
	s = nonAlnum.ReplaceAllString(s, " ")
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}

// Score combines a character-sequence similarity ratio (weight 0.65) with
// token-set overlap (weight 0.35) over the normalized forms of a and b.
// Returns a value in [0,1]; 1.0 exactly when the normalized forms are equal.
func Score(a, b string) float64 {
	return ScoreNormalized(Normalize(a), Normalize(b))
}

// ScoreNormalized is Score for inputs that are already normalized. Callers
// that compare one string against many normalize once and use this.
func ScoreNormalized(aNorm, bNorm string) float64 {
	if aNorm == bNorm {
		return 1.0
	}
	if aNorm == "" || bNorm == "" {
		return 0.0
	}

	ratio := sequenceRatio(aNorm, bNorm)

	aTokens := tokenSet(aNorm)
	bTokens := tokenSet(bNorm)
	overlap := 0.0
	if len(aTokens) > 0 && len(bTokens) > 0 {
		common := 0
		for tok := range aTokens {
			if bTokens[tok] {
				common++
			}
		}
		larger := len(aTokens)
		if len(bTokens) > larger {
			larger = len(bTokens)
		}
		overlap = float64(common) / float64(larger)
	}

	return 0.65*ratio + 0.35*overlap
}

// ClosestChoice returns the choice with the highest Score against value,
// along with that score. Choices that normalize to the empty string are
// skipped. Ties keep the earlier choice, so the result is deterministic for
// a fixed choice order.
func ClosestChoice(value string, choices []string) (string, float64) {
	valueNorm := Normalize(value)
	best := ""
	bestScore := 0.0
	for _, c := range choices {
		cNorm := Normalize(c)
		if cNorm == "" {
			continue
		}
		if score := ScoreNormalized(valueNorm, cNorm); score > bestScore {
			bestScore = score
			best = c
		}
	}
	return best, bestScore
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(s) {
		set[tok] = true
	}
	return set
}

// sequenceRatio is a matching-blocks similarity ratio: 2*M/T where M is the
// total length of the recursively longest common runs and T the combined
// length of both strings.
func sequenceRatio(a, b string) float64 {
	ar := []rune(a)
	br := []rune(b)
	total := len(ar) + len(br)
	if total == 0 {
		return 1.0
	}
	return 2.0 * float64(totalMatched(ar, br)) / float64(total)
}

func totalMatched(a, b []rune) int {
	ai, bi, n := longestCommonRun(a, b)
	if n == 0 {
		return 0
	}
	return n + totalMatched(a[:ai], b[:bi]) + totalMatched(a[ai+n:], b[bi+n:])
}

// longestCommonRun finds the longest contiguous run common to a and b,
// returning its start in each and its length.
func longestCommonRun(a, b []rune) (ai, bi, n int) {
	if len(a) == 0 || len(b) == 0 {
		return 0, 0, 0
	}

	b2j := make(map[rune][]int, len(b))
	for j, r := range b {
		b2j[r] = append(b2j[r], j)
	}

	runEnding := make(map[int]int)
	for i, r := range a {
		next := make(map[int]int)
		for _, j := range b2j[r] {
			k := runEnding[j-1] + 1
			next[j] = k
			if k > n {
				ai, bi, n = i-k+1, j-k+1, k
			}
		}
		runEnding = next
	}
	return ai, bi, n
}
