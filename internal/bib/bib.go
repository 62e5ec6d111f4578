// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package bib loads a BibTeX bibliography and maps filename-derived paper
// titles onto canonical citation keys.
package bib

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/pdiddy/survey-engine/internal/match"
)

// Entry is one bibliography record. TitleNorm is precomputed so batch
// matching does not re-normalize the same title thousands of times.
type Entry struct {
	Key        string
	TitleRaw   string
	TitleClean string
	TitleNorm  string
}

// entryStart splits the file on lines beginning with @. Splitting per entry
// keeps one malformed abstract (unbalanced braces are common) from
// corrupting the rest of the file.
var entryStart = regexp.MustCompile(`(?m)^@`)

// Load parses the BibTeX file at path. Entries without a parseable key are
// skipped individually; a missing file yields an empty bibliography and no
// error, since unmatched papers simply keep filename-derived titles.
func Load(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading bibliography %s: %w", path, err)
	}
	return Parse(string(data)), nil
}

// Parse extracts entries from BibTeX text.
func Parse(text string) []Entry {
	starts := entryStart.FindAllStringIndex(text, -1)
	var entries []Entry
	for i, loc := range starts {
		end := len(text)
		if i+1 < len(starts) {
			end = starts[i+1][0]
		}
		chunk := strings.TrimSpace(text[loc[0]:end])
		if chunk == "" {
			continue
		}

		open := strings.IndexAny(chunk, "{(")
		if open == -1 {
			continue
		}
		comma := strings.Index(chunk[open+1:], ",")
		if comma == -1 {
			continue
		}
		key := strings.TrimSpace(chunk[open+1 : open+1+comma])
		if key == "" {
			continue
		}

		body := chunk[open+1+comma+1:]
		titleRaw := extractField(body, "title")
		titleClean := cleanTitle(titleRaw)
		entries = append(entries, Entry{
			Key:        key,
			TitleRaw:   titleRaw,
			TitleClean: titleClean,
			TitleNorm:  match.Normalize(titleClean),
		})
	}
	return entries
}

// extractField pulls one field value out of an entry body, handling
// brace-delimited, quote-delimited, and bare values.
func extractField(body, field string) string {
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(field) + `\s*=\s*`)
	loc := re.FindStringIndex(body)
	if loc == nil {
		return ""
	}

	i := loc[1]
	for i < len(body) && (body[i] == ' ' || body[i] == '\t' || body[i] == '\n' || body[i] == '\r') {
		i++
	}
	if i >= len(body) {
		return ""
	}

	switch body[i] {
	case '{':
		depth := 1
		i++
		start := i
		for i < len(body) && depth > 0 {
			switch body[i] {
			case '{':
				depth++
			case '}':
				depth--
			}
			i++
		}
		return strings.TrimSpace(body[start : i-1])
	case '"':
		i++
		start := i
		for i < len(body) {
			if body[i] == '"' && body[i-1] != '\\' {
				break
			}
			i++
		}
		return strings.TrimSpace(body[start:i])
	default:
		start := i
		for i < len(body) && body[i] != ',' && body[i] != '\n' && body[i] != '\r' {
			i++
		}
		return strings.TrimSpace(body[start:i])
	}
}

// cleanTitle removes capitalization braces and de-escapes common sequences.
func cleanTitle(title string) string {
	if title == "" {
		return ""
	}
	title = strings.NewReplacer("{", "", "}", "").Replace(title)
	title = strings.NewReplacer(`\&`, "&", `\%`, "%", `\_`, "_").Replace(title)
	title = regexp.MustCompile(`\\[a-zA-Z]+`).ReplaceAllString(title, "")
	return strings.TrimSpace(regexp.MustCompile(`\s+`).ReplaceAllString(title, " "))
}

// CandidateTitles derives title candidates from a filename stem: the raw
// stem plus suffixes obtained by stripping up to three leading hyphen
// segments (download tools prefix stems with venue or year segments).
// Candidates are deduplicated after normalization, keeping first occurrence.
func CandidateTitles(stem string) []string {
	base := strings.TrimSpace(strings.ReplaceAll(stem, "_", " "))
	candidates := []string{base}
	if strings.Contains(stem, "-") {
		parts := strings.Split(stem, "-")
		limit := len(parts)
		if limit > 4 {
			limit = 4
		}
		for i := 1; i < limit; i++ {
			suffix := strings.Join(parts[i:], "-")
			candidates = append(candidates, strings.TrimSpace(strings.ReplaceAll(suffix, "_", " ")))
		}
	}

	seen := make(map[string]bool)
	var out []string
	for _, c := range candidates {
		norm := match.Normalize(c)
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		out = append(out, c)
	}
	return out
}

// Match returns the best-scoring entry for the filename stem, or (nil, 0)
// when the bibliography is empty. The caller decides acceptance against its
// threshold; Match itself never rejects.
func Match(stem string, entries []Entry) (*Entry, float64) {
	var best *Entry
	bestScore := 0.0
	for _, cand := range CandidateTitles(stem) {
		candNorm := match.Normalize(cand)
		for i := range entries {
			if entries[i].TitleNorm == "" {
				continue
			}
			if score := match.ScoreNormalized(candNorm, entries[i].TitleNorm); score > bestScore {
				bestScore = score
				best = &entries[i]
			}
		}
	}
	return best, bestScore
}
