// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package filter

import (
	"fmt"
	"strings"

	"github.com/pdiddy/survey-engine/pkg/types"
)

// Entry clip limits for the digest. The verdict only needs the gist, and a
// bounded digest keeps the prompt (and evidence search space) small.
const (
	maxRepEntries = 4
	maxCogEntries = 6
	maxAppEntries = 6
)

// Digest flattens a record into the fixed TITLE/METHOD/REP/COG/APP layout
// the verdict prompt quotes from. Evidence strings are validated against
// exactly this text, so it is the whole world the model may cite.
func Digest(rec *types.CanonicalRecord) string {
	var lines []string
	lines = append(lines,
		"TITLE: "+rec.Paper.Title,
		"METHOD: "+rec.Paper.MethodName,
		"REP:",
	)
	for i, e := range rec.Representation {
		if i >= maxRepEntries {
			break
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", e.Subsubsection, e.Summary))
	}
	lines = append(lines, "COG:")
	for i, e := range rec.Cognition {
		if i >= maxCogEntries {
			break
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", e.Subsubsection, e.Summary))
	}
	lines = append(lines, "APP:")
	for i, e := range rec.Application {
		if i >= maxAppEntries {
			break
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", e.Task, e.Summary))
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
