// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package render produces the XMind-importable mindmap markdown derived from
// canonical records: one file per paper, plus one merged file per taxonomy
// node after aggregation.
package render

import (
	"fmt"
	"strings"

	"github.com/pdiddy/survey-engine/pkg/types"
)

// Paper renders one canonical record as a <mindmap> block, sections in
// outline order, skipping sections the record has no entries for.
func Paper(rec *types.CanonicalRecord) string {
	var b builder

	b.line(0, "<mindmap>")
	b.raw("## " + strings.Trim(rec.Paper.BibKey+" — "+rec.Paper.Title, " —"))
	if rec.Paper.MethodName != "" {
		b.line(0, "- Method/Framework: "+rec.Paper.MethodName)
	}

	b.line(0, "- "+types.SectionRepresentation)
	for _, subsection := range types.RepSubsectionOrder {
		first := true
		for i := range rec.Representation {
			entry := &rec.Representation[i]
			if entry.Subsection != subsection {
				continue
			}
			if first {
				b.line(1, "- "+subsection)
				first = false
			}
			b.line(2, "- "+orUnspecified(entry.Subsubsection))
			b.summaryLine(3, entry.Summary)
			b.bullets(3, "Details", entry.Details)
			b.numbered(3, "Contribution", entry.Contributions)
		}
	}

	b.line(0, "- "+types.SectionCognition)
	for _, subsection := range types.CogSubsectionOrder {
		first := true
		for i := range rec.Cognition {
			entry := &rec.Cognition[i]
			if entry.Subsection != subsection {
				continue
			}
			if first {
				b.line(1, "- "+subsection)
				first = false
			}
			b.line(2, "- "+orUnspecified(entry.Subsubsection))
			b.summaryLine(3, entry.Summary)
			b.bullets(3, "Details", entry.Details)
			b.numbered(3, "Contribution", entry.Contributions)
			b.field(3, "Training data", entry.TrainingData)
			b.field(3, "Objective/Loss", entry.ObjectiveOrLoss)
			b.field(3, "Signals/Tools", entry.SignalsOrTools)
		}
	}

	b.line(0, "- "+types.SectionApplication)
	for _, task := range types.AppTasks {
		first := true
		for i := range rec.Application {
			entry := &rec.Application[i]
			if entry.Task != task {
				continue
			}
			if first {
				b.line(1, "- "+task)
				first = false
			}
			b.summaryLine(2, entry.Summary)
			b.bullets(2, "Datasets", entry.Datasets)
			b.bullets(2, "Metrics/Results", entry.MetricsOrResults)
			b.bullets(2, "Scientific findings", entry.ScientificFindings)
		}
	}

	b.line(0, "</mindmap>")
	return b.String()
}

// PaperGroup is one paper's contribution to an aggregated taxonomy view.
// Exactly one of the entry slices is populated, matching the view's section.
type PaperGroup struct {
	ID             string
	Paper          types.Paper
	Representation []types.RepresentationEntry
	Cognition      []types.CognitionEntry
	Application    []types.ApplicationEntry
}

// Aggregated renders one taxonomy node's merged view. Groups must already be
// in their deterministic (bib_key, title, id) order.
func Aggregated(section, subsection, subsub string, groups []PaperGroup) string {
	var b builder
	b.raw(fmt.Sprintf("# %s / %s / %s", section, subsection, subsub))
	b.raw("")
	b.line(0, "<mindmap>")
	b.raw("## " + subsub)

	for _, g := range groups {
		citeKey := g.Paper.BibKey
		if citeKey == "" {
			citeKey = g.ID
		}
		displayTitle := g.Paper.Title
		if displayTitle == "" {
			displayTitle = g.ID
		}
		b.line(0, "- "+displayTitle)
		b.line(1, "- BibTeXKey: "+citeKey)

		for i := range g.Representation {
			entry := &g.Representation[i]
			b.summaryLine(1, entry.Summary)
			b.bullets(1, "Details", entry.Details)
			b.numbered(1, "Contribution", entry.Contributions)
		}
		for i := range g.Cognition {
			entry := &g.Cognition[i]
			b.summaryLine(1, entry.Summary)
			b.bullets(1, "Details", entry.Details)
			b.numbered(1, "Contribution", entry.Contributions)
			b.field(1, "Training data", entry.TrainingData)
			b.field(1, "Objective/Loss", entry.ObjectiveOrLoss)
			b.field(1, "Signals/Tools", entry.SignalsOrTools)
		}
		for i := range g.Application {
			entry := &g.Application[i]
			b.summaryLine(1, entry.Summary)
			b.bullets(1, "Datasets", entry.Datasets)
			b.bullets(1, "Metrics/Results", entry.MetricsOrResults)
			b.bullets(1, "Scientific findings", entry.ScientificFindings)
		}
	}

	b.line(0, "</mindmap>")
	return b.String()
}

func orUnspecified(s string) string {
	if strings.TrimSpace(s) == "" {
		return types.Unspecified
	}
	return s
}

// builder accumulates mindmap lines with 4-space indent levels.
type builder struct {
	lines []string
}

func (b *builder) raw(s string) {
	b.lines = append(b.lines, s)
}

func (b *builder) line(level int, s string) {
	b.lines = append(b.lines, strings.Repeat("    ", level)+s)
}

func (b *builder) summaryLine(level int, summary string) {
	if summary != "" {
		b.line(level, "- Summary: "+summary)
	}
}

func (b *builder) field(level int, label, value string) {
	if value != "" {
		b.line(level, fmt.Sprintf("- %s: %s", label, value))
	}
}

func (b *builder) bullets(level int, label string, items []string) {
	items = nonEmpty(items)
	if len(items) == 0 {
		return
	}
	b.line(level, "- "+label+":")
	for _, item := range items {
		b.line(level+1, "- "+item)
	}
}

func (b *builder) numbered(level int, label string, items []string) {
	items = nonEmpty(items)
	if len(items) == 0 {
		return
	}
	b.line(level, "- "+label+":")
	for i, item := range items {
		b.line(level+1, fmt.Sprintf("%d. %s", i+1, item))
	}
}

func (b *builder) String() string {
	return strings.TrimSpace(strings.Join(b.lines, "\n")) + "\n"
}

func nonEmpty(items []string) []string {
	var out []string
	for _, item := range items {
		if strings.TrimSpace(item) != "" {
			out = append(out, item)
		}
	}
	return out
}
