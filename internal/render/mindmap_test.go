// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/survey-engine/pkg/types"
)

func sampleRecord() *types.CanonicalRecord {
	return &types.CanonicalRecord{
		Paper: types.Paper{
			BibKey:     "abc123",
			Title:      "Foo Bar Study",
			MethodName: "FooNet",
		},
		Representation: []types.RepresentationEntry{
			{
				Subsection:    "Linguistic Linearization: The Grammar of Chemistry",
				Subsubsection: "Syntax-Robust Linearization",
				Summary:       "SMILES with robust tokenization",
				Details:       []string{"detail one", ""},
				Contributions: []string{"first contribution"},
			},
		},
		Cognition: []types.CognitionEntry{
			{
				Subsection:      types.SubInternalization,
				Subsubsection:   types.StageImbibing,
				Summary:         "pretrained on reaction corpus",
				TrainingData:    "USPTO reactions",
				ObjectiveOrLoss: "next-token prediction",
				SignalsOrTools:  types.NoSignals,
			},
		},
		Application: []types.ApplicationEntry{
			{
				Task:     types.DefaultAppTask,
				Summary:  "property prediction",
				Datasets: []string{"MoleculeNet"},
			},
		},
	}
}

func TestPaper(t *testing.T) {
	out := Paper(sampleRecord())

	assert.True(t, strings.HasPrefix(out, "<mindmap>\n## abc123 — Foo Bar Study"))
	assert.True(t, strings.HasSuffix(out, "</mindmap>\n"))
	assert.Contains(t, out, "- Method/Framework: FooNet")
	assert.Contains(t, out, "- "+types.SectionRepresentation)
	assert.Contains(t, out, "- Syntax-Robust Linearization")
	assert.Contains(t, out, "- Summary: SMILES with robust tokenization")
	assert.Contains(t, out, "1. first contribution")
	assert.Contains(t, out, "- Training data: USPTO reactions")
	assert.Contains(t, out, "- "+types.DefaultAppTask)
	assert.Contains(t, out, "- MoleculeNet")
	// Blank detail entries are dropped.
	lines := strings.Split(out, "\n")
	for _, line := range lines {
		assert.NotEqual(t, "- ", strings.TrimSpace(line))
	}
}

func TestPaperWithoutKey(t *testing.T) {
	rec := sampleRecord()
	rec.Paper.BibKey = ""
	out := Paper(rec)
	assert.Contains(t, out, "## Foo Bar Study")
	assert.NotContains(t, out, "## —")
}

func TestPaperEmptySubsubsection(t *testing.T) {
	rec := sampleRecord()
	rec.Representation[0].Subsubsection = ""
	out := Paper(rec)
	assert.Contains(t, out, "- "+types.Unspecified)
}

func TestAggregated(t *testing.T) {
	groups := []PaperGroup{
		{
			ID:    "abc123",
			Paper: types.Paper{BibKey: "abc123", Title: "Foo Bar Study"},
			Cognition: []types.CognitionEntry{
				{
					Subsection:    types.SubInternalization,
					Subsubsection: types.StageImbibing,
					Summary:       "pretraining summary",
				},
			},
		},
		{
			ID:    "unkeyed_paper",
			Paper: types.Paper{Title: "Another Work"},
			Cognition: []types.CognitionEntry{
				{Summary: "second summary"},
			},
		},
	}

	out := Aggregated("Cognition", types.SubInternalization, types.StageImbibing, groups)
	require.True(t, strings.HasPrefix(out, "# Cognition / "+types.SubInternalization+" / "+types.StageImbibing))
	assert.Contains(t, out, "## "+types.StageImbibing)
	assert.Contains(t, out, "- Foo Bar Study")
	assert.Contains(t, out, "- BibTeXKey: abc123")
	// Papers without a bib key fall back to the record ID as cite key.
	assert.Contains(t, out, "- BibTeXKey: unkeyed_paper")
	assert.Contains(t, out, "- Summary: second summary")
}
