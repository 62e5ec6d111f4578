// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package coverage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/survey-engine/internal/store"
	"github.com/pdiddy/survey-engine/pkg/types"
)

func seedStore(t *testing.T) (string, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	st := store.New(dir)
	require.NoError(t, st.EnsureDirs())

	related := &types.CanonicalRecord{
		Paper: types.Paper{BibKey: "smith2024mol", Title: "Molecular LLMs"},
		Representation: []types.RepresentationEntry{
			{
				Subsection:    "Linguistic Linearization: The Grammar of Chemistry",
				Subsubsection: "Adaptive Tokenization Granularity",
				Summary:       "SMILES tokens",
			},
		},
		Cognition: []types.CognitionEntry{
			{Subsection: types.SubInternalization, Subsubsection: types.StageImbibing, Summary: "pretraining"},
		},
		Application: []types.ApplicationEntry{
			{Task: types.DefaultAppTask, Summary: "property prediction"},
		},
	}
	require.NoError(t, st.Save("smith2024mol", store.Main, related))

	exiled := &types.CanonicalRecord{
		Paper: types.Paper{Title: "Cell Atlas"},
		Cognition: []types.CognitionEntry{
			{Subsection: types.SubInternalization, Subsubsection: types.StageImbibing, Summary: "pretraining"},
		},
	}
	require.NoError(t, st.Save("cell-atlas", store.Unrelated, exiled))

	return dir, st
}

func TestRebuildIndexesBothPartitions(t *testing.T) {
	dir, st := seedStore(t)
	ix, err := Open(dir)
	require.NoError(t, err)
	defer ix.Close()

	var out bytes.Buffer
	summary, err := ix.Rebuild(context.Background(), st, &out)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Related)
	assert.Equal(t, 1, summary.Unrelated)
	assert.Equal(t, 4, summary.Entries)

	// rebuild replaces, never accumulates
	summary, err = ix.Rebuild(context.Background(), st, &out)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total())
	assert.Equal(t, 4, summary.Entries)
}

func TestCoverageListsEveryNodeWithZeros(t *testing.T) {
	dir, st := seedStore(t)
	ix, err := Open(dir)
	require.NoError(t, err)
	defer ix.Close()

	_, err = ix.Rebuild(context.Background(), st, &bytes.Buffer{})
	require.NoError(t, err)

	nodes, err := ix.Coverage(context.Background())
	require.NoError(t, err)

	wantNodes := 0
	for _, subs := range types.RepSubsections {
		wantNodes += len(subs)
	}
	for _, subs := range types.CogSubsections {
		wantNodes += len(subs)
	}
	wantNodes += len(types.AppTasks)
	require.Len(t, nodes, wantNodes)

	covered := 0
	for _, n := range nodes {
		switch {
		case n.Subsubsection == "Adaptive Tokenization Granularity",
			n.Subsubsection == types.StageImbibing && n.Section == sectionCognition,
			n.Subsubsection == types.DefaultAppTask:
			assert.Equal(t, 1, n.Papers, "node %q", n.Subsubsection)
			covered++
		default:
			assert.Equal(t, 0, n.Papers, "node %q", n.Subsubsection)
		}
	}
	assert.Equal(t, 3, covered, "unrelated papers must not count toward coverage")
}

func TestBuildReport(t *testing.T) {
	dir, st := seedStore(t)
	ix, err := Open(dir)
	require.NoError(t, err)
	defer ix.Close()

	_, err = ix.Rebuild(context.Background(), st, &bytes.Buffer{})
	require.NoError(t, err)

	report, err := ix.BuildReport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.TotalPapers)
	assert.Equal(t, 1, report.RelatedPapers)
	assert.Equal(t, len(report.Nodes)-3, report.Uncovered)
	assert.NotEmpty(t, report.GeneratedAt)
}

func TestRunExportsYAML(t *testing.T) {
	dir, _ := seedStore(t)
	exportPath := filepath.Join(dir, "coverage.yaml")

	var out bytes.Buffer
	report, err := Run(context.Background(), types.CoverageConfig{
		OutputDir:  dir,
		ExportFile: exportPath,
	}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "uncovered")

	data, err := os.ReadFile(exportPath)
	require.NoError(t, err)
	var decoded Report
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, report.RelatedPapers, decoded.RelatedPapers)
	assert.Len(t, decoded.Nodes, len(report.Nodes))
}
