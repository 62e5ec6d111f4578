// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package annotate

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/survey-engine/internal/bib"
	"github.com/pdiddy/survey-engine/internal/llm"
	"github.com/pdiddy/survey-engine/internal/store"
	"github.com/pdiddy/survey-engine/internal/textsource"
	"github.com/pdiddy/survey-engine/pkg/types"
)

const bibText = `@article{smith2024mol,
  title = {Molecular Language Models for Chemistry},
  year = {2024}
}
@article{jones2023graph,
  title = {Graph Projectors for Molecule Text Alignment},
  year = {2023}
}
`

// validCompletion is a well-formed annotation the mock backend returns.
const validCompletion = `<json>{
  "paper": {"bib_key": "x", "title": "x", "method_name": "MolTest"},
  "representation": [
    {"subsection": "Linguistic Linearization: The Grammar of Chemistry",
     "subsubsection": "Adaptive Tokenization Granularity",
     "summary": "SMILES tokenization", "details": ["d1", "d2"], "contributions": []}
  ],
  "cognition": [
    {"subsection": "Internalization: Cultivating Parametric Chemical Intuition",
     "subsubsection": "Imbibing Chemical Syntax and Semantics",
     "summary": "pretraining on SMILES corpora with cross-entropy loss",
     "details": ["d"], "contributions": [],
     "training_data": "ZINC", "objective_or_loss": "cross-entropy", "signals_or_tools": "none"}
  ],
  "application": [
    {"task": "Deciphering Hidden Properties via Discriminative Inference",
     "summary": "property prediction", "datasets": ["MoleculeNet"],
     "metrics_or_results": ["ROC-AUC up"], "scientific_findings": []}
  ]
}</json>`

type mockBackend struct {
	apiKey  string
	content string
	err     error
	calls   *int
}

func (m *mockBackend) Complete(_ context.Context, _ llm.ChatRequest) (llm.ChatResponse, error) {
	if m.calls != nil {
		*m.calls++
	}
	if m.err != nil {
		return llm.ChatResponse{}, m.err
	}
	return llm.ChatResponse{
		Content: m.content,
		Usage:   types.Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
	}, nil
}

func writeBatchFixture(t *testing.T) (cfg types.AnnotateConfig, paperDir string) {
	t.Helper()
	root := t.TempDir()
	paperDir = filepath.Join(root, "papers")
	require.NoError(t, os.MkdirAll(paperDir, 0o755))

	for _, name := range []string{
		"Molecular Language Models for Chemistry",
		"Quantum Gravity Holography",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(paperDir, name+".pdf"), []byte("%PDF-1.4"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(paperDir, name+".txt"), []byte("body of "+name), 0o644))
	}

	bibFile := filepath.Join(root, "ref.bib")
	require.NoError(t, os.WriteFile(bibFile, []byte(bibText), 0o644))

	credFile := filepath.Join(root, "keys.txt")
	require.NoError(t, os.WriteFile(credFile, []byte("sk-one\nsk-two\n"), 0o644))

	cfg = types.AnnotateConfig{
		ServiceConfig: types.ServiceConfig{
			MaxRetries:      1,
			CredentialsFile: credFile,
		},
		PaperDirs:  []string{paperDir},
		OutputDir:  filepath.Join(root, "out"),
		BibFile:    bibFile,
		MaxWorkers: 2,
	}
	return cfg, paperDir
}

func TestIdentity(t *testing.T) {
	entries := bib.Parse(bibText)
	th := types.DefaultThresholds()

	key, title := Identity("/x/Molecular Language Models for Chemistry.pdf", entries, th)
	assert.Equal(t, "smith2024mol", key)
	assert.Equal(t, "Molecular Language Models for Chemistry", title)

	key, title = Identity("/x/Quantum Gravity Holography.pdf", entries, th)
	assert.Empty(t, key)
	assert.Equal(t, "Quantum Gravity Holography", title)
}

func TestRunAnnotatesAndResumes(t *testing.T) {
	cfg, _ := writeBatchFixture(t)
	var out bytes.Buffer
	factory := func(apiKey string) llm.Backend {
		return &mockBackend{apiKey: apiKey, content: validCompletion}
	}
	src := &textsource.Cached{}

	summary, err := Run(context.Background(), cfg, types.DefaultThresholds(), factory, src, &out)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)

	st := store.New(cfg.OutputDir)
	assert.True(t, st.Exists("smith2024mol", store.Main))
	assert.True(t, st.Exists("Quantum_Gravity_Holography", store.Main))

	rec, err := st.Load("smith2024mol", store.Main)
	require.NoError(t, err)
	assert.Equal(t, "smith2024mol", rec.Paper.BibKey)
	assert.Equal(t, "Molecular Language Models for Chemistry", rec.Paper.Title)
	assert.Equal(t, "MolTest", rec.Paper.MethodName)
	assert.Equal(t, 30, rec.Usage.TotalTokens)

	// rerun resumes: everything already persisted is skipped
	out.Reset()
	summary, err = Run(context.Background(), cfg, types.DefaultThresholds(), factory, src, &out)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Succeeded)
	assert.Equal(t, 2, summary.Skipped)

	// force re-annotates in place
	cfg.Force = true
	summary, err = Run(context.Background(), cfg, types.DefaultThresholds(), factory, src, &out)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Succeeded)
}

func TestRunRecordsPermanentFailures(t *testing.T) {
	cfg, _ := writeBatchFixture(t)
	var out bytes.Buffer
	factory := func(apiKey string) llm.Backend {
		return &mockBackend{err: fmt.Errorf("invalid api key")}
	}

	summary, err := Run(context.Background(), cfg, types.DefaultThresholds(), factory, &textsource.Cached{}, &out)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Failed)
	assert.Len(t, summary.Failures, 2)
}

func TestRunFailsWithoutPDFs(t *testing.T) {
	cfg, _ := writeBatchFixture(t)
	cfg.PaperDirs = []string{filepath.Join(t.TempDir(), "empty")}

	_, err := Run(context.Background(), cfg, types.DefaultThresholds(), nil, &textsource.Cached{}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestRunMaxPapers(t *testing.T) {
	cfg, _ := writeBatchFixture(t)
	cfg.MaxPapers = 1
	factory := func(apiKey string) llm.Backend {
		return &mockBackend{content: validCompletion}
	}

	summary, err := Run(context.Background(), cfg, types.DefaultThresholds(), factory, &textsource.Cached{}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total())
}

func TestRepairReclassifiesStaleRecords(t *testing.T) {
	outDir := t.TempDir()
	st := store.New(outDir)
	require.NoError(t, st.EnsureDirs())

	stale := &types.CanonicalRecord{
		Paper: types.Paper{BibKey: "old2023", Title: "Old Paper"},
		Cognition: []types.CognitionEntry{
			{
				Subsection:      types.SubInternalization,
				Subsubsection:   types.StageImbibing,
				Summary:         "instruction tuning with preference pairs",
				TrainingData:    "Mol-Instructions",
				ObjectiveOrLoss: "dpo objective",
			},
		},
	}
	require.NoError(t, st.Save("old2023", store.Main, stale))

	var out bytes.Buffer
	summary, err := Repair(context.Background(), outDir, false, 4, types.DefaultThresholds(), &out)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Notes["reclassified"])

	rec, err := st.Load("old2023", store.Main)
	require.NoError(t, err)
	assert.Equal(t, types.StageExpertIntent, rec.Cognition[0].Subsubsection)

	// second pass converges
	summary, err = Repair(context.Background(), outDir, false, 4, types.DefaultThresholds(), &out)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Notes["reclassified"])
}

func TestAnnotateOneRejectsEmptyCognition(t *testing.T) {
	content := `<json>{
	  "paper": {"bib_key": "k", "title": "t"},
	  "representation": [{"subsection": "Linguistic Linearization: The Grammar of Chemistry",
	    "subsubsection": "Adaptive Tokenization Granularity", "summary": "s"}],
	  "cognition": [],
	  "application": [{"task": "Deciphering Hidden Properties via Discriminative Inference", "summary": "s"}]
	}</json>`
	backend := &mockBackend{content: content}

	_, err := AnnotateOne(context.Background(), backend, types.ServiceConfig{}, "text", "k", "t", types.DefaultThresholds())
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.True(t, vErr.Retryable())
}
