// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/survey-engine/pkg/types"
)

func testRecord(bibKey, title string) *types.CanonicalRecord {
	return &types.CanonicalRecord{
		Paper: types.Paper{BibKey: bibKey, Title: title},
		Representation: []types.RepresentationEntry{
			{
				Subsection:    "1D Sequence",
				Subsubsection: "SMILES-Based Representation",
				Summary:       "SMILES strings as the molecular interface.",
			},
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.EnsureDirs())

	rec := testRecord("smith2024mol", "Molecular Language Models")
	require.NoError(t, s.Save("smith2024mol", Main, rec))

	assert.True(t, s.Exists("smith2024mol", Main))
	assert.False(t, s.Exists("smith2024mol", Unrelated))

	got, err := s.Load("smith2024mol", Main)
	require.NoError(t, err)
	assert.Equal(t, "Molecular Language Models", got.Paper.Title)
	require.Len(t, got.Representation, 1)
	assert.Equal(t, "SMILES-Based Representation", got.Representation[0].Subsubsection)

	mindmap, err := os.ReadFile(s.MindmapPath("smith2024mol", Main))
	require.NoError(t, err)
	assert.Contains(t, string(mindmap), "# smith2024mol: Molecular Language Models")
}

func TestSaveOverwritesInPlace(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.EnsureDirs())

	require.NoError(t, s.Save("p1", Main, testRecord("p1", "First Title")))
	require.NoError(t, s.Save("p1", Main, testRecord("p1", "Second Title")))

	ids, err := s.List(Main)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, ids)

	got, err := s.Load("p1", Main)
	require.NoError(t, err)
	assert.Equal(t, "Second Title", got.Paper.Title)
}

func TestLoadToleratesTrailingGarbage(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.EnsureDirs())
	require.NoError(t, s.Save("p1", Main, testRecord("p1", "Clean Title")))

	path := s.JSONPath("p1", Main)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, append(data, []byte("\nleftover stream text")...), 0o644))

	got, err := s.Load("p1", Main)
	require.NoError(t, err)
	assert.Equal(t, "Clean Title", got.Paper.Title)
}

func TestLoadRejectsBrokenJSON(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.EnsureDirs())
	require.NoError(t, os.WriteFile(s.JSONPath("bad", Main), []byte("{not json"), 0o644))

	_, err := s.Load("bad", Main)
	assert.Error(t, err)
}

func TestRelocateMovesBothFiles(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.EnsureDirs())
	require.NoError(t, s.Save("p1", Main, testRecord("p1", "Borderline Paper")))

	require.NoError(t, s.Relocate("p1", Main, Unrelated))
	assert.False(t, s.Exists("p1", Main))
	assert.True(t, s.Exists("p1", Unrelated))
	_, err := os.Stat(s.MindmapPath("p1", Unrelated))
	assert.NoError(t, err)

	// reversal converges on the main partition again
	require.NoError(t, s.Relocate("p1", Unrelated, Main))
	assert.True(t, s.Exists("p1", Main))
}

func TestRelocateReplacesStaleDestination(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.EnsureDirs())
	require.NoError(t, s.Save("p1", Main, testRecord("p1", "Fresh Verdict")))
	require.NoError(t, s.Save("p1", Unrelated, testRecord("p1", "Stale Verdict")))

	require.NoError(t, s.Relocate("p1", Main, Unrelated))

	got, err := s.Load("p1", Unrelated)
	require.NoError(t, err)
	assert.Equal(t, "Fresh Verdict", got.Paper.Title)
}

func TestListSortedAndSkipsStray(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.EnsureDirs())
	require.NoError(t, s.Save("zeta", Main, testRecord("zeta", "Z")))
	require.NoError(t, s.Save("alpha", Main, testRecord("alpha", "A")))
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), paperJSONDir, "notes.txt"), []byte("x"), 0o644))

	ids, err := s.List(Main)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, ids)
}

func TestAppendAuditConcurrent(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.EnsureDirs())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = s.AppendAudit(map[string]any{"paper": n, "related": true})
		}(i)
	}
	wg.Wait()

	data, err := os.ReadFile(s.AuditLogPath())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 20)
	for _, line := range lines {
		assert.True(t, strings.HasPrefix(line, "{"))
		assert.True(t, strings.HasSuffix(line, "}"))
	}
}

func TestResetAggregated(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.EnsureDirs())
	stale := filepath.Join(s.AggregatedRoot(), "old-section")
	require.NoError(t, os.MkdirAll(stale, 0o755))

	require.NoError(t, s.ResetAggregated())
	_, err := os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(s.AggregatedRoot())
	assert.NoError(t, err)
}

func TestSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"smith2024mol", "smith2024mol"},
		{"A Title: With / Slashes?", "A_Title_With_Slashes"},
		{"  spaced   out  ", "spaced_out"},
		{"", "unknown"},
		{"///", "unknown"},
		{strings.Repeat("x", 200), strings.Repeat("x", 120)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Slug(tt.in), "slug of %q", tt.in)
	}
}

func TestPaperID(t *testing.T) {
	assert.Equal(t, "smith2024mol", PaperID("smith2024mol", "2401.01234v2"))
	assert.Equal(t, "2401.01234v2", PaperID("", "2401.01234v2"))
}
