// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package bib

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleBib = `
@article{abc123,
  title = {Foo Bar Study},
  author = {Doe, Jane},
  year = {2024}
}

@inproceedings{smith2023graph,
  author = {Smith, Alex},
  title = "Graph Neural Networks for {Molecular} Property Prediction",
  booktitle = {Proc. of Something}
}

@misc{nokey-broken
this entry has no key comma and is skipped

@article{bare2022,
  title = BareWordTitle,
  year = 2022
}
`

func TestParse(t *testing.T) {
	entries := Parse(sampleBib)
	require.Len(t, entries, 3)

	assert.Equal(t, "abc123", entries[0].Key)
	assert.Equal(t, "Foo Bar Study", entries[0].TitleClean)
	assert.Equal(t, "foo bar study", entries[0].TitleNorm)

	assert.Equal(t, "smith2023graph", entries[1].Key)
	assert.Equal(t, "Graph Neural Networks for Molecular Property Prediction", entries[1].TitleClean)

	assert.Equal(t, "bare2022", entries[2].Key)
	assert.Equal(t, "BareWordTitle", entries[2].TitleClean)
}

func TestParseSkipsMalformedEntries(t *testing.T) {
	entries := Parse("@article{\n}\n@book no-braces-at-all\n")
	assert.Empty(t, entries)
}

func TestExtractFieldEscapedQuote(t *testing.T) {
	body := ` title = "A \"quoted\" phrase", year = 2020`
	assert.Equal(t, `A \"quoted\" phrase`, extractField(body, "title"))
}

func TestExtractFieldNestedBraces(t *testing.T) {
	body := ` title = {Outer {Inner} Rest}, year = 2020`
	assert.Equal(t, "Outer {Inner} Rest", extractField(body, "title"))
}

func TestCleanTitle(t *testing.T) {
	assert.Equal(t, "Salt & Pepper", cleanTitle(`Salt \& Pepper`))
	assert.Equal(t, "Molecular LLMs", cleanTitle(`Molecular {LLM}s`))
}

func TestCandidateTitles(t *testing.T) {
	cands := CandidateTitles("nature-2024-foo_bar_study")
	require.NotEmpty(t, cands)
	assert.Equal(t, "nature 2024 foo bar study", cands[0])
	assert.Contains(t, cands, "2024-foo bar study")
	assert.Contains(t, cands, "foo bar study")
}

func TestCandidateTitlesDeduplicates(t *testing.T) {
	cands := CandidateTitles("foo-foo")
	// "foo-foo" -> "foo foo" plus suffix "foo"; both unique after
	// normalization.
	assert.Len(t, cands, 2)
}

func TestMatchAcceptsCloseTitle(t *testing.T) {
	entries := Parse(sampleBib)

	entry, score := Match("foo-bar-study", entries)
	require.NotNil(t, entry)
	assert.Equal(t, "abc123", entry.Key)
	assert.GreaterOrEqual(t, score, 0.58)
}

func TestMatchDeterministic(t *testing.T) {
	entries := Parse(sampleBib)
	e1, s1 := Match("graph_neural_networks_for_molecular_property_prediction", entries)
	e2, s2 := Match("graph_neural_networks_for_molecular_property_prediction", entries)
	require.NotNil(t, e1)
	require.NotNil(t, e2)
	assert.Equal(t, e1.Key, e2.Key)
	assert.Equal(t, s1, s2)
}

func TestMatchEmptyBibliography(t *testing.T) {
	entry, score := Match("anything", nil)
	assert.Nil(t, entry)
	assert.Equal(t, 0.0, score)
}

func TestLoadMissingFile(t *testing.T) {
	entries, err := Load(t.TempDir() + "/absent.bib")
	require.NoError(t, err)
	assert.Nil(t, entries)
}
