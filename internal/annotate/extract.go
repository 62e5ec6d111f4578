// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package annotate

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/pdiddy/survey-engine/pkg/types"
)

// ParseError marks a completion whose JSON payload could not be recovered.
// Parse failures are usually transient model glitches, so they are retried.
type ParseError struct {
	Msg string
	Err error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parsing model output: %s: %v", e.Msg, e.Err)
	}
	return "parsing model output: " + e.Msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// Retryable reports true: a fresh sample usually yields parseable JSON.
func (e *ParseError) Retryable() bool { return true }

var jsonBlockRE = regexp.MustCompile(`(?is)<json>(.*?)</json>`)

// ExtractJSONBlock recovers the JSON payload from a raw completion. The
// <json> wrapper wins; otherwise Markdown code fences are stripped and the
// outermost brace pair is taken.
func ExtractJSONBlock(content string) string {
	if m := jsonBlockRE.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1])
	}

	text := strings.TrimSpace(content)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimPrefix(text, "json")
		text = strings.TrimSpace(text)
	}
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end > start {
		return strings.TrimSpace(text[start : end+1])
	}
	return text
}

// taxonList accepts a taxonomy field the model emitted as either a single
// string or a list of strings.
type taxonList []string

func (t *taxonList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*t = []string{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*t = many
	return nil
}

// Raw mirrors the model's JSON shape before any taxonomy repair. Taxonomy
// fields tolerate string-or-list; everything else decodes strictly.
type Raw struct {
	Paper          types.Paper `json:"paper"`
	Representation []rawEntry  `json:"representation"`
	Cognition      []rawEntry  `json:"cognition"`
	Application    []rawApp    `json:"application"`
}

type rawEntry struct {
	Subsection      string    `json:"subsection"`
	Subsubsection   taxonList `json:"subsubsection"`
	Summary         string    `json:"summary"`
	Details         []string  `json:"details"`
	Contributions   []string  `json:"contributions"`
	TrainingData    string    `json:"training_data"`
	ObjectiveOrLoss string    `json:"objective_or_loss"`
	SignalsOrTools  string    `json:"signals_or_tools"`
}

type rawApp struct {
	Task               string   `json:"task"`
	Summary            string   `json:"summary"`
	Datasets           []string `json:"datasets"`
	MetricsOrResults   []string `json:"metrics_or_results"`
	ScientificFindings []string `json:"scientific_findings"`
}

// Decode extracts and decodes the JSON payload of one completion.
func Decode(content string) (*Raw, error) {
	block := ExtractJSONBlock(content)
	if block == "" {
		return nil, &ParseError{Msg: "no JSON payload in completion"}
	}
	var raw Raw
	if err := json.Unmarshal([]byte(block), &raw); err != nil {
		return nil, &ParseError{Msg: "invalid JSON payload", Err: err}
	}
	return &raw, nil
}

// ToRecord expands a raw decode into the canonical shape. An entry whose
// subsubsection was a list fans out into one entry per element, so canonical
// records always carry plain strings.
func ToRecord(raw *Raw) *types.CanonicalRecord {
	rec := &types.CanonicalRecord{Paper: raw.Paper}

	for _, e := range raw.Representation {
		for _, subsub := range expandTaxa(e.Subsubsection) {
			rec.Representation = append(rec.Representation, types.RepresentationEntry{
				Subsection:    strings.TrimSpace(e.Subsection),
				Subsubsection: subsub,
				Summary:       strings.TrimSpace(e.Summary),
				Details:       e.Details,
				Contributions: e.Contributions,
			})
		}
	}
	for _, e := range raw.Cognition {
		for _, subsub := range expandTaxa(e.Subsubsection) {
			rec.Cognition = append(rec.Cognition, types.CognitionEntry{
				Subsection:      strings.TrimSpace(e.Subsection),
				Subsubsection:   subsub,
				Summary:         strings.TrimSpace(e.Summary),
				Details:         e.Details,
				Contributions:   e.Contributions,
				TrainingData:    strings.TrimSpace(e.TrainingData),
				ObjectiveOrLoss: strings.TrimSpace(e.ObjectiveOrLoss),
				SignalsOrTools:  strings.TrimSpace(e.SignalsOrTools),
			})
		}
	}
	for _, a := range raw.Application {
		rec.Application = append(rec.Application, types.ApplicationEntry{
			Task:               strings.TrimSpace(a.Task),
			Summary:            strings.TrimSpace(a.Summary),
			Datasets:           a.Datasets,
			MetricsOrResults:   a.MetricsOrResults,
			ScientificFindings: a.ScientificFindings,
		})
	}
	return rec
}

// expandTaxa trims and deduplicates the fan-out list; an absent field still
// yields one entry so the normalizer can mark it unspecified.
func expandTaxa(list taxonList) []string {
	var out []string
	seen := map[string]bool{}
	for _, s := range list {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	if len(out) == 0 {
		return []string{""}
	}
	return out
}
