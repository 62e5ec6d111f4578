// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package filter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/pdiddy/survey-engine/internal/annotate"
	"github.com/pdiddy/survey-engine/internal/match"
	"github.com/pdiddy/survey-engine/pkg/types"
)

// verdictSystemPrompt frames the verdict calls.
const verdictSystemPrompt = "You only judge domain relevance and output strict JSON."

// verdictPromptTmpl asks for a relevance verdict grounded in the digest: the
// model may only reason from INPUT and must copy its evidence phrases from
// it verbatim.
var verdictPromptTmpl = template.Must(template.New("verdict").Parse(`You are a strict paper-relevance judge. I am writing a survey on molecular representation and molecular LLMs, generation, and reasoning in the molecular/chemistry domain.

Question: is this paper relevant to molecules and chemistry (small molecules, chemical reactions, drug discovery, molecular properties, molecular generation, computational chemistry, materials chemistry)?

Judging rules:
- related=true: the main subject or task involves small molecules, chemical reactions, drug discovery, molecular properties, molecular generation, synthesis planning, computational chemistry, or materials chemistry. Protein, pocket, or receptor work also counts when it serves small-molecule chemistry or drug discovery (pocket-conditioned generation, docking scores, protein-ligand binding).
- related=false: the paper is mainly genomics, transcriptomics, single-cell or cell-atlas work, disease imaging and diagnosis, pure NLP, pure vision, general AI agents, or HPC plumbing, with chemistry mentioned only in passing.

Hard constraints (anti-hallucination):
1) Judge ONLY from the INPUT below. Never bring in outside knowledge.
2) The reason must cite keywords that appear in INPUT. Never invent unrelated fields (high-energy physics, gravitational waves).
3) Give 1-3 evidence phrases copied VERBATIM from INPUT (exact substrings).

INPUT (judge only from this):
{{.Input}}

Output only the JSON, wrapped in <json>...</json>:
<json>
{
  "related": true,
  "confidence": 0.0,
  "primary_domain": "chemistry_molecule|biology_genomics|cell_biology|medical_imaging|general_ai|other",
  "reason": "one sentence, grounded in the evidence",
  "evidence": ["phrase copied from INPUT", "another phrase"]
}
</json>
`))

// BuildVerdictPrompt renders the relevance prompt for one digest.
func BuildVerdictPrompt(input string) (string, error) {
	var buf bytes.Buffer
	if err := verdictPromptTmpl.Execute(&buf, struct{ Input string }{Input: input}); err != nil {
		return "", fmt.Errorf("rendering verdict prompt: %w", err)
	}
	return buf.String(), nil
}

// allowedDomains is the closed primary_domain vocabulary; anything else is
// coerced to "other".
var allowedDomains = map[string]bool{
	"chemistry_molecule": true,
	"biology_genomics":   true,
	"cell_biology":       true,
	"medical_imaging":    true,
	"general_ai":         true,
	"other":              true,
}

// VerdictError marks an invalid verdict payload. Evidence is set when the
// failure is specifically unverifiable evidence; after the retry budget,
// those fall back to the heuristic instead of failing the paper.
type VerdictError struct {
	Msg      string
	Evidence bool
}

func (e *VerdictError) Error() string { return "validating verdict: " + e.Msg }

// Retryable reports true: a fresh sample may produce a valid verdict.
func (e *VerdictError) Retryable() bool { return true }

// rawVerdict tolerates the loose typing models produce for related and
// confidence.
type rawVerdict struct {
	Related       json.RawMessage `json:"related"`
	Confidence    json.RawMessage `json:"confidence"`
	PrimaryDomain string          `json:"primary_domain"`
	Reason        string          `json:"reason"`
	Evidence      []string        `json:"evidence"`
}

// ParseVerdict decodes and validates one verdict completion against the
// digest it was judged from. Every evidence phrase must be verifiable in
// the digest, or the whole verdict is rejected as hallucinated.
func ParseVerdict(content, input string, th types.Thresholds) (*types.RelevanceVerdict, error) {
	block := annotate.ExtractJSONBlock(content)
	if block == "" {
		return nil, &VerdictError{Msg: "no JSON payload in completion"}
	}
	var raw rawVerdict
	if err := json.Unmarshal([]byte(block), &raw); err != nil {
		return nil, &VerdictError{Msg: "invalid JSON payload: " + err.Error()}
	}

	related, err := parseRelated(raw.Related)
	if err != nil {
		return nil, err
	}

	v := &types.RelevanceVerdict{
		Related:       related,
		Confidence:    parseConfidence(raw.Confidence),
		PrimaryDomain: strings.TrimSpace(raw.PrimaryDomain),
		Reason:        strings.TrimSpace(raw.Reason),
	}
	if !allowedDomains[v.PrimaryDomain] {
		v.PrimaryDomain = "other"
	}
	if v.Reason == "" {
		return nil, &VerdictError{Msg: "missing reason"}
	}

	if len(raw.Evidence) == 0 {
		return nil, &VerdictError{Msg: "missing evidence", Evidence: true}
	}
	// Every evidence string must verify against the input; a single fabricated
	// quote rejects the whole verdict. Only then is the kept list truncated.
	for _, e := range raw.Evidence {
		e = strings.Trim(strings.TrimSpace(e), "\"'`")
		e = strings.TrimSpace(strings.TrimPrefix(e, "- "))
		if e == "" {
			continue
		}
		if !EvidenceMatches(e, input, th) {
			return nil, &VerdictError{Msg: fmt.Sprintf("evidence not found in input: %q", e), Evidence: true}
		}
		v.Evidence = append(v.Evidence, e)
	}
	if len(v.Evidence) == 0 {
		return nil, &VerdictError{Msg: "empty evidence", Evidence: true}
	}
	if len(v.Evidence) > 3 {
		v.Evidence = v.Evidence[:3]
	}
	return v, nil
}

func parseRelated(raw json.RawMessage) (bool, error) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "yes", "1":
			return true, nil
		case "false", "no", "0":
			return false, nil
		}
	}
	return false, &VerdictError{Msg: "invalid related value"}
}

func parseConfidence(raw json.RawMessage) float64 {
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0.0
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0.0
		}
		f = parsed
	}
	if f < 0 {
		return 0.0
	}
	if f > 1 {
		return 1.0
	}
	return f
}

// EvidenceMatches verifies one evidence phrase against the digest, from
// strictest to loosest: exact substring, normalized substring, token
// subset, then a fuzzy score floor.
func EvidenceMatches(evidence, input string, th types.Thresholds) bool {
	if evidence == "" || input == "" {
		return false
	}
	if strings.Contains(input, evidence) {
		return true
	}
	evNorm := match.Normalize(evidence)
	inNorm := match.Normalize(input)
	if evNorm == "" || inNorm == "" {
		return false
	}
	if strings.Contains(inNorm, evNorm) {
		return true
	}
	evTokens := strings.Fields(evNorm)
	if len(evTokens) > 0 {
		inTokens := make(map[string]bool)
		for _, tok := range strings.Fields(inNorm) {
			inTokens[tok] = true
		}
		subset := true
		for _, tok := range evTokens {
			if !inTokens[tok] {
				subset = false
				break
			}
		}
		if subset {
			return true
		}
	}
	return match.ScoreNormalized(evNorm, inNorm) >= th.Evidence
}
