// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the shared data model: the survey taxonomy, the
// canonical per-paper annotation record, relevance verdicts, and per-stage
// configuration.
package types

// Paper identifies a document. BibKey is assigned at most once by the
// bibliography matcher and never changed afterward; when no bibliography
// entry clears the acceptance threshold it stays empty and Title falls back
// to the filename stem.
type Paper struct {
	BibKey     string `json:"bib_key" yaml:"bib_key"`
	Title      string `json:"title" yaml:"title"`
	MethodName string `json:"method_name" yaml:"method_name"`
}

// RepresentationEntry classifies how molecular information enters the model.
type RepresentationEntry struct {
	Subsection    string   `json:"subsection" yaml:"subsection"`
	Subsubsection string   `json:"subsubsection" yaml:"subsubsection"`
	Summary       string   `json:"summary" yaml:"summary"`
	Details       []string `json:"details" yaml:"details"`
	Contributions []string `json:"contributions" yaml:"contributions"`
}

// CognitionEntry classifies a knowledge-acquisition or reasoning mechanism.
// TrainingData and ObjectiveOrLoss default to Unspecified, SignalsOrTools to
// NoSignals, so validation never has to probe for missing keys.
type CognitionEntry struct {
	Subsection      string   `json:"subsection" yaml:"subsection"`
	Subsubsection   string   `json:"subsubsection" yaml:"subsubsection"`
	Summary         string   `json:"summary" yaml:"summary"`
	Details         []string `json:"details" yaml:"details"`
	Contributions   []string `json:"contributions" yaml:"contributions"`
	TrainingData    string   `json:"training_data" yaml:"training_data"`
	ObjectiveOrLoss string   `json:"objective_or_loss" yaml:"objective_or_loss"`
	SignalsOrTools  string   `json:"signals_or_tools" yaml:"signals_or_tools"`
}

// ApplicationEntry classifies a downstream chemical task.
type ApplicationEntry struct {
	Task               string   `json:"task" yaml:"task"`
	Summary            string   `json:"summary" yaml:"summary"`
	Datasets           []string `json:"datasets" yaml:"datasets"`
	MetricsOrResults   []string `json:"metrics_or_results" yaml:"metrics_or_results"`
	ScientificFindings []string `json:"scientific_findings" yaml:"scientific_findings"`
}

// Usage records completion-service token counts for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens" yaml:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens" yaml:"completion_tokens"`
	TotalTokens      int `json:"total_tokens" yaml:"total_tokens"`
}

// CanonicalRecord is the validated, persisted per-paper annotation. One file
// per paper, keyed by a slug of the bib key (or title stem); later repair
// passes overwrite it in place under the same key.
type CanonicalRecord struct {
	Paper          Paper                 `json:"paper" yaml:"paper"`
	Representation []RepresentationEntry `json:"representation" yaml:"representation"`
	Cognition      []CognitionEntry      `json:"cognition" yaml:"cognition"`
	Application    []ApplicationEntry    `json:"application" yaml:"application"`
	Usage          Usage                 `json:"usage" yaml:"usage"`
	Raw            string                `json:"raw,omitempty" yaml:"raw,omitempty"`
}

// RelevanceVerdict is the completion service's answer to "is this paper
// in-domain", with evidence strings that must be verifiable against the
// record digest. Verdicts are transient: they live in the audit log and in
// the side effect of relocating a record between partitions.
type RelevanceVerdict struct {
	Related       bool     `json:"related"`
	Confidence    float64  `json:"confidence"`
	PrimaryDomain string   `json:"primary_domain"`
	Reason        string   `json:"reason"`
	Evidence      []string `json:"evidence"`
	Usage         Usage    `json:"usage,omitempty"`
	Fallback      string   `json:"fallback,omitempty"`
}
