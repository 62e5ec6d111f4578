// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// ServiceConfig holds shared settings for stages that call the completion
// service.
type ServiceConfig struct {
	// BaseURL is the chat-completions API base (e.g. "https://api.deepseek.com").
	BaseURL string `json:"base_url" yaml:"base_url"`

	// Model is the completion model identifier (e.g. "deepseek-chat").
	Model string `json:"model" yaml:"model"`

	// Temperature is the sampling temperature sent with each request.
	Temperature float64 `json:"temperature" yaml:"temperature"`

	// MaxTokens caps the completion length per request.
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// MaxRetries is the retry budget per document for transient failures
	// (default 6).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// CredentialsFile is a newline-delimited list of API keys. Each key gets
	// an independent concurrency cap.
	CredentialsFile string `json:"credentials_file,omitempty" yaml:"credentials_file,omitempty"`
}

// Thresholds groups the empirically chosen similarity cutoffs. They were
// tuned by inspection on the survey corpus, so they are configuration rather
// than fixed behavior.
type Thresholds struct {
	// BibAccept is the minimum score to bind a paper to a bibliography key
	// (default 0.58). False matches corrupt aggregation identity, so this
	// trades recall for precision.
	BibAccept float64 `json:"bib_accept" yaml:"bib_accept"`

	// TaxonFallback is the minimum score for nearest-taxon repair
	// (default 0.55); below it the field becomes "unspecified".
	TaxonFallback float64 `json:"taxon_fallback" yaml:"taxon_fallback"`

	// Duplicate is the minimum title similarity for treating an unkeyed
	// record as a duplicate of a keyed one during aggregation (default 0.86).
	Duplicate float64 `json:"duplicate" yaml:"duplicate"`

	// Evidence is the last-resort similarity floor for accepting a relevance
	// evidence string (default 0.70).
	Evidence float64 `json:"evidence" yaml:"evidence"`
}

// DefaultThresholds returns the tuned defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		BibAccept:     0.58,
		TaxonFallback: 0.55,
		Duplicate:     0.86,
		Evidence:      0.70,
	}
}

// AnnotateConfig holds settings for the batch annotation stage.
type AnnotateConfig struct {
	ServiceConfig `yaml:",inline"`

	// PaperDirs lists the directories scanned for PDFs.
	PaperDirs []string `json:"paper_dirs" yaml:"paper_dirs"`

	// OutputDir is the store root (contains paper_json/, paper_mindmaps/,
	// unrelated/, by_subsubsection/).
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// BibFile is the BibTeX database used for title -> key matching.
	BibFile string `json:"bib_file" yaml:"bib_file"`

	// MaxWorkers is the worker pool size (default 200).
	MaxWorkers int `json:"max_workers" yaml:"max_workers"`

	// PerKeyConcurrency caps in-flight requests per credential. Zero derives
	// min(20, workers/len(keys)).
	PerKeyConcurrency int `json:"per_key_concurrency" yaml:"per_key_concurrency"`

	// MaxPages and MaxChars bound the text handed to the service.
	MaxPages int `json:"max_pages" yaml:"max_pages"`
	MaxChars int `json:"max_chars" yaml:"max_chars"`

	// MaxPapers truncates the batch when positive (testing aid).
	MaxPapers int `json:"max_papers" yaml:"max_papers"`

	// Force re-annotates papers that already have a persisted record.
	Force bool `json:"force" yaml:"force"`
}

// FilterConfig holds settings for the relevance-filter stage.
type FilterConfig struct {
	ServiceConfig `yaml:",inline"`

	// OutputDir is the store root shared with annotation.
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// MaxWorkers is the worker pool size (smaller than annotation; default 32).
	MaxWorkers int `json:"max_workers" yaml:"max_workers"`

	// PerKeyConcurrency caps in-flight requests per credential.
	PerKeyConcurrency int `json:"per_key_concurrency" yaml:"per_key_concurrency"`

	// IncludeUnrelated re-checks records already moved to unrelated/ so the
	// filter can self-correct.
	IncludeUnrelated bool `json:"include_unrelated" yaml:"include_unrelated"`

	// OnlyPaper restricts the pass to a single record ID.
	OnlyPaper string `json:"only_paper,omitempty" yaml:"only_paper,omitempty"`
}

// AggregateConfig holds settings for the aggregation stage.
type AggregateConfig struct {
	// OutputDir is the store root.
	OutputDir string `json:"output_dir" yaml:"output_dir"`
}

// CoverageConfig holds settings for the coverage index.
type CoverageConfig struct {
	// OutputDir is the store root; the index lives at OutputDir/index/survey.db.
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// ExportFile, when set, receives the YAML coverage report.
	ExportFile string `json:"export_file,omitempty" yaml:"export_file,omitempty"`
}

// PipelineConfig groups all stage configurations.
type PipelineConfig struct {
	Annotate   AnnotateConfig  `json:"annotate" yaml:"annotate"`
	Filter     FilterConfig    `json:"filter" yaml:"filter"`
	Aggregate  AggregateConfig `json:"aggregate" yaml:"aggregate"`
	Coverage   CoverageConfig  `json:"coverage" yaml:"coverage"`
	Thresholds Thresholds      `json:"thresholds" yaml:"thresholds"`
}
