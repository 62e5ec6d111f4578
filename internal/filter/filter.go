// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package filter decides whether annotated papers belong to the survey's
// domain. Verdicts come from the completion service with verbatim evidence
// requirements; papers whose evidence never verifies fall back to a keyword
// heuristic. Every verdict is audited, and unrelated papers are relocated
// rather than deleted.
package filter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pdiddy/survey-engine/internal/annotate"
	"github.com/pdiddy/survey-engine/internal/batch"
	"github.com/pdiddy/survey-engine/internal/credentials"
	"github.com/pdiddy/survey-engine/internal/llm"
	"github.com/pdiddy/survey-engine/internal/match"
	"github.com/pdiddy/survey-engine/internal/store"
	"github.com/pdiddy/survey-engine/pkg/types"
)

// FallbackHeuristic tags verdicts produced by the keyword heuristic after
// evidence validation kept failing.
const FallbackHeuristic = "heuristic_due_to_evidence"

var positiveKeywords = []string{
	"molecule", "molecular", "chem", "chemistry", "smiles", "selfies",
	"iupac", "drug", "ligand", "reaction", "retrosynthesis", "synthesis",
	"docking", "binding affinity", "protein ligand", "pocket", "conformer",
	"admet", "qed", "lipinski", "tox", "cheminformatics", "catalyst",
	"catalysis", "material", "crystal", "polymer",
}

var negativeKeywords = []string{
	"genome", "genomic", "dna", "transcript", "transcriptome",
	"single cell", "cell atlas", "cellular", "pathology", "radiology",
	"mri", "histopathology", "glioma", "oncology",
}

// HeuristicVerdict is the no-network fallback: keyword scan over the
// record's title, method, and summaries. It is deliberately conservative,
// keeping a paper when the signals are ambiguous; a wrongly kept paper is
// cheap to remove later, a wrongly dropped one is silently lost.
func HeuristicVerdict(rec *types.CanonicalRecord) types.RelevanceVerdict {
	parts := []string{rec.Paper.Title, rec.Paper.MethodName}
	for _, e := range rec.Representation {
		parts = append(parts, e.Summary)
	}
	for _, e := range rec.Cognition {
		parts = append(parts, e.Summary)
	}
	for _, e := range rec.Application {
		parts = append(parts, e.Summary)
	}
	text := match.Normalize(strings.Join(parts, " "))

	posHit := containsAny(text, positiveKeywords)
	negHit := containsAny(text, negativeKeywords)

	evidence := []string{}
	if rec.Paper.Title != "" {
		evidence = append(evidence, rec.Paper.Title)
	}

	genomicsDominant := (strings.Contains(text, "dna") || strings.Contains(text, "genome")) &&
		!(strings.Contains(text, "molecule") || strings.Contains(text, "smiles"))

	if posHit && !genomicsDominant {
		return types.RelevanceVerdict{
			Related:       true,
			Confidence:    0.55,
			PrimaryDomain: "chemistry_molecule",
			Reason:        "Molecular/chemistry keywords (molecule, SMILES, docking, reaction) appear in the digest.",
			Evidence:      evidence,
		}
	}
	if negHit && !posHit {
		domain := "other"
		if strings.Contains(text, "genome") || strings.Contains(text, "dna") {
			domain = "biology_genomics"
		}
		return types.RelevanceVerdict{
			Related:       false,
			Confidence:    0.55,
			PrimaryDomain: domain,
			Reason:        "Genomics, cell, or pathology keywords dominate with no molecular chemistry task signal.",
			Evidence:      evidence,
		}
	}
	return types.RelevanceVerdict{
		Related:       true,
		Confidence:    0.51,
		PrimaryDomain: "chemistry_molecule",
		Reason:        "Too little signal to rule out a molecular chemistry task; kept for manual review.",
		Evidence:      evidence,
	}
}

func containsAny(text string, keys []string) bool {
	for _, k := range keys {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// Check obtains one validated verdict for a record, retrying transient
// failures. When the retry budget dies on evidence validation, the keyword
// heuristic answers instead, tagged via Fallback.
func Check(ctx context.Context, backend llm.Backend, cfg types.ServiceConfig, rec *types.CanonicalRecord, th types.Thresholds) (types.RelevanceVerdict, error) {
	input := Digest(rec)
	prompt, err := BuildVerdictPrompt(input)
	if err != nil {
		return types.RelevanceVerdict{}, err
	}

	var verdict *types.RelevanceVerdict
	err = batch.Retry(ctx, cfg.MaxRetries, func() error {
		resp, cerr := backend.Complete(ctx, llm.ChatRequest{
			System:      verdictSystemPrompt,
			User:        prompt,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		})
		if cerr != nil {
			return cerr
		}
		v, perr := ParseVerdict(resp.Content, input, th)
		if perr != nil {
			return perr
		}
		v.Usage = resp.Usage
		verdict = v
		return nil
	})
	if err != nil {
		var vErr *VerdictError
		if errors.As(err, &vErr) && vErr.Evidence {
			fallback := HeuristicVerdict(rec)
			fallback.Fallback = FallbackHeuristic
			return fallback, nil
		}
		return types.RelevanceVerdict{}, err
	}
	return *verdict, nil
}

// AuditEntry is one relevance_log.jsonl line: the full verdict and enough
// context to reconstruct why a paper moved.
type AuditEntry struct {
	RunID         string      `json:"run_id"`
	PaperID       string      `json:"paper_id"`
	BibKey        string      `json:"bib_key"`
	Title         string      `json:"title"`
	Related       bool        `json:"related"`
	Confidence    float64     `json:"confidence"`
	PrimaryDomain string      `json:"primary_domain"`
	Reason        string      `json:"reason"`
	Evidence      []string    `json:"evidence"`
	SourceDir     string      `json:"source_dir"`
	Fallback      string      `json:"fallback,omitempty"`
	Usage         types.Usage `json:"usage"`
	Timestamp     string      `json:"ts"`
}

// Run judges every persisted record through the credential pool, appends an
// audit line per verdict, and relocates records whose partition disagrees
// with the verdict. With cfg.IncludeUnrelated, previously exiled records
// get a second chance and move back when judged related.
func Run(ctx context.Context, cfg types.FilterConfig, th types.Thresholds, factory annotate.BackendFactory, w io.Writer) (batch.Summary, error) {
	st := store.New(cfg.OutputDir)
	if err := st.EnsureDirs(); err != nil {
		return batch.Summary{}, err
	}

	type target struct {
		id        string
		partition store.Partition
	}
	var targets []target
	ids, err := st.List(store.Main)
	if err != nil {
		return batch.Summary{}, err
	}
	for _, id := range ids {
		targets = append(targets, target{id: id, partition: store.Main})
	}
	if cfg.IncludeUnrelated {
		ids, err := st.List(store.Unrelated)
		if err != nil {
			return batch.Summary{}, err
		}
		for _, id := range ids {
			targets = append(targets, target{id: id, partition: store.Unrelated})
		}
	}

	if cfg.OnlyPaper != "" {
		want := strings.TrimSuffix(cfg.OnlyPaper, ".json")
		var picked []target
		for _, t := range targets {
			if t.id == want {
				picked = append(picked, t)
			}
		}
		if len(picked) == 0 {
			return batch.Summary{}, fmt.Errorf("paper %s not found in %s", cfg.OnlyPaper, cfg.OutputDir)
		}
		targets = picked
	}

	keys, err := credentials.Load(cfg.CredentialsFile)
	if err != nil {
		return batch.Summary{}, err
	}
	pool, err := batch.NewPool(keys, cfg.MaxWorkers, cfg.PerKeyConcurrency)
	if err != nil {
		return batch.Summary{}, err
	}

	runID := time.Now().Format("20060102_150405")
	fmt.Fprintf(w, "judging %d records with %d credentials (%d workers, %d per key)\n",
		len(targets), pool.Keys(), cfg.MaxWorkers, pool.PerKey())

	summary := pool.Run(ctx, len(targets), func(ctx context.Context, idx int) batch.Outcome {
		tgt := targets[idx]
		rec, err := st.Load(tgt.id, tgt.partition)
		if err != nil {
			return batch.Outcome{Status: batch.StatusFailed, ID: tgt.id, Err: err}
		}

		var verdict types.RelevanceVerdict
		err = pool.WithCredential(ctx, idx, func(apiKey string) error {
			var cerr error
			verdict, cerr = Check(ctx, factory(apiKey), cfg.ServiceConfig, rec, th)
			return cerr
		})
		if err != nil {
			return batch.Outcome{Status: batch.StatusFailed, ID: tgt.id, Err: err}
		}

		if err := st.AppendAudit(AuditEntry{
			RunID:         runID,
			PaperID:       tgt.id,
			BibKey:        rec.Paper.BibKey,
			Title:         rec.Paper.Title,
			Related:       verdict.Related,
			Confidence:    verdict.Confidence,
			PrimaryDomain: verdict.PrimaryDomain,
			Reason:        verdict.Reason,
			Evidence:      verdict.Evidence,
			SourceDir:     tgt.partition.String(),
			Fallback:      verdict.Fallback,
			Usage:         verdict.Usage,
			Timestamp:     time.Now().Format("2006-01-02 15:04:05"),
		}); err != nil {
			return batch.Outcome{Status: batch.StatusFailed, ID: tgt.id, Err: err}
		}

		note := "related"
		switch {
		case verdict.Related && tgt.partition == store.Unrelated:
			if err := st.Relocate(tgt.id, store.Unrelated, store.Main); err != nil {
				return batch.Outcome{Status: batch.StatusFailed, ID: tgt.id, Err: err}
			}
			note = "moved_back"
		case !verdict.Related && tgt.partition == store.Main:
			if err := st.Relocate(tgt.id, store.Main, store.Unrelated); err != nil {
				return batch.Outcome{Status: batch.StatusFailed, ID: tgt.id, Err: err}
			}
			note = "moved_out"
		case !verdict.Related:
			note = "unrelated"
		}
		return batch.Outcome{Status: batch.StatusOK, ID: tgt.id, Note: note}
	})

	fmt.Fprintf(w, "filter done: related=%d, unrelated=%d, moved_out=%d, moved_back=%d, failed=%d\n",
		summary.Notes["related"], summary.Notes["unrelated"],
		summary.Notes["moved_out"], summary.Notes["moved_back"], summary.Failed)
	fmt.Fprintf(w, "audit log: %s\n", st.AuditLogPath())
	return summary, nil
}
