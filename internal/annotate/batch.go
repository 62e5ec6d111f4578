// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package annotate turns paper PDFs into canonical taxonomy records: it
// binds each paper to its bibliography key, prompts the completion service
// for a classification, and repairs the response onto the survey taxonomy.
package annotate

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/survey-engine/internal/batch"
	"github.com/pdiddy/survey-engine/internal/bib"
	"github.com/pdiddy/survey-engine/internal/credentials"
	"github.com/pdiddy/survey-engine/internal/llm"
	"github.com/pdiddy/survey-engine/internal/store"
	"github.com/pdiddy/survey-engine/internal/textsource"
	"github.com/pdiddy/survey-engine/pkg/types"
)

// BackendFactory builds a completion backend bound to one credential.
type BackendFactory func(apiKey string) llm.Backend

// ScanPDFs lists the PDFs under dirs, sorted by path for a stable batch
// order. Directories are scanned one level deep, matching how the corpus
// is laid out.
func ScanPDFs(dirs []string) ([]string, error) {
	var pdfs []string
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("scanning %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
				continue
			}
			pdfs = append(pdfs, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(pdfs)
	return pdfs, nil
}

// Identity resolves a PDF's bib key and title. The key binds only when the
// match clears the acceptance threshold; otherwise the title falls back to
// the filename stem and the record stays unkeyed.
func Identity(pdfPath string, entries []bib.Entry, th types.Thresholds) (bibKey, title string) {
	stem := strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath))
	entry, score := bib.Match(stem, entries)
	if entry != nil && score >= th.BibAccept {
		return entry.Key, entry.TitleClean
	}
	return "", DeriveTitle(stem)
}

// AnnotateOne runs the full single-paper path: prompt, completion, JSON
// recovery, and strict normalization. The caller owns retries.
func AnnotateOne(ctx context.Context, backend llm.Backend, cfg types.ServiceConfig, paperText, bibKey, title string, th types.Thresholds) (*types.CanonicalRecord, error) {
	prompt, err := BuildPrompt(bibKey, title, paperText)
	if err != nil {
		return nil, err
	}

	resp, err := backend.Complete(ctx, llm.ChatRequest{
		System:      systemPrompt,
		User:        prompt,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	raw, err := Decode(resp.Content)
	if err != nil {
		return nil, err
	}
	rec := ToRecord(raw)
	if err := Normalize(rec, bibKey, title, true, th); err != nil {
		return nil, err
	}
	rec.Usage = resp.Usage
	rec.Raw = resp.Content
	return rec, nil
}

// Run annotates every PDF under cfg.PaperDirs through the credential pool,
// persisting one record per paper. Already-annotated papers are skipped
// unless cfg.Force is set, so interrupted batches resume where they left
// off.
func Run(ctx context.Context, cfg types.AnnotateConfig, th types.Thresholds, factory BackendFactory, src textsource.Source, w io.Writer) (batch.Summary, error) {
	pdfs, err := ScanPDFs(cfg.PaperDirs)
	if err != nil {
		return batch.Summary{}, err
	}
	if cfg.MaxPapers > 0 && len(pdfs) > cfg.MaxPapers {
		pdfs = pdfs[:cfg.MaxPapers]
	}
	if len(pdfs) == 0 {
		return batch.Summary{}, fmt.Errorf("no PDFs found under %s", strings.Join(cfg.PaperDirs, ", "))
	}

	entries, err := bib.Load(cfg.BibFile)
	if err != nil {
		return batch.Summary{}, err
	}

	keys, err := credentials.Load(cfg.CredentialsFile)
	if err != nil {
		return batch.Summary{}, err
	}
	pool, err := batch.NewPool(keys, cfg.MaxWorkers, cfg.PerKeyConcurrency)
	if err != nil {
		return batch.Summary{}, err
	}

	st := store.New(cfg.OutputDir)
	if err := st.EnsureDirs(); err != nil {
		return batch.Summary{}, err
	}

	fmt.Fprintf(w, "annotating %d papers with %d credentials (%d workers, %d per key)\n",
		len(pdfs), pool.Keys(), cfg.MaxWorkers, pool.PerKey())

	summary := pool.Run(ctx, len(pdfs), func(ctx context.Context, idx int) batch.Outcome {
		pdf := pdfs[idx]
		bibKey, title := Identity(pdf, entries, th)
		stem := strings.TrimSuffix(filepath.Base(pdf), filepath.Ext(pdf))
		id := store.PaperID(bibKey, stem)

		if !cfg.Force && (st.Exists(id, store.Main) || st.Exists(id, store.Unrelated)) {
			return batch.Outcome{Status: batch.StatusSkipped, ID: id}
		}

		text, err := src.Extract(ctx, pdf)
		if err != nil {
			return batch.Outcome{Status: batch.StatusFailed, ID: id, Err: err}
		}
		text = textsource.Clip(text, cfg.MaxChars)

		var rec *types.CanonicalRecord
		err = pool.WithCredential(ctx, idx, func(apiKey string) error {
			backend := factory(apiKey)
			return batch.Retry(ctx, cfg.MaxRetries, func() error {
				var aerr error
				rec, aerr = AnnotateOne(ctx, backend, cfg.ServiceConfig, text, bibKey, title, th)
				return aerr
			})
		})
		if err != nil {
			return batch.Outcome{Status: batch.StatusFailed, ID: id, Err: err}
		}

		if err := st.Save(id, store.Main, rec); err != nil {
			return batch.Outcome{Status: batch.StatusFailed, ID: id, Err: err}
		}
		fmt.Fprintf(w, "annotated %s %s\n", id, Fingerprint(rec))
		return batch.Outcome{Status: batch.StatusOK, ID: id}
	})

	summary.Report(w, "annotation")
	return summary, nil
}

// Repair re-normalizes persisted records in place without touching the
// completion service. Non-strict: records that predate a rule change are
// repaired as far as possible, never rejected.
func Repair(ctx context.Context, outDir string, includeUnrelated bool, workers int, th types.Thresholds, w io.Writer) (batch.Summary, error) {
	st := store.New(outDir)

	partitions := []store.Partition{store.Main}
	if includeUnrelated {
		partitions = append(partitions, store.Unrelated)
	}

	type target struct {
		id        string
		partition store.Partition
	}
	var targets []target
	for _, p := range partitions {
		ids, err := st.List(p)
		if err != nil {
			return batch.Summary{}, err
		}
		for _, id := range ids {
			targets = append(targets, target{id: id, partition: p})
		}
	}

	if workers <= 0 {
		workers = 1
	}
	outcomes := make([]batch.Outcome, len(targets))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, tgt := range targets {
		i, tgt := i, tgt
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				outcomes[i] = batch.Outcome{Status: batch.StatusFailed, ID: tgt.id, Err: err}
				return nil
			}
			rec, err := st.Load(tgt.id, tgt.partition)
			if err != nil {
				outcomes[i] = batch.Outcome{Status: batch.StatusFailed, ID: tgt.id, Err: err}
				return nil
			}
			before := Fingerprint(rec)
			if err := Normalize(rec, rec.Paper.BibKey, rec.Paper.Title, false, th); err != nil {
				outcomes[i] = batch.Outcome{Status: batch.StatusFailed, ID: tgt.id, Err: err}
				return nil
			}
			if err := st.Save(tgt.id, tgt.partition, rec); err != nil {
				outcomes[i] = batch.Outcome{Status: batch.StatusFailed, ID: tgt.id, Err: err}
				return nil
			}
			after := Fingerprint(rec)
			if after != before {
				fmt.Fprintf(w, "repaired %s %s -> %s\n", tgt.id, before, after)
				outcomes[i] = batch.Outcome{Status: batch.StatusOK, ID: tgt.id, Note: "reclassified"}
				return nil
			}
			outcomes[i] = batch.Outcome{Status: batch.StatusOK, ID: tgt.id}
			return nil
		})
	}
	_ = g.Wait()

	summary := batch.Summary{Notes: make(map[string]int)}
	for _, out := range outcomes {
		switch out.Status {
		case batch.StatusOK:
			summary.Succeeded++
			if out.Note != "" {
				summary.Notes[out.Note]++
			}
		case batch.StatusSkipped:
			summary.Skipped++
		case batch.StatusFailed:
			summary.Failed++
			msg := ""
			if out.Err != nil {
				msg = out.Err.Error()
			}
			summary.Failures = append(summary.Failures, batch.Failure{ID: out.ID, Err: msg})
		}
	}
	summary.Report(w, "repair")
	return summary, nil
}
