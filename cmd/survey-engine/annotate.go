// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/survey-engine/internal/annotate"
	"github.com/pdiddy/survey-engine/internal/bib"
	"github.com/pdiddy/survey-engine/internal/credentials"
	"github.com/pdiddy/survey-engine/internal/store"
	"github.com/pdiddy/survey-engine/internal/textsource"
	"github.com/pdiddy/survey-engine/pkg/types"
)

const (
	annotateTemperature = 0.2
	annotateMaxTokens   = 8192
)

var annotateCmd = &cobra.Command{
	Use:   "annotate",
	Short: "Extract structured taxonomy records from paper PDFs",
	Long: `Annotate scans the paper directories for PDFs, binds each to a BibTeX
key by title similarity, sends the paper text to the completion service,
and persists one canonical JSON record plus a Markdown mindmap per paper.
Papers that already have a record are skipped unless --force is given.

Use --pdf to annotate a single PDF as a smoke test.`,
	RunE: runAnnotate,
}

func init() {
	annotateCmd.Flags().StringSlice("paper-dir", []string{"papers"}, "directory scanned for PDFs (repeatable)")
	annotateCmd.Flags().String("output-dir", "survey_output", "store root for records and mindmaps")
	annotateCmd.Flags().String("bib-file", "references.bib", "BibTeX database for title -> key binding")
	annotateCmd.Flags().Int("workers", 200, "worker pool size")
	annotateCmd.Flags().Int("per-key", 0, "max in-flight requests per credential (0 derives min(20, workers/keys))")
	annotateCmd.Flags().Int("max-pages", 20, "max PDF pages to extract")
	annotateCmd.Flags().Int("max-chars", 50000, "max characters of paper text sent to the service")
	annotateCmd.Flags().Int("max-papers", 0, "stop after N papers (0 = all)")
	annotateCmd.Flags().Bool("force", false, "re-annotate papers that already have a record")
	annotateCmd.Flags().String("pdf", "", "annotate a single PDF and exit")
	serviceFlags(annotateCmd)

	rootCmd.AddCommand(annotateCmd)
}

func annotateConfig(cmd *cobra.Command) types.AnnotateConfig {
	paperDirs, _ := cmd.Flags().GetStringSlice("paper-dir")
	workers, _ := cmd.Flags().GetInt("workers")
	perKey, _ := cmd.Flags().GetInt("per-key")
	maxPages, _ := cmd.Flags().GetInt("max-pages")
	maxChars, _ := cmd.Flags().GetInt("max-chars")
	maxPapers, _ := cmd.Flags().GetInt("max-papers")
	force, _ := cmd.Flags().GetBool("force")

	return types.AnnotateConfig{
		ServiceConfig:     serviceConfig(cmd, annotateTemperature, annotateMaxTokens),
		PaperDirs:         paperDirs,
		OutputDir:         flagOrConfig(cmd, "output-dir", "annotate.output_dir"),
		BibFile:           flagOrConfig(cmd, "bib-file", "annotate.bib_file"),
		MaxWorkers:        workers,
		PerKeyConcurrency: perKey,
		MaxPages:          maxPages,
		MaxChars:          maxChars,
		MaxPapers:         maxPapers,
		Force:             force,
	}
}

func runAnnotate(cmd *cobra.Command, args []string) error {
	cfg := annotateConfig(cmd)
	th := loadThresholds()
	src := &textsource.Cached{Fallback: &textsource.Pdftotext{MaxPages: cfg.MaxPages}}

	if pdf, _ := cmd.Flags().GetString("pdf"); pdf != "" {
		return annotateSingle(cmd.Context(), cfg, th, src, pdf)
	}

	summary, err := annotate.Run(cmd.Context(), cfg, th, newBackendFactory(cfg.ServiceConfig), src, os.Stdout)
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d paper(s) failed annotation", summary.Failed)
	}
	return nil
}

// annotateSingle runs the full extract/annotate/persist path for one PDF,
// bypassing the worker pool. Useful for prompt and credential smoke tests.
func annotateSingle(ctx context.Context, cfg types.AnnotateConfig, th types.Thresholds, src textsource.Source, pdf string) error {
	entries, err := bib.Load(cfg.BibFile)
	if err != nil {
		return err
	}
	keys, err := credentials.Load(cfg.CredentialsFile)
	if err != nil {
		return err
	}

	bibKey, title := annotate.Identity(pdf, entries, th)
	stem := strings.TrimSuffix(filepath.Base(pdf), filepath.Ext(pdf))
	id := store.PaperID(bibKey, stem)
	fmt.Printf("paper %s (bib key %q, title %q)\n", id, bibKey, title)

	text, err := src.Extract(ctx, pdf)
	if err != nil {
		return err
	}
	text = textsource.Clip(text, cfg.MaxChars)

	backend := newBackendFactory(cfg.ServiceConfig)(keys[0])
	rec, err := annotate.AnnotateOne(ctx, backend, cfg.ServiceConfig, text, bibKey, title, th)
	if err != nil {
		return err
	}

	st := store.New(cfg.OutputDir)
	if err := st.EnsureDirs(); err != nil {
		return err
	}
	if err := st.Save(id, store.Main, rec); err != nil {
		return err
	}
	fmt.Printf("annotated %s %s\n", id, annotate.Fingerprint(rec))
	fmt.Printf("record:  %s\nmindmap: %s\n", st.JSONPath(id, store.Main), st.MindmapPath(id, store.Main))
	return nil
}
