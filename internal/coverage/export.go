// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package coverage

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/survey-engine/internal/store"
	"github.com/pdiddy/survey-engine/pkg/types"
)

// ExportYAML writes the coverage report to path.
func ExportYAML(report *Report, path string) error {
	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshaling coverage report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing coverage report: %w", err)
	}
	return nil
}

// Run rebuilds the index from the persisted records, prints the coverage
// table, and exports the YAML report when configured.
func Run(ctx context.Context, cfg types.CoverageConfig, w io.Writer) (*Report, error) {
	ix, err := Open(cfg.OutputDir)
	if err != nil {
		return nil, err
	}
	defer ix.Close()

	st := store.New(cfg.OutputDir)
	if _, err := ix.Rebuild(ctx, st, w); err != nil {
		return nil, err
	}

	report, err := ix.BuildReport(ctx)
	if err != nil {
		return nil, err
	}

	section := ""
	for _, n := range report.Nodes {
		if n.Section != section {
			section = n.Section
			fmt.Fprintf(w, "\n%s\n", section)
		}
		marker := ""
		if n.Papers == 0 {
			marker = "  <- uncovered"
		}
		fmt.Fprintf(w, "  %-60s %4d%s\n", n.Subsubsection, n.Papers, marker)
	}
	fmt.Fprintf(w, "\n%d/%d taxonomy nodes uncovered; %d related papers of %d indexed\n",
		report.Uncovered, len(report.Nodes), report.RelatedPapers, report.TotalPapers)

	if cfg.ExportFile != "" {
		if err := ExportYAML(report, cfg.ExportFile); err != nil {
			return nil, err
		}
		fmt.Fprintf(w, "coverage report written to %s\n", cfg.ExportFile)
	}
	return report, nil
}
