// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/survey-engine/internal/filter"
	"github.com/pdiddy/survey-engine/pkg/types"
)

const (
	filterTemperature = 0.2
	filterMaxTokens   = 600
)

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Judge topical relevance and exile off-topic records",
	Long: `Filter sends a compact digest of each persisted record to the completion
service and asks for a relevance verdict with verbatim evidence quotes.
Records judged off-topic move to unrelated/; with --include-unrelated,
previously exiled records are re-checked and moved back when the verdict
flips. Every verdict is appended to the audit log.`,
	RunE: runFilter,
}

func init() {
	filterCmd.Flags().String("output-dir", "survey_output", "store root shared with annotate")
	filterCmd.Flags().Int("workers", 32, "worker pool size")
	filterCmd.Flags().Int("per-key", 0, "max in-flight requests per credential (0 derives min(20, workers/keys))")
	filterCmd.Flags().Bool("include-unrelated", false, "re-check records already moved to unrelated/")
	filterCmd.Flags().String("paper", "", "restrict the pass to a single record ID")
	serviceFlags(filterCmd)

	rootCmd.AddCommand(filterCmd)
}

func runFilter(cmd *cobra.Command, args []string) error {
	workers, _ := cmd.Flags().GetInt("workers")
	perKey, _ := cmd.Flags().GetInt("per-key")
	includeUnrelated, _ := cmd.Flags().GetBool("include-unrelated")
	onlyPaper, _ := cmd.Flags().GetString("paper")

	cfg := types.FilterConfig{
		ServiceConfig:     serviceConfig(cmd, filterTemperature, filterMaxTokens),
		OutputDir:         flagOrConfig(cmd, "output-dir", "filter.output_dir"),
		MaxWorkers:        workers,
		PerKeyConcurrency: perKey,
		IncludeUnrelated:  includeUnrelated,
		OnlyPaper:         onlyPaper,
	}

	summary, err := filter.Run(cmd.Context(), cfg, loadThresholds(), newBackendFactory(cfg.ServiceConfig), os.Stdout)
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d record(s) failed the relevance check", summary.Failed)
	}
	return nil
}
