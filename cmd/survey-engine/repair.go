// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/survey-engine/internal/annotate"
)

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Re-normalize persisted records after classification rule changes",
	Long: `Repair re-runs schema normalization over every persisted record without
calling the completion service. Records that predate a rule change are
repaired in place: taxonomy fields snap to current vocabulary, stale
Internalization stages are reclassified, and the mindmap is rewritten.`,
	RunE: runRepair,
}

func init() {
	repairCmd.Flags().String("output-dir", "survey_output", "store root shared with annotate")
	repairCmd.Flags().Int("workers", 32, "concurrent record limit")
	repairCmd.Flags().Bool("include-unrelated", false, "also repair records under unrelated/")

	rootCmd.AddCommand(repairCmd)
}

func runRepair(cmd *cobra.Command, args []string) error {
	outputDir := flagOrConfig(cmd, "output-dir", "repair.output_dir")
	workers, _ := cmd.Flags().GetInt("workers")
	includeUnrelated, _ := cmd.Flags().GetBool("include-unrelated")

	summary, err := annotate.Repair(cmd.Context(), outputDir, includeUnrelated, workers, loadThresholds(), os.Stdout)
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d record(s) failed repair", summary.Failed)
	}
	return nil
}
