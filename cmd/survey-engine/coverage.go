// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/survey-engine/internal/coverage"
	"github.com/pdiddy/survey-engine/pkg/types"
)

var coverageCmd = &cobra.Command{
	Use:   "coverage",
	Short: "Rebuild the corpus index and report taxonomy coverage",
	Long: `Coverage rebuilds the SQLite index at index/survey.db from the record
store, then prints paper counts for every taxonomy node, flagging nodes
no related paper covers. Use --export to also write the report as YAML.`,
	RunE: runCoverage,
}

func init() {
	coverageCmd.Flags().String("output-dir", "survey_output", "store root shared with annotate")
	coverageCmd.Flags().String("export", "", "write the coverage report to this YAML file")

	rootCmd.AddCommand(coverageCmd)
}

func runCoverage(cmd *cobra.Command, args []string) error {
	exportFile, _ := cmd.Flags().GetString("export")

	cfg := types.CoverageConfig{
		OutputDir:  flagOrConfig(cmd, "output-dir", "coverage.output_dir"),
		ExportFile: exportFile,
	}

	_, err := coverage.Run(cmd.Context(), cfg, os.Stdout)
	return err
}
