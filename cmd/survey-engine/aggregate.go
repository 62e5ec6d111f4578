// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/survey-engine/internal/aggregate"
	"github.com/pdiddy/survey-engine/pkg/types"
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Build per-taxon review documents from the record store",
	Long: `Aggregate loads every related record, drops unkeyed duplicates of keyed
papers, groups entries by taxonomy node, and rewrites the by_subsubsection/
tree with one Markdown review document per covered node. The tree is
rebuilt from scratch on every run so stale views never linger.`,
	RunE: runAggregate,
}

func init() {
	aggregateCmd.Flags().String("output-dir", "survey_output", "store root shared with annotate")

	rootCmd.AddCommand(aggregateCmd)
}

func runAggregate(cmd *cobra.Command, args []string) error {
	cfg := types.AggregateConfig{
		OutputDir: flagOrConfig(cmd, "output-dir", "aggregate.output_dir"),
	}

	views, err := aggregate.Run(cfg, loadThresholds(), os.Stdout)
	if err != nil {
		return err
	}
	fmt.Printf("wrote %d review document(s)\n", len(views))
	return nil
}
