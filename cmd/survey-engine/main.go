// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the survey-engine CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/survey-engine/internal/annotate"
	"github.com/pdiddy/survey-engine/internal/llm"
	"github.com/pdiddy/survey-engine/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// rootCmd is the base command for the survey-engine CLI.
var rootCmd = &cobra.Command{
	Use:   "survey-engine",
	Short: "Batch curation pipeline for survey paper corpora",
	Long: `survey-engine turns a directory of paper PDFs into a curated, taxonomy-
organized survey corpus. Each pipeline stage is a subcommand: annotate
extracts structured records via the completion service, filter judges
topical relevance and exiles off-topic papers, repair re-normalizes
persisted records after rule changes, aggregate builds per-taxon review
documents, and coverage indexes the corpus and reports taxonomy gaps.`,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./survey-engine.yaml or ~/.config/survey-engine/config.yaml)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("survey-engine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "survey-engine"))
		}
	}

	viper.SetEnvPrefix("SURVEY_ENGINE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// flagOrConfig returns the flag value when the user set it, otherwise the
// viper config value for key, otherwise the flag's default.
func flagOrConfig(cmd *cobra.Command, flag, key string) string {
	if cmd.Flags().Changed(flag) {
		v, _ := cmd.Flags().GetString(flag)
		return v
	}
	if viper.IsSet(key) {
		return viper.GetString(key)
	}
	v, _ := cmd.Flags().GetString(flag)
	return v
}

// loadThresholds returns the tuned defaults, overridden by any thresholds.*
// config keys.
func loadThresholds() types.Thresholds {
	th := types.DefaultThresholds()
	if viper.IsSet("thresholds.bib_accept") {
		th.BibAccept = viper.GetFloat64("thresholds.bib_accept")
	}
	if viper.IsSet("thresholds.taxon_fallback") {
		th.TaxonFallback = viper.GetFloat64("thresholds.taxon_fallback")
	}
	if viper.IsSet("thresholds.duplicate") {
		th.Duplicate = viper.GetFloat64("thresholds.duplicate")
	}
	if viper.IsSet("thresholds.evidence") {
		th.Evidence = viper.GetFloat64("thresholds.evidence")
	}
	return th
}

// serviceFlags registers the completion-service flags shared by the annotate
// and filter subcommands.
func serviceFlags(cmd *cobra.Command) {
	cmd.Flags().String("base-url", "", "completion API base URL (default DeepSeek)")
	cmd.Flags().String("model", "", "completion model identifier (default deepseek-chat)")
	cmd.Flags().Duration("timeout", 0, "per-request HTTP timeout (default 120s)")
	cmd.Flags().Int("retries", 6, "retry budget per paper for transient failures")
	cmd.Flags().String("credentials", "keys.txt", "newline-delimited API key file")
}

// serviceConfig builds the shared service settings from flags and config.
func serviceConfig(cmd *cobra.Command, temperature float64, maxTokens int) types.ServiceConfig {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	if !cmd.Flags().Changed("timeout") && viper.IsSet("service.timeout") {
		timeout = viper.GetDuration("service.timeout")
	}
	retries, _ := cmd.Flags().GetInt("retries")

	return types.ServiceConfig{
		BaseURL:         flagOrConfig(cmd, "base-url", "service.base_url"),
		Model:           flagOrConfig(cmd, "model", "service.model"),
		Temperature:     temperature,
		MaxTokens:       maxTokens,
		Timeout:         timeout,
		MaxRetries:      retries,
		CredentialsFile: flagOrConfig(cmd, "credentials", "service.credentials_file"),
	}
}

// newBackendFactory binds the service settings to per-credential clients.
func newBackendFactory(cfg types.ServiceConfig) annotate.BackendFactory {
	return func(apiKey string) llm.Backend {
		opts := []llm.Option{}
		if cfg.BaseURL != "" {
			opts = append(opts, llm.WithBaseURL(cfg.BaseURL))
		}
		if cfg.Model != "" {
			opts = append(opts, llm.WithModel(cfg.Model))
		}
		if cfg.Timeout > 0 {
			opts = append(opts, llm.WithTimeout(cfg.Timeout))
		}
		return llm.NewClient(apiKey, opts...)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
