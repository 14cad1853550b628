package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "llm-router",
	Short: "Routing and resilience core for LLM API traffic",
	Long: `llm-router routes chat requests across LLM providers with rule-based
decisions, weighted load balancing, circuit breaking, and automatic failover.

It provides:
  - Priority-ordered routing rules (pattern, complexity, and expression based)
  - Weighted selection over candidate models with hot-reloaded configuration
  - Per-provider circuit breakers and burst failure detection
  - A gateway switch to fall back to plain weighted routing at runtime
  - Prometheus metrics and an SQLite audit trail of every decision`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
