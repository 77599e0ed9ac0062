// Package main provides the entry point for the perf-sentinel CLI tool.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/andrewajenkins/perf-sentinel/cmd/perf-sentinel/commands"
	"github.com/andrewajenkins/perf-sentinel/pkg/version"
)

var (
	verbose bool
	quiet   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "perf-sentinel",
		Short: "CI test-telemetry performance-regression sentinel",
		Long: `perf-sentinel classifies step-level test durations against a rolling
per-project baseline and flags regressions, drift, and new steps.

Commands:
  analyze      Classify one run against the stored baseline
  seed         Rebuild a baseline from historical run files
  aggregate    Combine per-job run archives into one input
  cleanup      Remove run and job records past a retention age
  health-check Probe storage adapter reachability`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return configureLogging(verbose, quiet)
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets slog level to debug)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-essential output (sets slog level to error)")

	rootCmd.AddCommand(commands.NewAnalyzeCommand())
	rootCmd.AddCommand(commands.NewSeedCommand())
	rootCmd.AddCommand(commands.NewAggregateCommand())
	rootCmd.AddCommand(commands.NewCleanupCommand())
	rootCmd.AddCommand(commands.NewHealthCheckCommand())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// configureLogging sets the default slog logger's level from the
// --verbose/--quiet persistent flags: verbose drops to debug, quiet rises
// to error, and the two are mutually exclusive.
func configureLogging(verbose, quiet bool) error {
	if verbose && quiet {
		return fmt.Errorf("--verbose and --quiet are mutually exclusive")
	}

	level := slog.LevelInfo

	switch {
	case verbose:
		level = slog.LevelDebug
	case quiet:
		level = slog.LevelError
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "perf-sentinel %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}
