package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/andrewajenkins/perf-sentinel/internal/contextnorm"
	"github.com/andrewajenkins/perf-sentinel/internal/storage"
)

// seedCommand holds the flags for the seed command.
type seedCommand struct {
	storageFlags
	runFilesGlob string
}

// NewSeedCommand creates and configures the seed command.
func NewSeedCommand() *cobra.Command {
	sc := &seedCommand{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Rebuild a baseline from historical run files",
		Long:  "Reads every run file matching --run-files, aggregates durations per step, and replaces the project's history with the computed baseline.",
		RunE:  sc.run,
	}

	cmd.Flags().StringVar(&sc.runFilesGlob, "run-files", "", "glob pattern matching run files to seed from")
	_ = cmd.MarkFlagRequired("run-files")

	cmd.Flags().StringVar(&sc.historyFile, "history-file", "", "base directory for filesystem-backed history")
	cmd.Flags().StringVar(&sc.dbConnection, "db-connection", "", "MongoDB connection URI")
	cmd.Flags().StringVar(&sc.bucketName, "bucket-name", "", "S3 bucket name")
	cmd.Flags().StringVar(&sc.projectID, "project-id", "", "project namespace baselines are stored under")

	return cmd
}

func (sc *seedCommand) run(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	matches, err := filepath.Glob(sc.runFilesGlob)
	if err != nil {
		return fmt.Errorf("seed: invalid --run-files pattern %q: %w", sc.runFilesGlob, err)
	}

	if len(matches) == 0 {
		return fmt.Errorf("seed: no files matched --run-files %q", sc.runFilesGlob)
	}

	sort.Strings(matches)

	aggregated := map[string]storage.SeedInput{}

	for _, path := range matches {
		samples, err := readRunFile(path)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}

		for _, sample := range samples {
			ctxNorm := contextnorm.Normalize(sample.Context)

			input := aggregated[sample.StepText]
			input.Durations = append(input.Durations, sample.Duration)
			input.Context = ctxNorm
			aggregated[sample.StepText] = input
		}
	}

	cfg, svc, closeSvc, err := openService(ctx, &sc.storageFlags)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	defer closeSvc()

	projectID := sc.projectIDOrDefault(cfg)

	if err := svc.SeedHistory(ctx, projectID, aggregated, time.Now().UTC()); err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "seeded %d step(s) from %d run file(s)\n", len(aggregated), len(matches))

	return nil
}
