package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/andrewajenkins/perf-sentinel/internal/coordinator"
)

// aggregateCommand holds the flags for the aggregate command.
type aggregateCommand struct {
	storageFlags
	jobIDs       string
	waitForJobs  bool
	timeoutSec   int
	pollSeconds  int
	outputFile   string
	outputFormat string
}

// NewAggregateCommand creates and configures the aggregate command.
func NewAggregateCommand() *cobra.Command {
	ac := &aggregateCommand{}

	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Combine per-job run archives into one input",
		Long:  "Optionally waits for a cohort of jobs to reach a terminal state, then aggregates their archived runs into one sample set.",
		RunE:  ac.run,
	}

	cmd.Flags().StringVar(&ac.jobIDs, "job-ids", "", "comma-separated job ids to wait for and aggregate")
	cmd.Flags().BoolVar(&ac.waitForJobs, "wait-for-jobs", false, "wait for the named jobs to reach a terminal state before aggregating")
	cmd.Flags().IntVar(&ac.timeoutSec, "timeout", 300, "seconds to wait for jobs before proceeding with a partial result")
	cmd.Flags().IntVar(&ac.pollSeconds, "poll-interval", 2, "seconds between job-status polls while waiting")
	cmd.Flags().StringVar(&ac.outputFile, "output-file", "", "write the aggregated run as a run file to this path instead of stdout")
	cmd.Flags().StringVar(&ac.outputFormat, "output-format", "json", "stdout summary format when --output-file is unset: json (full sample array) or text (counts only)")

	addStorageFlags(cmd, &ac.storageFlags)

	return cmd
}

func (ac *aggregateCommand) run(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if ac.outputFormat != "text" && ac.outputFormat != "json" {
		return fmt.Errorf("aggregate: unknown --output-format %q (want text or json)", ac.outputFormat)
	}

	cfg, svc, closeSvc, err := openService(ctx, &ac.storageFlags)
	if err != nil {
		return fmt.Errorf("aggregate: %w", err)
	}
	defer closeSvc()

	projectID := ac.projectIDOrDefault(cfg)

	var jobIDs []string
	if ac.jobIDs != "" {
		jobIDs = strings.Split(ac.jobIDs, ",")
	}

	coord := coordinator.New(svc)

	result, err := coord.Aggregate(ctx, projectID, coordinator.Options{
		JobIDs:       jobIDs,
		Wait:         ac.waitForJobs,
		Timeout:      time.Duration(ac.timeoutSec) * time.Second,
		PollInterval: time.Duration(ac.pollSeconds) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("aggregate: %w", err)
	}

	if result.PartialWait {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: timed out waiting for jobs %q; aggregating %d available run(s)\n", ac.jobIDs, result.RunCount)
	}

	data, err := json.MarshalIndent(result.Samples, "", "  ")
	if err != nil {
		return fmt.Errorf("aggregate: encoding samples: %w", err)
	}

	if ac.outputFile != "" {
		if err := os.WriteFile(ac.outputFile, data, 0o600); err != nil {
			return fmt.Errorf("aggregate: writing %s: %w", ac.outputFile, err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "aggregated %d sample(s) from %d run(s) across %d job(s) into %s\n",
			len(result.Samples), result.RunCount, result.JobCount, ac.outputFile)

		return nil
	}

	if ac.outputFormat == "text" {
		fmt.Fprintf(cmd.OutOrStdout(), "aggregated %d sample(s) from %d run(s) across %d job(s)\n",
			len(result.Samples), result.RunCount, result.JobCount)

		return nil
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(data))

	return nil
}
