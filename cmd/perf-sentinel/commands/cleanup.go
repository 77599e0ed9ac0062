package commands

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/andrewajenkins/perf-sentinel/internal/cleanup"
	"github.com/andrewajenkins/perf-sentinel/internal/storage"
)

// cleanupCommand holds the flags for the cleanup command.
type cleanupCommand struct {
	storageFlags
	olderThan string
	dryRun    bool
	force     bool
}

// NewCleanupCommand creates and configures the cleanup command.
func NewCleanupCommand() *cobra.Command {
	cc := &cleanupCommand{}

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove run and job records past a retention age",
		Long:  "Parses --older-than into a cutoff and removes run and job records older than it, previewing the result first and confirming before a destructive run.",
		RunE:  cc.run,
	}

	cmd.Flags().StringVar(&cc.olderThan, "older-than", "", "age cutoff, e.g. 30d, 12h, 45m")
	_ = cmd.MarkFlagRequired("older-than")
	cmd.Flags().BoolVar(&cc.dryRun, "dry-run", false, "report what would be removed without deleting")
	cmd.Flags().BoolVar(&cc.force, "force", false, "skip the interactive confirmation prompt")

	addStorageFlags(cmd, &cc.storageFlags)

	return cmd
}

func (cc *cleanupCommand) run(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	age, err := cleanup.ParseOlderThan(cc.olderThan)
	if err != nil {
		return err
	}

	cfg, svc, closeSvc, err := openService(ctx, &cc.storageFlags)
	if err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}
	defer closeSvc()

	projectID := cc.projectIDOrDefault(cfg)

	engine := cleanup.New(svc)

	outcome, err := engine.Run(ctx, cleanup.Options{
		ProjectID: projectID,
		Policy:    storage.RetentionPolicy{Runs: age, Jobs: age, CompletedJobs: age},
		DryRun:    cc.dryRun,
		Force:     cc.force,
		Confirm:   promptConfirm(cmd),
	})
	if err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), outcome.Summary())

	return nil
}

// promptConfirm asks the operator on the command's stdin/stdout whether to
// proceed with a destructive cleanup, after the preview has been printed.
func promptConfirm(cmd *cobra.Command) cleanup.Confirmer {
	return func(result *storage.CleanupResult) (bool, error) {
		fmt.Fprintf(cmd.OutOrStdout(), "this will remove %d run(s) and %d job(s). Proceed? [y/N] ", result.RunsRemoved, result.JobsRemoved)

		reader := bufio.NewReader(cmd.InOrStdin())

		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return false, nil
		}

		answer := strings.ToLower(strings.TrimSpace(line))

		return answer == "y" || answer == "yes", nil
	}
}
