package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/andrewajenkins/perf-sentinel/internal/engine"
	"github.com/andrewajenkins/perf-sentinel/internal/model"
	"github.com/andrewajenkins/perf-sentinel/internal/observability"
	"github.com/andrewajenkins/perf-sentinel/internal/reporting"
	"github.com/andrewajenkins/perf-sentinel/internal/storage"
)

// analyzeCommand holds the flags for the analyze command.
type analyzeCommand struct {
	storageFlags
	runFile      string
	noColor      bool
	outputFormat string
	metricsAddr  string
}

// NewAnalyzeCommand creates and configures the analyze command.
func NewAnalyzeCommand() *cobra.Command {
	ac := &analyzeCommand{}

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Classify one run against the stored baseline",
		Long:  "Reads a run file, classifies every sample against the project's history, persists the updated history and run archive, and prints a summary.",
		RunE:  ac.run,
	}

	cmd.Flags().StringVar(&ac.runFile, "run-file", "", "path to the run file (JSON array of step samples)")
	cmd.Flags().BoolVar(&ac.noColor, "no-color", false, "disable colored console output")
	cmd.Flags().StringVar(&ac.outputFormat, "output-format", "text", "summary format: text or json")
	cmd.Flags().StringVar(&ac.metricsAddr, "metrics-addr", "", "serve classification and storage metrics on this address until interrupted, instead of exiting immediately")
	_ = cmd.MarkFlagRequired("run-file")

	addStorageFlags(cmd, &ac.storageFlags)

	return cmd
}

func (ac *analyzeCommand) run(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if ac.outputFormat != "text" && ac.outputFormat != "json" {
		return fmt.Errorf("analyze: unknown --output-format %q (want text or json)", ac.outputFormat)
	}

	samples, err := readRunFile(ac.runFile)
	if err != nil {
		return err
	}

	cfg, svc, closeSvc, err := openService(ctx, &ac.storageFlags)
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	defer closeSvc()

	projectID := ac.projectIDOrDefault(cfg)

	history, err := svc.GetHistory(ctx, projectID)
	if err != nil {
		return fmt.Errorf("analyze: loading history: %w", err)
	}

	now := time.Now().UTC()
	report, updatedHistory := engine.New(cfg).Analyze(samples, history, now)

	if err := svc.SaveHistory(ctx, projectID, updatedHistory); err != nil {
		return fmt.Errorf("analyze: saving history: %w", err)
	}

	run := &model.RunDocument{
		RunID:     now.Format("20060102T150405.000000000Z07:00"),
		ProjectID: projectID,
		RunData:   samples,
		Timestamp: now,
	}

	if err := svc.SavePerformanceRun(ctx, run); err != nil {
		return fmt.Errorf("analyze: archiving run: %w", err)
	}

	if err := ac.writeReport(cmd, report); err != nil {
		return fmt.Errorf("analyze: %w", err)
	}

	if ac.metricsAddr != "" {
		if err := ac.serveMetrics(cmd, svc, report); err != nil {
			return fmt.Errorf("analyze: %w", err)
		}
	}

	return nil
}

func (ac *analyzeCommand) writeReport(cmd *cobra.Command, report *model.Report) error {
	if ac.outputFormat == "json" {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), string(data))

		return nil
	}

	reporting.WriteSummary(cmd.OutOrStdout(), report, ac.noColor)

	return nil
}

// serveMetrics exposes this run's classification counts and the storage
// service's health on --metrics-addr until interrupted, per the
// `--output-format`/metrics SUPPLEMENTED FEATURES: classification metrics
// are populated once, from the report this invocation just produced.
func (ac *analyzeCommand) serveMetrics(cmd *cobra.Command, svc *storage.Service, report *model.Report) error {
	check := func(ctx context.Context) (bool, []storage.Health) {
		return observability.CheckStorage(ctx, svc.GetHealthStatus(ctx))
	}

	return serveMetricsUntilSignal(cmd, ac.metricsAddr, check, func(exporter *observability.PrometheusExporter) error {
		cm, err := observability.NewClassificationMetrics(exporter.MeterProvider.Meter("perf-sentinel"))
		if err != nil {
			return err
		}

		observability.RecordReport(context.Background(), cm, report)

		return nil
	})
}

// readRunFile decodes a run file: a JSON array of StepSample, per §6.1.
func readRunFile(path string) ([]model.StepSample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading run file %s: %w", path, err)
	}

	var samples []model.StepSample
	if err := json.Unmarshal(data, &samples); err != nil {
		return nil, fmt.Errorf("decoding run file %s: %w", path, err)
	}

	return samples, nil
}
