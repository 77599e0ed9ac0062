package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andrewajenkins/perf-sentinel/internal/observability"
	"github.com/andrewajenkins/perf-sentinel/internal/storage"
)

// healthCheckCommand holds the flags for the health-check command.
type healthCheckCommand struct {
	storageFlags
	metricsAddr string
}

// NewHealthCheckCommand creates and configures the health-check command.
func NewHealthCheckCommand() *cobra.Command {
	hc := &healthCheckCommand{}

	cmd := &cobra.Command{
		Use:   "health-check",
		Short: "Probe storage adapter reachability",
		Long: `Probes the configured storage adapter (and its filesystem fallback,
if wired) and exits non-zero if any check fails.

With --metrics-addr, also serves /metrics (Prometheus), /healthz, and
/readyz for as long as the process runs — perf-sentinel never opens this
surface outside of this one invocation.`,
		RunE: hc.run,
	}

	cmd.Flags().StringVar(&hc.metricsAddr, "metrics-addr", "", "serve /metrics, /healthz, /readyz on this address instead of exiting immediately")

	addStorageFlags(cmd, &hc.storageFlags)

	return cmd
}

func (hc *healthCheckCommand) run(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	_, svc, closeSvc, err := openService(ctx, &hc.storageFlags)
	if err != nil {
		return fmt.Errorf("health-check: %w", err)
	}
	defer closeSvc()

	check := func(ctx context.Context) (bool, []storage.Health) {
		return observability.CheckStorage(ctx, svc.GetHealthStatus(ctx))
	}

	healthy, statuses := check(ctx)
	for _, s := range statuses {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", s.Type, s.Status)
	}

	if hc.metricsAddr != "" {
		if err := hc.serveMetrics(cmd, check); err != nil {
			return fmt.Errorf("health-check: %w", err)
		}
	}

	if !healthy {
		return fmt.Errorf("health-check: one or more storage adapters are unhealthy")
	}

	return nil
}

func (hc *healthCheckCommand) serveMetrics(cmd *cobra.Command, check func(context.Context) (bool, []storage.Health)) error {
	return serveMetricsUntilSignal(cmd, hc.metricsAddr, check, func(exporter *observability.PrometheusExporter) error {
		_, err := observability.NewAdapterHealthGauge(exporter.MeterProvider.Meter("perf-sentinel"), func(ctx context.Context) map[string]bool {
			_, statuses := check(ctx)

			report := make(map[string]bool, len(statuses))
			for _, s := range statuses {
				report[string(s.Type)] = s.Status == storage.HealthHealthy
			}

			return report
		})

		return err
	})
}
