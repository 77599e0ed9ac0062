// Package commands wires perf-sentinel's cobra commands to the storage,
// coordinator, cleanup, engine, and observability packages.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/andrewajenkins/perf-sentinel/internal/config"
	"github.com/andrewajenkins/perf-sentinel/internal/observability"
	"github.com/andrewajenkins/perf-sentinel/internal/storage"
)

const metricsServerShutdownGrace = 3 * time.Second

// storageFlags carries the storage-target selection and layering flags
// shared by analyze, seed, aggregate, cleanup, and health-check. Exactly
// one of Config, DBConnection, BucketName, HistoryFile selects how the
// command's storage.Service is built; the rest layer on top of it.
type storageFlags struct {
	configPath   string
	dbConnection string
	bucketName   string
	historyFile  string
	environment  string
	profile      string
	projectID    string
	threshold    float64
	maxHistory   int
	reporters    []string
}

func addStorageFlags(cmd *cobra.Command, f *storageFlags) {
	cmd.Flags().StringVar(&f.configPath, "config", "", "path to a YAML configuration file")
	cmd.Flags().StringVar(&f.dbConnection, "db-connection", "", "MongoDB connection URI")
	cmd.Flags().StringVar(&f.bucketName, "bucket-name", "", "S3 bucket name")
	cmd.Flags().StringVar(&f.historyFile, "history-file", "", "base directory for filesystem-backed history")
	cmd.Flags().StringVar(&f.environment, "environment", "", "named environment overlay to apply")
	cmd.Flags().StringVar(&f.profile, "profile", "", "named profile overlay to apply")
	cmd.Flags().StringVar(&f.projectID, "project-id", "", "project namespace baselines are stored under")
	cmd.Flags().Float64Var(&f.threshold, "threshold", 0, "override analysis.threshold")
	cmd.Flags().IntVar(&f.maxHistory, "max-history", 0, "override analysis.max_history")
	cmd.Flags().StringSliceVar(&f.reporters, "reporter", nil, "override reporting.default_reporters")
}

// loadConfig enforces the "exactly one storage target" rule from §6.4 and
// builds the resolved Config through the usual layered load.
func (f *storageFlags) loadConfig() (*config.Config, error) {
	set := 0
	for _, v := range []string{f.configPath, f.dbConnection, f.bucketName, f.historyFile} {
		if v != "" {
			set++
		}
	}

	if set != 1 {
		return nil, config.ErrStorageTargetAmbiguous
	}

	overrides := config.CLIOverrides{
		Environment:  f.environment,
		Profile:      f.profile,
		Threshold:    f.threshold,
		MaxHistory:   f.maxHistory,
		ProjectID:    f.projectID,
		Reporters:    f.reporters,
		DBConnection: f.dbConnection,
		BucketName:   f.bucketName,
		HistoryFile:  f.historyFile,
	}

	return config.Load(f.configPath, overrides)
}

func (f *storageFlags) projectIDOrDefault(cfg *config.Config) string {
	if f.projectID != "" {
		return f.projectID
	}

	return cfg.Project.ID
}

// openService loads the config for f and initializes its storage.Service,
// returning a close func the caller should defer.
func openService(ctx context.Context, f *storageFlags) (*config.Config, *storage.Service, func(), error) {
	cfg, err := f.loadConfig()
	if err != nil {
		return nil, nil, func() {}, err
	}

	svc := storage.NewService(cfg)
	if err := svc.Initialize(ctx); err != nil {
		return nil, nil, func() {}, err
	}

	slog.Debug("storage service initialized", "adapter", svc.Kind())

	closeFn := func() {
		warnFallbacks(svc)

		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Close(closeCtx)
	}

	return cfg, svc, closeFn, nil
}

// warnFallbacks logs every fallback retry the service recorded since it
// was opened, per §4.J's "records a warning" contract. The storage package
// only tracks these as typed events; logging them is a CLI concern.
func warnFallbacks(svc *storage.Service) {
	for _, ev := range svc.FallbackEvents() {
		slog.Warn("storage operation fell back to filesystem", "operation", ev.Operation, "error", ev.PrimaryErr, "time", ev.Time)
	}
}

// serveMetricsUntilSignal starts a Prometheus exporter, lets register wire
// any additional instruments against its MeterProvider, serves /metrics
// (and /readyz, when checkFn is given) alongside /healthz until
// SIGINT/SIGTERM, then shuts the server down within a grace period. This
// is the one HTTP surface perf-sentinel opens, and only for the duration
// of a single --metrics-addr invocation.
func serveMetricsUntilSignal(cmd *cobra.Command, addr string, checkFn func(context.Context) (bool, []storage.Health), register func(*observability.PrometheusExporter) error) error {
	exporter, err := observability.NewPrometheusExporter()
	if err != nil {
		return err
	}

	if register != nil {
		if err := register(exporter); err != nil {
			return err
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", exporter.Handler)
	mux.Handle("/healthz", observability.LivenessHandler())

	if checkFn != nil {
		mux.Handle("/readyz", observability.ReadinessHandler(checkFn))
	}

	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)

	go func() {
		serveErr <- server.ListenAndServe()
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "serving metrics on %s until interrupted\n", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsServerShutdownGrace)
		defer cancel()

		return server.Shutdown(shutdownCtx)
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	}
}
