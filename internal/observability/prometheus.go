package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// PrometheusExporter bundles a registry, meter provider, and HTTP handler
// for one opt-in metrics-serving window. analyze --metrics-addr and
// health-check --metrics-addr each start one of these, serve it until the
// process is interrupted, and tear it down — perf-sentinel never runs a
// standing metrics server.
type PrometheusExporter struct {
	Handler       http.Handler
	MeterProvider *sdkmetric.MeterProvider
}

// NewPrometheusExporter creates a Prometheus metrics exporter backed by an
// OTel MeterProvider. Each call creates an independent registry to avoid
// collector conflicts when called multiple times in the same process
// (notably in tests).
func NewPrometheusExporter() (*PrometheusExporter, error) {
	registry := prometheus.NewRegistry()

	exporter, err := promexporter.New(promexporter.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))

	return &PrometheusExporter{
		Handler:       promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		MeterProvider: provider,
	}, nil
}
