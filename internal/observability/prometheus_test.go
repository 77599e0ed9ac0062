package observability_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrewajenkins/perf-sentinel/internal/observability"
)

func TestPrometheusExporter_ServesMetrics(t *testing.T) {
	t.Parallel()

	exporter, err := observability.NewPrometheusExporter()
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	rec := httptest.NewRecorder()

	exporter.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
}

func TestPrometheusExporter_ContainsTargetInfo(t *testing.T) {
	t.Parallel()

	exporter, err := observability.NewPrometheusExporter()
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	rec := httptest.NewRecorder()

	exporter.Handler.ServeHTTP(rec, req)

	assert.Contains(t, rec.Body.String(), "target_info")
}

func TestPrometheusExporter_IndependentRegistriesPerCall(t *testing.T) {
	t.Parallel()

	first, err := observability.NewPrometheusExporter()
	require.NoError(t, err)

	second, err := observability.NewPrometheusExporter()
	require.NoError(t, err)

	assert.NotSame(t, first.MeterProvider, second.MeterProvider)
}
