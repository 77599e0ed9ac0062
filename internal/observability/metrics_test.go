package observability_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/andrewajenkins/perf-sentinel/internal/model"
	"github.com/andrewajenkins/perf-sentinel/internal/observability"
)

func setupTestMeter(t *testing.T) (*observability.ClassificationMetrics, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := mp.Meter("test")

	cm, err := observability.NewClassificationMetrics(meter)
	require.NoError(t, err)

	return cm, reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics

	err := reader.Collect(context.Background(), &rm)
	require.NoError(t, err)

	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for idx := range rm.ScopeMetrics {
		for midx := range rm.ScopeMetrics[idx].Metrics {
			if rm.ScopeMetrics[idx].Metrics[midx].Name == name {
				return &rm.ScopeMetrics[idx].Metrics[midx]
			}
		}
	}

	return nil
}

func TestClassificationMetrics_RecordClassification(t *testing.T) {
	t.Parallel()

	cm, reader := setupTestMeter(t)
	ctx := context.Background()

	cm.RecordClassification(ctx, "regression", 1250)

	rm := collectMetrics(t, reader)

	total := findMetric(rm, "perf_sentinel.classifications.total")
	require.NotNil(t, total, "perf_sentinel.classifications.total metric not found")

	duration := findMetric(rm, "perf_sentinel.step.duration.seconds")
	require.NotNil(t, duration, "perf_sentinel.step.duration.seconds metric not found")
}

func TestClassificationMetrics_RecordSuiteHealth(t *testing.T) {
	t.Parallel()

	cm, reader := setupTestMeter(t)
	ctx := context.Background()

	cm.RecordSuiteHealth(ctx, "checkout", 82)

	rm := collectMetrics(t, reader)

	health := findMetric(rm, "perf_sentinel.suite.health_score")
	require.NotNil(t, health)

	hist, ok := health.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.NotEmpty(t, hist.DataPoints)
}

func TestClassificationMetrics_DurationHistogramUsesStepBuckets(t *testing.T) {
	t.Parallel()

	cm, reader := setupTestMeter(t)
	ctx := context.Background()

	cm.RecordClassification(ctx, "ok", 500)

	rm := collectMetrics(t, reader)

	duration := findMetric(rm, "perf_sentinel.step.duration.seconds")
	require.NotNil(t, duration)

	hist, ok := duration.Data.(metricdata.Histogram[float64])
	require.True(t, ok, "expected Histogram data type")
	require.NotEmpty(t, hist.DataPoints)

	expectedBounds := []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}
	assert.Equal(t, expectedBounds, hist.DataPoints[0].Bounds)
}

func TestRecordReport_RecordsEveryVerdictAndSuiteHealth(t *testing.T) {
	t.Parallel()

	cm, reader := setupTestMeter(t)
	ctx := context.Background()

	report := &model.Report{
		Regressions: []model.StepRecord{{StepText: "pay", Duration: 900}},
		NewSteps:    []model.StepRecord{{StepText: "new step", Duration: 100}},
		OK:          []model.StepRecord{{StepText: "navigate", Duration: 150}},
		Trends:      []model.StepRecord{{StepText: "search", Duration: 400}},
		Suites: map[string]*model.SuiteSummary{
			"checkout": {Suite: "checkout", HealthScore: 72},
		},
	}

	observability.RecordReport(ctx, cm, report)

	rm := collectMetrics(t, reader)

	total := findMetric(rm, "perf_sentinel.classifications.total")
	require.NotNil(t, total)

	sum, ok := total.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Len(t, sum.DataPoints, 4)

	health := findMetric(rm, "perf_sentinel.suite.health_score")
	require.NotNil(t, health)

	hist, ok := health.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
}

func TestAdapterHealthGauge_ReportsConfiguredAdapters(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := mp.Meter("test")

	_, err := observability.NewAdapterHealthGauge(meter, func(context.Context) map[string]bool {
		return map[string]bool{"filesystem": true, "s3": false}
	})
	require.NoError(t, err)

	rm := collectMetrics(t, reader)

	gauge := findMetric(rm, "perf_sentinel.storage.adapter.healthy")
	require.NotNil(t, gauge, "perf_sentinel.storage.adapter.healthy metric not found")

	data, ok := gauge.Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	assert.Len(t, data.DataPoints, 2)
}
