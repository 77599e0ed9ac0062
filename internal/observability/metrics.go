package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/andrewajenkins/perf-sentinel/internal/model"
)

const (
	metricClassificationsTotal = "perf_sentinel.classifications.total"
	metricStepDuration         = "perf_sentinel.step.duration.seconds"
	metricSuiteHealth          = "perf_sentinel.suite.health_score"
	metricAdapterHealthy       = "perf_sentinel.storage.adapter.healthy"

	attrVerdict = "verdict"
	attrSuite   = "suite"
	attrAdapter = "adapter"
)

// stepDurationBucketBoundaries covers 10ms to 120s, the range observed
// across very_fast through slow step buckets (see internal/config).
var stepDurationBucketBoundaries = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}

// ClassificationMetrics holds the OTel instruments an `analyze
// --metrics-addr` run exposes for the classifier and the suite health
// model. Unlike a long-running service, perf-sentinel records these once
// per invocation: the metrics endpoint is opt-in and scraped for the
// duration of a single run, never left listening afterward.
type ClassificationMetrics struct {
	classificationsTotal metric.Int64Counter
	stepDuration         metric.Float64Histogram
	suiteHealth          metric.Float64Histogram
}

// NewClassificationMetrics creates the classification instruments from
// the given meter.
func NewClassificationMetrics(mt metric.Meter) (*ClassificationMetrics, error) {
	b := newMetricBuilder(mt)

	cm := &ClassificationMetrics{
		classificationsTotal: b.counter(metricClassificationsTotal, "Total number of steps classified, by verdict", "{step}"),
		stepDuration:         b.histogram(metricStepDuration, "Observed step duration", "s", stepDurationBucketBoundaries...),
		suiteHealth:          b.histogram(metricSuiteHealth, "Suite health score at analysis time", "{score}"),
	}

	if b.err != nil {
		return nil, b.err
	}

	return cm, nil
}

// RecordClassification records one step's verdict and duration.
func (cm *ClassificationMetrics) RecordClassification(ctx context.Context, verdict string, durationMillis float64) {
	attrs := metric.WithAttributes(attribute.String(attrVerdict, verdict))

	cm.classificationsTotal.Add(ctx, 1, attrs)
	cm.stepDuration.Record(ctx, durationMillis/1000, attrs)
}

// RecordSuiteHealth records one suite's health score.
func (cm *ClassificationMetrics) RecordSuiteHealth(ctx context.Context, suite string, score float64) {
	cm.suiteHealth.Record(ctx, score, metric.WithAttributes(attribute.String(attrSuite, suite)))
}

// RecordReport replays every classified step and suite health score from
// one analysis report into cm, so a caller serving --metrics-addr has
// something to scrape beyond storage-adapter health.
func RecordReport(ctx context.Context, cm *ClassificationMetrics, report *model.Report) {
	recordVerdict := func(records []model.StepRecord, verdict string) {
		for _, r := range records {
			cm.RecordClassification(ctx, verdict, r.Duration)
		}
	}

	recordVerdict(report.Regressions, "regression")
	recordVerdict(report.NewSteps, "new")
	recordVerdict(report.OK, "ok")
	recordVerdict(report.Trends, "trend")

	for suite, summary := range report.Suites {
		cm.RecordSuiteHealth(ctx, suite, summary.HealthScore)
	}
}

// AdapterHealthGauge reports whether each configured storage adapter is
// reachable, as an observable gauge sampled at scrape time.
type AdapterHealthGauge struct {
	gauge metric.Int64ObservableGauge
}

// NewAdapterHealthGauge registers an observable gauge that calls report
// each time the meter is scraped.
func NewAdapterHealthGauge(mt metric.Meter, report func(ctx context.Context) map[string]bool) (*AdapterHealthGauge, error) {
	b := newMetricBuilder(mt)

	g := b.gauge(metricAdapterHealthy, "1 if the storage adapter responded healthy at last check, else 0", "{adapter}")
	if b.err != nil {
		return nil, b.err
	}

	_, err := mt.RegisterCallback(func(ctx context.Context, obs metric.Observer) error {
		for adapter, healthy := range report(ctx) {
			value := int64(0)
			if healthy {
				value = 1
			}

			obs.ObserveInt64(g, value, metric.WithAttributes(attribute.String(attrAdapter, adapter)))
		}

		return nil
	}, g)
	if err != nil {
		return nil, err
	}

	return &AdapterHealthGauge{gauge: g}, nil
}
