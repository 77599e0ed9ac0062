// Package classify implements the per-step regression/drift classifier:
// given a sample, its (possibly absent) historical baseline, and the
// effective configuration resolved for it, decide whether the sample is
// new, ok, or a regression, and independently whether it constitutes
// drift.
package classify

import (
	"github.com/andrewajenkins/perf-sentinel/internal/config"
	"github.com/andrewajenkins/perf-sentinel/pkg/stats"
)

// Verdict is one of new, ok, or regression.
type Verdict string

// Recognized verdicts.
const (
	VerdictNew        Verdict = "new"
	VerdictOK         Verdict = "ok"
	VerdictRegression Verdict = "regression"
)

// Result is the full outcome of classifying one sample: its regression
// verdict plus, independently, whether it triggers a drift record.
type Result struct {
	Verdict    Verdict
	Slowdown   float64
	Percentage float64
	Drift      bool
	TrendDelta float64
	Reason     string
}

// Baseline is the subset of a HistoryEntry the classifier needs: the
// current durations window and its derived average/stddev, read before
// the new sample is absorbed.
type Baseline struct {
	Durations []float64
	Average   float64
	StdDev    float64
}

// Classify implements the full decision per the component design: absent
// baseline is always new; otherwise the basic regression predicate gates
// everything else, rule filters can downgrade a crossing sample back to
// ok, and drift is evaluated independently of the regression verdict.
func Classify(duration float64, baseline *Baseline, eff config.EffectiveStepConfig, trend config.TrendConfig) Result {
	if baseline == nil {
		return Result{Verdict: VerdictNew}
	}

	slowdown := duration - baseline.Average

	var percentage float64
	if baseline.Average != 0 {
		percentage = slowdown / baseline.Average * 100
	}

	result := Result{Slowdown: slowdown, Percentage: percentage, Verdict: VerdictOK}

	// First run after seeding: exactly one prior sample never regresses,
	// regardless of how the basic predicate or rules would otherwise read.
	if len(baseline.Durations) < 2 {
		result.Drift, result.TrendDelta = evaluateDrift(baseline.Durations, duration, trend)

		return result
	}

	if duration <= baseline.Average+eff.Threshold*baseline.StdDev {
		result.Drift, result.TrendDelta = evaluateDrift(baseline.Durations, duration, trend)

		return result
	}

	if !passesRules(slowdown, percentage, baseline, eff, trend) {
		result.Drift, result.TrendDelta = evaluateDrift(baseline.Durations, duration, trend)

		return result
	}

	result.Verdict = VerdictRegression
	result.Reason = "duration exceeded baseline average by more than threshold * stdDev"
	result.Drift, result.TrendDelta = evaluateDrift(baseline.Durations, duration, trend)

	return result
}

// passesRules applies each rule filter in order; the first failing rule
// downgrades the sample back to ok.
func passesRules(slowdown, percentage float64, baseline *Baseline, eff config.EffectiveStepConfig, trend config.TrendConfig) bool {
	rules := eff.Rules

	if percentage < rules.MinPercentageChange {
		return false
	}

	if slowdown < rules.MinAbsoluteSlowdown {
		return false
	}

	if rules.CheckTrends && len(baseline.Durations) >= trend.MinHistoryRequired {
		t := stats.ComputeTrend(baseline.Durations, stats.TrendOptions{
			Window:          trend.WindowSize,
			MinSignificance: trend.MinSignificance,
		})
		if !t.Significant && slowdown < rules.TrendSensitivity {
			return false
		}
	}

	if rules.FilterStableSteps && baseline.StdDev < rules.StableThreshold && slowdown < rules.StableMinSlowdown {
		return false
	}

	return true
}

// evaluateDrift runs independently of the regression verdict: if trends
// are enabled, the step already has enough historical samples, and the
// windowed trend over that history is significant (and non-negative when
// OnlyUpward), it is reported as drift. The current sample's duration is
// not itself part of the trend window; drift describes the established
// baseline, not the one observation that happened to arrive this run.
func evaluateDrift(priorDurations []float64, _ float64, trend config.TrendConfig) (bool, float64) {
	if !trend.Enabled || len(priorDurations) < trend.MinHistoryRequired {
		return false, 0
	}

	t := stats.ComputeTrend(priorDurations, stats.TrendOptions{
		Window:          trend.WindowSize,
		MinSignificance: trend.MinSignificance,
	})

	if !t.Significant {
		return false, 0
	}

	if trend.OnlyUpward && t.Delta < 0 {
		return false, 0
	}

	return true, t.Delta
}
