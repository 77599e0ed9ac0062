package classify

import (
	"testing"

	"github.com/andrewajenkins/perf-sentinel/internal/config"
	"github.com/andrewajenkins/perf-sentinel/pkg/stats"
	"github.com/stretchr/testify/assert"
)

func defaultEff(threshold float64, rules config.Rules) config.EffectiveStepConfig {
	return config.EffectiveStepConfig{Threshold: threshold, Rules: rules}
}

func noTrend() config.TrendConfig {
	return config.TrendConfig{}
}

func baselineFrom(durations []float64) *Baseline {
	mean, stddev := stats.MeanStdDev(durations)
	return &Baseline{Durations: durations, Average: mean, StdDev: stddev}
}

func TestClassify_S1_NoRegression(t *testing.T) {
	t.Parallel()

	baseline := baselineFrom([]float64{150, 155, 148})
	eff := defaultEff(2.0, config.Rules{MinPercentageChange: 15, MinAbsoluteSlowdown: 20})

	got := Classify(152, baseline, eff, noTrend())
	assert.Equal(t, VerdictOK, got.Verdict)
}

func TestClassify_S2_ClearRegression(t *testing.T) {
	t.Parallel()

	baseline := baselineFrom([]float64{540, 545, 542})
	eff := defaultEff(2.0, config.Rules{MinPercentageChange: 15, MinAbsoluteSlowdown: 100})

	got := Classify(680, baseline, eff, noTrend())
	assert.Equal(t, VerdictRegression, got.Verdict)
	assert.InDelta(t, 137.667, got.Slowdown, 1.0)
	assert.InDelta(t, 25.8, got.Percentage, 1.0)
}

func TestClassify_S3_SuppressedByFloor(t *testing.T) {
	t.Parallel()

	baseline := baselineFrom([]float64{30, 32, 31, 33, 32})
	eff := defaultEff(2.0, config.Rules{MinPercentageChange: 15, MinAbsoluteSlowdown: 15})

	got := Classify(45, baseline, eff, noTrend())
	assert.Equal(t, VerdictOK, got.Verdict)
	assert.InDelta(t, 13.4, got.Slowdown, 0.5)
}

func TestClassify_S4_DriftDetection(t *testing.T) {
	t.Parallel()

	history := []float64{100, 102, 104, 118, 120, 122}
	baseline := baselineFrom(history)
	eff := defaultEff(2.0, config.Rules{MinPercentageChange: 15, MinAbsoluteSlowdown: 20})
	trend := config.TrendConfig{Enabled: true, WindowSize: 3, MinSignificance: 10, MinHistoryRequired: 6}

	got := Classify(115, baseline, eff, trend)
	assert.True(t, got.Drift)
	assert.Greater(t, got.TrendDelta, 10.0)
}

func TestClassify_S5_NewStep(t *testing.T) {
	t.Parallel()

	got := Classify(200, nil, config.EffectiveStepConfig{}, noTrend())
	assert.Equal(t, VerdictNew, got.Verdict)
}

func TestClassify_FirstRunAfterSeedingNeverRegresses(t *testing.T) {
	t.Parallel()

	baseline := &Baseline{Durations: []float64{100}, Average: 100, StdDev: 0}
	eff := defaultEff(0.01, config.Rules{MinPercentageChange: 0, MinAbsoluteSlowdown: 0})

	got := Classify(500, baseline, eff, noTrend())
	assert.Equal(t, VerdictOK, got.Verdict)
}

func TestClassify_S8_ContextAwareOverrideTriggersRegression(t *testing.T) {
	t.Parallel()

	baseline := baselineFrom([]float64{1000, 1010, 1005, 995, 1008, 1002})

	// Under default-ish rules this slowdown would be filtered out.
	defaultRules := config.Rules{MinPercentageChange: 15, MinAbsoluteSlowdown: 100}
	defaultResult := Classify(1020, baseline, defaultEff(2.0, defaultRules), noTrend())
	assert.Equal(t, VerdictOK, defaultResult.Verdict)

	// The @critical tag override is far stricter and should flip the verdict.
	criticalRules := config.Rules{MinPercentageChange: 1, MinAbsoluteSlowdown: 5}
	criticalResult := Classify(1020, baseline, defaultEff(0.5, criticalRules), noTrend())
	assert.Equal(t, VerdictRegression, criticalResult.Verdict)
}
