package engine

import (
	"fmt"
	"time"

	"github.com/andrewajenkins/perf-sentinel/internal/config"
	"github.com/andrewajenkins/perf-sentinel/internal/model"
	"github.com/andrewajenkins/perf-sentinel/pkg/stats"
)

const (
	suiteRegressionMinHistory = 2
	upwardTrendMinHistory     = 3
	instabilityRateThreshold  = 0.1
)

// finalizeSuite computes a suite's derived metrics (§4.E step 4): average
// duration, health score, category and severity, rule-based
// recommendations, and its suite-level regression (if any); it then
// appends this round's averages onto the suite's SuiteHistory, truncating
// to the last 20 entries. It returns the detected suite regression, or
// nil when none occurred.
func finalizeSuite(cfg *config.Config, suite *model.SuiteSummary, working *model.HistoryDocument, now time.Time) *model.SuiteRegression {
	if suite.TotalSteps > 0 {
		suite.AvgDuration = suite.TotalDuration / float64(suite.TotalSteps)
	}

	suite.TestFileCount = len(suite.TestFiles)

	history := working.SuiteHistory[suite.Suite]
	if history == nil {
		history = &model.SuiteHistory{}
		working.SuiteHistory[suite.Suite] = history
	}

	var regression *model.SuiteRegression
	if len(history.AvgDurationHistory) >= suiteRegressionMinHistory {
		histMean, histStdDev := stats.MeanStdDev(history.AvgDurationHistory)
		if suite.AvgDuration > histMean+cfg.Analysis.Threshold*histStdDev {
			delta := suite.AvgDuration - histMean
			percentage := 0.0

			if histMean != 0 {
				percentage = delta / histMean * 100
			}

			regression = &model.SuiteRegression{
				Suite:      suite.Suite,
				CurrentAvg: suite.AvgDuration,
				HistMean:   histMean,
				HistStdDev: histStdDev,
				Delta:      delta,
				Percentage: percentage,
			}
		}
	}

	suite.HealthScore = computeHealthScore(cfg, suite, history)
	suite.Category, suite.Severity = categorizeSuite(suite.HealthScore, suite.RegressionRate())
	suite.Recommendations = buildSuiteRecommendations(suite)

	history.AppendAndTruncate(suite.AvgDuration, suite.TotalSteps, suite.RegressionRate(), now)

	return regression
}

// computeHealthScore implements §4.E step 4's penalty model: start at
// 100 and subtract up to four independent penalties, clamped to ≥0.
func computeHealthScore(cfg *config.Config, suite *model.SuiteSummary, history *model.SuiteHistory) float64 {
	score := 100.0

	regressionRate := suite.RegressionRate()
	score -= stats.Clamp(regressionRate*100, 0, 30)

	if len(history.AvgDurationHistory) >= upwardTrendMinHistory {
		t := stats.ComputeTrend(history.AvgDurationHistory, stats.TrendOptions{
			Window:          cfg.Analysis.Trends.WindowSize,
			MinSignificance: cfg.Analysis.Trends.MinSignificance,
		})

		if t.Significant && t.Delta > 0 && suite.AvgDuration > 0 {
			penalty := t.Delta / suite.AvgDuration * 100
			score -= stats.Clamp(penalty, 0, 25)
		}
	}

	if suite.NewStepRate() > instabilityRateThreshold {
		score -= stats.Clamp(suite.NewStepRate()*100, 0, 20)
	}

	if suite.HasCriticalTag() && suite.Regressions > 0 {
		score -= stats.Clamp(float64(suite.Regressions)*5, 0, 25)
	}

	return stats.Clamp(score, 0, 100)
}

// categorizeSuite maps a health score and regression rate onto the
// coarse category/severity pair used for reporting.
func categorizeSuite(healthScore, regressionRate float64) (model.Category, model.Severity) {
	switch {
	case healthScore < 50 || regressionRate > 0.3:
		return model.CategoryCritical, model.SeverityHigh
	case healthScore < 70 || regressionRate > 0.15:
		return model.CategoryWarning, model.SeverityMedium
	case healthScore < 85 || regressionRate > 0.05:
		return model.CategoryAttention, model.SeverityLow
	default:
		return model.CategoryGood, model.SeverityLow
	}
}

// buildSuiteRecommendations produces deterministic, rule-based
// suggestions for one suite.
func buildSuiteRecommendations(suite *model.SuiteSummary) []string {
	var recs []string

	if suite.Regressions > 0 {
		recs = append(recs, fmt.Sprintf("investigate %d regression(s) in suite %q", suite.Regressions, suite.Suite))
	}

	if suite.NewStepRate() > instabilityRateThreshold {
		recs = append(recs, fmt.Sprintf("suite %q added a large share of new steps this run; baselines may still be settling", suite.Suite))
	}

	if suite.AvgDuration > 1000 {
		recs = append(recs, fmt.Sprintf("suite %q averages over 1s per step; consider splitting slow steps", suite.Suite))
	}

	if suite.HasCriticalTag() && suite.Regressions > 0 {
		recs = append(recs, fmt.Sprintf("suite %q carries critical/smoke coverage and has active regressions; prioritize", suite.Suite))
	}

	if suite.TestFileCount > 20 {
		recs = append(recs, fmt.Sprintf("suite %q spans %d test files; consider narrowing its scope", suite.Suite, suite.TestFileCount))
	}

	return recs
}
