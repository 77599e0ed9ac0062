// Package engine implements the analysis engine: given a run's samples,
// the project's history, and the resolved configuration, it produces a
// Report and the successor HistoryDocument the caller should persist.
//
// The engine never touches storage or the system clock; both the input
// history and the timestamp to stamp results with are supplied by the
// caller, which is what makes a run fully deterministic and replayable.
package engine

import (
	"time"

	"github.com/andrewajenkins/perf-sentinel/internal/classify"
	"github.com/andrewajenkins/perf-sentinel/internal/config"
	"github.com/andrewajenkins/perf-sentinel/internal/contextnorm"
	"github.com/andrewajenkins/perf-sentinel/internal/model"
	"github.com/andrewajenkins/perf-sentinel/pkg/stats"
)

// Engine runs one analysis pass under a fixed configuration.
type Engine struct {
	cfg *config.Config
}

// New returns an Engine bound to cfg. cfg is not mutated.
func New(cfg *config.Config) *Engine {
	return &Engine{cfg: cfg}
}

// Analyze implements §4.E: it deep-copies history, classifies every
// sample in order against the working copy, rolls per-suite and per-tag
// summaries, and returns the report alongside the history the caller
// should persist in its place.
func (e *Engine) Analyze(samples []model.StepSample, history *model.HistoryDocument, now time.Time) (*model.Report, *model.HistoryDocument) {
	working := history.Clone()
	if working.SuiteHistory == nil {
		working.SuiteHistory = map[string]*model.SuiteHistory{}
	}

	acc := newAccumulator()

	for _, sample := range samples {
		e.processSample(sample, working, acc, now)
	}

	report := acc.buildReport(e.cfg, working, now)

	return report, working
}

// processSample classifies one sample against the working history,
// updates the relevant SuiteSummary, and folds the sample's duration back
// into its HistoryEntry.
func (e *Engine) processSample(sample model.StepSample, working *model.HistoryDocument, acc *accumulator, now time.Time) {
	ctx := contextnorm.Normalize(sample.Context)
	acc.observeContext(ctx, sample.StepText)

	suite := acc.suite(ctx.Suite)
	suite.TotalSteps++
	suite.TotalDuration += sample.Duration
	suite.MinDuration = minNonZero(suite.MinDuration, sample.Duration, suite.TotalSteps == 1)
	suite.MaxDuration = maxOf(suite.MaxDuration, sample.Duration)
	suite.TestFiles[ctx.TestFile] = struct{}{}

	for _, tag := range ctx.Tags {
		suite.Tags[tag] = struct{}{}

		if tag == "@critical" {
			suite.CriticalTagCount++
		}

		if tag == "@smoke" {
			suite.SmokeTagCount++
		}
	}

	entry, exists := working.Steps[sample.StepText]
	if !exists {
		working.Steps[sample.StepText] = &model.HistoryEntry{
			Durations: []float64{sample.Duration},
			Average:   sample.Duration,
			StdDev:    0,
			Context:   ctx,
			FirstSeen: now,
			LastSeen:  now,
		}
		suite.NewSteps++
		acc.addNew(model.StepRecord{
			StepText:  sample.StepText,
			Duration:  sample.Duration,
			Context:   ctx,
			Timestamp: now,
			Reason:    "no prior history for this step",
		})

		return
	}

	eff := e.cfg.EffectiveStepConfig(sample.StepText, entry.Average, config.StepContext{Suite: ctx.Suite, Tags: ctx.Tags})
	trend := e.cfg.Trend()

	baseline := &classify.Baseline{Durations: entry.Durations, Average: entry.Average, StdDev: entry.StdDev}
	result := classify.Classify(sample.Duration, baseline, eff, trend)

	record := model.StepRecord{
		StepText:      sample.StepText,
		Duration:      sample.Duration,
		PriorAverage:  entry.Average,
		PriorStdDev:   entry.StdDev,
		Slowdown:      result.Slowdown,
		Percentage:    result.Percentage,
		AppliedConfig: eff,
		Context:       ctx,
		Timestamp:     now,
		Reason:        result.Reason,
	}

	if result.Verdict == classify.VerdictRegression && len(entry.Durations) >= 2 {
		suite.Regressions++
		acc.addRegression(record)
	} else {
		acc.addOK(record)
	}

	if result.Drift {
		driftRecord := record
		driftRecord.TrendDelta = result.TrendDelta
		acc.addTrend(driftRecord)
	}

	entry.Durations = append(entry.Durations, sample.Duration)
	if e.cfg.Analysis.MaxHistory > 0 && len(entry.Durations) > e.cfg.Analysis.MaxHistory {
		entry.Durations = entry.Durations[len(entry.Durations)-e.cfg.Analysis.MaxHistory:]
	}

	entry.Average, entry.StdDev = stats.MeanStdDev(entry.Durations)
	entry.LastSeen = now

	oldTags := entry.Context.Tags
	entry.Context = ctx
	entry.Context.Tags = contextnorm.MergeTags(oldTags, ctx.Tags)
}

func minNonZero(current, candidate float64, isFirst bool) float64 {
	if isFirst {
		return candidate
	}

	if candidate < current {
		return candidate
	}

	return current
}

func maxOf(current, candidate float64) float64 {
	if candidate > current {
		return candidate
	}

	return current
}
