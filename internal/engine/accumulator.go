package engine

import (
	"time"

	"github.com/andrewajenkins/perf-sentinel/internal/config"
	"github.com/andrewajenkins/perf-sentinel/internal/model"
)

// accumulator collects per-sample results over the course of one Analyze
// call and turns them into the final Report once every sample has been
// processed.
type accumulator struct {
	suites map[string]*model.SuiteSummary

	regressions []model.StepRecord
	newSteps    []model.StepRecord
	ok          []model.StepRecord
	trends      []model.StepRecord

	stepTexts map[string]struct{}
	jobIDs    map[string]struct{}
	tags      map[string]struct{}

	tagAgg map[string]*tagAccumulator

	totalSteps int
}

type tagAccumulator struct {
	stepCount int
	total     float64
	min       float64
	max       float64
	suites    map[string]struct{}
	files     map[string]struct{}
}

func newAccumulator() *accumulator {
	return &accumulator{
		suites:    map[string]*model.SuiteSummary{},
		stepTexts: map[string]struct{}{},
		jobIDs:    map[string]struct{}{},
		tags:      map[string]struct{}{},
		tagAgg:    map[string]*tagAccumulator{},
	}
}

func (a *accumulator) suite(name string) *model.SuiteSummary {
	s, ok := a.suites[name]
	if !ok {
		s = &model.SuiteSummary{
			Suite:     name,
			TestFiles: map[string]struct{}{},
			Tags:      map[string]struct{}{},
		}
		a.suites[name] = s
	}

	return s
}

// observeContext folds one sample's step text, job id and tags into the
// per-run metadata counters; it runs for every sample regardless of
// verdict. Tag duration stats are kept separately by recordTagDurations.
func (a *accumulator) observeContext(ctx model.StepContext, stepText string) {
	a.totalSteps++
	a.stepTexts[stepText] = struct{}{}
	a.jobIDs[ctx.JobID] = struct{}{}

	for _, tag := range ctx.Tags {
		a.tags[tag] = struct{}{}
	}
}

// recordTagDurations folds one classified sample's duration into every
// tag it carries. Called once per sample after classification, alongside
// the new/ok/regression bucket it lands in, so tag stats reflect duration
// rather than just presence.
func (a *accumulator) recordTagDurations(ctx model.StepContext, duration float64) {
	for _, tag := range ctx.Tags {
		agg, ok := a.tagAgg[tag]
		if !ok {
			agg = &tagAccumulator{min: duration, max: duration, suites: map[string]struct{}{}, files: map[string]struct{}{}}
			a.tagAgg[tag] = agg
		}

		agg.stepCount++
		agg.total += duration

		if duration < agg.min {
			agg.min = duration
		}

		if duration > agg.max {
			agg.max = duration
		}

		agg.suites[ctx.Suite] = struct{}{}
		agg.files[ctx.TestFile] = struct{}{}
	}
}

func (a *accumulator) addNew(r model.StepRecord) {
	a.newSteps = append(a.newSteps, r)
	a.recordTagDurations(r.Context, r.Duration)
}

func (a *accumulator) addOK(r model.StepRecord) {
	a.ok = append(a.ok, r)
	a.recordTagDurations(r.Context, r.Duration)
}

func (a *accumulator) addRegression(r model.StepRecord) {
	a.regressions = append(a.regressions, r)
	a.recordTagDurations(r.Context, r.Duration)
}

func (a *accumulator) addTrend(r model.StepRecord) {
	a.trends = append(a.trends, r)
}

// buildReport finalizes every suite summary, computes overall health,
// builds tag analysis and critical-path analysis, and assembles the
// top-level Report.
func (a *accumulator) buildReport(cfg *config.Config, working *model.HistoryDocument, now time.Time) *model.Report {
	var suiteRegressions []model.SuiteRegression

	for _, suite := range a.suites {
		if reg := finalizeSuite(cfg, suite, working, now); reg != nil {
			suiteRegressions = append(suiteRegressions, *reg)
		}
	}

	overallHealth := 100.0
	if len(a.suites) > 0 {
		var sum float64
		for _, s := range a.suites {
			sum += s.HealthScore
		}

		overallHealth = sum / float64(len(a.suites))
	}

	tagAnalysis := a.buildTagAnalysis()
	criticalPath := buildCriticalPath(a.regressions, a.trends, a.newSteps)
	recommendations := buildRecommendations(a.suites, criticalPath)

	return &model.Report{
		Regressions:      a.regressions,
		NewSteps:         a.newSteps,
		OK:                a.ok,
		Trends:           a.trends,
		Suites:           a.suites,
		SuiteRegressions: suiteRegressions,
		TagAnalysis:      tagAnalysis,
		CriticalPath:     criticalPath,
		Recommendations:  recommendations,
		Metadata: model.ReportMetadata{
			TotalSteps:    a.totalSteps,
			UniqueSteps:   len(a.stepTexts),
			Suites:        len(a.suites),
			Tags:          len(a.tags),
			Jobs:          len(a.jobIDs),
			Timestamp:     now,
			OverallHealth: round(overallHealth),
		},
	}
}

func (a *accumulator) buildTagAnalysis() map[string]*model.TagSummary {
	out := make(map[string]*model.TagSummary, len(a.tagAgg))

	for tag, agg := range a.tagAgg {
		out[tag] = &model.TagSummary{
			Tag:         tag,
			StepCount:   agg.stepCount,
			AvgDuration: agg.total / float64(agg.stepCount),
			MinDuration: agg.min,
			MaxDuration: agg.max,
			Total:       agg.total,
			Suites:      keysOf(agg.suites),
			TestFiles:   keysOf(agg.files),
		}
	}

	return out
}

func keysOf(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}

	return out
}

func round(v float64) float64 {
	if v < 0 {
		return 0
	}

	return float64(int(v + 0.5))
}
