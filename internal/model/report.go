package model

import (
	"time"

	"github.com/andrewajenkins/perf-sentinel/internal/config"
)

// Severity is a coarse-grained urgency level used by both suite
// categorization and critical-path analysis.
type Severity string

// Recognized severities, in ascending order of urgency.
const (
	SeverityNone   Severity = "none"
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// MaxSeverity returns whichever of a, b is the more urgent.
func MaxSeverity(a, b Severity) Severity {
	rank := map[Severity]int{SeverityNone: 0, SeverityLow: 1, SeverityMedium: 2, SeverityHigh: 3}
	if rank[b] > rank[a] {
		return b
	}

	return a
}

// Category is the suite-level health bucket.
type Category string

// Recognized suite categories.
const (
	CategoryGood      Category = "good"
	CategoryAttention Category = "attention"
	CategoryWarning   Category = "warning"
	CategoryCritical  Category = "critical"
)

// StepRecord describes one classified sample, regardless of which of the
// report's four buckets (new/ok/regression/trend) it was placed in.
type StepRecord struct {
	StepText      string                     `json:"stepText"`
	Duration      float64                    `json:"duration"`
	PriorAverage  float64                    `json:"priorAverage,omitempty"`
	PriorStdDev   float64                    `json:"priorStdDev,omitempty"`
	Slowdown      float64                    `json:"slowdown,omitempty"`
	Percentage    float64                    `json:"percentage,omitempty"`
	TrendDelta    float64                    `json:"trendDelta,omitempty"`
	AppliedConfig config.EffectiveStepConfig `json:"appliedConfig"`
	Context       StepContext                `json:"context"`
	Timestamp     time.Time                  `json:"timestamp"`
	Reason        string                     `json:"reason,omitempty"`
}

// SuiteRegression is a suite-level regression record: the current average
// duration diverged from the suite's own historical average by more than
// the configured threshold.
type SuiteRegression struct {
	Suite      string  `json:"suite"`
	CurrentAvg float64 `json:"currentAvg"`
	HistMean   float64 `json:"histMean"`
	HistStdDev float64 `json:"histStdDev"`
	Delta      float64 `json:"delta"`
	Percentage float64 `json:"percentage"`
}

// SuiteSummary aggregates one suite's observed steps for one analysis run.
type SuiteSummary struct {
	Suite            string                     `json:"suite"`
	TotalSteps       int                         `json:"totalSteps"`
	MinDuration      float64                     `json:"minDuration"`
	MaxDuration      float64                     `json:"maxDuration"`
	TotalDuration    float64                     `json:"totalDuration"`
	AvgDuration      float64                     `json:"avgDuration"`
	TestFiles        map[string]struct{}         `json:"-"`
	TestFileCount    int                         `json:"testFileCount"`
	Tags             map[string]struct{}         `json:"-"`
	NewSteps         int                         `json:"newSteps"`
	Regressions      int                         `json:"regressions"`
	CriticalTagCount int                         `json:"-"`
	SmokeTagCount    int                         `json:"-"`
	HealthScore      float64                     `json:"healthScore"`
	Category         Category                    `json:"category"`
	Severity         Severity                    `json:"severity"`
	Recommendations  []string                    `json:"recommendations"`
	AppliedConfig    config.EffectiveStepConfig  `json:"appliedConfig"`
}

// RegressionRate returns Regressions/TotalSteps, or 0 when TotalSteps is 0.
func (s *SuiteSummary) RegressionRate() float64 {
	if s.TotalSteps == 0 {
		return 0
	}

	return float64(s.Regressions) / float64(s.TotalSteps)
}

// NewStepRate returns NewSteps/TotalSteps, or 0 when TotalSteps is 0.
func (s *SuiteSummary) NewStepRate() float64 {
	if s.TotalSteps == 0 {
		return 0
	}

	return float64(s.NewSteps) / float64(s.TotalSteps)
}

// HasCriticalTag reports whether this suite ever saw a @critical or
// @smoke tagged step.
func (s *SuiteSummary) HasCriticalTag() bool {
	return s.CriticalTagCount > 0 || s.SmokeTagCount > 0
}

// TagSummary aggregates all steps sharing one tag across the whole run.
type TagSummary struct {
	Tag         string   `json:"tag"`
	StepCount   int      `json:"stepCount"`
	AvgDuration float64  `json:"avgDuration"`
	MinDuration float64  `json:"minDuration"`
	MaxDuration float64  `json:"maxDuration"`
	Total       float64  `json:"total"`
	Suites      []string `json:"suites"`
	TestFiles   []string `json:"testFiles"`
}

// CriticalPathIssue is one regression, drift, or new step whose tags
// intersect the watched critical-path set.
type CriticalPathIssue struct {
	Kind     string   `json:"kind"` // "regression" | "trend" | "new"
	StepText string   `json:"stepText"`
	Suite    string   `json:"suite"`
	Tags     []string `json:"tags"`
	Severity Severity `json:"severity"`
}

// CriticalPathAnalysis summarizes critical-path impact across a run.
type CriticalPathAnalysis struct {
	TotalIssues        int                 `json:"totalIssues"`
	HighSeverityIssues int                 `json:"highSeverityIssues"`
	Issues             []CriticalPathIssue `json:"issues"`
	OverallSeverity    Severity            `json:"overallSeverity"`
}

// ReportMetadata summarizes the shape of the whole run.
type ReportMetadata struct {
	TotalSteps    int       `json:"totalSteps"`
	UniqueSteps   int       `json:"uniqueSteps"`
	Suites        int       `json:"suites"`
	Tags          int       `json:"tags"`
	Jobs          int       `json:"jobs"`
	Timestamp     time.Time `json:"timestamp"`
	OverallHealth float64   `json:"overallHealth"`
}

// Report is the complete output of one analysis.
type Report struct {
	Regressions      []StepRecord            `json:"regressions"`
	NewSteps         []StepRecord            `json:"newSteps"`
	OK               []StepRecord            `json:"ok"`
	Trends           []StepRecord            `json:"trends"`
	Suites           map[string]*SuiteSummary `json:"suites"`
	SuiteRegressions []SuiteRegression        `json:"suiteRegressions"`
	TagAnalysis      map[string]*TagSummary   `json:"tagAnalysis"`
	CriticalPath     CriticalPathAnalysis     `json:"criticalPath"`
	Recommendations  []string                 `json:"recommendations"`
	Metadata         ReportMetadata           `json:"metadata"`
}
