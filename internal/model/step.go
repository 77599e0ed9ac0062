// Package model defines the data shapes shared across perf-sentinel: step
// samples and their context, the rolling history baseline, run archives,
// job coordination records, and analysis reports.
package model

import "time"

// StepContext carries the dimensions used for rule resolution and
// suite/tag roll-up. Callers may omit it entirely or leave individual
// fields blank; see internal/contextnorm for the defaults applied before
// a context reaches the classifier or engine.
type StepContext struct {
	TestFile string   `json:"testFile"`
	TestName string   `json:"testName"`
	Suite    string   `json:"suite"`
	JobID    string   `json:"jobId"`
	WorkerID string   `json:"workerId"`
	Tags     []string `json:"tags"`
}

// StepSample is one measured step execution, as it appears in a run file.
// Context is a pointer so a run file that omits it entirely is
// distinguishable from one that supplies a partially empty object; both
// are normalized identically by internal/contextnorm before use.
type StepSample struct {
	StepText  string       `json:"stepText"`
	Duration  float64      `json:"duration"`
	Timestamp time.Time    `json:"timestamp"`
	Context   *StepContext `json:"context,omitempty"`
}
