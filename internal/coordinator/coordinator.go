// Package coordinator materializes the input samples an analysis run
// consumes by waiting on a cohort of CI jobs and then aggregating their
// archived runs. It never touches the history baseline; that remains the
// analysis engine's exclusive responsibility.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/andrewajenkins/perf-sentinel/internal/model"
	"github.com/andrewajenkins/perf-sentinel/internal/storage"
)

// Options configures one aggregation pass.
type Options struct {
	JobIDs       []string
	Wait         bool
	Timeout      time.Duration
	PollInterval time.Duration
}

// Result is the materialized input for the analysis engine, plus enough
// bookkeeping for the caller to report on a partial or degraded run.
type Result struct {
	Samples      []model.StepSample
	RunCount     int
	JobCount     int
	WaitResult   *storage.WaitResult
	PartialWait  bool
}

// Coordinator waits on job cohorts and aggregates their runs through a
// storage adapter.
type Coordinator struct {
	adapter storage.Adapter
}

// New returns a Coordinator backed by adapter.
func New(adapter storage.Adapter) *Coordinator {
	return &Coordinator{adapter: adapter}
}

// Aggregate implements §4.K: optionally wait for the named jobs to reach a
// terminal state, then aggregate their archived runs. A wait timeout does
// not abort aggregation — it proceeds against whatever runs are available
// and the caller is told via Result.PartialWait.
func (c *Coordinator) Aggregate(ctx context.Context, projectID string, opts Options) (*Result, error) {
	result := &Result{}

	if opts.Wait && len(opts.JobIDs) > 0 {
		waitResult, err := c.adapter.WaitForJobs(ctx, projectID, opts.JobIDs, storage.WaitOptions{
			Timeout:      opts.Timeout,
			PollInterval: opts.PollInterval,
		})
		if err != nil {
			return nil, fmt.Errorf("coordinator: waiting for jobs: %w", err)
		}

		result.WaitResult = waitResult
		result.PartialWait = waitResult.TimedOut
	}

	agg, err := c.adapter.AggregateResults(ctx, projectID, storage.AggregateOptions{JobIDs: opts.JobIDs})
	if err != nil {
		return nil, fmt.Errorf("coordinator: aggregating results: %w", err)
	}

	result.Samples = agg.AggregatedSteps
	result.RunCount = agg.RunCount
	result.JobCount = agg.JobCount

	return result, nil
}
