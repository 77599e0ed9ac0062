package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/andrewajenkins/perf-sentinel/internal/model"
	"github.com/andrewajenkins/perf-sentinel/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInitializedFilesystem(t *testing.T) *storage.FilesystemAdapter {
	t.Helper()

	a := storage.NewFilesystemAdapter(t.TempDir())
	require.NoError(t, a.Initialize(context.Background()))

	return a
}

func TestCoordinator_AggregatesWithoutWaiting(t *testing.T) {
	t.Parallel()

	adapter := newInitializedFilesystem(t)
	ctx := context.Background()

	require.NoError(t, adapter.SavePerformanceRun(ctx, &model.RunDocument{
		RunID: "run-1", ProjectID: "proj1", Timestamp: time.Now(),
		RunData: []model.StepSample{{StepText: "a", Duration: 10}},
	}))

	c := New(adapter)

	result, err := c.Aggregate(ctx, "proj1", Options{})
	require.NoError(t, err)
	assert.Len(t, result.Samples, 1)
	assert.Equal(t, 1, result.RunCount)
	assert.Nil(t, result.WaitResult)
	assert.False(t, result.PartialWait)
}

func TestCoordinator_WaitTimeoutStillAggregatesPartially(t *testing.T) {
	t.Parallel()

	adapter := newInitializedFilesystem(t)
	ctx := context.Background()

	require.NoError(t, adapter.RegisterJob(ctx, &model.JobRecord{ProjectID: "proj1", JobID: "job-1", Status: model.JobRunning}))
	require.NoError(t, adapter.SavePerformanceRun(ctx, &model.RunDocument{
		RunID: "run-1", ProjectID: "proj1", Timestamp: time.Now(),
		RunData: []model.StepSample{{StepText: "a", Duration: 10, Context: &model.StepContext{JobID: "job-1"}}},
	}))

	c := New(adapter)

	result, err := c.Aggregate(ctx, "proj1", Options{
		JobIDs: []string{"job-1"}, Wait: true,
		Timeout: 20 * time.Millisecond, PollInterval: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.True(t, result.PartialWait)
	require.NotNil(t, result.WaitResult)
	assert.True(t, result.WaitResult.TimedOut)
	assert.Len(t, result.Samples, 1, "aggregation should still proceed against available runs")
}

func TestCoordinator_WaitSucceedsWhenJobsComplete(t *testing.T) {
	t.Parallel()

	adapter := newInitializedFilesystem(t)
	ctx := context.Background()

	require.NoError(t, adapter.RegisterJob(ctx, &model.JobRecord{ProjectID: "proj1", JobID: "job-1", Status: model.JobCompleted}))
	require.NoError(t, adapter.SavePerformanceRun(ctx, &model.RunDocument{
		RunID: "run-1", ProjectID: "proj1", Timestamp: time.Now(),
		RunData: []model.StepSample{{StepText: "a", Duration: 10, Context: &model.StepContext{JobID: "job-1"}}},
	}))

	c := New(adapter)

	result, err := c.Aggregate(ctx, "proj1", Options{
		JobIDs: []string{"job-1"}, Wait: true,
		Timeout: time.Second, PollInterval: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.False(t, result.PartialWait)
	require.NotNil(t, result.WaitResult)
	assert.True(t, result.WaitResult.AllCompleted)
}

func TestCoordinator_NeverMutatesHistory(t *testing.T) {
	t.Parallel()

	adapter := newInitializedFilesystem(t)
	ctx := context.Background()

	history := model.NewHistoryDocument()
	history.Steps["existing"] = &model.HistoryEntry{Durations: []float64{1, 2, 3}}
	require.NoError(t, adapter.SaveHistory(ctx, "proj1", history))

	c := New(adapter)
	_, err := c.Aggregate(ctx, "proj1", Options{})
	require.NoError(t, err)

	reloaded, err := adapter.GetHistory(ctx, "proj1")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, reloaded.Steps["existing"].Durations)
}
