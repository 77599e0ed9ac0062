// Package storage defines the adapter contract every backend (filesystem,
// object store, document database) implements, plus the storage service
// that selects one and adds opportunistic filesystem fallback.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/andrewajenkins/perf-sentinel/internal/model"
)

// AdapterKind names a storage backend.
type AdapterKind string

// Recognized adapter kinds.
const (
	KindFilesystem AdapterKind = "filesystem"
	KindDatabase   AdapterKind = "database"
	KindS3         AdapterKind = "s3"
)

// HealthState is the coarse health of an adapter's backing store.
type HealthState string

// Recognized health states.
const (
	HealthHealthy  HealthState = "healthy"
	HealthDegraded HealthState = "degraded"
	HealthUnhealthy HealthState = "unhealthy"
	HealthError    HealthState = "error"
)

// Health describes one getHealthStatus result.
type Health struct {
	Type    AdapterKind
	Status  HealthState
	Details string
	Err     error
}

// AggregateOptions narrows aggregateResults to a job cohort.
type AggregateOptions struct {
	JobIDs []string
}

// AggregateResult is the output of aggregateResults.
type AggregateResult struct {
	AggregatedSteps     []model.StepSample
	RunCount            int
	JobCount            int
	AggregationTimestamp time.Time
}

// WaitOptions configures waitForJobs.
type WaitOptions struct {
	Timeout      time.Duration
	PollInterval time.Duration
}

// WaitResult is the output of waitForJobs.
type WaitResult struct {
	AllCompleted bool
	JobStatuses  []model.JobRecord
	WaitTime     time.Duration
	TimedOut     bool
}

// RetentionPolicy bounds how old an item may be before cleanup removes it.
type RetentionPolicy struct {
	Runs          time.Duration
	Jobs          time.Duration
	CompletedJobs time.Duration
}

// CleanupResult reports how much cleanup removed.
type CleanupResult struct {
	RunsRemoved int
	JobsRemoved int
	BytesFreed  int64
}

// SeedInput is a step's aggregated historical durations, used to rebuild
// a baseline from scratch.
type SeedInput struct {
	Durations []float64
	Context   model.StepContext
}

// ErrNotInitialized is returned by any operation called before a
// successful Initialize.
var ErrNotInitialized = errors.New("storage adapter: not initialized")

// Adapter is the uniform contract every storage backend implements.
// Every method but Initialize and Close requires a prior successful
// Initialize call.
type Adapter interface {
	Initialize(ctx context.Context) error
	Close(ctx context.Context) error
	Kind() AdapterKind

	GetHistory(ctx context.Context, projectID string) (*model.HistoryDocument, error)
	SaveHistory(ctx context.Context, projectID string, history *model.HistoryDocument) error
	SeedHistory(ctx context.Context, projectID string, aggregated map[string]SeedInput, now time.Time) error

	SavePerformanceRun(ctx context.Context, run *model.RunDocument) error
	GetPerformanceRuns(ctx context.Context, projectID string, limit int) ([]*model.RunDocument, error)
	AggregateResults(ctx context.Context, projectID string, opts AggregateOptions) (*AggregateResult, error)

	RegisterJob(ctx context.Context, job *model.JobRecord) error
	UpdateJobStatus(ctx context.Context, projectID, jobID string, status model.JobStatus, meta map[string]any) error
	GetJobInfo(ctx context.Context, projectID, jobID string) (*model.JobRecord, error)
	WaitForJobs(ctx context.Context, projectID string, jobIDs []string, opts WaitOptions) (*WaitResult, error)

	Cleanup(ctx context.Context, projectID string, policy RetentionPolicy) (*CleanupResult, error)
	CleanupPreview(ctx context.Context, projectID string, policy RetentionPolicy) (*CleanupResult, error)
	GetHealthStatus(ctx context.Context) Health
}
