package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/andrewajenkins/perf-sentinel/internal/config"
	"github.com/andrewajenkins/perf-sentinel/internal/model"
)

// FallbackEvent records one occasion the service retried an operation
// against the filesystem fallback after the primary adapter failed. The
// service only records these; it never logs them itself, so a caller can
// inspect FallbackEvents and decide how loudly to warn without the
// storage package taking on a logging dependency.
type FallbackEvent struct {
	Operation  string
	PrimaryErr error
	Time       time.Time
}

// Service wraps a selected Adapter and adds opportunistic fallback: if the
// primary adapter is anything other than filesystem and a call fails, the
// service retries that one call once against a filesystem adapter rooted
// at fallbackDir before giving up. This keeps a CI job from going fully
// dark on a transient database or bucket outage.
type Service struct {
	primary     Adapter
	fallback    Adapter
	fallbackDir string

	mu             sync.Mutex
	fallbackEvents []FallbackEvent
}

// NewService selects an adapter from cfg and wires a filesystem fallback
// unless the primary adapter already is filesystem.
func NewService(cfg *config.Config) *Service {
	primary := buildAdapter(cfg)

	svc := &Service{primary: primary, fallbackDir: cfg.Storage.Filesystem.BaseDirectory}

	if primary.Kind() != KindFilesystem {
		svc.fallback = NewFilesystemAdapter(svc.fallbackDir)
	}

	return svc
}

func buildAdapter(cfg *config.Config) Adapter {
	switch cfg.Storage.AdapterType {
	case config.AdapterDatabase:
		return NewDocumentStoreAdapter(cfg.Storage.Database.Connection, cfg.Storage.Database.Name)
	case config.AdapterS3:
		return NewObjectStoreAdapter(cfg.Storage.S3.BucketName, cfg.Storage.S3.Prefix)
	default:
		return NewFilesystemAdapter(cfg.Storage.Filesystem.BaseDirectory)
	}
}

// Initialize initializes the primary adapter, and the fallback adapter if
// one is wired. A fallback that fails to initialize is not fatal; it
// simply won't be available as a retry target.
func (s *Service) Initialize(ctx context.Context) error {
	if err := s.primary.Initialize(ctx); err != nil {
		return fmt.Errorf("storage service: initializing %s adapter: %w", s.primary.Kind(), err)
	}

	if s.fallback != nil {
		_ = s.fallback.Initialize(ctx)
	}

	return nil
}

// Close closes both adapters.
func (s *Service) Close(ctx context.Context) error {
	err := s.primary.Close(ctx)

	if s.fallback != nil {
		_ = s.fallback.Close(ctx)
	}

	return err
}

// Kind reports the primary adapter's backend.
func (s *Service) Kind() AdapterKind { return s.primary.Kind() }

// withFallback runs op against the primary adapter, and on failure retries
// once against the fallback adapter if one is wired, recording a
// FallbackEvent for the retry regardless of whether it succeeds.
func withFallback[T any](s *Service, operation string, op func(Adapter) (T, error)) (T, error) {
	result, err := op(s.primary)
	if err == nil || s.fallback == nil {
		return result, err
	}

	s.recordFallback(operation, err)

	return op(s.fallback)
}

func (s *Service) recordFallback(operation string, primaryErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fallbackEvents = append(s.fallbackEvents, FallbackEvent{
		Operation:  operation,
		PrimaryErr: primaryErr,
		Time:       time.Now(),
	})
}

// FallbackEvents returns every fallback retry recorded so far, in
// occurrence order. A command that calls this after a unit of work can
// warn an operator that it completed in degraded mode, even though the
// call itself returned no error.
func (s *Service) FallbackEvents() []FallbackEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]FallbackEvent, len(s.fallbackEvents))
	copy(out, s.fallbackEvents)

	return out
}

// GetHistory delegates to the primary adapter, falling back on failure.
func (s *Service) GetHistory(ctx context.Context, projectID string) (*model.HistoryDocument, error) {
	return withFallback(s, "GetHistory", func(a Adapter) (*model.HistoryDocument, error) {
		return a.GetHistory(ctx, projectID)
	})
}

// SaveHistory delegates to the primary adapter, falling back on failure.
func (s *Service) SaveHistory(ctx context.Context, projectID string, history *model.HistoryDocument) error {
	_, err := withFallback(s, "SaveHistory", func(a Adapter) (struct{}, error) {
		return struct{}{}, a.SaveHistory(ctx, projectID, history)
	})

	return err
}

// SeedHistory delegates to the primary adapter, falling back on failure.
func (s *Service) SeedHistory(ctx context.Context, projectID string, aggregated map[string]SeedInput, now time.Time) error {
	_, err := withFallback(s, "SeedHistory", func(a Adapter) (struct{}, error) {
		return struct{}{}, a.SeedHistory(ctx, projectID, aggregated, now)
	})

	return err
}

// SavePerformanceRun delegates to the primary adapter, falling back on
// failure. A run that lands on the fallback is still discoverable by a
// later aggregate call against that same fallback adapter, though not by
// one against the primary; callers that need cross-adapter consistency
// should treat a fallback write as a degraded-mode signal worth alerting on.
func (s *Service) SavePerformanceRun(ctx context.Context, run *model.RunDocument) error {
	_, err := withFallback(s, "SavePerformanceRun", func(a Adapter) (struct{}, error) {
		return struct{}{}, a.SavePerformanceRun(ctx, run)
	})

	return err
}

// GetPerformanceRuns delegates to the primary adapter, falling back on
// failure.
func (s *Service) GetPerformanceRuns(ctx context.Context, projectID string, limit int) ([]*model.RunDocument, error) {
	return withFallback(s, "GetPerformanceRuns", func(a Adapter) ([]*model.RunDocument, error) {
		return a.GetPerformanceRuns(ctx, projectID, limit)
	})
}

// AggregateResults delegates to the primary adapter, falling back on
// failure.
func (s *Service) AggregateResults(ctx context.Context, projectID string, opts AggregateOptions) (*AggregateResult, error) {
	return withFallback(s, "AggregateResults", func(a Adapter) (*AggregateResult, error) {
		return a.AggregateResults(ctx, projectID, opts)
	})
}

// RegisterJob delegates to the primary adapter, falling back on failure.
func (s *Service) RegisterJob(ctx context.Context, job *model.JobRecord) error {
	_, err := withFallback(s, "RegisterJob", func(a Adapter) (struct{}, error) {
		return struct{}{}, a.RegisterJob(ctx, job)
	})

	return err
}

// UpdateJobStatus delegates to the primary adapter, falling back on
// failure.
func (s *Service) UpdateJobStatus(ctx context.Context, projectID, jobID string, status model.JobStatus, meta map[string]any) error {
	_, err := withFallback(s, "UpdateJobStatus", func(a Adapter) (struct{}, error) {
		return struct{}{}, a.UpdateJobStatus(ctx, projectID, jobID, status, meta)
	})

	return err
}

// GetJobInfo delegates to the primary adapter, falling back on failure.
func (s *Service) GetJobInfo(ctx context.Context, projectID, jobID string) (*model.JobRecord, error) {
	return withFallback(s, "GetJobInfo", func(a Adapter) (*model.JobRecord, error) {
		return a.GetJobInfo(ctx, projectID, jobID)
	})
}

// WaitForJobs delegates to the primary adapter, falling back on failure.
func (s *Service) WaitForJobs(ctx context.Context, projectID string, jobIDs []string, opts WaitOptions) (*WaitResult, error) {
	return withFallback(s, "WaitForJobs", func(a Adapter) (*WaitResult, error) {
		return a.WaitForJobs(ctx, projectID, jobIDs, opts)
	})
}

// Cleanup delegates to the primary adapter only; retention cleanup against
// a fallback store after a degraded run is an operator decision, not one
// this service makes silently.
func (s *Service) Cleanup(ctx context.Context, projectID string, policy RetentionPolicy) (*CleanupResult, error) {
	return s.primary.Cleanup(ctx, projectID, policy)
}

// CleanupPreview delegates to the primary adapter only, for the same
// reason Cleanup does.
func (s *Service) CleanupPreview(ctx context.Context, projectID string, policy RetentionPolicy) (*CleanupResult, error) {
	return s.primary.CleanupPreview(ctx, projectID, policy)
}

// GetHealthStatus reports the primary adapter's health, and the
// fallback's if one is wired.
func (s *Service) GetHealthStatus(ctx context.Context) []Health {
	statuses := []Health{s.primary.GetHealthStatus(ctx)}

	if s.fallback != nil {
		statuses = append(statuses, s.fallback.GetHealthStatus(ctx))
	}

	return statuses
}
