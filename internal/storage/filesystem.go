package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/andrewajenkins/perf-sentinel/internal/model"
)

const (
	dirPerm  = 0o750
	filePerm = 0o600

	historySubdir = "history"
	runsSubdir    = "runs"
	jobsSubdir    = "jobs"
	tempSubdir    = "temp"

	historyFileName = "performance-history.json"

	maxAggregateRunFiles = 1000

	defaultPollInterval = 2 * time.Second
)

// FilesystemAdapter persists project data under baseDir/<projectID>/,
// using write-to-temp-then-rename for every mutation so a crash mid-write
// never leaves a torn file in place of the prior one.
type FilesystemAdapter struct {
	baseDir string

	mu          sync.Mutex
	initialized bool
}

// NewFilesystemAdapter returns an adapter rooted at baseDir.
func NewFilesystemAdapter(baseDir string) *FilesystemAdapter {
	return &FilesystemAdapter{baseDir: baseDir}
}

// Initialize ensures baseDir exists and is writable.
func (a *FilesystemAdapter) Initialize(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(a.baseDir, dirPerm); err != nil {
		return fmt.Errorf("filesystem adapter: creating base directory: %w", err)
	}

	a.initialized = true

	return nil
}

// Close is a no-op; the filesystem adapter holds no persistent handles.
func (a *FilesystemAdapter) Close(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.initialized = false

	return nil
}

// Kind reports this adapter's backend.
func (a *FilesystemAdapter) Kind() AdapterKind { return KindFilesystem }

func (a *FilesystemAdapter) requireInitialized() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return ErrNotInitialized
	}

	return nil
}

func (a *FilesystemAdapter) projectDir(projectID string) string {
	return filepath.Join(a.baseDir, projectID)
}

func (a *FilesystemAdapter) historyPath(projectID string) string {
	return filepath.Join(a.projectDir(projectID), historySubdir, historyFileName)
}

func (a *FilesystemAdapter) runsDir(projectID string) string {
	return filepath.Join(a.projectDir(projectID), runsSubdir)
}

func (a *FilesystemAdapter) jobsDir(projectID string) string {
	return filepath.Join(a.projectDir(projectID), jobsSubdir)
}

func (a *FilesystemAdapter) tempDir(projectID string) string {
	return filepath.Join(a.projectDir(projectID), tempSubdir)
}

// GetHistory returns the project's history document, or an empty one if
// it has never been written.
func (a *FilesystemAdapter) GetHistory(_ context.Context, projectID string) (*model.HistoryDocument, error) {
	if err := a.requireInitialized(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(a.historyPath(projectID))
	if err != nil {
		if os.IsNotExist(err) {
			return model.NewHistoryDocument(), nil
		}

		return nil, fmt.Errorf("filesystem adapter: reading history: %w", err)
	}

	var doc model.HistoryDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("filesystem adapter: decoding history: %w", err)
	}

	return &doc, nil
}

// SaveHistory atomically replaces the project's history document.
func (a *FilesystemAdapter) SaveHistory(_ context.Context, projectID string, history *model.HistoryDocument) error {
	if err := a.requireInitialized(); err != nil {
		return err
	}

	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("filesystem adapter: encoding history: %w", err)
	}

	return a.writeAtomic(a.historyPath(projectID), data)
}

// SeedHistory rebuilds the baseline from aggregated durations, computing
// average and stddev once per step before persisting.
func (a *FilesystemAdapter) SeedHistory(ctx context.Context, projectID string, aggregated map[string]SeedInput, now time.Time) error {
	doc := model.NewHistoryDocument()

	for stepText, input := range aggregated {
		mean, stddev := meanStdDev(input.Durations)
		doc.Steps[stepText] = &model.HistoryEntry{
			Durations: input.Durations,
			Average:   mean,
			StdDev:    stddev,
			Context:   input.Context,
			FirstSeen: now,
			LastSeen:  now,
		}
	}

	return a.SaveHistory(ctx, projectID, doc)
}

// SavePerformanceRun writes one run document under runs/<runId>.json.
func (a *FilesystemAdapter) SavePerformanceRun(_ context.Context, run *model.RunDocument) error {
	if err := a.requireInitialized(); err != nil {
		return err
	}

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("filesystem adapter: encoding run: %w", err)
	}

	path := filepath.Join(a.runsDir(run.ProjectID), run.RunID+".json")

	return a.writeAtomic(path, data)
}

// GetPerformanceRuns returns up to limit runs, most recent first.
func (a *FilesystemAdapter) GetPerformanceRuns(_ context.Context, projectID string, limit int) ([]*model.RunDocument, error) {
	if err := a.requireInitialized(); err != nil {
		return nil, err
	}

	paths, err := a.listRunFiles(projectID)
	if err != nil {
		return nil, err
	}

	runs := make([]*model.RunDocument, 0, len(paths))

	for _, p := range paths {
		run, err := readRunFile(p)
		if err != nil {
			continue
		}

		runs = append(runs, run)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })

	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}

	return runs, nil
}

// AggregateResults concatenates samples from the most recent ≤1000 run
// files, optionally filtered to a job cohort.
func (a *FilesystemAdapter) AggregateResults(_ context.Context, projectID string, opts AggregateOptions) (*AggregateResult, error) {
	if err := a.requireInitialized(); err != nil {
		return nil, err
	}

	paths, err := a.listRunFiles(projectID)
	if err != nil {
		return nil, err
	}

	if len(paths) > maxAggregateRunFiles {
		paths = paths[len(paths)-maxAggregateRunFiles:]
	}

	wantJobs := toSet(opts.JobIDs)

	var samples []model.StepSample

	jobsSeen := map[string]struct{}{}
	runCount := 0

	for _, p := range paths {
		run, err := readRunFile(p)
		if err != nil {
			continue
		}

		matched := false

		for _, sample := range run.RunData {
			jobID := ""
			if sample.Context != nil {
				jobID = sample.Context.JobID
			}

			if len(wantJobs) > 0 {
				if _, ok := wantJobs[jobID]; !ok {
					continue
				}
			}

			samples = append(samples, sample)
			jobsSeen[jobID] = struct{}{}
			matched = true
		}

		if matched || len(wantJobs) == 0 {
			runCount++
		}
	}

	return &AggregateResult{
		AggregatedSteps:      samples,
		RunCount:             runCount,
		JobCount:             len(jobsSeen),
		AggregationTimestamp: time.Now(),
	}, nil
}

func (a *FilesystemAdapter) listRunFiles(projectID string) ([]string, error) {
	dir := a.runsDir(projectID)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("filesystem adapter: listing runs: %w", err)
	}

	paths := make([]string, 0, len(entries))

	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}

		paths = append(paths, filepath.Join(dir, e.Name()))
	}

	sort.Strings(paths)

	return paths, nil
}

func readRunFile(path string) (*model.RunDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading run file %s: %w", path, err)
	}

	var run model.RunDocument
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("decoding run file %s: %w", path, err)
	}

	return &run, nil
}

// RegisterJob writes a new job record under jobs/<jobId>.json.
func (a *FilesystemAdapter) RegisterJob(_ context.Context, job *model.JobRecord) error {
	if err := a.requireInitialized(); err != nil {
		return err
	}

	return a.writeJob(job)
}

// UpdateJobStatus reads, mutates, and rewrites a job record.
func (a *FilesystemAdapter) UpdateJobStatus(ctx context.Context, projectID, jobID string, status model.JobStatus, meta map[string]any) error {
	job, err := a.GetJobInfo(ctx, projectID, jobID)
	if err != nil {
		return err
	}

	if job == nil {
		job = &model.JobRecord{ProjectID: projectID, JobID: jobID, RegisteredAt: time.Now()}
	}

	job.Status = status
	job.LastUpdated = time.Now()

	if meta != nil {
		job.Metadata = meta
	}

	return a.writeJob(job)
}

func (a *FilesystemAdapter) writeJob(job *model.JobRecord) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("filesystem adapter: encoding job: %w", err)
	}

	path := filepath.Join(a.jobsDir(job.ProjectID), job.JobID+".json")

	return a.writeAtomic(path, data)
}

// GetJobInfo returns a job record, or nil if it has never been
// registered.
func (a *FilesystemAdapter) GetJobInfo(_ context.Context, projectID, jobID string) (*model.JobRecord, error) {
	if err := a.requireInitialized(); err != nil {
		return nil, err
	}

	path := filepath.Join(a.jobsDir(projectID), jobID+".json")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("filesystem adapter: reading job: %w", err)
	}

	var job model.JobRecord
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("filesystem adapter: decoding job: %w", err)
	}

	return &job, nil
}

// WaitForJobs polls the jobs directory at PollInterval until every listed
// job reaches a terminal status or Timeout elapses.
func (a *FilesystemAdapter) WaitForJobs(ctx context.Context, projectID string, jobIDs []string, opts WaitOptions) (*WaitResult, error) {
	poll := opts.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}

	deadline := time.Now().Add(opts.Timeout)
	start := time.Now()

	for {
		statuses := make([]model.JobRecord, 0, len(jobIDs))
		allDone := true

		for _, jobID := range jobIDs {
			job, err := a.GetJobInfo(ctx, projectID, jobID)
			if err != nil {
				return nil, err
			}

			if job == nil {
				job = &model.JobRecord{ProjectID: projectID, JobID: jobID, Status: model.JobUnknown}
			}

			statuses = append(statuses, *job)

			if !job.Status.Terminal() {
				allDone = false
			}
		}

		if allDone {
			return &WaitResult{AllCompleted: true, JobStatuses: statuses, WaitTime: time.Since(start)}, nil
		}

		if time.Now().After(deadline) {
			return &WaitResult{AllCompleted: false, JobStatuses: statuses, WaitTime: time.Since(start), TimedOut: true}, nil
		}

		select {
		case <-ctx.Done():
			return &WaitResult{AllCompleted: false, JobStatuses: statuses, WaitTime: time.Since(start), TimedOut: true}, nil
		case <-time.After(poll):
		}
	}
}

// Cleanup deletes run and job files older than policy's ages. It never
// touches the active history document.
func (a *FilesystemAdapter) Cleanup(_ context.Context, projectID string, policy RetentionPolicy) (*CleanupResult, error) {
	return a.cleanup(projectID, policy, false)
}

// CleanupPreview reports what Cleanup would remove without deleting
// anything, for the cleanup engine's dry-run mode.
func (a *FilesystemAdapter) CleanupPreview(_ context.Context, projectID string, policy RetentionPolicy) (*CleanupResult, error) {
	return a.cleanup(projectID, policy, true)
}

func (a *FilesystemAdapter) cleanup(projectID string, policy RetentionPolicy, dryRun bool) (*CleanupResult, error) {
	if err := a.requireInitialized(); err != nil {
		return nil, err
	}

	result := &CleanupResult{}
	now := time.Now()

	runsRemoved, runBytes, err := removeOlderThan(a.runsDir(projectID), now.Add(-policy.Runs), dryRun)
	if err != nil {
		return nil, err
	}

	result.RunsRemoved = runsRemoved
	result.BytesFreed += runBytes

	jobsRemoved, jobBytes, err := removeJobsOlderThan(a.jobsDir(projectID), now, policy, dryRun)
	if err != nil {
		return nil, err
	}

	result.JobsRemoved = jobsRemoved
	result.BytesFreed += jobBytes

	return result, nil
}

func removeOlderThan(dir string, cutoff time.Time, dryRun bool) (int, int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}

		return 0, 0, fmt.Errorf("listing %s: %w", dir, err)
	}

	removed := 0

	var bytesFreed int64

	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}

		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(dir, e.Name())

		if dryRun {
			removed++
			bytesFreed += info.Size()
			continue
		}

		if err := os.Remove(path); err == nil {
			removed++
			bytesFreed += info.Size()
		}
	}

	return removed, bytesFreed, nil
}

// removeJobsOlderThan applies a stricter cutoff to completed/failed jobs
// than to jobs still in flight, per the adapter's retention policy.
func removeJobsOlderThan(dir string, now time.Time, policy RetentionPolicy, dryRun bool) (int, int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}

		return 0, 0, fmt.Errorf("listing %s: %w", dir, err)
	}

	removed := 0

	var bytesFreed int64

	for _, e := range entries {
		path := filepath.Join(dir, e.Name())

		job, err := readJobFile(path)
		if err != nil {
			continue
		}

		cutoff := now.Add(-policy.Jobs)
		if job.Status.Terminal() {
			cutoff = now.Add(-policy.CompletedJobs)
		}

		if job.LastUpdated.After(cutoff) {
			continue
		}

		info, statErr := e.Info()

		if dryRun {
			removed++

			if statErr == nil {
				bytesFreed += info.Size()
			}

			continue
		}

		if err := os.Remove(path); err == nil {
			removed++

			if statErr == nil {
				bytesFreed += info.Size()
			}
		}
	}

	return removed, bytesFreed, nil
}

func readJobFile(path string) (*model.JobRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading job file %s: %w", path, err)
	}

	var job model.JobRecord
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decoding job file %s: %w", path, err)
	}

	return &job, nil
}

// GetHealthStatus reports healthy when baseDir is writable.
func (a *FilesystemAdapter) GetHealthStatus(_ context.Context) Health {
	if err := a.requireInitialized(); err != nil {
		return Health{Type: KindFilesystem, Status: HealthUnhealthy, Err: err}
	}

	probe := filepath.Join(a.baseDir, ".health-probe")
	if err := os.WriteFile(probe, []byte("ok"), filePerm); err != nil {
		return Health{Type: KindFilesystem, Status: HealthUnhealthy, Err: err}
	}

	_ = os.Remove(probe)

	return Health{Type: KindFilesystem, Status: HealthHealthy}
}

// writeAtomic writes data to path via a .tmp sibling, then renames it
// into place, so a crash between the two leaves the previous file intact.
func (a *FilesystemAdapter) writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("filesystem adapter: creating directory %s: %w", dir, err)
	}

	tmpPath := path + ".tmp"

	if err := os.WriteFile(tmpPath, data, filePerm); err != nil {
		return fmt.Errorf("filesystem adapter: writing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("filesystem adapter: renaming into place: %w", err)
	}

	return nil
}

func toSet(ss []string) map[string]struct{} {
	out := make(map[string]struct{}, len(ss))
	for _, s := range ss {
		out[s] = struct{}{}
	}

	return out
}

func meanStdDev(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}

	mean := sum / float64(len(values))

	if len(values) < 2 {
		return mean, 0
	}

	var sumSq float64
	for _, v := range values {
		diff := v - mean
		sumSq += diff * diff
	}

	return mean, math.Sqrt(sumSq / float64(len(values)-1))
}
