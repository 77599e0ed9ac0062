package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/andrewajenkins/perf-sentinel/internal/model"
)

const (
	objectWriteRetries  = 3
	objectRetryBaseWait = 200 * time.Millisecond

	objectAggregateConcurrency = 8
)

// s3Client is the subset of the AWS SDK's S3 client this adapter uses, so
// tests can substitute a fake without a live bucket.
type s3Client interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// ObjectStoreAdapter persists project data as JSON objects in an S3-
// compatible bucket, keyed by <prefix>/<projectID>/....
type ObjectStoreAdapter struct {
	bucket string
	prefix string

	client      s3Client
	initialized bool
}

// NewObjectStoreAdapter returns an adapter targeting bucket, with keys
// rooted at prefix (may be empty).
func NewObjectStoreAdapter(bucket, prefix string) *ObjectStoreAdapter {
	return &ObjectStoreAdapter{bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// Initialize loads the default AWS config chain (env vars, shared
// config/credentials files, EC2/ECS role) and constructs the S3 client.
func (a *ObjectStoreAdapter) Initialize(ctx context.Context) error {
	if a.bucket == "" {
		return errors.New("object store adapter: bucket name is required")
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("object store adapter: loading AWS config: %w", err)
	}

	a.client = s3.NewFromConfig(cfg)
	a.initialized = true

	return nil
}

// Close is a no-op; the SDK client holds no connection to release.
func (a *ObjectStoreAdapter) Close(_ context.Context) error {
	a.initialized = false
	return nil
}

// Kind reports this adapter's backend.
func (a *ObjectStoreAdapter) Kind() AdapterKind { return KindS3 }

func (a *ObjectStoreAdapter) requireInitialized() error {
	if !a.initialized {
		return ErrNotInitialized
	}

	return nil
}

func (a *ObjectStoreAdapter) key(parts ...string) string {
	all := append([]string{}, parts...)
	if a.prefix != "" {
		all = append([]string{a.prefix}, all...)
	}

	return strings.Join(all, "/")
}

func (a *ObjectStoreAdapter) historyKey(projectID string) string {
	return a.key(projectID, "history.json")
}

func (a *ObjectStoreAdapter) runKey(projectID, runID string) string {
	return a.key(projectID, "runs", runID+".json")
}

func (a *ObjectStoreAdapter) runsPrefix(projectID string) string {
	return a.key(projectID, "runs") + "/"
}

func (a *ObjectStoreAdapter) jobKey(projectID, jobID string) string {
	return a.key(projectID, "jobs", jobID+".json")
}

func (a *ObjectStoreAdapter) jobsPrefix(projectID string) string {
	return a.key(projectID, "jobs") + "/"
}

// GetHistory returns the project's history document, or an empty one if
// the object does not exist.
func (a *ObjectStoreAdapter) GetHistory(ctx context.Context, projectID string) (*model.HistoryDocument, error) {
	if err := a.requireInitialized(); err != nil {
		return nil, err
	}

	data, err := a.getObject(ctx, a.historyKey(projectID))
	if err != nil {
		if isNotFound(err) {
			return model.NewHistoryDocument(), nil
		}

		return nil, err
	}

	var doc model.HistoryDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("object store adapter: decoding history: %w", err)
	}

	return &doc, nil
}

// SaveHistory writes the history document and verifies it landed by
// re-fetching its metadata, retrying transient failures with backoff.
func (a *ObjectStoreAdapter) SaveHistory(ctx context.Context, projectID string, history *model.HistoryDocument) error {
	if err := a.requireInitialized(); err != nil {
		return err
	}

	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("object store adapter: encoding history: %w", err)
	}

	return a.putObjectWithVerify(ctx, a.historyKey(projectID), data)
}

// SeedHistory rebuilds the baseline from aggregated durations.
func (a *ObjectStoreAdapter) SeedHistory(ctx context.Context, projectID string, aggregated map[string]SeedInput, now time.Time) error {
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

// SavePerformanceRun writes one run object under <prefix>/<projectId>/runs/.
func (a *ObjectStoreAdapter) SavePerformanceRun(ctx context.Context, run *model.RunDocument) error {
	if err := a.requireInitialized(); err != nil {
		return err
	}

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("object store adapter: encoding run: %w", err)
	}

	return a.putObjectWithVerify(ctx, a.runKey(run.ProjectID, run.RunID), data)
}

// GetPerformanceRuns returns up to limit runs, most recent first.
func (a *ObjectStoreAdapter) GetPerformanceRuns(ctx context.Context, projectID string, limit int) ([]*model.RunDocument, error) {
	if err := a.requireInitialized(); err != nil {
		return nil, err
	}

	keys, err := a.listKeys(ctx, a.runsPrefix(projectID))
	if err != nil {
		return nil, err
	}

	runs := a.fetchRunsConcurrently(ctx, keys)

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })

	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}

	return runs, nil
}

// AggregateResults concatenates samples from the last 1000 run objects (in
// key order) under the project's runs prefix, optionally filtered to a job
// cohort. Objects are fetched with bounded concurrency.
func (a *ObjectStoreAdapter) AggregateResults(ctx context.Context, projectID string, opts AggregateOptions) (*AggregateResult, error) {
	if err := a.requireInitialized(); err != nil {
		return nil, err
	}

	keys, err := a.listKeys(ctx, a.runsPrefix(projectID))
	if err != nil {
		return nil, err
	}

	if len(keys) > maxAggregateRunFiles {
		keys = keys[len(keys)-maxAggregateRunFiles:]
	}

	runs := a.fetchRunsConcurrently(ctx, keys)

	wantJobs := toSet(opts.JobIDs)

	var samples []model.StepSample

	jobsSeen := map[string]struct{}{}
	runCount := 0

	for _, run := range runs {
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

// fetchRunsConcurrently fetches each key with a bounded worker pool, so
// aggregating thousands of runs doesn't open thousands of connections.
func (a *ObjectStoreAdapter) fetchRunsConcurrently(ctx context.Context, keys []string) []*model.RunDocument {
	type indexed struct {
		idx int
		run *model.RunDocument
	}

	results := make(chan indexed, len(keys))
	sem := make(chan struct{}, objectAggregateConcurrency)

	for i, k := range keys {
		sem <- struct{}{}

		go func(idx int, key string) {
			defer func() { <-sem }()

			data, err := a.getObject(ctx, key)
			if err != nil {
				results <- indexed{idx: idx}
				return
			}

			var run model.RunDocument
			if err := json.Unmarshal(data, &run); err != nil {
				results <- indexed{idx: idx}
				return
			}

			results <- indexed{idx: idx, run: &run}
		}(i, k)
	}

	ordered := make([]*model.RunDocument, len(keys))

	for range keys {
		r := <-results
		ordered[r.idx] = r.run
	}

	runs := make([]*model.RunDocument, 0, len(ordered))

	for _, r := range ordered {
		if r != nil {
			runs = append(runs, r)
		}
	}

	return runs
}

// RegisterJob writes a new job object under <prefix>/<projectId>/jobs/.
func (a *ObjectStoreAdapter) RegisterJob(ctx context.Context, job *model.JobRecord) error {
	if err := a.requireInitialized(); err != nil {
		return err
	}

	return a.writeJob(ctx, job)
}

// UpdateJobStatus reads, mutates, and rewrites a job object.
func (a *ObjectStoreAdapter) UpdateJobStatus(ctx context.Context, projectID, jobID string, status model.JobStatus, meta map[string]any) error {
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

	return a.writeJob(ctx, job)
}

func (a *ObjectStoreAdapter) writeJob(ctx context.Context, job *model.JobRecord) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("object store adapter: encoding job: %w", err)
	}

	return a.putObjectWithVerify(ctx, a.jobKey(job.ProjectID, job.JobID), data)
}

// GetJobInfo returns a job record, or nil if it has never been
// registered.
func (a *ObjectStoreAdapter) GetJobInfo(ctx context.Context, projectID, jobID string) (*model.JobRecord, error) {
	if err := a.requireInitialized(); err != nil {
		return nil, err
	}

	data, err := a.getObject(ctx, a.jobKey(projectID, jobID))
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}

		return nil, err
	}

	var job model.JobRecord
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("object store adapter: decoding job: %w", err)
	}

	return &job, nil
}

// WaitForJobs polls job objects at PollInterval until every listed job
// reaches a terminal status or Timeout elapses.
func (a *ObjectStoreAdapter) WaitForJobs(ctx context.Context, projectID string, jobIDs []string, opts WaitOptions) (*WaitResult, error) {
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

// Cleanup deletes run and job objects older than policy's ages.
func (a *ObjectStoreAdapter) Cleanup(ctx context.Context, projectID string, policy RetentionPolicy) (*CleanupResult, error) {
	return a.cleanup(ctx, projectID, policy, false)
}

// CleanupPreview reports what Cleanup would remove without deleting
// anything, for the cleanup engine's dry-run mode.
func (a *ObjectStoreAdapter) CleanupPreview(ctx context.Context, projectID string, policy RetentionPolicy) (*CleanupResult, error) {
	return a.cleanup(ctx, projectID, policy, true)
}

func (a *ObjectStoreAdapter) cleanup(ctx context.Context, projectID string, policy RetentionPolicy, dryRun bool) (*CleanupResult, error) {
	if err := a.requireInitialized(); err != nil {
		return nil, err
	}

	result := &CleanupResult{}
	now := time.Now()

	runsRemoved, runBytes, err := a.removeOlderThan(ctx, a.runsPrefix(projectID), now.Add(-policy.Runs), dryRun)
	if err != nil {
		return nil, err
	}

	result.RunsRemoved = runsRemoved
	result.BytesFreed += runBytes

	jobsRemoved, jobBytes, err := a.removeJobsOlderThan(ctx, projectID, now, policy, dryRun)
	if err != nil {
		return nil, err
	}

	result.JobsRemoved = jobsRemoved
	result.BytesFreed += jobBytes

	return result, nil
}

func (a *ObjectStoreAdapter) removeOlderThan(ctx context.Context, prefix string, cutoff time.Time, dryRun bool) (int, int64, error) {
	out, err := a.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{Bucket: aws.String(a.bucket), Prefix: aws.String(prefix)})
	if err != nil {
		return 0, 0, fmt.Errorf("object store adapter: listing %s: %w", prefix, err)
	}

	removed := 0

	var bytesFreed int64

	for _, obj := range out.Contents {
		if obj.LastModified == nil || obj.LastModified.After(cutoff) {
			continue
		}

		if dryRun {
			removed++

			if obj.Size != nil {
				bytesFreed += *obj.Size
			}

			continue
		}

		if _, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(a.bucket), Key: obj.Key}); err == nil {
			removed++

			if obj.Size != nil {
				bytesFreed += *obj.Size
			}
		}
	}

	return removed, bytesFreed, nil
}

func (a *ObjectStoreAdapter) removeJobsOlderThan(ctx context.Context, projectID string, now time.Time, policy RetentionPolicy, dryRun bool) (int, int64, error) {
	prefix := a.jobsPrefix(projectID)

	out, err := a.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{Bucket: aws.String(a.bucket), Prefix: aws.String(prefix)})
	if err != nil {
		return 0, 0, fmt.Errorf("object store adapter: listing %s: %w", prefix, err)
	}

	removed := 0

	var bytesFreed int64

	for _, obj := range out.Contents {
		data, err := a.getObject(ctx, *obj.Key)
		if err != nil {
			continue
		}

		var job model.JobRecord
		if err := json.Unmarshal(data, &job); err != nil {
			continue
		}

		cutoff := now.Add(-policy.Jobs)
		if job.Status.Terminal() {
			cutoff = now.Add(-policy.CompletedJobs)
		}

		if job.LastUpdated.After(cutoff) {
			continue
		}

		if dryRun {
			removed++

			if obj.Size != nil {
				bytesFreed += *obj.Size
			}

			continue
		}

		if _, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(a.bucket), Key: obj.Key}); err == nil {
			removed++

			if obj.Size != nil {
				bytesFreed += *obj.Size
			}
		}
	}

	return removed, bytesFreed, nil
}

// GetHealthStatus reports healthy when the bucket responds to a listing
// call.
func (a *ObjectStoreAdapter) GetHealthStatus(ctx context.Context) Health {
	if err := a.requireInitialized(); err != nil {
		return Health{Type: KindS3, Status: HealthUnhealthy, Err: err}
	}

	_, err := a.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{Bucket: aws.String(a.bucket), Prefix: aws.String(a.prefix), MaxKeys: aws.Int32(1)})
	if err != nil {
		return Health{Type: KindS3, Status: HealthUnhealthy, Err: err}
	}

	return Health{Type: KindS3, Status: HealthHealthy}
}

func (a *ObjectStoreAdapter) getObject(ctx context.Context, key string) ([]byte, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(a.bucket), Key: aws.String(key)})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()

	return io.ReadAll(out.Body)
}

func (a *ObjectStoreAdapter) listKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	var continuationToken *string

	for {
		out, err := a.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(a.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return nil, fmt.Errorf("object store adapter: listing %s: %w", prefix, err)
		}

		for _, obj := range out.Contents {
			keys = append(keys, *obj.Key)
		}

		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}

		continuationToken = out.NextContinuationToken
	}

	sort.Strings(keys)

	return keys, nil
}

// putObjectWithVerify writes an object and confirms it landed via a
// HeadObject call, repeating the whole write-verify cycle with exponential
// backoff on failure, for at most objectWriteRetries attempts in all.
func (a *ObjectStoreAdapter) putObjectWithVerify(ctx context.Context, key string, data []byte) error {
	var lastErr error

	for attempt := 0; attempt < objectWriteRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(objectRetryBaseWait * time.Duration(1<<uint(attempt-1))):
			}
		}

		_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(a.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String("application/json"),
		})
		if err != nil {
			lastErr = fmt.Errorf("object store adapter: writing %s: %w", key, err)
			continue
		}

		if _, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(a.bucket), Key: aws.String(key)}); err != nil {
			lastErr = fmt.Errorf("object store adapter: verifying %s: %w", key, err)
			continue
		}

		return nil
	}

	return lastErr
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}

	var notFound *s3types.NotFound
	return errors.As(err, &notFound)
}
