package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/andrewajenkins/perf-sentinel/internal/model"
)

const (
	historyCollectionName = "performance_history"
	runsCollectionName     = "performance_runs"
	jobsCollectionName     = "performance_jobs"

	mongoConnectTimeout  = 3 * time.Second
	mongoSelectTimeout   = 3 * time.Second
	mongoSocketTimeout   = 5 * time.Second
)

// historyDoc is the Mongo-side shape of a project's history, storing the
// project id as _id so upserts are a single keyed replace.
type historyDoc struct {
	ID       string                          `bson:"_id"`
	Steps    map[string]*model.HistoryEntry  `bson:"steps"`
	Suites   map[string]*model.SuiteHistory  `bson:"suiteHistory"`
}

type runDoc struct {
	ID        string               `bson:"_id"`
	ProjectID string               `bson:"projectId"`
	RunData   []model.StepSample   `bson:"runData"`
	Timestamp time.Time            `bson:"timestamp"`
	Metadata  map[string]any       `bson:"metadata,omitempty"`
}

type jobDoc struct {
	ID           string         `bson:"_id"`
	ProjectID    string         `bson:"projectId"`
	Status       model.JobStatus `bson:"status"`
	RegisteredAt time.Time      `bson:"registeredAt"`
	LastUpdated  time.Time      `bson:"lastUpdated"`
	Metadata     map[string]any `bson:"metadata,omitempty"`
}

// DocumentStoreAdapter persists project data in MongoDB. Connection is
// lazy: Initialize dials with bounded timeouts and creates indexes, but a
// failure there degrades to "unhealthy" rather than blocking startup,
// consistent with the filesystem/object-store adapters' fail-open posture.
type DocumentStoreAdapter struct {
	uri      string
	database string

	client      *mongo.Client
	initialized bool
}

// NewDocumentStoreAdapter returns an adapter targeting a Mongo connection
// string and database name.
func NewDocumentStoreAdapter(uri, database string) *DocumentStoreAdapter {
	return &DocumentStoreAdapter{uri: uri, database: database}
}

// Initialize creates the MongoDB client without waiting for a server round
// trip and tries to create supporting indexes. Index creation errors are
// ignored; a missing index degrades query speed, not correctness.
func (a *DocumentStoreAdapter) Initialize(ctx context.Context) error {
	connectCtx, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(a.uri).
		SetServerSelectionTimeout(mongoSelectTimeout).
		SetSocketTimeout(mongoSocketTimeout)

	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return fmt.Errorf("document store adapter: connecting: %w", err)
	}

	a.client = client
	a.initialized = true

	a.ensureIndexes(ctx)

	return nil
}

func (a *DocumentStoreAdapter) ensureIndexes(ctx context.Context) {
	runs := a.runsCollection()
	_, _ = runs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "projectId", Value: 1}, {Key: "timestamp", Value: -1}},
	})

	jobs := a.jobsCollection()
	_, _ = jobs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "projectId", Value: 1}, {Key: "status", Value: 1}},
	})
}

// Close disconnects the Mongo client.
func (a *DocumentStoreAdapter) Close(ctx context.Context) error {
	if a.client == nil {
		return nil
	}

	a.initialized = false

	return a.client.Disconnect(ctx)
}

// Kind reports this adapter's backend.
func (a *DocumentStoreAdapter) Kind() AdapterKind { return KindDatabase }

func (a *DocumentStoreAdapter) requireInitialized() error {
	if !a.initialized {
		return ErrNotInitialized
	}

	return nil
}

func (a *DocumentStoreAdapter) historyCollection() *mongo.Collection {
	return a.client.Database(a.database).Collection(historyCollectionName)
}

func (a *DocumentStoreAdapter) runsCollection() *mongo.Collection {
	return a.client.Database(a.database).Collection(runsCollectionName)
}

func (a *DocumentStoreAdapter) jobsCollection() *mongo.Collection {
	return a.client.Database(a.database).Collection(jobsCollectionName)
}

// GetHistory returns the project's history document, or an empty one if
// no document exists for projectID.
func (a *DocumentStoreAdapter) GetHistory(ctx context.Context, projectID string) (*model.HistoryDocument, error) {
	if err := a.requireInitialized(); err != nil {
		return nil, err
	}

	var stored historyDoc

	err := a.historyCollection().FindOne(ctx, bson.M{"_id": projectID}).Decode(&stored)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return model.NewHistoryDocument(), nil
		}

		return nil, fmt.Errorf("document store adapter: reading history: %w", err)
	}

	doc := model.NewHistoryDocument()
	doc.Steps = stored.Steps
	doc.SuiteHistory = stored.Suites

	return doc, nil
}

// SaveHistory upserts the project's history document in a single replace.
func (a *DocumentStoreAdapter) SaveHistory(ctx context.Context, projectID string, history *model.HistoryDocument) error {
	if err := a.requireInitialized(); err != nil {
		return err
	}

	stored := historyDoc{ID: projectID, Steps: history.Steps, Suites: history.SuiteHistory}

	opts := options.Replace().SetUpsert(true)

	_, err := a.historyCollection().ReplaceOne(ctx, bson.M{"_id": projectID}, stored, opts)
	if err != nil {
		return fmt.Errorf("document store adapter: saving history: %w", err)
	}

	return nil
}

// SeedHistory rebuilds the baseline from aggregated durations.
func (a *DocumentStoreAdapter) SeedHistory(ctx context.Context, projectID string, aggregated map[string]SeedInput, now time.Time) error {
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

// SavePerformanceRun inserts one run document, keyed by RunID so a retried
// write is an idempotent no-op rather than a duplicate.
func (a *DocumentStoreAdapter) SavePerformanceRun(ctx context.Context, run *model.RunDocument) error {
	if err := a.requireInitialized(); err != nil {
		return err
	}

	stored := runDoc{ID: run.RunID, ProjectID: run.ProjectID, RunData: run.RunData, Timestamp: run.Timestamp, Metadata: run.Metadata}

	opts := options.Replace().SetUpsert(true)

	_, err := a.runsCollection().ReplaceOne(ctx, bson.M{"_id": run.RunID}, stored, opts)
	if err != nil {
		return fmt.Errorf("document store adapter: saving run: %w", err)
	}

	return nil
}

// GetPerformanceRuns returns up to limit runs, most recent first.
func (a *DocumentStoreAdapter) GetPerformanceRuns(ctx context.Context, projectID string, limit int) ([]*model.RunDocument, error) {
	if err := a.requireInitialized(); err != nil {
		return nil, err
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		findOpts.SetLimit(int64(limit))
	}

	cursor, err := a.runsCollection().Find(ctx, bson.M{"projectId": projectID}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("document store adapter: listing runs: %w", err)
	}
	defer cursor.Close(ctx)

	var runs []*model.RunDocument

	for cursor.Next(ctx) {
		var stored runDoc
		if err := cursor.Decode(&stored); err != nil {
			continue
		}

		runs = append(runs, &model.RunDocument{RunID: stored.ID, ProjectID: stored.ProjectID, RunData: stored.RunData, Timestamp: stored.Timestamp, Metadata: stored.Metadata})
	}

	return runs, cursor.Err()
}

// AggregateResults concatenates samples from the most recent ≤1000 run
// documents, optionally filtered to a job cohort by checking each sample's
// context.jobId after the documents are read.
func (a *DocumentStoreAdapter) AggregateResults(ctx context.Context, projectID string, opts AggregateOptions) (*AggregateResult, error) {
	if err := a.requireInitialized(); err != nil {
		return nil, err
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(maxAggregateRunFiles)

	cursor, err := a.runsCollection().Find(ctx, bson.M{"projectId": projectID}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("document store adapter: aggregating: %w", err)
	}
	defer cursor.Close(ctx)

	wantJobs := toSet(opts.JobIDs)

	var samples []model.StepSample

	jobsSeen := map[string]struct{}{}
	runCount := 0

	for cursor.Next(ctx) {
		var stored runDoc
		if err := cursor.Decode(&stored); err != nil {
			continue
		}

		matched := false

		for _, sample := range stored.RunData {
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
	}, cursor.Err()
}

// RegisterJob inserts a new job document.
func (a *DocumentStoreAdapter) RegisterJob(ctx context.Context, job *model.JobRecord) error {
	if err := a.requireInitialized(); err != nil {
		return err
	}

	return a.writeJob(ctx, job)
}

// UpdateJobStatus reads, mutates, and upserts a job document.
func (a *DocumentStoreAdapter) UpdateJobStatus(ctx context.Context, projectID, jobID string, status model.JobStatus, meta map[string]any) error {
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

func (a *DocumentStoreAdapter) writeJob(ctx context.Context, job *model.JobRecord) error {
	stored := jobDoc{ID: job.JobID, ProjectID: job.ProjectID, Status: job.Status, RegisteredAt: job.RegisteredAt, LastUpdated: job.LastUpdated, Metadata: job.Metadata}

	opts := options.Replace().SetUpsert(true)

	_, err := a.jobsCollection().ReplaceOne(ctx, bson.M{"_id": job.JobID}, stored, opts)
	if err != nil {
		return fmt.Errorf("document store adapter: saving job: %w", err)
	}

	return nil
}

// GetJobInfo returns a job record, or nil if it has never been
// registered.
func (a *DocumentStoreAdapter) GetJobInfo(ctx context.Context, projectID, jobID string) (*model.JobRecord, error) {
	if err := a.requireInitialized(); err != nil {
		return nil, err
	}

	var stored jobDoc

	err := a.jobsCollection().FindOne(ctx, bson.M{"_id": jobID, "projectId": projectID}).Decode(&stored)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}

		return nil, fmt.Errorf("document store adapter: reading job: %w", err)
	}

	return &model.JobRecord{ProjectID: stored.ProjectID, JobID: stored.ID, Status: stored.Status, RegisteredAt: stored.RegisteredAt, LastUpdated: stored.LastUpdated, Metadata: stored.Metadata}, nil
}

// WaitForJobs polls job documents at PollInterval until every listed job
// reaches a terminal status or Timeout elapses.
func (a *DocumentStoreAdapter) WaitForJobs(ctx context.Context, projectID string, jobIDs []string, opts WaitOptions) (*WaitResult, error) {
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

// Cleanup deletes run and job documents older than policy's ages.
func (a *DocumentStoreAdapter) Cleanup(ctx context.Context, projectID string, policy RetentionPolicy) (*CleanupResult, error) {
	if err := a.requireInitialized(); err != nil {
		return nil, err
	}

	result := &CleanupResult{}
	now := time.Now()

	runsFilter := bson.M{"projectId": projectID, "timestamp": bson.M{"$lt": now.Add(-policy.Runs)}}

	runsRes, err := a.runsCollection().DeleteMany(ctx, runsFilter)
	if err != nil {
		return nil, fmt.Errorf("document store adapter: cleaning runs: %w", err)
	}

	result.RunsRemoved = int(runsRes.DeletedCount)

	terminalFilter, activeFilter := cleanupJobFilters(projectID, now, policy)

	terminalRes, err := a.jobsCollection().DeleteMany(ctx, terminalFilter)
	if err != nil {
		return nil, fmt.Errorf("document store adapter: cleaning completed jobs: %w", err)
	}

	activeRes, err := a.jobsCollection().DeleteMany(ctx, activeFilter)
	if err != nil {
		return nil, fmt.Errorf("document store adapter: cleaning stale jobs: %w", err)
	}

	result.JobsRemoved = int(terminalRes.DeletedCount) + int(activeRes.DeletedCount)

	return result, nil
}

// CleanupPreview reports what Cleanup would remove without deleting
// anything, for the cleanup engine's dry-run mode. Sizes are not tracked
// by this adapter (MongoDB bills by storage engine, not document count),
// so BytesFreed is always zero here.
func (a *DocumentStoreAdapter) CleanupPreview(ctx context.Context, projectID string, policy RetentionPolicy) (*CleanupResult, error) {
	if err := a.requireInitialized(); err != nil {
		return nil, err
	}

	result := &CleanupResult{}
	now := time.Now()

	runsFilter := bson.M{"projectId": projectID, "timestamp": bson.M{"$lt": now.Add(-policy.Runs)}}

	runsCount, err := a.runsCollection().CountDocuments(ctx, runsFilter)
	if err != nil {
		return nil, fmt.Errorf("document store adapter: counting runs: %w", err)
	}

	result.RunsRemoved = int(runsCount)

	terminalFilter, activeFilter := cleanupJobFilters(projectID, now, policy)

	terminalCount, err := a.jobsCollection().CountDocuments(ctx, terminalFilter)
	if err != nil {
		return nil, fmt.Errorf("document store adapter: counting completed jobs: %w", err)
	}

	activeCount, err := a.jobsCollection().CountDocuments(ctx, activeFilter)
	if err != nil {
		return nil, fmt.Errorf("document store adapter: counting stale jobs: %w", err)
	}

	result.JobsRemoved = int(terminalCount) + int(activeCount)

	return result, nil
}

func cleanupJobFilters(projectID string, now time.Time, policy RetentionPolicy) (bson.M, bson.M) {
	terminalFilter := bson.M{
		"projectId":   projectID,
		"status":      bson.M{"$in": []model.JobStatus{model.JobCompleted, model.JobFailed}},
		"lastUpdated": bson.M{"$lt": now.Add(-policy.CompletedJobs)},
	}

	activeFilter := bson.M{
		"projectId":   projectID,
		"status":      bson.M{"$nin": []model.JobStatus{model.JobCompleted, model.JobFailed}},
		"lastUpdated": bson.M{"$lt": now.Add(-policy.Jobs)},
	}

	return terminalFilter, activeFilter
}

// GetHealthStatus reports healthy when the server responds to a ping.
func (a *DocumentStoreAdapter) GetHealthStatus(ctx context.Context) Health {
	if err := a.requireInitialized(); err != nil {
		return Health{Type: KindDatabase, Status: HealthUnhealthy, Err: err}
	}

	pingCtx, cancel := context.WithTimeout(ctx, mongoSelectTimeout)
	defer cancel()

	if err := a.client.Ping(pingCtx, nil); err != nil {
		return Health{Type: KindDatabase, Status: HealthUnhealthy, Err: err}
	}

	return Health{Type: KindDatabase, Status: HealthHealthy}
}
