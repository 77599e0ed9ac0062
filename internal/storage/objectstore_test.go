package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrewajenkins/perf-sentinel/internal/model"
)

func modelHistoryDocWithStep(stepText string, durations []float64) *model.HistoryDocument {
	doc := model.NewHistoryDocument()
	doc.Steps[stepText] = &model.HistoryEntry{Durations: durations}

	return doc
}

func modelRunWithStep(runID, projectID, stepText string, duration float64) *model.RunDocument {
	return &model.RunDocument{
		RunID:     runID,
		ProjectID: projectID,
		Timestamp: time.Now(),
		RunData:   []model.StepSample{{StepText: stepText, Duration: duration}},
	}
}

// fakeS3 is an in-memory stand-in for the AWS SDK client, scoped to the
// calls ObjectStoreAdapter makes.
type fakeS3 struct {
	objects map[string][]byte
	modTime map[string]time.Time
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, modTime: map[string]time.Time{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}

	f.objects[*in.Key] = data
	f.modTime[*in.Key] = time.Now()

	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}

	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, *in.Key)
	delete(f.modTime, *in.Key)

	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if _, ok := f.objects[*in.Key]; !ok {
		return nil, &s3types.NotFound{}
	}

	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	prefix := aws.ToString(in.Prefix)

	var keys []string

	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}

	sort.Strings(keys)

	var contents []s3types.Object

	for _, k := range keys {
		size := int64(len(f.objects[k]))
		mt := f.modTime[k]
		contents = append(contents, s3types.Object{Key: aws.String(k), Size: &size, LastModified: &mt})
	}

	return &s3.ListObjectsV2Output{Contents: contents}, nil
}

func newTestObjectStore(t *testing.T) (*ObjectStoreAdapter, *fakeS3) {
	t.Helper()

	a := NewObjectStoreAdapter("test-bucket", "perf-sentinel")
	fake := newFakeS3()
	a.client = fake
	a.initialized = true

	return a, fake
}

func TestObjectStoreAdapter_HistoryRoundTrip(t *testing.T) {
	t.Parallel()

	a, _ := newTestObjectStore(t)
	ctx := context.Background()

	doc := modelHistoryDocWithStep("login", []float64{100, 110})
	require.NoError(t, a.SaveHistory(ctx, "proj1", doc))

	loaded, err := a.GetHistory(ctx, "proj1")
	require.NoError(t, err)
	require.Contains(t, loaded.Steps, "login")
}

func TestObjectStoreAdapter_GetHistoryMissingReturnsEmpty(t *testing.T) {
	t.Parallel()

	a, _ := newTestObjectStore(t)

	doc, err := a.GetHistory(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.Empty(t, doc.Steps)
}

func TestObjectStoreAdapter_KeysAreScopedByProjectAndPrefix(t *testing.T) {
	t.Parallel()

	a, fake := newTestObjectStore(t)
	ctx := context.Background()

	require.NoError(t, a.SaveHistory(ctx, "proj1", modelHistoryDocWithStep("a", []float64{1})))

	_, ok := fake.objects["perf-sentinel/proj1/history.json"]
	assert.True(t, ok)
}

func TestObjectStoreAdapter_AggregateResultsAcrossRuns(t *testing.T) {
	t.Parallel()

	a, _ := newTestObjectStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, a.SavePerformanceRun(ctx, modelRunWithStep(fmt.Sprintf("run-%d", i), "proj1", "step", float64(i))))
	}

	agg, err := a.AggregateResults(ctx, "proj1", AggregateOptions{})
	require.NoError(t, err)
	assert.Len(t, agg.AggregatedSteps, 3)
	assert.Equal(t, 3, agg.RunCount)
}

func TestObjectStoreAdapter_WaitForJobsTimesOut(t *testing.T) {
	t.Parallel()

	a, _ := newTestObjectStore(t)

	result, err := a.WaitForJobs(context.Background(), "proj1", []string{"job-x"}, WaitOptions{Timeout: 20 * time.Millisecond, PollInterval: 5 * time.Millisecond})
	require.NoError(t, err)
	assert.True(t, result.TimedOut)
}

func TestObjectStoreAdapter_OperationsBeforeInitializeFail(t *testing.T) {
	t.Parallel()

	a := NewObjectStoreAdapter("bucket", "prefix")

	_, err := a.GetHistory(context.Background(), "proj1")
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestObjectStoreAdapter_InitializeRequiresBucket(t *testing.T) {
	t.Parallel()

	a := NewObjectStoreAdapter("", "prefix")
	err := a.Initialize(context.Background())
	assert.Error(t, err)
}

func TestObjectStoreAdapter_CleanupRemovesOldObjects(t *testing.T) {
	t.Parallel()

	a, fake := newTestObjectStore(t)
	ctx := context.Background()

	require.NoError(t, a.SavePerformanceRun(ctx, modelRunWithStep("old-run", "proj1", "step", 1)))

	key := a.runKey("proj1", "old-run")
	fake.modTime[key] = time.Now().Add(-72 * time.Hour)

	result, err := a.Cleanup(ctx, "proj1", RetentionPolicy{Runs: time.Hour, Jobs: time.Hour, CompletedJobs: time.Hour})
	require.NoError(t, err)
	assert.Equal(t, 1, result.RunsRemoved)
}
