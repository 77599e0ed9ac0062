package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDocumentStoreAdapter_OperationsBeforeInitializeFail(t *testing.T) {
	t.Parallel()

	a := NewDocumentStoreAdapter("mongodb://localhost:27017", "perf_sentinel")

	_, err := a.GetHistory(context.Background(), "proj1")
	assert.ErrorIs(t, err, ErrNotInitialized)

	err = a.RegisterJob(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNotInitialized)

	health := a.GetHealthStatus(context.Background())
	assert.Equal(t, HealthUnhealthy, health.Status)
	assert.ErrorIs(t, health.Err, ErrNotInitialized)
}

func TestDocumentStoreAdapter_KindReportsDatabase(t *testing.T) {
	t.Parallel()

	a := NewDocumentStoreAdapter("mongodb://localhost:27017", "perf_sentinel")
	assert.Equal(t, KindDatabase, a.Kind())
}

func TestDocumentStoreAdapter_CloseWithoutClientIsNoop(t *testing.T) {
	t.Parallel()

	a := NewDocumentStoreAdapter("mongodb://localhost:27017", "perf_sentinel")
	assert.NoError(t, a.Close(context.Background()))
}
