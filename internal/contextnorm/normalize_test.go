package contextnorm

import (
	"testing"

	"github.com/andrewajenkins/perf-sentinel/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeNilContext(t *testing.T) {
	t.Parallel()

	got := Normalize(nil)
	assert.Equal(t, "unknown.feature", got.TestFile)
	assert.Equal(t, "Unknown Test", got.TestName)
	assert.Equal(t, "unknown", got.Suite)
	assert.Equal(t, "local", got.JobID)
	assert.Equal(t, "local", got.WorkerID)
	assert.Empty(t, got.Tags)
}

func TestNormalizePartialContext(t *testing.T) {
	t.Parallel()

	got := Normalize(&model.StepContext{Suite: "authentication", Tags: []string{"critical", "@smoke", "critical"}})
	assert.Equal(t, "unknown.feature", got.TestFile)
	assert.Equal(t, "authentication", got.Suite)
	assert.Equal(t, "local", got.JobID)
	assert.Equal(t, []string{"@critical", "@smoke"}, got.Tags)
}

func TestMergeTagsUnion(t *testing.T) {
	t.Parallel()

	got := MergeTags([]string{"@smoke", "@critical"}, []string{"@critical", "@security"})
	assert.Equal(t, []string{"@smoke", "@critical", "@security"}, got)
}
