package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadRunFile_ParsesSamples(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "run.json")
	payload := `[
		{"stepText": "user logs in", "duration": 120.5, "timestamp": "2026-01-02T03:04:05Z"},
		{"stepText": "user checks out", "duration": 480, "timestamp": "2026-01-02T03:04:06Z",
		 "context": {"suite": "checkout", "tags": ["@critical"]}}
	]`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o600))

	samples, err := readRunFile(path)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, "user logs in", samples[0].StepText)
	assert.Equal(t, "checkout", samples[1].Context.Suite)
}

func TestReadRunFile_MissingFileErrors(t *testing.T) {
	t.Parallel()

	_, err := readRunFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestAnalyzeCommand_RejectsUnknownOutputFormat(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "run.json")
	require.NoError(t, os.WriteFile(path, []byte(`[]`), 0o600))

	cmd := NewAnalyzeCommand()
	cmd.SetArgs([]string{
		"--run-file", path,
		"--history-file", t.TempDir(),
		"--output-format", "xml",
	})
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--output-format")
}
