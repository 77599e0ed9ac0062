package commands

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateCommand_RejectsUnknownOutputFormat(t *testing.T) {
	t.Parallel()

	cmd := NewAggregateCommand()
	cmd.SetArgs([]string{
		"--history-file", t.TempDir(),
		"--output-format", "yaml",
	})
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--output-format")
}

func TestAggregateCommand_TextFormatPrintsCountsNotSamples(t *testing.T) {
	t.Parallel()

	cmd := NewAggregateCommand()

	var out, errOut strings.Builder
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{
		"--history-file", t.TempDir(),
		"--output-format", "text",
	})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "aggregated 0 sample(s) from 0 run(s) across 0 job(s)")
	assert.NotContains(t, out.String(), "[")
}
