package commands

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrewajenkins/perf-sentinel/internal/config"
)

func TestStorageFlags_LoadConfigRejectsAmbiguousTarget(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		f    storageFlags
	}{
		{"none set", storageFlags{}},
		{"two set", storageFlags{historyFile: t.TempDir(), bucketName: "bucket"}},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := tc.f.loadConfig()
			require.Error(t, err)
			assert.True(t, errors.Is(err, config.ErrStorageTargetAmbiguous))
		})
	}
}

func TestStorageFlags_LoadConfigAcceptsSingleTarget(t *testing.T) {
	t.Parallel()

	f := storageFlags{historyFile: t.TempDir()}

	cfg, err := f.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, config.AdapterFilesystem, cfg.Storage.AdapterType)
}

func TestStorageFlags_ProjectIDOrDefault(t *testing.T) {
	t.Parallel()

	f := storageFlags{historyFile: t.TempDir()}

	cfg, err := f.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "default", f.projectIDOrDefault(cfg))

	f.projectID = "checkout"
	assert.Equal(t, "checkout", f.projectIDOrDefault(cfg))
}
