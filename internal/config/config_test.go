package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("", CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, 2.0, cfg.Analysis.Threshold)
	assert.Equal(t, 50, cfg.Analysis.MaxHistory)
	assert.Equal(t, AdapterFilesystem, cfg.Storage.AdapterType)
	assert.NotEmpty(t, cfg.Reporting.DefaultReporters)
}

func TestLoadProfileOverlay(t *testing.T) {
	t.Parallel()

	cfg, err := Load("", CLIOverrides{Profile: "strict"})
	require.NoError(t, err)
	assert.Equal(t, 1.5, cfg.Analysis.Threshold)
	assert.Equal(t, 10.0, cfg.Analysis.GlobalRules.MinPercentageChange)
}

func TestLoadUnknownProfile(t *testing.T) {
	t.Parallel()

	_, err := Load("", CLIOverrides{Profile: "nonexistent"})
	require.ErrorIs(t, err, ErrUnknownProfile)
}

func TestLoadUnknownEnvironment(t *testing.T) {
	t.Parallel()

	_, err := Load("", CLIOverrides{Environment: "nonexistent"})
	require.ErrorIs(t, err, ErrUnknownEnvironment)
}

func TestLoadCLIOverrides(t *testing.T) {
	t.Parallel()

	cfg, err := Load("", CLIOverrides{
		Threshold:  3.5,
		MaxHistory: 10,
		ProjectID:  "my-project",
		BucketName: "ci-telemetry",
	})
	require.NoError(t, err)
	assert.Equal(t, 3.5, cfg.Analysis.Threshold)
	assert.Equal(t, 10, cfg.Analysis.MaxHistory)
	assert.Equal(t, "my-project", cfg.Project.ID)
	assert.Equal(t, AdapterS3, cfg.Storage.AdapterType)
	assert.Equal(t, "ci-telemetry", cfg.Storage.S3.BucketName)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := dir + "/perf-sentinel.yaml"
	contents := `
analysis:
  threshold: 4.0
  step_types:
    fast:
      max_duration: 600
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := Load(path, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, 4.0, cfg.Analysis.Threshold)
	assert.InDelta(t, 600.0, cfg.Analysis.StepTypes[StepTypeFast].MaxDuration, 0.0001)
	// Unspecified step types survive the merge untouched.
	assert.InDelta(t, 100.0, cfg.Analysis.StepTypes[StepTypeVeryFast].MaxDuration, 0.0001)
}

func TestLoadEnvVarInterpolation(t *testing.T) {
	t.Setenv("PERF_SENTINEL_TEST_DB", "mongodb://ci-host/perf")

	dir := t.TempDir()
	path := dir + "/perf-sentinel.yaml"
	contents := `
storage:
  adapter_type: database
  database:
    connection: "${PERF_SENTINEL_TEST_DB}"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := Load(path, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, "mongodb://ci-host/perf", cfg.Storage.Database.Connection)
}

func TestLoadEnvVarInterpolationMissingLeavesLiteral(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := dir + "/perf-sentinel.yaml"
	contents := `
project:
  id: "${PERF_SENTINEL_DEFINITELY_UNSET}"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := Load(path, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, "${PERF_SENTINEL_DEFINITELY_UNSET}", cfg.Project.ID)
}

func TestLoadEnvVarInterpolationWithDefault(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := dir + "/perf-sentinel.yaml"
	contents := `
project:
  id: "${PERF_SENTINEL_DEFINITELY_UNSET:-fallback-project}"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := Load(path, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, "fallback-project", cfg.Project.ID)
}

func TestValidateRejectsNonPositiveThreshold(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.Analysis.Threshold = 0
	require.ErrorIs(t, Validate(&cfg), ErrInvalidThreshold)
}

func TestValidateRejectsEmptyReporters(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.Reporting.DefaultReporters = nil
	require.ErrorIs(t, Validate(&cfg), ErrReportersEmpty)
}

func TestValidateRequiresDatabaseConnection(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.Storage.AdapterType = AdapterDatabase
	require.ErrorIs(t, Validate(&cfg), ErrDatabaseConnectionRequired)
}

func TestResolveAdapterType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  Config
		want AdapterType
	}{
		{
			name: "explicit_wins",
			cfg:  Config{Storage: StorageConfig{AdapterType: AdapterFilesystem, S3: S3Config{BucketName: "bucket"}}},
			want: AdapterFilesystem,
		},
		{
			name: "database_from_connection",
			cfg:  Config{Storage: StorageConfig{Database: DatabaseConfig{Connection: "mongodb://x"}}},
			want: AdapterDatabase,
		},
		{
			name: "s3_from_bucket",
			cfg:  Config{Storage: StorageConfig{S3: S3Config{BucketName: "bucket"}}},
			want: AdapterS3,
		},
		{
			name: "filesystem_fallback",
			cfg:  Config{},
			want: AdapterFilesystem,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := tt.cfg.ResolveAdapterType()
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEffectiveStepConfigPrecedence(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.Analysis.SuiteOverrides["authentication"] = Override{
		Rules: Rules{MinPercentageChange: 25, MinAbsoluteSlowdown: 120},
	}
	cfg.Analysis.TagOverrides["@critical"] = Override{
		Threshold: 1.5,
		Rules:     Rules{MinPercentageChange: 1, MinAbsoluteSlowdown: 5},
	}
	cfg.Analysis.StepOverrides["login with expired session"] = Override{
		Threshold: 0.8,
	}

	// S8: a step in the "authentication" suite tagged "@critical" with its
	// own step override. Precedence is suite < tag < step, so threshold
	// comes from the step override but the tag's stricter rules still win
	// since the step override does not set its own rules.
	eff := cfg.EffectiveStepConfig("login with expired session", 300, StepContext{
		Suite: "authentication",
		Tags:  []string{"@critical"},
	})

	assert.Equal(t, 0.8, eff.Threshold)
	assert.Equal(t, 1.0, eff.Rules.MinPercentageChange)
	assert.Equal(t, 5.0, eff.Rules.MinAbsoluteSlowdown)
}

func TestEffectiveStepConfigTagOrderLaterWins(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.Analysis.TagOverrides["@smoke"] = Override{Threshold: 2.5}
	cfg.Analysis.TagOverrides["@critical"] = Override{Threshold: 1.0}

	eff := cfg.EffectiveStepConfig("some step", 50, StepContext{
		Tags: []string{"@smoke", "@critical"},
	})
	assert.Equal(t, 1.0, eff.Threshold)

	effReversed := cfg.EffectiveStepConfig("some step", 50, StepContext{
		Tags: []string{"@critical", "@smoke"},
	})
	assert.Equal(t, 2.5, effReversed.Threshold)
}

func TestResolveStepType(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()

	tests := []struct {
		avg  float64
		want StepType
	}{
		{avg: 50, want: StepTypeVeryFast},
		{avg: 300, want: StepTypeFast},
		{avg: 1500, want: StepTypeMedium},
		{avg: 5000, want: StepTypeSlow},
	}

	for _, tt := range tests {
		got := cfg.ResolveStepType(tt.avg)
		assert.Equal(t, tt.want, got, "avg=%v", tt.avg)
	}
}
