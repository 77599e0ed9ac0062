// Package config loads and resolves perf-sentinel's layered configuration:
// embedded defaults, an optional YAML file, named environment and profile
// overlays, CLI overrides, and ${VAR} environment-variable interpolation.
// It also derives the per-step effective configuration used by the
// classifier from suite, tag, and step-text context.
package config

import "time"

// StepType buckets steps by their historical average duration so that
// slower operations are held to looser regression rules by default.
type StepType string

// Recognized step types, fastest to slowest.
const (
	StepTypeVeryFast StepType = "very_fast"
	StepTypeFast     StepType = "fast"
	StepTypeMedium   StepType = "medium"
	StepTypeSlow     StepType = "slow"
)

// Rules controls when a slowdown that crosses the basic regression
// predicate is actually reported as a regression.
type Rules struct {
	MinPercentageChange float64 `mapstructure:"min_percentage_change" yaml:"min_percentage_change"`
	MinAbsoluteSlowdown float64 `mapstructure:"min_absolute_slowdown" yaml:"min_absolute_slowdown"`
	CheckTrends         bool    `mapstructure:"check_trends"          yaml:"check_trends"`
	TrendSensitivity    float64 `mapstructure:"trend_sensitivity"     yaml:"trend_sensitivity"`
	FilterStableSteps   bool    `mapstructure:"filter_stable_steps"   yaml:"filter_stable_steps"`
	StableThreshold     float64 `mapstructure:"stable_threshold"      yaml:"stable_threshold"`
	StableMinSlowdown   float64 `mapstructure:"stable_min_slowdown"   yaml:"stable_min_slowdown"`
}

// StepTypeConfig is the per-step-type bucket definition: the duration
// ceiling used to select the bucket, and the rules that apply within it.
type StepTypeConfig struct {
	MaxDuration float64 `mapstructure:"max_duration" yaml:"max_duration"`
	Rules       Rules   `mapstructure:"rules"        yaml:"rules"`
}

// TrendsConfig controls drift detection (independent of regression).
type TrendsConfig struct {
	Enabled           bool    `mapstructure:"enabled"             yaml:"enabled"`
	WindowSize        int     `mapstructure:"window_size"         yaml:"window_size"`
	MinSignificance   float64 `mapstructure:"min_significance"    yaml:"min_significance"`
	MinHistoryRequired int    `mapstructure:"min_history_required" yaml:"min_history_required"`
	OnlyUpward        bool    `mapstructure:"only_upward"         yaml:"only_upward"`
}

// Override is a partial configuration keyed by step text, suite, or tag.
// Zero fields are "not set" and do not participate in merging.
type Override struct {
	StepType  StepType `mapstructure:"step_type" yaml:"step_type,omitempty"`
	Threshold float64  `mapstructure:"threshold" yaml:"threshold,omitempty"`
	Rules     Rules    `mapstructure:"rules"     yaml:"rules,omitempty"`
}

// AnalysisConfig is the top-level analysis tuning block.
type AnalysisConfig struct {
	Threshold      float64                        `mapstructure:"threshold"       yaml:"threshold"`
	MaxHistory     int                             `mapstructure:"max_history"     yaml:"max_history"`
	StepTypes      map[StepType]StepTypeConfig     `mapstructure:"step_types"      yaml:"step_types"`
	GlobalRules    Rules                           `mapstructure:"global_rules"    yaml:"global_rules"`
	Trends         TrendsConfig                    `mapstructure:"trends"          yaml:"trends"`
	StepOverrides  map[string]Override             `mapstructure:"step_overrides"  yaml:"step_overrides"`
	SuiteOverrides map[string]Override             `mapstructure:"suite_overrides" yaml:"suite_overrides"`
	TagOverrides   map[string]Override             `mapstructure:"tag_overrides"   yaml:"tag_overrides"`
}

// AdapterType names the storage backend a run targets.
type AdapterType string

// Recognized adapter types. Auto defers to inference (see ResolveAdapterType).
const (
	AdapterAuto       AdapterType = "auto"
	AdapterFilesystem AdapterType = "filesystem"
	AdapterDatabase   AdapterType = "database"
	AdapterS3         AdapterType = "s3"
)

// FilesystemConfig configures the filesystem storage adapter.
type FilesystemConfig struct {
	BaseDirectory string `mapstructure:"base_directory" yaml:"base_directory"`
}

// DatabaseConfig configures the document-store (MongoDB) adapter.
type DatabaseConfig struct {
	Connection string `mapstructure:"connection" yaml:"connection"`
	Name       string `mapstructure:"name"       yaml:"name"`
}

// S3Config configures the object-store (S3) adapter.
type S3Config struct {
	BucketName string `mapstructure:"bucket_name" yaml:"bucket_name"`
	Region     string `mapstructure:"region"      yaml:"region"`
	Prefix     string `mapstructure:"prefix"      yaml:"prefix"`
}

// RetentionConfig controls how much history the cleanup engine keeps by
// default, expressed as ages. CLI's "--older-than" overrides these per-call.
type RetentionConfig struct {
	Runs             time.Duration `mapstructure:"runs"              yaml:"runs"`
	Jobs             time.Duration `mapstructure:"jobs"              yaml:"jobs"`
	CompletedJobs    time.Duration `mapstructure:"completed_jobs"    yaml:"completed_jobs"`
}

// StorageConfig selects and configures the storage adapter.
type StorageConfig struct {
	AdapterType AdapterType      `mapstructure:"adapter_type" yaml:"adapter_type"`
	Filesystem  FilesystemConfig `mapstructure:"filesystem"   yaml:"filesystem"`
	Database    DatabaseConfig   `mapstructure:"database"     yaml:"database"`
	S3          S3Config         `mapstructure:"s3"           yaml:"s3"`
	Retention   RetentionConfig  `mapstructure:"retention"    yaml:"retention"`
}

// ReportingConfig lists which report emitters a run should drive. The
// emitters themselves are an external collaborator (see package doc);
// perf-sentinel only threads the names through.
type ReportingConfig struct {
	DefaultReporters []string `mapstructure:"default_reporters" yaml:"default_reporters"`
}

// ProjectConfig identifies the namespace baselines are stored under.
type ProjectConfig struct {
	ID string `mapstructure:"id" yaml:"id"`
}

// Config is the fully resolved, validated configuration for one invocation.
type Config struct {
	Project     ProjectConfig           `mapstructure:"project"     yaml:"project"`
	Analysis    AnalysisConfig          `mapstructure:"analysis"    yaml:"analysis"`
	Environments map[string]RawOverlay  `mapstructure:"environments" yaml:"environments"`
	Profiles    map[string]RawOverlay   `mapstructure:"profiles"    yaml:"profiles"`
	Storage     StorageConfig           `mapstructure:"storage"     yaml:"storage"`
	Reporting   ReportingConfig         `mapstructure:"reporting"   yaml:"reporting"`
}

// RawOverlay is an environment or profile overlay kept in its raw
// (not yet typed) mapping form, since it is deep-merged onto the
// defaults-and-file layer before the result is decoded into Config.
type RawOverlay map[string]any

// EffectiveStepConfig is the fully resolved configuration for one step,
// after layering step-type defaults, suite overrides, tag overrides (in
// context order), and step-specific overrides. Classifiers never see raw
// Config; they only ever see this.
type EffectiveStepConfig struct {
	StepType  StepType
	Threshold float64
	Rules     Rules
}

// TrendConfig is the subset of TrendsConfig the classifier needs; kept
// separate so the classifier package does not import the full Config tree.
type TrendConfig struct {
	Enabled            bool
	WindowSize         int
	MinSignificance    float64
	MinHistoryRequired int
	OnlyUpward         bool
}

// Trend converts the resolved trends block to the classifier's view.
func (c *Config) Trend() TrendConfig {
	t := c.Analysis.Trends

	return TrendConfig{
		Enabled:            t.Enabled,
		WindowSize:         t.WindowSize,
		MinSignificance:    t.MinSignificance,
		MinHistoryRequired: t.MinHistoryRequired,
		OnlyUpward:         t.OnlyUpward,
	}
}
