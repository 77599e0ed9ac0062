package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// CLIOverrides carries the flag values a command wants to force onto the
// resolved configuration, mapped to fixed dotted paths. Zero values are
// "not set" and are skipped during merge.
type CLIOverrides struct {
	Environment    string
	Profile        string
	Threshold      float64
	MaxHistory     int
	ProjectID      string
	Reporters      []string
	DBConnection   string
	BucketName     string
	HistoryFile    string
}

// Load builds the fully resolved Config for one invocation: embedded
// defaults, an optional YAML file, the selected environment and profile
// overlays, CLI overrides, then ${VAR} interpolation, then validation.
func Load(configPath string, overrides CLIOverrides) (*Config, error) {
	tree, err := layeredTree(configPath, overrides)
	if err != nil {
		return nil, err
	}

	tree = interpolateEnv(tree)

	var cfg Config

	decoder := viper.New()
	if setErr := decoder.MergeConfigMap(tree); setErr != nil {
		return nil, fmt.Errorf("merging resolved configuration: %w", setErr)
	}

	if err := decoder.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding resolved configuration: %w", err)
	}

	if cfg.Storage.AdapterType == "" {
		cfg.Storage.AdapterType = AdapterAuto
	}

	cfg.Storage.AdapterType = cfg.ResolveAdapterType()

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// layeredTree builds the merged-but-not-yet-interpolated configuration
// tree: defaults, file, environment overlay, profile overlay, CLI
// overrides, each deep-merged in that order.
func layeredTree(configPath string, overrides CLIOverrides) (map[string]any, error) {
	base := viper.New()
	setViperDefaults(base)

	tree := base.AllSettings()

	if configPath != "" {
		fileTree, err := readFileTree(configPath)
		if err != nil {
			return nil, err
		}

		tree = deepMerge(tree, fileTree)
	}

	if overrides.Environment != "" {
		overlay, ok := rawOverlayFromTree(tree, "environments", overrides.Environment)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownEnvironment, overrides.Environment)
		}

		tree = deepMerge(tree, overlay)
	}

	if overrides.Profile != "" {
		overlay, ok := rawOverlayFromTree(tree, "profiles", overrides.Profile)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownProfile, overrides.Profile)
		}

		tree = deepMerge(tree, overlay)
	}

	tree = deepMerge(tree, cliOverrideTree(overrides))

	return tree, nil
}

// readFileTree loads a YAML config file through viper and returns its
// contents as a plain map tree, ready for deepMerge.
func readFileTree(configPath string) (map[string]any, error) {
	fileViper := viper.New()
	fileViper.SetConfigFile(configPath)

	if err := fileViper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return map[string]any{}, nil
		}

		return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
	}

	return fileViper.AllSettings(), nil
}

// rawOverlayFromTree looks up tree[section][name] and returns it as a
// map[string]any, if present.
func rawOverlayFromTree(tree map[string]any, section, name string) (map[string]any, bool) {
	sectionVal, ok := tree[section]
	if !ok {
		return nil, false
	}

	sectionMap, ok := asStringMap(sectionVal)
	if !ok {
		return nil, false
	}

	overlayVal, ok := sectionMap[name]
	if !ok {
		return nil, false
	}

	overlay, ok := asStringMap(overlayVal)
	if !ok {
		return nil, false
	}

	return overlay, true
}

// cliOverrideTree maps CLIOverrides onto the fixed dotted paths the
// resolver applies last, before interpolation.
func cliOverrideTree(o CLIOverrides) map[string]any {
	tree := map[string]any{}

	analysis := map[string]any{}

	if o.Threshold != 0 {
		analysis["threshold"] = o.Threshold
	}

	if o.MaxHistory != 0 {
		analysis["max_history"] = o.MaxHistory
	}

	if len(analysis) > 0 {
		tree["analysis"] = analysis
	}

	if o.ProjectID != "" {
		tree["project"] = map[string]any{"id": o.ProjectID}
	}

	if len(o.Reporters) > 0 {
		tree["reporting"] = map[string]any{"default_reporters": toAnySlice(o.Reporters)}
	}

	storage := map[string]any{}

	if o.DBConnection != "" {
		storage["adapter_type"] = string(AdapterDatabase)
		storage["database"] = map[string]any{"connection": o.DBConnection}
	}

	if o.BucketName != "" {
		storage["adapter_type"] = string(AdapterS3)
		storage["s3"] = map[string]any{"bucket_name": o.BucketName}
	}

	if o.HistoryFile != "" {
		storage["adapter_type"] = string(AdapterFilesystem)
		storage["filesystem"] = map[string]any{"base_directory": o.HistoryFile}
	}

	if len(storage) > 0 {
		tree["storage"] = storage
	}

	return tree
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}

	return out
}

// setViperDefaults seeds a fresh viper instance with the same embedded
// defaults defaultConfig returns, keyed the way viper.AllSettings emits
// them (dotted sections as nested maps) so they deep-merge cleanly with
// file- and overlay-derived trees.
func setViperDefaults(v *viper.Viper) {
	d := defaultConfig()

	v.SetDefault("project.id", d.Project.ID)

	v.SetDefault("analysis.threshold", d.Analysis.Threshold)
	v.SetDefault("analysis.max_history", d.Analysis.MaxHistory)
	v.SetDefault("analysis.global_rules", rulesToMap(d.Analysis.GlobalRules))
	v.SetDefault("analysis.trends", map[string]any{
		"enabled":              d.Analysis.Trends.Enabled,
		"window_size":          d.Analysis.Trends.WindowSize,
		"min_significance":     d.Analysis.Trends.MinSignificance,
		"min_history_required": d.Analysis.Trends.MinHistoryRequired,
		"only_upward":          d.Analysis.Trends.OnlyUpward,
	})

	stepTypes := map[string]any{}
	for name, st := range d.Analysis.StepTypes {
		stepTypes[string(name)] = map[string]any{
			"max_duration": st.MaxDuration,
			"rules":        rulesToMap(st.Rules),
		}
	}

	v.SetDefault("analysis.step_types", stepTypes)

	tagOverrides := map[string]any{}
	for tag, o := range d.Analysis.TagOverrides {
		tagOverrides[tag] = overrideToMap(o)
	}

	v.SetDefault("analysis.tag_overrides", tagOverrides)
	v.SetDefault("analysis.suite_overrides", map[string]any{})
	v.SetDefault("analysis.step_overrides", map[string]any{})

	profiles := map[string]any{}
	for name, overlay := range d.Profiles {
		profiles[name] = map[string]any(overlay)
	}

	v.SetDefault("profiles", profiles)
	v.SetDefault("environments", map[string]any{})

	v.SetDefault("storage.adapter_type", string(d.Storage.AdapterType))
	v.SetDefault("storage.filesystem.base_directory", d.Storage.Filesystem.BaseDirectory)
	v.SetDefault("storage.retention.runs", d.Storage.Retention.Runs.String())
	v.SetDefault("storage.retention.jobs", d.Storage.Retention.Jobs.String())
	v.SetDefault("storage.retention.completed_jobs", d.Storage.Retention.CompletedJobs.String())

	v.SetDefault("reporting.default_reporters", toAnySlice(d.Reporting.DefaultReporters))

	v.SetEnvPrefix("PERF_SENTINEL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
}

func rulesToMap(r Rules) map[string]any {
	return map[string]any{
		"min_percentage_change": r.MinPercentageChange,
		"min_absolute_slowdown": r.MinAbsoluteSlowdown,
		"check_trends":          r.CheckTrends,
		"trend_sensitivity":     r.TrendSensitivity,
		"filter_stable_steps":   r.FilterStableSteps,
		"stable_threshold":      r.StableThreshold,
		"stable_min_slowdown":   r.StableMinSlowdown,
	}
}

func overrideToMap(o Override) map[string]any {
	m := map[string]any{"rules": rulesToMap(o.Rules)}

	if o.StepType != "" {
		m["step_type"] = string(o.StepType)
	}

	if o.Threshold != 0 {
		m["threshold"] = o.Threshold
	}

	return m
}
