package config

import "time"

// defaultConfig returns the embedded baseline configuration. It is the
// first layer applied by Load; every other layer merges on top of it.
func defaultConfig() Config {
	return Config{
		Project: ProjectConfig{ID: "default"},
		Analysis: AnalysisConfig{
			Threshold:  2.0,
			MaxHistory: 50,
			StepTypes: map[StepType]StepTypeConfig{
				StepTypeVeryFast: {
					MaxDuration: 100,
					Rules: Rules{
						MinPercentageChange: 15,
						MinAbsoluteSlowdown: 20,
						CheckTrends:         true,
						TrendSensitivity:    10,
						FilterStableSteps:   false,
						StableThreshold:     5,
						StableMinSlowdown:   30,
					},
				},
				StepTypeFast: {
					MaxDuration: 500,
					Rules: Rules{
						MinPercentageChange: 15,
						MinAbsoluteSlowdown: 50,
						CheckTrends:         true,
						TrendSensitivity:    25,
						FilterStableSteps:   false,
						StableThreshold:     15,
						StableMinSlowdown:   75,
					},
				},
				StepTypeMedium: {
					MaxDuration: 2000,
					Rules: Rules{
						MinPercentageChange: 15,
						MinAbsoluteSlowdown: 100,
						CheckTrends:         true,
						TrendSensitivity:    75,
						FilterStableSteps:   false,
						StableThreshold:     50,
						StableMinSlowdown:   150,
					},
				},
				StepTypeSlow: {
					MaxDuration: 0,
					Rules: Rules{
						MinPercentageChange: 10,
						MinAbsoluteSlowdown: 200,
						CheckTrends:         true,
						TrendSensitivity:    150,
						FilterStableSteps:   false,
						StableThreshold:     100,
						StableMinSlowdown:   300,
					},
				},
			},
			GlobalRules: Rules{
				MinPercentageChange: 15,
				MinAbsoluteSlowdown: 100,
				CheckTrends:         true,
				TrendSensitivity:    50,
				FilterStableSteps:   false,
				StableThreshold:     25,
				StableMinSlowdown:   100,
			},
			Trends: TrendsConfig{
				Enabled:             true,
				WindowSize:          3,
				MinSignificance:     10,
				MinHistoryRequired:  6,
				OnlyUpward:          false,
			},
			StepOverrides:  map[string]Override{},
			SuiteOverrides: map[string]Override{},
			TagOverrides: map[string]Override{
				"@critical": {
					Threshold: 1.5,
					Rules: Rules{
						MinPercentageChange: 1,
						MinAbsoluteSlowdown: 5,
						CheckTrends:         true,
						TrendSensitivity:    5,
					},
				},
			},
		},
		Environments: map[string]RawOverlay{},
		Profiles: map[string]RawOverlay{
			"strict": {
				"analysis": map[string]any{
					"threshold": 1.5,
					"global_rules": map[string]any{
						"min_percentage_change": 10,
						"min_absolute_slowdown": 50,
					},
				},
			},
			"lenient": {
				"analysis": map[string]any{
					"threshold": 3.0,
					"global_rules": map[string]any{
						"min_percentage_change": 35,
						"min_absolute_slowdown": 200,
					},
				},
			},
			"ci_focused": {
				"analysis": map[string]any{
					"trends": map[string]any{
						"only_upward": true,
					},
				},
			},
		},
		Storage: StorageConfig{
			AdapterType: AdapterAuto,
			Filesystem: FilesystemConfig{
				BaseDirectory: "./.perf-sentinel",
			},
			Retention: RetentionConfig{
				Runs:          90 * 24 * time.Hour,
				Jobs:          30 * 24 * time.Hour,
				CompletedJobs: 7 * 24 * time.Hour,
			},
		},
		Reporting: ReportingConfig{
			DefaultReporters: []string{"console"},
		},
	}
}
