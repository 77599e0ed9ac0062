package config

import "fmt"

// Validate checks the fully resolved config against the invariants the
// rest of the system depends on.
func Validate(cfg *Config) error {
	if cfg.Analysis.Threshold <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidThreshold, cfg.Analysis.Threshold)
	}

	if cfg.Analysis.MaxHistory <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidMaxHistory, cfg.Analysis.MaxHistory)
	}

	for name, st := range cfg.Analysis.StepTypes {
		if st.Rules == (Rules{}) {
			return fmt.Errorf("%w: step type %q", ErrStepTypeRulesMissing, name)
		}
	}

	if cfg.Storage.AdapterType == AdapterDatabase && cfg.Storage.Database.Connection == "" {
		return ErrDatabaseConnectionRequired
	}

	if len(cfg.Reporting.DefaultReporters) == 0 {
		return ErrReportersEmpty
	}

	return nil
}
