package config

import "errors"

// Sentinel validation errors, wrapped with details via fmt.Errorf("%w: ...").
var (
	ErrInvalidThreshold           = errors.New("analysis.threshold must be greater than zero")
	ErrInvalidMaxHistory          = errors.New("analysis.max_history must be greater than zero")
	ErrStepTypeRulesMissing       = errors.New("step type is missing a rules block")
	ErrDatabaseConnectionRequired = errors.New("storage.database.connection is required when adapter_type is database")
	ErrReportersEmpty             = errors.New("reporting.default_reporters must be a non-empty sequence")
	ErrUnknownEnvironment         = errors.New("unknown environment")
	ErrUnknownProfile             = errors.New("unknown profile")
	ErrStorageTargetAmbiguous     = errors.New("exactly one of --config, --db-connection, --bucket-name, or --history-file is required")
)
