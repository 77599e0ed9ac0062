package model

import "time"

// RunDocument is one execution, persisted append-only and keyed by RunID.
type RunDocument struct {
	RunID     string         `json:"runId"`
	ProjectID string         `json:"projectId"`
	RunData   []StepSample   `json:"runData"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}
