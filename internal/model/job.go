package model

import "time"

// JobStatus is the lifecycle state of one coordination JobRecord.
type JobStatus string

// Recognized job statuses.
const (
	JobRegistered JobStatus = "registered"
	JobRunning    JobStatus = "running"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobUnknown    JobStatus = "unknown"
)

// Terminal reports whether status requires no further polling.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// JobRecord is the coordination entity one CI job registers and updates
// as it runs, so that an aggregation step can wait on a cohort of jobs
// before combining their runs.
type JobRecord struct {
	ProjectID    string         `json:"projectId"`
	JobID        string         `json:"jobId"`
	Status       JobStatus      `json:"status"`
	RegisteredAt time.Time      `json:"registeredAt"`
	LastUpdated  time.Time      `json:"lastUpdated"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}
