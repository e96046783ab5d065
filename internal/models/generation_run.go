package models

import "time"

// GenerationRunStatus represents lifecycle phases for asynchronous generation.
type GenerationRunStatus string

const (
	GenerationRunQueued    GenerationRunStatus = "queued"
	GenerationRunRunning   GenerationRunStatus = "running"
	GenerationRunCompleted GenerationRunStatus = "completed"
	GenerationRunFailed    GenerationRunStatus = "failed"
)

// GenerationRun tracks one generation request.
type GenerationRun struct {
	ID          string              `json:"id"`
	Status      GenerationRunStatus `json:"status"`
	BatchIDs    []string            `json:"batch_ids"`
	Constraints Constraints         `json:"constraints"`
	Entries     int                 `json:"entries"`
	Replaced    int64               `json:"replaced"`
	Report      *GenerationReport   `json:"report,omitempty"`
	Error       string              `json:"error,omitempty"`
	RequestedAt time.Time           `json:"requested_at"`
	FinishedAt  *time.Time          `json:"finished_at,omitempty"`
}
