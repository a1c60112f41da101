package model

import "time"

// RunStatus represents the outcome of a stored reconciliation run.
type RunStatus string

const (
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is a persisted reconciliation of one profile batch.
type Run struct {
	ID        string    `json:"id"`
	ProfileID string    `json:"profile_id"`
	Status    RunStatus `json:"status"`
	Result    *Result   `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
