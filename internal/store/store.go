package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/claimrecon/internal/model"
)

// ErrNotFound is returned when a requested run does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	ProfileID string          `json:"profile_id,omitempty"`
	Status    model.RunStatus `json:"status,omitempty"`
	Limit     int             `json:"limit,omitempty"`
	Offset    int             `json:"offset,omitempty"`
}

// IssueFilter specifies criteria for listing stored issues.
type IssueFilter struct {
	ProfileID string          `json:"profile_id,omitempty"`
	IssueType model.IssueType `json:"issue_type,omitempty"`
	RunID     string          `json:"run_id,omitempty"`
	Limit     int             `json:"limit,omitempty"`
}

// IssueRecord is one issue as persisted with its run.
type IssueRecord struct {
	RunID     string      `json:"run_id"`
	ProfileID string      `json:"profile_id"`
	CreatedAt time.Time   `json:"created_at"`
	Issue     model.Issue `json:"issue"`
}

// Store persists reconciliation run history.
type Store interface {
	// SaveRun writes a run and its issues atomically. A missing ID or
	// CreatedAt is filled in.
	SaveRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)
	ListIssues(ctx context.Context, filter IssueFilter) ([]IssueRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

func listLimit(n int) int {
	if n <= 0 || n > 1000 {
		return defaultListLimit
	}
	return n
}

func issuesOf(run *model.Run) []model.Issue {
	if run.Result == nil {
		return nil
	}
	return run.Result.Issues
}

func prepareRun(run *model.Run) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.ProfileID == "" && run.Result != nil {
		run.ProfileID = run.Result.ProfileID
	}
	if run.Status == "" {
		run.Status = model.RunStatusComplete
		if run.Error != "" {
			run.Status = model.RunStatusFailed
		}
	}
}
