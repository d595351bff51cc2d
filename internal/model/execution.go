// internal/model/execution.go
package model

import "time"

type ExecutionStatus string

const (
	ExecutionPending    ExecutionStatus = "pending"
	ExecutionScheduled  ExecutionStatus = "scheduled"
	ExecutionInProgress ExecutionStatus = "in_progress"
	ExecutionCompleted  ExecutionStatus = "completed"
	ExecutionFailed     ExecutionStatus = "failed"
	ExecutionSkipped    ExecutionStatus = "skipped"
)

// Terminal reports whether the status can no longer change.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed || s == ExecutionSkipped
}

// ExecutionData carries intermediate step results (returned profile data,
// invitation ids) across steps. Stored as jsonb on the execution row.
type ExecutionData map[string]any

// Merge folds a step's payload into the existing data, last write wins.
func (d ExecutionData) Merge(payload map[string]any) ExecutionData {
	if d == nil {
		d = ExecutionData{}
	}
	for k, v := range payload {
		d[k] = v
	}
	return d
}

// CampaignExecution is the per-lead progress row. One row per lead per
// campaign run; never deleted, it is the audit trail.
type CampaignExecution struct {
	ID                  int             `db:"id" json:"id"`
	CampaignID          int             `db:"campaign_id" json:"campaign_id"`
	LeadID              int             `db:"lead_id" json:"lead_id"`
	WorkflowExecutionID string          `db:"workflow_execution_id" json:"workflow_execution_id"`
	Status              ExecutionStatus `db:"status" json:"status"`
	CurrentStep         int             `db:"current_step" json:"current_step"`
	TotalSteps          int             `db:"total_steps" json:"total_steps"`
	ExecutionData       ExecutionData   `db:"execution_data" json:"execution_data,omitempty"`
	LastError           string          `db:"last_error" json:"last_error,omitempty"`
	CreatedAt           time.Time       `db:"created_at" json:"created_at"`
	StartedAt           *time.Time      `db:"started_at" json:"started_at,omitempty"`
	CompletedAt         *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
	UpdatedAt           time.Time       `db:"updated_at" json:"updated_at"`
}
