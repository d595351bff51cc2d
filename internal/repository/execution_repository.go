package repository

import (
	"database/sql"
	"encoding/json"
	"time"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
)

type ExecutionRepositoryInterface interface {
	Create(exec *model.CampaignExecution) error
	Update(exec *model.CampaignExecution) error
	GetByID(id int) (*model.CampaignExecution, error)
	GetByCampaignAndLead(campaignID, leadID int) (*model.CampaignExecution, error)
	ListByCampaign(campaignID int) ([]*model.CampaignExecution, error)
}

type ExecutionRepository struct {
	DB *sql.DB
}

const executionColumns = `id, campaign_id, lead_id, workflow_execution_id, status, current_step, total_steps, execution_data, last_error, created_at, started_at, completed_at, updated_at`

func scanExecution(row interface{ Scan(...any) error }) (*model.CampaignExecution, error) {
	var e model.CampaignExecution
	var rawData []byte
	err := row.Scan(
		&e.ID, &e.CampaignID, &e.LeadID, &e.WorkflowExecutionID, &e.Status,
		&e.CurrentStep, &e.TotalSteps, &rawData, &e.LastError,
		&e.CreatedAt, &e.StartedAt, &e.CompletedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(rawData) > 0 {
		if err := json.Unmarshal(rawData, &e.ExecutionData); err != nil {
			return nil, err
		}
	}
	return &e, nil
}

// ====================== Executions ======================

// Create is an upsert-by-identity insert: invoking it twice for the same
// (campaign_id, lead_id) produces exactly one row, and the caller always
// gets the surviving row back.
func (r *ExecutionRepository) Create(exec *model.CampaignExecution) error {
	if exec.Status == "" {
		exec.Status = model.ExecutionPending
	}
	query := `
        INSERT INTO campaign_executions
            (campaign_id, lead_id, workflow_execution_id, status, current_step, total_steps, execution_data, last_error, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, '', NOW(), NOW())
        ON CONFLICT (campaign_id, lead_id) DO NOTHING
    `
	rawData, err := json.Marshal(exec.ExecutionData)
	if err != nil {
		return appErrors.NonRetryable(err)
	}

	_, err = r.DB.Exec(query, exec.CampaignID, exec.LeadID, exec.WorkflowExecutionID,
		exec.Status, exec.CurrentStep, exec.TotalSteps, rawData)
	if err != nil {
		return appErrors.ClassifyDB(err)
	}

	existing, err := r.GetByCampaignAndLead(exec.CampaignID, exec.LeadID)
	if err != nil {
		return err
	}
	*exec = *existing
	return nil
}

// Update persists status, step cursor, payload and timestamps. Not-found
// here is a logic bug (updating a row never created), reported distinctly
// and never retried.
func (r *ExecutionRepository) Update(exec *model.CampaignExecution) error {
	query := `
        UPDATE campaign_executions
        SET workflow_execution_id=$1, status=$2, current_step=$3, execution_data=$4,
            last_error=$5, started_at=$6, completed_at=$7, updated_at=$8
        WHERE id=$9
    `
	rawData, err := json.Marshal(exec.ExecutionData)
	if err != nil {
		return appErrors.NonRetryable(err)
	}

	exec.UpdatedAt = time.Now()
	res, err := r.DB.Exec(query, exec.WorkflowExecutionID, exec.Status, exec.CurrentStep,
		rawData, exec.LastError, exec.StartedAt, exec.CompletedAt, exec.UpdatedAt, exec.ID)
	if err != nil {
		return appErrors.ClassifyDB(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewExecutionNotFound(exec.ID)
	}
	return nil
}

func (r *ExecutionRepository) GetByID(id int) (*model.CampaignExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM campaign_executions WHERE id=$1`
	e, err := scanExecution(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewExecutionNotFound(id)
		}
		return nil, appErrors.ClassifyDB(err)
	}
	return e, nil
}

func (r *ExecutionRepository) GetByCampaignAndLead(campaignID, leadID int) (*model.CampaignExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM campaign_executions WHERE campaign_id=$1 AND lead_id=$2`
	e, err := scanExecution(r.DB.QueryRow(query, campaignID, leadID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, appErrors.ClassifyDB(err)
	}
	return e, nil
}

// ListByCampaign returns every execution row for status queries, in lead
// batching order.
func (r *ExecutionRepository) ListByCampaign(campaignID int) ([]*model.CampaignExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM campaign_executions WHERE campaign_id=$1 ORDER BY lead_id`
	rows, err := r.DB.Query(query, campaignID)
	if err != nil {
		return nil, appErrors.ClassifyDB(err)
	}
	defer rows.Close()

	execs := []*model.CampaignExecution{}
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, appErrors.ClassifyDB(err)
		}
		execs = append(execs, e)
	}
	return execs, rows.Err()
}
