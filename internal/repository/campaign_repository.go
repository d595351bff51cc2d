package repository

import (
	"database/sql"
	"encoding/json"
	"time"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
)

type CampaignRepositoryInterface interface {
	GetByID(id int) (*model.Campaign, error)
	UpdateStatus(campaignID int, status model.CampaignStatus) error
	ListByStatus(status model.CampaignStatus) ([]*model.Campaign, error)
	ClaimRun(campaignID int, owner string, staleAfter time.Duration) (bool, error)
	RenewRunClaim(campaignID int, owner string) error
	ReleaseRun(campaignID int, owner string) error
}

type CampaignRepository struct {
	DB *sql.DB
}

func (r *CampaignRepository) GetByID(id int) (*model.Campaign, error) {
	query := `
        SELECT id, organization_id, name, status, leads_per_day, sender_account_id, lead_list_id, steps, run_owner, run_heartbeat_at, created_at, updated_at
        FROM campaigns WHERE id=$1
    `
	var c model.Campaign
	var rawSteps []byte
	err := r.DB.QueryRow(query, id).Scan(
		&c.ID, &c.OrganizationID, &c.Name, &c.Status, &c.LeadsPerDay,
		&c.SenderAccountID, &c.LeadListID, &rawSteps, &c.RunOwner, &c.RunHeartbeatAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, appErrors.ClassifyDB(err)
	}

	c.Steps, err = model.ParseStepSequence(rawSteps)
	if err != nil {
		return nil, appErrors.NonRetryable(err)
	}
	return &c, nil
}

func (r *CampaignRepository) UpdateStatus(campaignID int, status model.CampaignStatus) error {
	query := `UPDATE campaigns SET status=$1, updated_at=$2 WHERE id=$3`
	res, err := r.DB.Exec(query, status, time.Now(), campaignID)
	if err != nil {
		return appErrors.ClassifyDB(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewCampaignNotFound(campaignID)
	}
	return nil
}

func (r *CampaignRepository) ListByStatus(status model.CampaignStatus) ([]*model.Campaign, error) {
	query := `
        SELECT id, organization_id, name, status, leads_per_day, sender_account_id, lead_list_id, steps, run_owner, run_heartbeat_at, created_at, updated_at
        FROM campaigns WHERE status=$1 ORDER BY id
    `
	rows, err := r.DB.Query(query, status)
	if err != nil {
		return nil, appErrors.ClassifyDB(err)
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c := &model.Campaign{}
		var rawSteps []byte
		if err := rows.Scan(
			&c.ID, &c.OrganizationID, &c.Name, &c.Status, &c.LeadsPerDay,
			&c.SenderAccountID, &c.LeadListID, &rawSteps, &c.RunOwner, &c.RunHeartbeatAt,
			&c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, appErrors.ClassifyDB(err)
		}
		if err := json.Unmarshal(rawSteps, &c.Steps); err != nil && len(rawSteps) > 0 {
			return nil, appErrors.NonRetryable(err)
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

// ClaimRun compare-and-swaps the run-owner column so at most one worker
// process hosts a campaign's orchestrator at a time. A claim whose
// heartbeat is older than staleAfter belongs to a dead process and may be
// taken over. Returns false when another process holds a live claim.
func (r *CampaignRepository) ClaimRun(campaignID int, owner string, staleAfter time.Duration) (bool, error) {
	query := `
        UPDATE campaigns
        SET run_owner=$1, run_heartbeat_at=NOW()
        WHERE id=$2
          AND (run_owner='' OR run_owner=$1 OR run_heartbeat_at IS NULL
               OR run_heartbeat_at < NOW() - make_interval(secs => $3))
    `
	res, err := r.DB.Exec(query, owner, campaignID, int(staleAfter.Seconds()))
	if err != nil {
		return false, appErrors.ClassifyDB(err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RenewRunClaim refreshes the heartbeat for a claim this process holds.
func (r *CampaignRepository) RenewRunClaim(campaignID int, owner string) error {
	query := `UPDATE campaigns SET run_heartbeat_at=NOW() WHERE id=$1 AND run_owner=$2`
	if _, err := r.DB.Exec(query, campaignID, owner); err != nil {
		return appErrors.ClassifyDB(err)
	}
	return nil
}

// ReleaseRun clears the claim if this process still owns it.
func (r *CampaignRepository) ReleaseRun(campaignID int, owner string) error {
	query := `UPDATE campaigns SET run_owner='', run_heartbeat_at=NULL WHERE id=$1 AND run_owner=$2`
	if _, err := r.DB.Exec(query, campaignID, owner); err != nil {
		return appErrors.ClassifyDB(err)
	}
	return nil
}
