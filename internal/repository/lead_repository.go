package repository

import (
	"database/sql"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
)

// LeadRepositoryInterface defines methods used by the orchestrator's lead
// loading activities
type LeadRepositoryInterface interface {
	GetLeadListData(listID, orgID int) ([]model.Lead, error)
	EntryLeads(leads []model.Lead, orgID, campaignID int) error
	GetDBLeads(campaignID int) ([]model.Lead, error)
}

type LeadRepository struct {
	DB *sql.DB
}

// GetLeadListData loads the raw lead-list entries the CSV importer wrote.
func (r *LeadRepository) GetLeadListData(listID, orgID int) ([]model.Lead, error) {
	query := `
        SELECT profile_url, first_name, last_name, headline, company
        FROM lead_list_entries
        WHERE lead_list_id=$1 AND organization_id=$2
        ORDER BY id
    `
	rows, err := r.DB.Query(query, listID, orgID)
	if err != nil {
		return nil, appErrors.ClassifyDB(err)
	}
	defer rows.Close()

	leads := []model.Lead{}
	for rows.Next() {
		var l model.Lead
		if err := rows.Scan(&l.ProfileURL, &l.FirstName, &l.LastName, &l.Headline, &l.Company); err != nil {
			return nil, appErrors.ClassifyDB(err)
		}
		l.OrganizationID = orgID
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

// EntryLeads copies lead-list entries into campaign-scoped lead rows.
// Idempotent: a re-run of the same ingestion inserts nothing new.
func (r *LeadRepository) EntryLeads(leads []model.Lead, orgID, campaignID int) error {
	query := `
        INSERT INTO leads (campaign_id, organization_id, profile_url, first_name, last_name, headline, company, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
        ON CONFLICT (campaign_id, profile_url) DO NOTHING
    `
	for _, l := range leads {
		if _, err := r.DB.Exec(query, campaignID, orgID, l.ProfileURL, l.FirstName, l.LastName, l.Headline, l.Company); err != nil {
			return appErrors.ClassifyDB(err)
		}
	}
	return nil
}

// GetDBLeads returns the campaign's leads in ingestion order. That order
// is the batching order for the whole run.
func (r *LeadRepository) GetDBLeads(campaignID int) ([]model.Lead, error) {
	query := `
        SELECT id, campaign_id, organization_id, profile_url, first_name, last_name, headline, company, created_at
        FROM leads
        WHERE campaign_id=$1
        ORDER BY id
    `
	rows, err := r.DB.Query(query, campaignID)
	if err != nil {
		return nil, appErrors.ClassifyDB(err)
	}
	defer rows.Close()

	leads := []model.Lead{}
	for rows.Next() {
		var l model.Lead
		if err := rows.Scan(&l.ID, &l.CampaignID, &l.OrganizationID, &l.ProfileURL, &l.FirstName, &l.LastName, &l.Headline, &l.Company, &l.CreatedAt); err != nil {
			return nil, appErrors.ClassifyDB(err)
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}
