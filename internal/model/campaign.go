// internal/model/campaign.go
package model

import "time"

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignActive    CampaignStatus = "active"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
	CampaignFailed    CampaignStatus = "failed"
)

type Campaign struct {
	ID              int            `db:"id" json:"id"`
	OrganizationID  int            `db:"organization_id" json:"organization_id"`
	Name            string         `db:"name" json:"name"`
	Status          CampaignStatus `db:"status" json:"status"`
	LeadsPerDay     int            `db:"leads_per_day" json:"leads_per_day"`
	SenderAccountID int            `db:"sender_account_id" json:"sender_account_id"`
	LeadListID      int            `db:"lead_list_id" json:"lead_list_id"`
	Steps           StepSequence   `db:"steps" json:"steps"`
	RunOwner        string         `db:"run_owner" json:"-"`
	RunHeartbeatAt  *time.Time     `db:"run_heartbeat_at" json:"-"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       *time.Time     `db:"updated_at" json:"updated_at,omitempty"`
}

// RunClaimedElsewhere reports whether another worker process holds a live
// claim on this campaign's run. A claim with no heartbeat inside
// staleAfter belongs to a dead process and does not count.
func (c *Campaign) RunClaimedElsewhere(owner string, staleAfter time.Duration, now time.Time) bool {
	if c.RunOwner == "" || c.RunOwner == owner {
		return false
	}
	return c.RunHeartbeatAt != nil && now.Sub(*c.RunHeartbeatAt) < staleAfter
}
