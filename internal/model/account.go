// internal/model/account.go
package model

import "time"

const (
	AccountConnected    = "connected"
	AccountRestricted   = "restricted"
	AccountDisconnected = "disconnected"
)

// ConnectedAccount is the sender identity on the target platform. Only
// accounts in "connected" state may dispatch outreach actions.
type ConnectedAccount struct {
	ID             int       `db:"id" json:"id"`
	OrganizationID int       `db:"organization_id" json:"organization_id"`
	ProviderID     string    `db:"provider_id" json:"provider_id"`
	Status         string    `db:"status" json:"status"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
