package repository

import (
	"database/sql"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
)

type AccountRepositoryInterface interface {
	VerifyAccount(accountID int) (*model.ConnectedAccount, error)
}

type AccountRepository struct {
	DB *sql.DB
}

// VerifyAccount resolves the sender account and checks it can dispatch.
// Missing or non-connected accounts come back as a non-retryable
// configuration error.
func (r *AccountRepository) VerifyAccount(accountID int) (*model.ConnectedAccount, error) {
	query := `
        SELECT id, organization_id, provider_id, status, created_at
        FROM connected_accounts
        WHERE id=$1
    `
	var a model.ConnectedAccount
	err := r.DB.QueryRow(query, accountID).Scan(&a.ID, &a.OrganizationID, &a.ProviderID, &a.Status, &a.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewAccountUnavailable(accountID, "")
		}
		return nil, appErrors.ClassifyDB(err)
	}

	if a.Status != model.AccountConnected {
		return nil, appErrors.NewAccountUnavailable(accountID, a.Status)
	}
	return &a, nil
}
