// internal/errors/errors.go
package appErrors

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"

	"github.com/lib/pq"
)

// Classified tags an error with an explicit retryability decision, made by
// the layer that detected the failure (database driver, network client).
// Downstream code must never infer retryability from message text.
type Classified struct {
	Retryable bool
	Err       error
}

func (e *Classified) Error() string { return e.Err.Error() }
func (e *Classified) Unwrap() error { return e.Err }

// Retryable marks err as a transient fault worth retrying.
func Retryable(err error) error {
	return &Classified{Retryable: true, Err: err}
}

// NonRetryable marks err as permanent.
func NonRetryable(err error) error {
	return &Classified{Retryable: false, Err: err}
}

func Retryablef(format string, args ...any) error {
	return Retryable(fmt.Errorf(format, args...))
}

func NonRetryablef(format string, args ...any) error {
	return NonRetryable(fmt.Errorf(format, args...))
}

// IsRetryable reports whether err was tagged retryable. Errors that were
// never classified are treated as permanent: nothing downstream knows
// enough to retry them safely.
func IsRetryable(err error) bool {
	var c *Classified
	if errors.As(err, &c) {
		return c.Retryable
	}
	return false
}

// ClassifyDB wraps a database error with a retryability tag. Integrity,
// data and syntax violations are permanent; connection-level failures and
// unknown driver errors are transient.
func ClassifyDB(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return NonRetryable(err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "22", "23", "42": // data exception, integrity violation, syntax
			return NonRetryable(err)
		}
		return Retryable(err)
	}
	if errors.Is(err, context.Canceled) {
		return NonRetryable(err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return Retryable(err)
	}
	return Retryable(err)
}

// ErrCampaignNotFound is a sentinel error
type ErrCampaignNotFound struct {
	CampaignID int
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

func NewCampaignNotFound(id int) error {
	return NonRetryable(&ErrCampaignNotFound{CampaignID: id})
}

// ErrExecutionNotFound signals an update against an execution row that was
// never created. That is a logic bug, distinct from other DB errors, and
// must not be retried.
type ErrExecutionNotFound struct {
	ExecutionID int
}

func (e *ErrExecutionNotFound) Error() string {
	return fmt.Sprintf("campaign execution with ID %d not found", e.ExecutionID)
}

func NewExecutionNotFound(id int) error {
	return NonRetryable(&ErrExecutionNotFound{ExecutionID: id})
}

// ErrAccountUnavailable covers both a missing sender account and one in a
// state that cannot dispatch. A configuration error, never retried.
type ErrAccountUnavailable struct {
	AccountID int
	Status    string
}

func (e *ErrAccountUnavailable) Error() string {
	if e.Status == "" {
		return fmt.Sprintf("connected account %d not found", e.AccountID)
	}
	return fmt.Sprintf("connected account %d is %s", e.AccountID, e.Status)
}

func NewAccountUnavailable(id int, status string) error {
	return NonRetryable(&ErrAccountUnavailable{AccountID: id, Status: status})
}
