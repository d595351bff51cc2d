package appErrors

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestRetryabilityIsExplicitNotInferred(t *testing.T) {
	assert.True(t, IsRetryable(Retryablef("connection reset")))
	assert.False(t, IsRetryable(NonRetryablef("invalid profile url")))

	// An error nobody classified is permanent, regardless of its text.
	assert.False(t, IsRetryable(errors.New("timeout: connection refused")))
	assert.False(t, IsRetryable(nil))
}

func TestClassificationSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("dispatch step: %w", Retryablef("upstream 503"))
	assert.True(t, IsRetryable(err))

	err = fmt.Errorf("dispatch step: %w", NewAccountUnavailable(7, "restricted"))
	assert.False(t, IsRetryable(err))

	var unavailable *ErrAccountUnavailable
	assert.True(t, errors.As(err, &unavailable))
	assert.Equal(t, 7, unavailable.AccountID)
}

func TestClassifyDB(t *testing.T) {
	assert.Nil(t, ClassifyDB(nil))

	// Missing rows and constraint violations are permanent.
	assert.False(t, IsRetryable(ClassifyDB(sql.ErrNoRows)))
	assert.False(t, IsRetryable(ClassifyDB(&pq.Error{Code: "23505"})))
	assert.False(t, IsRetryable(ClassifyDB(&pq.Error{Code: "42703"})))
	assert.False(t, IsRetryable(ClassifyDB(context.Canceled)))

	// Connection-level and unknown driver errors are transient.
	assert.True(t, IsRetryable(ClassifyDB(&pq.Error{Code: "57P01"})))
	assert.True(t, IsRetryable(ClassifyDB(errors.New("driver: bad connection"))))
}

func TestSentinelErrorsCarryContext(t *testing.T) {
	err := NewCampaignNotFound(12)
	var notFound *ErrCampaignNotFound
	assert.True(t, errors.As(err, &notFound))
	assert.Equal(t, 12, notFound.CampaignID)
	assert.Contains(t, err.Error(), "12")

	err = NewExecutionNotFound(99)
	var execNotFound *ErrExecutionNotFound
	assert.True(t, errors.As(err, &execNotFound))
	assert.Equal(t, 99, execNotFound.ExecutionID)
}
