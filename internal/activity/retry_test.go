package activity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
)

func testRetrier(sleeps *[]time.Duration) *Retrier {
	r := NewRetrier()
	r.Sleep = func(ctx context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}
	return r
}

func TestNonRetryableFailsAfterSingleAttempt(t *testing.T) {
	var sleeps []time.Duration
	r := testRetrier(&sleeps)

	attempts := 0
	err := r.Do(context.Background(), "create_execution", func(context.Context) error {
		attempts++
		return appErrors.NonRetryablef("foreign_key_violation")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts, "a permanent error must not be retried")
	assert.Empty(t, sleeps)
}

func TestRetryableExhaustsMaxAttempts(t *testing.T) {
	var sleeps []time.Duration
	r := testRetrier(&sleeps)

	attempts := 0
	err := r.Do(context.Background(), "execute_step", func(context.Context) error {
		attempts++
		return appErrors.Retryablef("timeout")
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts, "a fourth attempt must never be issued")
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeps)
}

func TestRetryableSucceedsOnLaterAttempt(t *testing.T) {
	var sleeps []time.Duration
	r := testRetrier(&sleeps)

	attempts := 0
	err := r.Do(context.Background(), "get_campaign", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return appErrors.Retryablef("connection refused")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Len(t, sleeps, 2)
}

func TestBackoffIsCapped(t *testing.T) {
	var sleeps []time.Duration
	r := testRetrier(&sleeps)
	r.MaxAttempts = 8
	r.MaxInterval = 4 * time.Second

	err := r.Do(context.Background(), "update_execution", func(context.Context) error {
		return appErrors.Retryablef("server error")
	})

	require.Error(t, err)
	want := []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second,
		4 * time.Second, 4 * time.Second, 4 * time.Second, 4 * time.Second,
	}
	assert.Equal(t, want, sleeps)
}

func TestUnclassifiedErrorIsNotRetried(t *testing.T) {
	var sleeps []time.Duration
	r := testRetrier(&sleeps)

	attempts := 0
	err := r.Do(context.Background(), "verify_account", func(context.Context) error {
		attempts++
		return errors.New("untagged failure")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestCancelledContextStopsBackoff(t *testing.T) {
	r := NewRetrier()
	r.Sleep = func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	}

	attempts := 0
	err := r.Do(context.Background(), "execute_step", func(context.Context) error {
		attempts++
		return appErrors.Retryablef("timeout")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}
