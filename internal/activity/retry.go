// internal/activity/retry.go
package activity

import (
	"context"
	"log"
	"time"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/metrics"
)

// Retrier applies bounded exponential backoff around one activity. Retries
// happen here, below workflow code: the caller only ever sees success or a
// permanent failure.
type Retrier struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxAttempts     int

	// Sleep is injectable for tests. Nil means real time.
	Sleep func(ctx context.Context, d time.Duration) error
}

func NewRetrier() *Retrier {
	return &Retrier{
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2,
		MaxAttempts:     3,
	}
}

func (r *Retrier) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleep != nil {
		return r.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do runs fn until it succeeds, fails permanently, or exhausts MaxAttempts.
// Only errors tagged retryable are retried.
func (r *Retrier) Do(ctx context.Context, name string, fn func(context.Context) error) error {
	interval := r.InitialInterval
	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !appErrors.IsRetryable(err) {
			return err
		}
		if attempt >= r.MaxAttempts {
			log.Printf("activity %s permanently failed after %d attempts: %v", name, attempt, err)
			return err
		}

		metrics.RecordActivityRetry(name)
		log.Printf("activity %s failed (attempt %d/%d), retrying in %s: %v", name, attempt, r.MaxAttempts, interval, err)
		if serr := r.sleep(ctx, interval); serr != nil {
			return serr
		}
		interval = time.Duration(float64(interval) * r.Multiplier)
		if interval > r.MaxInterval {
			interval = r.MaxInterval
		}
	}
}
