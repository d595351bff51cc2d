// internal/engine/clock.go
package engine

import (
	"context"
	"time"
)

// Clock abstracts time for the orchestration code so scheduling tests can
// simulate days without waiting for them. Sleep returns early with the
// context's error on cancellation.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

// NewClock returns the wall clock.
func NewClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
