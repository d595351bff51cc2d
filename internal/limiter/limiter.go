// internal/limiter/limiter.go
package limiter

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"github.com/unclebandit/outreach-backend/internal/config"
	"github.com/unclebandit/outreach-backend/internal/metrics"
	"github.com/unclebandit/outreach-backend/internal/model"
)

// bucket is one token bucket: a reservoir that refills to capacity once per
// refill interval, a minimum spacing between consecutive grants, and a cap
// on concurrently in-flight dispatches. A bucket with capacity <= 0 has no
// reservoir (used for the global bucket, which only caps concurrency and
// spacing).
type bucket struct {
	mu       sync.Mutex
	capacity int
	tokens   int
	refillCh chan struct{}

	spacing  *rate.Limiter
	inFlight chan struct{}
}

func newBucket(capacity int, minSpacing time.Duration, maxInFlight int) *bucket {
	b := &bucket{
		capacity: capacity,
		tokens:   capacity,
		refillCh: make(chan struct{}),
		inFlight: make(chan struct{}, maxInFlight),
	}
	if minSpacing > 0 {
		b.spacing = rate.NewLimiter(rate.Every(minSpacing), 1)
	}
	return b
}

// takeToken blocks until a reservoir token is available or ctx is done.
func (b *bucket) takeToken(ctx context.Context) error {
	if b.capacity <= 0 {
		return nil
	}
	for {
		b.mu.Lock()
		if b.tokens > 0 {
			b.tokens--
			b.mu.Unlock()
			return nil
		}
		ch := b.refillCh
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

func (b *bucket) putToken() {
	if b.capacity <= 0 {
		return
	}
	b.mu.Lock()
	if b.tokens < b.capacity {
		b.tokens++
	}
	b.mu.Unlock()
}

// refill restores the reservoir to capacity and wakes all waiters.
func (b *bucket) refill() {
	b.mu.Lock()
	b.tokens = b.capacity
	close(b.refillCh)
	b.refillCh = make(chan struct{})
	b.mu.Unlock()
}

func (b *bucket) enter(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case b.inFlight <- struct{}{}:
	}
	if b.spacing != nil {
		if err := b.spacing.Wait(ctx); err != nil {
			<-b.inFlight
			return err
		}
	}
	return nil
}

func (b *bucket) leave() {
	<-b.inFlight
}

// Registry holds one token bucket per connected account per operation kind
// plus a single global bucket that caps aggregate concurrency and spacing
// across all accounts, so per-account limits cannot be circumvented by
// running many accounts in parallel.
//
// Constructed once at process start and shut down on drain; never a
// package-level singleton.
type Registry struct {
	mu       sync.Mutex
	limits   config.LimitsConfig
	accounts map[int]map[model.OperationKind]*bucket
	global   *bucket
	cron     *cron.Cron
}

func NewRegistry(limits config.LimitsConfig) *Registry {
	return &Registry{
		limits:   limits,
		accounts: make(map[int]map[model.OperationKind]*bucket),
		global:   newBucket(0, limits.GlobalMinSpacing(), limits.GlobalMaxInFlight),
	}
}

// Start schedules the hourly reservoir refill.
func (r *Registry) Start() error {
	r.cron = cron.New()
	if _, err := r.cron.AddFunc(r.limits.RefillIntervalCronSpec, r.Refill); err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

// Stop halts the refill schedule. In-flight acquires are unaffected.
func (r *Registry) Stop() {
	if r.cron != nil {
		r.cron.Stop()
	}
}

// Refill restores every reservoir to capacity. Called on the refill
// schedule; exported so tests can drive the clock.
//
// The ceiling is enforced per fixed refill window, not per rolling hour: a
// rolling hour straddling the refill instant can see up to two reservoirs
// of grants, bounded in practice by the per-operation minimum spacing.
// Bounding the rolling hour exactly would take a sliding-window grant log.
func (r *Registry) Refill() {
	r.mu.Lock()
	buckets := make([]*bucket, 0, len(r.accounts)*5)
	for _, ops := range r.accounts {
		for _, b := range ops {
			buckets = append(buckets, b)
		}
	}
	r.mu.Unlock()

	for _, b := range buckets {
		b.refill()
	}
	log.Println("rate limiter reservoirs refilled for", len(buckets), "buckets")
}

// capacityFor applies the safety factor to the configured hourly ceiling.
func (r *Registry) capacityFor(op model.OperationKind) int {
	var hourly int
	switch op {
	case model.OpProfileVisit:
		hourly = r.limits.ProfileVisitsPerHour
	case model.OpInvitation:
		hourly = r.limits.InvitationsPerHour
	case model.OpMessage:
		hourly = r.limits.MessagesPerHour
	case model.OpPostComment:
		hourly = r.limits.PostCommentsPerHour
	case model.OpPostReaction:
		hourly = r.limits.PostReactionsPerHour
	}
	capacity := int(math.Floor(float64(hourly) * r.limits.SafetyFactor))
	if capacity < 1 {
		capacity = 1
	}
	return capacity
}

func (r *Registry) bucketFor(accountID int, op model.OperationKind) *bucket {
	r.mu.Lock()
	defer r.mu.Unlock()

	ops, ok := r.accounts[accountID]
	if !ok {
		ops = make(map[model.OperationKind]*bucket)
		r.accounts[accountID] = ops
	}
	b, ok := ops[op]
	if !ok {
		b = newBucket(r.capacityFor(op), r.limits.MinSpacing(), r.limits.MaxInFlight)
		ops[op] = b
	}
	return b
}

// Acquire blocks until both the account/operation bucket and the global
// bucket admit the call, then returns a release func that must be called
// when the dispatched call completes. It never rejects; backpressure is
// purely delay. The only error is a cancelled context.
func (r *Registry) Acquire(ctx context.Context, accountID int, op model.OperationKind) (func(), error) {
	start := time.Now()
	b := r.bucketFor(accountID, op)

	if err := b.takeToken(ctx); err != nil {
		return nil, err
	}
	if err := b.enter(ctx); err != nil {
		b.putToken()
		return nil, err
	}
	if err := r.global.enter(ctx); err != nil {
		b.leave()
		b.putToken()
		return nil, err
	}

	metrics.RecordTokenGrant(string(op), time.Since(start).Seconds())

	var once sync.Once
	release := func() {
		once.Do(func() {
			r.global.leave()
			b.leave()
		})
	}
	return release, nil
}
