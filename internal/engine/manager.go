// internal/engine/manager.go
package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/unclebandit/outreach-backend/internal/config"
)

// Manager hosts workflow and activity executions under independently
// tunable ceilings: max concurrent workflow tasks, max concurrent activity
// tasks, and max activities per second. One Manager per task queue.
//
// Constructed once at process start, drained on shutdown.
type Manager struct {
	workflowSem chan struct{}
	activitySem chan struct{}
	activityRPS *rate.Limiter
	grace       time.Duration

	wg sync.WaitGroup
}

func NewManager(cfg config.WorkerConfig) *Manager {
	return &Manager{
		workflowSem: make(chan struct{}, cfg.MaxConcurrentWorkflows),
		activitySem: make(chan struct{}, cfg.MaxConcurrentActivities),
		activityRPS: rate.NewLimiter(rate.Limit(cfg.MaxActivitiesPerSecond), cfg.MaxActivitiesPerSecond),
		grace:       cfg.ShutdownGrace(),
	}
}

// GoWorkflow runs fn on its own goroutine under the workflow ceiling. It
// blocks until a workflow slot is free, so spawning respects the ceiling
// rather than queueing unbounded goroutines.
func (m *Manager) GoWorkflow(ctx context.Context, name string, fn func(context.Context) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case m.workflowSem <- struct{}{}:
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() { <-m.workflowSem }()
		if err := fn(ctx); err != nil {
			log.Printf("workflow %s returned error: %v", name, err)
		}
	}()
	return nil
}

// RunWorkflow runs fn on the calling goroutine under the workflow ceiling.
func (m *Manager) RunWorkflow(ctx context.Context, name string, fn func(context.Context) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case m.workflowSem <- struct{}{}:
	}
	m.wg.Add(1)
	defer m.wg.Done()
	defer func() { <-m.workflowSem }()
	return fn(ctx)
}

// RunActivity runs one activity attempt under the activity ceiling and the
// activities-per-second limit. Implements activity.Gate.
func (m *Manager) RunActivity(ctx context.Context, fn func(context.Context) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case m.activitySem <- struct{}{}:
	}
	defer func() { <-m.activitySem }()

	if err := m.activityRPS.Wait(ctx); err != nil {
		return err
	}
	return fn(ctx)
}

// Drain waits for in-flight workflows and activities up to the grace
// period, then gives up. Callers should cancel the shared context first so
// workflows stop at their next checkpoint.
func (m *Manager) Drain() error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("worker manager drained cleanly")
		return nil
	case <-time.After(m.grace):
		return fmt.Errorf("worker manager force-stopped after %s grace period", m.grace)
	}
}
