// internal/orchestrator/orchestrator.go
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/unclebandit/outreach-backend/internal/activity"
	"github.com/unclebandit/outreach-backend/internal/engine"
	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/metrics"
	"github.com/unclebandit/outreach-backend/internal/model"
)

// CampaignActivities is the activity surface the orchestration code calls.
// Satisfied by *activity.Activities.
type CampaignActivities interface {
	GetCampaign(ctx context.Context, id int) (*model.Campaign, error)
	UpdateCampaignStatus(ctx context.Context, id int, status model.CampaignStatus) error
	VerifyAccount(ctx context.Context, accountID int) (*model.ConnectedAccount, error)
	GetWorkflow(ctx context.Context, campaign *model.Campaign) (model.StepSequence, error)
	IngestLeads(ctx context.Context, listID, orgID, campaignID int) ([]model.Lead, error)
	CreateExecution(ctx context.Context, campaignID, leadID, totalSteps int) (*model.CampaignExecution, error)
	UpdateExecution(ctx context.Context, exec *model.CampaignExecution) error
	ListExecutions(ctx context.Context, campaignID int) ([]*model.CampaignExecution, error)
	ExecuteStep(ctx context.Context, accountID int, lead model.Lead, step model.Step, data model.ExecutionData) activity.StepOutcome
}

// TokenSource grants rate-limit tokens. Satisfied by *limiter.Registry.
type TokenSource interface {
	Acquire(ctx context.Context, accountID int, op model.OperationKind) (func(), error)
}

// WorkflowSpawner hosts lead executors under the workflow ceiling.
// Satisfied by *engine.Manager.
type WorkflowSpawner interface {
	GoWorkflow(ctx context.Context, name string, fn func(context.Context) error) error
}

// Orchestrator drives one campaign run: it partitions leads into daily
// batches sized by leads_per_day, staggers lead starts with jitter, spawns
// one lead executor per lead, and advances days until every lead is
// processed.
//
// Pause policy: the campaign status is checked at every batch boundary,
// before every lead spawn, and by executors before every step. An observed
// pause stops further spawning; in-flight executors finish their current
// step and stop at the boundary.
type Orchestrator struct {
	Activities CampaignActivities
	Limiter    TokenSource
	Spawner    WorkflowSpawner
	Clock      engine.Clock

	// Jitter draws a delay from [min, max). Injectable for tests.
	Jitter func(min, max time.Duration) time.Duration

	LeadJitterMin time.Duration
	LeadJitterMax time.Duration
	StepDelayMin  time.Duration
	StepDelayMax  time.Duration
	DayInterval   time.Duration
}

func New(acts CampaignActivities, limiter TokenSource, spawner WorkflowSpawner, clock engine.Clock) *Orchestrator {
	return &Orchestrator{
		Activities:    acts,
		Limiter:       limiter,
		Spawner:       spawner,
		Clock:         clock,
		Jitter:        defaultJitter,
		LeadJitterMin: 10 * time.Minute,
		LeadJitterMax: 30 * time.Minute,
		StepDelayMin:  45 * time.Second,
		StepDelayMax:  120 * time.Second,
		DayInterval:   24 * time.Hour,
	}
}

func defaultJitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

// Run executes one campaign. Safe under at-least-once delivery: execution
// rows gate every lead, so a redelivered run job or a restart resumes
// instead of duplicating work.
func (o *Orchestrator) Run(ctx context.Context, campaignID, organizationID int) error {
	campaign, err := o.Activities.GetCampaign(ctx, campaignID)
	if err != nil {
		// Missing campaign is a configuration error: fail fast, no batches.
		return err
	}
	if campaign.Status != model.CampaignActive {
		log.Printf("campaign %d is %s, nothing to run", campaignID, campaign.Status)
		return nil
	}

	steps, err := o.Activities.GetWorkflow(ctx, campaign)
	if err != nil {
		o.pause(ctx, campaignID, err)
		return err
	}

	// Batching divides by leads_per_day; a non-positive value is a
	// configuration error, handled like a missing step sequence.
	if campaign.LeadsPerDay < 1 {
		err := appErrors.NonRetryablef("campaign %d has invalid leads_per_day %d", campaignID, campaign.LeadsPerDay)
		o.pause(ctx, campaignID, err)
		return err
	}

	if _, err := o.Activities.VerifyAccount(ctx, campaign.SenderAccountID); err != nil {
		if appErrors.IsRetryable(err) {
			return err // infra fault: let the queue redeliver the run
		}
		o.pause(ctx, campaignID, err)
		return err
	}

	leads, err := o.Activities.IngestLeads(ctx, campaign.LeadListID, organizationID, campaignID)
	if err != nil {
		return err
	}
	if len(leads) == 0 {
		log.Printf("campaign %d has no leads, marking completed", campaignID)
		return o.Activities.UpdateCampaignStatus(ctx, campaignID, model.CampaignCompleted)
	}

	// Execution rows for every lead up front, pending at step zero.
	// Create is upsert-by-identity, so a resumed run sees prior progress.
	execs := make(map[int]*model.CampaignExecution, len(leads))
	for _, lead := range leads {
		e, err := o.Activities.CreateExecution(ctx, campaignID, lead.ID, len(steps))
		if err != nil {
			return err
		}
		execs[lead.ID] = e
	}

	executor := &LeadExecutor{
		Activities:   o.Activities,
		Limiter:      o.Limiter,
		Clock:        o.Clock,
		Jitter:       o.Jitter,
		StepDelayMin: o.StepDelayMin,
		StepDelayMax: o.StepDelayMax,
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	// Leads whose execution moved past pending belong to an earlier
	// incarnation of this run: terminal ones are done, the rest resume
	// immediately at their persisted step cursor, outside day batching.
	pending := make([]model.Lead, 0, len(leads))
	for _, lead := range leads {
		e := execs[lead.ID]
		switch {
		case e.Status == model.ExecutionPending:
			pending = append(pending, lead)
		case e.Status.Terminal():
			// already done
		default:
			log.Printf("campaign %d resuming lead %d at step %d", campaignID, lead.ID, e.CurrentStep)
			if err := o.spawn(ctx, &wg, executor, campaign, lead, e); err != nil {
				return err
			}
		}
	}

	day := (len(leads) - len(pending)) / campaign.LeadsPerDay

	for len(pending) > 0 {
		// Day boundary: re-fetch config to honor mid-campaign edits,
		// check for pause, and re-verify the sender account.
		campaign, err = o.Activities.GetCampaign(ctx, campaignID)
		if err != nil {
			return err
		}
		if campaign.Status != model.CampaignActive {
			log.Printf("campaign %d is %s, stopping before day %d batch", campaignID, campaign.Status, day)
			return nil
		}

		if _, err := o.Activities.VerifyAccount(ctx, campaign.SenderAccountID); err != nil {
			// Pause instead of dropping the day's leads: they stay pending
			// and an operator-resumed run picks them up at the same spot.
			o.pause(ctx, campaignID, err)
			return nil
		}

		batch := campaign.LeadsPerDay
		if batch > len(pending) {
			batch = len(pending)
		}
		if batch < 1 {
			batch = 1
		}
		log.Printf("campaign %d day %d: starting batch of %d leads (%d remaining)", campaignID, day, batch, len(pending))

		for i := 0; i < batch; i++ {
			if i > 0 {
				if err := o.Clock.Sleep(ctx, o.Jitter(o.LeadJitterMin, o.LeadJitterMax)); err != nil {
					return err
				}
				c, err := o.Activities.GetCampaign(ctx, campaignID)
				if err == nil && c.Status != model.CampaignActive {
					log.Printf("campaign %d is %s, stopping mid-batch on day %d", campaignID, c.Status, day)
					return nil
				}
			}

			lead := pending[i]
			e := execs[lead.ID]
			e.WorkflowExecutionID = fmt.Sprintf("campaign-%d-day-%d-lead-%d", campaignID, day, lead.ID)
			e.Status = model.ExecutionScheduled
			if err := o.Activities.UpdateExecution(ctx, e); err != nil {
				return err
			}
			if err := o.spawn(ctx, &wg, executor, campaign, lead, e); err != nil {
				return err
			}
		}

		pending = pending[batch:]
		day++

		if len(pending) > 0 {
			if err := o.Clock.Sleep(ctx, o.DayInterval); err != nil {
				return err
			}
		}
	}

	// Await every spawned executor before judging the campaign done.
	wg.Wait()

	final, err := o.Activities.ListExecutions(ctx, campaignID)
	if err != nil {
		return err
	}
	for _, e := range final {
		if !e.Status.Terminal() {
			log.Printf("campaign %d still has non-terminal execution %d, leaving status unchanged", campaignID, e.ID)
			return nil
		}
	}

	campaign, err = o.Activities.GetCampaign(ctx, campaignID)
	if err != nil {
		return err
	}
	if campaign.Status != model.CampaignActive {
		return nil
	}
	log.Printf("campaign %d completed: all %d executions terminal", campaignID, len(final))
	return o.Activities.UpdateCampaignStatus(ctx, campaignID, model.CampaignCompleted)
}

func (o *Orchestrator) spawn(ctx context.Context, wg *sync.WaitGroup, executor *LeadExecutor, campaign *model.Campaign, lead model.Lead, exec *model.CampaignExecution) error {
	metrics.ExecutorsSpawned.WithLabelValues(strconv.Itoa(campaign.ID)).Inc()

	wg.Add(1)
	err := o.Spawner.GoWorkflow(ctx, exec.WorkflowExecutionID, func(ctx context.Context) error {
		defer wg.Done()
		return executor.Run(ctx, campaign, lead, exec)
	})
	if err != nil {
		wg.Done()
	}
	return err
}

func (o *Orchestrator) pause(ctx context.Context, campaignID int, cause error) {
	log.Printf("⚠️ pausing campaign %d: %v", campaignID, cause)
	if err := o.Activities.UpdateCampaignStatus(ctx, campaignID, model.CampaignPaused); err != nil {
		log.Printf("failed to pause campaign %d: %v", campaignID, err)
	}
}
