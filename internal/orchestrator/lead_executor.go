// internal/orchestrator/lead_executor.go
package orchestrator

import (
	"context"
	"log"
	"time"

	"github.com/unclebandit/outreach-backend/internal/engine"
	"github.com/unclebandit/outreach-backend/internal/metrics"
	"github.com/unclebandit/outreach-backend/internal/model"
)

// LeadExecutor runs one lead's ordered step sequence. Steps execute
// strictly in order; a step that fails permanently stops the sequence (no
// skip-and-continue). Every step attempt persists the execution row, so a
// restart re-enters at the saved cursor.
type LeadExecutor struct {
	Activities CampaignActivities
	Limiter    TokenSource
	Clock      engine.Clock
	Jitter     func(min, max time.Duration) time.Duration

	StepDelayMin time.Duration
	StepDelayMax time.Duration
}

func (e *LeadExecutor) Run(ctx context.Context, campaign *model.Campaign, lead model.Lead, exec *model.CampaignExecution) error {
	steps := campaign.Steps

	if exec.Status != model.ExecutionInProgress {
		exec.Status = model.ExecutionInProgress
		if exec.StartedAt == nil {
			now := e.Clock.Now()
			exec.StartedAt = &now
		}
		if err := e.Activities.UpdateExecution(ctx, exec); err != nil {
			return err
		}
	}

	for idx := exec.CurrentStep; idx < len(steps); idx++ {
		// Cooperative pause: stop at the step boundary and leave the
		// execution in_progress for a later resume.
		if c, err := e.Activities.GetCampaign(ctx, campaign.ID); err == nil && c.Status != model.CampaignActive {
			log.Printf("lead %d: campaign %d is %s, stopping at step %d", lead.ID, campaign.ID, c.Status, idx)
			return nil
		}

		step := steps[idx]

		// Suspend until both the account/operation bucket and the global
		// bucket admit the call. Never rejects; only a cancelled context
		// gets us out early.
		release, err := e.Limiter.Acquire(ctx, campaign.SenderAccountID, step.Operation())
		if err != nil {
			return err
		}
		outcome := e.Activities.ExecuteStep(ctx, campaign.SenderAccountID, lead, step, exec.ExecutionData)
		release()

		exec.ExecutionData = exec.ExecutionData.Merge(outcome.Payload)

		switch {
		case outcome.Skip:
			metrics.RecordStep(string(step.Kind), "skipped")
			log.Printf("lead %d skipped at step %d (%s)", lead.ID, idx, step.Kind)
			return e.finish(ctx, exec, model.ExecutionSkipped, "")
		case !outcome.Success:
			metrics.RecordStep(string(step.Kind), "failed")
			log.Printf("lead %d failed at step %d (%s): %s", lead.ID, idx, step.Kind, outcome.Err)
			return e.finish(ctx, exec, model.ExecutionFailed, outcome.Err)
		}

		metrics.RecordStep(string(step.Kind), "success")
		exec.CurrentStep = idx + 1
		if err := e.Activities.UpdateExecution(ctx, exec); err != nil {
			return err
		}

		// Human-like cadence between steps, distinct from the inter-lead
		// jitter the orchestrator applies.
		if idx < len(steps)-1 {
			if err := e.Clock.Sleep(ctx, e.Jitter(e.StepDelayMin, e.StepDelayMax)); err != nil {
				return err
			}
		}
	}

	return e.finish(ctx, exec, model.ExecutionCompleted, "")
}

func (e *LeadExecutor) finish(ctx context.Context, exec *model.CampaignExecution, status model.ExecutionStatus, lastError string) error {
	exec.Status = status
	exec.LastError = lastError
	now := e.Clock.Now()
	exec.CompletedAt = &now
	return e.Activities.UpdateExecution(ctx, exec)
}
