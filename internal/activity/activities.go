// internal/activity/activities.go
package activity

import (
	"context"
	"errors"
	"fmt"

	"github.com/unclebandit/outreach-backend/internal/automation"
	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/repository"
)

// Gate bounds concurrent activity executions. The worker pool manager
// implements it; a nil gate runs activities inline (tests, seeder).
type Gate interface {
	RunActivity(ctx context.Context, fn func(context.Context) error) error
}

// StepOutcome is the result of one step's activity invocation. Not
// persisted on its own; the executor folds it into execution_data.
type StepOutcome struct {
	Success   bool
	Skip      bool
	Payload   map[string]any
	Err       string
	Retryable bool
}

// Activities are the retryable, side-effecting units invoked by workflow
// code. Every method is idempotent or safely re-enqueueable under
// at-least-once execution.
type Activities struct {
	Campaigns  repository.CampaignRepositoryInterface
	Leads      repository.LeadRepositoryInterface
	Executions repository.ExecutionRepositoryInterface
	Accounts   repository.AccountRepositoryInterface
	Automation automation.Client

	Retrier *Retrier
	Gate    Gate
}

// do wraps one activity with the concurrency gate and the retry policy.
// Each attempt passes through the gate separately, so a retrying activity
// does not hold a worker slot while backing off.
func (a *Activities) do(ctx context.Context, name string, fn func(context.Context) error) error {
	attempt := fn
	if a.Gate != nil {
		attempt = func(ctx context.Context) error {
			return a.Gate.RunActivity(ctx, fn)
		}
	}
	if a.Retrier == nil {
		return attempt(ctx)
	}
	return a.Retrier.Do(ctx, name, attempt)
}

func (a *Activities) GetCampaign(ctx context.Context, id int) (*model.Campaign, error) {
	var c *model.Campaign
	err := a.do(ctx, "get_campaign", func(context.Context) error {
		var err error
		c, err = a.Campaigns.GetByID(id)
		return err
	})
	return c, err
}

func (a *Activities) UpdateCampaignStatus(ctx context.Context, id int, status model.CampaignStatus) error {
	return a.do(ctx, "update_campaign_status", func(context.Context) error {
		return a.Campaigns.UpdateStatus(id, status)
	})
}

func (a *Activities) VerifyAccount(ctx context.Context, accountID int) (*model.ConnectedAccount, error) {
	var acct *model.ConnectedAccount
	err := a.do(ctx, "verify_account", func(context.Context) error {
		var err error
		acct, err = a.Accounts.VerifyAccount(accountID)
		return err
	})
	return acct, err
}

// GetWorkflow resolves the campaign's step sequence. An empty sequence is
// a configuration error, fatal to the run.
func (a *Activities) GetWorkflow(ctx context.Context, campaign *model.Campaign) (model.StepSequence, error) {
	if len(campaign.Steps) == 0 {
		return nil, appErrors.NonRetryablef("campaign %d has no step sequence", campaign.ID)
	}
	return campaign.Steps, nil
}

// IngestLeads copies the campaign's lead list into campaign-scoped rows
// and returns them in batching order. Safe to re-run.
func (a *Activities) IngestLeads(ctx context.Context, listID, orgID, campaignID int) ([]model.Lead, error) {
	var leads []model.Lead
	err := a.do(ctx, "ingest_leads", func(context.Context) error {
		listData, err := a.Leads.GetLeadListData(listID, orgID)
		if err != nil {
			return err
		}
		if len(listData) > 0 {
			if err := a.Leads.EntryLeads(listData, orgID, campaignID); err != nil {
				return err
			}
		}
		leads, err = a.Leads.GetDBLeads(campaignID)
		return err
	})
	return leads, err
}

// CreateExecution creates the per-lead execution record, pending at step
// zero. Upsert-by-identity: a duplicate invocation returns the existing row.
func (a *Activities) CreateExecution(ctx context.Context, campaignID, leadID, totalSteps int) (*model.CampaignExecution, error) {
	exec := &model.CampaignExecution{
		CampaignID:  campaignID,
		LeadID:      leadID,
		Status:      model.ExecutionPending,
		CurrentStep: 0,
		TotalSteps:  totalSteps,
	}
	err := a.do(ctx, "create_execution", func(context.Context) error {
		return a.Executions.Create(exec)
	})
	if err != nil {
		return nil, err
	}
	return exec, nil
}

func (a *Activities) UpdateExecution(ctx context.Context, exec *model.CampaignExecution) error {
	return a.do(ctx, "update_execution", func(context.Context) error {
		return a.Executions.Update(exec)
	})
}

func (a *Activities) ListExecutions(ctx context.Context, campaignID int) ([]*model.CampaignExecution, error) {
	var execs []*model.CampaignExecution
	err := a.do(ctx, "list_executions", func(context.Context) error {
		var err error
		execs, err = a.Executions.ListByCampaign(campaignID)
		return err
	})
	return execs, err
}

// ExecuteStep dispatches one outreach action to the automation API. The
// caller must already hold a rate-limit token for step.Operation().
// Failures come back as an outcome, never as an error: by this point the
// retry policy has already run and the result is final.
func (a *Activities) ExecuteStep(ctx context.Context, accountID int, lead model.Lead, step model.Step, data model.ExecutionData) StepOutcome {
	payload := map[string]any{}

	err := a.do(ctx, "execute_step_"+string(step.Kind), func(ctx context.Context) error {
		switch step.Kind {
		case model.StepVisitProfile:
			profile, err := a.Automation.VisitProfile(ctx, accountID, lead.ProfileURL)
			if err != nil {
				return err
			}
			payload["profile"] = profile
			return nil

		case model.StepSendInvitation:
			invitationID, err := a.Automation.SendInvitation(ctx, accountID, lead.ProfileURL, step.Params["note"])
			if err != nil {
				return err
			}
			payload["invitation_id"] = invitationID
			return nil

		case model.StepCheckInvitation:
			invitationID, _ := data["invitation_id"].(string)
			if invitationID == "" {
				return appErrors.NonRetryablef("no invitation_id recorded for lead %d", lead.ID)
			}
			status, err := a.Automation.CheckInvitationStatus(ctx, accountID, invitationID)
			if err != nil {
				return err
			}
			payload["invitation_status"] = string(status)
			return nil

		case model.StepSendFollowup:
			return a.Automation.SendFollowup(ctx, accountID, lead.ProfileURL, step.Params["message"])

		case model.StepLikePosts:
			count := 1
			if step.Params["count"] != "" {
				fmt.Sscanf(step.Params["count"], "%d", &count)
			}
			return a.Automation.LikePosts(ctx, accountID, lead.ProfileURL, count)

		case model.StepCommentOnPosts:
			return a.Automation.CommentOnPosts(ctx, accountID, lead.ProfileURL, step.Params["comment"])
		}
		return appErrors.NonRetryablef("unknown step kind %q", step.Kind)
	})

	if err != nil {
		if errors.Is(err, automation.ErrAlreadyConnected) {
			// Policy exclusion, not a failure: the lead needs no outreach.
			return StepOutcome{Skip: true, Payload: map[string]any{"skip_reason": "already_connected"}}
		}
		return StepOutcome{Err: err.Error(), Retryable: appErrors.IsRetryable(err)}
	}
	return StepOutcome{Success: true, Payload: payload}
}
