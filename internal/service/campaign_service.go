// internal/service/campaign_service.go
package service

import (
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/queue"
	"github.com/unclebandit/outreach-backend/internal/repository"
)

type CampaignService struct {
	CampaignRepo  repository.CampaignRepositoryInterface
	ExecutionRepo repository.ExecutionRepositoryInterface
	Queue         queue.Queue
	RunQueueName  string
}

// Result struct for StartCampaign
type StartCampaignResult struct {
	CampaignID int    `json:"campaign_id"`
	RunID      string `json:"run_id"`
	Status     string `json:"status"`
}

// CampaignStatusReport aggregates per-lead executions for status queries.
type CampaignStatusReport struct {
	CampaignID       int                        `json:"campaign_id"`
	Status           model.CampaignStatus       `json:"status"`
	TotalLeads       int                        `json:"total_leads"`
	ProcessedLeads   int                        `json:"processed_leads"`
	SuccessfulLeads  int                        `json:"successful_leads"`
	FailedLeads      int                        `json:"failed_leads"`
	PerLeadWorkflows []*model.CampaignExecution `json:"per_lead_workflows"`
}

// StartCampaign marks the campaign active and publishes its run job. The
// run handle comes back immediately; the run itself happens on the worker.
func (s *CampaignService) StartCampaign(campaignID int) (*StartCampaignResult, error) {
	campaign, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return nil, err
	}

	switch campaign.Status {
	case model.CampaignDraft, model.CampaignPaused, model.CampaignActive:
		// startable (active = re-publish after a crash)
	default:
		return nil, fmt.Errorf("campaign cannot be started in status: %s", campaign.Status)
	}

	if campaign.LeadsPerDay < 1 {
		return nil, fmt.Errorf("campaign has invalid leads_per_day: %d", campaign.LeadsPerDay)
	}
	if len(campaign.Steps) == 0 {
		return nil, fmt.Errorf("campaign has no step sequence")
	}

	if campaign.Status != model.CampaignActive {
		if err := s.CampaignRepo.UpdateStatus(campaignID, model.CampaignActive); err != nil {
			return nil, err
		}
	}

	runID := uuid.NewString()
	job := queue.RunJob{
		CampaignID:     campaignID,
		OrganizationID: campaign.OrganizationID,
		RunID:          runID,
	}
	if err := s.Queue.Publish(s.RunQueueName, job); err != nil {
		return nil, err
	}

	log.Printf("🚀 campaign %d run %s queued", campaignID, runID)
	return &StartCampaignResult{
		CampaignID: campaignID,
		RunID:      runID,
		Status:     string(model.CampaignActive),
	}, nil
}

// PauseCampaign requests a cooperative stop. The orchestrator observes the
// status at the next batch boundary; executors stop at their next step
// boundary.
func (s *CampaignService) PauseCampaign(campaignID int, reason string) error {
	campaign, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return err
	}
	if campaign.Status != model.CampaignActive {
		return fmt.Errorf("campaign cannot be paused in status: %s", campaign.Status)
	}

	if reason != "" {
		log.Printf("pausing campaign %d: %s", campaignID, reason)
	}
	return s.CampaignRepo.UpdateStatus(campaignID, model.CampaignPaused)
}

// GetCampaignStatus is queryable at any time and reflects the exact
// persisted state of every lead's execution.
func (s *CampaignService) GetCampaignStatus(campaignID int) (*CampaignStatusReport, error) {
	campaign, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return nil, err
	}

	execs, err := s.ExecutionRepo.ListByCampaign(campaignID)
	if err != nil {
		return nil, err
	}

	report := &CampaignStatusReport{
		CampaignID:       campaignID,
		Status:           campaign.Status,
		TotalLeads:       len(execs),
		PerLeadWorkflows: execs,
	}
	for _, e := range execs {
		if e.Status.Terminal() {
			report.ProcessedLeads++
		}
		switch e.Status {
		case model.ExecutionCompleted, model.ExecutionSkipped:
			report.SuccessfulLeads++
		case model.ExecutionFailed:
			report.FailedLeads++
		}
	}
	return report, nil
}
