// internal/service/run_coordinator.go
package service

import (
	"log"
	"sync"
	"time"

	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/queue"
	"github.com/unclebandit/outreach-backend/internal/repository"
)

// RunCoordinator decides which worker process hosts a campaign's
// orchestrator. Every run is claimed durably on the campaigns row before it
// starts, so a redelivered run job or another process's resume sweep cannot
// spawn a second orchestrator for a campaign that is already live
// somewhere. Claims carry a heartbeat; a claim whose heartbeat goes stale
// belongs to a crashed process and is taken over.
type RunCoordinator struct {
	CampaignRepo repository.CampaignRepositoryInterface
	Queue        queue.Queue
	RunQueueName string

	// Owner identifies this process; unique per process lifetime.
	Owner      string
	StaleAfter time.Duration

	running sync.Map
}

// Begin claims the campaign for this process. False means the run is
// already live, either here or in another process with a fresh heartbeat.
func (c *RunCoordinator) Begin(campaignID int) (bool, error) {
	if _, loaded := c.running.LoadOrStore(campaignID, struct{}{}); loaded {
		return false, nil
	}
	claimed, err := c.CampaignRepo.ClaimRun(campaignID, c.Owner, c.StaleAfter)
	if err != nil || !claimed {
		c.running.Delete(campaignID)
		return false, err
	}
	return true, nil
}

// End releases the claim taken by Begin.
func (c *RunCoordinator) End(campaignID int) {
	c.running.Delete(campaignID)
	if err := c.CampaignRepo.ReleaseRun(campaignID, c.Owner); err != nil {
		log.Printf("⚠️ failed to release run claim for campaign %d: %v", campaignID, err)
	}
}

// Heartbeat refreshes the claim of every run live in this process. Run on
// a schedule well inside StaleAfter.
func (c *RunCoordinator) Heartbeat() {
	c.running.Range(func(key, _ any) bool {
		campaignID := key.(int)
		if err := c.CampaignRepo.RenewRunClaim(campaignID, c.Owner); err != nil {
			log.Printf("⚠️ failed to renew run claim for campaign %d: %v", campaignID, err)
		}
		return true
	})
}

// Sweep republishes run jobs for active campaigns with no live
// orchestrator anywhere, so a worker crash cannot strand a campaign.
// Campaigns claimed by a heartbeating process are left alone.
func (c *RunCoordinator) Sweep() {
	campaigns, err := c.CampaignRepo.ListByStatus(model.CampaignActive)
	if err != nil {
		log.Println("⚠️ resume sweep failed:", err)
		return
	}
	for _, campaign := range campaigns {
		if _, live := c.running.Load(campaign.ID); live {
			continue
		}
		if campaign.RunClaimedElsewhere(c.Owner, c.StaleAfter, time.Now()) {
			continue
		}
		log.Printf("resume sweep: republishing run for active campaign %d", campaign.ID)
		job := queue.RunJob{CampaignID: campaign.ID, OrganizationID: campaign.OrganizationID, RunID: "resume"}
		if err := c.Queue.Publish(c.RunQueueName, job); err != nil {
			log.Println("⚠️ failed to republish run:", err)
		}
	}
}
