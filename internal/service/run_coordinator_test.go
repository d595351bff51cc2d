package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/queue"
)

func newTestCoordinator(repo *mockCampaignRepo, owner string) (*RunCoordinator, *mockQueue) {
	q := &mockQueue{}
	return &RunCoordinator{
		CampaignRepo: repo,
		Queue:        q,
		RunQueueName: "campaign_runs",
		Owner:        owner,
		StaleAfter:   15 * time.Minute,
	}, q
}

func activeCampaignRepo(now time.Time) *mockCampaignRepo {
	return &mockCampaignRepo{
		campaigns: map[int]*model.Campaign{
			1: {ID: 1, OrganizationID: 9, Status: model.CampaignActive, LeadsPerDay: 10},
		},
		now: now,
	}
}

func TestBeginClaimsRunDurably(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	repo := activeCampaignRepo(now)
	coord, _ := newTestCoordinator(repo, "worker-a")

	ok, err := coord.Begin(1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "worker-a", repo.campaigns[1].RunOwner)
	require.NotNil(t, repo.campaigns[1].RunHeartbeatAt)

	// A redelivered job in the same process is a duplicate.
	ok, err = coord.Begin(1)
	require.NoError(t, err)
	assert.False(t, ok)

	coord.End(1)
	assert.Empty(t, repo.campaigns[1].RunOwner)
}

func TestBeginRejectsRunLiveInAnotherProcess(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	repo := activeCampaignRepo(now)
	coordA, _ := newTestCoordinator(repo, "worker-a")
	coordB, _ := newTestCoordinator(repo, "worker-b")

	ok, err := coordA.Begin(1)
	require.NoError(t, err)
	require.True(t, ok)

	// Process B sees A's fresh claim and backs off.
	ok, err = coordB.Begin(1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "worker-a", repo.campaigns[1].RunOwner)
}

func TestBeginTakesOverStaleClaim(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	repo := activeCampaignRepo(now)

	// A claim from a process that stopped heartbeating 20 minutes ago.
	dead := now.Add(-20 * time.Minute)
	repo.campaigns[1].RunOwner = "worker-dead"
	repo.campaigns[1].RunHeartbeatAt = &dead

	coord, _ := newTestCoordinator(repo, "worker-b")
	ok, err := coord.Begin(1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "worker-b", repo.campaigns[1].RunOwner)
}

func TestHeartbeatKeepsClaimFresh(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	repo := activeCampaignRepo(now)
	coord, _ := newTestCoordinator(repo, "worker-a")

	ok, err := coord.Begin(1)
	require.NoError(t, err)
	require.True(t, ok)

	repo.now = now.Add(10 * time.Minute)
	coord.Heartbeat()
	require.NotNil(t, repo.campaigns[1].RunHeartbeatAt)
	assert.Equal(t, repo.now, *repo.campaigns[1].RunHeartbeatAt)

	// With the heartbeat renewed, another process still cannot claim even
	// past the original claim's stale horizon.
	repo.now = now.Add(20 * time.Minute)
	other, _ := newTestCoordinator(repo, "worker-b")
	ok, err = other.Begin(1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSweepSkipsRunsLiveElsewhere(t *testing.T) {
	// Sweep judges claim freshness against the wall clock.
	now := time.Now()
	repo := activeCampaignRepo(now)

	// Campaign 1 is claimed by another process with a fresh heartbeat.
	fresh := now.Add(-time.Minute)
	repo.campaigns[1].RunOwner = "worker-a"
	repo.campaigns[1].RunHeartbeatAt = &fresh

	coord, q := newTestCoordinator(repo, "worker-b")
	coord.Sweep()
	assert.Empty(t, q.published, "a heartbeating run must not be republished")

	// Once the claim goes stale the sweep resumes the campaign.
	stale := now.Add(-16 * time.Minute)
	repo.campaigns[1].RunHeartbeatAt = &stale
	coord.Sweep()
	require.Len(t, q.published, 1)
	job := q.published[0].Payload.(queue.RunJob)
	assert.Equal(t, 1, job.CampaignID)
	assert.Equal(t, 9, job.OrganizationID)
}

func TestSweepSkipsRunsLiveLocally(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	repo := activeCampaignRepo(now)
	coord, q := newTestCoordinator(repo, "worker-a")

	ok, err := coord.Begin(1)
	require.NoError(t, err)
	require.True(t, ok)

	coord.Sweep()
	assert.Empty(t, q.published)
}
