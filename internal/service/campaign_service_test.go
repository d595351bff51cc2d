package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/queue"
)

type mockCampaignRepo struct {
	campaigns map[int]*model.Campaign
	updates   []model.CampaignStatus
	now       time.Time
}

func (m *mockCampaignRepo) GetByID(id int) (*model.Campaign, error) {
	c, ok := m.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	return c, nil
}

func (m *mockCampaignRepo) UpdateStatus(id int, status model.CampaignStatus) error {
	c, ok := m.campaigns[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	c.Status = status
	m.updates = append(m.updates, status)
	return nil
}

func (m *mockCampaignRepo) ListByStatus(status model.CampaignStatus) ([]*model.Campaign, error) {
	var out []*model.Campaign
	for _, c := range m.campaigns {
		if c.Status == status {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockCampaignRepo) clock() time.Time {
	if m.now.IsZero() {
		return time.Now()
	}
	return m.now
}

func (m *mockCampaignRepo) ClaimRun(id int, owner string, staleAfter time.Duration) (bool, error) {
	c, ok := m.campaigns[id]
	if !ok {
		return false, nil
	}
	now := m.clock()
	free := c.RunOwner == "" || c.RunOwner == owner ||
		c.RunHeartbeatAt == nil || now.Sub(*c.RunHeartbeatAt) >= staleAfter
	if !free {
		return false, nil
	}
	c.RunOwner = owner
	hb := now
	c.RunHeartbeatAt = &hb
	return true, nil
}

func (m *mockCampaignRepo) RenewRunClaim(id int, owner string) error {
	if c, ok := m.campaigns[id]; ok && c.RunOwner == owner {
		hb := m.clock()
		c.RunHeartbeatAt = &hb
	}
	return nil
}

func (m *mockCampaignRepo) ReleaseRun(id int, owner string) error {
	if c, ok := m.campaigns[id]; ok && c.RunOwner == owner {
		c.RunOwner = ""
		c.RunHeartbeatAt = nil
	}
	return nil
}

type mockExecutionRepo struct {
	execs []*model.CampaignExecution
}

func (m *mockExecutionRepo) Create(exec *model.CampaignExecution) error { return nil }
func (m *mockExecutionRepo) Update(exec *model.CampaignExecution) error { return nil }
func (m *mockExecutionRepo) GetByID(id int) (*model.CampaignExecution, error) {
	return nil, appErrors.NewExecutionNotFound(id)
}
func (m *mockExecutionRepo) GetByCampaignAndLead(campaignID, leadID int) (*model.CampaignExecution, error) {
	return nil, nil
}
func (m *mockExecutionRepo) ListByCampaign(campaignID int) ([]*model.CampaignExecution, error) {
	return m.execs, nil
}

type mockQueue struct {
	published []struct {
		Topic   string
		Payload any
	}
}

func (m *mockQueue) Publish(topic string, payload any) error {
	m.published = append(m.published, struct {
		Topic   string
		Payload any
	}{topic, payload})
	return nil
}

func (m *mockQueue) Subscribe(topic string, handler func(payload any) error) error { return nil }

func newTestService(campaign *model.Campaign, execs []*model.CampaignExecution) (*CampaignService, *mockCampaignRepo, *mockQueue) {
	repo := &mockCampaignRepo{campaigns: map[int]*model.Campaign{}}
	if campaign != nil {
		repo.campaigns[campaign.ID] = campaign
	}
	q := &mockQueue{}
	svc := &CampaignService{
		CampaignRepo:  repo,
		ExecutionRepo: &mockExecutionRepo{execs: execs},
		Queue:         q,
		RunQueueName:  "campaign_runs",
	}
	return svc, repo, q
}

func startableCampaign(status model.CampaignStatus) *model.Campaign {
	return &model.Campaign{
		ID:             1,
		OrganizationID: 9,
		Status:         status,
		LeadsPerDay:    10,
		Steps:          model.StepSequence{{Kind: model.StepVisitProfile}},
	}
}

func TestStartCampaignActivatesAndPublishesRun(t *testing.T) {
	campaign := startableCampaign(model.CampaignDraft)
	svc, repo, q := newTestService(campaign, nil)

	result, err := svc.StartCampaign(1)
	require.NoError(t, err)

	assert.Equal(t, 1, result.CampaignID)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, []model.CampaignStatus{model.CampaignActive}, repo.updates)

	require.Len(t, q.published, 1)
	assert.Equal(t, "campaign_runs", q.published[0].Topic)
	job, ok := q.published[0].Payload.(queue.RunJob)
	require.True(t, ok)
	assert.Equal(t, 1, job.CampaignID)
	assert.Equal(t, 9, job.OrganizationID)
	assert.Equal(t, result.RunID, job.RunID)
}

func TestStartCampaignResumesPausedCampaign(t *testing.T) {
	campaign := startableCampaign(model.CampaignPaused)
	svc, repo, q := newTestService(campaign, nil)

	_, err := svc.StartCampaign(1)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignActive, campaign.Status)
	assert.Len(t, repo.updates, 1)
	assert.Len(t, q.published, 1)
}

func TestStartCampaignRepublishesActiveCampaign(t *testing.T) {
	// An active campaign whose run died with the worker gets a fresh run
	// job without a redundant status write.
	campaign := startableCampaign(model.CampaignActive)
	svc, repo, q := newTestService(campaign, nil)

	_, err := svc.StartCampaign(1)
	require.NoError(t, err)
	assert.Empty(t, repo.updates)
	assert.Len(t, q.published, 1)
}

func TestStartCampaignRejectsInvalidPacing(t *testing.T) {
	campaign := startableCampaign(model.CampaignDraft)
	campaign.LeadsPerDay = 0
	svc, repo, q := newTestService(campaign, nil)

	_, err := svc.StartCampaign(1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leads_per_day")
	assert.Empty(t, repo.updates, "invalid campaign must not be activated")
	assert.Empty(t, q.published)

	campaign = startableCampaign(model.CampaignDraft)
	campaign.Steps = nil
	svc, _, q = newTestService(campaign, nil)

	_, err = svc.StartCampaign(1)
	require.Error(t, err)
	assert.Empty(t, q.published)
}

func TestStartCampaignRejectsTerminalStatuses(t *testing.T) {
	for _, status := range []model.CampaignStatus{model.CampaignCompleted, model.CampaignFailed} {
		campaign := &model.Campaign{ID: 1, Status: status}
		svc, _, q := newTestService(campaign, nil)

		_, err := svc.StartCampaign(1)
		require.Error(t, err, "status %s", status)
		assert.Empty(t, q.published)
	}
}

func TestStartCampaignUnknownID(t *testing.T) {
	svc, _, _ := newTestService(nil, nil)

	_, err := svc.StartCampaign(42)
	require.Error(t, err)
	var notFound *appErrors.ErrCampaignNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestPauseCampaignOnlyFromActive(t *testing.T) {
	campaign := &model.Campaign{ID: 1, Status: model.CampaignActive}
	svc, _, _ := newTestService(campaign, nil)

	require.NoError(t, svc.PauseCampaign(1, "manual"))
	assert.Equal(t, model.CampaignPaused, campaign.Status)

	// Already paused, a second pause is rejected.
	require.Error(t, svc.PauseCampaign(1, ""))
}

func TestGetCampaignStatusAggregatesExecutions(t *testing.T) {
	campaign := &model.Campaign{ID: 1, Status: model.CampaignActive}
	execs := []*model.CampaignExecution{
		{ID: 1, LeadID: 1, Status: model.ExecutionCompleted},
		{ID: 2, LeadID: 2, Status: model.ExecutionSkipped},
		{ID: 3, LeadID: 3, Status: model.ExecutionFailed},
		{ID: 4, LeadID: 4, Status: model.ExecutionInProgress},
		{ID: 5, LeadID: 5, Status: model.ExecutionPending},
	}
	svc, _, _ := newTestService(campaign, execs)

	report, err := svc.GetCampaignStatus(1)
	require.NoError(t, err)

	assert.Equal(t, model.CampaignActive, report.Status)
	assert.Equal(t, 5, report.TotalLeads)
	assert.Equal(t, 3, report.ProcessedLeads, "terminal executions only")
	assert.Equal(t, 2, report.SuccessfulLeads, "completed and skipped both count")
	assert.Equal(t, 1, report.FailedLeads)
	assert.Len(t, report.PerLeadWorkflows, 5)
}
