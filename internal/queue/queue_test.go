package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryQueueDeliversToSubscriber(t *testing.T) {
	q := NewInMemoryQueue()

	received := make(chan RunJob, 1)
	require.NoError(t, q.Subscribe("campaign_runs", func(payload any) error {
		received <- payload.(RunJob)
		return nil
	}))

	job := RunJob{CampaignID: 1, OrganizationID: 2, RunID: "run-a"}
	require.NoError(t, q.Publish("campaign_runs", job))

	select {
	case got := <-received:
		assert.Equal(t, job, got)
	case <-time.After(time.Second):
		t.Fatal("job was never delivered")
	}
}

func TestInMemoryQueueRejectsTopicsWithoutSubscribers(t *testing.T) {
	q := NewInMemoryQueue()
	assert.Error(t, q.Publish("campaign_runs", RunJob{CampaignID: 1}))
}

func TestInMemoryQueueRetriesFailedJobs(t *testing.T) {
	q := NewInMemoryQueue()

	var mu sync.Mutex
	attempts := 0
	done := make(chan struct{})
	require.NoError(t, q.Subscribe("campaign_runs", func(payload any) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 3 {
			return errors.New("transient broker hiccup")
		}
		close(done)
		return nil
	}))

	require.NoError(t, q.Publish("campaign_runs", RunJob{CampaignID: 1}))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("job was not retried to success")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, attempts)
}

type recordingRunner struct {
	mu   sync.Mutex
	runs []RunJob
	err  error
	done chan struct{}
}

func (r *recordingRunner) Run(ctx context.Context, campaignID, organizationID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, RunJob{CampaignID: campaignID, OrganizationID: organizationID})
	if r.done != nil {
		close(r.done)
		r.done = nil
	}
	return r.err
}

func TestCampaignRunSubscriberInvokesRunner(t *testing.T) {
	q := NewInMemoryQueue()
	runner := &recordingRunner{done: make(chan struct{})}
	done := runner.done
	StartCampaignRunSubscriber(q, "campaign_runs", runner)

	require.NoError(t, q.Publish("campaign_runs", RunJob{CampaignID: 4, OrganizationID: 8, RunID: "run-b"}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runner was never invoked")
	}
	runner.mu.Lock()
	defer runner.mu.Unlock()
	require.Len(t, runner.runs, 1)
	assert.Equal(t, 4, runner.runs[0].CampaignID)
	assert.Equal(t, 8, runner.runs[0].OrganizationID)
}
