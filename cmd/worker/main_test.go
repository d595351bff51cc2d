package main

import (
	"context"
	"errors"
	"testing"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"

	"github.com/unclebandit/outreach-backend/internal/queue"
)

// fakeAcknowledger records the broker outcome of one delivery.
type fakeAcknowledger struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.acked = true
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	f.nacked = true
	f.requeue = requeue
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	f.nacked = true
	f.requeue = requeue
	return nil
}

func TestSettleAcksSuccessfulRun(t *testing.T) {
	ack := &fakeAcknowledger{}
	d := amqp.Delivery{Acknowledger: ack}

	settle(context.Background(), d, nil, nil, "campaign_runs", queue.RunJob{CampaignID: 1})

	assert.True(t, ack.acked)
	assert.False(t, ack.nacked)
}

func TestSettleReturnsInterruptedRunToBroker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ack := &fakeAcknowledger{}
	d := amqp.Delivery{Acknowledger: ack}

	// A run cut short by shutdown is not failed: the broker must redeliver
	// it promptly instead of waiting on the resume sweep.
	settle(ctx, d, context.Canceled, nil, "campaign_runs", queue.RunJob{CampaignID: 1})

	assert.False(t, ack.acked)
	assert.True(t, ack.nacked)
	assert.True(t, ack.requeue)
}

func TestSettleAcksAfterDeliveryBudgetSpent(t *testing.T) {
	ack := &fakeAcknowledger{}
	d := amqp.Delivery{
		Acknowledger: ack,
		Headers:      amqp.Table{"x-retry-count": int32(maxDeliveryRetries)},
	}

	settle(context.Background(), d, errors.New("run failed"), nil, "campaign_runs", queue.RunJob{CampaignID: 1})

	assert.True(t, ack.acked)
	assert.False(t, ack.nacked)
}

func TestDeliveryRetriesHeaderParsing(t *testing.T) {
	assert.Equal(t, 0, deliveryRetries(amqp.Delivery{}))
	assert.Equal(t, 2, deliveryRetries(amqp.Delivery{Headers: amqp.Table{"x-retry-count": int32(2)}}))
	assert.Equal(t, 3, deliveryRetries(amqp.Delivery{Headers: amqp.Table{"x-retry-count": int64(3)}}))
	assert.Equal(t, 0, deliveryRetries(amqp.Delivery{Headers: amqp.Table{"x-retry-count": "bogus"}}))
}
