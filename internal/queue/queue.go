package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/streadway/amqp"
)

// RunJob is the durable trigger for one campaign run.
type RunJob struct {
	CampaignID     int    `json:"campaign_id"`
	OrganizationID int    `json:"organization_id"`
	RunID          string `json:"run_id"`
}

// Queue interface
type Queue interface {
	Publish(topic string, payload any) error
	Subscribe(topic string, handler func(payload any) error) error
}

// InMemoryQueue is an in-process queue with retry, used when no broker is
// configured (development) and in tests.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]func(payload any) error
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		handlers: make(map[string][]func(payload any) error),
	}
}

// JobPayload wraps a message payload with retry info
type JobPayload struct {
	Payload    any
	RetryCount int
	MaxRetries int
}

// Publish sends a message to all subscribers
func (q *InMemoryQueue) Publish(topic string, payload any) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	job := JobPayload{
		Payload:    payload,
		RetryCount: 0,
		MaxRetries: 3,
	}

	for _, handler := range handlers {
		go q.processJob(handler, job)
	}

	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(handler func(payload any) error, job JobPayload) {
	for job.RetryCount <= job.MaxRetries {
		err := handler(job.Payload)
		if err == nil {
			return // ACK
		}

		job.RetryCount++
		log.Printf("Job failed (attempt %d/%d): %+v, error: %v\n", job.RetryCount, job.MaxRetries, job.Payload, err)

		if job.RetryCount > job.MaxRetries {
			log.Printf("Job permanently failed after %d attempts: %+v\n", job.MaxRetries, job.Payload)
			return // No requeue
		}

		// Exponential backoff before retry
		time.Sleep(time.Duration(job.RetryCount*500) * time.Millisecond)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler func(payload any) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// AMQPQueue publishes run jobs to RabbitMQ. Consumption happens in
// cmd/worker over the same durable queue.
type AMQPQueue struct {
	Channel *amqp.Channel
}

func NewAMQPQueue(ch *amqp.Channel, queueName string) (*AMQPQueue, error) {
	_, err := ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, err
	}
	return &AMQPQueue{Channel: ch}, nil
}

func (q *AMQPQueue) Publish(topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return q.Channel.Publish(
		"",    // default exchange
		topic, // routing key = queue name
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// Subscribe is not supported on the publisher side; cmd/worker consumes
// with its own channel and manual acks.
func (q *AMQPQueue) Subscribe(topic string, handler func(payload any) error) error {
	return fmt.Errorf("AMQPQueue does not subscribe; run cmd/worker against queue %s", topic)
}

// RunHandler executes one campaign run end to end.
type RunHandler interface {
	Run(ctx context.Context, campaignID, organizationID int) error
}

// StartCampaignRunSubscriber wires the in-memory queue to the
// orchestrator. Used by cmd/server in development when no broker is
// configured.
func StartCampaignRunSubscriber(q Queue, topic string, runner RunHandler) {
	err := q.Subscribe(topic, func(payload any) error {
		job, ok := payload.(RunJob)
		if !ok {
			log.Println("⚠️ Invalid payload type, expected RunJob")
			return nil
		}

		log.Printf("📩 Starting campaign run %s (campaign %d)\n", job.RunID, job.CampaignID)
		if err := runner.Run(context.Background(), job.CampaignID, job.OrganizationID); err != nil {
			log.Printf("⚠️ Campaign run %s failed: %v\n", job.RunID, err)
			return err
		}
		return nil
	})
	if err != nil {
		log.Println("⚠️ Failed to start subscriber for", topic, ":", err)
	}
}
