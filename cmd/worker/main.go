// cmd/worker/main.go
package main

import (
	"context"
	"encoding/json"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/streadway/amqp"

	"github.com/unclebandit/outreach-backend/internal/activity"
	"github.com/unclebandit/outreach-backend/internal/automation"
	"github.com/unclebandit/outreach-backend/internal/config"
	"github.com/unclebandit/outreach-backend/internal/db"
	"github.com/unclebandit/outreach-backend/internal/engine"
	"github.com/unclebandit/outreach-backend/internal/limiter"
	"github.com/unclebandit/outreach-backend/internal/orchestrator"
	"github.com/unclebandit/outreach-backend/internal/queue"
	"github.com/unclebandit/outreach-backend/internal/repository"
	"github.com/unclebandit/outreach-backend/internal/service"
)

const (
	maxDeliveryRetries = 3

	// A run claim whose heartbeat is older than this belongs to a dead
	// process; heartbeats renew every 5 minutes.
	runClaimStaleAfter = 15 * time.Minute
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ No .env file found, relying on OS environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	database, err := db.Open(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to DB: %v", err)
	}
	defer database.Close()

	campaignRepo := &repository.CampaignRepository{DB: database}
	leadRepo := &repository.LeadRepository{DB: database}
	executionRepo := &repository.ExecutionRepository{DB: database}
	accountRepo := &repository.AccountRepository{DB: database}

	registry := limiter.NewRegistry(cfg.Limits)
	if err := registry.Start(); err != nil {
		log.Fatalf("failed to start rate limiter: %v", err)
	}
	defer registry.Stop()

	manager := engine.NewManager(cfg.Worker)

	activities := &activity.Activities{
		Campaigns:  campaignRepo,
		Leads:      leadRepo,
		Executions: executionRepo,
		Accounts:   accountRepo,
		Automation: automation.NewHTTPClient(cfg.Automation),
		Retrier:    activity.NewRetrier(),
		Gate:       manager,
	}
	orch := orchestrator.New(activities, registry, manager, engine.NewClock())

	// One connection shared by all worker instances in this process; each
	// instance gets its own channel.
	conn, err := amqp.Dial(cfg.AMQP.URL)
	if err != nil {
		log.Fatal("Failed to connect to RabbitMQ:", err)
	}
	defer conn.Close()

	pubCh, err := conn.Channel()
	if err != nil {
		log.Fatal("Failed to open publish channel:", err)
	}
	publisher, err := queue.NewAMQPQueue(pubCh, cfg.AMQP.RunQueue)
	if err != nil {
		log.Fatal("Failed to declare run queue:", err)
	}

	// Durable per-campaign run claims: at most one orchestrator per
	// campaign across every worker process, not just this one.
	coordinator := &service.RunCoordinator{
		CampaignRepo: campaignRepo,
		Queue:        publisher,
		RunQueueName: cfg.AMQP.RunQueue,
		Owner:        uuid.NewString(),
		StaleAfter:   runClaimStaleAfter,
	}

	var wg sync.WaitGroup
	for i := 0; i < cfg.Worker.Instances; i++ {
		ch, err := conn.Channel()
		if err != nil {
			log.Fatal("Failed to open a channel:", err)
		}
		if _, err := ch.QueueDeclare(cfg.AMQP.RunQueue, true, false, false, false, nil); err != nil {
			log.Fatal("Failed to declare queue:", err)
		}
		if err := ch.Qos(1, 0, false); err != nil {
			log.Fatal("Failed to set QoS:", err)
		}

		msgs, err := ch.Consume(cfg.AMQP.RunQueue, "", false, false, false, false, nil)
		if err != nil {
			log.Fatal("Failed to register consumer:", err)
		}

		wg.Add(1)
		go func(instance int, msgs <-chan amqp.Delivery) {
			defer wg.Done()
			consume(ctx, instance, msgs, publisher, cfg.AMQP.RunQueue, orch, manager, coordinator)
		}(i, msgs)
	}

	// Resume sweep: republish run jobs for active campaigns with no live
	// orchestrator in any process, so a worker crash cannot strand a
	// campaign. Heartbeats keep this process's claims fresh in between.
	sweeper := cron.New()
	sweeper.AddFunc("*/15 * * * *", coordinator.Sweep)
	sweeper.AddFunc("*/5 * * * *", coordinator.Heartbeat)
	sweeper.Start()
	defer sweeper.Stop()

	log.Printf("🚀 Worker running with %d instances, waiting for campaign runs...", cfg.Worker.Instances)
	<-ctx.Done()

	log.Println("shutting down, draining in-flight work...")
	wg.Wait()
	if err := manager.Drain(); err != nil {
		log.Println("⚠️", err)
	}
}

func consume(ctx context.Context, instance int, msgs <-chan amqp.Delivery, publisher *queue.AMQPQueue, topic string, orch *orchestrator.Orchestrator, manager *engine.Manager, coordinator *service.RunCoordinator) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-msgs:
			if !ok {
				return
			}

			var job queue.RunJob
			if err := json.Unmarshal(d.Body, &job); err != nil {
				log.Println("Invalid job:", err)
				d.Ack(false)
				continue
			}

			claimed, err := coordinator.Begin(job.CampaignID)
			if err != nil {
				log.Println("Failed to claim campaign run:", err)
				d.Nack(false, true)
				continue
			}
			if !claimed {
				log.Printf("campaign %d already running, acking duplicate delivery", job.CampaignID)
				d.Ack(false)
				continue
			}

			log.Printf("instance %d: running campaign %d (run %s)", instance, job.CampaignID, job.RunID)
			err = manager.RunWorkflow(ctx, job.RunID, func(ctx context.Context) error {
				return orch.Run(ctx, job.CampaignID, job.OrganizationID)
			})
			coordinator.End(job.CampaignID)

			settle(ctx, d, err, publisher, topic, job)
		}
	}
}

// settle decides the delivery outcome of a finished run: a run interrupted
// by shutdown goes straight back to the broker, a failed run is requeued
// with its retry count until the delivery budget is spent, everything else
// is acked.
func settle(ctx context.Context, d amqp.Delivery, runErr error, publisher *queue.AMQPQueue, topic string, job queue.RunJob) {
	if runErr != nil {
		if ctx.Err() != nil {
			log.Printf("shutdown interrupted campaign %d run, returning delivery to the broker", job.CampaignID)
			d.Nack(false, true)
			return
		}
		log.Println("Campaign run failed:", runErr)
		retryCount := deliveryRetries(d)
		if retryCount < maxDeliveryRetries {
			requeue(publisher, topic, job, d, retryCount+1)
			return
		}
		log.Printf("Campaign run permanently failed after %d deliveries: %+v", maxDeliveryRetries, job)
	}
	d.Ack(false)
}

func deliveryRetries(d amqp.Delivery) int {
	switch v := d.Headers["x-retry-count"].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// requeue republishes with an incremented retry header and acks the
// original, so the retry count survives redelivery.
func requeue(publisher *queue.AMQPQueue, topic string, job queue.RunJob, d amqp.Delivery, retryCount int) {
	body, err := json.Marshal(job)
	if err != nil {
		d.Ack(false)
		return
	}
	err = publisher.Channel.Publish("", topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      amqp.Table{"x-retry-count": int32(retryCount)},
		Body:         body,
	})
	if err != nil {
		log.Println("Failed to requeue job, nacking:", err)
		d.Nack(false, true)
		return
	}
	d.Ack(false)
}
