// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/streadway/amqp"

	"github.com/unclebandit/outreach-backend/internal/activity"
	"github.com/unclebandit/outreach-backend/internal/automation"
	"github.com/unclebandit/outreach-backend/internal/config"
	"github.com/unclebandit/outreach-backend/internal/controller"
	"github.com/unclebandit/outreach-backend/internal/db"
	"github.com/unclebandit/outreach-backend/internal/engine"
	"github.com/unclebandit/outreach-backend/internal/limiter"
	"github.com/unclebandit/outreach-backend/internal/orchestrator"
	"github.com/unclebandit/outreach-backend/internal/queue"
	"github.com/unclebandit/outreach-backend/internal/repository"
	"github.com/unclebandit/outreach-backend/internal/service"
)

func main() {
	// Load .env
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ No .env file found, relying on OS environment variables")
	}

	ctx := context.Background()
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
	executionRepo := &repository.ExecutionRepository{DB: database}

	var q queue.Queue
	if cfg.AMQP.URL != "" {
		// Runs execute on cmd/worker; the server only publishes.
		conn, err := amqp.Dial(cfg.AMQP.URL)
		if err != nil {
			log.Fatal("Failed to connect to RabbitMQ:", err)
		}
		defer conn.Close()

		ch, err := conn.Channel()
		if err != nil {
			log.Fatal("Failed to open a channel:", err)
		}
		defer ch.Close()

		q, err = queue.NewAMQPQueue(ch, cfg.AMQP.RunQueue)
		if err != nil {
			log.Fatal("Failed to declare run queue:", err)
		}
	} else {
		// No broker configured: run campaigns in-process (development).
		log.Println("⚠️ No AMQP_URL set, running campaigns in-process")
		memq := queue.NewInMemoryQueue()

		leadRepo := &repository.LeadRepository{DB: database}
		accountRepo := &repository.AccountRepository{DB: database}

		registry := limiter.NewRegistry(cfg.Limits)
		if err := registry.Start(); err != nil {
			log.Fatalf("failed to start rate limiter: %v", err)
		}

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
		queue.StartCampaignRunSubscriber(memq, cfg.AMQP.RunQueue, orch)
		q = memq
	}

	campaignService := &service.CampaignService{
		CampaignRepo:  campaignRepo,
		ExecutionRepo: executionRepo,
		Queue:         q,
		RunQueueName:  cfg.AMQP.RunQueue,
	}

	campaignController := &controller.CampaignController{
		CampaignService: campaignService,
	}

	r := chi.NewRouter()

	// Campaign control surface
	r.Post("/campaigns/{id}/start", campaignController.StartCampaign)
	r.Post("/campaigns/{id}/pause", campaignController.PauseCampaign)
	r.Get("/campaigns/{id}/status", campaignController.GetCampaignStatus)

	r.Handle("/metrics", promhttp.Handler())

	addr := cfg.Server.GetServerAddr()
	log.Println("🚀 Server running on", addr)
	log.Fatal(http.ListenAndServe(addr, r))
}
