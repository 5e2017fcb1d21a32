package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"prahsys_clerk/internal/config"
	"prahsys_clerk/internal/prahsys"
	"prahsys_clerk/internal/services"
	"prahsys_clerk/internal/tasks"
)

// dequeueTimeout bounds each BRPOP so shutdown is noticed promptly.
const dequeueTimeout = 5 * time.Second

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize Database
	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL not set")
	}
	db, err := services.InitDB(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	var queue *services.Queue
	if cfg.Redis.URL != "" {
		queue, err = services.NewQueue(cfg.Redis.URL)
		if err != nil {
			log.Printf("Warning: Redis unavailable, running sweeps only: %v", err)
			queue = nil
		} else {
			defer queue.Close()
		}
	} else {
		log.Println("Warning: REDIS_URL not set, running sweeps only")
	}

	client, err := prahsys.NewClient(cfg.API)
	if err != nil {
		log.Fatalf("Failed to initialize gateway client: %v", err)
	}

	audit := services.NewAuditLogger(db, cfg.Audit.Enabled)
	manager := services.NewSessionManager(db, client, audit, cfg.API.MerchantID)
	processor := services.NewWebhookProcessor(db, queue, audit, cfg.Webhooks.MaxAttempts)

	// Initialize Task Registry
	webhookTasks := tasks.NewWebhookTasks(processor, manager, cfg.Worker.SweepInterval)
	tasks.DefineTasks(webhookTasks)

	log.Println("Worker started")

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Println("Shutting down worker...")
		cancel()
	}()

	if queue != nil {
		go consumeQueue(ctx, queue)
	}

	ticker := time.NewTicker(cfg.Worker.SweepInterval)
	defer ticker.Stop()

	// Run one sweep at startup so a restart picks up backlog right away.
	runSweeps(ctx, queue)

	for {
		select {
		case <-ticker.C:
			runSweeps(ctx, queue)
		case <-ctx.Done():
			return
		}
	}
}

// consumeQueue drains the webhook queue, one event at a time.
func consumeQueue(ctx context.Context, queue *services.Queue) {
	for {
		if ctx.Err() != nil {
			return
		}

		eventID, err := queue.DequeueWebhook(ctx, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Error dequeuing webhook event: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if eventID == "" {
			continue
		}

		runTask(ctx, tasks.TaskProcessWebhook, map[string]interface{}{"event_id": eventID})
	}
}

// runSweeps fires the periodic maintenance tasks. Failures are logged,
// never fatal.
func runSweeps(ctx context.Context, queue *services.Queue) {
	if queue != nil {
		if depth, err := queue.QueueLength(ctx); err == nil {
			log.Printf("Webhook queue depth: %d", depth)
		}
	}

	runTask(ctx, tasks.TaskRetrySweep, nil)
	runTask(ctx, tasks.TaskCleanupExpiredSessions, nil)
	runTask(ctx, tasks.TaskRequeueStalePending, nil)
}

func runTask(ctx context.Context, name string, args map[string]interface{}) {
	handler, found := tasks.GetHandler(name)
	if !found {
		log.Printf("Task handler not found for: %s", name)
		return
	}

	start := time.Now()
	result, err := handler(ctx, args)
	if err != nil {
		log.Printf("Task %s failed after %s: %v", name, time.Since(start).Round(time.Millisecond), err)
		return
	}
	log.Printf("Task %s completed in %s: %v", name, time.Since(start).Round(time.Millisecond), result)
}
