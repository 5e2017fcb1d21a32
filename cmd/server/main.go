package main

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"prahsys_clerk/internal/config"
	"prahsys_clerk/internal/handlers"
	"prahsys_clerk/internal/middleware"
	"prahsys_clerk/internal/prahsys"
	"prahsys_clerk/internal/services"
)

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
	if err := services.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	// Redis queue is optional; without it webhook processing falls back
	// to in-process goroutines.
	var queue *services.Queue
	if cfg.Redis.URL != "" {
		queue, err = services.NewQueue(cfg.Redis.URL)
		if err != nil {
			log.Printf("Warning: Redis unavailable, using in-process webhook dispatch: %v", err)
			queue = nil
		}
	} else {
		log.Println("Warning: REDIS_URL not set, using in-process webhook dispatch")
	}

	client, err := prahsys.NewClient(cfg.API)
	if err != nil {
		log.Fatalf("Failed to initialize gateway client: %v", err)
	}

	audit := services.NewAuditLogger(db, cfg.Audit.Enabled)
	manager := services.NewSessionManager(db, client, audit, cfg.API.MerchantID)
	processor := services.NewWebhookProcessor(db, queue, audit, cfg.Webhooks.MaxAttempts)
	webhooks := services.NewWebhookService(db, queue, processor, cfg.Webhooks.Secret)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.CustomErrorHandler

	e.Use(echomw.Logger())
	e.Use(echomw.Recover())

	// Initialize handlers
	webhookHandler := handlers.NewWebhookHandler(webhooks)
	sessionHandler := handlers.NewSessionHandler(manager)

	// Webhook endpoint: no auth beyond the signature check
	e.POST(cfg.Webhooks.Route, webhookHandler.HandleWebhook)

	// Merchant API
	api := e.Group("/clerk")
	api.Use(middleware.RequireAPIKey(cfg.Server.APIKey))
	api.POST("/sessions", sessionHandler.CreateSession)
	api.GET("/sessions/:session_id", sessionHandler.GetSession)
	api.POST("/sessions/:session_id/process", sessionHandler.ProcessPayment)
	api.POST("/sessions/:session_id/capture", sessionHandler.CapturePayment)
	api.POST("/sessions/:session_id/refund", sessionHandler.RefundPayment)
	api.POST("/sessions/:session_id/void", sessionHandler.VoidPayment)
	api.POST("/sessions/:session_id/verify-portal", sessionHandler.VerifyPortalPayment)
	api.GET("/statistics", sessionHandler.GetStatistics)

	log.Printf("Server starting on port %s", cfg.Server.Port)
	e.Logger.Fatal(e.Start(":" + cfg.Server.Port))
}
