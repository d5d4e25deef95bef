package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"clubpoint-backend/config"
	"clubpoint-backend/internal/api"
	"clubpoint-backend/internal/audit"
	"clubpoint-backend/internal/auth"
	"clubpoint-backend/internal/db"
	"clubpoint-backend/internal/notification"
	"clubpoint-backend/internal/payment"
	"clubpoint-backend/internal/pricing"
	"clubpoint-backend/internal/report"
	"clubpoint-backend/internal/session"
)

func main() {
	// Setup logger
	logger := log.New(os.Stdout, "clubpoint ", log.LstdFlags)

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	// A zone without a rate must never make it to request time.
	if err := pricing.ValidateZones(); err != nil {
		logger.Fatalf("pricing table invalid: %v", err)
	}

	if cfg.Auth.Secret == "" {
		logger.Fatalf("auth.secret must be configured")
	}

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Business services
	authSvc := auth.NewService(gormDB, cfg.Auth.Secret, time.Duration(cfg.Auth.TokenExpireMinutes)*time.Minute)
	sessionMgr := session.NewManager(gormDB)
	provider := &payment.StubProvider{BaseURL: cfg.Payments.ProviderBaseURL}
	paymentSvc := payment.NewService(gormDB, provider, sessionMgr)
	reportSvc := report.NewService(gormDB)
	auditRec := audit.NewRecorder(gormDB)

	// Web push notifications for freed machines
	var webpushOptions *webpush.Options
	if cfg.Push.Enabled {
		if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
			logger.Fatalf("push is enabled but VAPID keys are not configured")
		}
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}

		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions)
		pool.Start(ctx)
		sessionMgr.SetAvailabilityNotifier(pool.Dispatch)
		logger.Printf("notification pool started with %d workers", cfg.WorkerPool.Size)
	}

	// Background auto-close loop
	if cfg.AutoClose.Enabled {
		closer := session.NewAutoCloser(sessionMgr, cfg.AutoClose.Interval)
		go closer.Run(ctx)
		logger.Printf("auto-close loop started, interval %s", cfg.AutoClose.Interval)
	}

	// Initialize router
	handler := api.NewHandler(gormDB, authSvc, sessionMgr, paymentSvc, reportSvc, auditRec, webpushOptions)
	router := api.NewRouter(handler, cfg)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start the server in a goroutine
	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Block until a signal is received.
	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	// Create a deadline to wait for.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
