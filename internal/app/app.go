package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"schedule-sync-go/internal/config"
	"schedule-sync-go/internal/database"
	"schedule-sync-go/internal/dedup"
	"schedule-sync-go/internal/extractor"
	"schedule-sync-go/internal/handlers"
	"schedule-sync-go/internal/mailbox"
	"schedule-sync-go/internal/metrics"
	"schedule-sync-go/internal/pipeline"
	"schedule-sync-go/internal/reconcile"
	"schedule-sync-go/internal/repository"
	"schedule-sync-go/internal/scheduler"
	"schedule-sync-go/internal/server"
)

// Run initializes and starts the application
func Run() error {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	logrus.Info("Starting Schedule Sync Service")

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	db, err := database.Init(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	repo := repository.New(db)
	m := metrics.NewMetrics()

	source := mailbox.NewSource(&cfg.Mailbox)
	if cfg.Mailbox.UseIMAP {
		logrus.Info("Using IMAP for mailbox access")
	} else {
		logrus.Info("Using Gmail API for mailbox access")
	}

	gemini, err := extractor.NewGeminiExtractor(context.Background(), &cfg.Extractor)
	if err != nil {
		return fmt.Errorf("failed to create extractor: %w", err)
	}
	limited := extractor.NewLimited(gemini, &cfg.Extractor)

	cache := dedup.New(cfg.Pipeline.DedupRetention, cfg.Pipeline.DedupMaxPerUser)
	allocator := reconcile.NewAllocator(cfg.Pipeline.SlotCapacity)
	engine := reconcile.NewEngine(repo, allocator)

	pipe := pipeline.New(&cfg.Pipeline, source, limited, engine, cache, repo, m, cfg.Mailbox.FetchTimeout)
	if err := pipe.WarmCache(context.Background()); err != nil {
		logrus.Warnf("Failed to warm dedup cache: %v", err)
	}

	sched := scheduler.NewScheduler(&cfg.Scheduler, pipe)

	h := handlers.NewHandlers(repo, sched)
	router := server.SetupRouter(h)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	go func() {
		logrus.Infof("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := sched.Stop(); err != nil {
		logrus.Errorf("Failed to stop scheduler: %v", err)
	}
	sched.Wait()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("HTTP server shutdown error: %v", err)
	}

	if err := limited.Close(); err != nil {
		logrus.Errorf("Failed to close extractor: %v", err)
	}

	logrus.Info("Server stopped gracefully")
	return nil
}
