package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"finsight/internal/amqp"
	"finsight/internal/config"
	applog "finsight/internal/log"
	"finsight/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.Config{
		Component: applog.ComponentWorker,
	})
	applog.SetDefault(logger)

	logger.Info("Starting insight-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository",
			applog.FieldError, err,
			"path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Append every overlay event to the journal table. Failed appends
	// are returned so the message gets redelivered.
	handle := func(event *amqp.OverlayEvent) error {
		if err := repo.AppendOverlayEvent(ctx, event.SessionID, event.Kind, event.Payload, event.Timestamp); err != nil {
			logger.Error("Failed to journal overlay event",
				applog.FieldError, err,
				applog.FieldSessionID, event.SessionID,
				"kind", event.Kind)
			return err
		}
		logger.Info("Overlay event journaled",
			applog.FieldSessionID, event.SessionID,
			"kind", event.Kind)
		return nil
	}

	go func() {
		if err := amqpClient.ConsumeOverlayEvents(ctx, handle); err != nil {
			if err != context.Canceled {
				logger.Error("Event consumption failed", applog.FieldError, err)
			}
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	logger.Info("Shutting down worker...")
	cancel()

	// Give the consumer time to ack in-flight messages.
	time.Sleep(2 * time.Second)
	logger.Info("Worker shutdown complete")
}
