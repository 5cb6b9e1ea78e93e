package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"patrimonio/internal/amqp"
	"patrimonio/internal/config"
	"patrimonio/internal/sheets"
	gsheet "patrimonio/internal/sheets/google"
	mem "patrimonio/internal/sheets/memory"
	"patrimonio/internal/storage"
	"patrimonio/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting patrimonio-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	// Exporter selection: Google Sheets when configured, in-memory otherwise
	// so the worker still drains the queue and purges tokens.
	var exporter sheets.RollupExporter
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.NewFromEnv(context.Background())
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		exporter = client
		logger.Info("Google Sheets exporter initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		exporter = mem.New()
		logger.Info("Google Sheets disabled - using in-memory exporter")
	}

	exportWorker := worker.NewExportWorker(repo, exporter, cfg.ExportConcurrency)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Refresh every rollup once at startup to recover from missed messages.
	logger.Info("Performing startup export...")
	if err := exportWorker.ExportAll(ctx); err != nil {
		logger.Error("Startup export failed", "error", err)
		// Don't exit - continue with normal operation
	}

	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()

		// Long-lived consume loop: a dropped broker connection triggers a
		// backed-off redial instead of killing the worker.
		go func() {
			for {
				err := amqpClient.ConsumeBudgetSaved(ctx, exportWorker.HandleBudgetSaved)
				if ctx.Err() != nil {
					return
				}
				logger.Error("Message consumption failed", "error", err)

				if err := amqpClient.Reconnect(ctx, cfg.AMQPURL); err != nil {
					if ctx.Err() == nil {
						logger.Error("AMQP reconnect failed", "error", err)
					}
					cancel()
					return
				}
				logger.Info("Resuming message consumption after reconnect")
			}
		}()
	} else {
		logger.Info("AMQP disabled - relying on periodic export only")
	}

	exportTicker := time.NewTicker(cfg.ExportInterval)
	defer exportTicker.Stop()

	purgeTicker := time.NewTicker(cfg.TokenPurgeInterval)
	defer purgeTicker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-exportTicker.C:
				if err := exportWorker.ExportAll(ctx); err != nil {
					logger.Error("Periodic export failed", "error", err)
				}
			case <-purgeTicker.C:
				if err := exportWorker.PurgeExpiredTokens(ctx); err != nil {
					logger.Error("Token purge failed", "error", err)
				}
			}
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

	// Give in-flight handlers a moment to finish.
	time.Sleep(2 * time.Second)
	logger.Info("Worker shutdown complete")
}
