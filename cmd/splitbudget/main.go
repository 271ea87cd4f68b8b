package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"splitbudget/internal/aggregate"
	"splitbudget/internal/amqp"
	"splitbudget/internal/cache"
	"splitbudget/internal/config"
	applog "splitbudget/internal/log"
	"splitbudget/internal/rates"
	"splitbudget/internal/services"
	"splitbudget/internal/storage"

	apphttp "splitbudget/internal/http"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig())
	applog.SetDefault(logger)

	logger.Info("Starting splitbudget", applog.FieldOperation, applog.OpStartup)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository",
			applog.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// The server reads rates from the local store; the rates-worker is
	// the one talking to the sheet. A missing table just means
	// pass-through conversion until the first refresh lands.
	tracker := rates.NewTracker(rates.FetcherFunc(repo.FetchRates), cfg.RatesTTL)
	if table, fetchedAt, err := repo.LoadRates(ctx); err != nil {
		logger.Warn("No persisted rate table, conversions pass through until first refresh",
			applog.FieldError, err)
	} else {
		tracker.Seed(table, fetchedAt)
		logger.Info("Rate table loaded", applog.FieldRateCount, len(table.Rates))
	}

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without change events",
				applog.FieldError, err)
			amqpClient = nil
		} else {
			defer amqpClient.Close()
		}
	} else {
		logger.Info("AMQP disabled, instances will converge on cache TTL instead of events")
	}

	memo := cache.New[aggregate.Summary](cfg.MemoSize, cfg.MemoTTL)
	dashboardService := services.NewDashboardService(repo, tracker, memo, logger.Logger)

	var publisher services.EventPublisher
	if amqpClient != nil {
		publisher = amqpClient
	}
	expenseService := services.NewExpenseService(repo, publisher, logger.Logger)

	if amqpClient != nil {
		go func() {
			err := amqpClient.Consume(ctx, func(event *amqp.ChangeEvent) error {
				return dashboardService.HandleChange(ctx, event)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Change event consumer stopped", applog.FieldError, err)
			}
		}()
	}

	server := apphttp.NewServer(":"+cfg.Port, dashboardService, expenseService, repo)

	go func() {
		logger.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", applog.FieldError, err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down", applog.FieldOperation, applog.OpShutdown)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Shutdown complete")
}
