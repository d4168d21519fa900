package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"donations/internal/app"
	"donations/internal/config"
	"donations/internal/gateway"
	"donations/internal/handler"
	"donations/internal/kafka"
	"donations/internal/logging"
	"donations/internal/metrics"
	internalRedis "donations/internal/redis"
	"donations/internal/repository"
	"donations/internal/repository/postgres"
	"donations/internal/service"
)

func main() {
	cfg := config.Load()

	logger, stopLogger := logging.New(cfg.Logs)
	defer stopLogger()
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	metrics.Setup(cfg.Metrics, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Initialize New Relic first so the database and Redis can be instrumented.
	var nrApp *newrelic.Application
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		var err error
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			logger.Error("failed to initialize New Relic", "error", err)
		} else {
			logger.Info("New Relic enabled", "app", cfg.NewRelic.AppName)
		}
	}

	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to PostgreSQL")

	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	logger.Info("connected to Redis")

	ledger, err := app.NewDonationLedger(ctx, cfg.Ledger, db)
	if err != nil {
		logger.Error("failed to initialize donation ledger", "error", err)
		os.Exit(1)
	}
	logger.Info("donation ledger ready", "backend", cfg.Ledger.Backend)

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, closeQueue := wireServer(runCtx, db, redisClient, ledger, nrApp, cfg, logger)
	defer closeQueue()

	go func() {
		logger.Info("starting server", "port", cfg.Server.Port, "webhook", cfg.WebhookURL())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-runCtx.Done()
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server exited")
}

// wireServer wires all dependencies and returns the HTTP server plus a
// function releasing the retry queue connections.
func wireServer(
	ctx context.Context,
	db *sql.DB,
	redisClient *redis.Client,
	ledger repository.DonationLedger,
	nrApp *newrelic.Application,
	cfg *config.Config,
	logger *slog.Logger,
) (*http.Server, func()) {
	lockStore := internalRedis.NewLockStore(redisClient)
	responseStore := internalRedis.NewResponseStore(redisClient)

	donorRepo := postgres.NewDonorRepository(db)
	mercadoPago := gateway.NewMercadoPago(cfg.Gateway)

	// The retry queue is optional; without brokers failed confirmations are
	// only logged.
	var retries service.RetryPublisher
	var reader *kafkago.Reader
	closeQueue := func() {}
	if kafka.Enabled(cfg.Kafka.Brokers) {
		writer := kafka.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.RetryTopic)
		reader = kafka.NewReader(cfg.Kafka.Brokers, cfg.Kafka.RetryTopic, cfg.Kafka.GroupID)
		retries = kafka.NewRetryPublisher(writer)
		closeQueue = func() {
			if err := reader.Close(); err != nil {
				logger.Error("failed to close kafka reader", "error", err)
			}
			if err := writer.Close(); err != nil {
				logger.Error("failed to close kafka writer", "error", err)
			}
		}
	}

	chargeService := service.NewChargeService(mercadoPago, donorRepo, cfg.WebhookURL(), logger)
	confirmationService := service.NewConfirmationService(
		mercadoPago, ledger, donorRepo, lockStore, retries, logger,
		service.ConfirmationOptions{MaxAttempts: cfg.Kafka.MaxAttempts},
	)

	if reader != nil {
		logger.Info("confirmation retry queue enabled", "topic", cfg.Kafka.RetryTopic)
		go kafka.ConsumeRetries(ctx, reader, confirmationService.Retry, logger)
	}

	router := app.NewRouter(app.RouterDeps{
		ChargeHandler:   handler.NewChargeHandler(chargeService),
		WebhookHandler:  handler.NewWebhookHandler(confirmationService),
		DonationHandler: handler.NewDonationHandler(ledger),
		ResponseCache:   responseStore,
		Auth:            cfg.Auth,
		NewRelicApp:     nrApp,
	})

	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, closeQueue
}
