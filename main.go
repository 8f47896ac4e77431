package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"journal-relay/application/journal"
	"journal-relay/application/mood"
	"journal-relay/application/relay"
	"journal-relay/domain/chat"
	infrapersistence "journal-relay/infrastructure/persistence"
	"journal-relay/infrastructure/upstream"
	httpiface "journal-relay/interfaces/http"
	"journal-relay/internal/config"
	"journal-relay/internal/logging"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadYAML(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	logFile := logging.Configure(logrus.StandardLogger(), cfg.Logging)
	defer logFile.Close()

	logrus.WithFields(logrus.Fields{
		"port":     cfg.Server.Port,
		"host":     cfg.Server.Host,
		"model":    cfg.AIGateway.Model,
		"database": cfg.Database.Enabled,
	}).Info("Starting journal relay")

	var gateway chat.UpstreamPort = upstream.NewProvider(cfg.AIGateway.APIKey, cfg.AIGateway.BaseURL)
	var breaker *upstream.CircuitBreakerProvider
	if cfg.CircuitBreaker.Enabled {
		breaker = upstream.NewCircuitBreakerProvider(gateway, upstream.CircuitBreakerConfig{
			Enabled:          true,
			FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
			Timeout:          cfg.CircuitBreaker.Timeout,
			MaxRequests:      cfg.CircuitBreaker.MaxRequests,
		})
		gateway = breaker
		logrus.WithFields(logrus.Fields{
			"failure_threshold": cfg.CircuitBreaker.FailureThreshold,
			"timeout":           cfg.CircuitBreaker.Timeout,
		}).Info("Circuit breaker configured")
	}

	relayService := relay.NewService(gateway, relay.Config{
		APIKey:       cfg.AIGateway.APIKey,
		Model:        cfg.AIGateway.Model,
		SystemPrompt: cfg.AIGateway.SystemPrompt,
	})

	var router *httpiface.Router
	var dbManager *infrapersistence.DatabaseManager
	var eventProcessor *infrapersistence.EventProcessor

	if cfg.Database.Enabled {
		dbManager = infrapersistence.NewDatabaseManager()

		if err := dbManager.Connect(ctx, cfg.Database.Driver, cfg.GetDatabaseDSN()); err != nil {
			logrus.WithError(err).Fatal("Failed to connect to database")
		}

		if err := dbManager.Migrate(); err != nil {
			logrus.WithError(err).Fatal("Failed to run database migrations")
		}

		entryRepo, messageRepo, summaryRepo := dbManager.GetRepositories()

		analyzer, err := mood.NewAnalyzer(cfg.Mood.CacheSize)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to create mood analyzer")
		}

		eventProcessor = infrapersistence.NewEventProcessor(
			entryRepo,
			messageRepo,
			analyzer,
			cfg.Database.Workers,
			cfg.Database.BufferSize,
		)
		if err := eventProcessor.Start(ctx); err != nil {
			logrus.WithError(err).Fatal("Failed to start event processor")
		}

		journalService := journal.NewService(
			entryRepo,
			messageRepo,
			summaryRepo,
			dbManager,
			analyzer,
			infrapersistence.NewMoodTracker(eventProcessor),
		)

		router = httpiface.NewRouterWithJournal(relayService, cfg.Server.CorsOrigins, journalService, dbManager, eventProcessor)

		logrus.Info("Journal API initialized")
	} else {
		router = httpiface.NewRouter(relayService, cfg.Server.CorsOrigins)

		logrus.Info("Running relay only, journal API disabled")
	}

	if breaker != nil {
		router.SetCircuitReporter(breaker)
	}

	address := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              address,
		Handler:           router.SetupRoutes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Replies are streamed for as long as the gateway keeps writing
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(sigCtx)

	g.Go(func() error {
		logrus.WithField("address", address).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logrus.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		logrus.Info("Server shutdown complete")
		return nil
	})

	if err := g.Wait(); err != nil {
		logrus.WithError(err).Error("Server stopped with error")
	}

	if eventProcessor != nil {
		if err := eventProcessor.Stop(); err != nil {
			logrus.WithError(err).Error("Failed to stop event processor")
		}
	}

	if dbManager != nil {
		if err := dbManager.Close(); err != nil {
			logrus.WithError(err).Error("Failed to close database connection")
		}
	}
}
