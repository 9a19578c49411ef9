package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/biologic-formulary-engine/internal/api"
	"github.com/biologic-formulary-engine/internal/config"
	"github.com/biologic-formulary-engine/internal/database"
	"github.com/biologic-formulary-engine/internal/domain"
	"github.com/biologic-formulary-engine/internal/feedback"
	"github.com/biologic-formulary-engine/internal/ranking"
	"github.com/biologic-formulary-engine/internal/repository"
	"github.com/biologic-formulary-engine/internal/service"
	"github.com/biologic-formulary-engine/pkg/external"
)

func main() {
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger := newLogger(cfg.Logging)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database and migrations
	db, err := database.NewConnection(ctx, cfg.Database, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	runner, err := database.NewMigrationRunner(configManager.GetDatabaseURL(), cfg.Database.MigrationsPath, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create migration runner")
	}
	if err := runner.Up(); err != nil {
		logger.WithError(err).Fatal("Failed to run migrations")
	}
	runner.Close()

	// Repositories
	formularyRepo := repository.NewFormularyRepository(db.Pool, logger)
	patientRepo := repository.NewPatientRepository(db.Pool, logger)
	loader := repository.NewPatientDataLoader(formularyRepo, patientRepo, patientRepo, patientRepo, logger)

	// External collaborators
	var cache *external.CacheClient
	if cfg.Cache.Enabled {
		cache, err = external.NewCacheClient(cfg.Cache)
		if err != nil {
			logger.WithError(err).Warn("Redis cache unavailable, continuing without it")
		} else {
			defer cache.Close()
		}
	}

	var ranker domain.EfficacyRanker = ranking.NewFormularyOrderRanker()
	if cfg.Reasoning.Enabled {
		reasoningClient := external.NewReasoningClient(cfg.Reasoning, cache, logger)
		ranker = ranking.NewReasoningRanker(reasoningClient, logger)
	}

	var searcher domain.EvidenceSearcher
	if cfg.KnowledgeSearch.Enabled {
		searcher, err = external.NewKnowledgeSearchClient(cfg.KnowledgeSearch, logger)
		if err != nil {
			logger.WithError(err).Warn("Knowledge search unavailable, using guideline citations")
			searcher = nil
		}
	}

	// Feedback store
	var feedbackStore feedback.Store
	switch strings.ToLower(cfg.Feedback.Backend) {
	case "sqlite":
		feedbackStore, err = feedback.NewSQLiteStore(cfg.Feedback.SQLitePath)
	default:
		feedbackStore, err = feedback.NewPostgresStoreFromURL(configManager.GetDatabaseURL())
	}
	if err != nil {
		logger.WithError(err).Fatal("Failed to create feedback store")
	}
	defer feedbackStore.Close()

	engine := service.NewRecommendationEngine(logger, ranker, searcher)
	server := api.NewServer(configManager, engine, loader, formularyRepo, feedbackStore, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down")
		cancel()
	}()

	logger.WithFields(logrus.Fields{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Starting formulary recommendation server")

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}

	logger.Info("Server stopped")
}

// newLogger builds the process logger from the logging configuration.
func newLogger(cfg domain.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if strings.EqualFold(cfg.Format, "text") {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	return logger
}
