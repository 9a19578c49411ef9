// Standalone server: no Postgres, no Redis. Formulary data comes from a
// JSON fixture file, patient data from the request body, and clinician
// feedback lands in SQLite under the data directory.
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/biologic-formulary-engine/internal/api"
	"github.com/biologic-formulary-engine/internal/config"
	"github.com/biologic-formulary-engine/internal/domain"
	"github.com/biologic-formulary-engine/internal/feedback"
	"github.com/biologic-formulary-engine/internal/ranking"
	"github.com/biologic-formulary-engine/internal/repository"
	"github.com/biologic-formulary-engine/internal/service"
)

func main() {
	cfg := config.LoadLiteConfig()
	if err := cfg.EnsureDataDir(); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	logger := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	if strings.EqualFold(cfg.LogFormat, "text") {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	store := repository.NewMemoryStore()
	if cfg.FormularyFile != "" {
		drugs, err := loadFormularyFile(cfg.FormularyFile)
		if err != nil {
			logger.WithError(err).Fatal("Failed to load formulary fixture")
		}
		store.SetFormulary(cfg.PlanID, drugs)
		logger.WithFields(logrus.Fields{
			"file":    cfg.FormularyFile,
			"plan_id": cfg.PlanID,
			"drugs":   len(drugs),
		}).Info("Loaded formulary fixture")
	}

	feedbackStore, err := feedback.NewSQLiteStore(cfg.FeedbackDBPath())
	if err != nil {
		logger.WithError(err).Fatal("Failed to create feedback store")
	}
	defer feedbackStore.Close()

	loader := repository.NewPatientDataLoader(store, store, store, store, logger)
	engine := service.NewRecommendationEngine(logger, ranking.NewFormularyOrderRanker(), nil)
	server := api.NewServer(liteConfigManager{cfg: cfg}, engine, loader, store, feedbackStore, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down")
		cancel()
	}()

	logger.WithField("port", cfg.HTTPPort).Info("Starting standalone formulary recommendation server")
	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}
}

// loadFormularyFile reads a JSON array of formulary drugs.
func loadFormularyFile(path string) ([]domain.FormularyDrug, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var drugs []domain.FormularyDrug
	if err := json.Unmarshal(data, &drugs); err != nil {
		return nil, err
	}
	return drugs, nil
}

// liteConfigManager adapts LiteConfig to the domain.ConfigManager the
// HTTP server expects.
type liteConfigManager struct {
	cfg *config.LiteConfig
}

func (m liteConfigManager) GetConfig() *domain.Config {
	return &domain.Config{
		Server:  *m.GetServerConfig(),
		Logging: domain.LoggingConfig{Level: m.cfg.LogLevel, Format: m.cfg.LogFormat, Output: "stdout"},
	}
}

func (m liteConfigManager) GetServerConfig() *domain.ServerConfig {
	return &domain.ServerConfig{
		Host:         "0.0.0.0",
		Port:         m.cfg.HTTPPort,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

func (m liteConfigManager) GetDatabaseConfig() *domain.DatabaseConfig { return &domain.DatabaseConfig{} }
func (m liteConfigManager) GetDatabaseConnectionString() string       { return "" }
func (m liteConfigManager) Validate() error                           { return nil }
func (m liteConfigManager) IsProduction() bool                        { return false }
