package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/trial-match-server/internal/api"
	"github.com/trial-match-server/internal/config"
	"github.com/trial-match-server/internal/database"
	"github.com/trial-match-server/internal/domain"
	"github.com/trial-match-server/internal/profilestore"
	"github.com/trial-match-server/internal/repository"
	"github.com/trial-match-server/internal/service"
	"github.com/trial-match-server/pkg/external"
)

const migrationsPath = "migrations"

func main() {
	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger := newLogger(cfg.Logging)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Patient profile storage and recommendation history
	profiles, history, cleanup, err := setupStorage(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize storage")
	}
	defer cleanup()

	// Response cache is optional
	var cache *external.CacheClient
	if cfg.Cache.Enabled {
		cache, err = external.NewCacheClient(cfg.Cache)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer cache.Close()
	}

	// External registry clients behind circuit breakers
	client, err := external.NewResilientClient(cfg.ExternalAPI, cache, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create external API client")
	}
	defer client.Close()

	recommender := service.NewRecommender(logger, client, &cfg.Matching)

	server := api.NewServer(configManager, api.Dependencies{
		Recommender:   recommender,
		Trials:        client,
		Literature:    client,
		Safety:        client,
		Profiles:      profiles,
		History:       history,
		BreakerStates: client.BreakerStates,
	}, logger)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down")
		cancel()
	}()

	logger.WithFields(logrus.Fields{
		"host":    cfg.Server.Host,
		"port":    cfg.Server.Port,
		"backend": cfg.Storage.Backend,
	}).Info("Starting trial matching server")

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}

	logger.Info("Server stopped")
}

// setupStorage selects the profile storage backend. The postgres backend
// also enables recommendation history with schema migrations applied on
// startup.
func setupStorage(ctx context.Context, cfg *domain.Config, logger *logrus.Logger) (domain.ProfileStore, api.RecommendationHistory, func(), error) {
	switch cfg.Storage.Backend {
	case "postgres":
		databaseURL := database.URL(cfg.Database)

		runner, err := database.NewMigrationRunner(databaseURL, migrationsPath, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := runner.Up(); err != nil {
			runner.Close()
			return nil, nil, nil, err
		}
		runner.Close()

		profiles, err := profilestore.NewPostgresStoreFromURL(databaseURL)
		if err != nil {
			return nil, nil, nil, err
		}

		db, err := database.NewConnection(ctx, cfg.Database, logger)
		if err != nil {
			profiles.Close()
			return nil, nil, nil, err
		}

		history := repository.NewRecommendationRepository(db.Pool, logger)
		cleanup := func() {
			db.Close()
			profiles.Close()
		}
		return profiles, history, cleanup, nil

	default:
		profiles, err := profilestore.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		return profiles, nil, func() { profiles.Close() }, nil
	}
}

// newLogger builds the process logger from configuration
func newLogger(cfg domain.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	switch cfg.Output {
	case "stderr":
		logger.SetOutput(os.Stderr)
	default:
		logger.SetOutput(os.Stdout)
	}

	return logger
}
