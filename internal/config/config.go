// Package config provides configuration management for the trial matching server.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/trial-match-server/internal/domain"
)

// Manager implements configuration management using Viper
type Manager struct {
	config *domain.Config
}

// NewManager creates a new configuration manager
func NewManager() (*Manager, error) {
	manager := &Manager{}
	if err := manager.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return manager, nil
}

// loadConfig loads configuration from files and environment variables
func (m *Manager) loadConfig() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/trial-match-server/")

	// Environment variables override file values, e.g.
	// TRIAL_MATCH_DATABASE_HOST maps to database.host
	viper.SetEnvPrefix("TRIAL_MATCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	m.setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is fine, defaults and env vars apply
	}

	config := &domain.Config{}
	if err := viper.Unmarshal(config); err != nil {
		return fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	m.config = config
	return nil
}

// setDefaults sets default configuration values
func (m *Manager) setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")
	viper.SetDefault("server.tls_enabled", false)

	// Storage defaults
	viper.SetDefault("storage.backend", "sqlite")
	viper.SetDefault("storage.sqlite_path", "./data/profiles.db")

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.database", "trial_match")
	viper.SetDefault("database.username", "postgres")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")

	// External API defaults
	viper.SetDefault("external_api.clinical_trials.base_url", "https://clinicaltrials.gov/api/v2")
	viper.SetDefault("external_api.clinical_trials.timeout", "30s")
	viper.SetDefault("external_api.clinical_trials.rate_limit", 5)

	viper.SetDefault("external_api.pubmed.base_url", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils")
	viper.SetDefault("external_api.pubmed.timeout", "30s")
	viper.SetDefault("external_api.pubmed.rate_limit", 3)

	viper.SetDefault("external_api.openfda.base_url", "https://api.fda.gov")
	viper.SetDefault("external_api.openfda.timeout", "30s")
	viper.SetDefault("external_api.openfda.rate_limit", 4)
	viper.SetDefault("external_api.openfda.days_lookback", 90)

	// Cache defaults
	viper.SetDefault("cache.enabled", false)
	viper.SetDefault("cache.redis_url", "redis://localhost:6379")
	viper.SetDefault("cache.default_ttl", "24h")
	viper.SetDefault("cache.max_retries", 3)
	viper.SetDefault("cache.pool_size", 10)
	viper.SetDefault("cache.pool_timeout", "4s")

	// Matching defaults
	viper.SetDefault("matching.max_results", 50)
	viper.SetDefault("matching.max_distance_miles", 100)
	viper.SetDefault("matching.sort_by", "relevance")
	viper.SetDefault("matching.default_country", "USA")
	viper.SetDefault("matching.include_remote_trials", true)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetServerConfig returns the server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetMatchingConfig returns the trial matching configuration
func (m *Manager) GetMatchingConfig() *domain.MatchingConfig {
	return &m.config.Matching
}

// GetExternalAPIConfig returns the external API configuration
func (m *Manager) GetExternalAPIConfig() *domain.ExternalAPIConfig {
	return &m.config.ExternalAPI
}

// GetStorageConfig returns the profile storage configuration
func (m *Manager) GetStorageConfig() *domain.StorageConfig {
	return &m.config.Storage
}

// GetDatabaseConfig returns the database configuration
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Database
}

// GetCacheConfig returns the cache configuration
func (m *Manager) GetCacheConfig() *domain.CacheConfig {
	return &m.config.Cache
}

// Reload reloads the configuration from sources
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the current configuration
func (m *Manager) Validate() error {
	config := m.config
	if config == nil {
		return fmt.Errorf("configuration not loaded")
	}

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	switch config.Storage.Backend {
	case "sqlite":
		if config.Storage.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for the sqlite backend")
		}
	case "postgres":
		if config.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if config.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if config.Database.Username == "" {
			return fmt.Errorf("database username is required")
		}
	default:
		return fmt.Errorf("invalid storage backend: %s", config.Storage.Backend)
	}

	// Validate external API URLs
	if config.ExternalAPI.ClinicalTrials.BaseURL == "" {
		return fmt.Errorf("ClinicalTrials.gov base URL is required")
	}
	if config.ExternalAPI.PubMed.BaseURL == "" {
		return fmt.Errorf("PubMed base URL is required")
	}
	if config.ExternalAPI.OpenFDA.BaseURL == "" {
		return fmt.Errorf("openFDA base URL is required")
	}

	// Validate matching configuration
	if config.Matching.MaxResults <= 0 {
		return fmt.Errorf("matching max_results must be positive")
	}
	if config.Matching.MaxDistanceMiles <= 0 {
		return fmt.Errorf("matching max_distance_miles must be positive")
	}
	switch config.Matching.SortBy {
	case domain.SortByRelevance, domain.SortByDistance, domain.SortByStartDate:
	default:
		return fmt.Errorf("invalid matching sort mode: %s", config.Matching.SortBy)
	}

	// Validate cache configuration
	if config.Cache.Enabled && config.Cache.RedisURL == "" {
		return fmt.Errorf("Redis URL is required when caching is enabled")
	}

	// Validate logging configuration
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(viper.GetString("environment")) == "production"
}
