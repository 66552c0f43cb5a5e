package config

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trial-match-server/internal/domain"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	viper.Reset()
	clearEnvVars(t)
	t.Cleanup(func() {
		viper.Reset()
		clearEnvVars(t)
	})

	manager, err := NewManager()
	require.NoError(t, err)
	return manager
}

func TestNewManager_Defaults(t *testing.T) {
	manager := newTestManager(t)
	cfg := manager.GetConfig()

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)

	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "./data/profiles.db", cfg.Storage.SQLitePath)

	assert.Equal(t, "https://clinicaltrials.gov/api/v2", cfg.ExternalAPI.ClinicalTrials.BaseURL)
	assert.Equal(t, 5, cfg.ExternalAPI.ClinicalTrials.RateLimit)
	assert.Equal(t, "https://eutils.ncbi.nlm.nih.gov/entrez/eutils", cfg.ExternalAPI.PubMed.BaseURL)
	assert.Equal(t, "https://api.fda.gov", cfg.ExternalAPI.OpenFDA.BaseURL)
	assert.Equal(t, 90, cfg.ExternalAPI.OpenFDA.DaysLookback)

	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, 24*time.Hour, cfg.Cache.DefaultTTL)

	assert.Equal(t, 50, cfg.Matching.MaxResults)
	assert.Equal(t, 100, cfg.Matching.MaxDistanceMiles)
	assert.Equal(t, domain.SortByRelevance, cfg.Matching.SortBy)
	assert.Equal(t, "USA", cfg.Matching.DefaultCountry)
	assert.True(t, cfg.Matching.IncludeRemoteTrials)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestNewManager_EnvironmentOverrides(t *testing.T) {
	viper.Reset()
	clearEnvVars(t)
	t.Cleanup(func() {
		viper.Reset()
		clearEnvVars(t)
	})

	os.Setenv("TRIAL_MATCH_SERVER_PORT", "9090")
	os.Setenv("TRIAL_MATCH_STORAGE_BACKEND", "postgres")
	os.Setenv("TRIAL_MATCH_DATABASE_HOST", "db.internal")
	os.Setenv("TRIAL_MATCH_MATCHING_MAX_RESULTS", "25")
	os.Setenv("TRIAL_MATCH_MATCHING_SORT_BY", "distance")
	os.Setenv("TRIAL_MATCH_CACHE_ENABLED", "true")
	os.Setenv("TRIAL_MATCH_LOGGING_LEVEL", "debug")

	manager, err := NewManager()
	require.NoError(t, err)
	cfg := manager.GetConfig()

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Storage.Backend)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 25, cfg.Matching.MaxResults)
	assert.Equal(t, domain.SortByDistance, cfg.Matching.SortBy)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestManager_Getters(t *testing.T) {
	manager := newTestManager(t)

	assert.Equal(t, 8080, manager.GetServerConfig().Port)
	assert.Equal(t, 50, manager.GetMatchingConfig().MaxResults)
	assert.Equal(t, 5, manager.GetExternalAPIConfig().ClinicalTrials.RateLimit)
	assert.Equal(t, "sqlite", manager.GetStorageConfig().Backend)
	assert.Equal(t, 5432, manager.GetDatabaseConfig().Port)
	assert.Equal(t, "redis://localhost:6379", manager.GetCacheConfig().RedisURL)
}

func TestManager_Validate(t *testing.T) {
	manager := newTestManager(t)

	assert.NoError(t, manager.Validate())
}

func TestManager_Validate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *domain.Config)
		wantErr string
	}{
		{
			name:    "invalid port",
			mutate:  func(cfg *domain.Config) { cfg.Server.Port = 0 },
			wantErr: "invalid server port",
		},
		{
			name:    "unknown storage backend",
			mutate:  func(cfg *domain.Config) { cfg.Storage.Backend = "dynamodb" },
			wantErr: "invalid storage backend",
		},
		{
			name: "sqlite without path",
			mutate: func(cfg *domain.Config) {
				cfg.Storage.Backend = "sqlite"
				cfg.Storage.SQLitePath = ""
			},
			wantErr: "sqlite path is required",
		},
		{
			name: "postgres without host",
			mutate: func(cfg *domain.Config) {
				cfg.Storage.Backend = "postgres"
				cfg.Database.Host = ""
			},
			wantErr: "database host is required",
		},
		{
			name:    "missing trials URL",
			mutate:  func(cfg *domain.Config) { cfg.ExternalAPI.ClinicalTrials.BaseURL = "" },
			wantErr: "ClinicalTrials.gov base URL is required",
		},
		{
			name:    "non-positive max results",
			mutate:  func(cfg *domain.Config) { cfg.Matching.MaxResults = 0 },
			wantErr: "max_results must be positive",
		},
		{
			name:    "invalid sort mode",
			mutate:  func(cfg *domain.Config) { cfg.Matching.SortBy = "alphabetical" },
			wantErr: "invalid matching sort mode",
		},
		{
			name: "cache enabled without URL",
			mutate: func(cfg *domain.Config) {
				cfg.Cache.Enabled = true
				cfg.Cache.RedisURL = ""
			},
			wantErr: "Redis URL is required",
		},
		{
			name:    "invalid log level",
			mutate:  func(cfg *domain.Config) { cfg.Logging.Level = "verbose" },
			wantErr: "invalid log level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager := newTestManager(t)
			tt.mutate(manager.GetConfig())

			err := manager.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestManager_Reload(t *testing.T) {
	manager := newTestManager(t)

	os.Setenv("TRIAL_MATCH_SERVER_PORT", "9191")
	require.NoError(t, manager.Reload())

	assert.Equal(t, 9191, manager.GetConfig().Server.Port)
}

func clearEnvVars(t *testing.T) {
	t.Helper()
	vars := []string{
		"TRIAL_MATCH_SERVER_PORT",
		"TRIAL_MATCH_STORAGE_BACKEND",
		"TRIAL_MATCH_DATABASE_HOST",
		"TRIAL_MATCH_MATCHING_MAX_RESULTS",
		"TRIAL_MATCH_MATCHING_SORT_BY",
		"TRIAL_MATCH_CACHE_ENABLED",
		"TRIAL_MATCH_LOGGING_LEVEL",
	}
	for _, v := range vars {
		os.Unsetenv(v)
	}
}
