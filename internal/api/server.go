// Package api provides the HTTP interface of the trial matching server.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/trial-match-server/internal/domain"
	"github.com/trial-match-server/internal/middleware"
)

// Per-process request budget for the API group. The upstream registries are
// further protected by per-client limiters in pkg/external.
const (
	apiRateLimit = 50.0
	apiRateBurst = 100
)

// Recommender produces ranked trial recommendations for a patient profile.
type Recommender interface {
	Recommend(ctx context.Context, profile *domain.PatientProfile, sortBy domain.SortMode) (*domain.RecommendationResult, error)
}

// SafetyReporter provides combined adverse event and recall reports.
type SafetyReporter interface {
	SafetyReport(ctx context.Context, drugName string, limit int) (*domain.DrugSafetyReport, error)
}

// RecommendationHistory persists generated recommendations for later
// retrieval. Only available with the postgres storage backend.
type RecommendationHistory interface {
	Create(ctx context.Context, result *domain.RecommendationResult) error
	GetByID(ctx context.Context, recommendationID string) (*domain.RecommendationResult, error)
	ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*domain.RecommendationResult, error)
}

// Dependencies holds the collaborators the HTTP handlers dispatch to.
// History may be nil when no relational database is configured.
type Dependencies struct {
	Recommender Recommender
	Trials      domain.TrialSearcher
	Literature  domain.LiteratureSearcher
	Safety      SafetyReporter
	Profiles    domain.ProfileStore
	History     RecommendationHistory
	// BreakerStates reports circuit breaker states for the health endpoint.
	BreakerStates func() map[string]string
}

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	deps          Dependencies
	log           *logrus.Logger
	router        *gin.Engine
	server        *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(configManager domain.ConfigManager, deps Dependencies, logger *logrus.Logger) *Server {
	cfg := configManager.GetConfig()

	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Add middleware
	router.Use(middleware.AuditLogger())
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CorrelationID())
	router.Use(corsMiddleware())

	server := &Server{
		configManager: configManager,
		deps:          deps,
		log:           logger,
		router:        router,
	}

	// Setup routes
	server.setupRoutes()

	return server
}

// Start starts the HTTP server and blocks until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.GET("/health", s.handleHealth)

	// API v1 routes
	v1 := s.router.Group("/api/v1", middleware.RateLimit(apiRateLimit, apiRateBurst))
	{
		v1.POST("/recommendations", s.handleCreateRecommendation)
		v1.GET("/recommendations/:id", s.handleGetRecommendation)
		v1.GET("/patients/:id/recommendations", s.handleListRecommendations)

		v1.GET("/trials/:nct_id", s.handleGetTrial)

		v1.POST("/profiles", s.handleSaveProfile)
		v1.GET("/profiles", s.handleListProfiles)
		v1.GET("/profiles/:id", s.handleGetProfile)
		v1.DELETE("/profiles/:id", s.handleDeleteProfile)

		v1.GET("/literature", s.handleSearchLiterature)
		v1.GET("/drugs/:name/safety", s.handleDrugSafety)
	}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	resp := gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   "1.0.0",
	}
	if s.deps.BreakerStates != nil {
		resp["circuit_breakers"] = s.deps.BreakerStates()
	}
	c.JSON(http.StatusOK, resp)
}

// corsMiddleware adds CORS headers to responses
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-API-Key")
		c.Header("Access-Control-Expose-Headers", "Content-Length")
		c.Header("Access-Control-Allow-Credentials", "true")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
