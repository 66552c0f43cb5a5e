package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/trial-match-server/internal/domain"
)

const (
	defaultPageSize    = 20
	maxPageSize        = 100
	defaultQueryLimit  = 10
	maxLiteratureLimit = 50
)

// handleCreateRecommendation generates trial recommendations for the patient
// profile in the request body. The sort order can be overridden with the
// sort_by query parameter.
func (s *Server) handleCreateRecommendation(c *gin.Context) {
	var profile domain.PatientProfile
	if err := c.ShouldBindJSON(&profile); err != nil {
		s.writeError(c, domain.NewAgentError(domain.ErrInvalidInput, "invalid request body", err.Error(), c.GetString("correlation_id")))
		return
	}

	sortBy := domain.SortMode(c.Query("sort_by"))
	switch sortBy {
	case "", domain.SortByRelevance, domain.SortByDistance, domain.SortByStartDate:
	default:
		s.writeError(c, domain.NewAgentError(domain.ErrInvalidInput, "invalid sort_by value", string(sortBy), c.GetString("correlation_id")))
		return
	}

	result, err := s.deps.Recommender.Recommend(c.Request.Context(), &profile, sortBy)
	if err != nil {
		s.writeError(c, err)
		return
	}

	if s.deps.History != nil {
		if err := s.deps.History.Create(c.Request.Context(), result); err != nil {
			// History is best effort, the recommendation itself succeeded
			s.log.WithFields(logrus.Fields{
				"recommendation_id": result.RecommendationID,
				"error":             err,
			}).Warn("Failed to persist recommendation history")
		}
	}

	c.JSON(http.StatusOK, result)
}

// handleGetRecommendation retrieves a previously generated recommendation.
func (s *Server) handleGetRecommendation(c *gin.Context) {
	if s.deps.History == nil {
		s.writeError(c, domain.NewAgentError(domain.ErrNotFound, "recommendation history requires the postgres storage backend", "", c.GetString("correlation_id")))
		return
	}

	result, err := s.deps.History.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleListRecommendations lists recommendation history for a patient.
func (s *Server) handleListRecommendations(c *gin.Context) {
	if s.deps.History == nil {
		s.writeError(c, domain.NewAgentError(domain.ErrNotFound, "recommendation history requires the postgres storage backend", "", c.GetString("correlation_id")))
		return
	}

	limit, offset, ok := s.pagination(c)
	if !ok {
		return
	}

	results, err := s.deps.History.ListByPatient(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"patient_id":      c.Param("id"),
		"count":           len(results),
		"recommendations": results,
	})
}

// handleGetTrial retrieves a single trial record by NCT identifier.
func (s *Server) handleGetTrial(c *gin.Context) {
	nctID := strings.TrimSpace(c.Param("nct_id"))
	if nctID == "" {
		s.writeError(c, domain.NewAgentError(domain.ErrInvalidInput, "nct_id is required", "", c.GetString("correlation_id")))
		return
	}

	trial, err := s.deps.Trials.GetTrial(c.Request.Context(), nctID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, trial)
}

// handleSaveProfile creates or updates a patient profile.
func (s *Server) handleSaveProfile(c *gin.Context) {
	var profile domain.PatientProfile
	if err := c.ShouldBindJSON(&profile); err != nil {
		s.writeError(c, domain.NewAgentError(domain.ErrInvalidInput, "invalid request body", err.Error(), c.GetString("correlation_id")))
		return
	}

	if err := s.deps.Profiles.Save(c.Request.Context(), &profile); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"patient_id": profile.PatientID})
}

// handleGetProfile retrieves a stored patient profile.
func (s *Server) handleGetProfile(c *gin.Context) {
	profile, err := s.deps.Profiles.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// handleListProfiles lists stored patient profiles.
func (s *Server) handleListProfiles(c *gin.Context) {
	limit, offset, ok := s.pagination(c)
	if !ok {
		return
	}

	profiles, err := s.deps.Profiles.List(c.Request.Context(), limit, offset)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":    len(profiles),
		"profiles": profiles,
	})
}

// handleDeleteProfile removes a stored patient profile.
func (s *Server) handleDeleteProfile(c *gin.Context) {
	if err := s.deps.Profiles.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleSearchLiterature searches PubMed for publications matching the query.
func (s *Server) handleSearchLiterature(c *gin.Context) {
	query := strings.TrimSpace(c.Query("query"))
	if query == "" {
		s.writeError(c, domain.NewAgentError(domain.ErrInvalidInput, "query parameter is required", "", c.GetString("correlation_id")))
		return
	}

	maxResults, ok := s.intQuery(c, "max_results", defaultQueryLimit, maxLiteratureLimit)
	if !ok {
		return
	}

	result, err := s.deps.Literature.SearchLiterature(c.Request.Context(), query, maxResults)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleDrugSafety returns the combined adverse event and recall report for
// a drug.
func (s *Server) handleDrugSafety(c *gin.Context) {
	drugName := strings.TrimSpace(c.Param("name"))
	if drugName == "" {
		s.writeError(c, domain.NewAgentError(domain.ErrInvalidInput, "drug name is required", "", c.GetString("correlation_id")))
		return
	}

	limit, ok := s.intQuery(c, "limit", defaultQueryLimit, maxLiteratureLimit)
	if !ok {
		return
	}

	report, err := s.deps.Safety.SafetyReport(c.Request.Context(), drugName, limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// pagination reads limit and offset query parameters with defaults.
func (s *Server) pagination(c *gin.Context) (limit, offset int, ok bool) {
	limit, ok = s.intQuery(c, "limit", defaultPageSize, maxPageSize)
	if !ok {
		return 0, 0, false
	}
	offset, ok = s.intQuery(c, "offset", 0, -1)
	if !ok {
		return 0, 0, false
	}
	return limit, offset, true
}

// intQuery parses a non-negative integer query parameter. A max of -1
// disables the upper bound.
func (s *Server) intQuery(c *gin.Context, name string, defaultValue, max int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return defaultValue, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		s.writeError(c, domain.NewAgentError(domain.ErrInvalidInput, "invalid "+name+" parameter", raw, c.GetString("correlation_id")))
		return 0, false
	}
	if max > 0 && value > max {
		value = max
	}
	return value, true
}

// writeError maps domain errors onto HTTP status codes.
func (s *Server) writeError(c *gin.Context, err error) {
	correlationID := c.GetString("correlation_id")

	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":          validationErr.Message,
			"field":          validationErr.Field,
			"correlation_id": correlationID,
		})
		return
	}

	var agentErr *domain.AgentError
	if errors.As(err, &agentErr) {
		if agentErr.RequestID == "" {
			agentErr.RequestID = correlationID
		}
		c.JSON(statusForCode(agentErr.Code), gin.H{
			"error":          agentErr.Message,
			"code":           agentErr.Code,
			"details":        agentErr.Details,
			"correlation_id": agentErr.RequestID,
		})
		return
	}

	s.log.WithFields(logrus.Fields{
		"correlation_id": correlationID,
		"path":           c.FullPath(),
		"error":          err,
	}).Error("Request failed")

	c.JSON(http.StatusInternalServerError, gin.H{
		"error":          err.Error(),
		"code":           domain.ErrInternalServer,
		"correlation_id": correlationID,
	})
}

func statusForCode(code string) int {
	switch code {
	case domain.ErrNotFound:
		return http.StatusNotFound
	case domain.ErrInvalidInput, domain.ErrInvalidProfile, domain.ErrValidation:
		return http.StatusBadRequest
	case domain.ErrExternalAPI:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
