package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trial-match-server/internal/domain"
)

type stubConfigManager struct {
	config *domain.Config
}

func (s *stubConfigManager) GetConfig() *domain.Config                   { return s.config }
func (s *stubConfigManager) GetServerConfig() *domain.ServerConfig       { return &s.config.Server }
func (s *stubConfigManager) GetMatchingConfig() *domain.MatchingConfig   { return &s.config.Matching }
func (s *stubConfigManager) GetExternalAPIConfig() *domain.ExternalAPIConfig {
	return &s.config.ExternalAPI
}
func (s *stubConfigManager) Reload() error   { return nil }
func (s *stubConfigManager) Validate() error { return nil }

type stubRecommender struct {
	result *domain.RecommendationResult
	err    error

	lastSortBy domain.SortMode
}

func (s *stubRecommender) Recommend(_ context.Context, _ *domain.PatientProfile, sortBy domain.SortMode) (*domain.RecommendationResult, error) {
	s.lastSortBy = sortBy
	return s.result, s.err
}

type stubTrials struct {
	trial *domain.TrialCandidate
	err   error
}

func (s *stubTrials) Search(context.Context, domain.SearchParams) ([]domain.TrialCandidate, error) {
	return nil, nil
}

func (s *stubTrials) GetTrial(context.Context, string) (*domain.TrialCandidate, error) {
	return s.trial, s.err
}

type stubLiterature struct {
	result *domain.LiteratureResult
	err    error
}

func (s *stubLiterature) SearchLiterature(_ context.Context, _ string, _ int) (*domain.LiteratureResult, error) {
	return s.result, s.err
}

type stubSafety struct {
	report *domain.DrugSafetyReport
	err    error
}

func (s *stubSafety) SafetyReport(context.Context, string, int) (*domain.DrugSafetyReport, error) {
	return s.report, s.err
}

type memProfileStore struct {
	profiles map[string]*domain.PatientProfile
}

func newMemProfileStore() *memProfileStore {
	return &memProfileStore{profiles: map[string]*domain.PatientProfile{}}
}

func (m *memProfileStore) Save(_ context.Context, profile *domain.PatientProfile) error {
	if err := profile.Validate(); err != nil {
		return err
	}
	m.profiles[profile.PatientID] = profile
	return nil
}

func (m *memProfileStore) Get(_ context.Context, patientID string) (*domain.PatientProfile, error) {
	profile, ok := m.profiles[patientID]
	if !ok {
		return nil, domain.NewAgentError(domain.ErrNotFound, "patient profile not found", patientID, "")
	}
	return profile, nil
}

func (m *memProfileStore) List(context.Context, int, int) ([]*domain.PatientProfile, error) {
	out := make([]*domain.PatientProfile, 0, len(m.profiles))
	for _, p := range m.profiles {
		out = append(out, p)
	}
	return out, nil
}

func (m *memProfileStore) Delete(_ context.Context, patientID string) error {
	if _, ok := m.profiles[patientID]; !ok {
		return domain.NewAgentError(domain.ErrNotFound, "patient profile not found", patientID, "")
	}
	delete(m.profiles, patientID)
	return nil
}

func (m *memProfileStore) Close() error { return nil }

type stubHistory struct {
	created []*domain.RecommendationResult
	byID    map[string]*domain.RecommendationResult
}

func newStubHistory() *stubHistory {
	return &stubHistory{byID: map[string]*domain.RecommendationResult{}}
}

func (s *stubHistory) Create(_ context.Context, result *domain.RecommendationResult) error {
	s.created = append(s.created, result)
	s.byID[result.RecommendationID] = result
	return nil
}

func (s *stubHistory) GetByID(_ context.Context, id string) (*domain.RecommendationResult, error) {
	result, ok := s.byID[id]
	if !ok {
		return nil, domain.NewAgentError(domain.ErrNotFound, "recommendation not found", id, "")
	}
	return result, nil
}

func (s *stubHistory) ListByPatient(_ context.Context, patientID string, _, _ int) ([]*domain.RecommendationResult, error) {
	var out []*domain.RecommendationResult
	for _, r := range s.created {
		if r.PatientID == patientID {
			out = append(out, r)
		}
	}
	return out, nil
}

func newTestServer(t *testing.T, deps Dependencies) *Server {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := &domain.Config{}
	cfg.Server = domain.ServerConfig{Host: "127.0.0.1", Port: 8080}
	cfg.Logging = domain.LoggingConfig{Level: "info"}

	return NewServer(&stubConfigManager{config: cfg}, deps, logger)
}

func doRequest(t *testing.T, server *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, req)
	return recorder
}

func testProfile() *domain.PatientProfile {
	age := 62
	return &domain.PatientProfile{
		PatientID:  "PT001",
		CancerType: "non-small cell lung cancer",
		Age:        &age,
		Gender:     "female",
	}
}

func testRecommendation() *domain.RecommendationResult {
	return &domain.RecommendationResult{
		RecommendationID: "00000000-0000-0000-0000-000000000001",
		PatientID:        "PT001",
		TrialsCount:      1,
		Trials: []domain.TrialCandidate{
			{NCTID: "NCT04613596", Title: "Osimertinib Plus Chemotherapy"},
		},
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t, Dependencies{
		BreakerStates: func() map[string]string {
			return map[string]string{"clinical_trials": "closed"}
		},
	})

	recorder := doRequest(t, server, http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, recorder.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	breakers := body["circuit_breakers"].(map[string]interface{})
	assert.Equal(t, "closed", breakers["clinical_trials"])
	assert.NotEmpty(t, recorder.Header().Get("X-Correlation-ID"))
	assert.Equal(t, "nosniff", recorder.Header().Get("X-Content-Type-Options"))
}

func TestCreateRecommendation(t *testing.T) {
	recommender := &stubRecommender{result: testRecommendation()}
	history := newStubHistory()
	server := newTestServer(t, Dependencies{Recommender: recommender, History: history})

	recorder := doRequest(t, server, http.MethodPost, "/api/v1/recommendations?sort_by=distance", testProfile())

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, domain.SortByDistance, recommender.lastSortBy)

	var result domain.RecommendationResult
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &result))
	assert.Equal(t, 1, result.TrialsCount)
	assert.Equal(t, "NCT04613596", result.Trials[0].NCTID)

	// Recommendation was persisted to history
	require.Len(t, history.created, 1)
	assert.Equal(t, "PT001", history.created[0].PatientID)
}

func TestCreateRecommendation_InvalidBody(t *testing.T) {
	server := newTestServer(t, Dependencies{Recommender: &stubRecommender{}})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/recommendations", bytes.NewReader([]byte("{not json")))
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestCreateRecommendation_InvalidSortBy(t *testing.T) {
	server := newTestServer(t, Dependencies{Recommender: &stubRecommender{}})

	recorder := doRequest(t, server, http.MethodPost, "/api/v1/recommendations?sort_by=alphabetical", testProfile())

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestCreateRecommendation_InvalidProfile(t *testing.T) {
	recommender := &stubRecommender{
		err: domain.NewValidationError("cancer_type", "cancer type is required", ""),
	}
	server := newTestServer(t, Dependencies{Recommender: recommender})

	recorder := doRequest(t, server, http.MethodPost, "/api/v1/recommendations", &domain.PatientProfile{PatientID: "PT001"})

	require.Equal(t, http.StatusBadRequest, recorder.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, "cancer_type", body["field"])
}

func TestCreateRecommendation_UpstreamFailure(t *testing.T) {
	// The recommender wraps searcher failures, so the handler has to unwrap
	// the typed error to pick the status code.
	recommender := &stubRecommender{err: fmt.Errorf("trial search failed: %w",
		domain.NewAgentError(domain.ErrExternalAPI, "clinical trials service unavailable (circuit breaker open)", "", ""))}
	server := newTestServer(t, Dependencies{Recommender: recommender})

	recorder := doRequest(t, server, http.MethodPost, "/api/v1/recommendations", testProfile())

	require.Equal(t, http.StatusBadGateway, recorder.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, domain.ErrExternalAPI, body["code"])
}

func TestGetRecommendation_NoHistoryBackend(t *testing.T) {
	server := newTestServer(t, Dependencies{})

	recorder := doRequest(t, server, http.MethodGet, "/api/v1/recommendations/some-id", nil)

	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestListRecommendationsByPatient(t *testing.T) {
	history := newStubHistory()
	require.NoError(t, history.Create(context.Background(), testRecommendation()))
	server := newTestServer(t, Dependencies{History: history})

	recorder := doRequest(t, server, http.MethodGet, "/api/v1/patients/PT001/recommendations", nil)

	require.Equal(t, http.StatusOK, recorder.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, float64(1), body["count"])
}

func TestGetTrial(t *testing.T) {
	trials := &stubTrials{trial: &domain.TrialCandidate{NCTID: "NCT04613596", Title: "Osimertinib Plus Chemotherapy"}}
	server := newTestServer(t, Dependencies{Trials: trials})

	recorder := doRequest(t, server, http.MethodGet, "/api/v1/trials/NCT04613596", nil)

	require.Equal(t, http.StatusOK, recorder.Code)
	var trial domain.TrialCandidate
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &trial))
	assert.Equal(t, "NCT04613596", trial.NCTID)
}

func TestGetTrial_NotFound(t *testing.T) {
	trials := &stubTrials{err: domain.NewAgentError(domain.ErrNotFound, "trial not found", "NCT00000000", "")}
	server := newTestServer(t, Dependencies{Trials: trials})

	recorder := doRequest(t, server, http.MethodGet, "/api/v1/trials/NCT00000000", nil)

	require.Equal(t, http.StatusNotFound, recorder.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, domain.ErrNotFound, body["code"])
}

func TestProfileLifecycle(t *testing.T) {
	store := newMemProfileStore()
	server := newTestServer(t, Dependencies{Profiles: store})

	recorder := doRequest(t, server, http.MethodPost, "/api/v1/profiles", testProfile())
	require.Equal(t, http.StatusCreated, recorder.Code)

	recorder = doRequest(t, server, http.MethodGet, "/api/v1/profiles/PT001", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	var profile domain.PatientProfile
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &profile))
	assert.Equal(t, "non-small cell lung cancer", profile.CancerType)

	recorder = doRequest(t, server, http.MethodGet, "/api/v1/profiles", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = doRequest(t, server, http.MethodDelete, "/api/v1/profiles/PT001", nil)
	require.Equal(t, http.StatusNoContent, recorder.Code)

	recorder = doRequest(t, server, http.MethodGet, "/api/v1/profiles/PT001", nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestSaveProfile_ValidationError(t *testing.T) {
	store := newMemProfileStore()
	server := newTestServer(t, Dependencies{Profiles: store})

	recorder := doRequest(t, server, http.MethodPost, "/api/v1/profiles", &domain.PatientProfile{CancerType: "NSCLC"})

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestSearchLiterature(t *testing.T) {
	literature := &stubLiterature{result: &domain.LiteratureResult{
		Query:          "osimertinib EGFR",
		TotalCitations: 1,
		Citations:      []domain.Citation{{PMID: "12345678", Title: "Osimertinib in EGFR-Mutated NSCLC"}},
	}}
	server := newTestServer(t, Dependencies{Literature: literature})

	recorder := doRequest(t, server, http.MethodGet, "/api/v1/literature?query=osimertinib+EGFR", nil)

	require.Equal(t, http.StatusOK, recorder.Code)
	var result domain.LiteratureResult
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &result))
	assert.Equal(t, 1, result.TotalCitations)
}

func TestSearchLiterature_MissingQuery(t *testing.T) {
	server := newTestServer(t, Dependencies{Literature: &stubLiterature{}})

	recorder := doRequest(t, server, http.MethodGet, "/api/v1/literature", nil)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestDrugSafety(t *testing.T) {
	safety := &stubSafety{report: &domain.DrugSafetyReport{
		DrugName: "osimertinib",
		AdverseEvents: []domain.AdverseEvent{
			{DrugName: "osimertinib", Reactions: []string{"RASH"}},
		},
	}}
	server := newTestServer(t, Dependencies{Safety: safety})

	recorder := doRequest(t, server, http.MethodGet, "/api/v1/drugs/osimertinib/safety?limit=5", nil)

	require.Equal(t, http.StatusOK, recorder.Code)
	var report domain.DrugSafetyReport
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &report))
	assert.Equal(t, "osimertinib", report.DrugName)
	require.Len(t, report.AdverseEvents, 1)
}

func TestInvalidPaginationParameter(t *testing.T) {
	server := newTestServer(t, Dependencies{Profiles: newMemProfileStore()})

	recorder := doRequest(t, server, http.MethodGet, "/api/v1/profiles?limit=abc", nil)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}
