package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/trial-match-server/internal/domain"
	"github.com/trial-match-server/pkg/biomarker"
	"github.com/trial-match-server/pkg/geo"
)

// ClinicalTrialsClient handles interactions with the ClinicalTrials.gov v2 API
type ClinicalTrialsClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logrus.Logger
}

// NewClinicalTrialsClient creates a new ClinicalTrials.gov API client
func NewClinicalTrialsClient(config domain.ClinicalTrialsConfig, logger *logrus.Logger) *ClinicalTrialsClient {
	if config.BaseURL == "" {
		config.BaseURL = "https://clinicaltrials.gov/api/v2"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 5
	}

	return &ClinicalTrialsClient{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		logger:  logger,
	}
}

// studiesResponse represents the JSON envelope of a /studies search
type studiesResponse struct {
	Studies []studyRecord `json:"studies"`
}

// studyRecord represents one study from the v2 API
type studyRecord struct {
	ProtocolSection struct {
		IdentificationModule struct {
			NCTID         string `json:"nctId"`
			BriefTitle    string `json:"briefTitle"`
			OfficialTitle string `json:"officialTitle"`
		} `json:"identificationModule"`
		StatusModule struct {
			OverallStatus   string `json:"overallStatus"`
			StartDateStruct struct {
				Date string `json:"date"`
			} `json:"startDateStruct"`
		} `json:"statusModule"`
		DesignModule struct {
			Phases []string `json:"phases"`
		} `json:"designModule"`
		ConditionsModule struct {
			Conditions []string `json:"conditions"`
		} `json:"conditionsModule"`
		EligibilityModule struct {
			EligibilityCriteria string `json:"eligibilityCriteria"`
			Gender              string `json:"gender"`
			MinimumAge          string `json:"minimumAge"`
			MaximumAge          string `json:"maximumAge"`
		} `json:"eligibilityModule"`
		ContactsLocationsModule struct {
			Locations []struct {
				Facility struct {
					Name string `json:"name"`
				} `json:"facility"`
				City    string `json:"city"`
				State   string `json:"state"`
				Country string `json:"country"`
				Zip     string `json:"zip"`
				Status  string `json:"status"`
			} `json:"locations"`
		} `json:"contactsLocationsModule"`
		ArmsInterventionsModule struct {
			Interventions []struct {
				Type        string `json:"type"`
				Name        string `json:"name"`
				Description string `json:"description"`
			} `json:"interventions"`
		} `json:"armsInterventionsModule"`
		BiospecModule struct {
			BiospecDescription string `json:"biospecDescription"`
		} `json:"biospecModule"`
	} `json:"protocolSection"`
}

// Search queries the registry for studies matching the given parameters.
func (c *ClinicalTrialsClient) Search(ctx context.Context, params domain.SearchParams) ([]domain.TrialCandidate, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	values := url.Values{
		"format": {"json"},
	}
	if params.MaxResults > 0 {
		values.Set("pageSize", strconv.Itoa(params.MaxResults))
	}

	var queryTerms []string
	if params.Condition != "" {
		queryTerms = append(queryTerms, fmt.Sprintf("CONDITION:%s", params.Condition))
	}
	if params.Status != "" {
		queryTerms = append(queryTerms, fmt.Sprintf("STATUS:%s", strings.ToUpper(params.Status)))
	}
	if len(queryTerms) > 0 {
		values.Set("query", strings.Join(queryTerms, " AND "))
	}

	if params.Location != "" {
		values.Set("location", params.Location)
		if params.Distance > 0 {
			values.Set("distance", strconv.Itoa(params.Distance))
		}
	}

	fullURL := fmt.Sprintf("%s/studies?%s", c.baseURL, values.Encode())

	c.logger.WithFields(logrus.Fields{
		"condition": params.Condition,
		"status":    params.Status,
		"location":  params.Location,
	}).Info("Searching clinical trials")

	body, err := c.get(ctx, fullURL)
	if err != nil {
		return nil, fmt.Errorf("failed to search clinical trials: %w", err)
	}

	var response studiesResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse studies response: %w", err)
	}

	trials := make([]domain.TrialCandidate, 0, len(response.Studies))
	for i := range response.Studies {
		trials = append(trials, c.convertStudy(&response.Studies[i]))
	}

	c.logger.WithField("count", len(trials)).Info("Clinical trial search completed")

	return trials, nil
}

// GetTrial fetches a single study by its NCT identifier.
func (c *ClinicalTrialsClient) GetTrial(ctx context.Context, nctID string) (*domain.TrialCandidate, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	fullURL := fmt.Sprintf("%s/studies/%s?format=json", c.baseURL, url.PathEscape(nctID))

	body, err := c.get(ctx, fullURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch trial %s: %w", nctID, err)
	}

	var study studyRecord
	if err := json.Unmarshal(body, &study); err != nil {
		return nil, fmt.Errorf("failed to parse study response: %w", err)
	}

	trial := c.convertStudy(&study)
	return &trial, nil
}

// get executes a GET request and returns the response body.
func (c *ClinicalTrialsClient) get(ctx context.Context, fullURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.NewAgentError(domain.ErrNotFound, "trial not found", fullURL, "")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewAgentError(domain.ErrExternalAPI,
			fmt.Sprintf("ClinicalTrials.gov returned status %d", resp.StatusCode), fullURL, "")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return body, nil
}

// convertStudy maps one registry study record onto a trial candidate.
func (c *ClinicalTrialsClient) convertStudy(study *studyRecord) domain.TrialCandidate {
	protocol := &study.ProtocolSection

	title := protocol.IdentificationModule.BriefTitle
	officialTitle := protocol.IdentificationModule.OfficialTitle
	if officialTitle == "" {
		officialTitle = title
	}

	phase := ""
	if len(protocol.DesignModule.Phases) > 0 {
		phase = protocol.DesignModule.Phases[0]
	}

	criteria := protocol.EligibilityModule.EligibilityCriteria

	sites := make([]domain.TrialSite, 0, len(protocol.ContactsLocationsModule.Locations))
	for _, loc := range protocol.ContactsLocationsModule.Locations {
		sites = append(sites, domain.TrialSite{
			Facility: loc.Facility.Name,
			City:     loc.City,
			State:    loc.State,
			Country:  loc.Country,
			Zip:      loc.Zip,
			Status:   loc.Status,
		})
	}

	interventions := make([]domain.Intervention, 0, len(protocol.ArmsInterventionsModule.Interventions))
	for _, arm := range protocol.ArmsInterventionsModule.Interventions {
		interventions = append(interventions, domain.Intervention{
			Type:        arm.Type,
			Name:        arm.Name,
			Description: arm.Description,
		})
	}

	// Marker extraction is a keyword check over the biospecimen description
	// and the eligibility text.
	var biomarkers []string
	biospec := protocol.BiospecModule.BiospecDescription
	for _, marker := range biomarker.Common {
		if strings.Contains(biospec, marker) || strings.Contains(criteria, marker) {
			biomarkers = append(biomarkers, marker)
		}
	}

	nctID := protocol.IdentificationModule.NCTID

	trial := domain.TrialCandidate{
		NCTID:               nctID,
		Title:               title,
		OfficialTitle:       officialTitle,
		Status:              protocol.StatusModule.OverallStatus,
		Phase:               phase,
		Conditions:          protocol.ConditionsModule.Conditions,
		Biomarkers:          biomarkers,
		EligibilityCriteria: criteria,
		Gender:              protocol.EligibilityModule.Gender,
		AgeRange:            fmt.Sprintf("%s - %s", protocol.EligibilityModule.MinimumAge, protocol.EligibilityModule.MaximumAge),
		StartDate:           protocol.StatusModule.StartDateStruct.Date,
		Sites:               sites,
		Interventions:       interventions,
		URL:                 fmt.Sprintf("https://clinicaltrials.gov/study/%s", nctID),
	}

	// Distance sorting needs one representative coordinate. The registry does
	// not return site coordinates, so the first site whose city geocodes wins.
	for _, site := range sites {
		if lat, lon, ok := geo.Coordinates(fmt.Sprintf("%s, %s", site.City, site.State)); ok {
			trial.Location = &domain.Coordinates{Latitude: lat, Longitude: lon}
			break
		}
	}

	return trial
}
