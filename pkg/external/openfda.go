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
)

// OpenFDAClient handles interactions with the openFDA drug endpoints
type OpenFDAClient struct {
	baseURL      string
	apiKey       string
	daysLookback int
	httpClient   *http.Client
	limiter      *rate.Limiter
	logger       *logrus.Logger
}

// NewOpenFDAClient creates a new openFDA API client
func NewOpenFDAClient(config domain.OpenFDAConfig, logger *logrus.Logger) *OpenFDAClient {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.fda.gov"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 4 // openFDA allows 240 req/min without an API key
	}
	if config.DaysLookback == 0 {
		config.DaysLookback = 90
	}

	return &OpenFDAClient{
		baseURL:      strings.TrimRight(config.BaseURL, "/"),
		apiKey:       config.APIKey,
		daysLookback: config.DaysLookback,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		logger:  logger,
	}
}

// eventResponse represents the JSON envelope of /drug/event.json
type eventResponse struct {
	Results []struct {
		SafetyReportID string `json:"safetyreportid"`
		Serious        string `json:"serious"`
		ReceiveDate    string `json:"receivedate"`
		Patient        struct {
			PatientOnsetAge string `json:"patientonsetage"`
			PatientSex      string `json:"patientsex"`
			Reaction        []struct {
				ReactionMedDRAPT string `json:"reactionmeddrapt"`
			} `json:"reaction"`
		} `json:"patient"`
	} `json:"results"`
}

// enforcementResponse represents the JSON envelope of /drug/enforcement.json
type enforcementResponse struct {
	Results []struct {
		RecallNumber         string `json:"recall_number"`
		ProductDescription   string `json:"product_description"`
		ReasonForRecall      string `json:"reason_for_recall"`
		Classification       string `json:"classification"`
		Status               string `json:"status"`
		RecallInitiationDate string `json:"recall_initiation_date"`
	} `json:"results"`
}

// AdverseEvents returns recent adverse event reports mentioning the drug.
func (c *OpenFDAClient) AdverseEvents(ctx context.Context, drugName string, limit int) ([]domain.AdverseEvent, error) {
	if drugName == "" {
		return nil, domain.NewAgentError(domain.ErrInvalidInput, "drug name is required", "", "")
	}
	if limit <= 0 {
		limit = 100
	}

	startDate := time.Now().AddDate(0, 0, -c.daysLookback).Format("20060102")
	search := fmt.Sprintf("patient.drug.medicinalproduct:%q AND receivedate:[%s TO 99999999]", drugName, startDate)

	body, err := c.get(ctx, "/drug/event.json", search, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search adverse events for %s: %w", drugName, err)
	}
	if body == nil {
		return nil, nil
	}

	var response eventResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse adverse event response: %w", err)
	}

	events := make([]domain.AdverseEvent, 0, len(response.Results))
	for _, result := range response.Results {
		var reactions []string
		for _, reaction := range result.Patient.Reaction {
			if reaction.ReactionMedDRAPT != "" {
				reactions = append(reactions, reaction.ReactionMedDRAPT)
			}
		}

		events = append(events, domain.AdverseEvent{
			ReportID:      result.SafetyReportID,
			DrugName:      drugName,
			Reactions:     reactions,
			Serious:       result.Serious == "1",
			ReceivedDate:  formatFDADate(result.ReceiveDate),
			PatientAge:    result.Patient.PatientOnsetAge,
			PatientGender: decodePatientSex(result.Patient.PatientSex),
		})
	}

	c.logger.WithFields(logrus.Fields{
		"drug":  drugName,
		"count": len(events),
	}).Info("openFDA adverse event search completed")

	return events, nil
}

// Recalls returns enforcement reports matching the drug within the lookback
// window. Recalls look back four times further than adverse events because
// enforcement actions are far rarer.
func (c *OpenFDAClient) Recalls(ctx context.Context, drugName string, limit int) ([]domain.DrugRecall, error) {
	if drugName == "" {
		return nil, domain.NewAgentError(domain.ErrInvalidInput, "drug name is required", "", "")
	}
	if limit <= 0 {
		limit = 100
	}

	startDate := time.Now().AddDate(0, 0, -4*c.daysLookback).Format("20060102")
	search := fmt.Sprintf("product_description:%q AND recall_initiation_date:[%s TO 99999999]", drugName, startDate)

	body, err := c.get(ctx, "/drug/enforcement.json", search, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search recalls for %s: %w", drugName, err)
	}
	if body == nil {
		return nil, nil
	}

	var response enforcementResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse enforcement response: %w", err)
	}

	recalls := make([]domain.DrugRecall, 0, len(response.Results))
	for _, result := range response.Results {
		recalls = append(recalls, domain.DrugRecall{
			RecallID:       result.RecallNumber,
			DrugName:       drugName,
			Reason:         result.ReasonForRecall,
			Classification: result.Classification,
			Status:         result.Status,
			InitiatedDate:  formatFDADate(result.RecallInitiationDate),
			Severity:       classifySeverity(result.Classification),
		})
	}

	c.logger.WithFields(logrus.Fields{
		"drug":  drugName,
		"count": len(recalls),
	}).Info("openFDA recall search completed")

	return recalls, nil
}

// SafetyReport aggregates adverse events and recalls for a single drug.
func (c *OpenFDAClient) SafetyReport(ctx context.Context, drugName string, limit int) (*domain.DrugSafetyReport, error) {
	events, err := c.AdverseEvents(ctx, drugName, limit)
	if err != nil {
		return nil, err
	}

	recalls, err := c.Recalls(ctx, drugName, limit)
	if err != nil {
		return nil, err
	}

	return &domain.DrugSafetyReport{
		DrugName:      drugName,
		AdverseEvents: events,
		Recalls:       recalls,
		GeneratedAt:   time.Now().UTC(),
	}, nil
}

// get executes a search request. A 404 from openFDA means zero matches, not
// an error; it returns a nil body in that case.
func (c *OpenFDAClient) get(ctx context.Context, endpoint, search string, limit int) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{
		"search": {search},
		"limit":  {strconv.Itoa(limit)},
	}
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}

	fullURL := fmt.Sprintf("%s%s?%s", c.baseURL, endpoint, params.Encode())

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
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewAgentError(domain.ErrExternalAPI,
			fmt.Sprintf("openFDA returned status %d", resp.StatusCode), fullURL, "")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return body, nil
}

// formatFDADate converts openFDA's YYYYMMDD dates to YYYY-MM-DD.
func formatFDADate(date string) string {
	if len(date) != 8 {
		return date
	}
	return fmt.Sprintf("%s-%s-%s", date[:4], date[4:6], date[6:8])
}

// decodePatientSex maps openFDA's numeric sex codes to labels.
func decodePatientSex(code string) string {
	switch code {
	case "1":
		return "male"
	case "2":
		return "female"
	default:
		return ""
	}
}

// classifySeverity maps FDA recall classes to a coarse severity label.
// Class I recalls carry a reasonable probability of serious harm.
func classifySeverity(classification string) string {
	switch classification {
	case "Class I":
		return "high"
	case "Class II":
		return "medium"
	case "Class III":
		return "low"
	default:
		return "unknown"
	}
}
