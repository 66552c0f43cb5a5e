package domain

import (
	"time"
)

// Core Enums and Types

// SortMode controls how matched trials are ordered before they are returned.
type SortMode string

const (
	SortByRelevance SortMode = "relevance"
	SortByDistance  SortMode = "distance"
	SortByStartDate SortMode = "start_date"
)

// ECOG performance status bounds (0 = fully active, 5 = deceased).
const (
	MinPerformanceStatus = 0
	MaxPerformanceStatus = 5
)

// Patient Models

// Location holds a patient's home location for proximity-based matching.
type Location struct {
	City      string   `json:"city"`
	State     string   `json:"state"`
	Country   string   `json:"country"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// HasCoordinates reports whether the location carries usable coordinates.
func (l *Location) HasCoordinates() bool {
	return l != nil && l.Latitude != nil && l.Longitude != nil
}

// PatientProfile contains the medical and demographic information used for
// trial matching. A profile is treated as immutable for the duration of one
// recommendation request.
type PatientProfile struct {
	PatientID   string `json:"patient_id"`
	Age         *int   `json:"age,omitempty"`
	Gender      string `json:"gender,omitempty"`
	CancerType  string `json:"cancer_type,omitempty"`
	CancerStage string `json:"cancer_stage,omitempty"`

	// Biomarkers maps marker name (e.g. "EGFR") to mutation/expression status;
	// true means positive. Keys are matched case-insensitively against trial
	// eligibility text.
	Biomarkers map[string]bool `json:"biomarkers,omitempty"`

	PriorTreatments []string `json:"prior_treatments,omitempty"`

	// PerformanceStatus is the ECOG score; nil means not assessed.
	PerformanceStatus *int `json:"performance_status,omitempty"`

	Location *Location `json:"location,omitempty"`
}

// Validate checks that the profile is usable for matching.
func (p *PatientProfile) Validate() error {
	if p.PatientID == "" {
		return NewValidationError("patient_id", "patient ID is required", p.PatientID)
	}
	if p.Age != nil && *p.Age < 0 {
		return NewValidationError("age", "age must be non-negative", *p.Age)
	}
	if p.PerformanceStatus != nil {
		if *p.PerformanceStatus < MinPerformanceStatus || *p.PerformanceStatus > MaxPerformanceStatus {
			return NewValidationError("performance_status", "ECOG performance status must be between 0 and 5", *p.PerformanceStatus)
		}
	}
	return nil
}

// Trial Models

// Coordinates is a bare latitude/longitude pair attached to a trial record.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// TrialSite describes one recruiting location of a trial.
type TrialSite struct {
	Facility string `json:"facility"`
	City     string `json:"city"`
	State    string `json:"state"`
	Country  string `json:"country"`
	Zip      string `json:"zip,omitempty"`
	Status   string `json:"status,omitempty"`
}

// Intervention describes one treatment arm of a trial.
type Intervention struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// TrialCandidate is one trial record as produced by the trial-search
// collaborator. Descriptive fields pass through matching unmodified; only
// EligibilityCriteria, Location and StartDate participate in filtering and
// ranking. Missing fields default to their zero values and never fail a
// candidate outright.
type TrialCandidate struct {
	NCTID         string   `json:"nct_id"`
	Title         string   `json:"title"`
	OfficialTitle string   `json:"official_title,omitempty"`
	Status        string   `json:"status"`
	Phase         string   `json:"phase,omitempty"`
	Conditions    []string `json:"conditions,omitempty"`
	Biomarkers    []string `json:"biomarkers,omitempty"`

	// EligibilityCriteria is the free-text inclusion/exclusion rules; biomarker,
	// treatment and performance matching is substring analysis over this text.
	EligibilityCriteria string `json:"eligibility_criteria"`

	Gender   string `json:"gender,omitempty"`
	AgeRange string `json:"age_range,omitempty"`

	// StartDate is the registry's YYYY-MM-DD start date string; empty when the
	// registry omits it.
	StartDate string `json:"start_date,omitempty"`

	Sites         []TrialSite    `json:"locations,omitempty"`
	Interventions []Intervention `json:"interventions,omitempty"`

	// Location is a representative coordinate for distance sorting; nil means
	// the trial sorts as infinitely far.
	Location *Coordinates `json:"location,omitempty"`

	URL string `json:"url,omitempty"`
}

// Search Models

// SearchParams is the query handed to the trial-search collaborator. It is
// echoed back on the recommendation result for auditability.
type SearchParams struct {
	Condition  string `json:"condition"`
	Status     string `json:"status"`
	MaxResults int    `json:"max_results"`
	Location   string `json:"location,omitempty"`
	Distance   int    `json:"distance,omitempty"`
	Age        *int   `json:"age,omitempty"`
	Gender     string `json:"gender,omitempty"`
}

// Result Models

// RecommendationResult is the output of one matching run.
type RecommendationResult struct {
	RecommendationID string           `json:"recommendation_id"`
	Timestamp        time.Time        `json:"timestamp"`
	PatientID        string           `json:"patient_id"`
	TrialsCount      int              `json:"trials_count"`
	Trials           []TrialCandidate `json:"trials"`
	SearchCriteria   SearchParams     `json:"search_criteria"`
}

// Literature Models

// Citation is one PubMed article reference returned by the literature search.
type Citation struct {
	PMID      string   `json:"pmid"`
	Title     string   `json:"title"`
	Authors   []string `json:"authors,omitempty"`
	Journal   string   `json:"journal,omitempty"`
	Year      int      `json:"year,omitempty"`
	Relevance string   `json:"relevance,omitempty"`
	StudyType string   `json:"study_type,omitempty"`
	URL       string   `json:"url,omitempty"`
}

// LiteratureResult aggregates one literature search.
type LiteratureResult struct {
	Query               string     `json:"query"`
	TotalCitations      int        `json:"total_citations"`
	RetrievedCitations  int        `json:"retrieved_citations"`
	Citations           []Citation `json:"citations"`
	HighImpactCitations int        `json:"high_impact_citations"`
	RecentCitations     int        `json:"recent_citations"`
	RetrievedAt         time.Time  `json:"retrieved_at"`
}

// Drug Safety Models

// AdverseEvent is one openFDA adverse event report summary.
type AdverseEvent struct {
	ReportID      string    `json:"report_id"`
	DrugName      string    `json:"drug_name"`
	Reactions     []string  `json:"reactions"`
	Serious       bool      `json:"serious"`
	ReceivedDate  string    `json:"received_date,omitempty"`
	PatientAge    string    `json:"patient_age,omitempty"`
	PatientGender string    `json:"patient_gender,omitempty"`
	ReportedAt    time.Time `json:"reported_at,omitempty"`
}

// DrugRecall is one openFDA enforcement report summary.
type DrugRecall struct {
	RecallID       string `json:"recall_id"`
	DrugName       string `json:"drug_name"`
	Reason         string `json:"reason"`
	Classification string `json:"classification,omitempty"`
	Status         string `json:"status,omitempty"`
	InitiatedDate  string `json:"initiated_date,omitempty"`
	Severity       string `json:"severity"`
}

// DrugSafetyReport aggregates safety signals for one drug.
type DrugSafetyReport struct {
	DrugName      string         `json:"drug_name"`
	AdverseEvents []AdverseEvent `json:"adverse_events"`
	Recalls       []DrugRecall   `json:"recalls"`
	GeneratedAt   time.Time      `json:"generated_at"`
}
