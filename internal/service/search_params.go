package service

import (
	"fmt"
	"strings"

	"github.com/trial-match-server/internal/domain"
)

// BuildSearchParams translates a patient profile into the query handed to the
// trial-search collaborator. It is a pure mapping: optional profile fields
// that are absent are simply left out of the result.
func BuildSearchParams(profile *domain.PatientProfile, cfg *domain.MatchingConfig) domain.SearchParams {
	params := domain.SearchParams{
		Condition:  "lung cancer",
		Status:     "recruiting",
		MaxResults: cfg.MaxResults,
	}

	// The non-small cell branch must be checked first: "small cell" and
	// "sclc" are substrings of "non-small cell" and "nsclc".
	if profile.CancerType != "" {
		cancerType := strings.ToLower(profile.CancerType)
		if strings.Contains(cancerType, "non-small cell") || strings.Contains(cancerType, "nsclc") {
			params.Condition = "non-small cell lung cancer"
		} else if strings.Contains(cancerType, "small cell") || strings.Contains(cancerType, "sclc") {
			params.Condition = "small cell lung cancer"
		}
	}

	if profile.Location != nil {
		params.Location = fmt.Sprintf("%s, %s", profile.Location.City, profile.Location.State)
		params.Distance = cfg.MaxDistanceMiles
	}

	if profile.Age != nil {
		params.Age = profile.Age
	}

	if profile.Gender != "" {
		params.Gender = profile.Gender
	}

	return params
}
