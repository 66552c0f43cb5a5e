package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/trial-match-server/internal/domain"
)

// Recommender orchestrates one recommendation run: build search parameters,
// call the trial-search collaborator, filter the candidates, rank them and
// wrap the result.
type Recommender struct {
	logger      *logrus.Logger
	searcher    domain.TrialSearcher
	matching    *domain.MatchingConfig
	eligibility *EligibilityEngine
	ranker      *TrialRanker
}

// NewRecommender creates a new recommender service.
func NewRecommender(logger *logrus.Logger, searcher domain.TrialSearcher, matching *domain.MatchingConfig) *Recommender {
	return &Recommender{
		logger:      logger,
		searcher:    searcher,
		matching:    matching,
		eligibility: NewEligibilityEngine(logger),
		ranker:      NewTrialRanker(logger),
	}
}

// Recommend generates trial recommendations for a patient. sortBy overrides
// the configured sort mode when non-empty. A collaborator failure propagates
// to the caller unchanged; there is no retry and no partial result.
func (r *Recommender) Recommend(ctx context.Context, profile *domain.PatientProfile, sortBy domain.SortMode) (*domain.RecommendationResult, error) {
	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("invalid patient profile: %w", err)
	}

	r.logger.WithField("patient_id", profile.PatientID).Info("Finding trials for patient")

	params := BuildSearchParams(profile, r.matching)

	candidates, err := r.searcher.Search(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("trial search failed: %w", err)
	}

	filtered := r.eligibility.Filter(candidates, profile)

	if sortBy == "" {
		sortBy = r.matching.SortBy
	}
	ranked := r.ranker.Rank(filtered, profile, sortBy)

	result := &domain.RecommendationResult{
		RecommendationID: uuid.NewString(),
		Timestamp:        time.Now().UTC(),
		PatientID:        profile.PatientID,
		TrialsCount:      len(ranked),
		Trials:           ranked,
		SearchCriteria:   params,
	}

	r.logger.WithFields(logrus.Fields{
		"patient_id":        profile.PatientID,
		"recommendation_id": result.RecommendationID,
		"candidates":        len(candidates),
		"trials_count":      result.TrialsCount,
		"sort_by":           string(sortBy),
	}).Info("Generated trial recommendations")

	return result, nil
}
