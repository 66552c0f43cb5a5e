package service

import (
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/trial-match-server/internal/domain"
	"github.com/trial-match-server/pkg/geo"
)

// TrialRanker orders filtered trial candidates by the configured sort mode.
type TrialRanker struct {
	logger *logrus.Logger
}

// NewTrialRanker creates a new trial ranker.
func NewTrialRanker(logger *logrus.Logger) *TrialRanker {
	return &TrialRanker{logger: logger}
}

// Rank returns the trials ordered by the given sort mode. The input slice is
// not mutated. Unrecognized modes, including the default "relevance", return
// the input order unchanged.
// TODO: replace the relevance pass-through with biomarker-overlap scoring once
// trial biomarker extraction is reliable enough to rank on.
func (r *TrialRanker) Rank(trials []domain.TrialCandidate, profile *domain.PatientProfile, mode domain.SortMode) []domain.TrialCandidate {
	ranked := make([]domain.TrialCandidate, len(trials))
	copy(ranked, trials)

	switch {
	case mode == domain.SortByDistance && profile.Location.HasCoordinates():
		r.sortByDistance(ranked, profile)

	case mode == domain.SortByStartDate:
		// Newest first. A missing start date sorts as the empty string, which
		// is lexicographically smallest and therefore lands last.
		sort.SliceStable(ranked, func(i, j int) bool {
			return ranked[i].StartDate > ranked[j].StartDate
		})

	default:
		// Relevance and anything unrecognized: keep collaborator order.
		// Distance without patient coordinates also falls through here.
	}

	return ranked
}

// sortByDistance stable-sorts ascending by great-circle distance from the
// patient. Trials without a location are treated as infinitely far and sort
// last.
func (r *TrialRanker) sortByDistance(trials []domain.TrialCandidate, profile *domain.PatientProfile) {
	type candidateDistance struct {
		trial    domain.TrialCandidate
		distance float64
	}

	ranked := make([]candidateDistance, len(trials))
	for i := range trials {
		ranked[i] = candidateDistance{trial: trials[i], distance: math.Inf(1)}
		if trials[i].Location != nil {
			ranked[i].distance = geo.Distance(
				*profile.Location.Latitude,
				*profile.Location.Longitude,
				trials[i].Location.Latitude,
				trials[i].Location.Longitude,
			)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].distance < ranked[j].distance
	})

	for i := range ranked {
		trials[i] = ranked[i].trial
	}

	r.logger.WithFields(logrus.Fields{
		"patient_id": profile.PatientID,
		"trials":     len(trials),
	}).Debug("Sorted trials by distance")
}
