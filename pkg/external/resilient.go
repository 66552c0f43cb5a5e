package external

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/trial-match-server/internal/domain"
)

// ResilientClient wraps the external API clients with circuit breakers and a
// two-tier cache: a small in-process LRU for trial details and, when
// configured, a shared Redis tier for everything else. It satisfies the
// TrialSearcher, LiteratureSearcher and DrugSafetySource contracts.
type ResilientClient struct {
	trials   *ClinicalTrialsClient
	pubMed   *PubMedClient
	openFDA  *OpenFDAClient
	cache    *CacheClient
	trialLRU *lru.Cache[string, *domain.TrialCandidate]
	logger   *logrus.Logger

	trialsBreaker  *gobreaker.CircuitBreaker
	pubMedBreaker  *gobreaker.CircuitBreaker
	openFDABreaker *gobreaker.CircuitBreaker
}

const trialLRUSize = 256

// NewResilientClient creates a resilient facade over the external clients.
// cache may be nil when Redis is disabled; the LRU tier is always in place.
func NewResilientClient(
	apiConfig domain.ExternalAPIConfig,
	cache *CacheClient,
	logger *logrus.Logger,
) (*ResilientClient, error) {
	trialLRU, err := lru.New[string, *domain.TrialCandidate](trialLRUSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create trial LRU cache: %w", err)
	}

	onStateChange := func(name string, from gobreaker.State, to gobreaker.State) {
		logger.WithFields(logrus.Fields{
			"breaker": name,
			"from":    from.String(),
			"to":      to.String(),
		}).Warn("Circuit breaker state changed")
	}

	trialsBreaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ClinicalTrials",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: onStateChange,
	})

	pubMedBreaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "PubMed",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 2 && failureRatio >= 0.5
		},
		OnStateChange: onStateChange,
	})

	openFDABreaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openFDA",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: onStateChange,
	})

	return &ResilientClient{
		trials:         NewClinicalTrialsClient(apiConfig.ClinicalTrials, logger),
		pubMed:         NewPubMedClient(apiConfig.PubMed, logger),
		openFDA:        NewOpenFDAClient(apiConfig.OpenFDA, logger),
		cache:          cache,
		trialLRU:       trialLRU,
		logger:         logger,
		trialsBreaker:  trialsBreaker,
		pubMedBreaker:  pubMedBreaker,
		openFDABreaker: openFDABreaker,
	}, nil
}

// Search queries the registry with circuit breaking and Redis caching.
func (r *ResilientClient) Search(ctx context.Context, params domain.SearchParams) ([]domain.TrialCandidate, error) {
	if r.cache != nil {
		if trials, found, err := r.cache.GetSearch(ctx, params); err == nil && found {
			return trials, nil
		}
	}

	result, err := r.trialsBreaker.Execute(func() (interface{}, error) {
		return r.trials.Search(ctx, params)
	})
	if err != nil {
		return nil, upstreamError("clinical trials service", err)
	}

	trials := result.([]domain.TrialCandidate)

	if r.cache != nil {
		if cacheErr := r.cache.SetSearch(ctx, params, trials, 0); cacheErr != nil {
			r.logger.WithError(cacheErr).Warn("Failed to cache trial search results")
		}
	}

	return trials, nil
}

// GetTrial fetches a trial detail record, preferring the in-process LRU,
// then Redis, then the registry.
func (r *ResilientClient) GetTrial(ctx context.Context, nctID string) (*domain.TrialCandidate, error) {
	if trial, ok := r.trialLRU.Get(nctID); ok {
		return trial, nil
	}

	if r.cache != nil {
		if trial, found, err := r.cache.GetTrial(ctx, nctID); err == nil && found {
			r.trialLRU.Add(nctID, trial)
			return trial, nil
		}
	}

	result, err := r.trialsBreaker.Execute(func() (interface{}, error) {
		return r.trials.GetTrial(ctx, nctID)
	})
	if err != nil {
		return nil, upstreamError("clinical trials service", err)
	}

	trial := result.(*domain.TrialCandidate)
	r.trialLRU.Add(nctID, trial)

	if r.cache != nil {
		if cacheErr := r.cache.SetTrial(ctx, trial, 0); cacheErr != nil {
			r.logger.WithError(cacheErr).Warn("Failed to cache trial detail")
		}
	}

	return trial, nil
}

// SearchLiterature queries PubMed with circuit breaking and caching.
func (r *ResilientClient) SearchLiterature(ctx context.Context, query string, maxResults int) (*domain.LiteratureResult, error) {
	if r.cache != nil {
		if lit, found, err := r.cache.GetLiterature(ctx, query); err == nil && found {
			return lit, nil
		}
	}

	result, err := r.pubMedBreaker.Execute(func() (interface{}, error) {
		return r.pubMed.SearchLiterature(ctx, query, maxResults)
	})
	if err != nil {
		return nil, upstreamError("literature service", err)
	}

	lit := result.(*domain.LiteratureResult)

	if r.cache != nil {
		if cacheErr := r.cache.SetLiterature(ctx, query, lit, 0); cacheErr != nil {
			r.logger.WithError(cacheErr).Warn("Failed to cache literature result")
		}
	}

	return lit, nil
}

// AdverseEvents queries openFDA adverse events with circuit breaking.
func (r *ResilientClient) AdverseEvents(ctx context.Context, drugName string, limit int) ([]domain.AdverseEvent, error) {
	result, err := r.openFDABreaker.Execute(func() (interface{}, error) {
		return r.openFDA.AdverseEvents(ctx, drugName, limit)
	})
	if err != nil {
		return nil, upstreamError("drug safety service", err)
	}
	return result.([]domain.AdverseEvent), nil
}

// Recalls queries openFDA enforcement reports with circuit breaking.
func (r *ResilientClient) Recalls(ctx context.Context, drugName string, limit int) ([]domain.DrugRecall, error) {
	result, err := r.openFDABreaker.Execute(func() (interface{}, error) {
		return r.openFDA.Recalls(ctx, drugName, limit)
	})
	if err != nil {
		return nil, upstreamError("drug safety service", err)
	}
	return result.([]domain.DrugRecall), nil
}

// SafetyReport aggregates adverse events and recalls for one drug, consulting
// the Redis tier first.
func (r *ResilientClient) SafetyReport(ctx context.Context, drugName string, limit int) (*domain.DrugSafetyReport, error) {
	if r.cache != nil {
		if report, found, err := r.cache.GetSafetyReport(ctx, drugName); err == nil && found {
			return report, nil
		}
	}

	events, err := r.AdverseEvents(ctx, drugName, limit)
	if err != nil {
		return nil, err
	}

	recalls, err := r.Recalls(ctx, drugName, limit)
	if err != nil {
		return nil, err
	}

	report := &domain.DrugSafetyReport{
		DrugName:      drugName,
		AdverseEvents: events,
		Recalls:       recalls,
		GeneratedAt:   time.Now().UTC(),
	}

	if r.cache != nil {
		if cacheErr := r.cache.SetSafetyReport(ctx, report, 0); cacheErr != nil {
			r.logger.WithError(cacheErr).Warn("Failed to cache drug safety report")
		}
	}

	return report, nil
}

// BreakerStates returns the current state of every circuit breaker, keyed by
// service name. Exposed on the health endpoint.
func (r *ResilientClient) BreakerStates() map[string]string {
	return map[string]string{
		"clinical_trials": r.trialsBreaker.State().String(),
		"pubmed":          r.pubMedBreaker.State().String(),
		"openfda":         r.openFDABreaker.State().String(),
	}
}

// Close releases the Redis connection if one is configured.
func (r *ResilientClient) Close() error {
	if r.cache != nil {
		return r.cache.Close()
	}
	return nil
}

// upstreamError maps breaker and client failures onto the shared external API
// error code. Typed errors from the clients, such as not-found and invalid
// input, pass through unchanged.
func upstreamError(service string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return domain.NewAgentError(domain.ErrExternalAPI,
			fmt.Sprintf("%s unavailable (circuit breaker open)", service), "", "")
	}

	var agentErr *domain.AgentError
	if errors.As(err, &agentErr) {
		return err
	}

	return domain.NewAgentError(domain.ErrExternalAPI,
		fmt.Sprintf("%s request failed", service), err.Error(), "")
}
