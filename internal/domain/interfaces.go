package domain

import (
	"context"
)

// TrialSearcher is the contract with the trial-search collaborator. The
// implementation is responsible for contacting the registry and returning
// already-deserialized candidate records; the matching core never performs
// I/O itself.
type TrialSearcher interface {
	Search(ctx context.Context, params SearchParams) ([]TrialCandidate, error)
	GetTrial(ctx context.Context, nctID string) (*TrialCandidate, error)
}

// LiteratureSearcher retrieves publications related to a free-text query.
type LiteratureSearcher interface {
	SearchLiterature(ctx context.Context, query string, maxResults int) (*LiteratureResult, error)
}

// DrugSafetySource retrieves adverse events and recalls for a drug.
type DrugSafetySource interface {
	AdverseEvents(ctx context.Context, drugName string, limit int) ([]AdverseEvent, error)
	Recalls(ctx context.Context, drugName string, limit int) ([]DrugRecall, error)
}

// ProfileStore persists patient profiles between dashboard sessions.
type ProfileStore interface {
	Save(ctx context.Context, profile *PatientProfile) error
	Get(ctx context.Context, patientID string) (*PatientProfile, error)
	List(ctx context.Context, limit, offset int) ([]*PatientProfile, error)
	Delete(ctx context.Context, patientID string) error
	Close() error
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	GetMatchingConfig() *MatchingConfig
	GetExternalAPIConfig() *ExternalAPIConfig
	Reload() error
	Validate() error
}
