// Package profilestore provides persistent storage for patient profiles.
// Profiles are stored as JSON payloads with a few indexed columns so the
// dashboard can list and reload them between sessions.
package profilestore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/trial-match-server/internal/domain"
)

// ProfileExport represents the JSON export format.
type ProfileExport struct {
	Version    string                   `json:"version"`
	ExportedAt time.Time                `json:"exported_at"`
	Count      int                      `json:"count"`
	Profiles   []*domain.PatientProfile `json:"profiles"`
}

// encodeProfile serializes a profile to its stored payload.
func encodeProfile(profile *domain.PatientProfile) (string, error) {
	payload, err := json.Marshal(profile)
	if err != nil {
		return "", fmt.Errorf("failed to marshal profile %s: %w", profile.PatientID, err)
	}
	return string(payload), nil
}

// decodeProfile deserializes a stored payload back into a profile.
func decodeProfile(payload string) (*domain.PatientProfile, error) {
	profile := &domain.PatientProfile{}
	if err := json.Unmarshal([]byte(payload), profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile payload: %w", err)
	}
	return profile, nil
}
