package profilestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"time"

	_ "github.com/lib/pq"

	"github.com/trial-match-server/internal/domain"
)

// PostgresStore implements domain.ProfileStore using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL profile store.
// It expects the database and schema to already exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL creates a new PostgreSQL profile store from a
// connection URL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Save stores or updates a patient profile keyed by patient ID.
func (s *PostgresStore) Save(ctx context.Context, profile *domain.PatientProfile) error {
	if err := profile.Validate(); err != nil {
		return err
	}

	payload, err := encodeProfile(profile)
	if err != nil {
		return err
	}

	now := time.Now()

	query := `
		INSERT INTO patient_profiles (patient_id, cancer_type, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (patient_id) DO UPDATE SET
			cancer_type = EXCLUDED.cancer_type,
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at
	`

	if _, err := s.db.ExecContext(ctx, query, profile.PatientID, profile.CancerType, payload, now, now); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}

	return nil
}

// Get retrieves a profile by patient ID.
func (s *PostgresStore) Get(ctx context.Context, patientID string) (*domain.PatientProfile, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM patient_profiles WHERE patient_id = $1", patientID,
	).Scan(&payload)

	if err == sql.ErrNoRows {
		return nil, domain.NewAgentError(domain.ErrNotFound, "patient profile not found", patientID, "")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	return decodeProfile(payload)
}

// List returns stored profiles with pagination, most recent first.
func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]*domain.PatientProfile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM patient_profiles
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var result []*domain.PatientProfile
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		profile, err := decodeProfile(payload)
		if err != nil {
			return nil, err
		}
		result = append(result, profile)
	}
	return result, rows.Err()
}

// Count returns the total number of stored profiles.
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM patient_profiles").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count profiles: %w", err)
	}
	return count, nil
}

// Delete removes a profile by patient ID.
func (s *PostgresStore) Delete(ctx context.Context, patientID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM patient_profiles WHERE patient_id = $1", patientID)
	if err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	return nil
}

// pgMaxExportLimit is the maximum number of entries to export at once.
const pgMaxExportLimit = 1000000

// ExportJSON exports all profiles to a JSON writer.
func (s *PostgresStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.List(ctx, pgMaxExportLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list profiles: %w", err)
	}

	export := &ProfileExport{
		Version:    "1.0",
		ExportedAt: time.Now(),
		Count:      len(all),
		Profiles:   all,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// ImportJSON imports profiles from a JSON reader. Existing patient IDs are
// skipped.
func (s *PostgresStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	var export ProfileExport
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return 0, 0, fmt.Errorf("failed to decode JSON: %w", err)
	}

	for _, profile := range export.Profiles {
		var exists int
		checkErr := s.db.QueryRowContext(ctx,
			"SELECT 1 FROM patient_profiles WHERE patient_id = $1", profile.PatientID,
		).Scan(&exists)

		if checkErr == nil {
			skipped++
			continue
		}
		if checkErr != sql.ErrNoRows {
			return imported, skipped, fmt.Errorf("failed to check existing: %w", checkErr)
		}

		if err := s.Save(ctx, profile); err != nil {
			return imported, skipped, fmt.Errorf("failed to save: %w", err)
		}
		imported++
	}

	return imported, skipped, nil
}

// Close closes the store and releases resources.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
