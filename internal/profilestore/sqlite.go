package profilestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/trial-match-server/internal/domain"
)

// SQLiteStore implements domain.ProfileStore using SQLite. It is the default
// backend for single-node deployments.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite profile store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// createSchema creates the database tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS patient_profiles (
		patient_id TEXT PRIMARY KEY,
		cancer_type TEXT DEFAULT '',
		payload TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_profiles_cancer_type ON patient_profiles(cancer_type);
	CREATE INDEX IF NOT EXISTS idx_profiles_created_at ON patient_profiles(created_at);
	`

	_, err := db.Exec(schema)
	return err
}

// Save stores or updates a patient profile keyed by patient ID.
func (s *SQLiteStore) Save(ctx context.Context, profile *domain.PatientProfile) error {
	if err := profile.Validate(); err != nil {
		return err
	}

	payload, err := encodeProfile(profile)
	if err != nil {
		return err
	}

	now := time.Now()

	var exists int
	err = s.db.QueryRowContext(ctx,
		"SELECT 1 FROM patient_profiles WHERE patient_id = ?", profile.PatientID,
	).Scan(&exists)

	if err == nil {
		_, err = s.db.ExecContext(ctx, `
			UPDATE patient_profiles SET
				cancer_type = ?,
				payload = ?,
				updated_at = ?
			WHERE patient_id = ?
		`, profile.CancerType, payload, now, profile.PatientID)
		if err != nil {
			return fmt.Errorf("failed to update profile: %w", err)
		}
		return nil
	}

	if err != sql.ErrNoRows {
		return fmt.Errorf("failed to check existing profile: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO patient_profiles (patient_id, cancer_type, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, profile.PatientID, profile.CancerType, payload, now, now)
	if err != nil {
		return fmt.Errorf("failed to insert profile: %w", err)
	}

	return nil
}

// Get retrieves a profile by patient ID. A missing profile yields a NOT_FOUND
// agent error.
func (s *SQLiteStore) Get(ctx context.Context, patientID string) (*domain.PatientProfile, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM patient_profiles WHERE patient_id = ?", patientID,
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
func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]*domain.PatientProfile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM patient_profiles
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
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
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM patient_profiles").Scan(&count)
	return count, err
}

// Delete removes a profile by patient ID.
func (s *SQLiteStore) Delete(ctx context.Context, patientID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM patient_profiles WHERE patient_id = ?", patientID)
	return err
}

// maxExportLimit is the maximum number of entries to export at once.
const maxExportLimit = 1000000

// ExportJSON exports all profiles to a JSON writer.
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.List(ctx, maxExportLimit, 0)
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

// ImportJSON imports profiles from a JSON reader. Profiles whose patient ID
// already exists are skipped rather than overwritten.
func (s *SQLiteStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	var export ProfileExport
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return 0, 0, fmt.Errorf("failed to decode JSON: %w", err)
	}

	for _, profile := range export.Profiles {
		var exists int
		checkErr := s.db.QueryRowContext(ctx,
			"SELECT 1 FROM patient_profiles WHERE patient_id = ?", profile.PatientID,
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
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
