// Package repository provides PostgreSQL persistence for recommendation
// history. Each matching run is archived so clinicians can revisit what was
// suggested for a patient and when.
package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/trial-match-server/internal/domain"
)

// RecommendationRepository handles recommendation history persistence
type RecommendationRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewRecommendationRepository creates a new recommendation repository
func NewRecommendationRepository(db *pgxpool.Pool, logger *logrus.Logger) *RecommendationRepository {
	return &RecommendationRepository{
		db:  db,
		log: logger,
	}
}

// Create archives a recommendation result
func (r *RecommendationRepository) Create(ctx context.Context, result *domain.RecommendationResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshaling recommendation: %w", err)
	}

	query := `
		INSERT INTO recommendations (
			recommendation_id, patient_id, trials_count, payload, created_at
		) VALUES (
			$1, $2, $3, $4, $5
		)`

	_, err = r.db.Exec(ctx, query,
		result.RecommendationID,
		result.PatientID,
		result.TrialsCount,
		payload,
		result.Timestamp,
	)

	if err != nil {
		r.log.WithFields(logrus.Fields{
			"recommendation_id": result.RecommendationID,
			"patient_id":        result.PatientID,
			"error":             err,
		}).Error("Failed to archive recommendation")
		return fmt.Errorf("creating recommendation: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"recommendation_id": result.RecommendationID,
		"patient_id":        result.PatientID,
		"trials_count":      result.TrialsCount,
	}).Info("Recommendation archived")

	return nil
}

// GetByID retrieves an archived recommendation by its identifier
func (r *RecommendationRepository) GetByID(ctx context.Context, recommendationID string) (*domain.RecommendationResult, error) {
	query := `SELECT payload FROM recommendations WHERE recommendation_id = $1`

	var payload []byte
	err := r.db.QueryRow(ctx, query, recommendationID).Scan(&payload)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.NewAgentError(domain.ErrNotFound, "recommendation not found", recommendationID, "")
		}
		r.log.WithFields(logrus.Fields{
			"recommendation_id": recommendationID,
			"error":             err,
		}).Error("Failed to get recommendation")
		return nil, fmt.Errorf("getting recommendation: %w", err)
	}

	result := &domain.RecommendationResult{}
	if err := json.Unmarshal(payload, result); err != nil {
		return nil, fmt.Errorf("unmarshaling recommendation payload: %w", err)
	}

	return result, nil
}

// ListByPatient returns archived recommendations for a patient, most recent
// first.
func (r *RecommendationRepository) ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*domain.RecommendationResult, error) {
	query := `
		SELECT payload FROM recommendations
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing recommendations: %w", err)
	}
	defer rows.Close()

	var results []*domain.RecommendationResult
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning recommendation row: %w", err)
		}

		result := &domain.RecommendationResult{}
		if err := json.Unmarshal(payload, result); err != nil {
			return nil, fmt.Errorf("unmarshaling recommendation payload: %w", err)
		}
		results = append(results, result)
	}

	return results, rows.Err()
}

// Delete removes an archived recommendation
func (r *RecommendationRepository) Delete(ctx context.Context, recommendationID string) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM recommendations WHERE recommendation_id = $1", recommendationID)
	if err != nil {
		return fmt.Errorf("deleting recommendation: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return domain.NewAgentError(domain.ErrNotFound, "recommendation not found", recommendationID, "")
	}

	return nil
}
