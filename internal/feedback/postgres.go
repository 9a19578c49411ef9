package feedback

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL feedback store. The schema is
// expected to exist already, created via migrations.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL creates a PostgreSQL feedback store from a
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

// Save stores or updates the decision for an assessment and rank.
func (s *PostgresStore) Save(ctx context.Context, feedback *Feedback) error {
	now := time.Now()

	query := `
		INSERT INTO recommendation_feedback (
			assessment_id, recommendation_rank, patient_id,
			decision, clinician_id, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (assessment_id, recommendation_rank) DO UPDATE SET
			patient_id = EXCLUDED.patient_id,
			decision = EXCLUDED.decision,
			clinician_id = EXCLUDED.clinician_id,
			notes = EXCLUDED.notes,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`

	err := s.db.QueryRowContext(ctx, query,
		feedback.AssessmentID,
		feedback.RecommendationRank,
		feedback.PatientID,
		string(feedback.Decision),
		feedback.ClinicianID,
		feedback.Notes,
		now,
		now,
	).Scan(&feedback.ID, &feedback.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to save feedback: %w", err)
	}

	feedback.UpdatedAt = now
	return nil
}

// Get retrieves the decision for an assessment and rank.
func (s *PostgresStore) Get(ctx context.Context, assessmentID string, rank int) (*Feedback, error) {
	query := `
		SELECT id, assessment_id, recommendation_rank, patient_id,
			decision, clinician_id, notes, created_at, updated_at
		FROM recommendation_feedback
		WHERE assessment_id = $1 AND recommendation_rank = $2
		LIMIT 1
	`

	fb := &Feedback{}
	var decision string

	err := s.db.QueryRowContext(ctx, query, assessmentID, rank).Scan(
		&fb.ID, &fb.AssessmentID, &fb.RecommendationRank, &fb.PatientID,
		&decision, &fb.ClinicianID, &fb.Notes, &fb.CreatedAt, &fb.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feedback: %w", err)
	}

	fb.Decision = Decision(decision)
	return fb, nil
}

// ListForAssessment returns every decision for one assessment.
func (s *PostgresStore) ListForAssessment(ctx context.Context, assessmentID string) ([]*Feedback, error) {
	query := `
		SELECT id, assessment_id, recommendation_rank, patient_id,
			decision, clinician_id, notes, created_at, updated_at
		FROM recommendation_feedback
		WHERE assessment_id = $1
		ORDER BY recommendation_rank
	`

	rows, err := s.db.QueryContext(ctx, query, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	defer rows.Close()

	var result []*Feedback
	for rows.Next() {
		fb := &Feedback{}
		var decision string

		err := rows.Scan(
			&fb.ID, &fb.AssessmentID, &fb.RecommendationRank, &fb.PatientID,
			&decision, &fb.ClinicianID, &fb.Notes, &fb.CreatedAt, &fb.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		fb.Decision = Decision(decision)
		result = append(result, fb)
	}

	return result, rows.Err()
}

// Count returns the total number of recorded decisions.
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM recommendation_feedback").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count feedback: %w", err)
	}
	return count, nil
}

// pgMaxExportLimit bounds a single export.
const pgMaxExportLimit = 1000000

// ExportJSON exports all feedback to a JSON writer.
func (s *PostgresStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	query := `
		SELECT id, assessment_id, recommendation_rank, patient_id,
			decision, clinician_id, notes, created_at, updated_at
		FROM recommendation_feedback
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := s.db.QueryContext(ctx, query, pgMaxExportLimit)
	if err != nil {
		return fmt.Errorf("failed to list feedback: %w", err)
	}
	defer rows.Close()

	var all []*Feedback
	for rows.Next() {
		fb := &Feedback{}
		var decision string
		if err := rows.Scan(
			&fb.ID, &fb.AssessmentID, &fb.RecommendationRank, &fb.PatientID,
			&decision, &fb.ClinicianID, &fb.Notes, &fb.CreatedAt, &fb.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to scan row: %w", err)
		}
		fb.Decision = Decision(decision)
		all = append(all, fb)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	export := &Export{
		Version:    "1.0",
		ExportedAt: time.Now(),
		Count:      len(all),
		Feedback:   all,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// Close closes the store and releases resources.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
