package feedback

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
)

// SQLiteStore implements the Store interface using SQLite, for
// deployments without Postgres.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a SQLite feedback store, creating the database
// file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode for better concurrency
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

// createSchema creates the feedback table and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS recommendation_feedback (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		assessment_id TEXT NOT NULL,
		recommendation_rank INTEGER NOT NULL,
		patient_id TEXT DEFAULT '',
		decision TEXT NOT NULL,
		clinician_id TEXT DEFAULT '',
		notes TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(assessment_id, recommendation_rank)
	);

	CREATE INDEX IF NOT EXISTS idx_feedback_assessment ON recommendation_feedback(assessment_id);
	CREATE INDEX IF NOT EXISTS idx_feedback_created_at ON recommendation_feedback(created_at);
	`

	_, err := db.Exec(schema)
	return err
}

// scanner covers sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanFeedback(s scanner) (*Feedback, error) {
	fb := &Feedback{}
	var decision string

	err := s.Scan(
		&fb.ID, &fb.AssessmentID, &fb.RecommendationRank, &fb.PatientID,
		&decision, &fb.ClinicianID, &fb.Notes, &fb.CreatedAt, &fb.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	fb.Decision = Decision(decision)
	return fb, nil
}

// Save stores or updates the decision for an assessment and rank.
func (s *SQLiteStore) Save(ctx context.Context, feedback *Feedback) error {
	now := time.Now()

	query := `
		INSERT INTO recommendation_feedback (
			assessment_id, recommendation_rank, patient_id,
			decision, clinician_id, notes, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(assessment_id, recommendation_rank) DO UPDATE SET
			patient_id = excluded.patient_id,
			decision = excluded.decision,
			clinician_id = excluded.clinician_id,
			notes = excluded.notes,
			updated_at = excluded.updated_at
	`

	result, err := s.db.ExecContext(ctx, query,
		feedback.AssessmentID,
		feedback.RecommendationRank,
		feedback.PatientID,
		string(feedback.Decision),
		feedback.ClinicianID,
		feedback.Notes,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to save feedback: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		feedback.ID = id
	}
	feedback.UpdatedAt = now
	return nil
}

// Get retrieves the decision for an assessment and rank.
func (s *SQLiteStore) Get(ctx context.Context, assessmentID string, rank int) (*Feedback, error) {
	query := `
		SELECT id, assessment_id, recommendation_rank, patient_id,
			decision, clinician_id, notes, created_at, updated_at
		FROM recommendation_feedback
		WHERE assessment_id = ? AND recommendation_rank = ?
		LIMIT 1
	`

	fb, err := scanFeedback(s.db.QueryRowContext(ctx, query, assessmentID, rank))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feedback: %w", err)
	}
	return fb, nil
}

// ListForAssessment returns every decision for one assessment.
func (s *SQLiteStore) ListForAssessment(ctx context.Context, assessmentID string) ([]*Feedback, error) {
	query := `
		SELECT id, assessment_id, recommendation_rank, patient_id,
			decision, clinician_id, notes, created_at, updated_at
		FROM recommendation_feedback
		WHERE assessment_id = ?
		ORDER BY recommendation_rank
	`

	rows, err := s.db.QueryContext(ctx, query, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	defer rows.Close()

	var result []*Feedback
	for rows.Next() {
		fb, err := scanFeedback(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, fb)
	}

	return result, rows.Err()
}

// Count returns the total number of recorded decisions.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM recommendation_feedback").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count feedback: %w", err)
	}
	return count, nil
}

// ExportJSON exports all feedback to a JSON writer.
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	query := `
		SELECT id, assessment_id, recommendation_rank, patient_id,
			decision, clinician_id, notes, created_at, updated_at
		FROM recommendation_feedback
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to list feedback: %w", err)
	}
	defer rows.Close()

	var all []*Feedback
	for rows.Next() {
		fb, err := scanFeedback(rows)
		if err != nil {
			return fmt.Errorf("failed to scan row: %w", err)
		}
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
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
