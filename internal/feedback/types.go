// Package feedback stores clinician decisions on generated
// recommendations. Accept/reject/modify outcomes feed formulary review;
// recommendations themselves are never mutated after generation.
package feedback

import (
	"context"
	"io"
	"time"
)

// Decision is the clinician's verdict on one recommendation.
type Decision string

const (
	DecisionAccepted Decision = "ACCEPTED"
	DecisionRejected Decision = "REJECTED"
	DecisionModified Decision = "MODIFIED"
)

// IsValid reports whether the decision is one of the three verdicts.
func (d Decision) IsValid() bool {
	return d == DecisionAccepted || d == DecisionRejected || d == DecisionModified
}

// Feedback records one clinician decision, keyed by the assessment and
// the recommendation's rank within it. A repeat submission for the same
// key updates the earlier verdict.
type Feedback struct {
	ID                 int64     `json:"id,omitempty"`
	AssessmentID       string    `json:"assessment_id"`
	RecommendationRank int       `json:"recommendation_rank"`
	PatientID          string    `json:"patient_id,omitempty"`
	Decision           Decision  `json:"decision"`
	ClinicianID        string    `json:"clinician_id,omitempty"`
	Notes              string    `json:"notes,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Store defines feedback storage operations.
type Store interface {
	// Save stores or updates the decision for an assessment and rank.
	Save(ctx context.Context, feedback *Feedback) error

	// Get retrieves the decision for an assessment and rank, or nil
	// when none is recorded.
	Get(ctx context.Context, assessmentID string, rank int) (*Feedback, error)

	// ListForAssessment returns every decision recorded against one
	// assessment, ordered by rank.
	ListForAssessment(ctx context.Context, assessmentID string) ([]*Feedback, error)

	// Count returns the total number of recorded decisions.
	Count(ctx context.Context) (int64, error)

	// ExportJSON exports all feedback to a JSON writer.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// Close closes the store and releases resources.
	Close() error
}

// Export is the JSON export envelope.
type Export struct {
	Version    string      `json:"version"`
	ExportedAt time.Time   `json:"exported_at"`
	Count      int         `json:"count"`
	Feedback   []*Feedback `json:"feedback"`
}
