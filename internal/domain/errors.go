package domain

import (
	"errors"
	"fmt"
	"time"
)

// Error codes for different failure scenarios.
const (
	ErrInvalidInput     = "INVALID_INPUT"
	ErrMissingBiologic  = "MISSING_CURRENT_BIOLOGIC"
	ErrEmptyFormulary   = "EMPTY_FORMULARY"
	ErrNoIndicatedDrugs = "NO_INDICATED_CANDIDATES"
	ErrDatabaseError    = "DATABASE_ERROR"
	ErrExternalAPI      = "EXTERNAL_API_ERROR"
	ErrRecommendation   = "RECOMMENDATION_ERROR"
	ErrInternalServer   = "INTERNAL_SERVER_ERROR"
)

// AssessmentError is a standardized error response for assessment failures.
// Only the input-error taxonomy surfaces as AssessmentError; inference
// ambiguity and collaborator failures degrade inside the engine instead.
type AssessmentError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// Error implements the error interface.
func (e *AssessmentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewAssessmentError creates a new AssessmentError with timestamp.
func NewAssessmentError(code, message, details string) *AssessmentError {
	return &AssessmentError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}
}

// IsInputError reports whether err is a fail-fast input error the caller
// should surface as a client-side problem rather than retry.
func IsInputError(err error) bool {
	var ae *AssessmentError
	if errors.As(err, &ae) {
		switch ae.Code {
		case ErrInvalidInput, ErrMissingBiologic, ErrEmptyFormulary, ErrNoIndicatedDrugs:
			return true
		}
	}
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ValidationError represents input validation errors.
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}
