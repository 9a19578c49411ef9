package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/biologic-formulary-engine/internal/domain"
)

// PatientRepository reads patient clinical data: the active biologic,
// documented contraindications, and recent pharmacy claims.
type PatientRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewPatientRepository creates a patient repository.
func NewPatientRepository(db *pgxpool.Pool, logger *logrus.Logger) *PatientRepository {
	return &PatientRepository{
		db:  db,
		log: logger,
	}
}

// CurrentBiologic returns the patient's active biologic, or nil when the
// patient has none on record. Multiple active rows are a data-entry
// anomaly; the most recently started one wins.
func (r *PatientRepository) CurrentBiologic(ctx context.Context, patientID string) (*domain.CurrentBiologic, error) {
	query := `
		SELECT drug_name, dose, frequency
		FROM patient_biologics
		WHERE patient_id = $1 AND active = true
		ORDER BY started_at DESC
		LIMIT 1`

	var biologic domain.CurrentBiologic
	err := r.db.QueryRow(ctx, query, patientID).Scan(
		&biologic.DrugName,
		&biologic.Dose,
		&biologic.Frequency,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		r.log.WithFields(logrus.Fields{
			"patient_id": patientID,
			"error":      err,
		}).Error("Failed to load current biologic")
		return nil, fmt.Errorf("loading current biologic: %w", err)
	}
	return &biologic, nil
}

// ListForPatient returns the patient's documented contraindications.
func (r *PatientRepository) ListForPatient(ctx context.Context, patientID string) ([]domain.Contraindication, error) {
	query := `
		SELECT type, COALESCE(details, '')
		FROM contraindications
		WHERE patient_id = $1
		ORDER BY recorded_at`

	rows, err := r.db.Query(ctx, query, patientID)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"patient_id": patientID,
			"error":      err,
		}).Error("Failed to load contraindications")
		return nil, fmt.Errorf("loading contraindications: %w", err)
	}
	defer rows.Close()

	var list []domain.Contraindication
	for rows.Next() {
		var ci domain.Contraindication
		if err := rows.Scan(&ci.Type, &ci.Details); err != nil {
			return nil, fmt.Errorf("scanning contraindication: %w", err)
		}
		list = append(list, ci)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating contraindication rows: %w", err)
	}
	return list, nil
}

// RecentClaims returns pharmacy claims filled at or after since, newest
// first, for adherence context.
func (r *PatientRepository) RecentClaims(ctx context.Context, patientID string, since time.Time) ([]domain.Claim, error) {
	query := `
		SELECT drug_name, filled_at, days_supply, paid_amount
		FROM claims
		WHERE patient_id = $1 AND filled_at >= $2
		ORDER BY filled_at DESC`

	rows, err := r.db.Query(ctx, query, patientID, since)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"patient_id": patientID,
			"error":      err,
		}).Error("Failed to load recent claims")
		return nil, fmt.Errorf("loading recent claims: %w", err)
	}
	defer rows.Close()

	var claims []domain.Claim
	for rows.Next() {
		var claim domain.Claim
		if err := rows.Scan(&claim.DrugName, &claim.FilledAt, &claim.DaysSupply, &claim.PaidAmount); err != nil {
			return nil, fmt.Errorf("scanning claim: %w", err)
		}
		claims = append(claims, claim)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating claim rows: %w", err)
	}
	return claims, nil
}
