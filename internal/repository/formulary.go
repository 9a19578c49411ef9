// Package repository implements Postgres persistence for formulary
// snapshots and patient clinical data, plus an in-memory variant used by
// tests and single-node deployments without a database.
package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/biologic-formulary-engine/internal/domain"
)

// FormularyRepository reads plan formulary snapshots. Assessments always
// run against the most recent snapshot for the plan; superseded snapshots
// are kept for audit but never queried here.
type FormularyRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewFormularyRepository creates a formulary repository.
func NewFormularyRepository(db *pgxpool.Pool, logger *logrus.Logger) *FormularyRepository {
	return &FormularyRepository{
		db:  db,
		log: logger,
	}
}

// ActiveFormulary returns every drug in the plan's most recent snapshot.
func (r *FormularyRepository) ActiveFormulary(ctx context.Context, planID string) ([]domain.FormularyDrug, error) {
	query := `
		SELECT d.id, d.drug_name, d.generic_name, d.drug_class, d.tier,
			   d.requires_pa, d.fda_indications, d.biosimilar_of,
			   d.annual_cost_wac, d.snapshot_id
		FROM formulary_drugs d
		JOIN formulary_snapshots s ON s.id = d.snapshot_id
		WHERE s.plan_id = $1
		  AND s.id = (
			SELECT id FROM formulary_snapshots
			WHERE plan_id = $1
			ORDER BY uploaded_at DESC
			LIMIT 1
		  )
		ORDER BY d.tier, d.drug_name`

	rows, err := r.db.Query(ctx, query, planID)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"plan_id": planID,
			"error":   err,
		}).Error("Failed to load active formulary")
		return nil, fmt.Errorf("loading active formulary: %w", err)
	}
	defer rows.Close()

	var drugs []domain.FormularyDrug
	for rows.Next() {
		drug, err := scanFormularyDrug(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning formulary drug: %w", err)
		}
		drugs = append(drugs, drug)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating formulary rows: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"plan_id":    planID,
		"drug_count": len(drugs),
	}).Debug("Loaded active formulary snapshot")

	return drugs, nil
}

// FindDrug looks a drug up by brand or generic name within the plan's
// active snapshot.
func (r *FormularyRepository) FindDrug(ctx context.Context, planID, name string) (*domain.FormularyDrug, error) {
	query := `
		SELECT d.id, d.drug_name, d.generic_name, d.drug_class, d.tier,
			   d.requires_pa, d.fda_indications, d.biosimilar_of,
			   d.annual_cost_wac, d.snapshot_id
		FROM formulary_drugs d
		JOIN formulary_snapshots s ON s.id = d.snapshot_id
		WHERE s.plan_id = $1
		  AND s.id = (
			SELECT id FROM formulary_snapshots
			WHERE plan_id = $1
			ORDER BY uploaded_at DESC
			LIMIT 1
		  )
		  AND (LOWER(d.drug_name) = LOWER($2) OR LOWER(d.generic_name) = LOWER($2))
		LIMIT 1`

	row := r.db.QueryRow(ctx, query, planID, name)
	drug, err := scanFormularyDrug(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("drug %q not on active formulary: %w", name, domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"plan_id": planID,
			"drug":    name,
			"error":   err,
		}).Error("Failed to find formulary drug")
		return nil, fmt.Errorf("finding formulary drug: %w", err)
	}
	return &drug, nil
}

// rowScanner covers both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanFormularyDrug(row rowScanner) (domain.FormularyDrug, error) {
	var drug domain.FormularyDrug
	var indications []string
	err := row.Scan(
		&drug.ID,
		&drug.DrugName,
		&drug.GenericName,
		&drug.DrugClass,
		&drug.Tier,
		&drug.RequiresPA,
		&indications,
		&drug.BiosimilarOf,
		&drug.AnnualCostWAC,
		&drug.SnapshotID,
	)
	if err != nil {
		return domain.FormularyDrug{}, err
	}
	drug.FDAIndications = make([]domain.Diagnosis, 0, len(indications))
	for _, ind := range indications {
		drug.FDAIndications = append(drug.FDAIndications, domain.Diagnosis(ind))
	}
	return drug, nil
}
