package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/biologic-formulary-engine/internal/domain"
)

// claimsLookback bounds the claims window bundled with an assessment.
const claimsLookback = 12 * 30 * 24 * time.Hour

// PatientDataLoader assembles everything the engine needs for one
// assessment from the persistence collaborators. Contraindication and
// claims failures degrade to empty sets with a warning; only a missing
// formulary is fatal, since the engine cannot recommend without one.
type PatientDataLoader struct {
	formulary  domain.FormularyRepository
	patients   domain.PatientRepository
	conditions domain.ContraindicationRepository
	claims     domain.ClaimsRepository
	log        *logrus.Logger
}

// NewPatientDataLoader creates a loader over the repositories.
func NewPatientDataLoader(
	formulary domain.FormularyRepository,
	patients domain.PatientRepository,
	conditions domain.ContraindicationRepository,
	claims domain.ClaimsRepository,
	log *logrus.Logger,
) *PatientDataLoader {
	return &PatientDataLoader{
		formulary:  formulary,
		patients:   patients,
		conditions: conditions,
		claims:     claims,
		log:        log,
	}
}

// Load bundles the patient's clinical data with the plan's active
// formulary snapshot.
func (l *PatientDataLoader) Load(ctx context.Context, patientID, planID string) (*domain.PatientWithData, error) {
	formulary, err := l.formulary.ActiveFormulary(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("loading formulary for plan %s: %w", planID, err)
	}

	biologic, err := l.patients.CurrentBiologic(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("loading current biologic: %w", err)
	}

	conditions, err := l.conditions.ListForPatient(ctx, patientID)
	if err != nil {
		l.log.WithFields(logrus.Fields{
			"patient_id": patientID,
			"error":      err,
		}).Warn("Contraindications unavailable, screening against empty set")
		conditions = nil
	}

	claims, err := l.claims.RecentClaims(ctx, patientID, time.Now().Add(-claimsLookback))
	if err != nil {
		l.log.WithFields(logrus.Fields{
			"patient_id": patientID,
			"error":      err,
		}).Warn("Claims history unavailable")
		claims = nil
	}

	return &domain.PatientWithData{
		PatientID:         patientID,
		PlanID:            planID,
		CurrentBiologic:   biologic,
		RecentClaims:      claims,
		Contraindications: conditions,
		Formulary:         formulary,
	}, nil
}
