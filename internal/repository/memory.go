package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/biologic-formulary-engine/internal/domain"
)

// MemoryStore is an in-memory implementation of the persistence
// interfaces, used by tests and by single-node deployments running
// without Postgres. All methods are safe for concurrent use.
type MemoryStore struct {
	mu                sync.RWMutex
	formularies       map[string][]domain.FormularyDrug
	biologics         map[string]*domain.CurrentBiologic
	contraindications map[string][]domain.Contraindication
	claims            map[string][]domain.Claim
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		formularies:       map[string][]domain.FormularyDrug{},
		biologics:         map[string]*domain.CurrentBiologic{},
		contraindications: map[string][]domain.Contraindication{},
		claims:            map[string][]domain.Claim{},
	}
}

// SetFormulary replaces the plan's formulary snapshot.
func (s *MemoryStore) SetFormulary(planID string, drugs []domain.FormularyDrug) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.formularies[planID] = append([]domain.FormularyDrug(nil), drugs...)
}

// SetPatient seeds one patient's clinical data.
func (s *MemoryStore) SetPatient(patientID string, biologic *domain.CurrentBiologic, conditions []domain.Contraindication, claims []domain.Claim) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.biologics[patientID] = biologic
	s.contraindications[patientID] = append([]domain.Contraindication(nil), conditions...)
	s.claims[patientID] = append([]domain.Claim(nil), claims...)
}

// ActiveFormulary implements domain.FormularyRepository.
func (s *MemoryStore) ActiveFormulary(_ context.Context, planID string) ([]domain.FormularyDrug, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	drugs, ok := s.formularies[planID]
	if !ok {
		return nil, nil
	}
	return append([]domain.FormularyDrug(nil), drugs...), nil
}

// FindDrug implements domain.FormularyRepository.
func (s *MemoryStore) FindDrug(_ context.Context, planID, name string) (*domain.FormularyDrug, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, drug := range s.formularies[planID] {
		if drug.Matches(name) {
			d := drug
			return &d, nil
		}
	}
	return nil, fmt.Errorf("drug %q not on active formulary: %w", strings.TrimSpace(name), domain.ErrNotFound)
}

// CurrentBiologic implements domain.PatientRepository.
func (s *MemoryStore) CurrentBiologic(_ context.Context, patientID string) (*domain.CurrentBiologic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	biologic := s.biologics[patientID]
	if biologic == nil {
		return nil, nil
	}
	b := *biologic
	return &b, nil
}

// ListForPatient implements domain.ContraindicationRepository.
func (s *MemoryStore) ListForPatient(_ context.Context, patientID string) ([]domain.Contraindication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Contraindication(nil), s.contraindications[patientID]...), nil
}

// RecentClaims implements domain.ClaimsRepository.
func (s *MemoryStore) RecentClaims(_ context.Context, patientID string, since time.Time) ([]domain.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var recent []domain.Claim
	for _, claim := range s.claims[patientID] {
		if !claim.FilledAt.Before(since) {
			recent = append(recent, claim)
		}
	}
	return recent, nil
}
