package domain

import (
	"context"
	"time"
)

// FormularyRepository resolves the plan's active formulary snapshot. The
// engine reads the snapshot once per assessment and treats it as immutable.
type FormularyRepository interface {
	// ActiveFormulary returns every drug in the most recent snapshot
	// uploaded for the plan.
	ActiveFormulary(ctx context.Context, planID string) ([]FormularyDrug, error)

	// FindDrug looks a drug up by brand or generic name within the
	// plan's active snapshot. Returns ErrNotFound when absent.
	FindDrug(ctx context.Context, planID, name string) (*FormularyDrug, error)
}

// ContraindicationRepository reads documented patient contraindications.
type ContraindicationRepository interface {
	ListForPatient(ctx context.Context, patientID string) ([]Contraindication, error)
}

// ClaimsRepository reads recent pharmacy claims for adherence context.
type ClaimsRepository interface {
	RecentClaims(ctx context.Context, patientID string, since time.Time) ([]Claim, error)
}

// PatientRepository resolves the patient's active biologic therapy.
type PatientRepository interface {
	// CurrentBiologic returns the first active biologic on record, or
	// nil when the patient has none.
	CurrentBiologic(ctx context.Context, patientID string) (*CurrentBiologic, error)
}

// EfficacyRanker orders same-tier candidates by expected efficacy for a
// patient profile. Implementations must never block the cascade: on any
// backend failure they degrade to a deterministic order and report it in
// the per-candidate reasoning, returning a nil error.
type EfficacyRanker interface {
	Rank(ctx context.Context, candidates []FormularyDrug, profile ClinicalProfile) ([]RankedCandidate, error)

	// Name identifies the strategy for logging and rationale text.
	Name() string
}

// EvidenceSearcher returns titled sources supporting dose-reduction
// rationales. An unavailable backend yields an error the caller replaces
// with fixed guideline citations.
type EvidenceSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]EvidenceSource, error)
}

// ConfigManager exposes application configuration to the wiring layer.
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	GetDatabaseConfig() *DatabaseConfig
	GetDatabaseConnectionString() string
	Validate() error
	IsProduction() bool
}
