package domain

import (
	"fmt"
	"strings"
	"time"
)

// Request/Response Models

// AssessmentInput is the caller-supplied request for one assessment.
// It is immutable once created and consumed exactly once.
type AssessmentInput struct {
	PatientID             string    `json:"patient_id"`
	Diagnosis             Diagnosis `json:"diagnosis"`
	HasPsoriaticArthritis bool      `json:"has_psoriatic_arthritis"`
	DLQIScore             int       `json:"dlqi_score"`
	MonthsStable          int       `json:"months_stable"`
	AdditionalNotes       string    `json:"additional_notes,omitempty"`
}

// Validate ensures the assessment input is safe to classify. DLQI is a
// patient-reported 0-30 score; values outside that range are charting
// errors, not clinical signal.
func (a *AssessmentInput) Validate() error {
	if a.PatientID == "" {
		return &ValidationError{Field: "patient_id", Message: "patient ID is required"}
	}
	if !a.Diagnosis.IsValid() {
		return &ValidationError{Field: "diagnosis", Message: "unrecognized diagnosis", Value: string(a.Diagnosis)}
	}
	if a.DLQIScore < 0 || a.DLQIScore > 30 {
		return &ValidationError{Field: "dlqi_score", Message: "DLQI must be between 0 and 30", Value: a.DLQIScore}
	}
	if a.MonthsStable < 0 {
		return &ValidationError{Field: "months_stable", Message: "months stable cannot be negative", Value: a.MonthsStable}
	}
	return nil
}

// Core Data Models

// CurrentBiologic is the patient's active therapy. At most one is
// considered per assessment.
type CurrentBiologic struct {
	DrugName  string `json:"drug_name"`
	Dose      string `json:"dose"`
	Frequency string `json:"frequency"`
}

// FormularyDrug is one row of the plan's active formulary snapshot.
type FormularyDrug struct {
	ID             string        `json:"id"`
	DrugName       string        `json:"drug_name"`
	GenericName    string        `json:"generic_name"`
	DrugClass      string        `json:"drug_class"`
	Tier           int           `json:"tier"`
	RequiresPA     PARequirement `json:"requires_pa"`
	FDAIndications []Diagnosis   `json:"fda_indications,omitempty"`
	BiosimilarOf   string        `json:"biosimilar_of,omitempty"`
	AnnualCostWAC  *float64      `json:"annual_cost_wac,omitempty"`
	SnapshotID     string        `json:"snapshot_id,omitempty"`
}

// IndicatedFor reports whether the drug is indicated for the diagnosis.
// A drug with no indication list is treated as indicated for every
// diagnosis: legacy formulary uploads predate indication capture.
func (d *FormularyDrug) IndicatedFor(diagnosis Diagnosis) bool {
	if len(d.FDAIndications) == 0 {
		return true
	}
	for _, ind := range d.FDAIndications {
		if ind == diagnosis {
			return true
		}
	}
	return false
}

// IndicationKnown reports whether the row carries an explicit indication
// list, so callers can badge legacy rows matched by the permissive default.
func (d *FormularyDrug) IndicationKnown() bool {
	return len(d.FDAIndications) > 0
}

// Matches reports whether name refers to this drug by brand or generic
// name, case-insensitively.
func (d *FormularyDrug) Matches(name string) bool {
	name = strings.TrimSpace(name)
	return strings.EqualFold(d.DrugName, name) || strings.EqualFold(d.GenericName, name)
}

// IsBiosimilarOf reports whether the drug is a biosimilar of the named
// reference product.
func (d *FormularyDrug) IsBiosimilarOf(name string) bool {
	return d.BiosimilarOf != "" && strings.EqualFold(d.BiosimilarOf, strings.TrimSpace(name))
}

// Contraindication is a documented patient condition, read-only input to
// the contraindication filter.
type Contraindication struct {
	Type    ContraindicationType `json:"type"`
	Details string               `json:"details,omitempty"`
}

// ContraindicationReason is one matched rule attached to an excluded drug.
type ContraindicationReason struct {
	Type     ContraindicationType     `json:"type"`
	Severity ContraindicationSeverity `json:"severity"`
	Reason   string                   `json:"reason"`
	Details  string                   `json:"details,omitempty"`
}

// ContraindicatedDrug pairs an excluded formulary drug with every matched
// rule. Computed fresh per assessment, never persisted.
type ContraindicatedDrug struct {
	Drug    FormularyDrug            `json:"drug"`
	Reasons []ContraindicationReason `json:"reasons"`
}

// MaxSeverity returns the strictest severity across all matched reasons.
func (c *ContraindicatedDrug) MaxSeverity() ContraindicationSeverity {
	severity := RELATIVE
	for _, r := range c.Reasons {
		severity = severity.Max(r.Severity)
	}
	return severity
}

// HasAbsolute reports whether any matched rule is an ABSOLUTE exclusion.
func (c *ContraindicatedDrug) HasAbsolute() bool {
	return c.MaxSeverity() == ABSOLUTE
}

// ReasonSummary joins the matched reasons for display and rationale text.
func (c *ContraindicatedDrug) ReasonSummary() string {
	parts := make([]string, 0, len(c.Reasons))
	for _, r := range c.Reasons {
		parts = append(parts, fmt.Sprintf("%s (%s)", r.Reason, r.Severity))
	}
	return strings.Join(parts, "; ")
}

// Claim is a recent pharmacy claim, supplied by the caller for context.
type Claim struct {
	DrugName   string    `json:"drug_name"`
	FilledAt   time.Time `json:"filled_at"`
	DaysSupply int       `json:"days_supply"`
	PaidAmount *float64  `json:"paid_amount,omitempty"`
}

// PatientWithData bundles everything the persistence collaborator resolved
// for one patient before invoking the engine: the active biologic, recent
// claims, documented contraindications, and the plan's most recent
// formulary snapshot.
type PatientWithData struct {
	PatientID         string             `json:"patient_id"`
	PlanID            string             `json:"plan_id,omitempty"`
	CurrentBiologic   *CurrentBiologic   `json:"current_biologic,omitempty"`
	RecentClaims      []Claim            `json:"recent_claims,omitempty"`
	Contraindications []Contraindication `json:"contraindications,omitempty"`
	Formulary         []FormularyDrug    `json:"formulary"`
}

// ClinicalProfile is the patient context handed to the efficacy ranker.
type ClinicalProfile struct {
	Diagnosis             Diagnosis          `json:"diagnosis"`
	HasPsoriaticArthritis bool               `json:"has_psoriatic_arthritis"`
	Contraindications     []Contraindication `json:"contraindications,omitempty"`
	CurrentDrug           string             `json:"current_drug"`
	DLQIScore             int                `json:"dlqi_score"`
	MonthsStable          int                `json:"months_stable"`
	Notes                 string             `json:"notes,omitempty"`
}

// RankedCandidate is one entry of an efficacy ranking.
type RankedCandidate struct {
	Drug       FormularyDrug `json:"drug"`
	Rank       int           `json:"rank"`
	Reasoning  string        `json:"reasoning"`
	KeyFactors []string      `json:"key_factors,omitempty"`
}

// EvidenceSource is a titled citation returned by the knowledge-search
// collaborator for dose-reduction rationales.
type EvidenceSource struct {
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
}

// CostComparison is a tier-based cost estimate. These are assumed annual
// costs by tier, never authoritative claims pricing.
type CostComparison struct {
	CurrentAnnualCost     float64 `json:"current_annual_cost"`
	RecommendedAnnualCost float64 `json:"recommended_annual_cost"`
	AnnualSavings         float64 `json:"annual_savings"`
	SavingsPercent        float64 `json:"savings_percent"`
}

// RecommendationOutput is one ranked treatment recommendation. Not mutated
// after creation; provider accept/reject is recorded by a separate
// feedback workflow keyed by assessment ID and rank.
type RecommendationOutput struct {
	Rank                   int                `json:"rank"`
	Type                   RecommendationType `json:"type"`
	DrugName               string             `json:"drug_name"`
	NewDose                string             `json:"new_dose,omitempty"`
	NewFrequency           string             `json:"new_frequency,omitempty"`
	Cost                   *CostComparison    `json:"cost,omitempty"`
	Rationale              string             `json:"rationale"`
	EvidenceSources        []string           `json:"evidence_sources,omitempty"`
	MonitoringPlan         string             `json:"monitoring_plan,omitempty"`
	Tier                   *int               `json:"tier,omitempty"`
	RequiresPA             *bool              `json:"requires_pa,omitempty"`
	Contraindicated        bool               `json:"contraindicated"`
	ContraindicationReason string             `json:"contraindication_reason,omitempty"`
}

// AssessmentResult is the full output of one assessment.
type AssessmentResult struct {
	AssessmentID         string                 `json:"assessment_id"`
	PatientID            string                 `json:"patient_id"`
	IsStable             bool                   `json:"is_stable"`
	IsFormularyOptimal   bool                   `json:"is_formulary_optimal"`
	Quadrant             TreatmentQuadrant      `json:"quadrant"`
	DoseReductionLevel   DoseReductionLevel     `json:"dose_reduction_level"`
	Recommendations      []RecommendationOutput `json:"recommendations"`
	ContraindicatedDrugs []ContraindicatedDrug  `json:"contraindicated_drugs"`
	GeneratedAt          time.Time              `json:"generated_at"`
	ProcessingTime       time.Duration          `json:"processing_time"`
}

// Configuration Models

// Config is the main application configuration.
type Config struct {
	Server          ServerConfig          `mapstructure:"server"`
	Database        DatabaseConfig        `mapstructure:"database"`
	Reasoning       ReasoningConfig       `mapstructure:"reasoning"`
	KnowledgeSearch KnowledgeSearchConfig `mapstructure:"knowledge_search"`
	Cache           CacheConfig           `mapstructure:"cache"`
	Feedback        FeedbackConfig        `mapstructure:"feedback"`
	Logging         LoggingConfig         `mapstructure:"logging"`
}

// ServerConfig is the HTTP server configuration.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig is the Postgres connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// ReasoningConfig configures the efficacy-reasoning service client.
type ReasoningConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RateLimit  int           `mapstructure:"rate_limit"`
	RetryCount int           `mapstructure:"retry_count"`
}

// KnowledgeSearchConfig configures the evidentiary knowledge-search client.
type KnowledgeSearchConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxSources int           `mapstructure:"max_sources"`
	CacheSize  int           `mapstructure:"cache_size"`
}

// CacheConfig is the optional Redis response cache configuration.
type CacheConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	RedisURL    string        `mapstructure:"redis_url"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	MaxRetries  int           `mapstructure:"max_retries"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
}

// FeedbackConfig selects the provider-feedback store backend.
type FeedbackConfig struct {
	Backend    string `mapstructure:"backend"` // postgres or sqlite
	SQLitePath string `mapstructure:"sqlite_path"`
}

// LoggingConfig is the logrus configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
