// Package domain contains the core business entities and types for biologic
// formulary decision support: treatment-state classification, contraindication
// screening, and cost-aware recommendation generation for a patient's current
// biologic therapy.
package domain

import (
	"errors"
	"strings"
)

// Diagnosis identifies the indication an assessment is run against.
// Formulary drugs carry FDA indication lists keyed by these values.
type Diagnosis string

const (
	PSORIASIS                Diagnosis = "PSORIASIS"
	PSORIATIC_ARTHRITIS      Diagnosis = "PSORIATIC_ARTHRITIS"
	RHEUMATOID_ARTHRITIS     Diagnosis = "RHEUMATOID_ARTHRITIS"
	ANKYLOSING_SPONDYLITIS   Diagnosis = "ANKYLOSING_SPONDYLITIS"
	CROHNS_DISEASE           Diagnosis = "CROHNS_DISEASE"
	ULCERATIVE_COLITIS       Diagnosis = "ULCERATIVE_COLITIS"
	HIDRADENITIS_SUPPURATIVA Diagnosis = "HIDRADENITIS_SUPPURATIVA"
	ATOPIC_DERMATITIS        Diagnosis = "ATOPIC_DERMATITIS"
)

// TreatmentQuadrant is the classification combining disease stability and
// formulary optimality. STABLE_SHORT_DURATION is the distinguished fifth
// state: disease control without the six months of history required to
// justify dose reduction.
type TreatmentQuadrant string

const (
	STABLE_FORMULARY_ALIGNED   TreatmentQuadrant = "STABLE_FORMULARY_ALIGNED"
	STABLE_NON_FORMULARY       TreatmentQuadrant = "STABLE_NON_FORMULARY"
	UNSTABLE_FORMULARY_ALIGNED TreatmentQuadrant = "UNSTABLE_FORMULARY_ALIGNED"
	UNSTABLE_NON_FORMULARY     TreatmentQuadrant = "UNSTABLE_NON_FORMULARY"
	STABLE_SHORT_DURATION      TreatmentQuadrant = "STABLE_SHORT_DURATION"
)

// RecommendationType categorizes what a recommendation asks the clinician to do.
type RecommendationType string

const (
	CONTINUE_CURRENT     RecommendationType = "CONTINUE_CURRENT"
	DOSE_REDUCTION       RecommendationType = "DOSE_REDUCTION"
	SWITCH_TO_PREFERRED  RecommendationType = "SWITCH_TO_PREFERRED"
	SWITCH_TO_BIOSIMILAR RecommendationType = "SWITCH_TO_BIOSIMILAR"
	THERAPEUTIC_SWITCH   RecommendationType = "THERAPEUTIC_SWITCH"
	OPTIMIZE_CURRENT     RecommendationType = "OPTIMIZE_CURRENT"
)

// ContraindicationType enumerates the patient conditions screened against
// drug classes by the contraindication rule table.
type ContraindicationType string

const (
	HEART_FAILURE              ContraindicationType = "HEART_FAILURE"
	DEMYELINATING_DISEASE      ContraindicationType = "DEMYELINATING_DISEASE"
	LYMPHOMA                   ContraindicationType = "LYMPHOMA"
	MALIGNANCY                 ContraindicationType = "MALIGNANCY"
	HEPATITIS_B                ContraindicationType = "HEPATITIS_B"
	LATENT_TB                  ContraindicationType = "LATENT_TB"
	ACTIVE_TB                  ContraindicationType = "ACTIVE_TB"
	ACTIVE_INFECTION           ContraindicationType = "ACTIVE_INFECTION"
	OPPORTUNISTIC_INFECTION    ContraindicationType = "OPPORTUNISTIC_INFECTION"
	THROMBOSIS                 ContraindicationType = "THROMBOSIS"
	CARDIOVASCULAR_DISEASE     ContraindicationType = "CARDIOVASCULAR_DISEASE"
	CYTOPENIAS                 ContraindicationType = "CYTOPENIAS"
	INFLAMMATORY_BOWEL_DISEASE ContraindicationType = "INFLAMMATORY_BOWEL_DISEASE"
	DIVERTICULITIS             ContraindicationType = "DIVERTICULITIS"
	PREGNANCY                  ContraindicationType = "PREGNANCY"
	LIVE_VACCINE_RECENT        ContraindicationType = "LIVE_VACCINE_RECENT"
	SURGERY_PLANNED            ContraindicationType = "SURGERY_PLANNED"
	IMMUNOCOMPROMISED          ContraindicationType = "IMMUNOCOMPROMISED"
)

// ContraindicationSeverity grades a matched rule. ABSOLUTE excludes a drug
// outright; RELATIVE removes it from automatic candidacy but keeps it
// visible for clinician override.
type ContraindicationSeverity string

const (
	ABSOLUTE ContraindicationSeverity = "ABSOLUTE"
	RELATIVE ContraindicationSeverity = "RELATIVE"
)

// PARequirement is the tri-state prior-authorization flag carried on
// formulary rows as uploaded. Anything other than an explicit "Yes" is
// treated as not requiring PA for formulary-optimality purposes; "Unknown"
// is preserved so the presentation layer can flag verification.
type PARequirement string

const (
	PARequired      PARequirement = "Yes"
	PANotRequired   PARequirement = "No"
	PANotApplicable PARequirement = "N/A"
	PAUnknown       PARequirement = "Unknown"
)

// DoseReductionLevel is the detected reduction from standard maintenance
// dosing, in percent. Only 0, 25 and 50 are used by the cascade.
type DoseReductionLevel int

const (
	DoseStandard  DoseReductionLevel = 0
	DoseReduced25 DoseReductionLevel = 25
	DoseReduced50 DoseReductionLevel = 50
)

// Validation errors for clinical data integrity.
var (
	ErrNotFound                  = errors.New("not found")
	ErrInvalidDiagnosis          = errors.New("invalid diagnosis")
	ErrInvalidQuadrant           = errors.New("invalid treatment quadrant")
	ErrInvalidRecommendationType = errors.New("invalid recommendation type")
	ErrInvalidSeverity           = errors.New("invalid contraindication severity")
)

// IsValid reports whether the diagnosis is one the engine understands.
func (d Diagnosis) IsValid() bool {
	switch d {
	case PSORIASIS, PSORIATIC_ARTHRITIS, RHEUMATOID_ARTHRITIS, ANKYLOSING_SPONDYLITIS,
		CROHNS_DISEASE, ULCERATIVE_COLITIS, HIDRADENITIS_SUPPURATIVA, ATOPIC_DERMATITIS:
		return true
	default:
		return false
	}
}

func (d Diagnosis) String() string {
	return string(d)
}

// IsValid reports whether q is one of the five treatment states.
func (q TreatmentQuadrant) IsValid() bool {
	switch q {
	case STABLE_FORMULARY_ALIGNED, STABLE_NON_FORMULARY, UNSTABLE_FORMULARY_ALIGNED,
		UNSTABLE_NON_FORMULARY, STABLE_SHORT_DURATION:
		return true
	default:
		return false
	}
}

func (q TreatmentQuadrant) String() string {
	return string(q)
}

// IsStable reports whether the quadrant reflects controlled disease,
// including the short-duration state.
func (q TreatmentQuadrant) IsStable() bool {
	switch q {
	case STABLE_FORMULARY_ALIGNED, STABLE_NON_FORMULARY, STABLE_SHORT_DURATION:
		return true
	default:
		return false
	}
}

// AllowsDoseReduction reports whether the quadrant permits dose-reduction
// recommendations. Short-duration stability does not: tier switches are
// safe there, but dose changes need the full sustained-stability evidence.
func (q TreatmentQuadrant) AllowsDoseReduction() bool {
	switch q {
	case STABLE_FORMULARY_ALIGNED, STABLE_NON_FORMULARY:
		return true
	default:
		return false
	}
}

// LogFields returns structured logging fields for audit trails.
func (q TreatmentQuadrant) LogFields() map[string]any {
	return map[string]any{
		"quadrant":              string(q),
		"stable":                q.IsStable(),
		"allows_dose_reduction": q.AllowsDoseReduction(),
	}
}

// IsValid validates the recommendation type.
func (t RecommendationType) IsValid() bool {
	switch t {
	case CONTINUE_CURRENT, DOSE_REDUCTION, SWITCH_TO_PREFERRED,
		SWITCH_TO_BIOSIMILAR, THERAPEUTIC_SWITCH, OPTIMIZE_CURRENT:
		return true
	default:
		return false
	}
}

func (t RecommendationType) String() string {
	return string(t)
}

// IsSwitch reports whether the recommendation changes the active drug.
func (t RecommendationType) IsSwitch() bool {
	switch t {
	case SWITCH_TO_PREFERRED, SWITCH_TO_BIOSIMILAR, THERAPEUTIC_SWITCH:
		return true
	default:
		return false
	}
}

// IsValid validates the contraindication severity.
func (s ContraindicationSeverity) IsValid() bool {
	return s == ABSOLUTE || s == RELATIVE
}

func (s ContraindicationSeverity) String() string {
	return string(s)
}

// Max returns the stricter of two severities. ABSOLUTE dominates.
func (s ContraindicationSeverity) Max(other ContraindicationSeverity) ContraindicationSeverity {
	if s == ABSOLUTE || other == ABSOLUTE {
		return ABSOLUTE
	}
	return RELATIVE
}

// Required reports whether the flag means prior authorization is needed.
// Upload pipelines emit free-text values; only an explicit yes counts.
func (p PARequirement) Required() bool {
	return strings.EqualFold(strings.TrimSpace(string(p)), "yes")
}

// IsKnown reports whether the flag carries a definite answer.
func (p PARequirement) IsKnown() bool {
	v := strings.TrimSpace(string(p))
	return strings.EqualFold(v, "yes") || strings.EqualFold(v, "no")
}

// IsValid validates the dose reduction level.
func (l DoseReductionLevel) IsValid() bool {
	return l == DoseStandard || l == DoseReduced25 || l == DoseReduced50
}

// Percent returns the reduction as an integer percentage.
func (l DoseReductionLevel) Percent() int {
	return int(l)
}

// NextReduction returns the next approved reduction step, or the current
// level if already at the 50% maximum.
func (l DoseReductionLevel) NextReduction() DoseReductionLevel {
	switch l {
	case DoseStandard:
		return DoseReduced25
	case DoseReduced25:
		return DoseReduced50
	default:
		return DoseReduced50
	}
}

// StepBack returns the previous reduction step toward standard dosing.
func (l DoseReductionLevel) StepBack() DoseReductionLevel {
	switch l {
	case DoseReduced50:
		return DoseReduced25
	default:
		return DoseStandard
	}
}

// LogFields returns structured logging fields for audit trails.
func (l DoseReductionLevel) LogFields() map[string]any {
	return map[string]any{
		"dose_reduction_percent": int(l),
		"at_maximum_reduction":   l == DoseReduced50,
	}
}
