package service

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/biologic-formulary-engine/internal/domain"
)

// contraindicationRule is one row of the declarative screening table. A
// rule matches when the candidate's normalized drug class contains any of
// classPatterns (nil means every class) and the patient carries one of the
// listed condition types.
type contraindicationRule struct {
	classPatterns []string
	conditions    []domain.ContraindicationType
	severity      domain.ContraindicationSeverity
	reason        string
}

// contraindicationRules is the full screening table. Clinical reviewers
// extend coverage by adding rows; the matcher never changes.
var contraindicationRules = []contraindicationRule{
	{
		classPatterns: []string{"tnf"},
		conditions:    []domain.ContraindicationType{domain.HEART_FAILURE},
		severity:      domain.ABSOLUTE,
		reason:        "TNF inhibitors are contraindicated in moderate-to-severe heart failure (NYHA class III/IV)",
	},
	{
		classPatterns: []string{"tnf"},
		conditions:    []domain.ContraindicationType{domain.DEMYELINATING_DISEASE},
		severity:      domain.ABSOLUTE,
		reason:        "TNF inhibitors can precipitate or worsen demyelinating disease",
	},
	{
		classPatterns: []string{"tnf"},
		conditions: []domain.ContraindicationType{
			domain.LYMPHOMA, domain.MALIGNANCY,
		},
		severity: domain.RELATIVE,
		reason:   "TNF inhibitors carry increased risk with a history of lymphoma or malignancy",
	},
	{
		classPatterns: []string{"tnf"},
		conditions: []domain.ContraindicationType{
			domain.HEPATITIS_B, domain.LATENT_TB,
		},
		severity: domain.RELATIVE,
		reason:   "TNF inhibitors risk reactivation of hepatitis B or latent tuberculosis",
	},
	{
		classPatterns: []string{"jak", "tyk2"},
		conditions:    []domain.ContraindicationType{domain.THROMBOSIS},
		severity:      domain.ABSOLUTE,
		reason:        "JAK/TYK2 inhibitors are contraindicated with a history of thrombosis",
	},
	{
		classPatterns: []string{"jak", "tyk2"},
		conditions: []domain.ContraindicationType{
			domain.CARDIOVASCULAR_DISEASE, domain.MALIGNANCY, domain.CYTOPENIAS,
		},
		severity: domain.RELATIVE,
		reason:   "JAK/TYK2 inhibitors carry boxed warnings for cardiovascular disease, malignancy, and cytopenias",
	},
	{
		classPatterns: []string{"il-17", "il17"},
		conditions: []domain.ContraindicationType{
			domain.INFLAMMATORY_BOWEL_DISEASE, domain.DIVERTICULITIS,
		},
		severity: domain.RELATIVE,
		reason:   "IL-17 inhibitors can trigger or exacerbate inflammatory bowel disease",
	},
	{
		conditions: []domain.ContraindicationType{
			domain.ACTIVE_INFECTION, domain.ACTIVE_TB, domain.OPPORTUNISTIC_INFECTION,
		},
		severity: domain.ABSOLUTE,
		reason:   "Biologic therapy is contraindicated during active or opportunistic infection",
	},
	{
		conditions: []domain.ContraindicationType{
			domain.PREGNANCY, domain.LIVE_VACCINE_RECENT,
			domain.SURGERY_PLANNED, domain.IMMUNOCOMPROMISED,
		},
		severity: domain.RELATIVE,
		reason:   "Biologic initiation requires clinical judgment given pregnancy, recent live vaccination, planned surgery, or immunocompromise",
	},
}

// ContraindicationFilter partitions formulary candidates into safe and
// contraindicated sets by evaluating the rule table against a patient's
// documented conditions.
type ContraindicationFilter struct {
	log   *logrus.Logger
	rules []contraindicationRule
}

// NewContraindicationFilter creates a filter over the standard rule table.
func NewContraindicationFilter(log *logrus.Logger) *ContraindicationFilter {
	return &ContraindicationFilter{
		log:   log,
		rules: contraindicationRules,
	}
}

// Partition splits candidates into the safe set and the contraindicated
// set. A drug with zero matched rules is safe; any match, ABSOLUTE or
// RELATIVE, excludes it from automatic candidacy. The contraindicated
// partition keeps every matched reason so the clinician can review and
// override; it is never silently dropped.
func (f *ContraindicationFilter) Partition(
	candidates []domain.FormularyDrug,
	contraindications []domain.Contraindication,
) (safe []domain.FormularyDrug, excluded []domain.ContraindicatedDrug) {
	safe = make([]domain.FormularyDrug, 0, len(candidates))

	for _, drug := range candidates {
		reasons := f.matchReasons(drug, contraindications)
		if len(reasons) == 0 {
			safe = append(safe, drug)
			continue
		}

		entry := domain.ContraindicatedDrug{Drug: drug, Reasons: reasons}
		excluded = append(excluded, entry)

		f.log.WithFields(logrus.Fields{
			"drug":         drug.DrugName,
			"drug_class":   drug.DrugClass,
			"reason_count": len(reasons),
			"max_severity": entry.MaxSeverity().String(),
		}).Info("Drug excluded by contraindication screening")
	}

	return safe, excluded
}

// matchReasons evaluates every rule against every documented condition.
// Rule application is order-independent: the result is the union of all
// matched reasons, with overall severity the maximum across them.
func (f *ContraindicationFilter) matchReasons(
	drug domain.FormularyDrug,
	contraindications []domain.Contraindication,
) []domain.ContraindicationReason {
	class := normalizeDrugClass(drug.DrugClass)

	var reasons []domain.ContraindicationReason
	for _, rule := range f.rules {
		if !rule.matchesClass(class) {
			continue
		}
		for _, ci := range contraindications {
			if !rule.matchesCondition(ci.Type) {
				continue
			}
			reasons = append(reasons, domain.ContraindicationReason{
				Type:     ci.Type,
				Severity: rule.severity,
				Reason:   rule.reason,
				Details:  ci.Details,
			})
		}
	}
	return reasons
}

func (r *contraindicationRule) matchesClass(normalizedClass string) bool {
	if len(r.classPatterns) == 0 {
		return true
	}
	for _, p := range r.classPatterns {
		if strings.Contains(normalizedClass, p) {
			return true
		}
	}
	return false
}

func (r *contraindicationRule) matchesCondition(t domain.ContraindicationType) bool {
	for _, c := range r.conditions {
		if c == t {
			return true
		}
	}
	return false
}

// normalizeDrugClass lowercases and strips the filler words formulary
// uploads use ("TNF-alpha Inhibitor", "IL-17A antagonist") so class
// patterns match on the mechanism token alone.
func normalizeDrugClass(class string) string {
	c := strings.ToLower(strings.TrimSpace(class))
	for _, filler := range []string{"inhibitor", "antagonist", "blocker", "alpha", "antibody"} {
		c = strings.ReplaceAll(c, filler, "")
	}
	return strings.TrimSpace(c)
}

// RuleCount reports the size of the screening table, for diagnostics.
func (f *ContraindicationFilter) RuleCount() int {
	return len(f.rules)
}

// DescribeExclusion renders a one-line exclusion summary for rationale and
// override review text.
func DescribeExclusion(c domain.ContraindicatedDrug) string {
	return fmt.Sprintf("%s excluded: %s", c.Drug.DrugName, c.ReasonSummary())
}
