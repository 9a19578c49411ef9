package service

import (
	"github.com/sirupsen/logrus"

	"github.com/biologic-formulary-engine/internal/domain"
)

// Disease is considered controlled at DLQI <= 4; dose changes additionally
// require six months of sustained control.
const (
	stableDLQICeiling    = 4
	stableMonthsRequired = 6
)

// DetermineStability reports whether the patient meets the full stability
// bar: controlled disease sustained for at least six months.
func DetermineStability(dlqiScore, monthsStable int) bool {
	return dlqiScore <= stableDLQICeiling && monthsStable >= stableMonthsRequired
}

// IsStableShortDuration reports the distinguished third state: disease is
// controlled but the six-month evidence bar is not yet met. Checked before
// the main quadrant logic; it permits tier switches and forbids dose
// reductions.
func IsStableShortDuration(dlqiScore, monthsStable int) bool {
	return dlqiScore <= stableDLQICeiling && monthsStable < stableMonthsRequired
}

// DetermineFormularyStatus reports whether the drug is formulary-optimal:
// tier 1 with no prior authorization requirement.
func DetermineFormularyStatus(drug *domain.FormularyDrug) bool {
	if drug == nil {
		return false
	}
	return drug.Tier == 1 && !drug.RequiresPA.Required()
}

// QuadrantResolver classifies a patient's treatment state. It is a pure
// classification re-evaluated per assessment; no transitions are modeled.
type QuadrantResolver struct {
	log *logrus.Logger
}

// NewQuadrantResolver creates a quadrant resolver.
func NewQuadrantResolver(log *logrus.Logger) *QuadrantResolver {
	return &QuadrantResolver{log: log}
}

// Resolve maps stability and formulary optimality onto one of the five
// treatment states.
func (r *QuadrantResolver) Resolve(dlqiScore, monthsStable int, formularyOptimal bool) domain.TreatmentQuadrant {
	var quadrant domain.TreatmentQuadrant

	switch {
	case IsStableShortDuration(dlqiScore, monthsStable):
		quadrant = domain.STABLE_SHORT_DURATION
	case DetermineStability(dlqiScore, monthsStable):
		if formularyOptimal {
			quadrant = domain.STABLE_FORMULARY_ALIGNED
		} else {
			quadrant = domain.STABLE_NON_FORMULARY
		}
	default:
		if formularyOptimal {
			quadrant = domain.UNSTABLE_FORMULARY_ALIGNED
		} else {
			quadrant = domain.UNSTABLE_NON_FORMULARY
		}
	}

	r.log.WithFields(logrus.Fields{
		"dlqi_score":        dlqiScore,
		"months_stable":     monthsStable,
		"formulary_optimal": formularyOptimal,
		"quadrant":          quadrant.String(),
	}).Debug("Resolved treatment quadrant")

	return quadrant
}
