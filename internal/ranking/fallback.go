// Package ranking provides the efficacy-ranking strategies the tier
// cascade uses to order same-tier formulary candidates: a reasoning
// backed ranker with deterministic degradation, and the formulary-order
// fallback it degrades to.
package ranking

import (
	"context"

	"github.com/biologic-formulary-engine/internal/domain"
)

// FormularyOrderRanker ranks candidates in the order the formulary
// snapshot lists them. It is the deterministic baseline and the
// degradation target for every other ranker.
type FormularyOrderRanker struct{}

// NewFormularyOrderRanker creates the baseline ranker.
func NewFormularyOrderRanker() *FormularyOrderRanker {
	return &FormularyOrderRanker{}
}

// Rank assigns ranks 1..n in input order. It never fails.
func (r *FormularyOrderRanker) Rank(_ context.Context, candidates []domain.FormularyDrug, _ domain.ClinicalProfile) ([]domain.RankedCandidate, error) {
	ranked := make([]domain.RankedCandidate, len(candidates))
	for i, drug := range candidates {
		ranked[i] = domain.RankedCandidate{
			Drug:      drug,
			Rank:      i + 1,
			Reasoning: "Ordered by formulary listing",
		}
	}
	return ranked, nil
}

// Name identifies the strategy in logs and rationale text.
func (r *FormularyOrderRanker) Name() string {
	return "formulary-order"
}
