package service

import (
	"github.com/biologic-formulary-engine/internal/domain"
)

// tierAnnualCost maps a formulary tier to its assumed annual cost. These
// are planning assumptions for relative comparison, never authoritative
// claims pricing; every emitted estimate says so.
var tierAnnualCost = map[int]float64{
	1: 50000,
	2: 65000,
	3: 90000,
	4: 110000,
	5: 130000,
}

const (
	minTier = 1
	maxTier = 5
)

// TierCost returns the assumed annual cost for a tier, clamping tiers
// outside the published range to the nearest edge.
func TierCost(tier int) float64 {
	if tier < minTier {
		tier = minTier
	}
	if tier > maxTier {
		tier = maxTier
	}
	return tierAnnualCost[tier]
}

// EstimateTierSwitch compares annual cost between the current tier and a
// lower target tier. It returns nil unless the target tier is strictly
// lower: same-tier and upward moves carry no savings story to tell.
func EstimateTierSwitch(currentTier, targetTier int) *domain.CostComparison {
	if targetTier >= currentTier {
		return nil
	}
	current := TierCost(currentTier)
	target := TierCost(targetTier)
	savings := current - target
	return &domain.CostComparison{
		CurrentAnnualCost:     current,
		RecommendedAnnualCost: target,
		AnnualSavings:         savings,
		SavingsPercent:        savings / current * 100,
	}
}

// EstimateDoseReduction estimates savings from extending the dosing
// interval on the current drug: cost scales with doses dispensed, so a
// 25% reduction spends 75% of the tier's annual cost.
func EstimateDoseReduction(currentTier int, level domain.DoseReductionLevel) *domain.CostComparison {
	if level == domain.DoseStandard {
		return nil
	}
	current := TierCost(currentTier)
	reduced := current * (1 - float64(level.Percent())/100)
	savings := current - reduced
	return &domain.CostComparison{
		CurrentAnnualCost:     current,
		RecommendedAnnualCost: reduced,
		AnnualSavings:         savings,
		SavingsPercent:        savings / current * 100,
	}
}
