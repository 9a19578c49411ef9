package ranking

import (
	"context"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/biologic-formulary-engine/internal/domain"
)

// unmatchedRank is assigned to candidates the backend response does not
// mention. It sorts them after every explicitly ranked candidate while
// keeping them in the result, so no safe drug disappears from the cascade.
const unmatchedRank = 999

// BackendRanking is one entry of a reasoning-service response.
type BackendRanking struct {
	DrugName   string   `json:"drug_name"`
	Rank       int      `json:"rank"`
	Reasoning  string   `json:"reasoning"`
	KeyFactors []string `json:"key_factors,omitempty"`
}

// RankingBackend is the remote reasoning service the ranker consults.
// Implemented by the external reasoning client; faked in tests.
type RankingBackend interface {
	RankCandidates(ctx context.Context, candidates []domain.FormularyDrug, profile domain.ClinicalProfile) ([]BackendRanking, error)
}

// ReasoningRanker orders candidates using a remote reasoning service and
// degrades to formulary order on any backend failure. Degradation is part
// of the contract: Rank returns a nil error in every case, and the
// per-candidate reasoning says which path produced the order.
type ReasoningRanker struct {
	backend  RankingBackend
	fallback *FormularyOrderRanker
	log      *logrus.Logger
}

// NewReasoningRanker creates a reasoning-backed ranker.
func NewReasoningRanker(backend RankingBackend, log *logrus.Logger) *ReasoningRanker {
	return &ReasoningRanker{
		backend:  backend,
		fallback: NewFormularyOrderRanker(),
		log:      log,
	}
}

// Rank consults the backend and maps its response onto the candidate set.
// Response entries are matched by brand or generic name; candidates the
// response omits keep a sentinel rank that sorts them last.
func (r *ReasoningRanker) Rank(ctx context.Context, candidates []domain.FormularyDrug, profile domain.ClinicalProfile) ([]domain.RankedCandidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	backendRankings, err := r.backend.RankCandidates(ctx, candidates, profile)
	if err != nil || len(backendRankings) == 0 {
		r.log.WithFields(logrus.Fields{
			"candidates": len(candidates),
			"error":      err,
		}).Warn("Reasoning backend unavailable, degrading to formulary order")
		ranked, _ := r.fallback.Rank(ctx, candidates, profile)
		for i := range ranked {
			ranked[i].Reasoning = "Efficacy reasoning unavailable; formulary order applied"
		}
		return ranked, nil
	}

	byName := make(map[string]BackendRanking, len(backendRankings))
	for _, br := range backendRankings {
		byName[strings.ToLower(strings.TrimSpace(br.DrugName))] = br
	}

	ranked := make([]domain.RankedCandidate, len(candidates))
	matched := 0
	for i, drug := range candidates {
		br, ok := byName[strings.ToLower(drug.DrugName)]
		if !ok {
			br, ok = byName[strings.ToLower(drug.GenericName)]
		}
		if !ok {
			ranked[i] = domain.RankedCandidate{
				Drug:      drug,
				Rank:      unmatchedRank,
				Reasoning: "Not ranked by the reasoning service",
			}
			continue
		}
		matched++
		ranked[i] = domain.RankedCandidate{
			Drug:       drug,
			Rank:       br.Rank,
			Reasoning:  br.Reasoning,
			KeyFactors: br.KeyFactors,
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Rank < ranked[j].Rank
	})

	r.log.WithFields(logrus.Fields{
		"candidates": len(candidates),
		"matched":    matched,
	}).Debug("Applied reasoning-service ranking")

	return ranked, nil
}

// Name identifies the strategy in logs and rationale text.
func (r *ReasoningRanker) Name() string {
	return "reasoning-service"
}
