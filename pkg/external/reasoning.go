// Package external contains HTTP clients for the engine's remote
// collaborators: the efficacy-reasoning service and the evidentiary
// knowledge-search service. Both are wrapped in circuit breakers and
// degrade without aborting an assessment.
package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/biologic-formulary-engine/internal/domain"
	"github.com/biologic-formulary-engine/internal/ranking"
)

// ReasoningClient calls the efficacy-reasoning service that orders
// same-tier candidates for a clinical profile. It implements
// ranking.RankingBackend.
type ReasoningClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	cache      *CacheClient
	log        *logrus.Logger
}

// NewReasoningClient creates a reasoning-service client. cache may be
// nil; responses are then never cached.
func NewReasoningClient(config domain.ReasoningConfig, cache *CacheClient, log *logrus.Logger) *ReasoningClient {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 5
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ReasoningService",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return &ReasoningClient{
		baseURL: config.BaseURL,
		apiKey:  config.APIKey,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), config.RateLimit),
		breaker: breaker,
		cache:   cache,
		log:     log,
	}
}

// rankRequest is the wire request for POST /v1/rank.
type rankRequest struct {
	Candidates []rankCandidate        `json:"candidates"`
	Profile    domain.ClinicalProfile `json:"profile"`
}

type rankCandidate struct {
	DrugName    string `json:"drug_name"`
	GenericName string `json:"generic_name,omitempty"`
	DrugClass   string `json:"drug_class,omitempty"`
	Tier        int    `json:"tier"`
}

// rankResponse is the wire response for POST /v1/rank.
type rankResponse struct {
	Rankings []ranking.BackendRanking `json:"rankings"`
}

// RankCandidates asks the reasoning service to order candidates by
// expected efficacy. Cache first, then rate limit, then the breaker.
func (c *ReasoningClient) RankCandidates(ctx context.Context, candidates []domain.FormularyDrug, profile domain.ClinicalProfile) ([]ranking.BackendRanking, error) {
	if c.cache != nil {
		if cached, found, err := c.cache.GetRanking(ctx, candidates, profile); err == nil && found {
			return cached, nil
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doRank(ctx, candidates, profile)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			return nil, fmt.Errorf("reasoning service unavailable (circuit breaker open)")
		}
		return nil, fmt.Errorf("reasoning service query failed: %w", err)
	}

	rankings := result.([]ranking.BackendRanking)

	if c.cache != nil {
		if cacheErr := c.cache.SetRanking(ctx, candidates, profile, rankings, 0); cacheErr != nil {
			c.log.WithField("error", cacheErr).Debug("Failed to cache ranking response")
		}
	}

	return rankings, nil
}

func (c *ReasoningClient) doRank(ctx context.Context, candidates []domain.FormularyDrug, profile domain.ClinicalProfile) ([]ranking.BackendRanking, error) {
	reqBody := rankRequest{
		Candidates: make([]rankCandidate, len(candidates)),
		Profile:    profile,
	}
	for i, drug := range candidates {
		reqBody.Candidates[i] = rankCandidate{
			DrugName:    drug.DrugName,
			GenericName: drug.GenericName,
			DrugClass:   drug.DrugClass,
			Tier:        drug.Tier,
		}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/rank", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build rank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rank request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("reasoning service returned %d: %s", resp.StatusCode, string(body))
	}

	var parsed rankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode rank response: %w", err)
	}

	return parsed.Rankings, nil
}

// BreakerState exposes the breaker state for health reporting.
func (c *ReasoningClient) BreakerState() gobreaker.State {
	return c.breaker.State()
}

// BreakerCounts exposes breaker statistics for health reporting.
func (c *ReasoningClient) BreakerCounts() gobreaker.Counts {
	return c.breaker.Counts()
}
