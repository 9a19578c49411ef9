package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/biologic-formulary-engine/internal/domain"
)

// KnowledgeSearchClient queries the evidentiary knowledge-search service
// for titled sources backing dose-reduction rationales. Queries repeat
// heavily across assessments (one query shape per drug and diagnosis), so
// an in-process LRU absorbs most of the traffic. It implements
// domain.EvidenceSearcher.
type KnowledgeSearchClient struct {
	baseURL    string
	apiKey     string
	maxSources int
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	cache      *lru.Cache[string, []domain.EvidenceSource]
	log        *logrus.Logger
}

// NewKnowledgeSearchClient creates a knowledge-search client.
func NewKnowledgeSearchClient(config domain.KnowledgeSearchConfig, log *logrus.Logger) (*KnowledgeSearchClient, error) {
	if config.Timeout == 0 {
		config.Timeout = 8 * time.Second
	}
	if config.MaxSources == 0 {
		config.MaxSources = 3
	}
	if config.CacheSize == 0 {
		config.CacheSize = 256
	}

	cache, err := lru.New[string, []domain.EvidenceSource](config.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create evidence cache: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "KnowledgeSearch",
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

	return &KnowledgeSearchClient{
		baseURL:    config.BaseURL,
		apiKey:     config.APIKey,
		maxSources: config.MaxSources,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		breaker: breaker,
		cache:   cache,
		log:     log,
	}, nil
}

// searchResponse is the wire response for GET /v1/search.
type searchResponse struct {
	Sources []domain.EvidenceSource `json:"sources"`
}

// Search returns up to limit titled sources for the query. Errors
// propagate to the caller, which substitutes fixed guideline citations;
// this client never fabricates evidence.
func (c *KnowledgeSearchClient) Search(ctx context.Context, query string, limit int) ([]domain.EvidenceSource, error) {
	if limit <= 0 || limit > c.maxSources {
		limit = c.maxSources
	}

	cacheKey := fmt.Sprintf("%s|%d", query, limit)
	if sources, ok := c.cache.Get(cacheKey); ok {
		return sources, nil
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doSearch(ctx, query, limit)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			return nil, fmt.Errorf("knowledge search unavailable (circuit breaker open)")
		}
		return nil, fmt.Errorf("knowledge search failed: %w", err)
	}

	sources := result.([]domain.EvidenceSource)
	c.cache.Add(cacheKey, sources)
	return sources, nil
}

func (c *KnowledgeSearchClient) doSearch(ctx context.Context, query string, limit int) ([]domain.EvidenceSource, error) {
	endpoint := fmt.Sprintf("%s/v1/search?q=%s&limit=%s",
		c.baseURL, url.QueryEscape(query), strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("knowledge search returned %d: %s", resp.StatusCode, string(body))
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	if len(parsed.Sources) > limit {
		parsed.Sources = parsed.Sources[:limit]
	}
	return parsed.Sources, nil
}

// BreakerState exposes the breaker state for health reporting.
func (c *KnowledgeSearchClient) BreakerState() gobreaker.State {
	return c.breaker.State()
}
