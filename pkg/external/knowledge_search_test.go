package external

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biologic-formulary-engine/internal/domain"
)

func newSearchServer(t *testing.T, requests *atomic.Int64, sources []domain.EvidenceSource) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/v1/search", r.URL.Path)
		json.NewEncoder(w).Encode(searchResponse{Sources: sources})
	}))
}

func TestKnowledgeSearchClient_Search(t *testing.T) {
	var requests atomic.Int64
	server := newSearchServer(t, &requests, []domain.EvidenceSource{
		{Title: "Dose tapering of biologics in psoriasis", URL: "https://example.org/condor"},
		{Title: "Interval extension outcomes"},
	})
	defer server.Close()

	client, err := NewKnowledgeSearchClient(domain.KnowledgeSearchConfig{
		BaseURL: server.URL,
		Timeout: 2 * time.Second,
	}, testLogger())
	require.NoError(t, err)

	sources, err := client.Search(context.Background(), "secukinumab dose reduction", 3)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "Dose tapering of biologics in psoriasis", sources[0].Title)
}

func TestKnowledgeSearchClient_CacheHit(t *testing.T) {
	var requests atomic.Int64
	server := newSearchServer(t, &requests, []domain.EvidenceSource{{Title: "cached result"}})
	defer server.Close()

	client, err := NewKnowledgeSearchClient(domain.KnowledgeSearchConfig{
		BaseURL: server.URL,
		Timeout: 2 * time.Second,
	}, testLogger())
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		sources, err := client.Search(context.Background(), "adalimumab interval extension", 3)
		require.NoError(t, err)
		require.Len(t, sources, 1)
	}
	assert.Equal(t, int64(1), requests.Load())

	// A different query misses the cache.
	_, err = client.Search(context.Background(), "ustekinumab interval extension", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(2), requests.Load())
}

func TestKnowledgeSearchClient_LimitClampedAndApplied(t *testing.T) {
	var requests atomic.Int64
	server := newSearchServer(t, &requests, []domain.EvidenceSource{
		{Title: "one"}, {Title: "two"}, {Title: "three"}, {Title: "four"}, {Title: "five"},
	})
	defer server.Close()

	client, err := NewKnowledgeSearchClient(domain.KnowledgeSearchConfig{
		BaseURL:    server.URL,
		Timeout:    2 * time.Second,
		MaxSources: 3,
	}, testLogger())
	require.NoError(t, err)

	// Requested limit above max_sources clamps to the configured cap, and
	// an over-long response is truncated.
	sources, err := client.Search(context.Background(), "query", 10)
	require.NoError(t, err)
	assert.Len(t, sources, 3)

	sources, err = client.Search(context.Background(), "query", 0)
	require.NoError(t, err)
	assert.Len(t, sources, 3)
}

func TestKnowledgeSearchClient_ErrorPropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusBadGateway)
	}))
	defer server.Close()

	client, err := NewKnowledgeSearchClient(domain.KnowledgeSearchConfig{
		BaseURL: server.URL,
		Timeout: 2 * time.Second,
	}, testLogger())
	require.NoError(t, err)

	_, err = client.Search(context.Background(), "query", 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
