package external

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biologic-formulary-engine/internal/domain"
	"github.com/biologic-formulary-engine/internal/ranking"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func rankingCandidates() []domain.FormularyDrug {
	return []domain.FormularyDrug{
		{DrugName: "Cosentyx", GenericName: "secukinumab", DrugClass: "IL-17 Inhibitor", Tier: 1},
		{DrugName: "Skyrizi", GenericName: "risankizumab", DrugClass: "IL-23 Inhibitor", Tier: 1},
	}
}

func testProfile() domain.ClinicalProfile {
	return domain.ClinicalProfile{
		Diagnosis:    domain.PSORIASIS,
		CurrentDrug:  "Humira",
		DLQIScore:    2,
		MonthsStable: 12,
	}
}

func TestReasoningClient_RankCandidates(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/rank", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")

		var req rankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Candidates, 2)
		assert.Equal(t, "Cosentyx", req.Candidates[0].DrugName)
		assert.Equal(t, domain.PSORIASIS, req.Profile.Diagnosis)

		json.NewEncoder(w).Encode(rankResponse{Rankings: []ranking.BackendRanking{
			{DrugName: "Skyrizi", Rank: 1, Reasoning: "Higher PASI-90"},
			{DrugName: "Cosentyx", Rank: 2, Reasoning: "Strong maintenance data"},
		}})
	}))
	defer server.Close()

	client := NewReasoningClient(domain.ReasoningConfig{
		BaseURL: server.URL,
		APIKey:  "test-key",
		Timeout: 2 * time.Second,
	}, nil, testLogger())

	rankings, err := client.RankCandidates(context.Background(), rankingCandidates(), testProfile())
	require.NoError(t, err)
	require.Len(t, rankings, 2)
	assert.Equal(t, "Skyrizi", rankings[0].DrugName)
	assert.Equal(t, 1, rankings[0].Rank)
	assert.Equal(t, "Bearer test-key", gotAuth)
}

func TestReasoningClient_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewReasoningClient(domain.ReasoningConfig{
		BaseURL: server.URL,
		Timeout: 2 * time.Second,
	}, nil, testLogger())

	_, err := client.RankCandidates(context.Background(), rankingCandidates(), testProfile())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestReasoningClient_CircuitBreakerOpens(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewReasoningClient(domain.ReasoningConfig{
		BaseURL:   server.URL,
		Timeout:   2 * time.Second,
		RateLimit: 100,
	}, nil, testLogger())

	// Three consecutive failures trip the breaker; later calls fail fast
	// without reaching the server.
	for i := 0; i < 3; i++ {
		_, err := client.RankCandidates(context.Background(), rankingCandidates(), testProfile())
		require.Error(t, err)
	}
	tripped := requests.Load()

	for i := 0; i < 5; i++ {
		_, err := client.RankCandidates(context.Background(), rankingCandidates(), testProfile())
		require.Error(t, err)
	}
	assert.Equal(t, tripped, requests.Load())
}

func TestReasoningClient_NoAuthHeaderWithoutKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(rankResponse{})
	}))
	defer server.Close()

	client := NewReasoningClient(domain.ReasoningConfig{
		BaseURL: server.URL,
		Timeout: 2 * time.Second,
	}, nil, testLogger())

	rankings, err := client.RankCandidates(context.Background(), rankingCandidates(), testProfile())
	require.NoError(t, err)
	assert.Empty(t, rankings)
}
