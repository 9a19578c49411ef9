package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biologic-formulary-engine/internal/domain"
	"github.com/biologic-formulary-engine/internal/feedback"
	"github.com/biologic-formulary-engine/internal/ranking"
	"github.com/biologic-formulary-engine/internal/repository"
	"github.com/biologic-formulary-engine/internal/service"
)

type staticConfigManager struct {
	cfg domain.Config
}

func (m *staticConfigManager) GetConfig() *domain.Config             { return &m.cfg }
func (m *staticConfigManager) GetServerConfig() *domain.ServerConfig { return &m.cfg.Server }
func (m *staticConfigManager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.cfg.Database
}
func (m *staticConfigManager) GetDatabaseConnectionString() string { return "" }
func (m *staticConfigManager) Validate() error                     { return nil }
func (m *staticConfigManager) IsProduction() bool                  { return false }

// memoryFeedbackStore keeps feedback in a map, for handler tests.
type memoryFeedbackStore struct {
	mu    sync.Mutex
	saved []*feedback.Feedback
}

func (s *memoryFeedbackStore) Save(_ context.Context, fb *feedback.Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fb.ID = int64(len(s.saved) + 1)
	fb.CreatedAt = time.Now()
	fb.UpdatedAt = fb.CreatedAt
	s.saved = append(s.saved, fb)
	return nil
}

func (s *memoryFeedbackStore) Get(_ context.Context, assessmentID string, rank int) (*feedback.Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, fb := range s.saved {
		if fb.AssessmentID == assessmentID && fb.RecommendationRank == rank {
			return fb, nil
		}
	}
	return nil, nil
}

func (s *memoryFeedbackStore) ListForAssessment(_ context.Context, assessmentID string) ([]*feedback.Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*feedback.Feedback
	for _, fb := range s.saved {
		if fb.AssessmentID == assessmentID {
			out = append(out, fb)
		}
	}
	return out, nil
}

func (s *memoryFeedbackStore) Count(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.saved)), nil
}

func (s *memoryFeedbackStore) ExportJSON(_ context.Context, _ io.Writer) error { return nil }
func (s *memoryFeedbackStore) Close() error                                   { return nil }

func testFormulary() []domain.FormularyDrug {
	return []domain.FormularyDrug{
		{
			ID: "d1", DrugName: "Cosentyx", GenericName: "secukinumab",
			DrugClass: "IL-17 Inhibitor", Tier: 1, RequiresPA: domain.PANotRequired,
			FDAIndications: []domain.Diagnosis{domain.PSORIASIS},
		},
		{
			ID: "d2", DrugName: "Humira", GenericName: "adalimumab",
			DrugClass: "TNF Inhibitor", Tier: 3, RequiresPA: domain.PANotRequired,
			FDAIndications: []domain.Diagnosis{domain.PSORIASIS},
		},
	}
}

func newTestServer(t *testing.T) (*Server, *repository.MemoryStore, *memoryFeedbackStore) {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	store := repository.NewMemoryStore()
	store.SetFormulary("plan-a", testFormulary())
	store.SetPatient("pt-001",
		&domain.CurrentBiologic{DrugName: "Humira", Dose: "40mg", Frequency: "every 2 weeks"},
		nil, nil)

	loader := repository.NewPatientDataLoader(store, store, store, store, log)
	engine := service.NewRecommendationEngine(log, ranking.NewFormularyOrderRanker(), nil)
	feedbackStore := &memoryFeedbackStore{}

	cfg := &staticConfigManager{cfg: domain.Config{
		Server: domain.ServerConfig{
			Host:         "127.0.0.1",
			Port:         0,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
			IdleTimeout:  30 * time.Second,
		},
		Logging: domain.LoggingConfig{Level: "error", Format: "json"},
	}}

	return NewServer(cfg, engine, loader, store, feedbackStore, log), store, feedbackStore
}

func doRequest(t *testing.T, server *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, req)
	return w
}

func TestServer_Health(t *testing.T) {
	server, _, _ := newTestServer(t)

	w := doRequest(t, server, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestServer_CreateAssessment_InlinePatient(t *testing.T) {
	server, _, _ := newTestServer(t)

	w := doRequest(t, server, http.MethodPost, "/api/v1/assessments", map[string]any{
		"patient_id":    "pt-001",
		"diagnosis":     "PSORIASIS",
		"dlqi_score":    2,
		"months_stable": 12,
		"patient": map[string]any{
			"patient_id": "pt-001",
			"current_biologic": map[string]any{
				"drug_name": "Humira",
				"frequency": "every 2 weeks",
			},
			"formulary": testFormulary(),
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result domain.AssessmentResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, domain.STABLE_NON_FORMULARY, result.Quadrant)
	assert.NotEmpty(t, result.Recommendations)
	assert.Equal(t, 1, result.Recommendations[0].Rank)
}

func TestServer_CreateAssessment_LoadsStoredPatient(t *testing.T) {
	server, _, _ := newTestServer(t)

	w := doRequest(t, server, http.MethodPost, "/api/v1/assessments", map[string]any{
		"patient_id":    "pt-001",
		"plan_id":       "plan-a",
		"diagnosis":     "PSORIASIS",
		"dlqi_score":    2,
		"months_stable": 12,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result domain.AssessmentResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, domain.STABLE_NON_FORMULARY, result.Quadrant)
}

func TestServer_CreateAssessment_ValidationFailure(t *testing.T) {
	server, _, _ := newTestServer(t)

	w := doRequest(t, server, http.MethodPost, "/api/v1/assessments", map[string]any{
		"patient_id":    "pt-001",
		"plan_id":       "plan-a",
		"diagnosis":     "PSORIASIS",
		"dlqi_score":    31,
		"months_stable": 12,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, domain.ErrInvalidInput, body["code"])
}

func TestServer_CreateAssessment_MalformedBody(t *testing.T) {
	server, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/assessments", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_Feedback(t *testing.T) {
	server, _, feedbackStore := newTestServer(t)
	assessmentID := uuid.New().String()

	w := doRequest(t, server, http.MethodPost, "/api/v1/assessments/"+assessmentID+"/feedback", map[string]any{
		"recommendation_rank": 1,
		"decision":            "ACCEPTED",
		"clinician_id":        "dr-smith",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	count, err := feedbackStore.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	saved, err := feedbackStore.Get(context.Background(), assessmentID, 1)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, feedback.DecisionAccepted, saved.Decision)
}

func TestServer_Feedback_InvalidDecision(t *testing.T) {
	server, _, _ := newTestServer(t)
	assessmentID := uuid.New().String()

	w := doRequest(t, server, http.MethodPost, "/api/v1/assessments/"+assessmentID+"/feedback", map[string]any{
		"recommendation_rank": 1,
		"decision":            "MAYBE",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestServer_Feedback_BadAssessmentID(t *testing.T) {
	server, _, _ := newTestServer(t)

	w := doRequest(t, server, http.MethodPost, "/api/v1/assessments/not-a-uuid/feedback", map[string]any{
		"recommendation_rank": 1,
		"decision":            "ACCEPTED",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_ListFormulary(t *testing.T) {
	server, _, _ := newTestServer(t)

	w := doRequest(t, server, http.MethodGet, "/api/v1/formulary/drugs?plan_id=plan-a", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		PlanID string                 `json:"plan_id"`
		Drugs  []domain.FormularyDrug `json:"drugs"`
		Count  int                    `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "plan-a", body.PlanID)
	assert.Equal(t, 2, body.Count)
	require.Len(t, body.Drugs, 2)
	assert.Equal(t, "Cosentyx", body.Drugs[0].DrugName)
}

func TestServer_ListFormulary_MissingPlanID(t *testing.T) {
	server, _, _ := newTestServer(t)

	w := doRequest(t, server, http.MethodGet, "/api/v1/formulary/drugs", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
