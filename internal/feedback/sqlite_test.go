package feedback

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "feedback.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleFeedback(assessmentID string, rank int, decision Decision) *Feedback {
	return &Feedback{
		AssessmentID:       assessmentID,
		RecommendationRank: rank,
		PatientID:          "pt-001",
		Decision:           decision,
		ClinicianID:        "dr-smith",
		Notes:              "discussed with patient",
	}
}

func TestSQLiteStore_SaveAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	fb := sampleFeedback("assess-1", 1, DecisionAccepted)
	require.NoError(t, store.Save(ctx, fb))
	assert.NotZero(t, fb.ID)

	got, err := store.Get(ctx, "assess-1", 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "assess-1", got.AssessmentID)
	assert.Equal(t, 1, got.RecommendationRank)
	assert.Equal(t, DecisionAccepted, got.Decision)
	assert.Equal(t, "dr-smith", got.ClinicianID)
	assert.Equal(t, "discussed with patient", got.Notes)
}

func TestSQLiteStore_GetMissing(t *testing.T) {
	store := newTestStore(t)

	got, err := store.Get(context.Background(), "no-such-assessment", 1)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteStore_SaveUpserts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleFeedback("assess-1", 1, DecisionAccepted)))

	// Re-submitting the same assessment and rank replaces the decision
	// rather than adding a row.
	updated := sampleFeedback("assess-1", 1, DecisionRejected)
	updated.Notes = "changed after follow-up"
	require.NoError(t, store.Save(ctx, updated))

	got, err := store.Get(ctx, "assess-1", 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, DecisionRejected, got.Decision)
	assert.Equal(t, "changed after follow-up", got.Notes)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSQLiteStore_ListForAssessment(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Inserted out of rank order; the listing comes back ordered.
	require.NoError(t, store.Save(ctx, sampleFeedback("assess-1", 3, DecisionRejected)))
	require.NoError(t, store.Save(ctx, sampleFeedback("assess-1", 1, DecisionAccepted)))
	require.NoError(t, store.Save(ctx, sampleFeedback("assess-1", 2, DecisionModified)))
	require.NoError(t, store.Save(ctx, sampleFeedback("assess-2", 1, DecisionAccepted)))

	list, err := store.ListForAssessment(ctx, "assess-1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i, fb := range list {
		assert.Equal(t, i+1, fb.RecommendationRank)
	}

	empty, err := store.ListForAssessment(ctx, "assess-3")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSQLiteStore_ExportJSON(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleFeedback("assess-1", 1, DecisionAccepted)))
	require.NoError(t, store.Save(ctx, sampleFeedback("assess-2", 1, DecisionModified)))

	var buf bytes.Buffer
	require.NoError(t, store.ExportJSON(ctx, &buf))

	var export Export
	require.NoError(t, json.Unmarshal(buf.Bytes(), &export))
	assert.Equal(t, "1.0", export.Version)
	assert.Equal(t, 2, export.Count)
	assert.Len(t, export.Feedback, 2)
	assert.False(t, export.ExportedAt.IsZero())
}
