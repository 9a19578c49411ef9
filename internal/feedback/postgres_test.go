package feedback

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(
		sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp),
		sqlmock.MonitorPingsOption(true),
	)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectPing()
	store, err := NewPostgresStore(db)
	require.NoError(t, err)
	return store, mock
}

func feedbackColumns() []string {
	return []string{
		"id", "assessment_id", "recommendation_rank", "patient_id",
		"decision", "clinician_id", "notes", "created_at", "updated_at",
	}
}

func TestPostgresStore_Save(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Now().Add(-time.Hour)

	mock.ExpectQuery(`INSERT INTO recommendation_feedback`).
		WithArgs("assess-1", 1, "pt-001", "ACCEPTED", "dr-smith", "",
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(42), created))

	fb := &Feedback{
		AssessmentID:       "assess-1",
		RecommendationRank: 1,
		PatientID:          "pt-001",
		Decision:           DecisionAccepted,
		ClinicianID:        "dr-smith",
	}
	require.NoError(t, store.Save(context.Background(), fb))

	assert.Equal(t, int64(42), fb.ID)
	assert.Equal(t, created, fb.CreatedAt)
	assert.False(t, fb.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM recommendation_feedback`).
		WithArgs("assess-1", 2).
		WillReturnRows(sqlmock.NewRows(feedbackColumns()).
			AddRow(int64(7), "assess-1", 2, "pt-001", "MODIFIED", "dr-smith", "switched tiers", now, now))

	got, err := store.Get(context.Background(), "assess-1", 2)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(7), got.ID)
	assert.Equal(t, DecisionModified, got.Decision)
	assert.Equal(t, "switched tiers", got.Notes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetMissing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM recommendation_feedback`).
		WithArgs("assess-1", 9).
		WillReturnRows(sqlmock.NewRows(feedbackColumns()))

	got, err := store.Get(context.Background(), "assess-1", 9)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListForAssessment(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM recommendation_feedback`).
		WithArgs("assess-1").
		WillReturnRows(sqlmock.NewRows(feedbackColumns()).
			AddRow(int64(1), "assess-1", 1, "pt-001", "ACCEPTED", "", "", now, now).
			AddRow(int64(2), "assess-1", 2, "pt-001", "REJECTED", "", "", now, now))

	list, err := store.ListForAssessment(context.Background(), "assess-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, DecisionAccepted, list[0].Decision)
	assert.Equal(t, DecisionRejected, list[1].Decision)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Count(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM recommendation_feedback`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(5)))

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
