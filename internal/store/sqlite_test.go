package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/heatsense-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_RecordAndGetRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	created, err := st.RecordRun(ctx, model.Run{
		Fingerprint:         "abc123",
		Status:              model.RunStatusComplete,
		CellCount:           400,
		HotspotCount:        3,
		RecommendationCount: 5,
		Timings: []model.StageTiming{
			{Stage: model.StageGrid, Duration: 120 * time.Millisecond},
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := st.GetRun(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "abc123", got.Fingerprint)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	assert.Equal(t, 400, got.CellCount)
	assert.Equal(t, 3, got.HotspotCount)
	assert.Equal(t, 5, got.RecommendationCount)
	require.Len(t, got.Timings, 1)
	assert.Equal(t, model.StageGrid, got.Timings[0].Stage)
}

func TestSQLite_GetRun_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetRun(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_RecordRun_StageErrors(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	created, err := st.RecordRun(ctx, model.Run{
		Fingerprint: "partial-fp",
		Status:      model.RunStatusPartial,
		StageErrors: map[string]string{
			model.StageValidation: "too few stations",
		},
	})
	require.NoError(t, err)

	got, err := st.GetRun(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusPartial, got.Status)
	assert.Equal(t, "too few stations", got.StageErrors[model.StageValidation])
}

func TestSQLite_ListRuns_FilterByStatus(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for _, status := range []model.RunStatus{
		model.RunStatusComplete, model.RunStatusPartial, model.RunStatusComplete,
	} {
		_, err := st.RecordRun(ctx, model.Run{Fingerprint: "fp", Status: status})
		require.NoError(t, err)
	}

	runs, err := st.ListRuns(ctx, RunFilter{Status: model.RunStatusComplete})
	require.NoError(t, err)
	assert.Len(t, runs, 2)
	for _, r := range runs {
		assert.Equal(t, model.RunStatusComplete, r.Status)
	}
}

func TestSQLite_ListRuns_FilterByFingerprint(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.RecordRun(ctx, model.Run{Fingerprint: "aaa", Status: model.RunStatusComplete})
	require.NoError(t, err)
	_, err = st.RecordRun(ctx, model.Run{Fingerprint: "bbb", Status: model.RunStatusComplete})
	require.NoError(t, err)

	runs, err := st.ListRuns(ctx, RunFilter{Fingerprint: "aaa"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "aaa", runs[0].Fingerprint)
}

func TestSQLite_ListRuns_Limit(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := st.RecordRun(ctx, model.Run{Fingerprint: "fp", Status: model.RunStatusComplete})
		require.NoError(t, err)
	}

	runs, err := st.ListRuns(ctx, RunFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestSQLite_DeleteRunsBefore(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	old := model.Run{
		Fingerprint: "old-fp",
		Status:      model.RunStatusComplete,
		CreatedAt:   time.Now().UTC().AddDate(0, 0, -60),
	}
	_, err := st.RecordRun(ctx, old)
	require.NoError(t, err)
	_, err = st.RecordRun(ctx, model.Run{Fingerprint: "new-fp", Status: model.RunStatusComplete})
	require.NoError(t, err)

	removed, err := st.DeleteRunsBefore(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	runs, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "new-fp", runs[0].Fingerprint)
}

func TestSQLite_DeleteRunsBefore_InvalidDays(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.DeleteRunsBefore(context.Background(), 0)
	require.Error(t, err)
}
