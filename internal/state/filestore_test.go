package state

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreSyncRecordRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewFileStore(t.TempDir())
	ctx := context.Background()

	rec := SyncRecord{
		Cluster:     "prod",
		Namespace:   "payments",
		Name:        "db-creds",
		ContentHash: "abc123",
		Status:      StatusActive,
		ItemIDs:     []string{"item-1", "item-2"},
		LastSynced:  time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.UpsertSyncRecord(ctx, rec))

	got, err := store.GetSyncRecord(ctx, "prod", "payments", "db-creds")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec, *got)

	// Upsert replaces in place.
	rec.ContentHash = "def456"
	rec.Status = StatusFailed
	rec.LastError = "boom"
	require.NoError(t, store.UpsertSyncRecord(ctx, rec))

	got, err = store.GetSyncRecord(ctx, "prod", "payments", "db-creds")
	require.NoError(t, err)
	assert.Equal(t, "def456", got.ContentHash)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "boom", got.LastError)
}

func TestFileStoreGetMissingRecord(t *testing.T) {
	t.Parallel()

	store := NewFileStore(t.TempDir())
	got, err := store.GetSyncRecord(context.Background(), "prod", "ns", "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFileStoreListSyncRecordsFiltersByCluster(t *testing.T) {
	t.Parallel()

	store := NewFileStore(t.TempDir())
	ctx := context.Background()

	for _, rec := range []SyncRecord{
		{Cluster: "prod", Namespace: "b-ns", Name: "x", Status: StatusActive},
		{Cluster: "prod", Namespace: "a-ns", Name: "y", Status: StatusActive},
		{Cluster: "staging", Namespace: "a-ns", Name: "y", Status: StatusActive},
	} {
		require.NoError(t, store.UpsertSyncRecord(ctx, rec))
	}

	records, err := store.ListSyncRecords(ctx, "prod")
	require.NoError(t, err)
	require.Len(t, records, 2)
	// Sorted by (namespace, name).
	assert.Equal(t, "a-ns", records[0].Namespace)
	assert.Equal(t, "b-ns", records[1].Namespace)
}

func TestFileStoreRunLifecycle(t *testing.T) {
	t.Parallel()

	store := NewFileStore(t.TempDir())
	ctx := context.Background()

	run := &RunState{}
	require.NoError(t, store.BeginRun(ctx, run))
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, RunInProgress, run.Status)

	counts := Counts{Created: 2, Updated: 1, Skipped: 3}
	require.NoError(t, store.CompleteRun(ctx, run.ID, RunSuccess, counts, ""))

	runs, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, RunSuccess, runs[0].Status)
	assert.Equal(t, 2, runs[0].Created)
	assert.Equal(t, 1, runs[0].Updated)
	assert.Equal(t, 3, runs[0].Skipped)
	assert.False(t, runs[0].CompletedAt.IsZero())
}

func TestFileStoreListRunsNewestFirst(t *testing.T) {
	t.Parallel()

	store := NewFileStore(t.TempDir())
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		run := &RunState{StartedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, store.BeginRun(ctx, run))
	}

	runs, err := store.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.True(t, runs[0].StartedAt.After(runs[1].StartedAt))
}

func TestFileStoreFailInterruptedRuns(t *testing.T) {
	t.Parallel()

	store := NewFileStore(t.TempDir())
	ctx := context.Background()

	crashed := &RunState{StartedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	require.NoError(t, store.BeginRun(ctx, crashed))

	finished := &RunState{StartedAt: time.Date(2026, 8, 1, 13, 0, 0, 0, time.UTC)}
	require.NoError(t, store.BeginRun(ctx, finished))
	require.NoError(t, store.CompleteRun(ctx, finished.ID, RunSuccess, Counts{}, ""))

	n, err := store.FailInterruptedRuns(ctx, "interrupted by process restart")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	runs, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	for _, run := range runs {
		if run.ID == crashed.ID {
			assert.Equal(t, RunFailed, run.Status)
			assert.Equal(t, "interrupted by process restart", run.Error)
		} else {
			assert.Equal(t, RunSuccess, run.Status)
		}
	}

	// Idempotent: nothing left to fail.
	n, err = store.FailInterruptedRuns(ctx, "again")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a-b_c", sanitizeFilename("a/b c"))
	assert.Equal(t, "plain", sanitizeFilename("plain"))
}
