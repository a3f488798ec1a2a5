package coordinator

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/vaultmirror/internal/cluster"
	"github.com/systmms/vaultmirror/internal/logging"
	"github.com/systmms/vaultmirror/internal/reconcile"
	"github.com/systmms/vaultmirror/internal/state"
	"github.com/systmms/vaultmirror/internal/vault"
)

func testLogger() *logging.Logger {
	return logging.NewWithWriter(false, true, &bytes.Buffer{})
}

func testItems() []vault.Item {
	return []vault.Item{
		{
			ID:    "item-1",
			Name:  "db-admin",
			Type:  vault.TypeLogin,
			Login: &vault.Login{Username: "admin", Password: "pw"},
			Fields: []vault.Field{
				{Name: "namespaces", Value: "apps"},
			},
		},
		{
			ID:    "item-2",
			Name:  "api-token",
			Type:  vault.TypeSecureNote,
			Notes: "vaultmirror:namespaces=apps\ntoken-value",
		},
	}
}

func newTestCoordinator(t *testing.T, source vault.ItemSource, gw cluster.Gateway, opts Options) (*Coordinator, state.Store) {
	t.Helper()
	store := state.NewFileStore(t.TempDir())
	return New(source, []cluster.Gateway{gw}, store, testLogger(), opts), store
}

func TestRunOnceCreatesUpdatesAndSkips(t *testing.T) {
	t.Parallel()

	source := vault.NewStaticSource(testItems())
	gw := cluster.NewFakeGateway("prod", "apps")
	coord, store := newTestCoordinator(t, source, gw, Options{})
	ctx := context.Background()

	// First pass creates everything.
	summary, err := coord.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, state.RunSuccess, summary.Status)
	assert.Equal(t, 2, summary.Counts.Created)

	sec, err := gw.GetSecret(ctx, "apps", "db-admin")
	require.NoError(t, err)
	assert.Equal(t, []byte("pw"), sec.Data["db-admin"])
	assert.Equal(t, []byte("admin"), sec.Data["db-admin_username"])

	sec, err = gw.GetSecret(ctx, "apps", "api-token")
	require.NoError(t, err)
	assert.Equal(t, []byte("token-value"), sec.Data["api-token"])

	// Second pass over unchanged items skips everything.
	summary, err = coord.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Counts.Skipped)
	assert.Equal(t, 0, summary.Counts.Created)

	// A source-side edit bumps the content hash and triggers an update.
	items := testItems()
	items[0].Login.Password = "rotated"
	source.SetItems(items)

	summary, err = coord.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Counts.Updated)
	assert.Equal(t, 1, summary.Counts.Skipped)

	sec, err = gw.GetSecret(ctx, "apps", "db-admin")
	require.NoError(t, err)
	assert.Equal(t, []byte("rotated"), sec.Data["db-admin"])

	// Three completed runs on record, newest first.
	runs, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	for _, run := range runs {
		assert.Equal(t, state.RunSuccess, run.Status)
	}
}

func TestRunOnceDeletesOrphans(t *testing.T) {
	t.Parallel()

	source := vault.NewStaticSource(testItems())
	gw := cluster.NewFakeGateway("prod", "apps")
	coord, store := newTestCoordinator(t, source, gw, Options{
		Reconcile: reconcile.Options{OrphanCleanup: true},
	})
	ctx := context.Background()

	_, err := coord.RunOnce(ctx)
	require.NoError(t, err)

	// Drop one item; its secret becomes an orphan.
	source.SetItems(testItems()[:1])

	summary, err := coord.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Counts.Deleted)

	_, err = gw.GetSecret(ctx, "apps", "api-token")
	assert.True(t, cluster.IsNotFound(err))

	rec, err := store.GetSyncRecord(ctx, "prod", "apps", "api-token")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, state.StatusDeleted, rec.Status)
}

func TestRunOnceRecordsSourceFailure(t *testing.T) {
	t.Parallel()

	source := vault.NewFailingSource(errors.New("vault exploded"))
	gw := cluster.NewFakeGateway("prod", "apps")
	coord, store := newTestCoordinator(t, source, gw, Options{})
	ctx := context.Background()

	summary, err := coord.RunOnce(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vault exploded")
	assert.Equal(t, state.RunFailed, summary.Status)

	runs, err := store.ListRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, state.RunFailed, runs[0].Status)
	assert.NotEmpty(t, runs[0].Error)
}

func TestRunOnceRecordsTargetFailures(t *testing.T) {
	t.Parallel()

	source := vault.NewStaticSource(testItems())
	gw := cluster.NewFakeGateway("prod", "apps")
	gw.FailOn["apps/db-admin"] = errors.New("admission webhook rejected")
	coord, store := newTestCoordinator(t, source, gw, Options{})
	ctx := context.Background()

	// A target failure marks the run failed but the pass itself completes.
	summary, err := coord.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, state.RunFailed, summary.Status)
	assert.Equal(t, 1, summary.Counts.Failed)
	assert.Equal(t, 1, summary.Counts.Created)

	// The run row's error text distinguishes this from a run that died
	// before reconciling.
	runs, err := store.ListRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, state.RunFailed, runs[0].Status)
	assert.Equal(t, "completed with 1 failed target(s)", runs[0].Error)
	assert.Equal(t, 1, runs[0].Failed)
}

func TestRunOnceRecordsConfiguredInterval(t *testing.T) {
	t.Parallel()

	source := vault.NewStaticSource(testItems())
	gw := cluster.NewFakeGateway("prod", "apps")
	coord, store := newTestCoordinator(t, source, gw, Options{Interval: 5 * time.Minute})
	ctx := context.Background()

	_, err := coord.RunOnce(ctx)
	require.NoError(t, err)

	runs, err := store.ListRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 5*time.Minute, runs[0].Interval)
}

func TestRunOnceWarningsDoNotFailRun(t *testing.T) {
	t.Parallel()

	items := testItems()
	items = append(items, vault.Item{ID: "item-3", Name: "untagged", Login: &vault.Login{Password: "pw"}})
	source := vault.NewStaticSource(items)
	gw := cluster.NewFakeGateway("prod", "apps")
	coord, _ := newTestCoordinator(t, source, gw, Options{})

	summary, err := coord.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, state.RunSuccess, summary.Status)
	require.NotEmpty(t, summary.Warnings)
	assert.Contains(t, summary.Warnings[0], "untagged")
}

func TestRunOnceRespectsLockFile(t *testing.T) {
	t.Parallel()

	lockPath := t.TempDir() + "/vaultmirror.lock"
	lock, err := AcquireFileLock(lockPath)
	require.NoError(t, err)
	defer lock.Release()

	source := vault.NewStaticSource(testItems())
	gw := cluster.NewFakeGateway("prod", "apps")
	coord, store := newTestCoordinator(t, source, gw, Options{LockPath: lockPath})

	_, err = coord.RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	// A rejected pass leaves no trace in the run history.
	runs, err := store.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRecoverInterruptedRuns(t *testing.T) {
	t.Parallel()

	source := vault.NewStaticSource(testItems())
	gw := cluster.NewFakeGateway("prod", "apps")
	coord, store := newTestCoordinator(t, source, gw, Options{})
	ctx := context.Background()

	// Simulate a crash: a run begun but never completed.
	crashed := &state.RunState{StartedAt: time.Now().UTC().Add(-time.Hour)}
	require.NoError(t, store.BeginRun(ctx, crashed))

	require.NoError(t, coord.RecoverInterruptedRuns(ctx))

	runs, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, state.RunFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "interrupted")
}

func TestRunContinuousStopsOnCancel(t *testing.T) {
	t.Parallel()

	source := vault.NewStaticSource(testItems())
	gw := cluster.NewFakeGateway("prod", "apps")
	coord, store := newTestCoordinator(t, source, gw, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- coord.RunContinuous(ctx, time.Hour)
	}()

	// The first pass runs immediately; wait for its run record, then cancel.
	require.Eventually(t, func() bool {
		runs, err := store.ListRuns(context.Background(), 1)
		return err == nil && len(runs) == 1 && runs[0].Status == state.RunSuccess
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("continuous loop did not stop after cancellation")
	}

	// Continuous runs carry their interval on the run row.
	runs, err := store.ListRuns(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, time.Hour, runs[0].Interval)
}

func TestRunContinuousRejectsBadInterval(t *testing.T) {
	t.Parallel()

	source := vault.NewStaticSource(nil)
	gw := cluster.NewFakeGateway("prod")
	coord, _ := newTestCoordinator(t, source, gw, Options{})

	err := coord.RunContinuous(context.Background(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interval")
}
