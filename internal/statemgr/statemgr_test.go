package statemgr_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archsync/archsync-coordinator/internal/apperr"
	"github.com/archsync/archsync-coordinator/internal/model"
	"github.com/archsync/archsync-coordinator/internal/statemgr"
	"github.com/archsync/archsync-coordinator/internal/storage"
)

func newTestManager(t *testing.T) (*statemgr.Manager, *storage.Store) {
	t.Helper()
	ctx := context.Background()
	db, err := storage.OpenSQLite("file::memory:?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, storage.Schema.Run(ctx, nil, db))
	store := storage.NewStore(db)
	return statemgr.New(store, 0), store
}

func seedPoolAndEndpoint(t *testing.T, ctx context.Context, store *storage.Store, assigned bool) (model.Pool, model.Endpoint) {
	t.Helper()
	now := time.Now().UTC()
	pool := model.Pool{ID: model.NewID(), Name: "pool-" + model.NewID().String(), SyncPolicy: model.DefaultSyncPolicy(), CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.InsertPool(ctx, pool))

	ep := model.Endpoint{ID: model.NewID(), Name: "ep-" + model.NewID().String(), Hostname: "host.local", CreatedAt: now, UpdatedAt: now}
	if assigned {
		ep.PoolID = pool.ID
	}
	require.NoError(t, store.InsertEndpoint(ctx, ep))
	return pool, ep
}

func TestSaveSnapshotRequiresPoolAssignment(t *testing.T) {
	ctx := context.Background()
	mgr, store := newTestManager(t)
	_, ep := seedPoolAndEndpoint(t, ctx, store, false)

	_, err := mgr.SaveSnapshot(ctx, ep.ID, nil, "6.1.0", "x86_64")
	status, code := apperr.Classify(err)
	assert.Equal(t, 400, status)
	assert.Equal(t, "VALIDATION_ERROR", code)
}

func TestSaveAndGetSnapshot(t *testing.T) {
	ctx := context.Background()
	mgr, store := newTestManager(t)
	_, ep := seedPoolAndEndpoint(t, ctx, store, true)

	packages := []model.PackageRecord{{Name: "gcc", Version: "11.2.0"}}
	snap, err := mgr.SaveSnapshot(ctx, ep.ID, packages, "6.1.0", "x86_64")
	require.NoError(t, err)

	fetched, err := mgr.GetSnapshot(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.ID, fetched.ID)
	assert.Equal(t, packages, fetched.Packages)
}

func TestSetTargetAndGetTargetSnapshot(t *testing.T) {
	ctx := context.Background()
	mgr, store := newTestManager(t)
	pool, ep := seedPoolAndEndpoint(t, ctx, store, true)

	_, err := mgr.GetTargetSnapshot(ctx, pool.ID)
	status, code := apperr.Classify(err)
	assert.Equal(t, 404, status)
	assert.Equal(t, "NOT_FOUND", code)

	snap, err := mgr.SaveSnapshot(ctx, ep.ID, []model.PackageRecord{{Name: "gcc", Version: "11.2.0"}}, "6.1.0", "x86_64")
	require.NoError(t, err)

	require.NoError(t, mgr.SetTarget(ctx, pool.ID, snap.ID))

	target, err := mgr.GetTargetSnapshot(ctx, pool.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.ID, target.ID)
}

func TestSetTargetRejectsUnknownSnapshot(t *testing.T) {
	ctx := context.Background()
	mgr, store := newTestManager(t)
	pool, _ := seedPoolAndEndpoint(t, ctx, store, true)

	err := mgr.SetTarget(ctx, pool.ID, model.NewID())
	status, code := apperr.Classify(err)
	assert.Equal(t, 404, status)
	assert.Equal(t, "NOT_FOUND", code)
}

func TestGetPreviousSnapshot(t *testing.T) {
	ctx := context.Background()
	mgr, store := newTestManager(t)
	_, ep := seedPoolAndEndpoint(t, ctx, store, true)

	_, err := mgr.GetPreviousSnapshot(ctx, ep.ID)
	status, code := apperr.Classify(err)
	assert.Equal(t, 404, status)
	assert.Equal(t, "NOT_FOUND", code)

	first, err := mgr.SaveSnapshot(ctx, ep.ID, []model.PackageRecord{{Name: "gcc", Version: "11.1.0"}}, "6.1.0", "x86_64")
	require.NoError(t, err)

	_, err = mgr.GetPreviousSnapshot(ctx, ep.ID)
	status, code = apperr.Classify(err)
	assert.Equal(t, 404, status)
	assert.Equal(t, "NOT_FOUND", code)

	time.Sleep(time.Millisecond)
	_, err = mgr.SaveSnapshot(ctx, ep.ID, []model.PackageRecord{{Name: "gcc", Version: "11.2.0"}}, "6.1.0", "x86_64")
	require.NoError(t, err)

	prev, err := mgr.GetPreviousSnapshot(ctx, ep.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, prev.ID)
}

func TestGetEndpointSnapshotsLimit(t *testing.T) {
	ctx := context.Background()
	mgr, store := newTestManager(t)
	_, ep := seedPoolAndEndpoint(t, ctx, store, true)

	for i := 0; i < 3; i++ {
		_, err := mgr.SaveSnapshot(ctx, ep.ID, []model.PackageRecord{{Name: "gcc", Version: "11.2.0"}}, "6.1.0", "x86_64")
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}

	all, err := mgr.GetEndpointSnapshots(ctx, ep.ID, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	limited, err := mgr.GetEndpointSnapshots(ctx, ep.ID, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestSaveSnapshotPrunesToRetentionLimit(t *testing.T) {
	ctx := context.Background()
	_, store := newTestManager(t)
	mgr := statemgr.New(store, 2)
	_, ep := seedPoolAndEndpoint(t, ctx, store, true)

	var last model.Snapshot
	for i := 0; i < 4; i++ {
		var err error
		last, err = mgr.SaveSnapshot(ctx, ep.ID, []model.PackageRecord{{Name: "gcc", Version: "11.2.0"}}, "6.1.0", "x86_64")
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}

	all, err := mgr.GetEndpointSnapshots(ctx, ep.ID, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, last.ID, all[0].ID)
}
