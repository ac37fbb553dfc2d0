package poolmgr_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archsync/archsync-coordinator/internal/apperr"
	"github.com/archsync/archsync-coordinator/internal/model"
	"github.com/archsync/archsync-coordinator/internal/poolmgr"
	"github.com/archsync/archsync-coordinator/internal/statemgr"
	"github.com/archsync/archsync-coordinator/internal/storage"
)

func newTestManagers(t *testing.T) (*poolmgr.Manager, *storage.Store) {
	t.Helper()
	ctx := context.Background()
	db, err := storage.OpenSQLite("file::memory:?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, storage.Schema.Run(ctx, nil, db))
	store := storage.NewStore(db)
	state := statemgr.New(store, 0)
	return poolmgr.New(store, state), store
}

func TestCreatePoolValidation(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newTestManagers(t)

	_, err := mgr.CreatePool(ctx, "   ", "", nil)
	status, code := apperr.Classify(err)
	assert.Equal(t, 400, status)
	assert.Equal(t, "VALIDATION_ERROR", code)

	pool, err := mgr.CreatePool(ctx, "prod", "production fleet", nil)
	require.NoError(t, err)
	assert.Equal(t, model.ConflictResolutionManual, pool.SyncPolicy.ConflictResolution)
	assert.False(t, pool.SyncPolicy.AutoSync)

	_, err = mgr.CreatePool(ctx, "prod", "dup", nil)
	status, code = apperr.Classify(err)
	assert.Equal(t, 400, status)
	assert.Equal(t, "VALIDATION_ERROR", code)
}

func TestUpdatePoolRenameChecksUniqueness(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newTestManagers(t)

	_, err := mgr.CreatePool(ctx, "alpha", "", nil)
	require.NoError(t, err)
	beta, err := mgr.CreatePool(ctx, "beta", "", nil)
	require.NoError(t, err)

	taken := "alpha"
	_, err = mgr.UpdatePool(ctx, beta.ID, poolmgr.PoolUpdate{Name: &taken})
	status, code := apperr.Classify(err)
	assert.Equal(t, 400, status)
	assert.Equal(t, "VALIDATION_ERROR", code)

	renamed := "beta-renamed"
	updated, err := mgr.UpdatePool(ctx, beta.ID, poolmgr.PoolUpdate{Name: &renamed})
	require.NoError(t, err)
	assert.Equal(t, "beta-renamed", updated.Name)
}

func TestAssignAndRemoveEndpoint(t *testing.T) {
	ctx := context.Background()
	mgr, store := newTestManagers(t)
	now := time.Now().UTC()

	pool, err := mgr.CreatePool(ctx, "prod", "", nil)
	require.NoError(t, err)
	ep := model.Endpoint{ID: model.NewID(), Name: "e1", Hostname: "h1", SyncStatus: model.SyncStatusInSync, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.InsertEndpoint(ctx, ep))

	require.NoError(t, mgr.AssignEndpoint(ctx, pool.ID, ep.ID))
	fetched, err := store.GetEndpoint(ctx, ep.ID)
	require.NoError(t, err)
	assert.Equal(t, pool.ID, fetched.PoolID)
	assert.Equal(t, model.SyncStatusBehind, fetched.SyncStatus)

	require.NoError(t, mgr.RemoveEndpoint(ctx, pool.ID, ep.ID))
	fetched, err = store.GetEndpoint(ctx, ep.ID)
	require.NoError(t, err)
	assert.True(t, fetched.PoolID.IsNil())
	assert.Equal(t, model.SyncStatusOffline, fetched.SyncStatus)

	err = mgr.RemoveEndpoint(ctx, pool.ID, ep.ID)
	status, code := apperr.Classify(err)
	assert.Equal(t, 400, status)
	assert.Equal(t, "VALIDATION_ERROR", code)
}

func TestAssignEndpointDetachesFromPriorPool(t *testing.T) {
	ctx := context.Background()
	mgr, store := newTestManagers(t)
	now := time.Now().UTC()

	poolA, err := mgr.CreatePool(ctx, "a", "", nil)
	require.NoError(t, err)
	poolB, err := mgr.CreatePool(ctx, "b", "", nil)
	require.NoError(t, err)
	ep := model.Endpoint{ID: model.NewID(), Name: "e2", Hostname: "h2", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.InsertEndpoint(ctx, ep))

	require.NoError(t, mgr.AssignEndpoint(ctx, poolA.ID, ep.ID))
	require.NoError(t, mgr.AssignEndpoint(ctx, poolB.ID, ep.ID))

	fetched, err := store.GetEndpoint(ctx, ep.ID)
	require.NoError(t, err)
	assert.Equal(t, poolB.ID, fetched.PoolID)

	a, err := store.GetPool(ctx, poolA.ID)
	require.NoError(t, err)
	assert.Empty(t, a.EndpointIDs)
}

func TestMoveEndpointToPool(t *testing.T) {
	ctx := context.Background()
	mgr, store := newTestManagers(t)
	now := time.Now().UTC()

	poolA, err := mgr.CreatePool(ctx, "a", "", nil)
	require.NoError(t, err)
	poolB, err := mgr.CreatePool(ctx, "b", "", nil)
	require.NoError(t, err)
	ep := model.Endpoint{ID: model.NewID(), Name: "e3", Hostname: "h3", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.InsertEndpoint(ctx, ep))
	require.NoError(t, mgr.AssignEndpoint(ctx, poolA.ID, ep.ID))

	require.NoError(t, mgr.MoveEndpointToPool(ctx, ep.ID, poolA.ID, poolB.ID))
	fetched, err := store.GetEndpoint(ctx, ep.ID)
	require.NoError(t, err)
	assert.Equal(t, poolB.ID, fetched.PoolID)

	err = mgr.MoveEndpointToPool(ctx, ep.ID, poolA.ID, poolB.ID)
	status, code := apperr.Classify(err)
	assert.Equal(t, 400, status)
	assert.Equal(t, "VALIDATION_ERROR", code)
}

func TestDeletePoolDetachesEndpoints(t *testing.T) {
	ctx := context.Background()
	mgr, store := newTestManagers(t)
	now := time.Now().UTC()

	pool, err := mgr.CreatePool(ctx, "doomed", "", nil)
	require.NoError(t, err)
	ep := model.Endpoint{ID: model.NewID(), Name: "e4", Hostname: "h4", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.InsertEndpoint(ctx, ep))
	require.NoError(t, mgr.AssignEndpoint(ctx, pool.ID, ep.ID))

	require.NoError(t, mgr.DeletePool(ctx, pool.ID))

	_, err = store.GetPool(ctx, pool.ID)
	status, code := apperr.Classify(err)
	assert.Equal(t, 404, status)
	assert.Equal(t, "NOT_FOUND", code)

	fetched, err := store.GetEndpoint(ctx, ep.ID)
	require.NoError(t, err)
	assert.True(t, fetched.PoolID.IsNil())
}

func TestAggregateStatus(t *testing.T) {
	ctx := context.Background()
	mgr, store := newTestManagers(t)
	now := time.Now().UTC()

	pool, err := mgr.CreatePool(ctx, "agg", "", nil)
	require.NoError(t, err)

	e1 := model.Endpoint{ID: model.NewID(), Name: "e5", Hostname: "h5", PoolID: pool.ID, SyncStatus: model.SyncStatusInSync, CreatedAt: now, UpdatedAt: now}
	e2 := model.Endpoint{ID: model.NewID(), Name: "e6", Hostname: "h6", PoolID: pool.ID, SyncStatus: model.SyncStatusBehind, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.InsertEndpoint(ctx, e1))
	require.NoError(t, store.InsertEndpoint(ctx, e2))

	status, err := mgr.AggregateStatus(ctx, pool.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AggregatePartiallySynced, status.OverallStatus)
	assert.Equal(t, 2, status.TotalEndpoints)
	assert.InDelta(t, 50.0, status.SyncPercentage, 0.001)
}

func TestSetAndClearTargetState(t *testing.T) {
	ctx := context.Background()
	mgr, store := newTestManagers(t)
	now := time.Now().UTC()

	pool, err := mgr.CreatePool(ctx, "target-pool", "", nil)
	require.NoError(t, err)
	ep := model.Endpoint{ID: model.NewID(), Name: "e7", Hostname: "h7", PoolID: pool.ID, SyncStatus: model.SyncStatusInSync, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.InsertEndpoint(ctx, ep))

	snap := model.Snapshot{ID: model.NewID(), PoolID: pool.ID, EndpointID: ep.ID, CapturedAt: now, Packages: nil}
	require.NoError(t, store.InsertSnapshot(ctx, snap))

	require.NoError(t, mgr.SetTargetState(ctx, pool.ID, snap.ID))
	fetched, err := store.GetEndpoint(ctx, ep.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusBehind, fetched.SyncStatus)

	updatedPool, err := store.GetPool(ctx, pool.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.ID, updatedPool.TargetSnapshotID)

	require.NoError(t, mgr.ClearTargetState(ctx, pool.ID))
	updatedPool, err = store.GetPool(ctx, pool.ID)
	require.NoError(t, err)
	assert.True(t, updatedPool.TargetSnapshotID.IsNil())
}
