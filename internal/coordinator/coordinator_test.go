package coordinator_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archsync/archsync-coordinator/internal/apperr"
	"github.com/archsync/archsync-coordinator/internal/coordinator"
	"github.com/archsync/archsync-coordinator/internal/model"
	"github.com/archsync/archsync-coordinator/internal/mutator"
	"github.com/archsync/archsync-coordinator/internal/storage"
)

func newTestCoordinator(t *testing.T, m mutator.Mutator) (*coordinator.Coordinator, *storage.Store) {
	t.Helper()
	ctx := context.Background()
	db, err := storage.OpenSQLite("file::memory:?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, storage.Schema.Run(ctx, nil, db))
	store := storage.NewStore(db)
	if m == nil {
		m = &mutator.Stub{}
	}
	return coordinator.New(store, m, nil), store
}

func seedPoolWithTarget(t *testing.T, ctx context.Context, store *storage.Store, resolution model.ConflictResolution) (model.Pool, model.Endpoint) {
	t.Helper()
	now := time.Now().UTC()
	policy := model.DefaultSyncPolicy()
	policy.ConflictResolution = resolution
	pool := model.Pool{ID: model.NewID(), Name: "pool-" + model.NewID().String(), SyncPolicy: policy, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.InsertPool(ctx, pool))

	ep := model.Endpoint{ID: model.NewID(), Name: "ep-" + model.NewID().String(), Hostname: "host.local", PoolID: pool.ID, SyncStatus: model.SyncStatusBehind, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.InsertEndpoint(ctx, ep))

	target := model.Snapshot{
		ID:           model.NewID(),
		PoolID:       pool.ID,
		EndpointID:   ep.ID,
		CapturedAt:   now,
		PacmanVersion: "6.1.0",
		Architecture: "x86_64",
		Packages:     []model.PackageRecord{{Name: "gcc", Version: "12.2.0"}},
	}
	require.NoError(t, store.InsertSnapshot(ctx, target))
	require.NoError(t, store.SetPoolTarget(ctx, pool.ID, target.ID, now))

	// The endpoint's own latest state lags the target, so a sync sees one
	// version_mismatch conflict on gcc.
	current := model.Snapshot{ID: model.NewID(), PoolID: pool.ID, EndpointID: ep.ID, CapturedAt: now.Add(time.Millisecond), PacmanVersion: "6.1.0", Architecture: "x86_64", Packages: []model.PackageRecord{{Name: "gcc", Version: "11.2.0"}}}
	require.NoError(t, store.InsertSnapshot(ctx, current))

	pool, err := store.GetPool(ctx, pool.ID)
	require.NoError(t, err)
	return pool, ep
}

func awaitTerminal(t *testing.T, c *coordinator.Coordinator, opID model.ID) model.Operation {
	t.Helper()
	var op model.Operation
	assert.Eventually(t, func() bool {
		var err error
		op, err = c.GetOperation(context.Background(), opID)
		require.NoError(t, err)
		return op.Status == model.StatusCompleted || op.Status == model.StatusFailed || op.Status == model.StatusCancelled
	}, 2*time.Second, time.Millisecond)
	return op
}

func TestSyncToLatestHappyPath(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCoordinator(t, nil)
	pool, ep := seedPoolWithTarget(t, ctx, store, model.ConflictResolutionNewest)

	op, err := c.SyncToLatest(ctx, ep.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, op.Status)

	final := awaitTerminal(t, c, op.ID)
	assert.Equal(t, model.StatusCompleted, final.Status)
	assert.Equal(t, "completed", final.Details.Stage)

	updated, err := store.GetEndpoint(ctx, ep.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusInSync, updated.SyncStatus)

	_ = pool
}

func TestSyncToLatestManualResolutionFails(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCoordinator(t, nil)
	_, ep := seedPoolWithTarget(t, ctx, store, model.ConflictResolutionManual)

	op, err := c.SyncToLatest(ctx, ep.ID)
	require.NoError(t, err)

	final := awaitTerminal(t, c, op.ID)
	assert.Equal(t, model.StatusFailed, final.Status)
	assert.Contains(t, final.ErrorMessage, "manual conflict resolution required")
}

func TestSyncToLatestRequiresPoolTarget(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCoordinator(t, nil)
	now := time.Now().UTC()
	pool := model.Pool{ID: model.NewID(), Name: "no-target", SyncPolicy: model.DefaultSyncPolicy(), CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.InsertPool(ctx, pool))
	ep := model.Endpoint{ID: model.NewID(), Name: "ep", Hostname: "h", PoolID: pool.ID, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.InsertEndpoint(ctx, ep))

	_, err := c.SyncToLatest(ctx, ep.ID)
	status, code := apperr.Classify(err)
	assert.Equal(t, 400, status)
	assert.Equal(t, "VALIDATION_ERROR", code)
}

func TestSingleFlightRejectsConcurrentOperation(t *testing.T) {
	ctx := context.Background()
	block := make(chan struct{})
	c, store := newTestCoordinator(t, &mutator.Stub{ApplyFunc: func(ctx context.Context, intent mutator.Intent) (mutator.Outcome, error) {
		<-block
		return mutator.Outcome{Success: true}, nil
	}})
	_, ep := seedPoolWithTarget(t, ctx, store, model.ConflictResolutionNewest)

	op, err := c.SyncToLatest(ctx, ep.ID)
	require.NoError(t, err)

	_, err = c.SyncToLatest(ctx, ep.ID)
	status, code := apperr.Classify(err)
	assert.Equal(t, 409, status)
	assert.Equal(t, "CONFLICT", code)

	close(block)
	awaitTerminal(t, c, op.ID)
}

func TestSetAsLatestPromotesSnapshotAndMarksPoolBehind(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCoordinator(t, nil)
	now := time.Now().UTC()

	pool := model.Pool{ID: model.NewID(), Name: "pool", SyncPolicy: model.DefaultSyncPolicy(), CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.InsertPool(ctx, pool))

	leader := model.Endpoint{ID: model.NewID(), Name: "leader", Hostname: "h1", PoolID: pool.ID, SyncStatus: model.SyncStatusAhead, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.InsertEndpoint(ctx, leader))
	follower := model.Endpoint{ID: model.NewID(), Name: "follower", Hostname: "h2", PoolID: pool.ID, SyncStatus: model.SyncStatusInSync, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.InsertEndpoint(ctx, follower))

	snap := model.Snapshot{ID: model.NewID(), PoolID: pool.ID, EndpointID: leader.ID, CapturedAt: now, PacmanVersion: "6.1.0", Architecture: "x86_64", Packages: []model.PackageRecord{{Name: "gcc", Version: "13.0.0"}}}
	require.NoError(t, store.InsertSnapshot(ctx, snap))

	op, err := c.SetAsLatest(ctx, leader.ID)
	require.NoError(t, err)

	final := awaitTerminal(t, c, op.ID)
	assert.Equal(t, model.StatusCompleted, final.Status)

	updatedPool, err := store.GetPool(ctx, pool.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.ID, updatedPool.TargetSnapshotID)

	updatedLeader, err := store.GetEndpoint(ctx, leader.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusInSync, updatedLeader.SyncStatus)

	updatedFollower, err := store.GetEndpoint(ctx, follower.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusBehind, updatedFollower.SyncStatus)
}

func TestRevertToPreviousRequiresTwoSnapshots(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCoordinator(t, nil)
	now := time.Now().UTC()
	pool := model.Pool{ID: model.NewID(), Name: "pool", SyncPolicy: model.DefaultSyncPolicy(), CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.InsertPool(ctx, pool))
	ep := model.Endpoint{ID: model.NewID(), Name: "ep", Hostname: "h", PoolID: pool.ID, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.InsertEndpoint(ctx, ep))

	_, err := c.RevertToPrevious(ctx, ep.ID)
	status, code := apperr.Classify(err)
	assert.Equal(t, 400, status)
	assert.Equal(t, "VALIDATION_ERROR", code)
}

func TestRevertToPreviousHappyPath(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCoordinator(t, nil)
	now := time.Now().UTC()
	pool := model.Pool{ID: model.NewID(), Name: "pool", SyncPolicy: model.DefaultSyncPolicy(), CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.InsertPool(ctx, pool))
	ep := model.Endpoint{ID: model.NewID(), Name: "ep", Hostname: "h", PoolID: pool.ID, SyncStatus: model.SyncStatusAhead, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.InsertEndpoint(ctx, ep))

	older := model.Snapshot{ID: model.NewID(), PoolID: pool.ID, EndpointID: ep.ID, CapturedAt: now, PacmanVersion: "6.1.0", Architecture: "x86_64", Packages: []model.PackageRecord{{Name: "gcc", Version: "12.2.0"}}}
	require.NoError(t, store.InsertSnapshot(ctx, older))
	newer := model.Snapshot{ID: model.NewID(), PoolID: pool.ID, EndpointID: ep.ID, CapturedAt: now.Add(time.Millisecond), PacmanVersion: "6.1.0", Architecture: "x86_64", Packages: []model.PackageRecord{{Name: "gcc", Version: "13.0.0"}}}
	require.NoError(t, store.InsertSnapshot(ctx, newer))

	op, err := c.RevertToPrevious(ctx, ep.ID)
	require.NoError(t, err)

	final := awaitTerminal(t, c, op.ID)
	assert.Equal(t, model.StatusCompleted, final.Status)
	assert.Equal(t, older.ID, final.Details.TargetSnapshotID)

	updated, err := store.GetEndpoint(ctx, ep.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusInSync, updated.SyncStatus)
}

func TestCancelOperationOnlyFromPending(t *testing.T) {
	ctx := context.Background()
	block := make(chan struct{})
	c, store := newTestCoordinator(t, &mutator.Stub{ApplyFunc: func(ctx context.Context, intent mutator.Intent) (mutator.Outcome, error) {
		<-block
		return mutator.Outcome{Success: true}, nil
	}})
	_, ep := seedPoolWithTarget(t, ctx, store, model.ConflictResolutionNewest)

	op, err := c.SyncToLatest(ctx, ep.ID)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		cur, err := c.GetOperation(ctx, op.ID)
		require.NoError(t, err)
		return cur.Status == model.StatusInProgress
	}, 2*time.Second, time.Millisecond)

	err = c.CancelOperation(ctx, op.ID)
	status, code := apperr.Classify(err)
	assert.Equal(t, 400, status)
	assert.Equal(t, "VALIDATION_ERROR", code)

	close(block)
	awaitTerminal(t, c, op.ID)
}

func TestRecoverInterruptedMarksActiveOperationsFailed(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCoordinator(t, nil)
	now := time.Now().UTC()
	pool := model.Pool{ID: model.NewID(), Name: "pool", SyncPolicy: model.DefaultSyncPolicy(), CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.InsertPool(ctx, pool))
	ep := model.Endpoint{ID: model.NewID(), Name: "ep", Hostname: "h", PoolID: pool.ID, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.InsertEndpoint(ctx, ep))

	stale := model.Operation{ID: model.NewID(), PoolID: pool.ID, EndpointID: ep.ID, Kind: model.KindSyncToLatest, Status: model.StatusInProgress, CreatedAt: now}
	require.NoError(t, store.InsertOperation(ctx, stale))

	require.NoError(t, c.RecoverInterrupted(ctx))

	recovered, err := store.GetOperation(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, recovered.Status)
	assert.Equal(t, "interrupted", recovered.ErrorMessage)
	require.NotNil(t, recovered.CompletedAt)
}

func TestSweepStaleEndpointsMarksOffline(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCoordinator(t, nil)
	now := time.Now().UTC()

	stale := now.Add(-time.Hour)
	fresh := now

	epStale := model.Endpoint{ID: model.NewID(), Name: "stale", Hostname: "h1", SyncStatus: model.SyncStatusInSync, LastSeen: &stale, CreatedAt: now, UpdatedAt: now}
	epFresh := model.Endpoint{ID: model.NewID(), Name: "fresh", Hostname: "h2", SyncStatus: model.SyncStatusInSync, LastSeen: &fresh, CreatedAt: now, UpdatedAt: now}
	epNeverSeen := model.Endpoint{ID: model.NewID(), Name: "never", Hostname: "h3", SyncStatus: model.SyncStatusInSync, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.InsertEndpoint(ctx, epStale))
	require.NoError(t, store.InsertEndpoint(ctx, epFresh))
	require.NoError(t, store.InsertEndpoint(ctx, epNeverSeen))

	require.NoError(t, c.SweepStaleEndpoints(ctx, 10*time.Minute))

	got, err := store.GetEndpoint(ctx, epStale.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusOffline, got.SyncStatus)

	got, err = store.GetEndpoint(ctx, epFresh.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusInSync, got.SyncStatus)

	got, err = store.GetEndpoint(ctx, epNeverSeen.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusInSync, got.SyncStatus)
}
