// Package statemgr implements the State Manager (spec 4.C): snapshot
// insert, lookup, target designation, and per-endpoint history.
package statemgr

import (
	"context"
	"time"

	"github.com/archsync/archsync-coordinator/internal/apperr"
	"github.com/archsync/archsync-coordinator/internal/model"
	"github.com/archsync/archsync-coordinator/internal/storage"
)

// Manager wraps a *storage.Store with the State Manager contract.
type Manager struct {
	store             *storage.Store
	retainPerEndpoint int
}

// New builds a Manager over store. retainPerEndpoint caps how many
// snapshots SaveSnapshot keeps per endpoint (spec config
// snapshots_retain_per_endpoint); <= 0 means unbounded retention.
func New(store *storage.Store, retainPerEndpoint int) *Manager {
	return &Manager{store: store, retainPerEndpoint: retainPerEndpoint}
}

// SaveSnapshot persists a package-set report from an endpoint. The
// endpoint must exist and be assigned to a pool (EndpointNotAssigned
// otherwise, surfaced here as a ValidationError per spec 4.C).
func (m *Manager) SaveSnapshot(ctx context.Context, endpointID model.ID, packages []model.PackageRecord, pacmanVersion, architecture string) (model.Snapshot, error) {
	endpoint, err := m.store.GetEndpoint(ctx, endpointID)
	if err != nil {
		return model.Snapshot{}, err
	}
	if !endpoint.InPool() {
		return model.Snapshot{}, apperr.Validationf("endpoint %s is not assigned to a pool", endpointID)
	}

	snap := model.Snapshot{
		ID:            model.NewID(),
		PoolID:        endpoint.PoolID,
		EndpointID:    endpointID,
		CapturedAt:    time.Now().UTC(),
		PacmanVersion: pacmanVersion,
		Architecture:  architecture,
		Packages:      packages,
	}
	if err := m.store.InsertSnapshot(ctx, snap); err != nil {
		return model.Snapshot{}, err
	}
	if err := m.store.DeleteSnapshotsExceptNewest(ctx, endpointID, m.retainPerEndpoint); err != nil {
		return model.Snapshot{}, err
	}
	return snap, nil
}

// GetSnapshot looks up one snapshot by id.
func (m *Manager) GetSnapshot(ctx context.Context, id model.ID) (model.Snapshot, error) {
	return m.store.GetSnapshot(ctx, id)
}

// GetTargetSnapshot returns the snapshot currently designated as pool's
// target, or a NotFoundError if the pool has none set.
func (m *Manager) GetTargetSnapshot(ctx context.Context, poolID model.ID) (model.Snapshot, error) {
	pool, err := m.store.GetPool(ctx, poolID)
	if err != nil {
		return model.Snapshot{}, err
	}
	if !pool.HasTarget() {
		return model.Snapshot{}, apperr.NotFoundf("pool %s has no target snapshot", poolID)
	}
	return m.store.GetSnapshot(ctx, pool.TargetSnapshotID)
}

// GetEndpointSnapshots returns up to limit snapshots for an endpoint,
// most-recent first. limit <= 0 means unbounded.
func (m *Manager) GetEndpointSnapshots(ctx context.Context, endpointID model.ID, limit int) ([]model.Snapshot, error) {
	all, err := m.store.ListEndpointSnapshots(ctx, endpointID)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// SetTarget designates snapshotID as poolID's target, verifying the
// snapshot is actually persisted first (SnapshotNotFound otherwise).
func (m *Manager) SetTarget(ctx context.Context, poolID, snapshotID model.ID) error {
	if _, err := m.store.GetSnapshot(ctx, snapshotID); err != nil {
		return err
	}
	return m.store.SetPoolTarget(ctx, poolID, snapshotID, time.Now().UTC())
}

// GetPreviousSnapshot returns the second-most-recent snapshot for an
// endpoint — the revert target for revert_to_previous (spec 4.F).
func (m *Manager) GetPreviousSnapshot(ctx context.Context, endpointID model.ID) (model.Snapshot, error) {
	all, err := m.store.ListEndpointSnapshots(ctx, endpointID)
	if err != nil {
		return model.Snapshot{}, err
	}
	if len(all) < 2 {
		return model.Snapshot{}, apperr.NotFoundf("endpoint %s has no previous snapshot", endpointID)
	}
	return all[1], nil
}
