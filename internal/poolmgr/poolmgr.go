// Package poolmgr implements the Pool Manager (spec 4.D): pool CRUD,
// endpoint assignment/move/unassign, and pool aggregate status.
package poolmgr

import (
	"context"
	"strings"
	"time"

	"github.com/archsync/archsync-coordinator/internal/apperr"
	"github.com/archsync/archsync-coordinator/internal/model"
	"github.com/archsync/archsync-coordinator/internal/statemgr"
	"github.com/archsync/archsync-coordinator/internal/storage"
)

// Manager wraps a *storage.Store with the Pool Manager contract.
type Manager struct {
	store *storage.Store
	state *statemgr.Manager
}

// New builds a Manager over store, delegating target-snapshot changes
// to state.
func New(store *storage.Store, state *statemgr.Manager) *Manager {
	return &Manager{store: store, state: state}
}

// CreatePool validates and persists a new pool. An empty sync_policy
// defaults to {auto_sync: false, exclude_packages: ∅, include_aur:
// false, conflict_resolution: manual} (spec 4.D).
func (m *Manager) CreatePool(ctx context.Context, name, description string, policy *model.SyncPolicy) (model.Pool, error) {
	if strings.TrimSpace(name) == "" {
		return model.Pool{}, apperr.Validationf("pool name must not be empty")
	}
	if len(name) > 255 {
		return model.Pool{}, apperr.Validationf("pool name must be at most 255 characters")
	}
	if len(description) > 1000 {
		return model.Pool{}, apperr.Validationf("pool description must be at most 1000 characters")
	}
	if _, err := m.store.GetPoolByName(ctx, name); err == nil {
		return model.Pool{}, apperr.Validationf("name already exists")
	}

	effective := model.DefaultSyncPolicy()
	if policy != nil {
		effective = *policy
	}

	now := time.Now().UTC()
	pool := model.Pool{
		ID:          model.NewID(),
		Name:        name,
		Description: description,
		SyncPolicy:  effective,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.store.InsertPool(ctx, pool); err != nil {
		return model.Pool{}, err
	}
	return pool, nil
}

// GetPool fetches a pool by id.
func (m *Manager) GetPool(ctx context.Context, id model.ID) (model.Pool, error) {
	return m.store.GetPool(ctx, id)
}

// GetPoolByName fetches a pool by its unique name.
func (m *Manager) GetPoolByName(ctx context.Context, name string) (model.Pool, error) {
	return m.store.GetPoolByName(ctx, name)
}

// ListPools returns every pool in creation order, each with its
// endpoint-id list populated.
func (m *Manager) ListPools(ctx context.Context) ([]model.Pool, error) {
	return m.store.ListPools(ctx)
}

// PoolUpdate carries the fields update_pool may change; nil fields are
// left untouched.
type PoolUpdate struct {
	Name        *string
	Description *string
	SyncPolicy  *model.SyncPolicy
}

// UpdatePool applies a partial update, re-checking name uniqueness if
// name changes.
func (m *Manager) UpdatePool(ctx context.Context, id model.ID, upd PoolUpdate) (model.Pool, error) {
	pool, err := m.store.GetPool(ctx, id)
	if err != nil {
		return model.Pool{}, err
	}

	if upd.Name != nil && *upd.Name != pool.Name {
		if strings.TrimSpace(*upd.Name) == "" {
			return model.Pool{}, apperr.Validationf("pool name must not be empty")
		}
		if len(*upd.Name) > 255 {
			return model.Pool{}, apperr.Validationf("pool name must be at most 255 characters")
		}
		if _, err := m.store.GetPoolByName(ctx, *upd.Name); err == nil {
			return model.Pool{}, apperr.Validationf("name already exists")
		}
		pool.Name = *upd.Name
	}
	if upd.Description != nil {
		if len(*upd.Description) > 1000 {
			return model.Pool{}, apperr.Validationf("pool description must be at most 1000 characters")
		}
		pool.Description = *upd.Description
	}
	if upd.SyncPolicy != nil {
		pool.SyncPolicy = *upd.SyncPolicy
	}
	pool.UpdatedAt = time.Now().UTC()

	if err := m.store.UpdatePool(ctx, pool); err != nil {
		return model.Pool{}, err
	}
	return pool, nil
}

// DeletePool detaches every assigned endpoint, then deletes the pool
// row. A failure partway must leave the database consistent; each
// detach and the final delete are independent statements so a crash
// mid-way simply leaves fewer endpoints attached, never a dangling
// reference (spec 4.D).
func (m *Manager) DeletePool(ctx context.Context, id model.ID) error {
	pool, err := m.store.GetPool(ctx, id)
	if err != nil {
		return err
	}
	for _, epID := range pool.EndpointIDs {
		if err := m.RemoveEndpoint(ctx, id, epID); err != nil {
			return err
		}
	}
	return m.store.DeletePool(ctx, id)
}

// AssignEndpoint attaches endpoint_id to pool_id, detaching it from any
// prior pool first. Post-condition: sync_status = behind (the new
// pool's target may differ from the endpoint's current state).
func (m *Manager) AssignEndpoint(ctx context.Context, poolID, endpointID model.ID) error {
	if _, err := m.store.GetPool(ctx, poolID); err != nil {
		return err
	}
	endpoint, err := m.store.GetEndpoint(ctx, endpointID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if endpoint.InPool() && endpoint.PoolID != poolID {
		if err := m.store.UpdateEndpointPool(ctx, endpointID, model.NilID, now); err != nil {
			return err
		}
	}
	if err := m.store.UpdateEndpointPool(ctx, endpointID, poolID, now); err != nil {
		return err
	}
	return m.store.UpdateEndpointSyncStatus(ctx, endpointID, model.SyncStatusBehind, now)
}

// RemoveEndpoint detaches endpoint_id from pool_id. Rejects if the
// endpoint's current pool is not pool_id. Post-condition: sync_status =
// offline.
func (m *Manager) RemoveEndpoint(ctx context.Context, poolID, endpointID model.ID) error {
	endpoint, err := m.store.GetEndpoint(ctx, endpointID)
	if err != nil {
		return err
	}
	if endpoint.PoolID != poolID {
		return apperr.Validationf("endpoint %s is not assigned to pool %s", endpointID, poolID)
	}

	now := time.Now().UTC()
	if err := m.store.UpdateEndpointPool(ctx, endpointID, model.NilID, now); err != nil {
		return err
	}
	return m.store.UpdateEndpointSyncStatus(ctx, endpointID, model.SyncStatusOffline, now)
}

// MoveEndpointToPool atomically re-assigns an endpoint from one pool to
// another.
func (m *Manager) MoveEndpointToPool(ctx context.Context, endpointID, fromPoolID, toPoolID model.ID) error {
	endpoint, err := m.store.GetEndpoint(ctx, endpointID)
	if err != nil {
		return err
	}
	if endpoint.PoolID != fromPoolID {
		return apperr.Validationf("endpoint %s is not assigned to pool %s", endpointID, fromPoolID)
	}
	if _, err := m.store.GetPool(ctx, toPoolID); err != nil {
		return err
	}
	return m.AssignEndpoint(ctx, toPoolID, endpointID)
}

// SetTargetState delegates to the State Manager, then sets every
// non-offline endpoint in the pool to behind.
func (m *Manager) SetTargetState(ctx context.Context, poolID, snapshotID model.ID) error {
	if err := m.state.SetTarget(ctx, poolID, snapshotID); err != nil {
		return err
	}
	return m.markNonOfflineBehind(ctx, poolID)
}

// ClearTargetState clears the pool's target snapshot, then sets every
// non-offline endpoint in the pool to behind.
func (m *Manager) ClearTargetState(ctx context.Context, poolID model.ID) error {
	if err := m.store.SetPoolTarget(ctx, poolID, model.NilID, time.Now().UTC()); err != nil {
		return err
	}
	return m.markNonOfflineBehind(ctx, poolID)
}

func (m *Manager) markNonOfflineBehind(ctx context.Context, poolID model.ID) error {
	endpoints, err := m.store.ListEndpoints(ctx, poolID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, ep := range endpoints {
		if ep.SyncStatus == model.SyncStatusOffline {
			continue
		}
		if err := m.store.UpdateEndpointSyncStatus(ctx, ep.ID, model.SyncStatusBehind, now); err != nil {
			return err
		}
	}
	return nil
}

// AggregateStatus computes the pool aggregate status (spec 4.D).
func (m *Manager) AggregateStatus(ctx context.Context, poolID model.ID) (model.PoolStatus, error) {
	endpoints, err := m.store.ListEndpoints(ctx, poolID)
	if err != nil {
		return model.PoolStatus{}, err
	}
	return model.ComputePoolStatus(poolID, endpoints), nil
}
