// Package coordinator implements the Sync Coordinator (spec 4.F), the
// heart of the core: per-endpoint serialisation, operation state
// machines, conflict analysis, and status propagation.
package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/archsync/archsync-coordinator/internal/apperr"
	"github.com/archsync/archsync-coordinator/internal/model"
	"github.com/archsync/archsync-coordinator/internal/mutator"
	"github.com/archsync/archsync-coordinator/internal/storage"
)

// Coordinator owns the single-flight reservation and the three
// processing pipelines.
type Coordinator struct {
	store   *storage.Store
	mutator mutator.Mutator
	log     *slog.Logger

	mu     sync.Mutex
	active map[model.ID]model.ID // endpoint_id -> active operation_id
}

// New builds a Coordinator. log may be nil, in which case a discarding
// logger is used.
func New(store *storage.Store, m mutator.Mutator, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.New(slog.NewTextHandler(discardWriter{}, nil))
	}
	return &Coordinator{
		store:   store,
		mutator: m,
		log:     log,
		active:  make(map[model.ID]model.ID),
	}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func (c *Coordinator) release(endpointID model.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, endpointID)
}

// isActive reports whether endpointID currently has a non-terminal
// operation reserved.
func (c *Coordinator) isActive(endpointID model.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, busy := c.active[endpointID]
	return busy
}

// admit creates a pending Operation row and reserves the single-flight
// slot for endpointID under one critical section; if the slot is
// already taken the Operation is never persisted.
func (c *Coordinator) admit(ctx context.Context, poolID, endpointID model.ID, kind model.OperationKind) (model.Operation, error) {
	c.mu.Lock()
	if _, busy := c.active[endpointID]; busy {
		c.mu.Unlock()
		return model.Operation{}, apperr.Conflictf("endpoint %s already has an active operation", endpointID)
	}

	op := model.Operation{
		ID:         model.NewID(),
		PoolID:     poolID,
		EndpointID: endpointID,
		Kind:       kind,
		Status:     model.StatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	c.active[endpointID] = op.ID
	if err := c.store.InsertOperation(ctx, op); err != nil {
		delete(c.active, endpointID)
		c.mu.Unlock()
		return model.Operation{}, err
	}
	c.mu.Unlock()
	return op, nil
}

// SyncToLatest validates preconditions, admits an operation, and
// schedules the sync_to_latest pipeline asynchronously (spec 4.F).
func (c *Coordinator) SyncToLatest(ctx context.Context, endpointID model.ID) (model.Operation, error) {
	endpoint, err := c.store.GetEndpoint(ctx, endpointID)
	if err != nil {
		return model.Operation{}, err
	}
	if !endpoint.InPool() {
		return model.Operation{}, apperr.Validationf("endpoint %s is not assigned to a pool", endpointID)
	}
	pool, err := c.store.GetPool(ctx, endpoint.PoolID)
	if err != nil {
		return model.Operation{}, err
	}
	if !pool.HasTarget() {
		return model.Operation{}, apperr.Validationf("pool %s has no target snapshot", pool.ID)
	}
	if c.isActive(endpointID) {
		return model.Operation{}, apperr.Conflictf("endpoint %s already has an active operation", endpointID)
	}

	op, err := c.admit(ctx, pool.ID, endpointID, model.KindSyncToLatest)
	if err != nil {
		return model.Operation{}, err
	}
	go c.runSyncToLatest(context.WithoutCancel(ctx), op)
	return op, nil
}

// SetAsLatest validates preconditions, admits an operation, and
// schedules the set_as_latest pipeline asynchronously.
func (c *Coordinator) SetAsLatest(ctx context.Context, endpointID model.ID) (model.Operation, error) {
	endpoint, err := c.store.GetEndpoint(ctx, endpointID)
	if err != nil {
		return model.Operation{}, err
	}
	if !endpoint.InPool() {
		return model.Operation{}, apperr.Validationf("endpoint %s is not assigned to a pool", endpointID)
	}
	if c.isActive(endpointID) {
		return model.Operation{}, apperr.Conflictf("endpoint %s already has an active operation", endpointID)
	}
	if _, err := c.store.GetLatestEndpointSnapshot(ctx, endpointID); err != nil {
		return model.Operation{}, apperr.Validationf("endpoint %s has no stored snapshot", endpointID)
	}

	op, err := c.admit(ctx, endpoint.PoolID, endpointID, model.KindSetAsLatest)
	if err != nil {
		return model.Operation{}, err
	}
	go c.runSetAsLatest(context.WithoutCancel(ctx), op)
	return op, nil
}

// RevertToPrevious validates preconditions, admits an operation, and
// schedules the revert_to_previous pipeline asynchronously.
func (c *Coordinator) RevertToPrevious(ctx context.Context, endpointID model.ID) (model.Operation, error) {
	endpoint, err := c.store.GetEndpoint(ctx, endpointID)
	if err != nil {
		return model.Operation{}, err
	}
	if !endpoint.InPool() {
		return model.Operation{}, apperr.Validationf("endpoint %s is not assigned to a pool", endpointID)
	}
	if c.isActive(endpointID) {
		return model.Operation{}, apperr.Conflictf("endpoint %s already has an active operation", endpointID)
	}
	history, err := c.store.ListEndpointSnapshots(ctx, endpointID)
	if err != nil {
		return model.Operation{}, err
	}
	if len(history) < 2 {
		return model.Operation{}, apperr.Validationf("no previous state available for endpoint %s", endpointID)
	}

	op, err := c.admit(ctx, endpoint.PoolID, endpointID, model.KindRevertToPrevious)
	if err != nil {
		return model.Operation{}, err
	}
	go c.runRevertToPrevious(context.WithoutCancel(ctx), op)
	return op, nil
}

// GetOperation fetches an operation by id.
func (c *Coordinator) GetOperation(ctx context.Context, id model.ID) (model.Operation, error) {
	return c.store.GetOperation(ctx, id)
}

// CancelOperation transitions a pending operation to cancelled and
// releases its single-flight reservation. Only valid from pending;
// in_progress operations cannot be cancelled (spec 5 "Cancellation").
func (c *Coordinator) CancelOperation(ctx context.Context, id model.ID) error {
	op, err := c.store.GetOperation(ctx, id)
	if err != nil {
		return err
	}
	if op.Status != model.StatusPending {
		return apperr.Validationf("operation %s cannot be cancelled from status %s", id, op.Status)
	}
	op.Status = model.StatusCancelled
	now := time.Now().UTC()
	op.CompletedAt = &now
	if err := c.store.UpdateOperationStatus(ctx, op); err != nil {
		return err
	}
	c.release(op.EndpointID)
	return nil
}

// ListEndpointOperations returns up to limit operations for an endpoint,
// most recent first. limit <= 0 means unbounded.
func (c *Coordinator) ListEndpointOperations(ctx context.Context, endpointID model.ID, limit int) ([]model.Operation, error) {
	ops, err := c.store.ListEndpointOperations(ctx, endpointID)
	if err != nil {
		return nil, err
	}
	return capOps(ops, limit), nil
}

// ListPoolOperations returns up to limit operations for a pool, most
// recent first.
func (c *Coordinator) ListPoolOperations(ctx context.Context, poolID model.ID, limit int) ([]model.Operation, error) {
	ops, err := c.store.ListPoolOperations(ctx, poolID)
	if err != nil {
		return nil, err
	}
	return capOps(ops, limit), nil
}

func capOps(ops []model.Operation, limit int) []model.Operation {
	if limit > 0 && len(ops) > limit {
		return ops[:limit]
	}
	return ops
}

// RecoverInterrupted marks every operation left pending/in_progress from
// a prior process as failed:"interrupted" on startup (spec 4.F "Failure
// semantics"). It must run before the coordinator accepts new work.
func (c *Coordinator) RecoverInterrupted(ctx context.Context) error {
	active, err := c.store.ListActiveOperations(ctx)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, op := range active {
		op.Status = model.StatusFailed
		op.ErrorMessage = "interrupted"
		op.CompletedAt = &now
		if err := c.store.UpdateOperationStatus(ctx, op); err != nil {
			return err
		}
		c.log.Warn("recovered interrupted operation", "operation_id", op.ID.String(), "endpoint_id", op.EndpointID.String())
	}
	return nil
}

// SweepStaleEndpoints applies the heartbeat_lost transition (spec 4.F) to
// every endpoint whose last_seen is older than threshold, moving it to
// offline. Endpoints that have never reported a heartbeat are left
// alone — staleness is measured from the last known-good contact, not
// endpoint creation.
func (c *Coordinator) SweepStaleEndpoints(ctx context.Context, threshold time.Duration) error {
	endpoints, err := c.store.ListEndpoints(ctx, model.NilID)
	if err != nil {
		return err
	}
	cutoff := time.Now().UTC().Add(-threshold)
	for _, ep := range endpoints {
		if ep.LastSeen == nil || ep.LastSeen.After(cutoff) {
			continue
		}
		next, ok := model.NextSyncStatus(ep.SyncStatus, model.EventHeartbeatLost)
		if !ok {
			continue
		}
		if err := c.store.UpdateEndpointSyncStatus(ctx, ep.ID, next, time.Now().UTC()); err != nil {
			return err
		}
		c.log.Info("endpoint marked offline after heartbeat loss", "endpoint_id", ep.ID.String())
	}
	return nil
}

func (c *Coordinator) fail(ctx context.Context, op model.Operation, reason string) {
	op.Status = model.StatusFailed
	op.ErrorMessage = reason
	now := time.Now().UTC()
	op.CompletedAt = &now
	if err := c.store.UpdateOperationStatus(ctx, op); err != nil {
		c.log.Error("failed to persist failed operation", "operation_id", op.ID.String(), "error", err)
	}
	c.release(op.EndpointID)
}

func (c *Coordinator) complete(ctx context.Context, op model.Operation) {
	op.Status = model.StatusCompleted
	now := time.Now().UTC()
	op.CompletedAt = &now
	if err := c.store.UpdateOperationStatus(ctx, op); err != nil {
		c.log.Error("failed to persist completed operation", "operation_id", op.ID.String(), "error", err)
	}
	c.release(op.EndpointID)
}

func (c *Coordinator) markInProgress(ctx context.Context, op model.Operation) model.Operation {
	op.Status = model.StatusInProgress
	if err := c.store.UpdateOperationStatus(ctx, op); err != nil {
		c.log.Error("failed to mark operation in_progress", "operation_id", op.ID.String(), "error", err)
	}
	return op
}
