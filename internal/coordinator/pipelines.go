package coordinator

import (
	"context"
	"strconv"
	"time"

	"github.com/archsync/archsync-coordinator/internal/model"
	"github.com/archsync/archsync-coordinator/internal/mutator"
)

// runSyncToLatest implements the sync_to_latest pipeline (spec 4.F): move
// an endpoint's installed set toward the pool's designated target
// snapshot, analysing and (unless the policy is manual) auto-resolving
// conflicts along the way.
func (c *Coordinator) runSyncToLatest(ctx context.Context, op model.Operation) {
	op = c.markInProgress(ctx, op)

	endpoint, err := c.store.GetEndpoint(ctx, op.EndpointID)
	if err != nil {
		c.fail(ctx, op, err.Error())
		return
	}
	pool, err := c.store.GetPool(ctx, op.PoolID)
	if err != nil {
		c.fail(ctx, op, err.Error())
		return
	}
	target, err := c.store.GetSnapshot(ctx, pool.TargetSnapshotID)
	if err != nil {
		c.fail(ctx, op, err.Error())
		return
	}

	var current model.Snapshot
	if latest, err := c.store.GetLatestEndpointSnapshot(ctx, op.EndpointID); err == nil {
		current = latest
	}

	op.Details.CurrentSnapshotID = current.ID
	op.Details.TargetSnapshotID = target.ID
	op.Details.Stage = "analyzing_conflicts"

	conflicts := AnalyzeConflicts(current.Packages, target.Packages)
	op.Details.Conflicts = conflicts

	if len(conflicts) > 0 {
		resolved, ok := ResolveConflicts(conflicts, pool.SyncPolicy.ConflictResolution)
		if !ok {
			c.fail(ctx, op, manualResolutionMessage(len(conflicts)))
			return
		}
		op.Details.Resolved = resolved
		op.Details.Stage = "applying"

		outcome, err := c.mutator.Apply(ctx, buildIntent(op.EndpointID, resolved))
		if err != nil {
			c.fail(ctx, op, err.Error())
			return
		}
		if !outcome.Success {
			c.fail(ctx, op, outcome.Error)
			return
		}
	}

	now := time.Now().UTC()
	if err := c.store.UpdateEndpointSyncStatus(ctx, endpoint.ID, model.SyncStatusInSync, now); err != nil {
		c.fail(ctx, op, err.Error())
		return
	}

	op.Details.Stage = "completed"
	c.complete(ctx, op)
}

// runSetAsLatest implements the set_as_latest pipeline (spec 4.F): the
// endpoint's most recent snapshot becomes the pool's designated target,
// and every other non-offline endpoint in the pool is marked behind.
func (c *Coordinator) runSetAsLatest(ctx context.Context, op model.Operation) {
	op = c.markInProgress(ctx, op)

	snap, err := c.store.GetLatestEndpointSnapshot(ctx, op.EndpointID)
	if err != nil {
		c.fail(ctx, op, err.Error())
		return
	}
	op.Details.TargetSnapshotID = snap.ID
	op.Details.Stage = "designating_target"

	now := time.Now().UTC()
	if err := c.store.SetPoolTarget(ctx, op.PoolID, snap.ID, now); err != nil {
		c.fail(ctx, op, err.Error())
		return
	}
	if err := c.store.UpdateEndpointSyncStatus(ctx, op.EndpointID, model.SyncStatusInSync, now); err != nil {
		c.fail(ctx, op, err.Error())
		return
	}

	endpoints, err := c.store.ListEndpoints(ctx, op.PoolID)
	if err != nil {
		c.fail(ctx, op, err.Error())
		return
	}
	for _, ep := range endpoints {
		if ep.ID == op.EndpointID || ep.SyncStatus == model.SyncStatusOffline {
			continue
		}
		if err := c.store.UpdateEndpointSyncStatus(ctx, ep.ID, model.SyncStatusBehind, now); err != nil {
			c.fail(ctx, op, err.Error())
			return
		}
	}

	op.Details.Stage = "completed"
	c.complete(ctx, op)
}

// runRevertToPrevious implements the revert_to_previous pipeline (spec
// 4.F): treat the endpoint's second-most-recent snapshot as the target,
// run the same conflict analysis as sync_to_latest, and resolve every
// conflict to the previous snapshot's version regardless of the pool's
// conflict-resolution policy. The pool's designated target is not touched.
func (c *Coordinator) runRevertToPrevious(ctx context.Context, op model.Operation) {
	op = c.markInProgress(ctx, op)

	history, err := c.store.ListEndpointSnapshots(ctx, op.EndpointID)
	if err != nil {
		c.fail(ctx, op, err.Error())
		return
	}
	if len(history) < 2 {
		c.fail(ctx, op, "no previous state available")
		return
	}
	current := history[0]
	previous := history[1]

	op.Details.CurrentSnapshotID = current.ID
	op.Details.TargetSnapshotID = previous.ID
	op.Details.Stage = "analyzing_conflicts"

	conflicts := AnalyzeConflicts(current.Packages, previous.Packages)
	op.Details.Conflicts = conflicts

	if len(conflicts) > 0 {
		resolved := make([]model.SyncConflict, 0, len(conflicts))
		for _, conflict := range conflicts {
			conflict.ResolvedVersion = conflict.TargetVersion
			resolved = append(resolved, conflict)
		}
		op.Details.Resolved = resolved
		op.Details.Stage = "applying"

		outcome, err := c.mutator.Apply(ctx, buildIntent(op.EndpointID, resolved))
		if err != nil {
			c.fail(ctx, op, err.Error())
			return
		}
		if !outcome.Success {
			c.fail(ctx, op, outcome.Error)
			return
		}
	}

	now := time.Now().UTC()
	if err := c.store.UpdateEndpointSyncStatus(ctx, op.EndpointID, model.SyncStatusInSync, now); err != nil {
		c.fail(ctx, op, err.Error())
		return
	}

	op.Details.Stage = "completed"
	c.complete(ctx, op)
}

// manualResolutionMessage always uses the plural "conflicts", including
// for n == 1 — the wording is a fixed protocol string, not English prose.
func manualResolutionMessage(n int) string {
	return "manual conflict resolution required for " + strconv.Itoa(n) + " conflicts"
}

func buildIntent(endpointID model.ID, conflicts []model.SyncConflict) mutator.Intent {
	actions := make([]mutator.PackageAction, 0, len(conflicts))
	for _, c := range conflicts {
		switch c.Kind {
		case model.ConflictVersionMismatch:
			actions = append(actions, mutator.PackageAction{
				PackageName: c.PackageName,
				FromVersion: c.CurrentVersion,
				ToVersion:   c.ResolvedVersion,
				Kind:        mutator.ActionUpgrade,
			})
		case model.ConflictMissingPackage:
			if c.CurrentVersion == "" {
				actions = append(actions, mutator.PackageAction{
					PackageName: c.PackageName,
					ToVersion:   c.ResolvedVersion,
					Kind:        mutator.ActionInstall,
				})
			} else {
				actions = append(actions, mutator.PackageAction{
					PackageName: c.PackageName,
					FromVersion: c.CurrentVersion,
					Kind:        mutator.ActionRemove,
				})
			}
		}
	}
	return mutator.Intent{EndpointID: endpointID.String(), Actions: actions}
}
