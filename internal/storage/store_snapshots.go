package storage

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/archsync/archsync-coordinator/internal/apperr"
	"github.com/archsync/archsync-coordinator/internal/model"
)

// InsertSnapshot persists a new, immutable snapshot row (invariant S1:
// snapshots are never updated once written).
func (s *Store) InsertSnapshot(ctx context.Context, snap model.Snapshot) error {
	packagesJSON, err := json.Marshal(snap.Packages)
	if err != nil {
		return apperr.Internalf("marshal packages: %v", err)
	}
	_, err = s.DB.Execute(ctx,
		`INSERT INTO snapshots (id, pool_id, endpoint_id, captured_at, pacman_version, architecture, packages)
		 VALUES (`+placeholders(s.DB, 7)+`)`,
		snap.ID.String(), nullableID(snap.PoolID), snap.EndpointID.String(), snap.CapturedAt,
		snap.PacmanVersion, snap.Architecture, string(packagesJSON))
	if err != nil {
		return apperr.WrapStorage(apperr.Op("store.insert_snapshot", err))
	}
	return nil
}

func (s *Store) scanSnapshot(row interface {
	Scan(dest ...interface{}) error
}) (model.Snapshot, error) {
	var snap model.Snapshot
	var id, poolID, endpointID sql.NullString
	var packagesJSON string
	if err := row.Scan(&id, &poolID, &endpointID, &snap.CapturedAt, &snap.PacmanVersion, &snap.Architecture, &packagesJSON); err != nil {
		return model.Snapshot{}, err
	}
	parsedID, err := model.ParseID(id.String)
	if err != nil {
		return model.Snapshot{}, err
	}
	snap.ID = parsedID
	pool, err := scanNullableID(poolID)
	if err != nil {
		return model.Snapshot{}, err
	}
	snap.PoolID = pool
	endpoint, err := model.ParseID(endpointID.String)
	if err != nil {
		return model.Snapshot{}, err
	}
	snap.EndpointID = endpoint
	if err := json.Unmarshal([]byte(packagesJSON), &snap.Packages); err != nil {
		return model.Snapshot{}, err
	}
	return snap, nil
}

const snapshotColumns = `id, pool_id, endpoint_id, captured_at, pacman_version, architecture, packages`

// GetSnapshot fetches a single snapshot by id.
func (s *Store) GetSnapshot(ctx context.Context, id model.ID) (model.Snapshot, error) {
	row := s.DB.FetchOne(ctx, `SELECT `+snapshotColumns+` FROM snapshots WHERE id = `+s.DB.Placeholder(1), id.String())
	snap, err := s.scanSnapshot(row)
	if err == sql.ErrNoRows {
		return model.Snapshot{}, apperr.NotFoundf("snapshot %s not found", id)
	}
	if err != nil {
		return model.Snapshot{}, apperr.WrapStorage(apperr.Op("store.get_snapshot", err))
	}
	return snap, nil
}

// ListEndpointSnapshots returns every snapshot captured for one endpoint,
// most recent first.
func (s *Store) ListEndpointSnapshots(ctx context.Context, endpointID model.ID) ([]model.Snapshot, error) {
	rows, err := s.DB.FetchAll(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots WHERE endpoint_id = `+s.DB.Placeholder(1)+` ORDER BY captured_at DESC`,
		endpointID.String())
	if err != nil {
		return nil, apperr.WrapStorage(apperr.Op("store.list_endpoint_snapshots", err))
	}
	defer rows.Close()

	var snaps []model.Snapshot
	for rows.Next() {
		snap, err := s.scanSnapshot(rows)
		if err != nil {
			return nil, apperr.WrapStorage(apperr.Op("store.list_endpoint_snapshots.scan", err))
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// GetLatestEndpointSnapshot returns the most recently captured snapshot
// for an endpoint, or apperr.NotFound if none exist yet.
func (s *Store) GetLatestEndpointSnapshot(ctx context.Context, endpointID model.ID) (model.Snapshot, error) {
	row := s.DB.FetchOne(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots WHERE endpoint_id = `+s.DB.Placeholder(1)+
			` ORDER BY captured_at DESC LIMIT 1`, endpointID.String())
	snap, err := s.scanSnapshot(row)
	if err == sql.ErrNoRows {
		return model.Snapshot{}, apperr.NotFoundf("endpoint %s has no snapshots", endpointID)
	}
	if err != nil {
		return model.Snapshot{}, apperr.WrapStorage(apperr.Op("store.get_latest_endpoint_snapshot", err))
	}
	return snap, nil
}

// DeleteSnapshotsExceptNewest removes all but the keep newest snapshots
// for an endpoint, oldest first. keep <= 0 is a no-op (unbounded
// retention). Pruning is not an update to an existing snapshot row, so
// it does not violate invariant S1.
func (s *Store) DeleteSnapshotsExceptNewest(ctx context.Context, endpointID model.ID, keep int) error {
	if keep <= 0 {
		return nil
	}
	_, err := s.DB.Execute(ctx,
		`DELETE FROM snapshots WHERE endpoint_id = `+s.DB.Placeholder(1)+
			` AND id NOT IN (SELECT id FROM snapshots WHERE endpoint_id = `+s.DB.Placeholder(2)+
			` ORDER BY captured_at DESC LIMIT `+s.DB.Placeholder(3)+`)`,
		endpointID.String(), endpointID.String(), keep)
	if err != nil {
		return apperr.WrapStorage(apperr.Op("store.delete_snapshots_except_newest", err))
	}
	return nil
}

// GetSnapshotBefore returns the most recent snapshot captured strictly
// before the given one for the same endpoint.
func (s *Store) GetSnapshotBefore(ctx context.Context, endpointID model.ID, before model.Snapshot) (model.Snapshot, error) {
	row := s.DB.FetchOne(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots WHERE endpoint_id = `+s.DB.Placeholder(1)+
			` AND captured_at < `+s.DB.Placeholder(2)+` ORDER BY captured_at DESC LIMIT 1`,
		endpointID.String(), before.CapturedAt)
	snap, err := s.scanSnapshot(row)
	if err == sql.ErrNoRows {
		return model.Snapshot{}, apperr.NotFoundf("endpoint %s has no snapshot before %s", endpointID, before.ID)
	}
	if err != nil {
		return model.Snapshot{}, apperr.WrapStorage(apperr.Op("store.get_snapshot_before", err))
	}
	return snap, nil
}
