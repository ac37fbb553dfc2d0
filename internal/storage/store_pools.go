package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/archsync/archsync-coordinator/internal/apperr"
	"github.com/archsync/archsync-coordinator/internal/model"
)

func nullableID(id model.ID) interface{} {
	if id.IsNil() {
		return nil
	}
	return id.String()
}

func scanNullableID(raw sql.NullString) (model.ID, error) {
	if !raw.Valid || raw.String == "" {
		return model.NilID, nil
	}
	return model.ParseID(raw.String)
}

// InsertPool persists a brand new pool row.
func (s *Store) InsertPool(ctx context.Context, p model.Pool) error {
	policyJSON, err := json.Marshal(p.SyncPolicy)
	if err != nil {
		return apperr.Internalf("marshal sync_policy: %v", err)
	}
	_, err = s.DB.Execute(ctx,
		`INSERT INTO pools (id, name, description, target_snapshot_id, sync_policy, created_at, updated_at)
		 VALUES (`+placeholders(s.DB, 7)+`)`,
		p.ID.String(), p.Name, p.Description, nullableID(p.TargetSnapshotID), string(policyJSON), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return apperr.WrapStorage(apperr.Op("store.insert_pool", err))
	}
	return nil
}

func (s *Store) scanPool(row interface {
	Scan(dest ...interface{}) error
}) (model.Pool, error) {
	var p model.Pool
	var id, targetID sql.NullString
	var policyJSON string
	if err := row.Scan(&id, &p.Name, &p.Description, &targetID, &policyJSON, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return model.Pool{}, err
	}
	parsedID, err := model.ParseID(id.String)
	if err != nil {
		return model.Pool{}, err
	}
	p.ID = parsedID
	target, err := scanNullableID(targetID)
	if err != nil {
		return model.Pool{}, err
	}
	p.TargetSnapshotID = target
	if err := json.Unmarshal([]byte(policyJSON), &p.SyncPolicy); err != nil {
		return model.Pool{}, err
	}
	return p, nil
}

// GetPool fetches a pool by id, or apperr.NotFound if it doesn't exist.
func (s *Store) GetPool(ctx context.Context, id model.ID) (model.Pool, error) {
	row := s.DB.FetchOne(ctx,
		`SELECT id, name, description, target_snapshot_id, sync_policy, created_at, updated_at
		 FROM pools WHERE id = `+s.DB.Placeholder(1), id.String())
	p, err := s.scanPool(row)
	if err == sql.ErrNoRows {
		return model.Pool{}, apperr.NotFoundf("pool %s not found", id)
	}
	if err != nil {
		return model.Pool{}, apperr.WrapStorage(apperr.Op("store.get_pool", err))
	}
	return s.withEndpointIDs(ctx, p)
}

// GetPoolByName fetches a pool by its unique name.
func (s *Store) GetPoolByName(ctx context.Context, name string) (model.Pool, error) {
	row := s.DB.FetchOne(ctx,
		`SELECT id, name, description, target_snapshot_id, sync_policy, created_at, updated_at
		 FROM pools WHERE name = `+s.DB.Placeholder(1), name)
	p, err := s.scanPool(row)
	if err == sql.ErrNoRows {
		return model.Pool{}, apperr.NotFoundf("pool %q not found", name)
	}
	if err != nil {
		return model.Pool{}, apperr.WrapStorage(apperr.Op("store.get_pool_by_name", err))
	}
	return s.withEndpointIDs(ctx, p)
}

// ListPools returns every pool in creation order (spec 4.D: "list_pools
// returns pools in creation order").
func (s *Store) ListPools(ctx context.Context) ([]model.Pool, error) {
	rows, err := s.DB.FetchAll(ctx,
		`SELECT id, name, description, target_snapshot_id, sync_policy, created_at, updated_at
		 FROM pools ORDER BY created_at ASC`)
	if err != nil {
		return nil, apperr.WrapStorage(apperr.Op("store.list_pools", err))
	}
	defer rows.Close()

	var pools []model.Pool
	for rows.Next() {
		p, err := s.scanPool(rows)
		if err != nil {
			return nil, apperr.WrapStorage(apperr.Op("store.list_pools.scan", err))
		}
		pools = append(pools, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.WrapStorage(apperr.Op("store.list_pools.rows", err))
	}

	for i := range pools {
		withIDs, err := s.withEndpointIDs(ctx, pools[i])
		if err != nil {
			return nil, err
		}
		pools[i] = withIDs
	}
	return pools, nil
}

func (s *Store) withEndpointIDs(ctx context.Context, p model.Pool) (model.Pool, error) {
	rows, err := s.DB.FetchAll(ctx, `SELECT id FROM endpoints WHERE pool_id = `+s.DB.Placeholder(1), p.ID.String())
	if err != nil {
		return model.Pool{}, apperr.WrapStorage(apperr.Op("store.pool_endpoint_ids", err))
	}
	defer rows.Close()
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			return model.Pool{}, apperr.WrapStorage(apperr.Op("store.pool_endpoint_ids.scan", err))
		}
		id, err := model.ParseID(idStr)
		if err != nil {
			return model.Pool{}, err
		}
		p.EndpointIDs = append(p.EndpointIDs, id)
	}
	return p, rows.Err()
}

// UpdatePool persists a partial update; callers build the full Pool value
// (read-modify-write) and pass it here, refreshing UpdatedAt themselves.
func (s *Store) UpdatePool(ctx context.Context, p model.Pool) error {
	policyJSON, err := json.Marshal(p.SyncPolicy)
	if err != nil {
		return apperr.Internalf("marshal sync_policy: %v", err)
	}
	res, err := s.DB.Execute(ctx,
		`UPDATE pools SET name = `+s.DB.Placeholder(1)+`, description = `+s.DB.Placeholder(2)+
			`, target_snapshot_id = `+s.DB.Placeholder(3)+`, sync_policy = `+s.DB.Placeholder(4)+
			`, updated_at = `+s.DB.Placeholder(5)+` WHERE id = `+s.DB.Placeholder(6),
		p.Name, p.Description, nullableID(p.TargetSnapshotID), string(policyJSON), p.UpdatedAt, p.ID.String())
	if err != nil {
		return apperr.WrapStorage(apperr.Op("store.update_pool", err))
	}
	return checkRowAffected(res, "pool", p.ID)
}

// SetPoolTarget updates only target_snapshot_id + updated_at, used by
// set_target (spec 4.C).
func (s *Store) SetPoolTarget(ctx context.Context, poolID, snapshotID model.ID, now time.Time) error {
	res, err := s.DB.Execute(ctx,
		`UPDATE pools SET target_snapshot_id = `+s.DB.Placeholder(1)+`, updated_at = `+s.DB.Placeholder(2)+
			` WHERE id = `+s.DB.Placeholder(3),
		nullableID(snapshotID), now, poolID.String())
	if err != nil {
		return apperr.WrapStorage(apperr.Op("store.set_pool_target", err))
	}
	return checkRowAffected(res, "pool", poolID)
}

// DeletePool removes the pool row. Callers are responsible for detaching
// every assigned endpoint first (spec 4.D delete_pool).
func (s *Store) DeletePool(ctx context.Context, id model.ID) error {
	res, err := s.DB.Execute(ctx, `DELETE FROM pools WHERE id = `+s.DB.Placeholder(1), id.String())
	if err != nil {
		return apperr.WrapStorage(apperr.Op("store.delete_pool", err))
	}
	return checkRowAffected(res, "pool", id)
}

func checkRowAffected(res sql.Result, entity string, id model.ID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.WrapStorage(apperr.Op("store.rows_affected", err))
	}
	if n == 0 {
		return apperr.NotFoundf("%s %s not found", entity, id)
	}
	return nil
}

// placeholders renders n sequential bind placeholders ("$1, $2, ..." or
// "?, ?, ...") joined by ", ".
func placeholders(db DB, n int) string {
	out := ""
	for i := 1; i <= n; i++ {
		if i > 1 {
			out += ", "
		}
		out += db.Placeholder(i)
	}
	return out
}
