package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/archsync/archsync-coordinator/internal/apperr"
	"github.com/archsync/archsync-coordinator/internal/model"
)

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

// InsertEndpoint persists a newly registered endpoint.
func (s *Store) InsertEndpoint(ctx context.Context, e model.Endpoint) error {
	_, err := s.DB.Execute(ctx,
		`INSERT INTO endpoints (id, name, hostname, pool_id, last_seen, sync_status, auth_token_hash, created_at, updated_at)
		 VALUES (`+placeholders(s.DB, 9)+`)`,
		e.ID.String(), e.Name, e.Hostname, nullableID(e.PoolID), nullableTime(e.LastSeen),
		string(e.SyncStatus), e.AuthTokenHash, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return apperr.WrapStorage(apperr.Op("store.insert_endpoint", err))
	}
	return nil
}

func (s *Store) scanEndpoint(row interface {
	Scan(dest ...interface{}) error
}) (model.Endpoint, error) {
	var e model.Endpoint
	var id, poolID sql.NullString
	var lastSeen sql.NullTime
	var status string
	if err := row.Scan(&id, &e.Name, &e.Hostname, &poolID, &lastSeen, &status, &e.AuthTokenHash, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return model.Endpoint{}, err
	}
	parsedID, err := model.ParseID(id.String)
	if err != nil {
		return model.Endpoint{}, err
	}
	e.ID = parsedID
	pool, err := scanNullableID(poolID)
	if err != nil {
		return model.Endpoint{}, err
	}
	e.PoolID = pool
	if lastSeen.Valid {
		t := lastSeen.Time
		e.LastSeen = &t
	}
	e.SyncStatus = model.SyncStatus(status)
	return e, nil
}

const endpointColumns = `id, name, hostname, pool_id, last_seen, sync_status, auth_token_hash, created_at, updated_at`

// GetEndpoint fetches an endpoint by id.
func (s *Store) GetEndpoint(ctx context.Context, id model.ID) (model.Endpoint, error) {
	row := s.DB.FetchOne(ctx, `SELECT `+endpointColumns+` FROM endpoints WHERE id = `+s.DB.Placeholder(1), id.String())
	e, err := s.scanEndpoint(row)
	if err == sql.ErrNoRows {
		return model.Endpoint{}, apperr.NotFoundf("endpoint %s not found", id)
	}
	if err != nil {
		return model.Endpoint{}, apperr.WrapStorage(apperr.Op("store.get_endpoint", err))
	}
	return e, nil
}

// GetEndpointByName fetches an endpoint by name. Names are unique only
// together with hostname; when several endpoints share a name, which one
// is returned is not defined.
func (s *Store) GetEndpointByName(ctx context.Context, name string) (model.Endpoint, error) {
	row := s.DB.FetchOne(ctx, `SELECT `+endpointColumns+` FROM endpoints WHERE name = `+s.DB.Placeholder(1), name)
	e, err := s.scanEndpoint(row)
	if err == sql.ErrNoRows {
		return model.Endpoint{}, apperr.NotFoundf("endpoint %q not found", name)
	}
	if err != nil {
		return model.Endpoint{}, apperr.WrapStorage(apperr.Op("store.get_endpoint_by_name", err))
	}
	return e, nil
}

// GetEndpointByNameAndHostname fetches an endpoint by its unique
// (name, hostname) pair (invariant E1).
func (s *Store) GetEndpointByNameAndHostname(ctx context.Context, name, hostname string) (model.Endpoint, error) {
	row := s.DB.FetchOne(ctx,
		`SELECT `+endpointColumns+` FROM endpoints WHERE name = `+s.DB.Placeholder(1)+` AND hostname = `+s.DB.Placeholder(2),
		name, hostname)
	e, err := s.scanEndpoint(row)
	if err == sql.ErrNoRows {
		return model.Endpoint{}, apperr.NotFoundf("endpoint %q at %q not found", name, hostname)
	}
	if err != nil {
		return model.Endpoint{}, apperr.WrapStorage(apperr.Op("store.get_endpoint_by_name_and_hostname", err))
	}
	return e, nil
}

// ListEndpoints returns every endpoint, optionally filtered to one pool
// when poolID is non-nil.
func (s *Store) ListEndpoints(ctx context.Context, poolID model.ID) ([]model.Endpoint, error) {
	query := `SELECT ` + endpointColumns + ` FROM endpoints`
	var args []interface{}
	if !poolID.IsNil() {
		query += ` WHERE pool_id = ` + s.DB.Placeholder(1)
		args = append(args, poolID.String())
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.DB.FetchAll(ctx, query, args...)
	if err != nil {
		return nil, apperr.WrapStorage(apperr.Op("store.list_endpoints", err))
	}
	defer rows.Close()

	var endpoints []model.Endpoint
	for rows.Next() {
		e, err := s.scanEndpoint(rows)
		if err != nil {
			return nil, apperr.WrapStorage(apperr.Op("store.list_endpoints.scan", err))
		}
		endpoints = append(endpoints, e)
	}
	return endpoints, rows.Err()
}

// UpdateEndpointPool reassigns (or clears, with model.NilID) an endpoint's
// pool membership.
func (s *Store) UpdateEndpointPool(ctx context.Context, id, poolID model.ID, now time.Time) error {
	res, err := s.DB.Execute(ctx,
		`UPDATE endpoints SET pool_id = `+s.DB.Placeholder(1)+`, updated_at = `+s.DB.Placeholder(2)+
			` WHERE id = `+s.DB.Placeholder(3),
		nullableID(poolID), now, id.String())
	if err != nil {
		return apperr.WrapStorage(apperr.Op("store.update_endpoint_pool", err))
	}
	return checkRowAffected(res, "endpoint", id)
}

// UpdateEndpointSyncStatus persists a sync_status transition (spec 4.F).
func (s *Store) UpdateEndpointSyncStatus(ctx context.Context, id model.ID, status model.SyncStatus, now time.Time) error {
	res, err := s.DB.Execute(ctx,
		`UPDATE endpoints SET sync_status = `+s.DB.Placeholder(1)+`, updated_at = `+s.DB.Placeholder(2)+
			` WHERE id = `+s.DB.Placeholder(3),
		string(status), now, id.String())
	if err != nil {
		return apperr.WrapStorage(apperr.Op("store.update_endpoint_sync_status", err))
	}
	return checkRowAffected(res, "endpoint", id)
}

// UpdateEndpointAuth persists a rotated token hash (spec 4.G: "rotate the
// token (invalidate old)").
func (s *Store) UpdateEndpointAuth(ctx context.Context, id model.ID, tokenHash string, now time.Time) error {
	res, err := s.DB.Execute(ctx,
		`UPDATE endpoints SET auth_token_hash = `+s.DB.Placeholder(1)+`, updated_at = `+s.DB.Placeholder(2)+
			` WHERE id = `+s.DB.Placeholder(3),
		tokenHash, now, id.String())
	if err != nil {
		return apperr.WrapStorage(apperr.Op("store.update_endpoint_auth", err))
	}
	return checkRowAffected(res, "endpoint", id)
}

// TouchEndpointHeartbeat records a fresh heartbeat timestamp.
func (s *Store) TouchEndpointHeartbeat(ctx context.Context, id model.ID, seenAt time.Time) error {
	res, err := s.DB.Execute(ctx,
		`UPDATE endpoints SET last_seen = `+s.DB.Placeholder(1)+`, updated_at = `+s.DB.Placeholder(2)+
			` WHERE id = `+s.DB.Placeholder(3),
		seenAt, seenAt, id.String())
	if err != nil {
		return apperr.WrapStorage(apperr.Op("store.touch_endpoint_heartbeat", err))
	}
	return checkRowAffected(res, "endpoint", id)
}

// DeleteEndpoint removes the endpoint row.
func (s *Store) DeleteEndpoint(ctx context.Context, id model.ID) error {
	res, err := s.DB.Execute(ctx, `DELETE FROM endpoints WHERE id = `+s.DB.Placeholder(1), id.String())
	if err != nil {
		return apperr.WrapStorage(apperr.Op("store.delete_endpoint", err))
	}
	return checkRowAffected(res, "endpoint", id)
}
