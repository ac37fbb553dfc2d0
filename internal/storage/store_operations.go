package storage

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/archsync/archsync-coordinator/internal/apperr"
	"github.com/archsync/archsync-coordinator/internal/model"
)

// InsertOperation persists a newly created operation row. The coordinator
// calls it while holding the mutex that guards its single-flight
// reservation (internal/coordinator enforces invariant O1, not the store
// layer).
func (s *Store) InsertOperation(ctx context.Context, op model.Operation) error {
	detailsJSON, err := json.Marshal(op.Details)
	if err != nil {
		return apperr.Internalf("marshal details: %v", err)
	}
	_, err = s.DB.Execute(ctx,
		`INSERT INTO operations (id, pool_id, endpoint_id, kind, status, details, error_message, created_at, completed_at)
		 VALUES (`+placeholders(s.DB, 9)+`)`,
		op.ID.String(), op.PoolID.String(), op.EndpointID.String(), string(op.Kind), string(op.Status),
		string(detailsJSON), op.ErrorMessage, op.CreatedAt, nullableTime(op.CompletedAt))
	if err != nil {
		return apperr.WrapStorage(apperr.Op("store.insert_operation", err))
	}
	return nil
}

func (s *Store) scanOperation(row interface {
	Scan(dest ...interface{}) error
}) (model.Operation, error) {
	var op model.Operation
	var id, poolID, endpointID sql.NullString
	var kind, status, detailsJSON string
	var completedAt sql.NullTime
	if err := row.Scan(&id, &poolID, &endpointID, &kind, &status, &detailsJSON, &op.ErrorMessage, &op.CreatedAt, &completedAt); err != nil {
		return model.Operation{}, err
	}
	parsedID, err := model.ParseID(id.String)
	if err != nil {
		return model.Operation{}, err
	}
	op.ID = parsedID
	pool, err := model.ParseID(poolID.String)
	if err != nil {
		return model.Operation{}, err
	}
	op.PoolID = pool
	endpoint, err := model.ParseID(endpointID.String)
	if err != nil {
		return model.Operation{}, err
	}
	op.EndpointID = endpoint
	op.Kind = model.OperationKind(kind)
	op.Status = model.OperationStatus(status)
	if err := json.Unmarshal([]byte(detailsJSON), &op.Details); err != nil {
		return model.Operation{}, err
	}
	if completedAt.Valid {
		t := completedAt.Time
		op.CompletedAt = &t
	}
	return op, nil
}

const operationColumns = `id, pool_id, endpoint_id, kind, status, details, error_message, created_at, completed_at`

// GetOperation fetches an operation by id.
func (s *Store) GetOperation(ctx context.Context, id model.ID) (model.Operation, error) {
	row := s.DB.FetchOne(ctx, `SELECT `+operationColumns+` FROM operations WHERE id = `+s.DB.Placeholder(1), id.String())
	op, err := s.scanOperation(row)
	if err == sql.ErrNoRows {
		return model.Operation{}, apperr.NotFoundf("operation %s not found", id)
	}
	if err != nil {
		return model.Operation{}, apperr.WrapStorage(apperr.Op("store.get_operation", err))
	}
	return op, nil
}

// UpdateOperationStatus persists a status transition plus its side
// details (conflicts found/resolved, stage, error message, completion
// time). The store does not check invariant O2 (model.CanTransition);
// the caller chooses the transition.
func (s *Store) UpdateOperationStatus(ctx context.Context, op model.Operation) error {
	detailsJSON, err := json.Marshal(op.Details)
	if err != nil {
		return apperr.Internalf("marshal details: %v", err)
	}
	res, err := s.DB.Execute(ctx,
		`UPDATE operations SET status = `+s.DB.Placeholder(1)+`, details = `+s.DB.Placeholder(2)+
			`, error_message = `+s.DB.Placeholder(3)+`, completed_at = `+s.DB.Placeholder(4)+
			` WHERE id = `+s.DB.Placeholder(5),
		string(op.Status), string(detailsJSON), op.ErrorMessage, nullableTime(op.CompletedAt), op.ID.String())
	if err != nil {
		return apperr.WrapStorage(apperr.Op("store.update_operation_status", err))
	}
	return checkRowAffected(res, "operation", op.ID)
}

// ListEndpointOperations returns every operation recorded against one
// endpoint, most recent first.
func (s *Store) ListEndpointOperations(ctx context.Context, endpointID model.ID) ([]model.Operation, error) {
	rows, err := s.DB.FetchAll(ctx,
		`SELECT `+operationColumns+` FROM operations WHERE endpoint_id = `+s.DB.Placeholder(1)+` ORDER BY created_at DESC`,
		endpointID.String())
	if err != nil {
		return nil, apperr.WrapStorage(apperr.Op("store.list_endpoint_operations", err))
	}
	defer rows.Close()

	var ops []model.Operation
	for rows.Next() {
		op, err := s.scanOperation(rows)
		if err != nil {
			return nil, apperr.WrapStorage(apperr.Op("store.list_endpoint_operations.scan", err))
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// ListPoolOperations returns every operation recorded against any
// endpoint of one pool, most recent first.
func (s *Store) ListPoolOperations(ctx context.Context, poolID model.ID) ([]model.Operation, error) {
	rows, err := s.DB.FetchAll(ctx,
		`SELECT `+operationColumns+` FROM operations WHERE pool_id = `+s.DB.Placeholder(1)+` ORDER BY created_at DESC`,
		poolID.String())
	if err != nil {
		return nil, apperr.WrapStorage(apperr.Op("store.list_pool_operations", err))
	}
	defer rows.Close()

	var ops []model.Operation
	for rows.Next() {
		op, err := s.scanOperation(rows)
		if err != nil {
			return nil, apperr.WrapStorage(apperr.Op("store.list_pool_operations.scan", err))
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// ListActiveOperations returns every operation still pending or
// in_progress across the whole fleet, used by the crash-recovery sweep
// (internal/coordinator.RecoverInterrupted) on process startup.
func (s *Store) ListActiveOperations(ctx context.Context) ([]model.Operation, error) {
	rows, err := s.DB.FetchAll(ctx,
		`SELECT `+operationColumns+` FROM operations WHERE status IN (`+s.DB.Placeholder(1)+`, `+s.DB.Placeholder(2)+`)`,
		string(model.StatusPending), string(model.StatusInProgress))
	if err != nil {
		return nil, apperr.WrapStorage(apperr.Op("store.list_active_operations", err))
	}
	defer rows.Close()

	var ops []model.Operation
	for rows.Next() {
		op, err := s.scanOperation(rows)
		if err != nil {
			return nil, apperr.WrapStorage(apperr.Op("store.list_active_operations.scan", err))
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}
