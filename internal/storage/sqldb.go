package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/archsync/archsync-coordinator/internal/apperr"
)

// placeholderStyle distinguishes postgres's numbered "$N" binds from
// sqlite's positional "?" binds (spec 4.A: "placeholder(i)").
type placeholderStyle int

const (
	placeholderDollar placeholderStyle = iota
	placeholderQuestion
)

// sqlDB is the shared implementation behind both engines; only dial
// parameters and placeholder style differ between them.
type sqlDB struct {
	db    *sql.DB
	style placeholderStyle
	name  string
}

func open(driverName, dsn string, style placeholderStyle, pool PoolConfig) (*sqlDB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, apperr.WrapStorage(apperr.Op("storage.open", err))
	}
	applyPoolConfig(db, pool)
	return &sqlDB{db: db, style: style, name: driverName}, nil
}

func (s *sqlDB) Execute(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if s.db == nil {
		return nil, ErrNilDatabase
	}
	var res sql.Result
	err := withRetry(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	})
	if err != nil {
		return nil, apperr.WrapStorage(apperr.Op("storage.execute", err))
	}
	return res, nil
}

// FetchOne is not retried: *sql.Row defers its error until Scan, past
// this call's return, so a transient failure here cannot be recovered
// transparently.
func (s *sqlDB) FetchOne(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return s.db.QueryRowContext(ctx, query, args...)
}

func (s *sqlDB) FetchAll(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	var rows *sql.Rows
	err := withRetry(ctx, func() error {
		var queryErr error
		rows, queryErr = s.db.QueryContext(ctx, query, args...)
		return queryErr
	})
	if err != nil {
		return nil, apperr.WrapStorage(apperr.Op("storage.fetch_all", err))
	}
	return rows, nil
}

func (s *sqlDB) FetchScalar(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	err := withRetry(ctx, func() error {
		return s.db.QueryRowContext(ctx, query, args...).Scan(dest)
	})
	if err != nil {
		return apperr.WrapStorage(apperr.Op("storage.fetch_scalar", err))
	}
	return nil
}

func (s *sqlDB) Placeholder(i int) string {
	switch s.style {
	case placeholderDollar:
		return "$" + strconv.Itoa(i)
	default:
		return "?"
	}
}

func (s *sqlDB) HealthPing(ctx context.Context) error {
	if s.db == nil {
		return ErrNilDatabase
	}
	if err := withRetry(ctx, func() error { return s.db.PingContext(ctx) }); err != nil {
		return apperr.WrapStorage(apperr.Op(fmt.Sprintf("storage.%s.ping", s.name), err))
	}
	return nil
}

func (s *sqlDB) BeginTx(ctx context.Context) (Tx, error) {
	if s.db == nil {
		return nil, ErrNilDatabase
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.WrapStorage(apperr.Op("storage.begin_tx", err))
	}
	return &sqlTx{tx: tx}, nil
}

func (s *sqlDB) Stats() PoolStats {
	if s.db == nil {
		return PoolStats{}
	}
	return statsFrom(s.db)
}

func (s *sqlDB) Raw() *sql.DB { return s.db }

func (s *sqlDB) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// sqlTx implements Tx over a *sql.Tx, mirroring storj-storj's DBTx
// (BeginTx/Commit/Rollback on an embedded *sql.Tx).
type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) Execute(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.WrapStorage(apperr.Op("storage.tx.execute", err))
	}
	return res, nil
}

func (t *sqlTx) FetchOne(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return t.tx.QueryRowContext(ctx, query, args...)
}

func (t *sqlTx) FetchAll(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.WrapStorage(apperr.Op("storage.tx.fetch_all", err))
	}
	return rows, nil
}

func (t *sqlTx) FetchScalar(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	if err := t.tx.QueryRowContext(ctx, query, args...).Scan(dest); err != nil {
		return apperr.WrapStorage(apperr.Op("storage.tx.fetch_scalar", err))
	}
	return nil
}

func (t *sqlTx) Commit() error {
	if t.tx == nil {
		return ErrNilDatabase
	}
	if err := t.tx.Commit(); err != nil {
		return apperr.WrapStorage(apperr.Op("storage.tx.commit", err))
	}
	return nil
}

func (t *sqlTx) Rollback() error {
	if t.tx == nil {
		return ErrNilDatabase
	}
	if err := t.tx.Rollback(); err != nil {
		return apperr.WrapStorage(apperr.Op("storage.tx.rollback", err))
	}
	return nil
}
