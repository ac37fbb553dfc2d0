// Package storage provides the one driver abstraction spec 4.A requires:
// "execute(sql, args…), fetch_one, fetch_all, fetch_scalar, placeholder(i),
// and health_ping()" — isolating the server-grade (postgres) and embedded
// (sqlite) engines' schema differences behind a single interface, grounded
// on storj-storj/pkg/satellite/satellitedb's Database/DBTx wrapping of
// database/sql (New(driverName, dsn), BeginTx, Commit, Rollback).
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PoolStats mirrors spec 4.A's "pool statistics (current size, idle,
// in-use)" requirement; it is a thin projection of sql.DBStats.
type PoolStats struct {
	Size  int
	Idle  int
	InUse int
}

// DB is the one driver abstraction every caller in this repository talks
// to; its one implementation is sqlDB (sqldb.go), opened by OpenPostgres
// (postgres.go) or OpenSQLite (sqlite.go).
type DB interface {
	// Execute runs a statement that does not return rows.
	Execute(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	// FetchOne runs a query expected to return at most one row.
	FetchOne(ctx context.Context, query string, args ...interface{}) *sql.Row
	// FetchAll runs a query expected to return zero or more rows. The
	// caller must close the returned *sql.Rows.
	FetchAll(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	// FetchScalar runs a query expected to return exactly one column of
	// one row and scans it into dest.
	FetchScalar(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	// Placeholder renders the i-th (1-based) bind placeholder in this
	// engine's dialect ("$1".."$N" for postgres, "?" repeated for sqlite).
	Placeholder(i int) string
	// HealthPing reports whether the underlying connection is reachable.
	HealthPing(ctx context.Context) error
	// BeginTx starts a transaction.
	BeginTx(ctx context.Context) (Tx, error)
	// Stats reports current pool utilisation.
	Stats() PoolStats
	// Raw exposes the underlying *sql.DB for the migration runner, which
	// needs to pass it through to engine-specific migration steps.
	Raw() *sql.DB
	// Close releases the underlying connection pool.
	Close() error
}

// Tx is a transaction opened against a DB; Commit/Rollback follow
// storj-storj's DBTx naming exactly.
type Tx interface {
	Execute(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	FetchOne(ctx context.Context, query string, args ...interface{}) *sql.Row
	FetchAll(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	FetchScalar(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	Commit() error
	Rollback() error
}

// PoolConfig configures the bounded connection pool spec 4.A requires for
// the server-grade engine ("maintain a bounded pool (configurable
// min/max), recycle each connection after N queries or T seconds idle").
// database/sql has no query-count-based recycling knob, so N queries is
// approximated with a conservative connection lifetime instead.
type PoolConfig struct {
	MinOpen     int
	MaxOpen     int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// DefaultPoolConfig is used when a caller does not specify one.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MinOpen:     2,
		MaxOpen:     10,
		MaxIdleTime: 5 * time.Minute,
		MaxLifetime: 30 * time.Minute,
	}
}

func applyPoolConfig(db *sql.DB, cfg PoolConfig) {
	db.SetMaxOpenConns(cfg.MaxOpen)
	db.SetMaxIdleConns(cfg.MinOpen)
	db.SetConnMaxIdleTime(cfg.MaxIdleTime)
	db.SetConnMaxLifetime(cfg.MaxLifetime)
}

func statsFrom(db *sql.DB) PoolStats {
	s := db.Stats()
	return PoolStats{
		Size:  s.OpenConnections,
		Idle:  s.Idle,
		InUse: s.InUse,
	}
}

// ErrNilDatabase is returned by BeginTx when called on a DB whose
// underlying *sql.DB was never opened (storj-storj's db_test.go exercises
// exactly this case: "BeginTx return err when db is nil").
var ErrNilDatabase = fmt.Errorf("storage: database not open")
