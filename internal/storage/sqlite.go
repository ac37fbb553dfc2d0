package storage

import (
	_ "github.com/mattn/go-sqlite3" // embedded single-file SQL engine driver (spec 4.A)
)

// OpenSQLite dials the embedded engine. Per spec 4.A ("the embedded
// engine holds one serialised writer"), the pool is forced to a single
// open connection regardless of the configured pool size, so writers are
// naturally serialised by database/sql itself.
func OpenSQLite(dsn string) (DB, error) {
	pool := PoolConfig{MinOpen: 1, MaxOpen: 1, MaxIdleTime: 0, MaxLifetime: 0}
	return open("sqlite3", dsn, placeholderQuestion, pool)
}
