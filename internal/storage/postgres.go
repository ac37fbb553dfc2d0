package storage

import (
	_ "github.com/lib/pq" // server-grade SQL engine driver (spec 4.A)
)

// OpenPostgres dials the server-grade engine. DSN is a standard
// postgres:// connection string.
func OpenPostgres(dsn string, pool PoolConfig) (DB, error) {
	return open("postgres", dsn, placeholderDollar, pool)
}
