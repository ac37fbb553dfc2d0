package storage

import (
	"context"
	"fmt"

	"github.com/archsync/archsync-coordinator/internal/config"
)

// Open dispatches to OpenPostgres or OpenSQLite based on cfg.DatabaseKind,
// the one call site that needs to know both engines exist.
func Open(cfg config.Config) (DB, error) {
	pool := PoolConfig{
		MinOpen:     cfg.DatabasePoolMin,
		MaxOpen:     cfg.DatabasePoolMax,
		MaxIdleTime: DefaultPoolConfig().MaxIdleTime,
		MaxLifetime: DefaultPoolConfig().MaxLifetime,
	}

	switch cfg.DatabaseKind {
	case config.DatabaseServer:
		return OpenPostgres(cfg.DatabaseURL, pool)
	case config.DatabaseEmbedded:
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = "file:archsync.db?mode=rwc&cache=shared&_journal=WAL"
		}
		return OpenSQLite(dsn)
	default:
		return nil, fmt.Errorf("storage: unsupported database kind %q", cfg.DatabaseKind)
	}
}

// HealthCheck adapts a DB to healthcheck.HealthCheck, used to back
// GET /health/ready and GET /health/detailed (spec section 6).
type HealthCheck struct {
	DB DB
}

func (h HealthCheck) Name() string { return "database" }

func (h HealthCheck) Check(ctx context.Context) error {
	return h.DB.HealthPing(ctx)
}
