package storage

import (
	"github.com/archsync/archsync-coordinator/internal/storage/migrate"
)

// Schema is the coordinator's migration list (spec 3, 4.A). Column types
// are kept to the ANSI subset both lib/pq and mattn/go-sqlite3 accept
// without dialect-specific DDL (TEXT for ids/JSON blobs, TIMESTAMP for
// instants) so the same Migration runs unmodified against either engine —
// the one exception the spec calls out (native JSON columns vs JSON-as-text)
// is deliberately not exercised: every JSON payload column here is stored
// as TEXT on both engines, which keeps one schema definition instead of
// two and still lets every row round-trip through the one DB interface.
var Schema = migrate.Migration{
	Table: "archsync",
	Steps: []*migrate.Step{
		{
			Version:     "0001_initial_schema",
			Description: "create pools, endpoints, snapshots, repositories, operations",
			Action: migrate.SQL{
				`CREATE TABLE pools (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL UNIQUE,
					description TEXT NOT NULL DEFAULT '',
					target_snapshot_id TEXT,
					sync_policy TEXT NOT NULL,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				)`,
				`CREATE TABLE endpoints (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					hostname TEXT NOT NULL,
					pool_id TEXT,
					last_seen TIMESTAMP,
					sync_status TEXT NOT NULL,
					auth_token_hash TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL,
					UNIQUE (name, hostname)
				)`,
				`CREATE TABLE snapshots (
					id TEXT PRIMARY KEY,
					pool_id TEXT NOT NULL,
					endpoint_id TEXT NOT NULL,
					captured_at TIMESTAMP NOT NULL,
					pacman_version TEXT NOT NULL DEFAULT '',
					architecture TEXT NOT NULL DEFAULT '',
					packages TEXT NOT NULL
				)`,
				`CREATE INDEX idx_snapshots_endpoint ON snapshots (endpoint_id, captured_at)`,
				`CREATE TABLE repositories (
					id TEXT PRIMARY KEY,
					endpoint_id TEXT NOT NULL,
					repo_name TEXT NOT NULL,
					primary_url TEXT NOT NULL DEFAULT '',
					packages TEXT NOT NULL,
					last_updated TIMESTAMP NOT NULL,
					UNIQUE (endpoint_id, repo_name)
				)`,
				`CREATE TABLE operations (
					id TEXT PRIMARY KEY,
					pool_id TEXT NOT NULL,
					endpoint_id TEXT NOT NULL,
					kind TEXT NOT NULL,
					status TEXT NOT NULL,
					details TEXT NOT NULL DEFAULT '{}',
					error_message TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL,
					completed_at TIMESTAMP
				)`,
				`CREATE INDEX idx_operations_endpoint ON operations (endpoint_id, created_at)`,
				`CREATE INDEX idx_operations_pool ON operations (pool_id, created_at)`,
			},
		},
		{
			// Supplemented from original_source/server/database/migrations/
			// add_repository_mirrors.py (SPEC_FULL.md "Supplemented features").
			Version:     "0002_add_repository_mirrors",
			Description: "add mirrors column to repositories",
			Action: migrate.SQL{
				`ALTER TABLE repositories ADD COLUMN mirrors TEXT NOT NULL DEFAULT '[]'`,
			},
		},
	},
}
