package migrate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archsync/archsync-coordinator/internal/storage"
	"github.com/archsync/archsync-coordinator/internal/storage/migrate"
)

func openMemDB(t *testing.T) storage.DB {
	t.Helper()
	db, err := storage.OpenSQLite("file::memory:?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestBasicMigration(t *testing.T) {
	ctx := context.Background()
	db := openMemDB(t)

	m := migrate.Migration{
		Table: "users",
		Steps: []*migrate.Step{
			{
				Version:     "0001_create_users",
				Description: "create users table",
				Action: migrate.SQL{
					`CREATE TABLE users (id INTEGER PRIMARY KEY)`,
					`INSERT INTO users (id) VALUES (1)`,
				},
			},
			{
				Version:     "0002_seed_second_user",
				Description: "seed a second row",
				Action: migrate.SQL{
					`INSERT INTO users (id) VALUES (2)`,
				},
			},
		},
	}

	version, err := m.CurrentVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, "", version)

	require.NoError(t, m.Run(ctx, nil, db))

	version, err = m.CurrentVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, "0002_seed_second_user", version)

	var count int
	require.NoError(t, db.FetchScalar(ctx, &count, `SELECT COUNT(*) FROM users`))
	assert.Equal(t, 2, count)

	// running again is a no-op: nothing pending, no duplicate inserts
	require.NoError(t, m.Run(ctx, nil, db))
	require.NoError(t, db.FetchScalar(ctx, &count, `SELECT COUNT(*) FROM users`))
	assert.Equal(t, 2, count)
}

func TestFailingStepAbortsWithoutPartialRecord(t *testing.T) {
	ctx := context.Background()
	db := openMemDB(t)

	m := migrate.Migration{
		Table: "widgets",
		Steps: []*migrate.Step{
			{
				Version:     "0001_create_widgets",
				Description: "create widgets table",
				Action:      migrate.SQL{`CREATE TABLE widgets (id INTEGER PRIMARY KEY)`},
			},
			{
				Version:     "0002_broken",
				Description: "references a column that doesn't exist",
				Action:      migrate.SQL{`INSERT INTO widgets (nonexistent) VALUES (1)`},
			},
		},
	}

	err := m.Run(ctx, nil, db)
	assert.Error(t, err)

	status, err := m.Status(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_create_widgets"}, status.Applied)
	assert.Equal(t, []string{"0002_broken"}, status.Pending)
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	db := openMemDB(t)

	m := migrate.Migration{
		Table: "t",
		Steps: []*migrate.Step{
			{Version: "0001", Description: "a", Action: migrate.SQL{`CREATE TABLE t (id INTEGER)`}},
			{Version: "0002", Description: "b", Action: migrate.SQL{`INSERT INTO t (id) VALUES (1)`}},
		},
	}

	require.NoError(t, m.Run(ctx, nil, db))
	status, err := m.Status(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001", "0002"}, status.Applied)
	assert.Empty(t, status.Pending)
}
