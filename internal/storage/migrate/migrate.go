// Package migrate is the schema migration runner required by spec 4.A,
// grounded directly on storj-storj/private/migrate (exercised by
// private/migrate/versions_test.go): an ordered list of Steps, each with a
// Description, a Version key, and an Action that is either a batch of SQL
// statements or an arbitrary Go function, run inside one transaction per
// step and recorded in a schema_migrations table.
package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/archsync/archsync-coordinator/internal/apperr"
	"github.com/archsync/archsync-coordinator/internal/storage"
)

// Action is the unit of work a migration Step performs. SQL and Func are
// the two supported operations (spec 4.A: "supported operations:
// create-table, add-column"; both are expressible as either).
type Action interface {
	Run(ctx context.Context, log *slog.Logger, tx storage.Tx) error
}

// SQL runs each statement in order against the step's transaction.
type SQL []string

func (s SQL) Run(ctx context.Context, log *slog.Logger, tx storage.Tx) error {
	for _, stmt := range s {
		if _, err := tx.Execute(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Func wraps an arbitrary Go function as an Action, for migrations that
// cannot be expressed as plain SQL (spec 4.A's rollback-is-a-no-op note
// for add-column on engines lacking DROP COLUMN is one such case).
type Func func(ctx context.Context, log *slog.Logger, tx storage.Tx) error

func (f Func) Run(ctx context.Context, log *slog.Logger, tx storage.Tx) error {
	return f(ctx, log, tx)
}

// Step is one migration, identified by a string version key (spec 4.A:
// "each identified by a string version key").
type Step struct {
	Version     string
	Description string
	Action      Action
}

// Migration is an ordered list of Steps applied against Table's schema.
type Migration struct {
	Table string
	Steps []*Step
}

const schemaMigrationsTable = "schema_migrations"

func (m Migration) ensureTable(ctx context.Context, db storage.DB) error {
	_, err := db.Execute(ctx, `CREATE TABLE IF NOT EXISTS `+schemaMigrationsTable+` (
		version TEXT PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at TIMESTAMP NOT NULL
	)`)
	return err
}

// AppliedVersions returns the set of version keys already recorded.
func (m Migration) AppliedVersions(ctx context.Context, db storage.DB) (map[string]bool, error) {
	if err := m.ensureTable(ctx, db); err != nil {
		return nil, apperr.WrapStorage(apperr.Op("migrate.ensure_table", err))
	}
	rows, err := db.FetchAll(ctx, `SELECT version FROM `+schemaMigrationsTable)
	if err != nil {
		return nil, apperr.WrapStorage(apperr.Op("migrate.applied_versions", err))
	}
	defer rows.Close()

	applied := map[string]bool{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, apperr.WrapStorage(apperr.Op("migrate.scan_version", err))
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// CurrentVersion returns the version key of the most recently applied step
// in this Migration's own step order, or "" if none has applied yet.
func (m Migration) CurrentVersion(ctx context.Context, db storage.DB) (string, error) {
	applied, err := m.AppliedVersions(ctx, db)
	if err != nil {
		return "", err
	}
	current := ""
	for _, step := range m.Steps {
		if applied[step.Version] {
			current = step.Version
		}
	}
	return current, nil
}

// Pending returns the steps not yet recorded as applied, in order.
func (m Migration) Pending(ctx context.Context, db storage.DB) ([]*Step, error) {
	applied, err := m.AppliedVersions(ctx, db)
	if err != nil {
		return nil, err
	}
	var pending []*Step
	for _, step := range m.Steps {
		if !applied[step.Version] {
			pending = append(pending, step)
		}
	}
	return pending, nil
}

// Run applies every pending step, in order, each inside its own
// transaction. A failing step aborts the whole run immediately and is
// never partially recorded (spec 4.A: "Failing migrations abort the
// batch; never partially record.").
func (m Migration) Run(ctx context.Context, log *slog.Logger, db storage.DB) error {
	if log == nil {
		log = slog.Default()
	}
	pending, err := m.Pending(ctx, db)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		log.Info("no pending migrations", "table", m.Table)
		return nil
	}

	for _, step := range pending {
		log.Info("applying migration", "version", step.Version, "description", step.Description)

		tx, err := db.BeginTx(ctx)
		if err != nil {
			return apperr.WrapStorage(apperr.Op("migrate.begin_tx", err))
		}

		if err := step.Action.Run(ctx, log, tx); err != nil {
			_ = tx.Rollback()
			return apperr.WrapStorage(apperr.Op(fmt.Sprintf("migrate.step[%s]", step.Version), err))
		}

		if _, err := tx.Execute(ctx,
			`INSERT INTO `+schemaMigrationsTable+` (version, description, applied_at) VALUES (`+
				db.Placeholder(1)+`, `+db.Placeholder(2)+`, `+db.Placeholder(3)+`)`,
			step.Version, step.Description, time.Now().UTC()); err != nil {
			_ = tx.Rollback()
			return apperr.WrapStorage(apperr.Op(fmt.Sprintf("migrate.record[%s]", step.Version), err))
		}

		if err := tx.Commit(); err != nil {
			return apperr.WrapStorage(apperr.Op(fmt.Sprintf("migrate.commit[%s]", step.Version), err))
		}
	}

	return nil
}

// Status is a human-readable summary used by the `migrate status` CLI
// subcommand (spec section 6 CLI note).
type Status struct {
	Applied []string
	Pending []string
}

func (m Migration) Status(ctx context.Context, db storage.DB) (Status, error) {
	applied, err := m.AppliedVersions(ctx, db)
	if err != nil {
		return Status{}, err
	}
	var s Status
	for _, step := range m.Steps {
		if applied[step.Version] {
			s.Applied = append(s.Applied, step.Version)
		} else {
			s.Pending = append(s.Pending, step.Version)
		}
	}
	return s, nil
}
