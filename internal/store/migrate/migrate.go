// Package migrate applies forward-only, numbered schema migrations and
// records them in the schema_version table.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Dialect selects the SQL flavour of a migration.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// Placeholder returns the n-th (1-based) bind parameter for the dialect.
func (d Dialect) Placeholder(n int) string {
	if d == Postgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// ErrSchemaTooNew is returned when the database was migrated by a newer
// build than this one.
var ErrSchemaTooNew = errors.New("database schema is newer than this build supports")

// Migration is a single schema step. Up runs inside a transaction.
type Migration struct {
	Version     int
	Description string
	Up          func(ctx context.Context, tx *sql.Tx, d Dialect) error
}

// Latest returns the highest known migration version.
func Latest() int {
	return registry[len(registry)-1].Version
}

const versionTableDDL = `CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at BIGINT NOT NULL,
    description TEXT
)`

// Current returns the recorded schema version, 0 for a fresh database.
func Current(ctx context.Context, db *sql.DB) (int, error) {
	if _, err := db.ExecContext(ctx, versionTableDDL); err != nil {
		return 0, fmt.Errorf("init schema_version: %w", err)
	}
	var v sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return int(v.Int64), nil
}

// Apply brings db up to Latest. It refuses to touch a schema newer than
// Latest and otherwise applies each pending migration in order, one
// transaction per migration. It returns the versions before and after.
func Apply(ctx context.Context, db *sql.DB, d Dialect) (int, int, error) {
	return applyUpTo(ctx, db, d, registry)
}

func applyUpTo(ctx context.Context, db *sql.DB, d Dialect, migrations []Migration) (int, int, error) {
	current, err := Current(ctx, db)
	if err != nil {
		return 0, 0, err
	}
	latest := migrations[len(migrations)-1].Version
	if current > latest {
		return current, current, fmt.Errorf("%w: database at %d, build knows %d", ErrSchemaTooNew, current, latest)
	}

	version := current
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := applyOne(ctx, db, d, m); err != nil {
			return current, version, fmt.Errorf("migration %03d (%s): %w", m.Version, m.Description, err)
		}
		version = m.Version
	}
	return current, version, nil
}

func applyOne(ctx context.Context, db *sql.DB, d Dialect, m Migration) error {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := m.Up(ctx, tx, d); err != nil {
		return err
	}
	q := fmt.Sprintf(`INSERT INTO schema_version (version, applied_at, description) VALUES (%s, %s, %s)`,
		d.Placeholder(1), d.Placeholder(2), d.Placeholder(3))
	if _, err := tx.ExecContext(ctx, q, m.Version, time.Now().Unix(), m.Description); err != nil {
		return err
	}
	return tx.Commit()
}

func execAll(ctx context.Context, tx *sql.Tx, stmts ...string) error {
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
