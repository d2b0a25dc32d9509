package migrate

import (
	"context"
	"database/sql"
)

// SettingDedupScope names the store_settings row holding the scope the
// stored dedup keys were computed under.
const SettingDedupScope = "dedup_scope"

var registry = []Migration{
	{Version: 1, Description: "Initial schema", Up: initialSchema},
	{Version: 2, Description: "Add archived flag for soft delete", Up: addArchivedFlag},
	{Version: 3, Description: "Enforce one active record per dedup key", Up: addDedupKey},
	{Version: 4, Description: "Record the dedup scope of stored keys", Up: addStoreSettings},
}

func initialSchema(ctx context.Context, tx *sql.Tx, d Dialect) error {
	embeddingType := "BLOB"
	if d == Postgres {
		if err := execAll(ctx, tx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
			return err
		}
		embeddingType = "vector"
	}
	return execAll(ctx, tx,
		`CREATE TABLE IF NOT EXISTS memories (
            id TEXT PRIMARY KEY,
            text TEXT NOT NULL,
            text_hash TEXT,
            embedding `+embeddingType+`,
            project TEXT,
            tags TEXT,
            created_at BIGINT,
            updated_at BIGINT
        )`,
		`CREATE INDEX IF NOT EXISTS idx_project ON memories(project)`,
		`CREATE INDEX IF NOT EXISTS idx_created ON memories(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_hash ON memories(text_hash)`,
	)
}

func addArchivedFlag(ctx context.Context, tx *sql.Tx, d Dialect) error {
	if d == Postgres {
		return execAll(ctx, tx, `ALTER TABLE memories ADD COLUMN IF NOT EXISTS archived BOOLEAN NOT NULL DEFAULT FALSE`)
	}
	exists, err := sqliteColumnExists(ctx, tx, "memories", "archived")
	if err != nil || exists {
		return err
	}
	return execAll(ctx, tx, `ALTER TABLE memories ADD COLUMN archived INTEGER NOT NULL DEFAULT 0`)
}

func addDedupKey(ctx context.Context, tx *sql.Tx, d Dialect) error {
	active := "archived = 0"
	olderActive := "older.archived = 0"
	archive := "archived = 1"
	addColumn := `ALTER TABLE memories ADD COLUMN dedup_key TEXT`
	if d == Postgres {
		active = "NOT archived"
		olderActive = "NOT older.archived"
		archive = "archived = TRUE"
		addColumn = `ALTER TABLE memories ADD COLUMN IF NOT EXISTS dedup_key TEXT`
	} else {
		exists, err := sqliteColumnExists(ctx, tx, "memories", "dedup_key")
		if err != nil {
			return err
		}
		if exists {
			addColumn = ""
		}
	}
	stmts := []string{}
	if addColumn != "" {
		stmts = append(stmts, addColumn)
	}
	stmts = append(stmts,
		// Older databases may hold active duplicates; keep the oldest one.
		`UPDATE memories SET `+archive+`
         WHERE `+active+` AND EXISTS (
            SELECT 1 FROM memories older
            WHERE older.text_hash = memories.text_hash
              AND `+olderActive+`
              AND (older.created_at < memories.created_at
                   OR (older.created_at = memories.created_at AND older.id < memories.id)))`,
		`UPDATE memories SET dedup_key = text_hash WHERE `+active+` AND dedup_key IS NULL`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_dedup_active ON memories(dedup_key) WHERE `+active,
		`CREATE INDEX IF NOT EXISTS idx_archived_created ON memories(archived, created_at)`,
	)
	return execAll(ctx, tx, stmts...)
}

// addStoreSettings records that existing keys were backfilled globally by
// migration 3.
func addStoreSettings(ctx context.Context, tx *sql.Tx, d Dialect) error {
	if err := execAll(ctx, tx, `CREATE TABLE IF NOT EXISTS store_settings (
            name TEXT PRIMARY KEY,
            value TEXT NOT NULL
        )`); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO store_settings (name, value) VALUES (`+d.Placeholder(1)+`, `+d.Placeholder(2)+`) ON CONFLICT (name) DO NOTHING`,
		SettingDedupScope, "global")
	return err
}

func sqliteColumnExists(ctx context.Context, tx *sql.Tx, table, column string) (bool, error) {
	rows, err := tx.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return false, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
