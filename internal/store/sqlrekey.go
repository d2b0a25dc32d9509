package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Thianvelaz/Cognio/internal/model"
	"github.com/Thianvelaz/Cognio/internal/store/migrate"
)

// RekeySQL recomputes dedup_key for every active row when the scope recorded
// in store_settings differs from the requested one. Of rows that now share a
// key, the oldest stays active and the rest are archived. It returns the
// number of rows archived. Everything happens in one transaction.
func RekeySQL(ctx context.Context, db *sql.DB, d migrate.Dialect, perProject bool) (int, error) {
	want := model.DedupScopeName(perProject)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &model.StorageError{Op: "rekey", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	var have string
	err = tx.QueryRowContext(ctx,
		`SELECT value FROM store_settings WHERE name = `+d.Placeholder(1), migrate.SettingDedupScope).Scan(&have)
	recorded := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, &model.StorageError{Op: "rekey", Err: err}
	}
	if recorded && have == want {
		return 0, nil
	}

	type row struct {
		id      string
		hash    string
		project *string
	}
	rows, err := tx.QueryContext(ctx,
		`SELECT id, text_hash, project FROM memories WHERE archived = `+falseLiteral(d)+` ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return 0, &model.StorageError{Op: "rekey", Err: err}
	}
	var active []row
	for rows.Next() {
		var (
			r       row
			hash    sql.NullString
			project sql.NullString
		)
		if err := rows.Scan(&r.id, &hash, &project); err != nil {
			_ = rows.Close()
			return 0, &model.StorageError{Op: "rekey", Err: err}
		}
		r.hash = hash.String
		if project.Valid {
			p := project.String
			r.project = &p
		}
		active = append(active, r)
	}
	if err := rows.Close(); err != nil {
		return 0, &model.StorageError{Op: "rekey", Err: err}
	}
	if err := rows.Err(); err != nil {
		return 0, &model.StorageError{Op: "rekey", Err: err}
	}

	keys := make(map[string]string, len(active))
	var losers []string
	for _, r := range active {
		key := model.DedupKey(r.hash, r.project, perProject)
		if _, taken := keys[key]; taken {
			losers = append(losers, r.id)
			continue
		}
		keys[key] = r.id
	}

	exec := func(q string, args ...any) error {
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return &model.StorageError{Op: "rekey", Err: err}
		}
		return nil
	}
	for _, id := range losers {
		if err := exec(`UPDATE memories SET archived = `+trueLiteral(d)+` WHERE id = `+d.Placeholder(1), id); err != nil {
			return 0, err
		}
	}
	// Clear first so no row collides with a key another row still holds.
	if err := exec(`UPDATE memories SET dedup_key = NULL WHERE archived = ` + falseLiteral(d)); err != nil {
		return 0, err
	}
	for key, id := range keys {
		if err := exec(`UPDATE memories SET dedup_key = `+d.Placeholder(1)+` WHERE id = `+d.Placeholder(2), key, id); err != nil {
			return 0, err
		}
	}

	if recorded {
		err = exec(`UPDATE store_settings SET value = `+d.Placeholder(1)+` WHERE name = `+d.Placeholder(2), want, migrate.SettingDedupScope)
	} else {
		err = exec(`INSERT INTO store_settings (name, value) VALUES (`+d.Placeholder(1)+`, `+d.Placeholder(2)+`)`, migrate.SettingDedupScope, want)
	}
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, &model.StorageError{Op: "rekey", Err: err}
	}
	return len(losers), nil
}

func trueLiteral(d migrate.Dialect) string {
	if d == migrate.Postgres {
		return "TRUE"
	}
	return "1"
}
