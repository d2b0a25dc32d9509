// Package sqlite is the single-file store used by local deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/Thianvelaz/Cognio/internal/model"
	"github.com/Thianvelaz/Cognio/internal/store"
	"github.com/Thianvelaz/Cognio/internal/store/migrate"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Open opens (creating if needed) the database file at path. Writes are
// serialised through a single connection.
func Open(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	dsn := "file::memory:"
	if path != MemoryPath {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
		dsn = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One connection keeps an in-memory database alive and avoids
	// SQLITE_BUSY between writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewWithDB wraps an open database. Callers run store.Prepare before use.
func NewWithDB(db *sql.DB) store.SQLStore { return &sqliteStore{db: db} }

type sqliteStore struct{ db *sql.DB }

func (s *sqliteStore) Memories() store.Memories { return &memories{db: s.db} }
func (s *sqliteStore) Close() error             { return s.db.Close() }
func (s *sqliteStore) DB() *sql.DB              { return s.db }
func (s *sqliteStore) Dialect() migrate.Dialect { return migrate.SQLite }

// HealthPing implements health.HealthPinger.
func (s *sqliteStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type memories struct{ db *sql.DB }

const selectColumns = `SELECT id, text, text_hash, embedding, project, tags, created_at, updated_at, archived, dedup_key FROM memories `

func (m *memories) Create(ctx context.Context, rec *model.MemoryRecord) error {
	tags, err := json.Marshal(nonNil(rec.Tags))
	if err != nil {
		return &model.StorageError{Op: "create", Err: err}
	}
	_, err = m.db.ExecContext(ctx, `
        INSERT INTO memories (id, text, text_hash, embedding, project, tags, created_at, updated_at, archived, dedup_key)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		rec.ID, rec.Text, rec.TextHash, encodeEmbedding(rec.Embedding), rec.Project, string(tags),
		rec.CreatedAt, rec.UpdatedAt, rec.DedupKey)
	if err != nil {
		if isConstraint(err) {
			return model.ErrConflict
		}
		return &model.StorageError{Op: "create", Err: err}
	}
	return nil
}

func (m *memories) GetByID(ctx context.Context, id string) (*model.MemoryRecord, error) {
	row := m.db.QueryRowContext(ctx, selectColumns+`WHERE id = ? AND archived = 0`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, &model.StorageError{Op: "get", Err: err}
	}
	return rec, nil
}

func (m *memories) FindActiveByDedupKey(ctx context.Context, key string) (*model.MemoryRecord, error) {
	row := m.db.QueryRowContext(ctx, selectColumns+`WHERE dedup_key = ? AND archived = 0`, key)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, &model.StorageError{Op: "find by dedup key", Err: err}
	}
	return rec, nil
}

func (m *memories) Archive(ctx context.Context, id string) (bool, error) {
	res, err := m.db.ExecContext(ctx, `UPDATE memories SET archived = 1 WHERE id = ? AND archived = 0`, id)
	if err != nil {
		return false, &model.StorageError{Op: "archive", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &model.StorageError{Op: "archive", Err: err}
	}
	return n > 0, nil
}

func (m *memories) ScanActive(ctx context.Context, f model.Filter) ([]*model.MemoryRecord, error) {
	where, args := store.ActiveWhere(f, migrate.SQLite)
	rows, err := m.db.QueryContext(ctx, selectColumns+where+` ORDER BY created_at DESC, id DESC`, args...)
	if err != nil {
		return nil, &model.StorageError{Op: "scan", Err: err}
	}
	defer func() { _ = rows.Close() }()

	out := []*model.MemoryRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, &model.StorageError{Op: "scan", Err: err}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &model.StorageError{Op: "scan", Err: err}
	}
	return out, nil
}

func (m *memories) Rekey(ctx context.Context, perProject bool) (int, error) {
	return store.RekeySQL(ctx, m.db, migrate.SQLite, perProject)
}

type scanner interface{ Scan(dest ...any) error }

func scanRecord(sc scanner) (*model.MemoryRecord, error) {
	var (
		rec      model.MemoryRecord
		hash     sql.NullString
		blob     []byte
		project  sql.NullString
		tags     sql.NullString
		dedupKey sql.NullString
		created  sql.NullInt64
		updated  sql.NullInt64
	)
	if err := sc.Scan(&rec.ID, &rec.Text, &hash, &blob, &project, &tags, &created, &updated, &rec.Archived, &dedupKey); err != nil {
		return nil, err
	}
	rec.TextHash = hash.String
	rec.DedupKey = dedupKey.String
	rec.CreatedAt = created.Int64
	rec.UpdatedAt = updated.Int64
	if project.Valid {
		p := project.String
		rec.Project = &p
	}
	emb, err := decodeEmbedding(blob)
	if err != nil {
		return nil, err
	}
	rec.Embedding = emb
	rec.Tags = []string{}
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &rec.Tags); err != nil {
			return nil, fmt.Errorf("decode tags for %s: %w", rec.ID, err)
		}
	}
	return &rec, nil
}

// encodeEmbedding packs v as little-endian float32 values.
func encodeEmbedding(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(b))
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out, nil
}

func isConstraint(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}

func nonNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
