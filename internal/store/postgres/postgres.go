// Package postgres is the shared-database store used by cloud deployments.
// Embeddings are stored in a pgvector column; similarity is still computed
// by the search engine so results match the other drivers exactly.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pgvector/pgvector-go"
	"go.nhat.io/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"

	"github.com/Thianvelaz/Cognio/internal/model"
	"github.com/Thianvelaz/Cognio/internal/store"
	"github.com/Thianvelaz/Cognio/internal/store/migrate"
)

const uniqueViolation = "23505"

var (
	registerOnce sync.Once
	driverName   string
	registerErr  error
)

// tracedDriver registers an otelsql wrapper around pgx exactly once.
func tracedDriver() (string, error) {
	registerOnce.Do(func() {
		driverName, registerErr = otelsql.Register(
			"pgx",
			otelsql.TraceQueryWithoutArgs(),
			otelsql.TraceRowsClose(),
			otelsql.TraceRowsAffected(),
			otelsql.WithSystem(semconv.DBSystemPostgreSQL),
		)
	})
	return driverName, registerErr
}

// Open opens a PostgreSQL connection using the traced pgx driver and
// verifies connectivity.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	driver, err := tracedDriver()
	if err != nil {
		return nil, fmt.Errorf("register traced driver: %w", err)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewWithDB wraps an open database. Callers run store.Prepare before use.
func NewWithDB(db *sql.DB) store.SQLStore { return &pgStore{db: db} }

type pgStore struct{ db *sql.DB }

func (s *pgStore) Memories() store.Memories { return &memories{db: s.db} }
func (s *pgStore) Close() error             { return s.db.Close() }
func (s *pgStore) DB() *sql.DB              { return s.db }
func (s *pgStore) Dialect() migrate.Dialect { return migrate.Postgres }

// HealthPing implements health.HealthPinger for Postgres-backed store.
func (s *pgStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type memories struct{ db *sql.DB }

const selectColumns = `SELECT id, text, text_hash, embedding, project, tags, created_at, updated_at, archived, dedup_key FROM memories `

func (m *memories) Create(ctx context.Context, rec *model.MemoryRecord) error {
	tags, err := json.Marshal(rec.Tags)
	if err != nil {
		return &model.StorageError{Op: "create", Err: err}
	}
	if rec.Tags == nil {
		tags = []byte("[]")
	}
	_, err = m.db.ExecContext(ctx, `
        INSERT INTO memories (id, text, text_hash, embedding, project, tags, created_at, updated_at, archived, dedup_key)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE, $9)`,
		rec.ID, rec.Text, rec.TextHash, pgvector.NewVector(rec.Embedding), rec.Project, string(tags),
		rec.CreatedAt, rec.UpdatedAt, rec.DedupKey)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return model.ErrConflict
		}
		return &model.StorageError{Op: "create", Err: err}
	}
	return nil
}

func (m *memories) GetByID(ctx context.Context, id string) (*model.MemoryRecord, error) {
	return m.getOne(ctx, "get", `WHERE id = $1 AND NOT archived`, id)
}

func (m *memories) FindActiveByDedupKey(ctx context.Context, key string) (*model.MemoryRecord, error) {
	return m.getOne(ctx, "find by dedup key", `WHERE dedup_key = $1 AND NOT archived`, key)
}

func (m *memories) getOne(ctx context.Context, op, where string, arg any) (*model.MemoryRecord, error) {
	rec, err := scanRecord(m.db.QueryRowContext(ctx, selectColumns+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, &model.StorageError{Op: op, Err: err}
	}
	return rec, nil
}

func (m *memories) Archive(ctx context.Context, id string) (bool, error) {
	res, err := m.db.ExecContext(ctx, `UPDATE memories SET archived = TRUE WHERE id = $1 AND NOT archived`, id)
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
	where, args := store.ActiveWhere(f, migrate.Postgres)
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
	return store.RekeySQL(ctx, m.db, migrate.Postgres, perProject)
}

type scanner interface{ Scan(dest ...any) error }

func scanRecord(sc scanner) (*model.MemoryRecord, error) {
	var (
		rec      model.MemoryRecord
		hash     sql.NullString
		vec      pgvector.Vector
		project  sql.NullString
		tags     sql.NullString
		dedupKey sql.NullString
		created  sql.NullInt64
		updated  sql.NullInt64
	)
	if err := sc.Scan(&rec.ID, &rec.Text, &hash, &vec, &project, &tags, &created, &updated, &rec.Archived, &dedupKey); err != nil {
		return nil, err
	}
	rec.TextHash = hash.String
	rec.DedupKey = dedupKey.String
	rec.CreatedAt = created.Int64
	rec.UpdatedAt = updated.Int64
	rec.Embedding = vec.Slice()
	if project.Valid {
		p := project.String
		rec.Project = &p
	}
	rec.Tags = []string{}
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &rec.Tags); err != nil {
			return nil, fmt.Errorf("decode tags for %s: %w", rec.ID, err)
		}
	}
	return &rec, nil
}
