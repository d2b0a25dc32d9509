package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Thianvelaz/Cognio/internal/store/migrate"
)

// SQLStore is implemented by drivers backed by database/sql so callers can
// run migrations against them.
type SQLStore interface {
	Store
	DB() *sql.DB
	Dialect() migrate.Dialect
}

// Prepare applies pending schema migrations when st is SQL backed. Other
// stores are returned untouched.
func Prepare(ctx context.Context, st Store, log zerolog.Logger) error {
	sqlStore, ok := st.(SQLStore)
	if !ok {
		return nil
	}
	from, to, err := migrate.Apply(ctx, sqlStore.DB(), sqlStore.Dialect())
	if err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	log.Info().
		Int("from_version", from).
		Int("to_version", to).
		Str("dialect", string(sqlStore.Dialect())).
		Msg("Schema ready")
	return nil
}
