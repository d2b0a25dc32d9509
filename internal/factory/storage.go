package factory

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Thianvelaz/Cognio/internal/config"
	"github.com/Thianvelaz/Cognio/internal/store"
	"github.com/Thianvelaz/Cognio/internal/store/memory"
	"github.com/Thianvelaz/Cognio/internal/store/postgres"
	"github.com/Thianvelaz/Cognio/internal/store/sqlite"
)

// NewStore opens the store selected by cfg.DBDriver and brings its schema up
// to date. The schema must be current before any request is served.
func NewStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store.Store, error) {
	var st store.Store
	switch cfg.DBDriver {
	case "memory":
		st = memory.New()
	case "sqlite":
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLitePath, err)
		}
		st = sqlite.NewWithDB(db)
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("COGNIO_POSTGRES_DSN is required when DB_DRIVER=postgres")
		}
		db, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		st = postgres.NewWithDB(db)
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER: %s", cfg.DBDriver)
	}

	if err := store.Prepare(ctx, st, log); err != nil {
		_ = st.Close()
		return nil, err
	}
	log.Info().Str("db_driver", cfg.DBDriver).Msg("Store ready")
	return st, nil
}
