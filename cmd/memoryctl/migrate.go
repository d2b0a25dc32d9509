package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Thianvelaz/Cognio/internal/config"
	"github.com/Thianvelaz/Cognio/internal/factory"
	"github.com/Thianvelaz/Cognio/internal/logger"
	"github.com/Thianvelaz/Cognio/internal/store"
	"github.com/Thianvelaz/Cognio/internal/store/migrate"
)

// runMigrate opens the configured database directly, applies pending schema
// migrations and re-keys records for the configured dedup scope.
func runMigrate(ctx context.Context, cfg *config.Config, log zerolog.Logger, out io.Writer) error {
	st, err := factory.NewStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	sqlStore, ok := st.(store.SQLStore)
	if !ok {
		_, err = fmt.Fprintf(out, "driver %s has no schema\n", cfg.DBDriver)
		return err
	}
	version, err := migrate.Current(ctx, sqlStore.DB())
	if err != nil {
		return err
	}
	archived, err := st.Memories().Rekey(ctx, cfg.DedupPerProject())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "schema at version %d (latest %d), dedup scope %s, %d duplicates archived\n",
		version, migrate.Latest(), cfg.DedupScope, archived)
	return err
}

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations to the configured database (reads COGNIO_* env)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New()
			if err != nil {
				return err
			}
			log := logger.WithLevel(logger.New("memoryctl"), cfg.LogLevel)
			return runMigrate(cmd.Context(), cfg, log, os.Stdout)
		},
	})
}
