// mosaicctl manages the mosaic search registry directly in the database.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rkm/pgstac-mosaic/internal/config"
	"github.com/rkm/pgstac-mosaic/internal/db"
	"github.com/rkm/pgstac-mosaic/internal/registry"
)

var version = "dev"

// storeFactory opens the registry the search commands operate on. The
// returned func releases it.
type storeFactory func(ctx context.Context, dbCfg *config.DatabaseConfig, logger *slog.Logger) (registry.Store, func(), error)

func main() {
	if err := newRootCmd(openPostgresStore).Execute(); err != nil {
		os.Exit(1)
	}
}

type globalFlags struct {
	databaseURL string
	verbose     bool
}

func newRootCmd(openStore storeFactory) *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "mosaicctl",
		Short: "Manage registered mosaic searches",
		Long: `Manage the mosaic search registry stored alongside pgstac.

Connection settings are read from the DATABASE_ environment variables
(DATABASE_URL, DATABASE_STATEMENT_TIMEOUT, ...). --database-url overrides
DATABASE_URL.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&flags.databaseURL, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(
		newMigrateCmd(flags),
		newRegisterCmd(flags, openStore),
		newListCmd(flags, openStore),
		newInfoCmd(flags, openStore),
	)
	return root
}

func (f *globalFlags) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if f.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

func (f *globalFlags) database() (*config.DatabaseConfig, error) {
	cfg, err := config.LoadDatabase()
	if err != nil {
		return nil, err
	}
	if f.databaseURL != "" {
		cfg.URL = f.databaseURL
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("no database configured: set DATABASE_URL or --database-url")
	}
	return cfg, nil
}

func openPostgresStore(ctx context.Context, dbCfg *config.DatabaseConfig, logger *slog.Logger) (registry.Store, func(), error) {
	pool, err := db.NewPool(ctx, *dbCfg, logger)
	if err != nil {
		return nil, nil, err
	}
	store := registry.NewPostgresStore(pool,
		registry.WithTimeout(dbCfg.StatementTimeout),
		registry.WithLogger(logger),
	)
	return store, pool.Close, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
