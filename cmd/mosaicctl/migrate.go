package main

import (
	"github.com/spf13/cobra"

	"github.com/rkm/pgstac-mosaic/internal/db"
)

func newMigrateCmd(flags *globalFlags) *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the mosaic schema",
	}

	run := func(op func(*db.Migrator) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			dbCfg, err := flags.database()
			if err != nil {
				return err
			}
			logger := flags.logger(cmd)
			pool, err := db.NewPool(cmd.Context(), *dbCfg, logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			mg, err := db.NewMigrator(pool, logger)
			if err != nil {
				return err
			}
			defer mg.Close()
			return op(mg)
		}
	}

	migrateCmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE:  run(func(mg *db.Migrator) error { return mg.Up() }),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back every migration",
			Args:  cobra.NoArgs,
			RunE:  run(func(mg *db.Migrator) error { return mg.Down() }),
		},
	)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
	}
	versionCmd.RunE = run(func(mg *db.Migrator) error {
		v, dirty, err := mg.Version()
		if err != nil {
			return err
		}
		return writeJSON(versionCmd.OutOrStdout(), map[string]any{"version": v, "dirty": dirty})
	})
	migrateCmd.AddCommand(versionCmd)

	return migrateCmd
}
