package main

import (
	"github.com/DukeRupert/liftaudit/internal"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		db, err := openDB(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		applied, err := internal.RunMigrations(ctx, db)
		if err != nil {
			return err
		}
		logger.Info("Migrations applied", "version", applied)
		return nil
	},
}
