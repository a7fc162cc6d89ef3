package main

import (
	"github.com/spf13/cobra"

	"github.com/kodix/kodix/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, logger, db, err := setup()
		if err != nil {
			return err
		}
		defer db.Close()

		v, err := database.Version(cmd.Context(), db)
		if err != nil {
			return err
		}
		logger.Info("database up to date", "version", v)
		return nil
	},
}
