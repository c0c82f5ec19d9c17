package main

import (
	"github.com/spf13/cobra"

	"lan-chat/internal/db"
	"lan-chat/internal/logging"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		database, err := db.Open(cmd.Context(), cfg.Database)
		if err != nil {
			return err
		}
		defer database.Close()
		if err := db.Migrate(cmd.Context(), database); err != nil {
			return err
		}
		logging.Info().Str("driver", cfg.Database.Driver).Msg("migrations applied")
		return nil
	},
}
