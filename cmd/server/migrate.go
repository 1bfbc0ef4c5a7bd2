package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"newsletter-go/internal/config"
	"newsletter-go/internal/logging"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.LoadFromEnv(*configPath)
			if err != nil {
				return fmt.Errorf("failed to read configuration: %w", err)
			}
			logger, err := logging.New(logging.Options{Level: settings.Log.Level, Format: settings.Log.Format})
			if err != nil {
				return err
			}

			db, err := openPool(cmd.Context(), settings.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			return runMigrations(cmd.Context(), db, logger)
		},
	}
}
