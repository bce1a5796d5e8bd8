package main

import (
	"context"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				if err := a.pool.Migrate(); err != nil {
					return err
				}
				a.logger.Info("database migrated", "driver", a.cfg.Database.Driver)
				return nil
			})
		},
	}
}
