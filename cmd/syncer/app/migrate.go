package app

import (
	"context"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			// loadComponents migrates as part of opening the database.
			c, err := loadComponents(ctx, cmd)
			if err != nil {
				return err
			}
			c.Close()
			return nil
		},
	}
}
