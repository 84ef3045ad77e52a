package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := setup(ctx, "classbook-migrate")
			if err != nil {
				return err
			}
			defer a.close()

			if a.pool == nil {
				return errors.New("migrate needs STORE_DRIVER=postgres")
			}
			return a.migrate(ctx)
		},
	}
}
