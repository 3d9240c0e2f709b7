package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/teesched/internal/config"
	"github.com/example/teesched/internal/db"
	"github.com/example/teesched/internal/migrate"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			ctx := context.Background()
			d, err := db.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer d.Close()

			if err := migrate.Up(ctx, d); err != nil {
				return err
			}
			files, err := migrate.Files(d.Dialect())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d migrations applied (%s)\n", len(files), d.Dialect())
			return nil
		},
	}
}
