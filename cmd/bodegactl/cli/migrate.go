package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bodega/bodega-api/internal/platform/db"
)

func newMigrateCommand() *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply embedded schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if list {
				migrations, err := db.Migrations()
				if err != nil {
					return err
				}
				for _, m := range migrations {
					fmt.Fprintln(cmd.OutOrStdout(), m.Version)
				}
				return nil
			}
			cfg, logger, err := environment()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 2, MinConns: 1})
			if err != nil {
				return err
			}
			defer pool.Close()
			applied, err := db.Migrate(ctx, pool, logger)
			if err != nil {
				return err
			}
			logger.Info("migrations applied", slog.Int("count", applied))
			return nil
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "print embedded migration versions without applying them")
	return cmd
}
