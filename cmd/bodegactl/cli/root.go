// Package cli implements the bodegactl operational commands.
package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bodega/bodega-api/internal/app"
)

// NewRootCommand assembles the bodegactl command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "bodegactl",
		Short:        "Operational helpers for the bodega API",
		Version:      app.Version,
		SilenceUsage: true,
	}
	root.AddCommand(newMigrateCommand(), newSeedCommand(), newJobsCommand())
	return root
}

// environment loads configuration and a logger for a command run.
func environment() (*app.Config, *slog.Logger, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	return cfg, app.NewLogger(cfg), nil
}
