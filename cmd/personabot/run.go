package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/edgard/personabot/internal/app"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to the chat gateway and start replying",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				a.Logger.Info("Starting bot...", "version", Version, "persona", a.Config.Persona.Name, "gateway", a.Config.Gateway.Kind)
				err := a.Run(ctx)
				a.Logger.Info("Bot run loop finished")
				return err
			})
		},
	}
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Connecting applies pending migrations.
			return opts.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				a.Logger.Info("Database is up to date", "driver", a.Config.Database.Driver)
				return nil
			})
		},
	}
}
