package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edgard/personabot/internal/app"
	"github.com/edgard/personabot/internal/prompt"
)

func newPromptCmd(opts *rootOptions) *cobra.Command {
	var channel string
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Print the system prompt the bot would send for a channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				text, err := prompt.NewAssembler(a.Store).Build(ctx, channel, a.Config.Persona)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), text)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&channel, "channel", "", "channel id")
	_ = cmd.MarkFlagRequired("channel")
	return cmd
}
