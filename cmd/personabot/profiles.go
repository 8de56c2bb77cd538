package main

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/edgard/personabot/internal/app"
	"github.com/edgard/personabot/internal/profiles"
)

func newProfilesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Inspect and regenerate user profiles",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print every stored profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				stored, err := a.Store.Profiles(ctx)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), profiles.Format(stored))
				return nil
			})
		},
	}

	var channels []string
	regenerate := &cobra.Command{
		Use:   "regenerate",
		Short: "Regenerate profiles for the most active authors of a channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				targets := channels
				if len(targets) == 0 {
					targets = a.Config.Profiles.Channels
				}
				if len(targets) == 0 {
					return errors.New("no channel given: use --channel or set profiles.channels")
				}

				for _, ch := range targets {
					res, err := a.Regenerator.Regenerate(ctx, ch)
					if err != nil {
						return fmt.Errorf("channel %s: %w", ch, err)
					}
					failed := make([]string, 0, len(res.Failed))
					for name := range res.Failed {
						failed = append(failed, name)
					}
					slices.Sort(failed)
					fmt.Fprintf(cmd.OutOrStdout(), "channel %s: updated %v, skipped %v, failed %v\n", ch, res.Updated, res.Skipped, failed)
				}
				return nil
			})
		},
	}
	regenerate.Flags().StringSliceVar(&channels, "channel", nil, "channel id (repeatable; defaults to profiles.channels)")

	cmd.AddCommand(show, regenerate)
	return cmd
}
