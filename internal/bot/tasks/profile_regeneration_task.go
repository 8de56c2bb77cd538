package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// newProfileRegenerationTask regenerates profiles for each configured
// channel. A failing channel does not stop the others.
func newProfileRegenerationTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", ProfileRegeneration)

	return func(ctx context.Context) error {
		if len(deps.Channels) == 0 {
			log.WarnContext(ctx, "No channels configured for profile regeneration")
			return nil
		}

		var errs []error
		for _, channelID := range deps.Channels {
			if err := ctx.Err(); err != nil {
				return err
			}

			start := time.Now()
			res, err := deps.Regenerator.Regenerate(ctx, channelID)
			if err != nil {
				log.ErrorContext(ctx, "Profile regeneration failed", "channel_id", channelID, "error", err)
				errs = append(errs, fmt.Errorf("channel %s: %w", channelID, err))
				continue
			}
			log.InfoContext(ctx, "Regenerated channel profiles", "channel_id", channelID,
				"updated", len(res.Updated), "failed", len(res.Failed), "duration", time.Since(start))
		}
		return errors.Join(errs...)
	}
}
