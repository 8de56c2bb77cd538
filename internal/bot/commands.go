package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/edgard/personabot/internal/database"
	"github.com/edgard/personabot/internal/gateway"
	"github.com/edgard/personabot/internal/profiles"
)

// Command replies.
const (
	msgSaveStarted      = "Starting to fetch and save messages from this channel. This may take a while..."
	msgSaveDone         = "All messages from this channel have been saved to the database."
	msgSaveFailed       = "An error occurred while saving messages. Please check the logs for more information."
	msgSaveUnsupported  = "Saving channel history is not supported on this platform."
	msgGenerateFailed   = "An error occurred while generating profiles."
	msgGenerateDone     = "Generated profiles for %d users."
	msgGenerateUnwired  = "Profile generation is not available."
	msgNoProfilesStored = "No profiles stored yet."
)

// command is a chat command. run sends its own replies; a returned error
// becomes the fallback reply.
type command struct {
	name string
	run  func(ctx context.Context, log *slog.Logger, ev gateway.Event, r gateway.Replier) error
}

// registerCommands returns the commands keyed by lower-cased trigger.
func (e *Engine) registerCommands() map[string]command {
	cmds := make(map[string]command)
	cmds["!savechannel"] = command{name: "saveChannel", run: e.saveChannel}
	cmds["!showprofiles"] = command{name: "showProfiles", run: e.showProfiles}
	cmds["!generateprofiles"] = command{name: "generateProfiles", run: e.generateProfiles}
	return cmds
}

func (e *Engine) lookupCommand(content string) (command, bool) {
	if !e.cfg.CommandsEnabled {
		return command{}, false
	}
	cmd, ok := e.commands[strings.ToLower(strings.TrimSpace(content))]
	return cmd, ok
}

// saveChannel backfills the channel's full history in one transaction.
func (e *Engine) saveChannel(ctx context.Context, log *slog.Logger, ev gateway.Event, r gateway.Replier) error {
	if e.history == nil {
		return r.SendReply(ctx, msgSaveUnsupported)
	}
	if err := r.SendReply(ctx, msgSaveStarted); err != nil {
		return err
	}

	n, err := e.Backfill(ctx, ev.ChannelID)
	if err != nil {
		if errors.Is(err, gateway.ErrHistoryUnsupported) {
			return r.SendReply(ctx, msgSaveUnsupported)
		}
		log.ErrorContext(ctx, "Channel backfill failed", "error", err)
		return r.SendReply(ctx, msgSaveFailed)
	}

	log.InfoContext(ctx, "Channel backfill finished", "inserted", n)
	return r.SendReply(ctx, msgSaveDone)
}

// Backfill fetches channelID's history from the gateway and stores it in a
// single all-or-nothing batch. It returns the number of new rows.
func (e *Engine) Backfill(ctx context.Context, channelID string) (int, error) {
	if e.history == nil {
		return 0, gateway.ErrHistoryUnsupported
	}

	events, err := e.history.FetchHistory(ctx, channelID)
	if err != nil {
		return 0, fmt.Errorf("fetch history: %w", err)
	}

	batch := make([]database.Message, 0, len(events))
	for _, ev := range events {
		batch = append(batch, database.Message{
			MessageID: ev.MessageID,
			ChannelID: ev.ChannelID,
			Author:    ev.Author,
			Content:   gateway.SubstituteMentions(ev.Content, ev.MentionTokens, e.persona.MentionSubstitute),
			Timestamp: ev.Timestamp,
		})
	}
	return e.store.AppendMessages(ctx, batch)
}

func (e *Engine) showProfiles(ctx context.Context, _ *slog.Logger, _ gateway.Event, r gateway.Replier) error {
	opCtx, cancel := e.opContext(ctx)
	stored, err := e.store.Profiles(opCtx)
	cancel()
	if err != nil {
		return err
	}
	if len(stored) == 0 {
		return r.SendReply(ctx, msgNoProfilesStored)
	}
	return r.SendReply(ctx, profiles.Format(stored))
}

func (e *Engine) generateProfiles(ctx context.Context, log *slog.Logger, ev gateway.Event, r gateway.Replier) error {
	if e.regenerator == nil {
		return r.SendReply(ctx, msgGenerateUnwired)
	}

	res, err := e.regenerator.Regenerate(ctx, ev.ChannelID)
	if err != nil {
		log.ErrorContext(ctx, "Error generating profiles", "error", err)
		return r.SendReply(ctx, msgGenerateFailed)
	}
	return r.SendReply(ctx, fmt.Sprintf(msgGenerateDone, len(res.Updated)))
}
