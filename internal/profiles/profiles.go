// Package profiles regenerates per-user personality profiles from stored
// message history.
package profiles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/edgard/personabot/internal/completion"
	"github.com/edgard/personabot/internal/database"
	"github.com/edgard/personabot/internal/logger"
)

// History sources.
const (
	SourceAuthor  = "author"
	SourceChannel = "channel"
)

// Settings configure a Regenerator.
type Settings struct {
	TopK int
	// Source picks the history a profile is built from: the author's own
	// messages across channels, or the whole channel.
	Source    string
	Community string
	// IsHuman decides who gets a profile; authors for which it returns false
	// are skipped.
	IsHuman func(username string) bool
}

// Result summarizes one regeneration run.
type Result struct {
	Updated []string
	Skipped []string
	Failed  map[string]error
}

// Regenerator builds profiles for the most active authors of a channel.
type Regenerator struct {
	messages  database.MessageStore
	profiles  database.ProfileStore
	completer completion.Client
	settings  Settings
	log       *slog.Logger
}

// NewRegenerator returns a Regenerator. A nil IsHuman treats everyone as human.
func NewRegenerator(messages database.MessageStore, profiles database.ProfileStore, completer completion.Client, settings Settings, log *slog.Logger) *Regenerator {
	if log == nil {
		log = logger.Discard()
	}
	if settings.IsHuman == nil {
		settings.IsHuman = func(string) bool { return true }
	}
	if settings.TopK <= 0 {
		settings.TopK = 10
	}
	return &Regenerator{
		messages:  messages,
		profiles:  profiles,
		completer: completer,
		settings:  settings,
		log:       log.With("component", "profiles"),
	}
}

// Regenerate rebuilds the profiles of the top-K authors of channelID.
// A failure for one author is recorded and the run continues; only failing
// to rank authors aborts the run.
func (r *Regenerator) Regenerate(ctx context.Context, channelID string) (Result, error) {
	res := Result{Failed: map[string]error{}}

	top, err := r.messages.TopAuthors(ctx, channelID, r.settings.TopK)
	if err != nil {
		return res, fmt.Errorf("rank authors: %w", err)
	}

	for _, ac := range top {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if !r.settings.IsHuman(ac.Author) {
			r.log.InfoContext(ctx, "Skipped profile generation for bot or app user", "username", ac.Author)
			res.Skipped = append(res.Skipped, ac.Author)
			continue
		}

		if err := r.regenerateOne(ctx, channelID, ac.Author); err != nil {
			r.log.ErrorContext(ctx, "Error building user profile", "username", ac.Author, "error", err)
			res.Failed[ac.Author] = err
			continue
		}
		res.Updated = append(res.Updated, ac.Author)
	}

	r.log.InfoContext(ctx, "Profile regeneration finished", "channel_id", channelID,
		"updated", len(res.Updated), "skipped", len(res.Skipped), "failed", len(res.Failed))
	return res, nil
}

func (r *Regenerator) regenerateOne(ctx context.Context, channelID, username string) error {
	var (
		history []database.Message
		err     error
	)
	if r.settings.Source == SourceChannel {
		history, err = r.messages.ChannelMessages(ctx, channelID)
	} else {
		history, err = r.messages.AuthorMessages(ctx, username)
	}
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	if len(history) == 0 {
		return errors.New("no messages to build a profile from")
	}

	start := time.Now()
	profile, err := r.completer.Complete(ctx, "", BuildPrompt(username, r.settings.Community, history), completion.Options{HighEffort: true})
	if err != nil {
		return err
	}

	if err := r.profiles.UpsertProfile(ctx, username, profile); err != nil {
		return err
	}
	r.log.InfoContext(ctx, "Generated profile", "username", username, "messages", len(history), "duration", time.Since(start))
	return nil
}

// BuildPrompt renders the summarization request for username.
func BuildPrompt(username, community string, history []database.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate a detailed profile for the user %q based on the following conversation history from a discord of friends called %q. ", username, community)
	b.WriteString("Include information about their writing style, personality, and tone. ")
	b.WriteString("Make a list of specific quotes from the messages that best represent their writing style, personality, and tone. ")
	b.WriteString("Also make a list of specific facts about them based on the entire conversation history. Here are the messages:\n\n")
	for _, m := range history {
		fmt.Fprintf(&b, "[%s] %s: %s\n", m.Timestamp.UTC().Format(time.RFC3339), m.Author, m.Content)
	}
	return b.String()
}

// Format renders stored profiles for a chat reply.
func Format(profiles []database.UserProfile) string {
	var b strings.Builder
	b.WriteString("User profiles:\n")
	for _, p := range profiles {
		fmt.Fprintf(&b, "\n%s:\n%s\n", p.Username, p.Profile)
	}
	return b.String()
}
