// Package prompt assembles the system prompt for a channel from stored
// profiles and recent conversation.
package prompt

import (
	"context"
	"fmt"
	"strings"

	"github.com/edgard/personabot/internal/database"
	"github.com/edgard/personabot/internal/persona"
)

// NoProfile is rendered for a user whose stored profile is empty.
const NoProfile = "No profile available yet."

// Sources is what the assembler reads from.
type Sources interface {
	RecentMessages(ctx context.Context, channelID string, limit int) ([]database.Message, error)
	Profiles(ctx context.Context) ([]database.UserProfile, error)
}

// Prompt is an assembled prompt split into a stable part (preamble and
// profiles) and a volatile part (conversation and suffix).
type Prompt struct {
	Stable   string
	Volatile string
}

// String joins both parts in render order.
func (p Prompt) String() string {
	return p.Stable + p.Volatile
}

// Assembler builds prompts. It holds no state between calls.
type Assembler struct {
	src Sources
}

// NewAssembler returns an Assembler reading from src.
func NewAssembler(src Sources) *Assembler {
	return &Assembler{src: src}
}

// Build renders the full prompt for channelID as a single string.
func (a *Assembler) Build(ctx context.Context, channelID string, p persona.Persona) (string, error) {
	parts, err := a.BuildParts(ctx, channelID, p)
	if err != nil {
		return "", err
	}
	return parts.String(), nil
}

// BuildParts renders the prompt for channelID: preamble, one line per stored
// profile plus a placeholder line for each participant of the window that has
// none, then the last p.HistoryLimit messages oldest first, then the suffix.
// Stable holds the preamble and the stored profiles; everything derived from
// the message window is in Volatile. Empty stores yield empty sections, not
// an error.
func (a *Assembler) BuildParts(ctx context.Context, channelID string, p persona.Persona) (Prompt, error) {
	p = p.WithDefaults()

	profiles, err := a.src.Profiles(ctx)
	if err != nil {
		return Prompt{}, fmt.Errorf("load profiles: %w", err)
	}

	messages, err := a.src.RecentMessages(ctx, channelID, p.HistoryLimit)
	if err != nil {
		return Prompt{}, fmt.Errorf("load recent messages: %w", err)
	}

	var stable strings.Builder
	stable.WriteString(p.Preamble)
	stable.WriteString(p.ProfilesHeader)

	known := make(map[string]struct{}, len(profiles))
	for _, up := range profiles {
		known[up.Username] = struct{}{}
		text := up.Profile
		if strings.TrimSpace(text) == "" {
			text = NoProfile
		}
		fmt.Fprintf(&stable, "Profile for %s: %s\n", up.Username, text)
	}

	// Placeholders depend on who is in the window, so they open the volatile
	// part and the stable part changes only when stored profiles do.
	var volatile strings.Builder
	for i := len(messages) - 1; i >= 0; i-- {
		author := messages[i].Author
		if _, ok := known[author]; ok || author == p.AuthorName {
			continue
		}
		known[author] = struct{}{}
		fmt.Fprintf(&volatile, "Profile for %s: %s\n", author, NoProfile)
	}
	volatile.WriteString(p.ConversationHeader)
	for i := len(messages) - 1; i >= 0; i-- {
		fmt.Fprintf(&volatile, "%s: %s\n", messages[i].Author, messages[i].Content)
	}
	volatile.WriteString(p.Suffix)

	return Prompt{Stable: stable.String(), Volatile: volatile.String()}, nil
}
