// Package gateway defines the contract between a chat platform and the bot
// engine: inbound events in, replies out.
package gateway

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// ErrHistoryUnsupported is returned by gateways that cannot page through
// channel history.
var ErrHistoryUnsupported = errors.New("gateway: channel history is not available on this platform")

// Event is one inbound chat message.
type Event struct {
	ChannelID   string
	MessageID   string
	Author      string
	Content     string
	Timestamp   time.Time
	IsFromBot   bool
	MentionsBot bool
	// MentionTokens are the literal forms that address this bot in Content.
	MentionTokens []string
	// AttachmentURL is the first image attachment, if any.
	AttachmentURL string
}

// Replier answers the event it was delivered with.
type Replier interface {
	SendReply(ctx context.Context, text string) error
}

// Handler receives events. Gateways call it from their own goroutines and do
// not wait on it beyond the call.
type Handler func(ctx context.Context, ev Event, r Replier)

// Gateway connects to a chat platform and delivers events until ctx is done.
type Gateway interface {
	Name() string
	Run(ctx context.Context, h Handler) error
}

// HistoryFetcher is implemented by gateways that can backfill a channel.
type HistoryFetcher interface {
	// FetchHistory returns every message of channelID, oldest first.
	FetchHistory(ctx context.Context, channelID string) ([]Event, error)
}

// SubstituteMentions replaces every mention token in content with sub.
func SubstituteMentions(content string, tokens []string, sub string) string {
	for _, t := range tokens {
		if t == "" {
			continue
		}
		content = strings.ReplaceAll(content, t, sub)
	}
	return strings.TrimSpace(content)
}

// StripMentions removes every mention token from content.
func StripMentions(content string, tokens []string) string {
	for _, t := range tokens {
		if t == "" {
			continue
		}
		content = strings.ReplaceAll(content, t, "")
	}
	return strings.TrimSpace(content)
}

// Chunk splits text into pieces of at most limit bytes, preferring newline
// boundaries and never splitting a UTF-8 sequence.
func Chunk(text string, limit int) []string {
	if limit <= 0 || len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(text) > limit {
		cut := strings.LastIndexByte(text[:limit], '\n')
		if cut <= 0 {
			cut = limit
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			if cut == 0 {
				cut = limit
			}
		}
		chunks = append(chunks, text[:cut])
		text = strings.TrimPrefix(text[cut:], "\n")
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}
