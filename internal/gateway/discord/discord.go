// Package discord delivers Discord guild and direct messages to the bot engine.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	"github.com/edgard/personabot/internal/gateway"
	"github.com/edgard/personabot/internal/logger"
)

const (
	// Name identifies the gateway in configuration and logs.
	Name = "discord"

	pageSize     = 100
	messageLimit = 2000

	intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent
)

// session is the subset of *discordgo.Session the gateway uses.
type session interface {
	AddHandler(handler any) func()
	Open() error
	Close() error
	ChannelMessageSendReply(channelID, content string, reference *discordgo.MessageReference, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
}

// Config configures the Discord gateway.
type Config struct {
	Token string
	// PageInterval paces history requests; zero means unpaced.
	PageInterval time.Duration
	SendTimeout  time.Duration
}

// Gateway is a gateway.Gateway backed by the Discord websocket gateway.
type Gateway struct {
	session      session
	pageInterval time.Duration
	sendTimeout  time.Duration
	log          *slog.Logger

	mu    sync.RWMutex
	botID string
}

// New creates a Discord session. Nothing connects until Run.
func New(cfg Config, log *slog.Logger) (*Gateway, error) {
	if cfg.Token == "" {
		return nil, errors.New("discord token cannot be empty")
	}
	if log == nil {
		log = logger.Discard()
	}

	discordgo.Logger = logger.DiscordgoFunc(context.Background(), log)

	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = intents
	s.LogLevel = discordgo.LogWarning

	return newGateway(s, cfg, log), nil
}

func newGateway(s session, cfg Config, log *slog.Logger) *Gateway {
	return &Gateway{
		session:      s,
		pageInterval: cfg.PageInterval,
		sendTimeout:  cfg.SendTimeout,
		log:          log.With("component", "discord_gateway"),
	}
}

// Name implements gateway.Gateway.
func (g *Gateway) Name() string { return Name }

func (g *Gateway) setBotID(id string) {
	g.mu.Lock()
	g.botID = id
	g.mu.Unlock()
}

func (g *Gateway) currentBotID() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.botID
}

// Run opens the session and delivers message events to h until ctx is done.
func (g *Gateway) Run(ctx context.Context, h gateway.Handler) error {
	removeReady := g.session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		if r.User == nil {
			return
		}
		g.setBotID(r.User.ID)
		g.log.InfoContext(ctx, "Connected to Discord", "bot_id", r.User.ID, "bot_username", r.User.Username, "guilds", len(r.Guilds))
	})
	defer removeReady()

	removeMessage := g.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		if m == nil || m.Message == nil {
			return
		}
		ev, ok := toEvent(m.Message, g.currentBotID())
		if !ok {
			return
		}
		h(ctx, ev, &replier{gateway: g, channelID: ev.ChannelID, messageID: ev.MessageID})
	})
	defer removeMessage()

	if err := g.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	g.log.InfoContext(ctx, "Discord session opened")

	<-ctx.Done()

	g.log.InfoContext(ctx, "Closing Discord session")
	if err := g.session.Close(); err != nil {
		g.log.Error("Error closing Discord session", "error", err)
	}
	return nil
}

// FetchHistory pages backwards through channelID and returns every message
// oldest first. Pages are paced by the configured interval.
func (g *Gateway) FetchHistory(ctx context.Context, channelID string) ([]gateway.Event, error) {
	limit := rate.Inf
	if g.pageInterval > 0 {
		limit = rate.Every(g.pageInterval)
	}
	limiter := rate.NewLimiter(limit, 1)

	var (
		all    []*discordgo.Message
		before string
	)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}

		page, err := g.session.ChannelMessages(channelID, pageSize, before, "", "", discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("fetch messages before %q: %w", before, err)
		}
		all = append(all, page...)
		g.log.DebugContext(ctx, "Fetched history page", "channel_id", channelID, "page_size", len(page), "total", len(all))

		if len(page) < pageSize {
			break
		}
		before = page[len(page)-1].ID
	}

	botID := g.currentBotID()
	events := make([]gateway.Event, 0, len(all))
	for _, m := range slices.Backward(all) {
		if ev, ok := toEvent(m, botID); ok {
			events = append(events, ev)
		}
	}
	return events, nil
}

type replier struct {
	gateway   *Gateway
	channelID string
	messageID string
}

func (r *replier) SendReply(ctx context.Context, text string) error {
	if r.gateway.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.gateway.sendTimeout)
		defer cancel()
	}

	ref := &discordgo.MessageReference{MessageID: r.messageID, ChannelID: r.channelID}
	for _, chunk := range gateway.Chunk(text, messageLimit) {
		sent, err := r.gateway.session.ChannelMessageSendReply(r.channelID, chunk, ref, discordgo.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("send reply to %s: %w", r.messageID, err)
		}
		r.gateway.log.DebugContext(ctx, "Sent reply", "channel_id", r.channelID, "reply_to", r.messageID, "message_id", sent.ID)
	}
	return nil
}

// toEvent converts a Discord message. Messages without an author are dropped.
func toEvent(m *discordgo.Message, botID string) (gateway.Event, bool) {
	if m == nil || m.Author == nil {
		return gateway.Event{}, false
	}

	ev := gateway.Event{
		ChannelID: m.ChannelID,
		MessageID: m.ID,
		Author:    m.Author.Username,
		Content:   m.Content,
		Timestamp: m.Timestamp,
		IsFromBot: m.Author.Bot,
	}

	if botID != "" {
		ev.MentionTokens = []string{"<@" + botID + ">", "<@!" + botID + ">"}
		for _, u := range m.Mentions {
			if u != nil && u.ID == botID {
				ev.MentionsBot = true
				break
			}
		}
	}

	for _, a := range m.Attachments {
		if a == nil {
			continue
		}
		if isImage(a) {
			ev.AttachmentURL = a.URL
			break
		}
	}
	return ev, true
}

// isImage trusts the content type Discord reports and falls back to the
// file extension only when it is missing.
func isImage(a *discordgo.MessageAttachment) bool {
	ct := a.ContentType
	if ct == "" {
		ct = mime.TypeByExtension(strings.ToLower(path.Ext(a.Filename)))
	}
	return strings.HasPrefix(ct, "image/")
}
