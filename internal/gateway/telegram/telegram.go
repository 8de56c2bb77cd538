// Package telegram delivers Telegram group and private messages to the bot
// engine using long polling.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/personabot/internal/gateway"
	"github.com/edgard/personabot/internal/logger"
)

const (
	// Name identifies the gateway in configuration and logs.
	Name = "telegram"

	messageLimit = 4096
)

// Config configures the Telegram gateway.
type Config struct {
	Token       string
	SendTimeout time.Duration
	// Options are passed to tgbot.New after the gateway's own options.
	Options []tgbot.Option
}

// identity is the bot's own account as reported by getMe.
type identity struct {
	ID       int64
	Username string
}

// Gateway is a gateway.Gateway backed by the Telegram Bot API.
type Gateway struct {
	bot         *tgbot.Bot
	sendTimeout time.Duration
	log         *slog.Logger

	mu      sync.RWMutex
	self    identity
	handler gateway.Handler
	runCtx  context.Context
}

// New creates the Bot API client.
func New(cfg Config, log *slog.Logger) (*Gateway, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram bot token cannot be empty")
	}
	if log == nil {
		log = logger.Discard()
	}

	g := &Gateway{
		sendTimeout: cfg.SendTimeout,
		log:         log.With("component", "telegram_gateway"),
	}

	opts := append([]tgbot.Option{
		tgbot.WithMiddlewares(logUpdates(g.log)),
		tgbot.WithDefaultHandler(g.onUpdate),
	}, cfg.Options...)

	b, err := tgbot.New(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	g.bot = b
	return g, nil
}

// Name implements gateway.Gateway.
func (g *Gateway) Name() string { return Name }

// Run resolves the bot's identity and polls for updates until ctx is done.
func (g *Gateway) Run(ctx context.Context, h gateway.Handler) error {
	me, err := g.bot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("get bot info: %w", err)
	}

	g.mu.Lock()
	g.self = identity{ID: me.ID, Username: me.Username}
	g.handler = h
	g.runCtx = ctx
	g.mu.Unlock()

	g.log.InfoContext(ctx, "Starting Telegram polling", "bot_id", me.ID, "bot_username", me.Username)
	g.bot.Start(ctx)
	g.log.InfoContext(ctx, "Telegram polling stopped")

	if ctx.Err() == nil {
		return errors.New("telegram polling stopped unexpectedly")
	}
	return nil
}

// FetchHistory always fails: the Bot API has no history endpoint.
func (g *Gateway) FetchHistory(context.Context, string) ([]gateway.Event, error) {
	return nil, gateway.ErrHistoryUnsupported
}

func (g *Gateway) onUpdate(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	g.mu.RLock()
	self, h, runCtx := g.self, g.handler, g.runCtx
	g.mu.RUnlock()

	if h == nil || update == nil || update.Message == nil {
		return
	}
	if runCtx != nil {
		ctx = runCtx
	}

	ev, ok := toEvent(update.Message, self)
	if !ok {
		return
	}
	h(ctx, ev, &replier{gateway: g, chatID: update.Message.Chat.ID, messageID: update.Message.ID})
}

type replier struct {
	gateway   *Gateway
	chatID    int64
	messageID int
}

func (r *replier) SendReply(ctx context.Context, text string) error {
	if r.gateway.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.gateway.sendTimeout)
		defer cancel()
	}

	for _, chunk := range gateway.Chunk(text, messageLimit) {
		sent, err := r.gateway.bot.SendMessage(ctx, &tgbot.SendMessageParams{
			ChatID:          r.chatID,
			Text:            chunk,
			ReplyParameters: &models.ReplyParameters{MessageID: r.messageID},
		})
		if err != nil {
			return fmt.Errorf("send reply to %d: %w", r.messageID, err)
		}
		r.gateway.log.DebugContext(ctx, "Sent reply", "chat_id", r.chatID, "reply_to", r.messageID, "message_id", sent.ID)
	}
	return nil
}

// toEvent converts a Telegram message. Messages without a sender or text are
// dropped. Photos are not forwarded: their download URL embeds the bot token.
func toEvent(msg *models.Message, self identity) (gateway.Event, bool) {
	if msg == nil || msg.From == nil {
		return gateway.Event{}, false
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	if text == "" {
		return gateway.Event{}, false
	}

	author := msg.From.Username
	if author == "" {
		author = strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
	}

	ev := gateway.Event{
		ChannelID: strconv.FormatInt(msg.Chat.ID, 10),
		MessageID: strconv.Itoa(msg.ID),
		Author:    author,
		Content:   text,
		Timestamp: time.Unix(int64(msg.Date), 0).UTC(),
		IsFromBot: msg.From.IsBot,
	}
	if self.Username != "" {
		ev.MentionTokens = []string{"@" + self.Username}
	}
	ev.MentionsBot = mentionsBot(msg, text, self)
	return ev, true
}

// mentionsBot reports whether msg addresses the bot by @mention entity, by
// bare username, or by replying to one of its messages.
func mentionsBot(msg *models.Message, text string, self identity) bool {
	if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil && self.ID != 0 && msg.ReplyToMessage.From.ID == self.ID {
		return true
	}
	if self.Username == "" {
		return false
	}

	lower := strings.ToLower(text)
	username := strings.ToLower(self.Username)
	mention := "@" + username

	for _, e := range append(msg.Entities, msg.CaptionEntities...) {
		if e.Type != models.MessageEntityTypeMention {
			continue
		}
		// Entity offsets are UTF-16 based; a byte slice is only an approximation.
		if e.Offset >= 0 && e.Length > 0 && e.Offset+e.Length <= len(lower) && lower[e.Offset:e.Offset+e.Length] == mention {
			return true
		}
	}

	for _, w := range strings.Fields(lower) {
		if strings.TrimFunc(w, func(r rune) bool { return unicode.IsPunct(r) && r != '_' }) == username {
			return true
		}
	}
	return false
}

// logUpdates logs every update with timing.
func logUpdates(log *slog.Logger) tgbot.Middleware {
	return func(next tgbot.HandlerFunc) tgbot.HandlerFunc {
		return func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
			start := time.Now()
			entry := log.With("update_id", update.ID)
			if m := update.Message; m != nil {
				entry = entry.With("chat_id", m.Chat.ID, "message_id", m.ID, "text_preview", logger.Truncate(m.Text, 50))
				if m.From != nil {
					entry = entry.With("user_id", m.From.ID)
				}
			}
			entry.DebugContext(ctx, "Received update")
			next(ctx, b, update)
			entry.DebugContext(ctx, "Processed update", "duration", time.Since(start))
		}
	}
}
