package bot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/edgard/personabot/internal/completion"
	"github.com/edgard/personabot/internal/database"
	"github.com/edgard/personabot/internal/errs"
	"github.com/edgard/personabot/internal/gateway"
	"github.com/edgard/personabot/internal/logger"
	"github.com/edgard/personabot/internal/persona"
	"github.com/edgard/personabot/internal/profiles"
	"github.com/edgard/personabot/internal/prompt"
)

// DefaultFallbackReply is sent when an addressed interaction fails.
const DefaultFallbackReply = "Sorry, an error occurred while processing your request."

// Store is the persistence the engine needs.
type Store interface {
	database.MessageStore
	database.ProfileStore
}

// Regenerator rebuilds profiles for a channel.
type Regenerator interface {
	Regenerate(ctx context.Context, channelID string) (profiles.Result, error)
}

// EngineDeps are the collaborators of an Engine. History and Regenerator are
// optional; the commands that need them report when they are missing.
type EngineDeps struct {
	Store       Store
	Completer   completion.Client
	Regenerator Regenerator
	History     gateway.HistoryFetcher
	Persona     persona.Persona
	Logger      *slog.Logger
}

// EngineConfig tunes an Engine.
type EngineConfig struct {
	FallbackReply   string
	MaxInFlight     int
	CommandsEnabled bool
	// OpTimeout bounds each store operation.
	OpTimeout time.Duration
	// CacheContext sends the stable prompt part through the provider's context cache.
	CacheContext bool
}

// Engine turns gateway events into stored messages and persona replies.
// Every event runs in its own goroutine.
type Engine struct {
	store       Store
	completer   completion.Client
	regenerator Regenerator
	history     gateway.HistoryFetcher
	assembler   *prompt.Assembler
	persona     persona.Persona
	cfg         EngineConfig
	commands    map[string]command
	log         *slog.Logger

	// delay picks the pause before a reply; replaced in tests.
	delay func(minDelay, maxDelay time.Duration) time.Duration

	sem chan struct{}
	wg  sync.WaitGroup
}

// NewEngine wires an Engine.
func NewEngine(deps EngineDeps, cfg EngineConfig) *Engine {
	log := deps.Logger
	if log == nil {
		log = logger.Discard()
	}
	if cfg.FallbackReply == "" {
		cfg.FallbackReply = DefaultFallbackReply
	}

	e := &Engine{
		store:       deps.Store,
		completer:   deps.Completer,
		regenerator: deps.Regenerator,
		history:     deps.History,
		assembler:   prompt.NewAssembler(deps.Store),
		persona:     deps.Persona.WithDefaults(),
		cfg:         cfg,
		log:         log.With("component", "engine", "persona", deps.Persona.Name),
		delay:       jitter,
	}
	if cfg.MaxInFlight > 0 {
		e.sem = make(chan struct{}, cfg.MaxInFlight)
	}
	e.commands = e.registerCommands()
	return e
}

// Handle implements gateway.Handler. It returns immediately.
func (e *Engine) Handle(ctx context.Context, ev gateway.Event, r gateway.Replier) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.handle(ctx, ev, r)
	}()
}

// Wait blocks until every in-flight event is done.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) handle(ctx context.Context, ev gateway.Event, r gateway.Replier) {
	if ev.IsFromBot {
		return
	}

	if e.sem != nil {
		select {
		case e.sem <- struct{}{}:
			defer func() { <-e.sem }()
		case <-ctx.Done():
			return
		}
	}

	log := e.log.With(
		"interaction_id", uuid.NewString(),
		"channel_id", ev.ChannelID,
		"message_id", ev.MessageID,
		"author", ev.Author,
	)

	if cmd, ok := e.lookupCommand(ev.Content); ok {
		log.InfoContext(ctx, "Running command", "command", cmd.name)
		e.guard(ctx, log, r, func() error { return cmd.run(ctx, log, ev, r) })
		return
	}

	if !ev.MentionsBot {
		defer func() {
			if p := recover(); p != nil {
				log.ErrorContext(ctx, "Panic while recording message", "panic", p, "stack", string(debug.Stack()))
			}
		}()
		if err := e.record(ctx, ev); err != nil {
			log.ErrorContext(ctx, "Failed to record message", "error", err)
		}
		return
	}

	e.guard(ctx, log, r, func() error { return e.reply(ctx, log, ev, r) })
}

// guard runs fn and turns any error or panic into the fallback reply.
func (e *Engine) guard(ctx context.Context, log *slog.Logger, r gateway.Replier, fn func() error) {
	defer func() {
		if p := recover(); p != nil {
			log.ErrorContext(ctx, "Panic while handling interaction", "panic", p, "stack", string(debug.Stack()))
			e.sendFallback(ctx, log, r)
		}
	}()

	if err := fn(); err != nil {
		log.ErrorContext(ctx, "Error handling message", "error", err, "error_code", errs.Code(err))
		e.sendFallback(ctx, log, r)
	}
}

func (e *Engine) sendFallback(ctx context.Context, log *slog.Logger, r gateway.Replier) {
	if ctx.Err() != nil {
		log.WarnContext(ctx, "Skipping fallback reply, shutting down")
		return
	}
	if err := r.SendReply(ctx, e.cfg.FallbackReply); err != nil {
		log.ErrorContext(ctx, "Failed to send fallback reply", "error", err)
	}
}

// record stores the inbound message with the bot's mention tokens substituted.
func (e *Engine) record(ctx context.Context, ev gateway.Event) error {
	msg := &database.Message{
		MessageID: ev.MessageID,
		ChannelID: ev.ChannelID,
		Author:    ev.Author,
		Content:   gateway.SubstituteMentions(ev.Content, ev.MentionTokens, e.persona.MentionSubstitute),
		Timestamp: ev.Timestamp,
	}

	ctx, cancel := e.opContext(ctx)
	defer cancel()
	return e.store.AppendMessage(ctx, msg)
}

func (e *Engine) reply(ctx context.Context, log *slog.Logger, ev gateway.Event, r gateway.Replier) error {
	if err := e.record(ctx, ev); err != nil {
		return err
	}

	userMessage := gateway.StripMentions(ev.Content, ev.MentionTokens)
	if userMessage == "" && ev.AttachmentURL == "" {
		log.DebugContext(ctx, "Mention without text or image, nothing to answer")
		return nil
	}

	start := time.Now()
	text, err := e.generate(ctx, ev.ChannelID, userMessage, ev.AttachmentURL)
	if err != nil {
		return err
	}

	pause := e.delay(e.persona.ReplyDelay.Min, e.persona.ReplyDelay.Max)
	select {
	case <-time.After(pause):
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := r.SendReply(ctx, text); err != nil {
		return err
	}
	log.InfoContext(ctx, "Replied", "duration", time.Since(start), "delay", pause,
		"multimodal", ev.AttachmentURL != "", "reply_preview", logger.Truncate(text, 50))

	reply := &database.Message{
		MessageID: database.ReplyID(ev.MessageID),
		ChannelID: ev.ChannelID,
		Author:    e.persona.AuthorName,
		Content:   text,
		Timestamp: time.Now().UTC(),
	}
	opCtx, cancel := e.opContext(ctx)
	defer cancel()
	if err := e.store.AppendMessage(opCtx, reply); err != nil {
		// The reply is already out; a second message would only confuse.
		log.ErrorContext(ctx, "Failed to record reply", "error", err)
	}
	return nil
}

// generate assembles the prompt for channelID and asks the completion client
// for a reply to userMessage.
func (e *Engine) generate(ctx context.Context, channelID, userMessage, imageURL string) (string, error) {
	opCtx, cancel := e.opContext(ctx)
	parts, err := e.assembler.BuildParts(opCtx, channelID, e.persona)
	cancel()
	if err != nil {
		return "", fmt.Errorf("assemble prompt: %w", err)
	}

	opts := completion.Options{ImageURL: imageURL}
	system, user := parts.String(), userMessage
	if e.cfg.CacheContext {
		system = parts.Stable
		user = parts.Volatile + "\n\n" + userMessage
		opts.CacheName = CacheName(e.persona.Name, parts.Stable)
	}

	text, err := e.completer.Complete(ctx, system, user, opts)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", errs.NewCompletionError("", 0, errors.New("empty completion"))
	}
	return text, nil
}

func (e *Engine) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.OpTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.cfg.OpTimeout)
}

// CacheName derives a context cache name from the persona and the cached
// content, so changed profiles never reuse a stale entry.
func CacheName(personaName, content string) string {
	sum := sha256.Sum256([]byte(content))
	return personaName + "-" + hex.EncodeToString(sum[:6])
}

func jitter(minDelay, maxDelay time.Duration) time.Duration {
	if maxDelay <= minDelay {
		return minDelay
	}
	return minDelay + rand.N(maxDelay-minDelay+1)
}
