// Package completion wraps text-generation providers behind one Client with a
// configurable model tier policy, a bounded call timeout and an optional
// provider-side context cache.
package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/edgard/personabot/internal/errs"
	"github.com/edgard/personabot/internal/logger"
)

// Tier selects a capability and cost level.
type Tier string

// Known tiers.
const (
	TierLow  Tier = "low"
	TierHigh Tier = "high"
)

// Options tune a single completion.
type Options struct {
	// Tier forces a tier. Empty lets the policy decide.
	Tier Tier
	// ImageURL attaches an image; the request becomes multimodal.
	ImageURL string
	// HighEffort selects the high tier.
	HighEffort bool
	// CacheName asks the provider to serve the system prompt from its context
	// cache under this name. Providers without a cache ignore it.
	CacheName string
}

// Client produces a completion for a system prompt and a user message.
type Client interface {
	Complete(ctx context.Context, systemPrompt, userMessage string, opts Options) (string, error)
}

// Request is what a Provider receives after policy resolution.
type Request struct {
	Model        string
	SystemPrompt string
	UserMessage  string
	ImageURL     string
	// CacheName is set only after the cache entry was ensured; providers that
	// honor it must not resend SystemPrompt.
	CacheName string
}

// Provider performs the remote call.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
	// Cache returns the provider's context cache; NoopCache if it has none.
	Cache() ContextCache
}

// Policy maps tiers to model identifiers.
type Policy struct {
	Low       string
	High      string
	ImageTier Tier
}

// Tier returns the tier opts resolve to: explicit tier first, then high
// effort, then the image tier for multimodal calls, else low.
func (p Policy) Tier(opts Options) Tier {
	switch {
	case opts.Tier != "":
		return opts.Tier
	case opts.HighEffort:
		return TierHigh
	case opts.ImageURL != "":
		if p.ImageTier != "" {
			return p.ImageTier
		}
		return TierHigh
	default:
		return TierLow
	}
}

// Model returns the model identifier opts resolve to.
func (p Policy) Model(opts Options) string {
	if p.Tier(opts) == TierHigh {
		return p.High
	}
	return p.Low
}

// WithOverrides replaces tiers that have a non-empty override.
func (p Policy) WithOverrides(low, high string) Policy {
	if low != "" {
		p.Low = low
	}
	if high != "" {
		p.High = high
	}
	return p
}

// Settings configure NewClient.
type Settings struct {
	Policy   Policy
	Timeout  time.Duration
	CacheTTL time.Duration
	// CacheEnabled turns on the context cache lifecycle for calls that set CacheName.
	CacheEnabled bool
}

type client struct {
	provider Provider
	settings Settings
	log      *slog.Logger

	// ensure collapses concurrent lifecycle checks for one cache name so a
	// burst of first calls creates a single entry.
	ensure singleflight.Group
}

// NewClient wraps provider with the tier policy, timeout and cache lifecycle.
func NewClient(provider Provider, settings Settings, log *slog.Logger) Client {
	if log == nil {
		log = logger.Discard()
	}
	return &client{
		provider: provider,
		settings: settings,
		log:      log.With("component", "completion", "provider", provider.Name()),
	}
}

func (c *client) Complete(ctx context.Context, systemPrompt, userMessage string, opts Options) (string, error) {
	if c.settings.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.settings.Timeout)
		defer cancel()
	}

	req := Request{
		Model:        c.settings.Policy.Model(opts),
		SystemPrompt: systemPrompt,
		UserMessage:  userMessage,
		ImageURL:     opts.ImageURL,
	}
	if req.Model == "" {
		return "", errs.NewCompletionError(c.provider.Name(), 0, fmt.Errorf("no model configured for tier %q", c.settings.Policy.Tier(opts)))
	}

	if c.settings.CacheEnabled && opts.CacheName != "" {
		name := CacheKey(opts.CacheName, req.Model)
		_, err, _ := c.ensure.Do(name, func() (any, error) {
			return nil, EnsureCache(ctx, c.provider.Cache(), name, req.Model, systemPrompt, c.settings.CacheTTL)
		})
		if err != nil {
			c.log.WarnContext(ctx, "Context cache unavailable, sending full prompt", "cache", name, "error", err)
		} else {
			req.CacheName = name
		}
	}

	start := time.Now()
	text, err := c.provider.Generate(ctx, req)
	if err != nil {
		c.log.ErrorContext(ctx, "Completion failed", "model", req.Model, "duration", time.Since(start), "error", err)
		var cErr *errs.CompletionError
		if errors.As(err, &cErr) {
			return "", err
		}
		return "", errs.NewCompletionError(c.provider.Name(), 0, err)
	}

	c.log.DebugContext(ctx, "Completion finished", "model", req.Model, "duration", time.Since(start),
		"multimodal", req.ImageURL != "", "cached", req.CacheName != "", "response_length", len(text))
	return text, nil
}
