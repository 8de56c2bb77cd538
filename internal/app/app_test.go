package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/personabot/internal/completion"
	"github.com/edgard/personabot/internal/config"
	"github.com/edgard/personabot/internal/errs"
	"github.com/edgard/personabot/internal/logger"
	"github.com/edgard/personabot/internal/persona"
)

func TestCompletionSettingsPersonaOverrides(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		Completion: config.CompletionConfig{
			Timeout:   time.Minute,
			ImageTier: "high",
			Models:    config.ModelsConfig{Low: "gpt-4o-mini", High: "gpt-4o"},
			Cache:     config.CacheConfig{Enabled: true, TTL: time.Hour},
		},
		Persona: persona.Persona{Models: persona.ModelTiers{High: "gpt-4.1"}},
	}

	s := CompletionSettings(cfg)
	assert.Equal(t, "gpt-4o-mini", s.Policy.Low)
	assert.Equal(t, "gpt-4.1", s.Policy.High)
	assert.Equal(t, completion.TierHigh, s.Policy.ImageTier)
	assert.Equal(t, time.Minute, s.Timeout)
	assert.True(t, s.CacheEnabled)
	assert.Equal(t, time.Hour, s.CacheTTL)
}

func TestNewProvider(t *testing.T) {
	t.Parallel()

	p, err := NewProvider(context.Background(), config.CompletionConfig{Provider: "openai", APIKey: "sk-test"}, logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	_, err = NewProvider(context.Background(), config.CompletionConfig{Provider: "cohere", APIKey: "x"}, logger.Discard())
	assert.Equal(t, errs.CodeConfiguration, errs.Code(err))
}

func TestNewGatewayUnknownKind(t *testing.T) {
	t.Parallel()

	_, err := NewGateway(config.GatewayConfig{Kind: "irc", Token: "x"}, logger.Discard())
	assert.Equal(t, errs.CodeConfiguration, errs.Code(err))

	gw, err := NewGateway(config.GatewayConfig{Kind: "discord", Token: "x"}, logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, "discord", gw.Name())
}

func TestNewConnectsStore(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		Database: config.DatabaseConfig{
			Driver:          "sqlite",
			DSN:             filepath.Join(t.TempDir(), "app.db"),
			ConnectAttempts: 1,
		},
		Completion: config.CompletionConfig{Provider: "openai", APIKey: "sk-test", Models: config.ModelsConfig{Low: "a", High: "b"}},
		Profiles:   config.ProfilesConfig{TopK: 3, Source: "author", SkipMode: "allowlist"},
		Persona:    persona.Persona{Name: "Tyrone", Preamble: "x"},
	}

	a, err := New(context.Background(), cfg, logger.Discard())
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Store.Ping(context.Background()))
	assert.NotNil(t, a.Regenerator)
}
