// Package app wires configuration into running components: the database,
// the completion provider, the gateway and the bot around them.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/edgard/personabot/internal/api"
	"github.com/edgard/personabot/internal/bot"
	"github.com/edgard/personabot/internal/bot/tasks"
	"github.com/edgard/personabot/internal/completion"
	"github.com/edgard/personabot/internal/completion/gemini"
	"github.com/edgard/personabot/internal/completion/openai"
	"github.com/edgard/personabot/internal/config"
	"github.com/edgard/personabot/internal/database"
	"github.com/edgard/personabot/internal/errs"
	"github.com/edgard/personabot/internal/gateway"
	"github.com/edgard/personabot/internal/gateway/discord"
	"github.com/edgard/personabot/internal/gateway/telegram"
	"github.com/edgard/personabot/internal/profiles"
)

// App holds the components shared by every command.
type App struct {
	Config      *config.Config
	Logger      *slog.Logger
	DB          *sqlx.DB
	Store       database.Store
	Completer   completion.Client
	Regenerator *profiles.Regenerator
}

// New connects the database and builds the completion client.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	start := time.Now()
	componentTimes := make(map[string]time.Duration)

	dbStart := time.Now()
	db, err := database.Connect(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	store := database.NewStore(db, cfg.Database.Driver, log)
	componentTimes["database"] = time.Since(dbStart)

	aiStart := time.Now()
	provider, err := NewProvider(ctx, cfg.Completion, log)
	if err != nil {
		database.CloseDB(db, log)
		return nil, err
	}
	completer := completion.NewClient(provider, CompletionSettings(cfg), log)
	componentTimes["completion"] = time.Since(aiStart)

	regenerator := profiles.NewRegenerator(store, store, completer, profiles.Settings{
		TopK:      cfg.Profiles.TopK,
		Source:    cfg.Profiles.Source,
		Community: cfg.Profiles.Community,
		IsHuman:   cfg.Profiles.IsHuman,
	}, log)

	log.Info("Application initialized", "total_duration", time.Since(start), "component_times", componentTimes,
		"driver", cfg.Database.Driver, "provider", provider.Name(), "persona", cfg.Persona.Name)

	return &App{
		Config:      cfg,
		Logger:      log,
		DB:          db,
		Store:       store,
		Completer:   completer,
		Regenerator: regenerator,
	}, nil
}

// Close releases the database.
func (a *App) Close() {
	database.CloseDB(a.DB, a.Logger)
}

// CompletionSettings derives the client settings from cfg, letting the
// persona override the provider's model tiers.
func CompletionSettings(cfg *config.Config) completion.Settings {
	policy := completion.Policy{
		Low:       cfg.Completion.Models.Low,
		High:      cfg.Completion.Models.High,
		ImageTier: completion.Tier(cfg.Completion.ImageTier),
	}
	return completion.Settings{
		Policy:       policy.WithOverrides(cfg.Persona.Models.Low, cfg.Persona.Models.High),
		Timeout:      cfg.Completion.Timeout,
		CacheTTL:     cfg.Completion.Cache.TTL,
		CacheEnabled: cfg.Completion.Cache.Enabled,
	}
}

// NewProvider builds the configured completion provider.
func NewProvider(ctx context.Context, cfg config.CompletionConfig, log *slog.Logger) (completion.Provider, error) {
	httpClient := &http.Client{Timeout: cfg.Timeout}

	switch cfg.Provider {
	case "gemini":
		p, err := gemini.New(ctx, gemini.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			HTTPClient:  httpClient,
		}, log)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "openai":
		p, err := openai.New(openai.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			HTTPClient:  httpClient,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, errs.NewConfigurationError("completion.provider", fmt.Errorf("unknown provider %q", cfg.Provider))
	}
}

// NewGateway builds the configured chat gateway.
func NewGateway(cfg config.GatewayConfig, log *slog.Logger) (gateway.Gateway, error) {
	switch cfg.Kind {
	case discord.Name:
		gw, err := discord.New(discord.Config{Token: cfg.Token, PageInterval: cfg.BackfillPageInterval, SendTimeout: cfg.SendTimeout}, log)
		if err != nil {
			return nil, err
		}
		return gw, nil
	case telegram.Name:
		gw, err := telegram.New(telegram.Config{Token: cfg.Token, SendTimeout: cfg.SendTimeout}, log)
		if err != nil {
			return nil, err
		}
		return gw, nil
	default:
		return nil, errs.NewConfigurationError("gateway.kind", fmt.Errorf("unknown gateway %q", cfg.Kind))
	}
}

// Run connects the gateway and serves events until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	cfg := a.Config

	gw, err := NewGateway(cfg.Gateway, a.Logger)
	if err != nil {
		return err
	}

	var history gateway.HistoryFetcher
	if hf, ok := gw.(gateway.HistoryFetcher); ok {
		history = hf
	}

	engine := bot.NewEngine(bot.EngineDeps{
		Store:       a.Store,
		Completer:   a.Completer,
		Regenerator: a.Regenerator,
		History:     history,
		Persona:     cfg.Persona,
		Logger:      a.Logger,
	}, bot.EngineConfig{
		FallbackReply:   cfg.Bot.FallbackReply,
		MaxInFlight:     cfg.Bot.MaxInFlight,
		CommandsEnabled: cfg.Bot.CommandsEnabled,
		OpTimeout:       cfg.Database.OpTimeout,
		CacheContext:    cfg.Persona.ContextCache && cfg.Completion.Cache.Enabled,
	})

	taskMap := tasks.RegisterAllTasks(tasks.TaskDeps{
		Logger:      a.Logger,
		Store:       a.Store,
		Regenerator: a.Regenerator,
		Channels:    cfg.Profiles.Channels,
	})
	sched, err := bot.NewScheduler(a.Logger, cfg.Scheduler, taskMap)
	if err != nil {
		return err
	}

	var server bot.Server
	if cfg.API.Enabled {
		server = api.New(cfg.API.Listen, api.Deps{
			Store:       a.Store,
			Regenerator: a.Regenerator,
			Persona:     cfg.Persona,
			Logger:      a.Logger,
		})
	}

	return bot.NewBot(a.Logger, gw, engine, sched, server).Run(ctx)
}
