// Package bot runs a persona bot: the event engine, its chat commands, the
// scheduler and the lifecycle that ties them to a gateway.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/edgard/personabot/internal/gateway"
	"github.com/edgard/personabot/internal/logger"
)

// Server is a background HTTP server, such as the admin API.
type Server interface {
	Serve(ctx context.Context) error
}

// Bot owns the lifecycle of the engine and its surrounding components.
type Bot struct {
	logger    *slog.Logger
	gateway   gateway.Gateway
	engine    *Engine
	scheduler *Scheduler
	server    Server
}

// NewBot assembles a Bot. scheduler and server may be nil.
func NewBot(log *slog.Logger, gw gateway.Gateway, engine *Engine, scheduler *Scheduler, server Server) *Bot {
	if log == nil {
		log = logger.Discard()
	}
	return &Bot{
		logger:    log.With("component", "bot_orchestrator"),
		gateway:   gw,
		engine:    engine,
		scheduler: scheduler,
		server:    server,
	}
}

// Run starts every component and blocks until ctx is cancelled or one of
// them fails. In-flight events are drained before it returns.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("Starting bot orchestrator...", "gateway", b.gateway.Name())

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := b.gateway.Run(gCtx, b.engine.Handle); err != nil {
			return fmt.Errorf("%s gateway: %w", b.gateway.Name(), err)
		}
		if gCtx.Err() == nil {
			return fmt.Errorf("%s gateway stopped unexpectedly", b.gateway.Name())
		}
		return nil
	})

	if b.scheduler != nil {
		g.Go(func() error {
			if err := b.scheduler.Start(gCtx); err != nil {
				return fmt.Errorf("start scheduler: %w", err)
			}
			<-gCtx.Done()
			if err := b.scheduler.Stop(); err != nil {
				b.logger.Error("Error stopping scheduler", "error", err)
			}
			return nil
		})
	}

	if b.server != nil {
		g.Go(func() error {
			return b.server.Serve(gCtx)
		})
	}

	err := g.Wait()

	b.logger.Info("Waiting for in-flight events...")
	b.engine.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("Bot orchestrator stopped due to error", "error", err)
		return err
	}
	b.logger.Info("Bot orchestrator stopped gracefully.")
	return nil
}
