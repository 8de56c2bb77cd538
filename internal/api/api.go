// Package api serves the admin HTTP API: health, stored profiles, prompt
// previews and on-demand profile regeneration.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/edgard/personabot/internal/database"
	"github.com/edgard/personabot/internal/logger"
	"github.com/edgard/personabot/internal/persona"
	"github.com/edgard/personabot/internal/profiles"
	"github.com/edgard/personabot/internal/prompt"
)

const (
	pathHealth     = "/healthz"
	pathProfiles   = "/api/profiles"
	pathPrompt     = "/api/channels/:id/prompt"
	pathRegenerate = "/api/channels/:id/profiles/regenerate"

	requestIDHeader = "X-Request-ID"
	shutdownTimeout = 10 * time.Second
)

// Store is the data the API reads.
type Store interface {
	prompt.Sources
	Ping(ctx context.Context) error
}

// Regenerator rebuilds the profiles of a channel.
type Regenerator interface {
	Regenerate(ctx context.Context, channelID string) (profiles.Result, error)
}

// Deps are the API's collaborators. Regenerator may be nil, in which case
// the regenerate endpoint answers 503.
type Deps struct {
	Store       Store
	Regenerator Regenerator
	Persona     persona.Persona
	Logger      *slog.Logger
}

// Server is the admin HTTP server.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	log        *slog.Logger
}

type handlers struct {
	store       Store
	regenerator Regenerator
	assembler   *prompt.Assembler
	persona     persona.Persona
}

// New builds the router. Nothing listens until Serve.
func New(listen string, deps Deps) *Server {
	log := deps.Logger
	if log == nil {
		log = logger.Discard()
	}
	log = log.With("component", "api")

	r := gin.New()
	r.Use(gin.Recovery(), requestIDMiddleware(), loggingMiddleware(log))

	h := &handlers{
		store:       deps.Store,
		regenerator: deps.Regenerator,
		assembler:   prompt.NewAssembler(deps.Store),
		persona:     deps.Persona,
	}

	r.GET(pathHealth, h.healthCheck)
	r.GET(pathProfiles, h.listProfiles)
	r.GET(pathPrompt, h.channelPrompt)
	r.POST(pathRegenerate, h.regenerateProfiles)

	return &Server{
		engine: r,
		log:    log,
		httpServer: &http.Server{
			Addr:              listen,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

// Serve listens until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.InfoContext(ctx, "Admin API listening", "addr", s.httpServer.Addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("admin api: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown admin api: %w", err)
	}
	s.log.Info("Admin API stopped")
	return nil
}

type healthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (h *handlers) healthCheck(c *gin.Context) {
	if err := h.store.Ping(c.Request.Context()); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Error: "database unreachable"})
		return
	}
	c.JSON(http.StatusOK, healthResponse{Status: "ok"})
}

func (h *handlers) listProfiles(c *gin.Context) {
	stored, err := h.store.Profiles(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error loading profiles"})
		return
	}
	if stored == nil {
		stored = []database.UserProfile{}
	}
	c.JSON(http.StatusOK, stored)
}

type promptResponse struct {
	ChannelID string `json:"channel_id"`
	Persona   string `json:"persona"`
	Prompt    string `json:"prompt"`
}

func (h *handlers) channelPrompt(c *gin.Context) {
	channelID := c.Param("id")
	text, err := h.assembler.Build(c.Request.Context(), channelID, h.persona)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error assembling prompt"})
		return
	}
	c.JSON(http.StatusOK, promptResponse{ChannelID: channelID, Persona: h.persona.Name, Prompt: text})
}

type regenerateResponse struct {
	ChannelID string            `json:"channel_id"`
	Updated   []string          `json:"updated"`
	Skipped   []string          `json:"skipped"`
	Failed    map[string]string `json:"failed"`
}

func (h *handlers) regenerateProfiles(c *gin.Context) {
	if h.regenerator == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "profile regeneration is not configured"})
		return
	}

	channelID := c.Param("id")
	res, err := h.regenerator.Regenerate(c.Request.Context(), channelID)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error generating profiles"})
		return
	}

	resp := regenerateResponse{
		ChannelID: channelID,
		Updated:   append([]string{}, res.Updated...),
		Skipped:   append([]string{}, res.Skipped...),
		Failed:    make(map[string]string, len(res.Failed)),
	}
	for user, ferr := range res.Failed {
		resp.Failed[user] = ferr.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDHeader, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func loggingMiddleware(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		reqLog := log.With(
			"request_id", c.GetString(requestIDHeader),
			slog.Group("request", "method", c.Request.Method, "path", c.Request.URL.Path, "remote_ip", c.ClientIP()),
			slog.Group("response", "status_code", c.Writer.Status(), "body_size", c.Writer.Size()),
			"duration", time.Since(start),
		)
		if errs := c.Errors.ByType(gin.ErrorTypePrivate); len(errs) > 0 {
			reqLog.ErrorContext(c.Request.Context(), fmt.Sprintf("%s %s finished with errors", c.Request.Method, c.Request.URL.Path), "errors", errs.Errors())
			return
		}
		reqLog.InfoContext(c.Request.Context(), fmt.Sprintf("%s %s finished", c.Request.Method, c.Request.URL.Path))
	}
}
