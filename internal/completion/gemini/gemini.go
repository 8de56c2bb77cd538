// Package gemini implements the completion Provider and its context cache on
// the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"google.golang.org/genai"

	"github.com/edgard/personabot/internal/completion"
	"github.com/edgard/personabot/internal/errs"
	"github.com/edgard/personabot/internal/logger"
)

const providerName = "gemini"

// Config configures the provider.
type Config struct {
	APIKey      string
	BaseURL     string
	MaxTokens   int
	Temperature float32
	// HTTPClient is used for image downloads and API calls.
	HTTPClient *http.Client
}

// Provider calls GenerateContent and owns a cached-contents cache.
type Provider struct {
	client     *genai.Client
	baseConfig genai.GenerateContentConfig
	httpClient *http.Client
	cache      *Cache
	log        *slog.Logger
}

// New returns a Provider for cfg.
func New(ctx context.Context, cfg Config, log *slog.Logger) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errs.NewConfigurationError("completion.api_key", errors.New("gemini API key is required"))
	}
	if log == nil {
		log = logger.Discard()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}

	gi, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, errs.NewConfigurationError("completion", fmt.Errorf("failed to create genai client: %w", err))
	}

	temperature := cfg.Temperature
	base := genai.GenerateContentConfig{
		Temperature: &temperature,
		SafetySettings: []*genai.SafetySetting{
			{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryCivicIntegrity, Threshold: genai.HarmBlockThresholdBlockNone},
		},
	}
	if cfg.MaxTokens > 0 {
		base.MaxOutputTokens = int32(min(cfg.MaxTokens, 1<<31-1)) //nolint:gosec // clamped above
	}

	l := log.With("component", "gemini")
	return &Provider{
		client:     gi,
		baseConfig: base,
		httpClient: httpClient,
		cache:      newCache(gi, l),
		log:        l,
	}, nil
}

func (p *Provider) Name() string { return providerName }

func (p *Provider) Cache() completion.ContextCache { return p.cache }

// Generate sends the user turn, with the image inlined as bytes when present.
// When req.CacheName is set the system prompt comes from the cached content.
func (p *Provider) Generate(ctx context.Context, req completion.Request) (string, error) {
	parts := []*genai.Part{genai.NewPartFromText(req.UserMessage)}
	if req.ImageURL != "" {
		data, mimeType, err := downloadImage(ctx, p.httpClient, req.ImageURL)
		if err != nil {
			return "", errs.NewCompletionError(providerName, 0, err)
		}
		parts = append(parts, genai.NewPartFromBytes(data, mimeType))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	cfg := p.baseConfig
	if req.CacheName != "" {
		resource, ok := p.cache.resource(req.CacheName)
		if !ok {
			return "", errs.NewCompletionError(providerName, 0, fmt.Errorf("cache %q is not known", req.CacheName))
		}
		cfg.CachedContent = resource
	} else if req.SystemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}}
	}

	resp, err := p.client.Models.GenerateContent(ctx, req.Model, contents, &cfg)
	if err != nil {
		return "", errs.NewCompletionError(providerName, statusCode(err), err)
	}
	return p.extractText(ctx, resp)
}

func (p *Provider) extractText(ctx context.Context, resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", errs.NewCompletionError(providerName, 0, errors.New("nil response"))
	}

	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" && fb.BlockReason != genai.BlockedReasonUnspecified {
		reason := string(fb.BlockReason)
		if fb.BlockReasonMessage != "" {
			reason = fb.BlockReasonMessage
		}
		p.log.ErrorContext(ctx, "Gemini request blocked", "reason", reason)
		return "", errs.NewCompletionError(providerName, http.StatusOK, fmt.Errorf("blocked by safety filter: %s", reason))
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		finishReason := "unknown"
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "" {
			finishReason = string(resp.Candidates[0].FinishReason)
		}
		p.log.WarnContext(ctx, "Gemini response missing candidates or content", "finish_reason", finishReason)
		return "", errs.NewCompletionError(providerName, http.StatusOK, fmt.Errorf("no content, finish reason: %s", finishReason))
	}

	return resp.Text(), nil
}

func statusCode(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return apiErrPtr.Code
	}
	return 0
}

var _ completion.Provider = (*Provider)(nil)
