// Package openai implements the completion Provider on the OpenAI chat
// completions API.
package openai

import (
	"context"
	"errors"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"github.com/edgard/personabot/internal/completion"
	"github.com/edgard/personabot/internal/errs"
)

const providerName = "openai"

// Config configures the provider.
type Config struct {
	APIKey      string
	BaseURL     string
	MaxTokens   int
	Temperature float32
	HTTPClient  *http.Client
}

// Provider calls chat completions. It has no context cache.
type Provider struct {
	client      *openai.Client
	maxTokens   int
	temperature float32
}

// New returns a Provider for cfg.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errs.NewConfigurationError("completion.api_key", errors.New("openai API key is required"))
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}

	return &Provider{
		client:      openai.NewClientWithConfig(clientCfg),
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

func (p *Provider) Name() string { return providerName }

func (p *Provider) Cache() completion.ContextCache { return completion.NoopCache{} }

// Generate sends the system prompt and the user message; with an image the
// user turn carries both a text part and an image_url part.
func (p *Provider) Generate(ctx context.Context, req completion.Request) (string, error) {
	var messages []openai.ChatCompletionMessage
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}

	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if req.ImageURL != "" {
		user.MultiContent = []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: req.UserMessage},
			{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: req.ImageURL, Detail: openai.ImageURLDetailAuto},
			},
		}
	} else {
		user.Content = req.UserMessage
	}
	messages = append(messages, user)

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
	})
	if err != nil {
		return "", errs.NewCompletionError(providerName, statusCode(err), err)
	}

	if len(resp.Choices) == 0 {
		return "", errs.NewCompletionError(providerName, http.StatusOK, errors.New("response has no choices"))
	}
	return resp.Choices[0].Message.Content, nil
}

func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

var _ completion.Provider = (*Provider)(nil)
