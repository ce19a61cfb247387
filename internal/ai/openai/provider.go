// Package openai implements ai.NarrativeGenerator against any
// OpenAI-compatible chat completions endpoint. The default endpoint is xAI.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/DukeRupert/liftaudit/internal/ai"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	// DefaultBaseURL is the xAI OpenAI-compatible API root
	DefaultBaseURL = "https://api.x.ai/v1"

	// DefaultModel is the default completion model
	DefaultModel = "grok-3-mini-latest"
)

// Config contains configuration for the OpenAI-compatible provider
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	HTTPClient     *http.Client // Optional (tests)
	ProviderConfig ai.ProviderConfig
}

// Provider implements ai.NarrativeGenerator using the official OpenAI SDK.
type Provider struct {
	config Config
	client openai.Client
	logger *slog.Logger
}

// New creates a new provider.
func New(config Config, logger *slog.Logger) (*Provider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("narrative API key is required")
	}

	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	config.ProviderConfig = config.ProviderConfig.WithDefaults()

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.ProviderConfig.RequestTimeout}
	}

	client := openai.NewClient(
		option.WithAPIKey(config.APIKey),
		option.WithBaseURL(config.BaseURL),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(config.ProviderConfig.MaxRetries),
	)

	return &Provider{
		config: config,
		client: client,
		logger: logger,
	}, nil
}

// Generate sends one system+user exchange and returns the first choice's text.
func (p *Provider) Generate(ctx context.Context, systemPrompt, prompt string) (string, error) {
	if strings.TrimSpace(systemPrompt) == "" || strings.TrimSpace(prompt) == "" {
		return "", ai.WrapError("generate", fmt.Errorf("%w: empty prompt", ai.EAIInvalidRequest))
	}

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.config.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(p.config.ProviderConfig.Temperature),
		MaxTokens:   openai.Int(int64(p.config.ProviderConfig.MaxTokens)),
	})
	if err != nil {
		return "", ai.WrapError("generate", mapError(ctx, err))
	}

	if len(resp.Choices) == 0 {
		return "", ai.WrapError("generate", ai.EAIEmptyResponse)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ai.WrapError("generate", ai.EAIEmptyResponse)
	}

	p.logger.Debug("Narrative generated",
		"model", p.config.Model,
		"input_tokens", resp.Usage.PromptTokens,
		"output_tokens", resp.Usage.CompletionTokens,
		"duration", time.Since(start),
	)
	return text, nil
}

// mapError maps SDK and transport errors to ai sentinel errors
func mapError(ctx context.Context, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return ai.EAIUnauthorized
		case http.StatusTooManyRequests:
			return ai.EAIRateLimit
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return ai.EAITimeout
		case http.StatusBadRequest, http.StatusUnprocessableEntity:
			return fmt.Errorf("%w: %s", ai.EAIInvalidRequest, apiErr.Message)
		case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusInternalServerError:
			return ai.EAIUnavailable
		default:
			return fmt.Errorf("API error (status %d): %s", apiErr.StatusCode, apiErr.Message)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ai.EAITimeout
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", ai.EAIUnavailable, err)
}

var _ ai.NarrativeGenerator = (*Provider)(nil)
