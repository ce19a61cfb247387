package ai

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// NarrativeGenerator produces prose for one prompt/response exchange.
// Implementations must be safe for concurrent use.
type NarrativeGenerator interface {
	// Generate returns the completion text for prompt under systemPrompt.
	Generate(ctx context.Context, systemPrompt, prompt string) (string, error)
}

// GenerateFunc adapts a function to NarrativeGenerator.
type GenerateFunc func(ctx context.Context, systemPrompt, prompt string) (string, error)

// Generate calls f.
func (f GenerateFunc) Generate(ctx context.Context, systemPrompt, prompt string) (string, error) {
	return f(ctx, systemPrompt, prompt)
}

// Request defaults shared by providers.
const (
	DefaultTemperature = 0.1
	DefaultMaxTokens   = 4000
)

// ProviderConfig contains common configuration for AI providers
type ProviderConfig struct {
	MaxRetries     int           // Retry attempts after the first for transient errors
	RetryBaseDelay time.Duration // Base delay for exponential backoff
	RequestTimeout time.Duration // Timeout for individual requests
	Temperature    float64
	MaxTokens      int
}

// WithDefaults fills unset fields.
func (c ProviderConfig) WithDefaults() ProviderConfig {
	if c.RetryBaseDelay == 0 {
		c.RetryBaseDelay = 1 * time.Second
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 120 * time.Second
	}
	if c.Temperature == 0 {
		c.Temperature = DefaultTemperature
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	return c
}

// Error codes for AI provider operations
var (
	// EAIRateLimit indicates the API rate limit has been exceeded
	EAIRateLimit = errors.New("ai provider rate limit exceeded")

	// EAITimeout indicates the request timed out
	EAITimeout = errors.New("ai request timed out")

	// EAIUnavailable indicates the AI service is temporarily unavailable
	EAIUnavailable = errors.New("ai service temporarily unavailable")

	// EAIUnauthorized indicates invalid API credentials
	EAIUnauthorized = errors.New("ai provider authentication failed")

	// EAIEmptyResponse indicates the provider returned no usable text
	EAIEmptyResponse = errors.New("ai provider returned an empty response")

	// EAIInvalidRequest indicates the provider rejected the request
	EAIInvalidRequest = errors.New("ai provider rejected the request")
)

// IsRetryable returns true if the error is a transient error that can be retried
func IsRetryable(err error) bool {
	return errors.Is(err, EAIRateLimit) ||
		errors.Is(err, EAITimeout) ||
		errors.Is(err, EAIUnavailable)
}

// WrapError wraps an error with context about the AI operation
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("ai %s: %w", operation, err)
}
