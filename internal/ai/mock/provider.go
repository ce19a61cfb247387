package mock

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Provider is a mock narrative generator for testing and development.
// It is safe for concurrent use; read the call tracking fields only after
// every concurrent caller has returned.
type Provider struct {
	logger *slog.Logger
	mu     sync.Mutex

	// Configurable responses for testing
	Response string
	Error    error

	// Respond, when set, decides the outcome of each call.
	Respond func(systemPrompt, prompt string) (string, error)

	// Call tracking for testing
	GenerateCalls int
	Prompts       []string
}

// New creates a new mock provider
func New(logger *slog.Logger) *Provider {
	return &Provider{
		logger: logger,
	}
}

// Generate returns the configured outcome, or a canned paragraph.
func (p *Provider) Generate(ctx context.Context, systemPrompt, prompt string) (string, error) {
	p.mu.Lock()
	p.GenerateCalls++
	p.Prompts = append(p.Prompts, prompt)
	respond, resp, respErr := p.Respond, p.Response, p.Error
	p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if respond != nil {
		return respond(systemPrompt, prompt)
	}
	if respErr != nil {
		return "", respErr
	}
	if resp != "" {
		return resp, nil
	}

	if p.logger != nil {
		p.logger.Debug("Mock narrative generated", "prompt_bytes", len(prompt))
	}
	return fmt.Sprintf("Mock narrative. %s", firstLine(prompt)), nil
}

// Calls returns the number of Generate calls so far.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.GenerateCalls
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 120 {
		s = s[:120]
	}
	return s
}
