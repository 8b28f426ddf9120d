// Package reasoning talks to the language model that writes code, judges test
// output and picks the next action, and parses what comes back.
package reasoning

import (
	"context"
	"fmt"

	"skillforge/internal/config"
)

// Client is a blocking request/response call to a language model.
type Client interface {
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// HealthChecker is implemented by clients that can verify their backend.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// NewClient builds the client selected by cfg.Provider.
func NewClient(ctx context.Context, cfg config.ReasoningConfig) (Client, error) {
	switch cfg.Provider {
	case "ollama", "":
		return NewOllamaClient(cfg)
	case "gemini":
		return NewGeminiClient(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown reasoning provider %q", cfg.Provider)
	}
}
