package llm

import (
	"context"
	"fmt"
	"strings"
)

const (
	ProviderOpenRouter = "openrouter"
	ProviderAnthropic  = "anthropic"
)

// Completer issues a single JSON-only completion for a system/user prompt pair.
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// NewCompleter builds the backend named by cfg.Provider. An empty provider
// selects OpenRouter.
func NewCompleter(cfg Config, opts ...Option) (Completer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderOpenRouter:
		return NewClient(cfg, opts...), nil
	case ProviderAnthropic:
		return NewAnthropicClient(cfg), nil
	default:
		return nil, fmt.Errorf("llm: unsupported provider %q", cfg.Provider)
	}
}
