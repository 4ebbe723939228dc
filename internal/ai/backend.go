// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ai wraps text-generation services behind a single Backend
// interface. Provider implementations (Claude, OpenAI) are composed with
// decorators for retries, rate limiting, and response caching.
package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pdiddy/refinement-engine/pkg/types"
)

// Backend sends a single prompt to a text-generation service and returns
// the raw text of the reply. Implementations must be safe to call
// repeatedly; callers treat every call as slow and fallible.
type Backend interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// BackendFunc adapts a function to the Backend interface.
type BackendFunc func(ctx context.Context, prompt string) (string, error)

// Generate calls f.
func (f BackendFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// New builds the configured provider and wraps it with retry, throttling,
// and caching according to cfg. The cache sits outermost so cached prompts
// never consume rate budget.
func New(cfg types.AIConfig, logger *slog.Logger) (Backend, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var (
		b   Backend
		err error
	)
	switch types.AIProvider(strings.ToLower(string(cfg.Provider))) {
	case types.ProviderClaude, "anthropic", "":
		b, err = NewClaudeBackend(cfg)
	case types.ProviderOpenAI:
		b, err = NewOpenAIBackend(cfg)
	default:
		return nil, fmt.Errorf("unknown AI provider %q (supported: claude, openai)", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.RequestsPerSecond > 0 {
		b = NewRateLimitedBackend(b, cfg.RequestsPerSecond, 1)
	}
	b = NewRetryBackend(b, cfg.MaxRetries, logger)
	if cfg.CacheTTL > 0 {
		b = NewCachedBackend(b, cfg.CacheTTL)
	}
	return b, nil
}
