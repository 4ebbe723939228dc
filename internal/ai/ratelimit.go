// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ai

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimitedBackend throttles calls to the wrapped backend.
type RateLimitedBackend struct {
	next    Backend
	limiter *rate.Limiter
}

// NewRateLimitedBackend allows requestsPerSecond calls with the given burst.
// burst <= 0 uses 1.
func NewRateLimitedBackend(next Backend, requestsPerSecond float64, burst int) *RateLimitedBackend {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedBackend{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// Generate waits for a token, then calls the wrapped backend.
func (b *RateLimitedBackend) Generate(ctx context.Context, prompt string) (string, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("waiting for rate limit: %w", err)
	}
	return b.next.Generate(ctx, prompt)
}
