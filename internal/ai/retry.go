// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/pdiddy/refinement-engine/internal/httputil"
)

// backoffBase controls the base duration for exponential backoff. Tests
// override this to avoid real sleeps.
var backoffBase = time.Second

// RetryBackend retries failed calls with exponential backoff: backoffBase,
// 2x, 4x, ...
type RetryBackend struct {
	next       Backend
	maxRetries int
	logger     *slog.Logger
}

// NewRetryBackend wraps next. maxRetries <= 0 uses 3.
func NewRetryBackend(next Backend, maxRetries int, logger *slog.Logger) *RetryBackend {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RetryBackend{next: next, maxRetries: maxRetries, logger: logger}
}

// StatusError is a non-200 reply from a provider API after the transport
// layer has finished its own throttling retries.
type StatusError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API returned %d: %s", e.Provider, e.StatusCode, e.Message)
}

// Transient reports whether err is worth another attempt. A StatusError is
// final: its transport already retried throttling statuses. OpenAI API
// errors are retried only for throttling statuses. Context errors are final;
// anything else (network, malformed reply) is retried.
func Transient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return httputil.Retryable(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return httputil.Retryable(reqErr.HTTPStatusCode)
	}
	return true
}

// Generate calls the wrapped backend until it succeeds, the retries run out,
// the error is not Transient, or ctx is done.
func (r *RetryBackend) Generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * backoffBase
			r.logger.Debug("retrying generation", "attempt", attempt, "backoff", backoff, "error", lastErr)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		text, err := r.next.Generate(ctx, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !Transient(err) {
			return "", err
		}
	}
	return "", fmt.Errorf("after %d retries: %w", r.maxRetries, lastErr)
}
