// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/refinement-engine/internal/httputil"
	"github.com/pdiddy/refinement-engine/pkg/types"
)

func TestMain(m *testing.M) {
	// Override backoff to avoid real sleeps in retry tests.
	backoffBase = time.Millisecond
	httputil.RetryBaseDelay = time.Millisecond
	os.Exit(m.Run())
}

// countingBackend fails the first failures calls, then echoes the prompt.
type countingBackend struct {
	failures int
	calls    int
}

func (c *countingBackend) Generate(_ context.Context, prompt string) (string, error) {
	c.calls++
	if c.calls <= c.failures {
		return "", fmt.Errorf("transient error (call %d)", c.calls)
	}
	return "reply:" + prompt, nil
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `  {"a":1}  `, `{"a":1}`},
		{"json fence", "Here you go:\n```json\n{\"a\":1}\n```\nDone.", `{"a":1}`},
		{"bare fence", "```\n{\"a\":2}\n```", `{"a":2}`},
		{"unterminated fence", "```json\n{\"a\":3}", `{"a":3}`},
		{"empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.in))
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Merges []string `json:"merges"`
	}
	require.NoError(t, DecodeJSON("```json\n{\"merges\":[\"x\"]}\n```", &v))
	assert.Equal(t, []string{"x"}, v.Merges)

	assert.Error(t, DecodeJSON("not json at all", &v))
	assert.Error(t, DecodeJSON("", &v))
}

func TestClaudeBackend_Generate(t *testing.T) {
	var gotReq claudeRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"content":[{"type":"thinking","text":""},{"type":"text","text":"{\"claims\":[]}"}]}`)
	}))
	defer ts.Close()

	b, err := NewClaudeBackend(types.AIConfig{APIKey: "test-key", Model: "test-model", BaseURL: ts.URL})
	require.NoError(t, err)
	assert.Equal(t, ts.URL+"/v1/messages", b.URL)

	text, err := b.Generate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, `{"claims":[]}`, text)
	assert.Equal(t, "test-model", gotReq.Model)
	assert.Equal(t, 4096, gotReq.MaxTokens)
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, "hello", gotReq.Messages[0].Content)
}

func TestClaudeBackend_APIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
	}))
	defer ts.Close()

	b := &ClaudeBackend{APIKey: "bad", Model: "m", URL: ts.URL, Client: ts.Client()}
	_, err := b.Generate(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authentication_error")
}

func TestClaudeBackend_NoTextBlock(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"content":[]}`)
	}))
	defer ts.Close()

	b := &ClaudeBackend{APIKey: "k", Model: "m", URL: ts.URL, Client: ts.Client()}
	_, err := b.Generate(context.Background(), "hello")
	assert.Error(t, err)
}

func TestNewClaudeBackend_RequiresKey(t *testing.T) {
	_, err := NewClaudeBackend(types.AIConfig{})
	assert.Error(t, err)
}

func TestOpenAIBackend_Generate(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req["model"])

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"merges\":[]}"},"finish_reason":"stop"}],"usage":{"total_tokens":12}}`)
	}))
	defer ts.Close()

	b, err := NewOpenAIBackend(types.AIConfig{APIKey: "sk-test", BaseURL: ts.URL + "/v1"})
	require.NoError(t, err)

	text, err := b.Generate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, `{"merges":[]}`, text)
}

func TestOpenAIBackend_NoChoices(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"x","object":"chat.completion","choices":[]}`)
	}))
	defer ts.Close()

	b, err := NewOpenAIBackend(types.AIConfig{APIKey: "sk-test", Model: "gpt-4o", BaseURL: ts.URL + "/v1"})
	require.NoError(t, err)

	_, err = b.Generate(context.Background(), "hello")
	assert.Error(t, err)
}

func TestRetryBackend(t *testing.T) {
	tests := []struct {
		name       string
		failures   int
		maxRetries int
		wantErr    bool
		wantCalls  int
	}{
		{"immediate success", 0, 3, false, 1},
		{"recovers after two failures", 2, 3, false, 3},
		{"exhausts retries", 5, 2, true, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := &countingBackend{failures: tt.failures}
			b := NewRetryBackend(inner, tt.maxRetries, nil)

			text, err := b.Generate(context.Background(), "p")
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "after 2 retries")
			} else {
				require.NoError(t, err)
				assert.Equal(t, "reply:p", text)
			}
			assert.Equal(t, tt.wantCalls, inner.calls)
		})
	}
}

func TestTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"plain error", errors.New("connection reset"), true},
		{"wrapped claude status", fmt.Errorf("calling: %w", &StatusError{Provider: "Claude", StatusCode: 500}), false},
		{"claude throttled after transport retries", &StatusError{Provider: "Claude", StatusCode: 429}, false},
		{"openai unauthorized", &openai.APIError{HTTPStatusCode: 401}, false},
		{"openai throttled", fmt.Errorf("OpenAI API error: %w", &openai.APIError{HTTPStatusCode: 429}), true},
		{"openai request 503", &openai.RequestError{HTTPStatusCode: 503}, true},
		{"openai request 400", &openai.RequestError{HTTPStatusCode: 400}, false},
		{"cancelled", context.Canceled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Transient(tt.err))
		})
	}
}

func TestRetryBackend_ClaudeStatusNotRetried(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCalls int32
	}{
		{"unauthorized is sent once", http.StatusUnauthorized, 1},
		{"bad request is sent once", http.StatusBadRequest, 1},
		{"throttling is retried by the transport only", http.StatusTooManyRequests, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				hits.Add(1)
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"type":"error","error":{"type":"some_error","message":"no"}}`)
			}))
			defer ts.Close()

			claude := &ClaudeBackend{APIKey: "k", Model: "m", URL: ts.URL, Client: ts.Client()}
			b := NewRetryBackend(claude, 3, nil)

			_, err := b.Generate(context.Background(), "hello")
			require.Error(t, err)
			var statusErr *StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, tt.status, statusErr.StatusCode)
			assert.Equal(t, tt.wantCalls, hits.Load())
		})
	}
}

func TestRetryBackend_ContextCancelled(t *testing.T) {
	old := backoffBase
	backoffBase = time.Second
	defer func() { backoffBase = old }()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	b := NewRetryBackend(&countingBackend{failures: 10}, 3, nil)
	_, err := b.Generate(ctx, "p")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCachedBackend(t *testing.T) {
	inner := &countingBackend{}
	b := NewCachedBackend(inner, time.Minute)

	for range 3 {
		text, err := b.Generate(context.Background(), "same")
		require.NoError(t, err)
		assert.Equal(t, "reply:same", text)
	}
	assert.Equal(t, 1, inner.calls)

	_, err := b.Generate(context.Background(), "other")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedBackend_Expires(t *testing.T) {
	inner := &countingBackend{}
	b := NewCachedBackend(inner, 10*time.Millisecond)

	_, err := b.Generate(context.Background(), "same")
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)
	_, err = b.Generate(context.Background(), "same")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedBackend_DoesNotCacheErrors(t *testing.T) {
	inner := &countingBackend{failures: 1}
	b := NewCachedBackend(inner, time.Minute)

	_, err := b.Generate(context.Background(), "p")
	require.Error(t, err)

	text, err := b.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "reply:p", text)
	assert.Equal(t, 2, inner.calls)
}

func TestRateLimitedBackend(t *testing.T) {
	inner := &countingBackend{}
	b := NewRateLimitedBackend(inner, 1000, 2)

	for range 4 {
		_, err := b.Generate(context.Background(), "p")
		require.NoError(t, err)
	}
	assert.Equal(t, 4, inner.calls)
}

func TestRateLimitedBackend_ContextDone(t *testing.T) {
	b := NewRateLimitedBackend(&countingBackend{}, 0.001, 1)
	_, err := b.Generate(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = b.Generate(ctx, "second")
	assert.Error(t, err)
}

func TestBackendFunc(t *testing.T) {
	f := BackendFunc(func(_ context.Context, p string) (string, error) {
		if p == "" {
			return "", errors.New("empty")
		}
		return p + "!", nil
	})
	text, err := f.Generate(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi!", text)
}

func TestNew(t *testing.T) {
	_, err := New(types.AIConfig{Provider: "mystery", APIKey: "k"}, nil)
	assert.Error(t, err)

	_, err = New(types.AIConfig{Provider: types.ProviderClaude}, nil)
	assert.Error(t, err, "missing key must fail")

	b, err := New(types.AIConfig{Provider: types.ProviderOpenAI, APIKey: "k", CacheTTL: time.Minute, RequestsPerSecond: 5}, nil)
	require.NoError(t, err)
	_, isCached := b.(*CachedBackend)
	assert.True(t, isCached)

	b, err = New(types.AIConfig{Provider: types.ProviderClaude, APIKey: "k"}, nil)
	require.NoError(t, err)
	_, isRetry := b.(*RetryBackend)
	assert.True(t, isRetry)
}
