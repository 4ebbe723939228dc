// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// CachedBackend memoizes successful responses by prompt. Failures are never
// cached.
type CachedBackend struct {
	next  Backend
	cache *gocache.Cache
}

// NewCachedBackend keeps responses for ttl.
func NewCachedBackend(next Backend, ttl time.Duration) *CachedBackend {
	return &CachedBackend{
		next:  next,
		cache: gocache.New(ttl, 2*ttl),
	}
}

// Generate returns a cached response when one exists for prompt.
func (b *CachedBackend) Generate(ctx context.Context, prompt string) (string, error) {
	key := cacheKey(prompt)
	if v, ok := b.cache.Get(key); ok {
		return v.(string), nil
	}

	text, err := b.next.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	b.cache.SetDefault(key, text)
	return text, nil
}

func cacheKey(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return "prompt:v1:" + hex.EncodeToString(sum[:])
}
