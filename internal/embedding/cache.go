package embedding

import (
	"context"

	"github.com/dgraph-io/ristretto"
)

// Cached wraps a provider with an in-process vector cache. Embedding is
// pure, so cached vectors can be shared across every thread in the
// process without coordination.
type Cached struct {
	inner Provider
	cache *ristretto.Cache
}

// NewCached wraps inner with a ristretto cache sized for roughly 64 MiB
// of float32 vectors.
func NewCached(inner Provider) (*Cached, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100_000,
		MaxCost:     64 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cached{inner: inner, cache: cache}, nil
}

func (c *Cached) Embed(ctx context.Context, text string) (Vector, error) {
	if v, ok := c.cache.Get(text); ok {
		return v.(Vector), nil
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(text, vec, int64(len(vec)*4))
	return vec, nil
}

func (c *Cached) Dims() int { return c.inner.Dims() }
