package external

import (
	"context"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/blake3"
	"golang.org/x/sync/singleflight"
)

// Memo caches results by key and collapses concurrent calls for the same
// key into one.
type Memo[V any] struct {
	cache *lru.Cache[string, V]
	group singleflight.Group
}

// NewMemo holds up to size entries (default 4096).
func NewMemo[V any](size int) *Memo[V] {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[string, V](size)
	return &Memo[V]{cache: c}
}

// Do returns the cached value for key or computes it with fn. Errors are
// not cached.
func (m *Memo[V]) Do(ctx context.Context, key string, fn func(ctx context.Context) (V, error)) (V, error) {
	if v, ok := m.cache.Get(key); ok {
		return v, nil
	}
	res, err, _ := m.group.Do(key, func() (any, error) {
		if v, ok := m.cache.Get(key); ok {
			return v, nil
		}
		v, err := fn(ctx)
		if err != nil {
			return v, err
		}
		m.cache.Add(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

// Len is the number of cached entries.
func (m *Memo[V]) Len() int { return m.cache.Len() }

// CachedEmbedder memoises vectors per (model, text) and only sends misses
// to the wrapped embedder, in one batch.
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

// NewCachedEmbedder wraps inner with an LRU of size entries.
func NewCachedEmbedder(inner Embedder, size int) *CachedEmbedder {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[string, []float32](size)
	return &CachedEmbedder{inner: inner, cache: c}
}

func (c *CachedEmbedder) ModelName() string { return c.inner.ModelName() }
func (c *CachedEmbedder) Dimensions() int   { return c.inner.Dimensions() }

func (c *CachedEmbedder) key(text string) string {
	sum := blake3.Sum256([]byte(c.inner.ModelName() + "\x00" + text))
	return hex.EncodeToString(sum[:16])
}

func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var (
		missIdx  []int
		missText []string
	)
	for i, t := range texts {
		if v, ok := c.cache.Get(c.key(t)); ok {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missText = append(missText, t)
	}
	if len(missText) == 0 {
		return out, nil
	}
	vecs, err := c.inner.Embed(ctx, missText)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missText) {
		return nil, fmt.Errorf("embedder %s returned %d vectors for %d texts", c.inner.ModelName(), len(vecs), len(missText))
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		c.cache.Add(c.key(texts[i]), vecs[j])
	}
	return out, nil
}
