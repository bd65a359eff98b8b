package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// Cache configuration constants.
const (
	// DefaultQueryCacheSize is the default number of query embeddings to cache.
	// At 1536 dimensions * 4 bytes * 1000 entries that is about 6MB.
	DefaultQueryCacheSize = 1000
)

// modeler is implemented by providers that expose their model name.
type modeler interface {
	Model() string
}

// ModelOf returns p's model name, or "" when p has a single fixed model.
func ModelOf(p Provider) string {
	if m, ok := p.(modeler); ok {
		return m.Model()
	}
	return ""
}

// CachedQueryEmbedder wraps a provider's EmbedOne with an LRU cache.
// Concurrent requests for the same text share one provider call.
type CachedQueryEmbedder struct {
	inner Provider
	cache *lru.Cache[string, []float32]
	group singleflight.Group
}

// NewCachedQueryEmbedder creates a cached embedder wrapping p.
func NewCachedQueryEmbedder(p Provider, cacheSize int) *CachedQueryEmbedder {
	if cacheSize <= 0 {
		cacheSize = DefaultQueryCacheSize
	}
	cache, _ := lru.New[string, []float32](cacheSize)
	return &CachedQueryEmbedder{
		inner: p,
		cache: cache,
	}
}

// Provider returns the wrapped provider.
func (c *CachedQueryEmbedder) Provider() Provider {
	return c.inner
}

// cacheKey hashes provider, model and text.
func (c *CachedQueryEmbedder) cacheKey(text string) string {
	combined := string(c.inner.ID()) + "\x00" + ModelOf(c.inner) + "\x00" + text
	hash := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(hash[:])
}

// Embed returns the cached embedding for text, computing it on a miss.
// Errors are never cached.
func (c *CachedQueryEmbedder) Embed(ctx context.Context, apiKey, text string) ([]float32, error) {
	key := c.cacheKey(text)

	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if vec, ok := c.cache.Get(key); ok {
			return vec, nil
		}
		vec, err := c.inner.EmbedOne(ctx, apiKey, text)
		if err != nil {
			return nil, err
		}
		c.cache.Add(key, vec)
		return vec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]float32), nil
}

// Len returns the number of cached entries.
func (c *CachedQueryEmbedder) Len() int {
	return c.cache.Len()
}

// Purge drops every cached entry.
func (c *CachedQueryEmbedder) Purge() {
	c.cache.Purge()
}
