package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultEmbeddingCacheSize is used when a non-positive size is requested.
// 1000 vectors of 768 float32s take about 3MB.
const DefaultEmbeddingCacheSize = 1000

// CachedEmbedder memoizes single-text embeddings for the search path.
// Queries that differ only in surrounding or repeated whitespace share an
// entry. EmbedBatch is the indexing path and is never cached.
type CachedEmbedder struct {
	Embedder

	cache  *lru.Cache[string, []float32]
	hits   atomic.Int64
	misses atomic.Int64
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Size   int   `json:"size"`
}

// NewCachedEmbedder wraps inner with an LRU of cacheSize entries.
func NewCachedEmbedder(inner Embedder, cacheSize int) *CachedEmbedder {
	if cacheSize <= 0 {
		cacheSize = DefaultEmbeddingCacheSize
	}
	cache, _ := lru.New[string, []float32](cacheSize)
	return &CachedEmbedder{Embedder: inner, cache: cache}
}

// key folds whitespace and scopes the entry to the model, so a backend
// switch never serves stale vectors.
func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(c.ModelName() + "\x00" + strings.Join(strings.Fields(text), " ")))
	return hex.EncodeToString(sum[:])
}

// Embed returns the cached vector for text, embedding it on a miss. The
// returned slice is a copy; callers may modify it. Errors are not cached.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	k := c.key(text)
	if vec, ok := c.cache.Get(k); ok {
		c.hits.Add(1)
		return slices.Clone(vec), nil
	}
	c.misses.Add(1)

	vec, err := c.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(k, slices.Clone(vec))
	return vec, nil
}

// Stats returns hit and miss counts since creation.
func (c *CachedEmbedder) Stats() CacheStats {
	return CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Size:   c.cache.Len(),
	}
}

// Len returns the number of cached embeddings.
func (c *CachedEmbedder) Len() int {
	return c.cache.Len()
}
