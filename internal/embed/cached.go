package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultEmbeddingCacheSize holds roughly 3MB of 768-dim float32 vectors
// (768 * 4 bytes * 1000 entries) before the LRU starts evicting.
const DefaultEmbeddingCacheSize = 1000

// CacheStats is a point-in-time snapshot of a CachedEmbedder's hit rate,
// reported by the stats command to show how much of a search session's
// embedding traffic is served from memory instead of the remote oracle.
type CacheStats struct {
	Hits    int64
	Misses  int64
	Entries int
	Size    int
}

// HitRate returns hits / (hits+misses), or 0 if nothing has been looked up.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// CachedEmbedder memoizes an inner Embedder's results in an LRU keyed on
// text+model, so a repeated query (a near-duplicate search, a catalog
// re-ingest over unchanged chunks) skips the embedding oracle entirely.
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
	size  int

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachedEmbedder wraps inner with an LRU cache holding up to cacheSize
// unique query embeddings.
func NewCachedEmbedder(inner Embedder, cacheSize int) *CachedEmbedder {
	if cacheSize <= 0 {
		cacheSize = DefaultEmbeddingCacheSize
	}
	cache, _ := lru.New[string, []float32](cacheSize)
	return &CachedEmbedder{inner: inner, cache: cache, size: cacheSize}
}

// NewCachedEmbedderWithDefaults wraps inner using DefaultEmbeddingCacheSize.
func NewCachedEmbedderWithDefaults(inner Embedder) *CachedEmbedder {
	return NewCachedEmbedder(inner, DefaultEmbeddingCacheSize)
}

// cacheKey hashes text+model so arbitrarily long chunk text collapses to a
// fixed-length LRU key.
func (c *CachedEmbedder) cacheKey(text string) string {
	combined := text + "\x00" + c.inner.ModelName()
	hash := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(hash[:])
}

// Embed returns the cached vector for text if present, otherwise computes
// it via inner and caches the result.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)
	if vec, ok := c.cache.Get(key); ok {
		c.hits.Add(1)
		return vec, nil
	}
	c.misses.Add(1)

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, vec)
	return vec, nil
}

// EmbedBatch embeds texts, serving each individually from cache where
// possible and batching only the misses through inner for maximum reuse
// across overlapping batches.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	missIdx := make([]int, 0, len(texts))
	missTexts := make([]string, 0, len(texts))

	for i, text := range texts {
		key := c.cacheKey(text)
		if vec, ok := c.cache.Get(key); ok {
			c.hits.Add(1)
			results[i] = vec
			continue
		}
		c.misses.Add(1)
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	computed, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	for j, idx := range missIdx {
		results[idx] = computed[j]
		c.cache.Add(c.cacheKey(texts[idx]), computed[j])
	}
	return results, nil
}

// CacheStats reports the cache's hit/miss counters and current occupancy.
func (c *CachedEmbedder) CacheStats() CacheStats {
	return CacheStats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: c.cache.Len(),
		Size:    c.size,
	}
}

func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }

func (c *CachedEmbedder) ModelName() string { return c.inner.ModelName() }

func (c *CachedEmbedder) Available(ctx context.Context) bool { return c.inner.Available(ctx) }

func (c *CachedEmbedder) Close() error { return c.inner.Close() }

// Inner exposes the wrapped embedder so callers can reach embedder-specific
// behavior (progress callbacks, thermal pacing) not on the Embedder interface.
func (c *CachedEmbedder) Inner() Embedder { return c.inner }

// SetBatchIndex forwards to inner for thermal timeout progression.
func (c *CachedEmbedder) SetBatchIndex(idx int) { c.inner.SetBatchIndex(idx) }

// SetFinalBatch forwards to inner for the final-batch timeout boost.
func (c *CachedEmbedder) SetFinalBatch(isFinal bool) { c.inner.SetFinalBatch(isFinal) }
