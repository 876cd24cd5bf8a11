package embedder

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultCacheSize = 1000
	DefaultCacheTTL  = time.Hour
)

// Cache is a bounded, expiring map from source text to embedding vector.
// Keys are xxhash64 digests of the text. No operation returns an error; a
// miss is always safe for callers.
type Cache struct {
	mu     sync.Mutex
	lru    *expirable.LRU[uint64, []float32]
	hits   atomic.Uint64
	misses atomic.Uint64
}

// CacheStats reports lookup counters since construction.
type CacheStats struct {
	Hits   uint64
	Misses uint64
	Size   int
}

// NewCache builds a cache; non-positive arguments fall back to defaults.
func NewCache(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{lru: expirable.NewLRU[uint64, []float32](size, nil, ttl)}
}

func cacheKey(text string) uint64 {
	return xxhash.Sum64String(text)
}

// Get returns a copy of the cached vector. A hit refreshes recency; an
// expired entry is evicted and reported as a miss.
func (c *Cache) Get(text string) ([]float32, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(cacheKey(text))
}

func (c *Cache) getLocked(key uint64) ([]float32, bool) {
	vector, ok := c.lru.Get(key)
	if !ok || len(vector) == 0 {
		c.lru.Remove(key)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return cloneVector(vector), true
}

// Set stores a copy of vector, evicting the least recently used entry when full.
func (c *Cache) Set(text string, vector []float32) {
	if c == nil || len(vector) == 0 {
		return
	}
	c.mu.Lock()
	c.lru.Add(cacheKey(text), cloneVector(vector))
	c.mu.Unlock()
}

// GetMany looks up texts positionally. hits has len(texts) entries with nil
// at every miss; missing lists the miss indexes in ascending order.
func (c *Cache) GetMany(texts []string) (hits [][]float32, missing []int) {
	hits = make([][]float32, len(texts))
	if c == nil {
		missing = make([]int, len(texts))
		for i := range texts {
			missing[i] = i
		}
		return hits, missing
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, text := range texts {
		if vector, ok := c.getLocked(cacheKey(text)); ok {
			hits[i] = vector
			continue
		}
		missing = append(missing, i)
	}
	return hits, missing
}

// SetMany stores texts[i] -> vectors[i]; pairs beyond the shorter slice are ignored.
func (c *Cache) SetMany(texts []string, vectors [][]float32) {
	if c == nil {
		return
	}
	n := min(len(texts), len(vectors))
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < n; i++ {
		if len(vectors[i]) == 0 {
			continue
		}
		c.lru.Add(cacheKey(texts[i]), cloneVector(vectors[i]))
	}
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Stats returns hit/miss counters and the current size.
func (c *Cache) Stats() CacheStats {
	if c == nil {
		return CacheStats{}
	}
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load(), Size: c.Len()}
}

func cloneVector(src []float32) []float32 {
	if len(src) == 0 {
		return nil
	}
	dst := make([]float32, len(src))
	copy(dst, src)
	return dst
}
