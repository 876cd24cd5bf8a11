package embedder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache(t *testing.T) {
	t.Run("Should return a copy of stored vectors", func(t *testing.T) {
		cache := NewCache(4, time.Minute)
		cache.Set("alpha", []float32{1, 2})
		got, ok := cache.Get("alpha")
		require.True(t, ok)
		got[0] = 99
		again, ok := cache.Get("alpha")
		require.True(t, ok)
		assert.Equal(t, []float32{1, 2}, again)
	})

	t.Run("Should evict the least recently used entry at capacity", func(t *testing.T) {
		cache := NewCache(2, time.Minute)
		cache.Set("a", []float32{1})
		cache.Set("b", []float32{2})
		_, ok := cache.Get("a")
		require.True(t, ok)
		cache.Set("c", []float32{3})
		_, ok = cache.Get("b")
		assert.False(t, ok)
		_, ok = cache.Get("a")
		assert.True(t, ok)
		assert.Equal(t, 2, cache.Len())
	})

	t.Run("Should treat expired entries as misses", func(t *testing.T) {
		cache := NewCache(4, 20*time.Millisecond)
		cache.Set("a", []float32{1})
		time.Sleep(60 * time.Millisecond)
		_, ok := cache.Get("a")
		assert.False(t, ok)
	})

	t.Run("Should keep positional correspondence in GetMany", func(t *testing.T) {
		cache := NewCache(8, time.Minute)
		cache.SetMany([]string{"a", "c"}, [][]float32{{1}, {3}})
		hits, missing := cache.GetMany([]string{"a", "b", "c", "d"})
		require.Len(t, hits, 4)
		assert.Equal(t, []float32{1}, hits[0])
		assert.Nil(t, hits[1])
		assert.Equal(t, []float32{3}, hits[2])
		assert.Nil(t, hits[3])
		assert.Equal(t, []int{1, 3}, missing)
	})

	t.Run("Should ignore unpaired vectors in SetMany", func(t *testing.T) {
		cache := NewCache(8, time.Minute)
		cache.SetMany([]string{"a", "b"}, [][]float32{{1}})
		_, ok := cache.Get("b")
		assert.False(t, ok)
		assert.Equal(t, 1, cache.Len())
	})

	t.Run("Should count hits and misses", func(t *testing.T) {
		cache := NewCache(8, time.Minute)
		cache.Set("a", []float32{1})
		cache.Get("a")
		cache.Get("z")
		stats := cache.Stats()
		assert.Equal(t, uint64(1), stats.Hits)
		assert.Equal(t, uint64(1), stats.Misses)
	})

	t.Run("Should behave as an always-miss cache when nil", func(t *testing.T) {
		var cache *Cache
		cache.Set("a", []float32{1})
		_, ok := cache.Get("a")
		assert.False(t, ok)
		_, missing := cache.GetMany([]string{"a", "b"})
		assert.Equal(t, []int{0, 1}, missing)
	})
}
