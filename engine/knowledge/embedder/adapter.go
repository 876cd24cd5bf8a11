package embedder

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"

	"github.com/compozy/transcripts/pkg/logger"
)

// Adapter wraps a langchaingo embedder and serves repeated texts from the cache.
type Adapter struct {
	id        string
	dimension int
	impl      embeddings.Embedder
	cache     *Cache
}

// NewAdapter constructs a cache-aware adapter. A nil cache disables caching.
func NewAdapter(id string, dimension int, impl embeddings.Embedder, cache *Cache) (*Adapter, error) {
	if impl == nil {
		return nil, fmt.Errorf("embedder %q: implementation is required", id)
	}
	return &Adapter{id: id, dimension: dimension, impl: impl, cache: cache}, nil
}

// Dimension returns the configured vector dimension (0 when unchecked).
func (a *Adapter) Dimension() int {
	return a.dimension
}

// Embed returns the embedding of a single text.
func (a *Adapter) Embed(ctx context.Context, text string) ([]float32, error) {
	if vector, ok := a.cache.Get(text); ok {
		return vector, nil
	}
	vector, err := a.impl.EmbedQuery(ctx, text)
	if err != nil {
		return nil, a.withContext(err)
	}
	if err := a.checkDimension(vector); err != nil {
		return nil, err
	}
	a.cache.Set(text, vector)
	return cloneVector(vector), nil
}

// EmbedBatch embeds texts in order. Only distinct cache misses reach the
// upstream, in one call.
func (a *Adapter) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	results, missing := a.cache.GetMany(texts)
	if len(missing) == 0 {
		return results, nil
	}
	missingIdxMap := make(map[string][]int, len(missing))
	uniqueMissing := make([]string, 0, len(missing))
	for _, idx := range missing {
		text := texts[idx]
		if _, seen := missingIdxMap[text]; !seen {
			uniqueMissing = append(uniqueMissing, text)
		}
		missingIdxMap[text] = append(missingIdxMap[text], idx)
	}
	logger.FromContext(ctx).Debug(
		"Embedding cache misses",
		"embedder", a.id,
		"requested", len(texts),
		"upstream", len(uniqueMissing),
	)
	embedded, err := a.impl.EmbedDocuments(ctx, uniqueMissing)
	if err != nil {
		return nil, a.withContext(err)
	}
	if len(embedded) != len(uniqueMissing) {
		return nil, a.withContext(
			fmt.Errorf("%w: received %d embeddings for %d texts", ErrCountMismatch, len(embedded), len(uniqueMissing)),
		)
	}
	for i := range embedded {
		if err := a.checkDimension(embedded[i]); err != nil {
			return nil, err
		}
		for _, idx := range missingIdxMap[uniqueMissing[i]] {
			results[idx] = cloneVector(embedded[i])
		}
	}
	a.cache.SetMany(uniqueMissing, embedded)
	return results, nil
}

func (a *Adapter) checkDimension(vector []float32) error {
	if a.dimension > 0 && len(vector) != a.dimension {
		return a.withContext(fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), a.dimension))
	}
	return nil
}

func (a *Adapter) withContext(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("embedder %q: %w", a.id, err)
}
