package embedder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	llmadapter "github.com/compozy/transcripts/engine/llm/adapter"
)

type countingEmbedder struct {
	mu       sync.Mutex
	calls    int
	batches  [][]string
	err      error
	truncate bool
}

func vectorFor(text string) []float32 {
	return []float32{float32(len(text)), 1}
}

func (c *countingEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.batches = append(c.batches, append([]string(nil), texts...))
	if c.err != nil {
		return nil, c.err
	}
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		out = append(out, vectorFor(text))
	}
	if c.truncate && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (c *countingEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return vectorFor(text), nil
}

type echoModel struct{}

func (echoModel) GenerateContent(
	_ context.Context,
	messages []llms.MessageContent,
	_ ...llms.CallOption,
) (*llms.ContentResponse, error) {
	last := messages[len(messages)-1].Parts[0].(llms.TextContent).Text
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "echo: " + last}}}, nil
}

func (m echoModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func newTestProvider(t *testing.T, impl *countingEmbedder, dimension int) *CachedProvider {
	t.Helper()
	provider, err := Wrap(ProviderOpenAI, dimension, impl, echoModel{}, NewCache(16, time.Minute))
	require.NoError(t, err)
	return provider
}

func TestCachedProvider_EmbedBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("Should call upstream once for repeated batches", func(t *testing.T) {
		impl := &countingEmbedder{}
		provider := newTestProvider(t, impl, 0)
		texts := []string{"one", "three", "seventeen"}
		first, err := provider.EmbedBatch(ctx, texts)
		require.NoError(t, err)
		second, err := provider.EmbedBatch(ctx, texts)
		require.NoError(t, err)
		assert.Equal(t, 1, impl.calls)
		assert.Equal(t, first, second)
		assert.Equal(t, vectorFor("seventeen"), second[2])
	})

	t.Run("Should send only distinct misses upstream in order", func(t *testing.T) {
		impl := &countingEmbedder{}
		provider := newTestProvider(t, impl, 0)
		_, err := provider.Embed(ctx, "cached")
		require.NoError(t, err)
		out, err := provider.EmbedBatch(ctx, []string{"b", "cached", "a", "b"})
		require.NoError(t, err)
		require.Len(t, impl.batches, 1)
		assert.Equal(t, []string{"b", "a"}, impl.batches[0])
		assert.Equal(t, vectorFor("b"), out[0])
		assert.Equal(t, vectorFor("cached"), out[1])
		assert.Equal(t, vectorFor("b"), out[3])
	})

	t.Run("Should reject a vector count mismatch", func(t *testing.T) {
		provider := newTestProvider(t, &countingEmbedder{truncate: true}, 0)
		_, err := provider.EmbedBatch(ctx, []string{"x", "y"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrCountMismatch)
	})

	t.Run("Should reject vectors of the wrong dimension", func(t *testing.T) {
		provider := newTestProvider(t, &countingEmbedder{}, 3)
		_, err := provider.EmbedBatch(ctx, []string{"x"})
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("Should propagate upstream failures without caching", func(t *testing.T) {
		upstream := errors.New("503 service unavailable")
		impl := &countingEmbedder{err: upstream}
		provider := newTestProvider(t, impl, 0)
		_, err := provider.EmbedBatch(ctx, []string{"x"})
		require.ErrorIs(t, err, upstream)
		assert.Equal(t, 0, provider.Adapter.cache.Len())
	})

	t.Run("Should return an empty result for no texts", func(t *testing.T) {
		impl := &countingEmbedder{}
		out, err := newTestProvider(t, impl, 0).EmbedBatch(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, out)
		assert.Equal(t, 0, impl.calls)
	})
}

func TestCachedProvider_Complete(t *testing.T) {
	t.Run("Should delegate completions to the model", func(t *testing.T) {
		provider := newTestProvider(t, &countingEmbedder{}, 0)
		out, err := provider.Complete(context.Background(), &llmadapter.CompletionRequest{UserMessage: "hi"})
		require.NoError(t, err)
		assert.Equal(t, "echo: hi", out)
	})
}

func TestNewProvider(t *testing.T) {
	base := Config{ChatModel: "chat", EmbeddingModel: "embed", BatchSize: 8}

	t.Run("Should reject providers outside the closed set", func(t *testing.T) {
		cfg := base
		cfg.Provider = "anthropic"
		_, err := NewProvider(context.Background(), &cfg, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnsupportedProvider)
	})

	t.Run("Should build an openai provider without network access", func(t *testing.T) {
		cfg := base
		cfg.Provider = ProviderOpenAI
		cfg.APIKey = "sk-test"
		provider, err := NewProvider(context.Background(), &cfg, NewCache(4, time.Minute))
		require.NoError(t, err)
		assert.Equal(t, ProviderOpenAI, provider.Name())
	})

	t.Run("Should build an ollama provider", func(t *testing.T) {
		cfg := base
		cfg.Provider = ProviderOllama
		cfg.BaseURL = "http://127.0.0.1:11434"
		_, err := NewProvider(context.Background(), &cfg, nil)
		require.NoError(t, err)
	})

	t.Run("Should require a positive batch size", func(t *testing.T) {
		cfg := base
		cfg.Provider = ProviderOllama
		cfg.BatchSize = 0
		_, err := NewProvider(context.Background(), &cfg, nil)
		assert.Error(t, err)
	})
}
