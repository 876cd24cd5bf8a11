package embedder

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	llmadapter "github.com/compozy/transcripts/engine/llm/adapter"
)

// Provider bundles embedding and completion capabilities of one upstream.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Complete(ctx context.Context, req *llmadapter.CompletionRequest) (string, error)
	CompleteStream(ctx context.Context, req *llmadapter.CompletionRequest) (<-chan llmadapter.Delta, error)
}

// CachedProvider is the Provider used by the service: embeddings go through
// the cache, completions never do.
type CachedProvider struct {
	*Adapter
	llmadapter.Client
	name ProviderName
}

var _ Provider = (*CachedProvider)(nil)

// Name returns the upstream provider name.
func (p *CachedProvider) Name() ProviderName {
	return p.name
}

// NewProvider builds a provider from the closed set. Any other name fails
// with ErrUnsupportedProvider before a client is created.
func NewProvider(_ context.Context, cfg *Config, cache *Cache) (*CachedProvider, error) {
	if cfg == nil {
		return nil, errors.New("embedder config is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	var (
		chat      llms.Model
		embedding embeddings.EmbedderClient
		err       error
	)
	switch cfg.Provider {
	case ProviderOpenAI:
		chat, embedding, err = buildOpenAI(cfg)
	case ProviderOllama:
		chat, embedding, err = buildOllama(cfg)
	}
	if err != nil {
		return nil, err
	}
	impl, err := embeddings.NewEmbedder(
		embedding,
		embeddings.WithBatchSize(cfg.BatchSize),
		embeddings.WithStripNewLines(cfg.StripNewLines),
	)
	if err != nil {
		return nil, fmt.Errorf("embedder %q: failed to construct embedder: %w", cfg.Provider, err)
	}
	return Wrap(cfg.Provider, cfg.Dimension, impl, chat, cache)
}

// Wrap constructs a provider around existing langchaingo implementations.
func Wrap(
	name ProviderName,
	dimension int,
	impl embeddings.Embedder,
	model llms.Model,
	cache *Cache,
) (*CachedProvider, error) {
	adapter, err := NewAdapter(string(name), dimension, impl, cache)
	if err != nil {
		return nil, err
	}
	client, err := llmadapter.NewLangChainAdapter(string(name), model)
	if err != nil {
		return nil, err
	}
	return &CachedProvider{Adapter: adapter, Client: client, name: name}, nil
}

func buildOpenAI(cfg *Config) (llms.Model, embeddings.EmbedderClient, error) {
	opts := []openai.Option{
		openai.WithModel(cfg.ChatModel),
		openai.WithEmbeddingModel(cfg.EmbeddingModel),
	}
	if cfg.APIKey != "" {
		opts = append(opts, openai.WithToken(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("embedder %q: failed to initialize openai client: %w", cfg.Provider, err)
	}
	return client, client, nil
}

// buildOllama uses two clients because an ollama client is bound to one model.
func buildOllama(cfg *Config) (llms.Model, embeddings.EmbedderClient, error) {
	base := []ollama.Option{}
	if cfg.BaseURL != "" {
		base = append(base, ollama.WithServerURL(cfg.BaseURL))
	}
	chat, err := ollama.New(append(base, ollama.WithModel(cfg.ChatModel))...)
	if err != nil {
		return nil, nil, fmt.Errorf("embedder %q: failed to initialize ollama chat client: %w", cfg.Provider, err)
	}
	embedding, err := ollama.New(append(base, ollama.WithModel(cfg.EmbeddingModel))...)
	if err != nil {
		return nil, nil, fmt.Errorf("embedder %q: failed to initialize ollama embedding client: %w", cfg.Provider, err)
	}
	return chat, embedding, nil
}
