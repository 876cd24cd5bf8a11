package embedder

import (
	"errors"
	"fmt"
	"strings"
)

// ProviderName identifies a supported upstream. The set is closed.
type ProviderName string

const (
	ProviderOpenAI ProviderName = "openai"
	ProviderOllama ProviderName = "ollama"
)

var (
	// ErrUnsupportedProvider is returned for any provider outside the closed set.
	ErrUnsupportedProvider = errors.New("unsupported provider")
	// ErrCountMismatch means the upstream returned a different number of vectors than requested.
	ErrCountMismatch = errors.New("embedding count mismatch")
	// ErrDimensionMismatch means a vector does not have the configured dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

var (
	errMissingModel     = errors.New("embedding model is required")
	errMissingChatModel = errors.New("chat model is required")
	errInvalidBatchSize = errors.New("batch size must be greater than zero")
)

// Config describes how to reach the embedding and completion upstream.
type Config struct {
	Provider       ProviderName
	APIKey         string
	BaseURL        string
	ChatModel      string
	EmbeddingModel string
	Dimension      int
	BatchSize      int
	StripNewLines  bool
}

func (c *Config) validate() error {
	switch c.Provider {
	case ProviderOpenAI, ProviderOllama:
	default:
		return fmt.Errorf("embedder %q: %w", c.Provider, ErrUnsupportedProvider)
	}
	if strings.TrimSpace(c.EmbeddingModel) == "" {
		return fmt.Errorf("embedder %q: %w", c.Provider, errMissingModel)
	}
	if strings.TrimSpace(c.ChatModel) == "" {
		return fmt.Errorf("embedder %q: %w", c.Provider, errMissingChatModel)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("embedder %q: %w", c.Provider, errInvalidBatchSize)
	}
	return nil
}
