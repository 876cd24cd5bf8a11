package vectordb

import (
	"errors"
	"fmt"
)

var errInvalidDimension = errors.New("vector_db dimension must be greater than zero")

// New instantiates a vector store for the configured provider. db is only
// used by the pgvector provider.
func New(cfg *Config, db DB) (Store, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	switch cfg.Provider {
	case ProviderPGVector:
		if db == nil {
			return nil, fmt.Errorf("vector_db %q: database handle is required", cfg.Provider)
		}
		return NewPGStore(db, cfg.Dimension), nil
	case ProviderMemory:
		return NewMemoryStore(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("vector_db %q: %w", cfg.Provider, ErrUnsupportedProvider)
	}
}

func validateConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("vector_db config is required")
	}
	if cfg.Dimension <= 0 {
		return fmt.Errorf("vector_db %q: %w", cfg.Provider, errInvalidDimension)
	}
	return nil
}

func checkDimension(vector []float32, dimension int) error {
	if len(vector) != dimension {
		return fmt.Errorf("%w: got %d want %d", ErrDimensionMismatch, len(vector), dimension)
	}
	return nil
}
