package tokens

import (
	"context"
	"fmt"
	"sync"

	"github.com/compozy/transcripts/pkg/logger"
	"github.com/pkoukk/tiktoken-go"
)

const defaultEncoding = "cl100k_base"

// TiktokenEstimator counts tokens with a BPE encoding. It is used for prompt
// budgets where the character heuristic is too coarse.
type TiktokenEstimator struct {
	encodingName string
	mu           sync.RWMutex
	tke          *tiktoken.Tiktoken
}

// NewTiktokenEstimator loads the named encoding, trying it as a model name when
// it is not an encoding, then falling back to cl100k_base.
func NewTiktokenEstimator(modelOrEncoding string) (*TiktokenEstimator, error) {
	if modelOrEncoding == "" {
		modelOrEncoding = defaultEncoding
	}
	name := modelOrEncoding
	tke, err := tiktoken.GetEncoding(modelOrEncoding)
	if err != nil {
		tke, err = tiktoken.EncodingForModel(modelOrEncoding)
		if err != nil {
			tke, err = tiktoken.GetEncoding(defaultEncoding)
			if err != nil {
				return nil, fmt.Errorf("tokens: load encoding %q: %w", defaultEncoding, err)
			}
		}
		name = defaultEncoding
	}
	return &TiktokenEstimator{encodingName: name, tke: tke}, nil
}

func (t *TiktokenEstimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.tke.Encode(text, nil, nil))
}

// Encoding returns the encoding in use.
func (t *TiktokenEstimator) Encoding() string {
	return t.encodingName
}

// New selects an estimator by name. "tiktoken" degrades to the character
// estimator when the encoding cannot be loaded (for example offline).
func New(ctx context.Context, name, model string) Estimator {
	if name != "tiktoken" {
		return CharEstimator{}
	}
	est, err := NewTiktokenEstimator(model)
	if err != nil {
		logger.FromContext(ctx).Warn("Tiktoken unavailable, using character estimator", "model", model, "error", err)
		return CharEstimator{}
	}
	return est
}
