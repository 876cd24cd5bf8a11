package llmadapter

import (
	"context"
	"errors"
)

// Role constants for conversation turns
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrEmptyResponse is returned when the model produced no choices.
var ErrEmptyResponse = errors.New("llm returned no choices")

// Turn represents one message of the caller-supplied conversation
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// CompletionRequest represents a request to the LLM, independent of provider
type CompletionRequest struct {
	SystemPrompt string
	History      []Turn
	UserMessage  string
	Temperature  float64
	MaxTokens    int
}

// Delta is one streamed fragment. A Delta with Err set is terminal.
type Delta struct {
	Text string
	Err  error
}

// Client is the completion capability used by the rewriter, the chat
// orchestrator and ingestion enrichment.
type Client interface {
	Complete(ctx context.Context, req *CompletionRequest) (string, error)
	// CompleteStream emits text deltas and at most one terminal error delta,
	// then closes the channel. Cancelling ctx stops the stream promptly.
	CompleteStream(ctx context.Context, req *CompletionRequest) (<-chan Delta, error)
}
