package llmadapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// LangChainAdapter adapts a langchaingo model to our Client interface
type LangChainAdapter struct {
	model llms.Model
	name  string
}

// NewLangChainAdapter wraps an already constructed langchaingo model.
func NewLangChainAdapter(name string, model llms.Model) (*LangChainAdapter, error) {
	if model == nil {
		return nil, fmt.Errorf("llm %q: model must not be nil", name)
	}
	return &LangChainAdapter{model: model, name: name}, nil
}

// Complete runs a non-streaming completion and returns the first choice.
func (a *LangChainAdapter) Complete(ctx context.Context, req *CompletionRequest) (string, error) {
	if req == nil {
		return "", fmt.Errorf("llm %q: request must not be nil", a.name)
	}
	response, err := a.model.GenerateContent(ctx, a.convertMessages(req), a.buildCallOptions(req)...)
	if err != nil {
		return "", fmt.Errorf("llm %q: generate content: %w", a.name, err)
	}
	if response == nil || len(response.Choices) == 0 {
		return "", fmt.Errorf("llm %q: %w", a.name, ErrEmptyResponse)
	}
	return response.Choices[0].Content, nil
}

// CompleteStream forwards streamed chunks to the returned channel. The
// channel is closed once the upstream call returns.
func (a *LangChainAdapter) CompleteStream(ctx context.Context, req *CompletionRequest) (<-chan Delta, error) {
	if req == nil {
		return nil, fmt.Errorf("llm %q: request must not be nil", a.name)
	}
	messages := a.convertMessages(req)
	options := a.buildCallOptions(req)
	out := make(chan Delta)
	options = append(options, llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
		if len(chunk) == 0 {
			return nil
		}
		select {
		case out <- Delta{Text: string(chunk)}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}))
	go func() {
		defer close(out)
		_, err := a.model.GenerateContent(ctx, messages, options...)
		if err == nil || ctx.Err() != nil {
			return
		}
		select {
		case out <- Delta{Err: fmt.Errorf("llm %q: stream: %w", a.name, err)}:
		case <-ctx.Done():
		}
	}()
	return out, nil
}

// convertMessages converts our request to langchain MessageContent
func (a *LangChainAdapter) convertMessages(req *CompletionRequest) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, len(req.History)+2)
	if strings.TrimSpace(req.SystemPrompt) != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.SystemPrompt))
	}
	for _, turn := range req.History {
		if strings.TrimSpace(turn.Text) == "" {
			continue
		}
		messages = append(messages, llms.TextParts(a.mapMessageRole(turn.Role), turn.Text))
	}
	if req.UserMessage != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.UserMessage))
	}
	return messages
}

// mapMessageRole maps our role to langchain ChatMessageType
func (a *LangChainAdapter) mapMessageRole(role string) llms.ChatMessageType {
	switch strings.ToLower(role) {
	case RoleSystem:
		return llms.ChatMessageTypeSystem
	case RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

func (a *LangChainAdapter) buildCallOptions(req *CompletionRequest) []llms.CallOption {
	var options []llms.CallOption
	if req.Temperature > 0 {
		options = append(options, llms.WithTemperature(req.Temperature))
	}
	if req.MaxTokens > 0 {
		options = append(options, llms.WithMaxTokens(req.MaxTokens))
	}
	return options
}
