package llmadapter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type stubModel struct {
	chunks   []string
	content  string
	err      error
	messages []llms.MessageContent
	opts     llms.CallOptions
	block    bool
}

func (s *stubModel) GenerateContent(
	ctx context.Context,
	messages []llms.MessageContent,
	options ...llms.CallOption,
) (*llms.ContentResponse, error) {
	s.messages = messages
	for _, opt := range options {
		opt(&s.opts)
	}
	for _, chunk := range s.chunks {
		if s.opts.StreamingFunc == nil {
			break
		}
		if err := s.opts.StreamingFunc(ctx, []byte(chunk)); err != nil {
			return nil, err
		}
	}
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: s.content}}}, nil
}

func (s *stubModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, s, prompt, options...)
}

func drain(ch <-chan Delta) []Delta {
	var out []Delta
	for d := range ch {
		out = append(out, d)
	}
	return out
}

func TestLangChainAdapter_ConvertMessages(t *testing.T) {
	adapter := &LangChainAdapter{}

	t.Run("Should convert messages with system prompt and history", func(t *testing.T) {
		req := CompletionRequest{
			SystemPrompt: "You answer from transcripts",
			History: []Turn{
				{Role: "user", Text: "Hello"},
				{Role: "assistant", Text: "Hi there!"},
			},
			UserMessage: "What was said about part one?",
		}
		messages := adapter.convertMessages(&req)
		require.Len(t, messages, 4)
		assert.Equal(t, llms.ChatMessageTypeSystem, messages[0].Role)
		assert.Equal(t, llms.ChatMessageTypeHuman, messages[1].Role)
		assert.Equal(t, llms.ChatMessageTypeAI, messages[2].Role)
		assert.Equal(t, llms.ChatMessageTypeHuman, messages[3].Role)
		assert.Equal(t, "What was said about part one?", messages[3].Parts[0].(llms.TextContent).Text)
	})

	t.Run("Should skip blank turns and missing system prompt", func(t *testing.T) {
		req := CompletionRequest{History: []Turn{{Role: "user", Text: "  "}}, UserMessage: "Test"}
		messages := adapter.convertMessages(&req)
		require.Len(t, messages, 1)
		assert.Equal(t, llms.ChatMessageTypeHuman, messages[0].Role)
	})
}

func TestLangChainAdapter_Complete(t *testing.T) {
	t.Run("Should return the first choice and forward call options", func(t *testing.T) {
		model := &stubModel{content: "answer"}
		adapter, err := NewLangChainAdapter("stub", model)
		require.NoError(t, err)
		out, err := adapter.Complete(context.Background(), &CompletionRequest{
			UserMessage: "q",
			Temperature: 0.3,
			MaxTokens:   64,
		})
		require.NoError(t, err)
		assert.Equal(t, "answer", out)
		assert.Equal(t, 0.3, model.opts.Temperature)
		assert.Equal(t, 64, model.opts.MaxTokens)
	})

	t.Run("Should wrap upstream errors", func(t *testing.T) {
		upstream := errors.New("boom")
		adapter, err := NewLangChainAdapter("stub", &stubModel{err: upstream})
		require.NoError(t, err)
		_, err = adapter.Complete(context.Background(), &CompletionRequest{UserMessage: "q"})
		require.Error(t, err)
		assert.ErrorIs(t, err, upstream)
	})

	t.Run("Should reject a nil model", func(t *testing.T) {
		_, err := NewLangChainAdapter("stub", nil)
		assert.Error(t, err)
	})
}

func TestLangChainAdapter_CompleteStream(t *testing.T) {
	t.Run("Should emit every chunk then close", func(t *testing.T) {
		adapter, err := NewLangChainAdapter("stub", &stubModel{chunks: []string{"Hel", "", "lo"}})
		require.NoError(t, err)
		ch, err := adapter.CompleteStream(context.Background(), &CompletionRequest{UserMessage: "q"})
		require.NoError(t, err)
		deltas := drain(ch)
		require.Len(t, deltas, 2)
		assert.Equal(t, "Hel", deltas[0].Text)
		assert.Equal(t, "lo", deltas[1].Text)
	})

	t.Run("Should end with a single error delta on upstream failure", func(t *testing.T) {
		upstream := errors.New("connection reset")
		adapter, err := NewLangChainAdapter("stub", &stubModel{chunks: []string{"partial"}, err: upstream})
		require.NoError(t, err)
		ch, err := adapter.CompleteStream(context.Background(), &CompletionRequest{UserMessage: "q"})
		require.NoError(t, err)
		deltas := drain(ch)
		require.Len(t, deltas, 2)
		assert.Equal(t, "partial", deltas[0].Text)
		assert.ErrorIs(t, deltas[1].Err, upstream)
	})

	t.Run("Should close without an error delta when cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		adapter, err := NewLangChainAdapter("stub", &stubModel{chunks: []string{"a"}, block: true})
		require.NoError(t, err)
		ch, err := adapter.CompleteStream(ctx, &CompletionRequest{UserMessage: "q"})
		require.NoError(t, err)
		first := <-ch
		assert.Equal(t, "a", first.Text)
		cancel()
		for d := range ch {
			assert.NoError(t, d.Err)
		}
	})
}
