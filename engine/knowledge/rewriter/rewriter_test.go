package rewriter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmadapter "github.com/compozy/transcripts/engine/llm/adapter"
)

type stubClient struct {
	reply   string
	err     error
	block   bool
	calls   int
	request *llmadapter.CompletionRequest
}

func (s *stubClient) Complete(ctx context.Context, req *llmadapter.CompletionRequest) (string, error) {
	s.calls++
	s.request = req
	if s.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return s.reply, s.err
}

func (s *stubClient) CompleteStream(context.Context, *llmadapter.CompletionRequest) (<-chan llmadapter.Delta, error) {
	return nil, errors.New("not used")
}

var history = []llmadapter.Turn{
	{Role: llmadapter.RoleUser, Text: "What did the team decide about the Q3 launch?"},
	{Role: llmadapter.RoleAssistant, Text: "They moved it to October."},
}

func TestNeedsRewrite(t *testing.T) {
	t.Run("Should flag short queries", func(t *testing.T) {
		assert.True(t, NeedsRewrite("and pricing?", DefaultMinQueryChars))
	})

	t.Run("Should flag reference words and phrases", func(t *testing.T) {
		assert.True(t, NeedsRewrite("Why did they push the launch date back again?", DefaultMinQueryChars))
		assert.True(t, NeedsRewrite("What about the marketing budget discussion?", DefaultMinQueryChars))
		assert.True(t, NeedsRewrite("Summarize the second point from the review", DefaultMinQueryChars))
	})

	t.Run("Should leave self-contained questions alone", func(t *testing.T) {
		assert.False(t, NeedsRewrite("What was decided about the Q3 launch date?", DefaultMinQueryChars))
		assert.False(t, NeedsRewrite("Who presented quarterly revenue numbers?", DefaultMinQueryChars))
	})
}

func TestRewriter_Rewrite(t *testing.T) {
	ctx := context.Background()

	t.Run("Should return the query unchanged without history", func(t *testing.T) {
		client := &stubClient{reply: "rewritten"}
		assert.Equal(t, "why?", New(client, nil).Rewrite(ctx, "why?", nil))
		assert.Zero(t, client.calls)
	})

	t.Run("Should skip the provider for self-contained questions", func(t *testing.T) {
		client := &stubClient{reply: "rewritten"}
		query := "What was decided about the Q3 launch date?"
		assert.Equal(t, query, New(client, nil).Rewrite(ctx, query, history))
		assert.Zero(t, client.calls)
	})

	t.Run("Should use the trimmed unquoted rewrite", func(t *testing.T) {
		client := &stubClient{reply: "  \"Why was the Q3 launch moved to October?\"\n"}
		out := New(client, nil).Rewrite(ctx, "Why was it moved?", history)
		assert.Equal(t, "Why was the Q3 launch moved to October?", out)
		require.NotNil(t, client.request)
		assert.Equal(t, "Why was it moved?", client.request.UserMessage)
		assert.Len(t, client.request.History, 2)
	})

	t.Run("Should send only the most recent turns", func(t *testing.T) {
		long := make([]llmadapter.Turn, 0, 10)
		for i := 0; i < 10; i++ {
			long = append(long, llmadapter.Turn{Role: llmadapter.RoleUser, Text: strings.Repeat("x", i+1)})
		}
		client := &stubClient{reply: "Standalone question"}
		New(client, &Options{MaxTurns: 3}).Rewrite(ctx, "and that?", long)
		require.Len(t, client.request.History, 3)
		assert.Equal(t, long[7:], client.request.History)
	})

	t.Run("Should fall back on empty or oversized rewrites", func(t *testing.T) {
		query := "and that one?"
		assert.Equal(t, query, New(&stubClient{reply: " \"\" "}, nil).Rewrite(ctx, query, history))
		tooLong := strings.Repeat("word ", 20)
		assert.Equal(t, query, New(&stubClient{reply: tooLong}, nil).Rewrite(ctx, query, history))
	})

	t.Run("Should fall back silently on provider errors", func(t *testing.T) {
		query := "what about them?"
		assert.Equal(t, query, New(&stubClient{err: errors.New("500 upstream")}, nil).Rewrite(ctx, query, history))
	})

	t.Run("Should fall back when the provider exceeds the timeout", func(t *testing.T) {
		client := &stubClient{block: true}
		start := time.Now()
		out := New(client, &Options{Timeout: 20 * time.Millisecond}).Rewrite(ctx, "and then?", history)
		assert.Equal(t, "and then?", out)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("Should be a no-op without a client", func(t *testing.T) {
		assert.Equal(t, "and then?", New(nil, nil).Rewrite(ctx, "and then?", history))
	})
}
