package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compozy/transcripts/engine/knowledge/retriever"
	"github.com/compozy/transcripts/engine/knowledge/vectordb"
	llmadapter "github.com/compozy/transcripts/engine/llm/adapter"
	"github.com/compozy/transcripts/engine/quota"
	"github.com/compozy/transcripts/engine/ratelimit"
)

type stubLimiter struct {
	result ratelimit.Result
	err    error
	calls  int
}

func (s *stubLimiter) Allow(context.Context, string, string) (ratelimit.Result, error) {
	s.calls++
	return s.result, s.err
}

type stubQuota struct {
	status     quota.Status
	checks     int
	increments int
}

func (s *stubQuota) Check(context.Context, string, string, string) quota.Status {
	s.checks++
	return s.status
}

func (s *stubQuota) Increment(context.Context, string, string) error {
	s.increments++
	return nil
}

type stubRewriter struct {
	out string
}

func (s *stubRewriter) Rewrite(_ context.Context, query string, _ []llmadapter.Turn) string {
	if s.out == "" {
		return query
	}
	return s.out
}

type stubRetriever struct {
	matches []vectordb.Match
	err     error
	query   *retriever.Query
	calls   int
}

func (s *stubRetriever) Search(_ context.Context, q *retriever.Query) ([]vectordb.Match, error) {
	s.calls++
	s.query = q
	return s.matches, s.err
}

type stubClient struct {
	mu      sync.Mutex
	deltas  []llmadapter.Delta
	openErr error
	// hold keeps the stream open after the scripted deltas until ctx ends.
	hold    bool
	calls   int
	request *llmadapter.CompletionRequest
}

func (s *stubClient) Complete(context.Context, *llmadapter.CompletionRequest) (string, error) {
	return "", errors.New("not used")
}

func (s *stubClient) CompleteStream(ctx context.Context, req *llmadapter.CompletionRequest) (<-chan llmadapter.Delta, error) {
	s.mu.Lock()
	s.calls++
	s.request = req
	s.mu.Unlock()
	if s.openErr != nil {
		return nil, s.openErr
	}
	out := make(chan llmadapter.Delta)
	go func() {
		defer close(out)
		for _, d := range s.deltas {
			select {
			case out <- d:
			case <-ctx.Done():
				return
			}
		}
		if s.hold {
			<-ctx.Done()
		}
	}()
	return out, nil
}

func collect(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("event stream did not close")
			return out
		}
	}
}

func rankedMatches() []vectordb.Match {
	return []vectordb.Match{
		{DocumentID: "ep-1", Title: "Weekly", Index: 0, Timestamp: "00:01:00", Text: "Launch moved.", Similarity: 0.92},
		{DocumentID: "ep-2", Title: "Retro", Index: 3, Timestamp: "00:10:00", Text: "Pricing.", Similarity: 0.85},
		{DocumentID: "ep-1", Title: "Weekly", Index: 4, Timestamp: "00:05:30", Text: "Second part.", Similarity: 0.8},
	}
}

func newTestOrchestrator(
	t *testing.T,
	limiter RateLimiter,
	quotaSvc QuotaService,
	rewriter QueryRewriter,
	ret Retriever,
	client llmadapter.Client,
) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(limiter, quotaSvc, rewriter, ret, client, nil)
	require.NoError(t, err)
	return o
}

func TestOrchestrator_Start(t *testing.T) {
	allowed := ratelimit.Result{Allowed: true, Limit: 30, Remaining: 29}
	admitted := quota.Status{Allowed: true, Limit: 20, Remaining: 19}

	t.Run("Should stream sources, content and done", func(t *testing.T) {
		q := &stubQuota{status: admitted}
		ret := &stubRetriever{matches: rankedMatches()}
		client := &stubClient{deltas: []llmadapter.Delta{{Text: "The launch "}, {Text: ""}, {Text: "moved [1]."}}}
		o := newTestOrchestrator(t, &stubLimiter{result: allowed}, q,
			&stubRewriter{out: "When was the Q3 launch moved?"}, ret, client)
		history := []llmadapter.Turn{{Role: llmadapter.RoleUser, Text: "Tell me about the Q3 launch"}}
		sess, err := o.Start(context.Background(), &Request{
			Identity: "1.2.3.4", UserID: "u1", Plan: "free", Message: "When was it moved?", History: history,
		})
		require.NoError(t, err)
		require.Nil(t, sess.Rejection)
		events := collect(t, sess.Events)
		require.Len(t, events, 4)
		assert.Equal(t, EventSources, events[0].Type)
		assert.Equal(t, []Source{
			{DocumentID: "ep-1", Title: "Weekly", Timestamp: "00:01:00", Similarity: 0.92},
			{DocumentID: "ep-2", Title: "Retro", Timestamp: "00:10:00", Similarity: 0.85},
		}, events[0].Items)
		assert.Equal(t, Event{Type: EventContent, Text: "The launch "}, events[1])
		assert.Equal(t, Event{Type: EventContent, Text: "moved [1]."}, events[2])
		assert.Equal(t, EventDone, events[3].Type)
		assert.Equal(t, StateDone, sess.State())
		assert.Equal(t, "When was the Q3 launch moved?", sess.Rewritten)
		assert.Equal(t, "When was the Q3 launch moved?", ret.query.Text)
		assert.Nil(t, ret.query.Scope)
		assert.Equal(t, 1, q.increments)
		assert.Equal(t, "When was it moved?", client.request.UserMessage)
		assert.Equal(t, history, client.request.History)
		assert.Contains(t, client.request.SystemPrompt, "[1] Weekly (00:01:00)")
	})

	t.Run("Should reject rate limited requests before any other work", func(t *testing.T) {
		reset := time.Now().Add(30 * time.Second)
		q := &stubQuota{status: admitted}
		ret := &stubRetriever{}
		o := newTestOrchestrator(t, &stubLimiter{result: ratelimit.Result{Limit: 30, ResetAt: reset}}, q, nil, ret, &stubClient{})
		sess, err := o.Start(context.Background(), &Request{Identity: "ip", Message: "hello there"})
		require.NoError(t, err)
		require.NotNil(t, sess.Rejection)
		assert.Equal(t, RejectedByRateLimit, sess.Rejection.Kind)
		assert.Equal(t, int64(30), sess.Rejection.Limit)
		assert.Equal(t, int64(0), sess.Rejection.Remaining)
		assert.Greater(t, sess.Rejection.RetryAfter, time.Duration(0))
		assert.Empty(t, collect(t, sess.Events))
		assert.Equal(t, StateRejected, sess.State())
		assert.Zero(t, q.checks)
		assert.Zero(t, ret.calls)
	})

	t.Run("Should reject requests over quota without counting them", func(t *testing.T) {
		q := &stubQuota{status: quota.Status{Limit: 20, Used: 20, ResetAt: time.Now().Add(time.Hour)}}
		ret := &stubRetriever{}
		o := newTestOrchestrator(t, &stubLimiter{result: allowed}, q, nil, ret, &stubClient{})
		sess, err := o.Start(context.Background(), &Request{Identity: "ip", UserID: "u1", Message: "hello there"})
		require.NoError(t, err)
		require.NotNil(t, sess.Rejection)
		assert.Equal(t, RejectedByQuota, sess.Rejection.Kind)
		assert.Equal(t, int64(20), sess.Rejection.Limit)
		assert.Equal(t, StateRejected, sess.State())
		assert.Zero(t, q.increments)
		assert.Zero(t, ret.calls)
	})

	t.Run("Should not charge quota when retrieval or stream opening fails", func(t *testing.T) {
		q := &stubQuota{status: quota.Status{Allowed: true, Limit: 20}}
		o := newTestOrchestrator(t, nil, q, nil, &stubRetriever{err: errors.New("store down")}, &stubClient{})
		_, err := o.Start(context.Background(), &Request{UserID: "u1", Message: "hello there"})
		require.Error(t, err)
		o = newTestOrchestrator(t, nil, q, nil, &stubRetriever{}, &stubClient{openErr: errors.New("provider down")})
		_, err = o.Start(context.Background(), &Request{UserID: "u1", Message: "hello there"})
		require.ErrorIs(t, err, llmadapter.ErrUpstream)
		o = newTestOrchestrator(t, nil, q, nil, &stubRetriever{err: retriever.ErrEmptyScope}, &stubClient{})
		_, err = o.Start(context.Background(), &Request{UserID: "u1", Message: "hello", Scope: []string{"///"}})
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, 3, q.checks)
		assert.Zero(t, q.increments)
	})

	t.Run("Should admit requests when the limiter errors", func(t *testing.T) {
		o := newTestOrchestrator(t, &stubLimiter{err: errors.New("boom")}, nil, nil,
			&stubRetriever{}, &stubClient{})
		sess, err := o.Start(context.Background(), &Request{Identity: "ip", Message: "hello there"})
		require.NoError(t, err)
		assert.Nil(t, sess.Rejection)
		collect(t, sess.Events)
		assert.Equal(t, StateDone, sess.State())
	})

	t.Run("Should return validation errors for malformed requests", func(t *testing.T) {
		o := newTestOrchestrator(t, nil, nil, nil, &stubRetriever{}, &stubClient{})
		tooStrict := 1.5
		cases := []*Request{
			{Message: "  "},
			{Message: "hi", Mode: "creative"},
			{Message: "hi", Scope: []string{}},
			{Message: "hi", MinSimilarity: &tooStrict},
		}
		for _, req := range cases {
			_, err := o.Start(context.Background(), req)
			var vErr *ValidationError
			assert.ErrorAs(t, err, &vErr)
		}
	})

	t.Run("Should map an unusable scope to a validation error", func(t *testing.T) {
		o := newTestOrchestrator(t, nil, nil, nil, &stubRetriever{err: retriever.ErrEmptyScope}, &stubClient{})
		_, err := o.Start(context.Background(), &Request{Message: "hi", Scope: []string{"///"}})
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "scope", vErr.Field)
	})

	t.Run("Should fail before streaming when retrieval fails", func(t *testing.T) {
		client := &stubClient{}
		o := newTestOrchestrator(t, nil, nil, nil, &stubRetriever{err: errors.New("store down")}, client)
		sess, err := o.Start(context.Background(), &Request{Message: "hello there"})
		assert.Nil(t, sess)
		assert.ErrorContains(t, err, "store down")
		assert.Zero(t, client.calls)
	})

	t.Run("Should end with one generic error event on upstream failure", func(t *testing.T) {
		client := &stubClient{deltas: []llmadapter.Delta{{Text: "Partial"}, {Err: errors.New("503 from provider")}}}
		o := newTestOrchestrator(t, nil, nil, nil, &stubRetriever{matches: rankedMatches()}, client)
		sess, err := o.Start(context.Background(), &Request{Message: "hello there", Mode: ModeHybrid})
		require.NoError(t, err)
		events := collect(t, sess.Events)
		require.Len(t, events, 3)
		assert.Equal(t, EventSources, events[0].Type)
		assert.Equal(t, Event{Type: EventContent, Text: "Partial"}, events[1])
		assert.Equal(t, Event{Type: EventError, Message: GenerationFailedMessage}, events[2])
		assert.Equal(t, StateError, sess.State())
		assert.Equal(t, 1, client.calls)
		assert.Contains(t, client.request.SystemPrompt, "General knowledge:")
	})

	t.Run("Should stop without further events when the caller cancels", func(t *testing.T) {
		client := &stubClient{deltas: []llmadapter.Delta{{Text: "First"}}, hold: true}
		o := newTestOrchestrator(t, nil, nil, nil, &stubRetriever{}, client)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sess, err := o.Start(ctx, &Request{Message: "hello there"})
		require.NoError(t, err)
		assert.Equal(t, EventSources, (<-sess.Events).Type)
		assert.Equal(t, Event{Type: EventContent, Text: "First"}, <-sess.Events)
		cancel()
		assert.Empty(t, collect(t, sess.Events))
		assert.Equal(t, StateError, sess.State())
	})
}

func TestNewOrchestrator(t *testing.T) {
	t.Run("Should require a retriever and a client", func(t *testing.T) {
		_, err := NewOrchestrator(nil, nil, nil, nil, &stubClient{}, nil)
		assert.Error(t, err)
		_, err = NewOrchestrator(nil, nil, nil, &stubRetriever{}, nil, nil)
		assert.Error(t, err)
	})
}
