// Package chat answers questions over indexed transcripts as a stream of events.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/looplab/fsm"

	"github.com/compozy/transcripts/engine/knowledge/retriever"
	"github.com/compozy/transcripts/engine/knowledge/vectordb"
	llmadapter "github.com/compozy/transcripts/engine/llm/adapter"
	"github.com/compozy/transcripts/engine/quota"
	"github.com/compozy/transcripts/engine/ratelimit"
	"github.com/compozy/transcripts/pkg/logger"
)

const (
	DefaultMaxHistoryTurns = 10
	// GenerationFailedMessage is the only error text surfaced to clients mid-stream.
	GenerationFailedMessage = "generation failed"
)

type RateLimiter interface {
	Allow(ctx context.Context, identity, endpoint string) (ratelimit.Result, error)
}

type QuotaService interface {
	Check(ctx context.Context, userID, feature, plan string) quota.Status
	Increment(ctx context.Context, userID, feature string) error
}

type Retriever interface {
	Search(ctx context.Context, q *retriever.Query) ([]vectordb.Match, error)
}

type QueryRewriter interface {
	Rewrite(ctx context.Context, query string, history []llmadapter.Turn) string
}

// Request is one user question. A nil Scope searches every transcript.
type Request struct {
	Identity      string
	UserID        string
	Plan          string
	Message       string
	History       []llmadapter.Turn
	Scope         []string
	Mode          Mode
	// MinSimilarity overrides the retriever default when set.
	MinSimilarity *float64
}

// ValidationError reports a malformed request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("chat: invalid %s: %s", e.Field, e.Message)
}

// RejectionKind says which admission control refused the request.
type RejectionKind string

const (
	RejectedByRateLimit RejectionKind = "rate_limited"
	RejectedByQuota     RejectionKind = "quota_exceeded"
)

// Rejection carries retry guidance for a refused request.
type Rejection struct {
	Kind       RejectionKind
	ResetAt    time.Time
	RetryAfter time.Duration
	Limit      int64
	Remaining  int64
}

// Session is one admitted or rejected request. Events is closed once the
// stream ends; it is empty for rejected sessions.
type Session struct {
	Events    <-chan Event
	Rejection *Rejection
	// Rewritten is the query actually used for retrieval.
	Rewritten string
	Sources   []Source
	machine   *fsm.FSM
}

// State returns the current lifecycle state.
func (s *Session) State() string {
	if s.machine == nil {
		return ""
	}
	return s.machine.Current()
}

// Options tunes generation.
type Options struct {
	Temperature     float64
	MaxTokens       int
	MaxHistoryTurns int
	Prompt          *PromptBuilder
}

type Orchestrator struct {
	limiter   RateLimiter
	quota     QuotaService
	rewriter  QueryRewriter
	retriever Retriever
	client    llmadapter.Client
	prompt    *PromptBuilder
	options   Options
	now       func() time.Time
}

// NewOrchestrator wires the chat pipeline. limiter, quota and rewriter are
// optional; a nil one admits every request or leaves queries unchanged.
func NewOrchestrator(
	limiter RateLimiter,
	quotaSvc QuotaService,
	rewriter QueryRewriter,
	ret Retriever,
	client llmadapter.Client,
	opts *Options,
) (*Orchestrator, error) {
	if ret == nil {
		return nil, errors.New("chat: retriever is required")
	}
	if client == nil {
		return nil, errors.New("chat: completion client is required")
	}
	options := Options{}
	if opts != nil {
		options = *opts
	}
	if options.MaxHistoryTurns <= 0 {
		options.MaxHistoryTurns = DefaultMaxHistoryTurns
	}
	prompt := options.Prompt
	if prompt == nil {
		prompt = NewPromptBuilder(nil, DefaultMaxContextTokens)
	}
	return &Orchestrator{
		limiter:   limiter,
		quota:     quotaSvc,
		rewriter:  rewriter,
		retriever: ret,
		client:    client,
		prompt:    prompt,
		options:   options,
		now:       time.Now,
	}, nil
}

// Start admits, rewrites and retrieves for req, then streams the answer.
// Validation problems are returned as *ValidationError; rejections come
// back as a Session with Rejection set and no events.
func (o *Orchestrator) Start(ctx context.Context, req *Request) (*Session, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx).With("identity", req.Identity, "mode", req.Mode)
	ctx = logger.ContextWithLogger(ctx, log)
	sess := &Session{machine: newSessionFSM()}
	if rejection := o.checkRate(ctx, req); rejection != nil {
		return o.reject(ctx, sess, rejection), nil
	}
	sess.transition(ctx, eventRateOK)
	if rejection := o.checkQuota(ctx, req); rejection != nil {
		return o.reject(ctx, sess, rejection), nil
	}
	sess.transition(ctx, eventQuotaOK)

	history := recentHistory(req.History, o.options.MaxHistoryTurns)
	sess.Rewritten = req.Message
	if o.rewriter != nil {
		sess.Rewritten = o.rewriter.Rewrite(ctx, req.Message, history)
	}
	sess.transition(ctx, eventRewritten)

	matches, err := o.retriever.Search(ctx, &retriever.Query{
		Text:          sess.Rewritten,
		Scope:         req.Scope,
		MinSimilarity: req.MinSimilarity,
	})
	if err != nil {
		sess.transition(ctx, eventFail)
		if errors.Is(err, retriever.ErrEmptyScope) {
			return nil, &ValidationError{Field: "scope", Message: "no valid document ids"}
		}
		return nil, fmt.Errorf("chat: retrieve: %w", err)
	}
	sess.transition(ctx, eventRetrieved)

	system, used := o.prompt.Build(req.Mode, matches)
	sess.Sources = buildSources(matches[:used])
	stream, err := o.client.CompleteStream(ctx, &llmadapter.CompletionRequest{
		SystemPrompt: system,
		History:      history,
		UserMessage:  req.Message,
		Temperature:  o.options.Temperature,
		MaxTokens:    o.options.MaxTokens,
	})
	if err != nil {
		sess.transition(ctx, eventFail)
		return nil, fmt.Errorf("chat: open stream: %w", llmadapter.Upstream(err))
	}
	sess.transition(ctx, eventStream)
	if o.quota != nil {
		if err := o.quota.Increment(ctx, quotaUser(req), quota.FeatureChat); err != nil {
			log.Warn("Failed to record chat usage", "error", err)
		}
	}
	events := make(chan Event)
	sess.Events = events
	log.Info("Chat stream started", "passages", used, "sources", len(sess.Sources),
		"rewritten", sess.Rewritten != req.Message)
	go o.forward(ctx, sess, stream, events)
	return sess, nil
}

// forward relays upstream deltas as events. It never retries: an upstream
// error ends the stream with a single error event.
func (o *Orchestrator) forward(ctx context.Context, sess *Session, stream <-chan llmadapter.Delta, events chan<- Event) {
	defer close(events)
	log := logger.FromContext(ctx)
	send := func(ev Event) bool {
		if ctx.Err() != nil {
			return false
		}
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}
	if !send(Event{Type: EventSources, Items: sess.Sources}) {
		o.abandon(ctx, sess, stream)
		return
	}
	for {
		select {
		case <-ctx.Done():
			o.abandon(ctx, sess, stream)
			return
		case delta, ok := <-stream:
			if !ok {
				if ctx.Err() == nil && send(Event{Type: EventDone}) {
					sess.transition(ctx, eventComplete)
					log.Info("Chat stream finished")
					return
				}
				o.abandon(ctx, sess, stream)
				return
			}
			if delta.Err != nil {
				log.Error("Chat generation failed", "error", delta.Err)
				sess.transition(ctx, eventFail)
				send(Event{Type: EventError, Message: GenerationFailedMessage})
				return
			}
			if delta.Text == "" {
				continue
			}
			if !send(Event{Type: EventContent, Text: delta.Text}) {
				o.abandon(ctx, sess, stream)
				return
			}
		}
	}
}

// abandon handles caller cancellation: the upstream stream observes the
// same context and is drained so its goroutine can exit.
func (o *Orchestrator) abandon(ctx context.Context, sess *Session, stream <-chan llmadapter.Delta) {
	logger.FromContext(ctx).Info("Chat stream cancelled by caller")
	sess.transition(ctx, eventFail)
	go func() {
		for range stream {
		}
	}()
}

func (o *Orchestrator) checkRate(ctx context.Context, req *Request) *Rejection {
	if o.limiter == nil {
		return nil
	}
	result, err := o.limiter.Allow(ctx, req.Identity, ratelimit.EndpointQuery)
	if err != nil {
		logger.FromContext(ctx).Warn("Rate limit check failed, admitting request", "error", err)
		return nil
	}
	if result.Allowed {
		return nil
	}
	return &Rejection{
		Kind:       RejectedByRateLimit,
		ResetAt:    result.ResetAt,
		RetryAfter: result.RetryAfter(o.now()),
		Limit:      result.Limit,
		Remaining:  0,
	}
}

func (o *Orchestrator) checkQuota(ctx context.Context, req *Request) *Rejection {
	if o.quota == nil {
		return nil
	}
	status := o.quota.Check(ctx, quotaUser(req), quota.FeatureChat, req.Plan)
	if status.Allowed {
		return nil
	}
	return &Rejection{
		Kind:       RejectedByQuota,
		ResetAt:    status.ResetAt,
		RetryAfter: ratelimit.Result{ResetAt: status.ResetAt}.RetryAfter(o.now()),
		Limit:      int64(status.Limit),
		Remaining:  0,
	}
}

func (o *Orchestrator) reject(ctx context.Context, sess *Session, rejection *Rejection) *Session {
	logger.FromContext(ctx).Warn("Chat request rejected", "kind", rejection.Kind, "reset_at", rejection.ResetAt)
	sess.transition(ctx, eventReject)
	sess.Rejection = rejection
	events := make(chan Event)
	close(events)
	sess.Events = events
	return sess
}

func validateRequest(req *Request) error {
	if req == nil {
		return &ValidationError{Field: "request", Message: "is required"}
	}
	if strings.TrimSpace(req.Message) == "" {
		return &ValidationError{Field: "message", Message: "must not be empty"}
	}
	mode, ok := ParseMode(string(req.Mode))
	if !ok {
		return &ValidationError{Field: "mode", Message: fmt.Sprintf("unknown mode %q", req.Mode)}
	}
	req.Mode = mode
	if req.Scope != nil && len(req.Scope) == 0 {
		return &ValidationError{Field: "scope", Message: "must list at least one document or be \"all\""}
	}
	if m := req.MinSimilarity; m != nil && (*m < 0 || *m > 1) {
		return &ValidationError{Field: "minSimilarity", Message: "must be between 0 and 1"}
	}
	return nil
}

func quotaUser(req *Request) string {
	if req.UserID != "" {
		return req.UserID
	}
	return req.Identity
}

func recentHistory(history []llmadapter.Turn, n int) []llmadapter.Turn {
	if len(history) > n {
		history = history[len(history)-n:]
	}
	out := make([]llmadapter.Turn, 0, len(history))
	for _, turn := range history {
		if strings.TrimSpace(turn.Text) == "" {
			continue
		}
		out = append(out, turn)
	}
	return out
}

// buildSources keeps one entry per document in rank order, using the
// first (best) passage's timestamp.
func buildSources(matches []vectordb.Match) []Source {
	seen := make(map[string]struct{}, len(matches))
	sources := make([]Source, 0, len(matches))
	for i := range matches {
		m := &matches[i]
		if _, dup := seen[m.DocumentID]; dup {
			continue
		}
		seen[m.DocumentID] = struct{}{}
		sources = append(sources, Source{
			DocumentID: m.DocumentID,
			Title:      m.Title,
			Timestamp:  m.Timestamp,
			SourceRef:  m.SourceRef,
			Similarity: m.Similarity,
		})
	}
	return sources
}
