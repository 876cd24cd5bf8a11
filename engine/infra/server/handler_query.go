package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/compozy/transcripts/engine/chat"
	"github.com/compozy/transcripts/engine/infra/monitoring"
	"github.com/compozy/transcripts/engine/infra/server/router"
	llmadapter "github.com/compozy/transcripts/engine/llm/adapter"
	"github.com/compozy/transcripts/engine/ratelimit"
	"github.com/compozy/transcripts/pkg/logger"
)

const scopeAll = "all"

var errInvalidScope = errors.New(`scope must be "all" or a list of document ids`)

type queryRequest struct {
	Message             string            `json:"message"`
	ConversationHistory []llmadapter.Turn `json:"conversationHistory"`
	Scope               json.RawMessage   `json:"scope" swaggertype:"object"`
	Mode                string            `json:"mode"`
	MinSimilarity       *float64          `json:"minSimilarity"`
}

// handleQuery answers a question as a server-sent event stream. Everything
// that can fail before the first event is reported as a problem response.
//
//	@Summary		Ask a question
//	@Description	Streams a grounded answer as server-sent events: sources, content*, then done or error.
//	@Tags			transcripts
//	@Accept			json
//	@Produce		text/event-stream
//	@Param			X-User-ID	header		string					false	"Caller identity"
//	@Param			X-User-Plan	header		string					false	"Quota plan"
//	@Param			payload		body		queryRequest			true	"Question and conversation"
//	@Success		200			{string}	string					"data: {json}\n\n frames"
//	@Failure		400			{object}	router.ProblemDocument	"Invalid message, mode or scope"
//	@Failure		429			{object}	router.ProblemDocument	"Rate limited or quota exceeded"
//	@Failure		500			{object}	router.ProblemDocument	"Retrieval failure"
//	@Failure		502			{object}	router.ProblemDocument	"Completion provider failure"
//	@Router			/api/v1/transcripts/query [post]
func (s *Server) handleQuery(c *gin.Context) {
	var body queryRequest
	if !bindJSON(c, &body) {
		return
	}
	scope, err := parseScope(body.Scope)
	if err != nil {
		router.RespondProblemWithCode(c, http.StatusBadRequest, router.ErrValidationCode, err.Error())
		return
	}
	req := &chat.Request{
		Message:       body.Message,
		History:       body.ConversationHistory,
		Scope:         scope,
		Mode:          chat.Mode(body.Mode),
		MinSimilarity: body.MinSimilarity,
	}
	who := resolveIdentity(c)
	req.Identity, req.UserID, req.Plan = who.Key, who.UserID, who.Plan

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	accepted := time.Now()
	sess, err := s.deps.Chat.Start(ctx, req)
	if err != nil {
		respondError(c, err)
		return
	}
	if sess.Rejection != nil {
		s.metrics.recordRejection(ratelimit.EndpointQuery, string(sess.Rejection.Kind))
		respondRejected(c, sess.Rejection)
		return
	}
	s.stream(ctx, c, cancel, sess, string(req.Mode), accepted)
}

// stream forwards session events until the orchestrator closes the channel.
// A failed write cancels generation; remaining events are drained.
func (s *Server) stream(
	ctx context.Context,
	c *gin.Context,
	cancel context.CancelFunc,
	sess *chat.Session,
	mode string,
	accepted time.Time,
) {
	log := logger.FromContext(ctx)
	sse, err := router.StartSSE(c)
	if err != nil {
		cancel()
		for range sess.Events {
		}
		respondError(c, err)
		return
	}
	sm := s.metrics.streaming
	sm.RecordConnect(ctx, mode)
	defer sm.RecordDisconnect(ctx, mode)
	var last chat.EventType
	delivered := 0
	clientGone := false
	for ev := range sess.Events {
		if clientGone {
			continue
		}
		frame, err := chat.Encode(ev)
		if err != nil {
			log.Error("Failed to encode stream event", "type", ev.Type, "error", err)
			continue
		}
		if err := sse.Write(frame); err != nil {
			log.Debug("Client disconnected mid-stream", "error", err)
			clientGone = true
			cancel()
			continue
		}
		if delivered == 0 {
			sm.RecordTimeToFirstEvent(ctx, mode, time.Since(accepted))
		}
		delivered++
		last = ev.Type
		sm.RecordEvent(ctx, string(ev.Type))
	}
	outcome := monitoring.StreamOutcomeCanceled
	switch {
	case clientGone:
	case last == chat.EventDone:
		outcome = monitoring.StreamOutcomeCompleted
	case last == chat.EventError:
		outcome = monitoring.StreamOutcomeFailed
	}
	sm.RecordOutcome(ctx, mode, outcome)
	sm.RecordDuration(ctx, mode, time.Since(accepted))
	log.Debug("Chat stream closed", "outcome", outcome, "events", delivered, "state", sess.State())
}

// parseScope accepts "all", null, or an array of ids. nil means every
// transcript; an empty array stays empty and is rejected downstream.
func parseScope(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var all string
	if err := json.Unmarshal(raw, &all); err == nil {
		if all == scopeAll {
			return nil, nil
		}
		return nil, errInvalidScope
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, errInvalidScope
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}
