package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/compozy/transcripts/engine/chat"
	"github.com/compozy/transcripts/engine/knowledge/ingest"
	"github.com/compozy/transcripts/engine/quota"
	"github.com/compozy/transcripts/engine/ratelimit"
	"github.com/compozy/transcripts/pkg/logger"
)

type ingestRequest struct {
	DocumentID string `json:"documentId" binding:"required"`
	Title      string `json:"title"`
	SourceRef  string `json:"sourceRef"`
	Body       string `json:"body"`
}

// handleIngest indexes one transcript. Soft validation failures are a 200
// with valid=false; provider and store failures are problems.
//
//	@Summary		Ingest transcript
//	@Description	Chunks, embeds and atomically replaces every passage of the document.
//	@Tags			transcripts
//	@Accept			json
//	@Produce		json
//	@Param			X-User-ID	header		string					false	"Caller identity"
//	@Param			X-User-Plan	header		string					false	"Quota plan"
//	@Param			payload		body		ingestRequest			true	"Transcript to index"
//	@Success		200			{object}	ingest.Result			"Indexed, or skipped with valid=false"
//	@Failure		400			{object}	router.ProblemDocument	"Malformed body"
//	@Failure		429			{object}	router.ProblemDocument	"Rate limited or quota exceeded"
//	@Failure		500			{object}	router.ProblemDocument	"Store failure"
//	@Failure		502			{object}	router.ProblemDocument	"Embedding provider failure"
//	@Router			/api/v1/transcripts/ingest [post]
func (s *Server) handleIngest(c *gin.Context) {
	var body ingestRequest
	if !bindJSON(c, &body) {
		return
	}
	ctx := c.Request.Context()
	who := resolveIdentity(c)
	if rejection := s.admitIngest(ctx, who); rejection != nil {
		s.metrics.recordRejection(ratelimit.EndpointIngest, string(rejection.Kind))
		respondRejected(c, rejection)
		return
	}
	result, err := s.deps.Ingester.Ingest(ctx, ingest.Document{
		ID:        body.DocumentID,
		Title:     body.Title,
		SourceRef: body.SourceRef,
		Body:      body.Body,
	})
	if err != nil {
		s.metrics.recordIngest(ingestOutcomeFailed)
		respondError(c, err)
		return
	}
	if result.Valid && s.deps.Quota != nil {
		if err := s.deps.Quota.Increment(ctx, who.UserID, quota.FeatureIngest); err != nil {
			logger.FromContext(ctx).Warn("Failed to record ingest usage", "error", err)
		}
	}
	s.metrics.recordIngest(ingestOutcome(result))
	c.JSON(http.StatusOK, result)
}

// admitIngest applies the rate limit and then the quota. Limiter errors admit.
func (s *Server) admitIngest(ctx context.Context, who identity) *chat.Rejection {
	now := s.now()
	if s.deps.Limiter != nil {
		res, err := s.deps.Limiter.Allow(ctx, who.Key, ratelimit.EndpointIngest)
		switch {
		case err != nil:
			logger.FromContext(ctx).Warn("Rate limit check failed, admitting request", "error", err)
		case !res.Allowed:
			return rejectionFromRate(res, now)
		}
	}
	if s.deps.Quota != nil {
		status := s.deps.Quota.Check(ctx, who.UserID, quota.FeatureIngest, who.Plan)
		if !status.Allowed {
			return rejectionFromQuota(status, now)
		}
	}
	return nil
}

func ingestOutcome(result *ingest.Result) string {
	switch {
	case !result.Valid:
		return string(result.Reason)
	case result.Partial:
		return ingestOutcomePartial
	default:
		return ingestOutcomeIndexed
	}
}
