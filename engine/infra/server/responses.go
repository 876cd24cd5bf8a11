package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/compozy/transcripts/engine/chat"
	"github.com/compozy/transcripts/engine/infra/server/router"
	llmadapter "github.com/compozy/transcripts/engine/llm/adapter"
	"github.com/compozy/transcripts/engine/quota"
	"github.com/compozy/transcripts/engine/ratelimit"
	"github.com/compozy/transcripts/pkg/logger"
)

// bindJSON decodes the request body; on failure the problem is already written.
func bindJSON(c *gin.Context, dst any) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		router.RespondProblemWithCode(c, http.StatusRequestEntityTooLarge, router.ErrPayloadTooLargeCode,
			fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		return false
	}
	router.RespondProblemWithCode(c, http.StatusBadRequest, router.ErrBadRequestCode,
		"malformed request body: "+err.Error())
	return false
}

// respondError maps engine errors onto problem responses.
func respondError(c *gin.Context, err error) {
	var validation *chat.ValidationError
	switch {
	case errors.As(err, &validation):
		router.RespondProblemWithCode(c, http.StatusBadRequest, router.ErrValidationCode, validation.Error())
	case errors.Is(err, context.Canceled) && c.Request.Context().Err() != nil:
		logger.FromContext(c.Request.Context()).Debug("Client went away before a response", "error", err)
		c.Abort()
	case errors.Is(err, llmadapter.ErrUpstream):
		logger.FromContext(c.Request.Context()).Error("Upstream provider failed", "error", err)
		router.RespondProblemWithCode(c, http.StatusBadGateway, router.ErrUpstreamCode,
			"the model provider failed to answer")
	default:
		logger.FromContext(c.Request.Context()).Error("Request processing failed", "error", err)
		router.RespondProblemWithCode(c, http.StatusInternalServerError, router.ErrInternalCode,
			"internal error")
	}
}

func rejectionFromRate(res ratelimit.Result, now time.Time) *chat.Rejection {
	return &chat.Rejection{
		Kind:       chat.RejectedByRateLimit,
		ResetAt:    res.ResetAt,
		RetryAfter: res.RetryAfter(now),
		Limit:      res.Limit,
		Remaining:  0,
	}
}

func rejectionFromQuota(status quota.Status, now time.Time) *chat.Rejection {
	return &chat.Rejection{
		Kind:       chat.RejectedByQuota,
		ResetAt:    status.ResetAt,
		RetryAfter: ratelimit.Result{ResetAt: status.ResetAt}.RetryAfter(now),
		Limit:      int64(status.Limit),
		Remaining:  0,
	}
}

// respondRejected writes a 429 with retry guidance headers.
func respondRejected(c *gin.Context, rejection *chat.Rejection) {
	retryAfter := int((rejection.RetryAfter + time.Second - 1) / time.Second)
	if retryAfter < 1 {
		retryAfter = 1
	}
	h := c.Writer.Header()
	h.Set("Retry-After", strconv.Itoa(retryAfter))
	h.Set("X-RateLimit-Limit", strconv.FormatInt(rejection.Limit, 10))
	h.Set("X-RateLimit-Remaining", strconv.FormatInt(rejection.Remaining, 10))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(rejection.ResetAt.Unix(), 10))
	code := router.ErrRateLimitedCode
	detail := fmt.Sprintf("rate limit exceeded, retry in %d seconds", retryAfter)
	if rejection.Kind == chat.RejectedByQuota {
		code = router.ErrQuotaExceededCode
		detail = fmt.Sprintf("daily quota of %d exhausted, resets at %s",
			rejection.Limit, rejection.ResetAt.UTC().Format(time.RFC3339))
	}
	router.RespondProblem(c, &router.ProblemDocument{
		Status:     http.StatusTooManyRequests,
		Code:       code,
		Detail:     detail,
		RetryAfter: retryAfter,
	})
}
