package router

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/compozy/transcripts/pkg/logger"
)

const (
	ProblemContentType = "application/problem+json"
	HeaderRequestID    = "X-Request-ID"
)

// RespondProblem writes a canonical RFC 7807 error response and aborts the chain.
func RespondProblem(c *gin.Context, problem *ProblemDocument) {
	if problem.Status == 0 {
		problem.Status = http.StatusInternalServerError
	}
	if problem.Title == "" {
		problem.Title = http.StatusText(problem.Status)
	}
	if problem.Type == "" {
		problem.Type = "about:blank"
	}
	if problem.Instance == "" {
		problem.Instance = c.Request.URL.Path
	}
	writeProblemResponse(c, problem)
}

// RespondProblemWithCode writes a problem response embedding a code and detail.
func RespondProblemWithCode(c *gin.Context, status int, code string, detail string) {
	RespondProblem(c, &ProblemDocument{
		Status: status,
		Title:  http.StatusText(status),
		Detail: detail,
		Code:   code,
	})
}

func writeProblemResponse(c *gin.Context, problem *ProblemDocument) {
	logProblem(c, problem)
	payload, err := json.Marshal(problem)
	if err != nil {
		logger.FromContext(c.Request.Context()).Error("Failed to marshal problem", "error", err)
		fallback := []byte(`{"status":500,"title":"Internal Server Error"}`)
		c.Data(http.StatusInternalServerError, ProblemContentType, fallback)
		c.Abort()
		return
	}
	c.Data(problem.Status, ProblemContentType, payload)
	c.Abort()
}

func logProblem(c *gin.Context, problem *ProblemDocument) {
	log := logger.FromContext(c.Request.Context())
	route := c.FullPath()
	if route == "" {
		route = c.Request.URL.Path
	}
	fields := []any{
		"status", problem.Status,
		"title", problem.Title,
		"detail", problem.Detail,
		"route", route,
	}
	if problem.Code != "" {
		fields = append(fields, "code", problem.Code)
	}
	if requestID := c.Writer.Header().Get(HeaderRequestID); requestID != "" {
		fields = append(fields, "request_id", requestID)
	}
	if problem.Status >= http.StatusInternalServerError {
		log.Error("Request failed", fields...)
		return
	}
	log.Warn("Request failed", fields...)
}
