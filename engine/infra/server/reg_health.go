package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/compozy/transcripts/pkg/logger"
	"github.com/compozy/transcripts/pkg/version"
)

const (
	statusHealthy  = "healthy"
	statusNotReady = "not_ready"
	healthTimeout  = 2 * time.Second
)

// handleHealth reports whether the vector store is reachable and migrated.
//
//	@Summary	Health check
//	@Tags		health
//	@Produce	json
//	@Success	200	{object}	map[string]any	"Store reachable"
//	@Failure	503	{object}	map[string]any	"Store not ready"
//	@Router		/health [get]
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()
	store := gin.H{"ready": true}
	status := statusHealthy
	code := http.StatusOK
	if err := s.deps.Store.Ping(ctx); err != nil {
		logger.FromContext(ctx).Warn("Health check failed", "error", err)
		store = gin.H{"ready": false, "error": err.Error()}
		status = statusNotReady
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"data": gin.H{
			"status":  status,
			"version": version.Get().Version,
			"ready":   code == http.StatusOK,
			"store":   store,
		},
		"message": "Success",
	})
}
