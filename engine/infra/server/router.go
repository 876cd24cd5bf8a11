package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/compozy/transcripts/engine/infra/server/middleware/size"
	"github.com/compozy/transcripts/engine/infra/server/router"
	"github.com/compozy/transcripts/engine/infra/server/routes"
	"github.com/compozy/transcripts/pkg/logger"
)

func (s *Server) buildRouter(ctx context.Context) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(logger.FromContext(ctx)))
	if mon := s.deps.Monitoring; mon != nil && mon.IsInitialized() {
		r.Use(mon.GinMiddleware())
		r.GET(mon.Path(), gin.WrapH(mon.ExporterHandler()))
	}
	r.GET(routes.Health(), s.handleHealth)
	registerDocs(r)
	api := r.Group(routes.Transcripts())
	api.Use(size.BodySizeLimiter(s.cfg.MaxBodyBytes))
	api.POST("/ingest", s.handleIngest)
	api.POST("/query", s.handleQuery)
	r.NoRoute(func(c *gin.Context) {
		router.RespondProblemWithCode(c, http.StatusNotFound, router.ErrNotFoundCode, "route not found")
	})
	return r
}
