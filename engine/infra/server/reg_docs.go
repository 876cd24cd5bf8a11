package server

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/compozy/transcripts/docs"
	"github.com/compozy/transcripts/engine/infra/server/router"
	"github.com/compozy/transcripts/pkg/logger"
)

const (
	swaggerModelsExpandDepthCollapsed = -1
	swaggerDocPath                    = "/swagger.json"
)

// registerDocs serves Swagger UI at /docs and the raw document at /swagger.json.
func registerDocs(r *gin.Engine) {
	docs.SwaggerInfo.Host = ""
	docs.SwaggerInfo.Schemes = []string{"http", "https"}
	r.GET("/docs/*any", ginSwagger.WrapHandler(
		swaggerFiles.Handler,
		ginSwagger.URL(swaggerDocPath),
		ginSwagger.InstanceName(docs.SwaggerInfo.InstanceName()),
		ginSwagger.DefaultModelsExpandDepth(swaggerModelsExpandDepthCollapsed),
	))
	r.GET("/swagger/index.html", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/docs/index.html")
	})
	r.GET(swaggerDocPath, handleSwaggerDoc)
}

func handleSwaggerDoc(c *gin.Context) {
	raw := docs.SwaggerInfo.ReadDoc()
	if !json.Valid([]byte(raw)) {
		logger.FromContext(c.Request.Context()).Error("Swagger document is not valid JSON")
		router.RespondProblemWithCode(c, http.StatusInternalServerError, router.ErrInternalCode,
			"api documentation unavailable")
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(raw))
}
