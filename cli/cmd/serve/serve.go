package serve

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/compozy/transcripts/cli/cmd"
	"github.com/compozy/transcripts/engine/infra/server"
	"github.com/compozy/transcripts/pkg/config"
	"github.com/compozy/transcripts/pkg/logger"
)

const (
	productionEnvironment = "production"
	disableSSLMode        = "disable"
)

// NewServeCommand creates the command that runs the HTTP API.
func NewServeCommand() *cobra.Command {
	c := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the transcripts HTTP server",
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			return cmd.ExecuteCommand(cobraCmd, handleServe, args)
		},
	}
	c.Flags().String("host", "", "Host to bind the server to (env: SERVER_HOST)")
	c.Flags().Int("port", 0, "Port to run the server on (env: SERVER_PORT)")
	c.Flags().String("vector-store", "", "Vector store: pgvector or memory (env: KNOWLEDGE_VECTOR_STORE)")
	return c
}

func handleServe(ctx context.Context, _ *cobra.Command, executor *cmd.CommandExecutor, _ []string) error {
	cfg := executor.Config()
	log := logger.FromContext(ctx)
	if cfg.Runtime.Environment == productionEnvironment {
		gin.SetMode(gin.ReleaseMode)
		logProductionWarnings(ctx, cfg)
	}
	deps, err := executor.Components().ServerDependencies(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	srv, err := server.NewServer(ctx, &cfg.Server, deps)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	log.Info("Starting transcripts server",
		"environment", cfg.Runtime.Environment,
		"vector_store", cfg.Knowledge.VectorStore,
		"llm_provider", cfg.LLM.Provider,
		"rate_limit", cfg.RateLimit.Enabled,
		"quota", cfg.Quota.Enabled,
	)
	return srv.Run(ctx)
}

func logProductionWarnings(ctx context.Context, cfg *config.Config) {
	log := logger.FromContext(ctx)
	if cfg.Database.SSLMode == disableSSLMode && cfg.Database.ConnString == "" {
		log.Warn("Database SSL is disabled in production; consider database.ssl_mode=require")
	}
	if !cfg.RateLimit.Enabled {
		log.Warn("Rate limiting is disabled in production")
	}
	if cfg.Knowledge.VectorStore == "memory" {
		log.Warn("In-memory vector store selected in production; indexed transcripts are lost on restart")
	}
}
