package server

import (
	"context"
	"errors"

	"github.com/compozy/transcripts/engine/chat"
	"github.com/compozy/transcripts/engine/infra/monitoring"
	"github.com/compozy/transcripts/engine/knowledge/embedder"
	"github.com/compozy/transcripts/engine/knowledge/ingest"
)

type Ingester interface {
	Ingest(ctx context.Context, doc ingest.Document) (*ingest.Result, error)
}

type ChatStarter interface {
	Start(ctx context.Context, req *chat.Request) (*chat.Session, error)
}

type HealthChecker interface {
	Ping(ctx context.Context) error
}

type CacheStatsProvider interface {
	Stats() embedder.CacheStats
}

// Dependencies are the engine services behind the HTTP surface. Limiter,
// Quota, Cache and Monitoring are optional.
type Dependencies struct {
	Ingester   Ingester
	Chat       ChatStarter
	Store      HealthChecker
	Limiter    chat.RateLimiter
	Quota      chat.QuotaService
	Cache      CacheStatsProvider
	Monitoring *monitoring.Service
}

func (d *Dependencies) validate() error {
	if d == nil {
		return errors.New("server: dependencies are required")
	}
	if d.Ingester == nil {
		return errors.New("server: ingestion pipeline is required")
	}
	if d.Chat == nil {
		return errors.New("server: chat orchestrator is required")
	}
	if d.Store == nil {
		return errors.New("server: store health checker is required")
	}
	return nil
}
