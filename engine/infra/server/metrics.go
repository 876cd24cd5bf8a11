package server

import (
	"context"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/compozy/transcripts/engine/infra/monitoring"
	"github.com/compozy/transcripts/pkg/logger"
)

// Ingest outcomes beyond the soft-failure reasons reported by the pipeline.
const (
	ingestOutcomeIndexed = "indexed"
	ingestOutcomePartial = "partial"
	ingestOutcomeFailed  = "failed"
)

// httpMetrics are the native Prometheus collectors of the HTTP surface.
type httpMetrics struct {
	ingestOutcomes *prom.CounterVec
	rejections     *prom.CounterVec
	streaming      *monitoring.StreamingMetrics
}

func newHTTPMetrics(ctx context.Context, mon *monitoring.Service, cache CacheStatsProvider) *httpMetrics {
	m := &httpMetrics{
		ingestOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Name: "transcripts_ingest_requests_total",
			Help: "Ingest requests grouped by outcome or rejection reason",
		}, []string{"outcome"}),
		rejections: prom.NewCounterVec(prom.CounterOpts{
			Name: "transcripts_admission_rejections_total",
			Help: "Requests refused by the rate limiter or the usage quota",
		}, []string{"endpoint", "kind"}),
	}
	if mon == nil {
		return m
	}
	m.streaming = mon.Streaming()
	collectors := []prom.Collector{m.ingestOutcomes, m.rejections}
	if cache != nil {
		collectors = append(collectors, cacheCollectors(cache)...)
	}
	log := logger.FromContext(ctx)
	for _, c := range collectors {
		if err := mon.RegisterCollector(c); err != nil {
			log.Warn("Failed to register HTTP collector", "error", err)
		}
	}
	return m
}

func cacheCollectors(cache CacheStatsProvider) []prom.Collector {
	return []prom.Collector{
		prom.NewGaugeFunc(prom.GaugeOpts{
			Name: "transcripts_embedding_cache_entries",
			Help: "Live entries in the embedding cache",
		}, func() float64 { return float64(cache.Stats().Size) }),
		prom.NewCounterFunc(prom.CounterOpts{
			Name: "transcripts_embedding_cache_hits_total",
			Help: "Embedding cache lookups served from memory",
		}, func() float64 { return float64(cache.Stats().Hits) }),
		prom.NewCounterFunc(prom.CounterOpts{
			Name: "transcripts_embedding_cache_misses_total",
			Help: "Embedding cache lookups that went upstream",
		}, func() float64 { return float64(cache.Stats().Misses) }),
	}
}

func (m *httpMetrics) recordIngest(outcome string) {
	m.ingestOutcomes.WithLabelValues(outcome).Inc()
}

func (m *httpMetrics) recordRejection(endpoint, kind string) {
	m.rejections.WithLabelValues(endpoint, kind).Inc()
}
