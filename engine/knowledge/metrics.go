// Package knowledge holds instrumentation shared by the ingestion and retrieval paths.
package knowledge

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce           sync.Once
	metricsMu             sync.Mutex
	metricsInitErr        error
	ingestDurationHist    metric.Float64Histogram
	chunkCounter          metric.Int64Counter
	ingestRejectedCounter metric.Int64Counter
	queryLatencyHist      metric.Float64Histogram
	retrievalEmptyCounter metric.Int64Counter
)

func RecordIngestDuration(ctx context.Context, d time.Duration) {
	if err := ensureMetrics(); err != nil || ingestDurationHist == nil {
		return
	}
	ingestDurationHist.Record(ctx, d.Seconds())
}

func RecordIngestChunks(ctx context.Context, chunks int) {
	if chunks <= 0 {
		return
	}
	if err := ensureMetrics(); err != nil || chunkCounter == nil {
		return
	}
	chunkCounter.Add(ctx, int64(chunks))
}

// RecordIngestRejected counts soft validation failures by reason.
func RecordIngestRejected(ctx context.Context, reason string) {
	if err := ensureMetrics(); err != nil || ingestRejectedCounter == nil {
		return
	}
	ingestRejectedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func RecordQueryLatency(ctx context.Context, scoped bool, d time.Duration) {
	if err := ensureMetrics(); err != nil || queryLatencyHist == nil {
		return
	}
	queryLatencyHist.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.Bool("scoped", scoped)))
}

func RecordRetrievalEmpty(ctx context.Context, scoped bool) {
	if err := ensureMetrics(); err != nil || retrievalEmptyCounter == nil {
		return
	}
	retrievalEmptyCounter.Add(ctx, 1, metric.WithAttributes(attribute.Bool("scoped", scoped)))
}

func ResetMetricsForTesting() {
	metricsMu.Lock()
	metricsOnce = sync.Once{}
	metricsInitErr = nil
	ingestDurationHist = nil
	chunkCounter = nil
	ingestRejectedCounter = nil
	queryLatencyHist = nil
	retrievalEmptyCounter = nil
	metricsMu.Unlock()
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("transcripts.knowledge")
		if err := initIngestMetrics(meter); err != nil {
			metricsInitErr = err
			return
		}
		if err := initRetrievalMetrics(meter); err != nil {
			metricsInitErr = err
		}
	})
	return metricsInitErr
}

func initIngestMetrics(meter metric.Meter) error {
	var err error
	ingestDurationHist, err = meter.Float64Histogram(
		"transcripts_knowledge_ingest_duration_seconds",
		metric.WithDescription("Latency of transcript ingestion runs"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120),
	)
	if err != nil {
		return err
	}
	chunkCounter, err = meter.Int64Counter(
		"transcripts_knowledge_chunks_total",
		metric.WithDescription("Number of passages persisted by ingestion"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}
	ingestRejectedCounter, err = meter.Int64Counter(
		"transcripts_knowledge_ingest_rejected_total",
		metric.WithDescription("Number of transcripts rejected by validation"),
		metric.WithUnit("1"),
	)
	return err
}

func initRetrievalMetrics(meter metric.Meter) error {
	var err error
	queryLatencyHist, err = meter.Float64Histogram(
		"transcripts_knowledge_query_latency_seconds",
		metric.WithDescription("Latency of passage retrieval"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5),
	)
	if err != nil {
		return err
	}
	retrievalEmptyCounter, err = meter.Int64Counter(
		"transcripts_knowledge_retrieval_empty_total",
		metric.WithDescription("Number of retrievals that returned no passages"),
		metric.WithUnit("1"),
	)
	return err
}
