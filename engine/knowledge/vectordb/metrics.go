package vectordb

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	vectorMetricsOnce   sync.Once
	vectorMetricsErr    error
	vectorSearchLatency metric.Float64Histogram
	vectorResultsCount  metric.Int64Histogram
	vectorErrorsTotal   metric.Int64Counter
)

// ensureVectorMetrics lazily creates instruments on the global meter
// provider, which is a no-op unless one is installed.
func ensureVectorMetrics() error {
	vectorMetricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("transcripts.knowledge.vectordb")
		vectorSearchLatency, vectorMetricsErr = meter.Float64Histogram(
			"transcripts_vectordb_search_seconds",
			metric.WithDescription("Vector similarity search latency"),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2),
		)
		if vectorMetricsErr != nil {
			return
		}
		vectorResultsCount, vectorMetricsErr = meter.Int64Histogram(
			"transcripts_vectordb_results_per_search",
			metric.WithDescription("Number of passages returned per search"),
			metric.WithExplicitBucketBoundaries(0, 1, 5, 10, 20, 50),
		)
		if vectorMetricsErr != nil {
			return
		}
		vectorErrorsTotal, vectorMetricsErr = meter.Int64Counter(
			"transcripts_vectordb_errors_total",
			metric.WithDescription("Vector store operation errors"),
		)
	})
	return vectorMetricsErr
}

func recordVectorSearch(ctx context.Context, provider string, duration time.Duration, results int) {
	if err := ensureVectorMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("provider", provider))
	vectorSearchLatency.Record(ctx, duration.Seconds(), attrs)
	vectorResultsCount.Record(ctx, int64(results), attrs)
}

func recordVectorError(ctx context.Context, operation string) {
	if err := ensureVectorMetrics(); err != nil {
		return
	}
	vectorErrorsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
}
