package ratelimit

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	rateLimitBlocksTotal metric.Int64Counter
	rateLimitFailOpen    metric.Int64Counter
	metricsOnce          sync.Once
)

func ensureMetrics() {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("transcripts.ratelimit")
		rateLimitBlocksTotal, _ = meter.Int64Counter(
			"rate_limit_blocks_total",
			metric.WithDescription("Total number of requests blocked by rate limiting"),
			metric.WithUnit("1"),
		)
		rateLimitFailOpen, _ = meter.Int64Counter(
			"rate_limit_fail_open_total",
			metric.WithDescription("Total number of checks admitted because the limiter store failed"),
			metric.WithUnit("1"),
		)
	})
}

func recordBlocked(ctx context.Context, endpoint string) {
	ensureMetrics()
	if rateLimitBlocksTotal != nil {
		rateLimitBlocksTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("endpoint", endpoint)))
	}
}

func recordFailOpen(ctx context.Context, endpoint string) {
	ensureMetrics()
	if rateLimitFailOpen != nil {
		rateLimitFailOpen.Add(ctx, 1, metric.WithAttributes(attribute.String("endpoint", endpoint)))
	}
}
