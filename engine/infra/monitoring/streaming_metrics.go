package monitoring

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/compozy/transcripts/engine/infra/monitoring/metrics"
)

// Stream outcomes recorded by RecordOutcome.
const (
	StreamOutcomeCompleted = "completed"
	StreamOutcomeFailed    = "failed"
	StreamOutcomeCanceled  = "canceled"
)

// StreamingMetrics exposes instruments that capture chat SSE stream lifecycle telemetry.
type StreamingMetrics struct {
	activeStreams    metric.Int64UpDownCounter
	streamDuration   metric.Float64Histogram
	firstEventTiming metric.Float64Histogram
	eventsEmitted    metric.Int64Counter
	outcomes         metric.Int64Counter
}

func newStreamingMetrics(meter metric.Meter) (*StreamingMetrics, error) {
	if meter == nil {
		return &StreamingMetrics{}, nil
	}
	active, err := meter.Int64UpDownCounter(
		"transcripts_stream_active_connections",
		metric.WithDescription("Active chat SSE connections"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create stream active connections counter: %w", err)
	}
	duration, err := meter.Float64Histogram(
		"transcripts_stream_connection_duration_seconds",
		metric.WithDescription("Duration of chat SSE connections in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(metrics.StreamDurationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("create stream duration histogram: %w", err)
	}
	ttfe, err := meter.Float64Histogram(
		"transcripts_stream_time_to_first_event_seconds",
		metric.WithDescription("Time between request acceptance and the first event"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(metrics.TimeToFirstEventBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("create time-to-first-event histogram: %w", err)
	}
	events, err := meter.Int64Counter(
		"transcripts_stream_events_total",
		metric.WithDescription("Total SSE events emitted grouped by event type"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create stream events counter: %w", err)
	}
	outcomes, err := meter.Int64Counter(
		"transcripts_stream_outcomes_total",
		metric.WithDescription("Finished chat streams grouped by mode and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("create stream outcomes counter: %w", err)
	}
	return &StreamingMetrics{
		activeStreams:    active,
		streamDuration:   duration,
		firstEventTiming: ttfe,
		eventsEmitted:    events,
		outcomes:         outcomes,
	}, nil
}

func (m *StreamingMetrics) RecordConnect(ctx context.Context, mode string) {
	if m == nil || m.activeStreams == nil {
		return
	}
	m.activeStreams.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}

func (m *StreamingMetrics) RecordDisconnect(ctx context.Context, mode string) {
	if m == nil || m.activeStreams == nil {
		return
	}
	m.activeStreams.Add(ctx, -1, metric.WithAttributes(attribute.String("mode", mode)))
}

func (m *StreamingMetrics) RecordDuration(ctx context.Context, mode string, duration time.Duration) {
	if m == nil || m.streamDuration == nil {
		return
	}
	m.streamDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("mode", mode)))
}

func (m *StreamingMetrics) RecordTimeToFirstEvent(ctx context.Context, mode string, latency time.Duration) {
	if m == nil || m.firstEventTiming == nil {
		return
	}
	m.firstEventTiming.Record(ctx, latency.Seconds(), metric.WithAttributes(attribute.String("mode", mode)))
}

func (m *StreamingMetrics) RecordEvent(ctx context.Context, eventType string) {
	if m == nil || m.eventsEmitted == nil {
		return
	}
	m.eventsEmitted.Add(ctx, 1, metric.WithAttributes(attribute.String("event_type", eventType)))
}

func (m *StreamingMetrics) RecordOutcome(ctx context.Context, mode, outcome string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.Add(
		ctx,
		1,
		metric.WithAttributes(
			attribute.String("mode", mode),
			attribute.String("outcome", outcome),
		),
	)
}
