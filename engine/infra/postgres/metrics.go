package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const postgresMeterName = "transcripts.postgres"

// poolObserver reports pgxpool statistics through asynchronous instruments.
// One observer is registered per Store and unregistered on Close.
type poolObserver struct {
	registration metric.Registration
}

func observePool(pool *pgxpool.Pool, database string) (*poolObserver, error) {
	meter := otel.GetMeterProvider().Meter(postgresMeterName)
	open, err := meter.Int64ObservableGauge(
		"transcripts_postgres_connections_open",
		metric.WithDescription("Open connections in the passage store pool"),
	)
	if err != nil {
		return nil, err
	}
	inUse, err := meter.Int64ObservableGauge(
		"transcripts_postgres_connections_in_use",
		metric.WithDescription("Connections currently acquired from the pool"),
	)
	if err != nil {
		return nil, err
	}
	maxConns, err := meter.Int64ObservableGauge(
		"transcripts_postgres_connections_max",
		metric.WithDescription("Configured pool size"),
	)
	if err != nil {
		return nil, err
	}
	emptyAcquires, err := meter.Int64ObservableCounter(
		"transcripts_postgres_empty_acquires_total",
		metric.WithDescription("Acquires that had to wait for a connection"),
	)
	if err != nil {
		return nil, err
	}
	waitSeconds, err := meter.Float64ObservableCounter(
		"transcripts_postgres_acquire_wait_seconds_total",
		metric.WithDescription("Cumulative time spent waiting for a pool connection"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	attrs := metric.WithAttributes(attribute.String("database", database))
	reg, err := meter.RegisterCallback(
		func(_ context.Context, o metric.Observer) error {
			stats := pool.Stat()
			o.ObserveInt64(open, int64(stats.TotalConns()), attrs)
			o.ObserveInt64(inUse, int64(stats.AcquiredConns()), attrs)
			o.ObserveInt64(maxConns, int64(stats.MaxConns()), attrs)
			o.ObserveInt64(emptyAcquires, stats.EmptyAcquireCount(), attrs)
			o.ObserveFloat64(waitSeconds, stats.EmptyAcquireWaitTime().Seconds(), attrs)
			return nil
		},
		open, inUse, maxConns, emptyAcquires, waitSeconds,
	)
	if err != nil {
		return nil, fmt.Errorf("register pool callback: %w", err)
	}
	return &poolObserver{registration: reg}, nil
}

func (p *poolObserver) stop() {
	if p == nil || p.registration == nil {
		return
	}
	_ = p.registration.Unregister()
}

func databaseLabel(cfg *Config) string {
	if cfg.DBName != "" {
		return cfg.DBName
	}
	return "default"
}
