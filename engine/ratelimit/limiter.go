// Package ratelimit enforces per-caller fixed-window request limits.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/compozy/transcripts/pkg/logger"
)

var ErrInvalidCheck = errors.New("ratelimit: identity, endpoint and a positive limit are required")

// Result is the outcome of one admission check.
type Result struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   time.Time
}

// RetryAfter is the wait until the window resets, rounded up to whole
// seconds and never below one second.
func (r Result) RetryAfter(now time.Time) time.Duration {
	wait := r.ResetAt.Sub(now)
	if wait <= 0 {
		return time.Second
	}
	return time.Duration(math.Ceil(wait.Seconds())) * time.Second
}

// Limiter counts requests per identity and endpoint.
type Limiter struct {
	store limiter.Store
	cfg   *Config
	now   func() time.Time
}

// NewLimiter builds a limiter backed by Redis when client is non-nil and
// by an in-process store otherwise.
func NewLimiter(cfg *Config, client redis.UniversalClient) (*Limiter, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := limiter.StoreOptions{
		Prefix:          cfg.Prefix,
		MaxRetry:        cfg.MaxRetry,
		CleanUpInterval: cfg.CleanupInterval,
	}
	if client == nil {
		return NewWithStore(memory.NewStoreWithOptions(opts), cfg), nil
	}
	store, err := sredis.NewStoreWithOptions(client, opts)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: create redis store: %w", err)
	}
	return NewWithStore(store, cfg), nil
}

// NewWithStore wraps an existing limiter store.
func NewWithStore(store limiter.Store, cfg *Config) *Limiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Limiter{store: store, cfg: cfg, now: time.Now}
}

// Allow checks identity against the configured limit for endpoint.
// Endpoints without a configured limit are always admitted.
func (l *Limiter) Allow(ctx context.Context, identity, endpoint string) (Result, error) {
	rate, ok := l.cfg.Endpoints[endpoint]
	if !ok || rate.Disabled {
		return Result{Allowed: true, Limit: -1, Remaining: -1}, nil
	}
	return l.Check(ctx, identity, endpoint, rate.Limit, rate.Period)
}

// Check records one request in the current window for identity:endpoint.
// A failing store admits the request.
func (l *Limiter) Check(
	ctx context.Context,
	identity, endpoint string,
	maxRequests int64,
	window time.Duration,
) (Result, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" || endpoint == "" || maxRequests <= 0 || window <= 0 {
		return Result{}, ErrInvalidCheck
	}
	key := identity + ":" + endpoint
	lctx, err := l.store.Get(ctx, key, limiter.Rate{Period: window, Limit: maxRequests})
	if err != nil {
		logger.FromContext(ctx).Warn("Rate limiter store failed, admitting request",
			"endpoint", endpoint, "error", err)
		recordFailOpen(ctx, endpoint)
		return Result{
			Allowed:   true,
			Limit:     maxRequests,
			Remaining: maxRequests,
			ResetAt:   l.now().Add(window),
		}, nil
	}
	result := Result{
		Allowed:   !lctx.Reached,
		Limit:     lctx.Limit,
		Remaining: lctx.Remaining,
		ResetAt:   time.Unix(lctx.Reset, 0),
	}
	if !result.Allowed {
		result.Remaining = 0
		recordBlocked(ctx, endpoint)
		logger.FromContext(ctx).Debug("Rate limit reached", "endpoint", endpoint, "reset_at", result.ResetAt)
	}
	return result, nil
}
