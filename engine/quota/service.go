// Package quota enforces per-user daily usage limits by plan.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/compozy/transcripts/pkg/logger"
)

const day = 24 * time.Hour

// Repository persists per-day usage counters.
type Repository interface {
	// Count returns the counter for (userID, feature, date), 0 when absent.
	Count(ctx context.Context, userID, feature string, date time.Time) (int, error)
	// Increment adds one to the counter, creating it when needed, and
	// returns the new value.
	Increment(ctx context.Context, userID, feature string, date time.Time) (int, error)
}

// Status is the outcome of a quota check. Degraded means the store could
// not be consulted and the check failed open.
type Status struct {
	Allowed   bool
	Used      int
	Limit     int
	Remaining int
	Unlimited bool
	Degraded  bool
	ResetAt   time.Time
}

type Service struct {
	repo Repository
	cfg  *Config
	now  func() time.Time
}

func NewService(repo Repository, cfg *Config) (*Service, error) {
	if repo == nil {
		return nil, errors.New("quota: repository is required")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if _, ok := cfg.Plans[cfg.DefaultPlan]; !ok {
		return nil, fmt.Errorf("quota: default plan %q is not configured", cfg.DefaultPlan)
	}
	return &Service{repo: repo, cfg: cfg, now: time.Now}, nil
}

// Check reports whether userID may use feature today under plan.
func (s *Service) Check(ctx context.Context, userID, feature, plan string) Status {
	today := s.today()
	status := Status{ResetAt: today.Add(day)}
	limit := s.cfg.limitFor(plan, feature)
	if limit == Unlimited {
		status.Allowed = true
		status.Unlimited = true
		status.Limit = Unlimited
		status.Remaining = Unlimited
		return status
	}
	status.Limit = limit
	used, err := s.repo.Count(ctx, userID, feature, today)
	if err != nil {
		logger.FromContext(ctx).Warn("Quota store unavailable, admitting request",
			"feature", feature, "error", err)
		status.Allowed = true
		status.Degraded = true
		status.Remaining = limit
		return status
	}
	status.Used = used
	status.Remaining = max(limit-used, 0)
	status.Allowed = used < limit
	return status
}

// Increment records one use of feature for userID today.
func (s *Service) Increment(ctx context.Context, userID, feature string) error {
	if _, err := s.repo.Increment(ctx, userID, feature, s.today()); err != nil {
		return fmt.Errorf("quota: increment %s: %w", feature, err)
	}
	return nil
}

func (s *Service) today() time.Time {
	now := s.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
