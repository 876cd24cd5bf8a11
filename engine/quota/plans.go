package quota

import "strings"

const (
	FeatureChat   = "chat"
	FeatureIngest = "ingest"

	PlanFree      = "free"
	PlanPro       = "pro"
	PlanUnlimited = "unlimited"

	// Unlimited marks a plan feature as unmetered.
	Unlimited = -1
)

// Config maps plan names to per-feature daily limits.
type Config struct {
	DefaultPlan string
	Plans       map[string]map[string]int
}

func DefaultConfig() *Config {
	return &Config{
		DefaultPlan: PlanFree,
		Plans: map[string]map[string]int{
			PlanFree:      {FeatureChat: 20, FeatureIngest: 5},
			PlanPro:       {FeatureChat: 500, FeatureIngest: 100},
			PlanUnlimited: {FeatureChat: Unlimited, FeatureIngest: Unlimited},
		},
	}
}

// limitFor returns the daily limit of feature on plan. Unknown plans use the
// default plan; a feature the plan does not list is unmetered.
func (c *Config) limitFor(plan, feature string) int {
	limits, ok := c.Plans[strings.ToLower(strings.TrimSpace(plan))]
	if !ok {
		limits = c.Plans[c.DefaultPlan]
	}
	limit, ok := limits[feature]
	if !ok || limit < 0 {
		return Unlimited
	}
	return limit
}
