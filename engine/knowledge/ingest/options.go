package ingest

import (
	"time"

	"github.com/compozy/transcripts/engine/knowledge/tokens"
)

const (
	DefaultMinContentChars   = 200
	DefaultRetryAttempts     = 3
	DefaultRetryBase         = 200 * time.Millisecond
	DefaultRetryMax          = 2 * time.Second
	DefaultEnrichmentTimeout = 20 * time.Second
)

// Reason explains why a document was not indexed.
type Reason string

const (
	ReasonInvalidID Reason = "invalid_id"
	ReasonEmptyBody Reason = "empty_body"
	ReasonTooShort  Reason = "too_short"
	ReasonNoChunks  Reason = "no_chunks"
)

// Enrichment task names accepted in Options.Enrichments.
const (
	TaskTokenCount = "token_count"
	TaskSummary    = "summary"
)

// RetrySettings configures exponential backoff around the embed call.
type RetrySettings struct {
	Attempts uint64
	Base     time.Duration
	Max      time.Duration
}

// Options controls ingestion execution details.
type Options struct {
	MinContentChars   int
	Retry             RetrySettings
	Enrichments       []string
	EnrichmentTimeout time.Duration
	// Estimator feeds the token_count enrichment; defaults to the character estimator.
	Estimator tokens.Estimator
}

func (o *Options) withDefaults() Options {
	out := Options{}
	if o != nil {
		out = *o
	}
	if out.MinContentChars < 0 {
		out.MinContentChars = 0
	}
	if out.Retry.Base <= 0 {
		out.Retry.Base = DefaultRetryBase
	}
	if out.Retry.Max < out.Retry.Base {
		out.Retry.Max = max(DefaultRetryMax, out.Retry.Base)
	}
	if out.EnrichmentTimeout <= 0 {
		out.EnrichmentTimeout = DefaultEnrichmentTimeout
	}
	if out.Estimator == nil {
		out.Estimator = tokens.CharEstimator{}
	}
	return out
}

// DefaultOptions returns the service defaults.
func DefaultOptions() Options {
	return Options{
		MinContentChars:   DefaultMinContentChars,
		Retry:             RetrySettings{Attempts: DefaultRetryAttempts, Base: DefaultRetryBase, Max: DefaultRetryMax},
		Enrichments:       []string{TaskTokenCount},
		EnrichmentTimeout: DefaultEnrichmentTimeout,
	}
}
