package llmadapter

import (
	"context"
	"errors"
	"net"
	"regexp"
)

// ErrUpstream matches, via errors.Is, any failure reported by the model
// provider rather than by local storage or validation.
var ErrUpstream = errors.New("llm upstream failure")

// UpstreamError marks err as a provider failure without changing its text.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string        { return e.Err.Error() }
func (e *UpstreamError) Unwrap() error        { return e.Err }
func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// Upstream wraps err as an *UpstreamError; nil stays nil.
func Upstream(err error) error {
	if err == nil {
		return nil
	}
	return &UpstreamError{Err: err}
}

var transientRetryPattern = regexp.MustCompile(
	`(?i)(rate limit|too many requests|\b429\b|\b50[0234]\b|timeout|timed out|temporarily|unavailable|overloaded|connection reset|connection refused|\bEOF\b)`,
)

// IsRetryable reports whether err looks transient. Cancellation never is.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var retryable interface{ Retryable() bool }
	if errors.As(err, &retryable) {
		return retryable.Retryable()
	}
	return transientRetryPattern.MatchString(err.Error())
}
