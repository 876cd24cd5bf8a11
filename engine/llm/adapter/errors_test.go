package llmadapter

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type flaggedError struct{ retry bool }

func (e flaggedError) Error() string   { return "flagged" }
func (e flaggedError) Retryable() bool { return e.retry }

func TestIsRetryable(t *testing.T) {
	t.Run("Should never retry cancellation", func(t *testing.T) {
		assert.False(t, IsRetryable(fmt.Errorf("embed: %w", context.Canceled)))
	})

	t.Run("Should retry deadlines and transient upstream messages", func(t *testing.T) {
		assert.True(t, IsRetryable(context.DeadlineExceeded))
		assert.True(t, IsRetryable(errors.New("API returned unexpected status code: 429")))
		assert.True(t, IsRetryable(errors.New("503 Service Unavailable")))
	})

	t.Run("Should honor an explicit Retryable flag", func(t *testing.T) {
		assert.True(t, IsRetryable(flaggedError{retry: true}))
		assert.False(t, IsRetryable(flaggedError{retry: false}))
	})

	t.Run("Should not retry client errors", func(t *testing.T) {
		assert.False(t, IsRetryable(errors.New("invalid api key")))
		assert.False(t, IsRetryable(nil))
	})
}

func TestUpstream(t *testing.T) {
	t.Run("Should match ErrUpstream and keep the original text", func(t *testing.T) {
		cause := errors.New("503 service unavailable")
		err := fmt.Errorf("ingest: embed passages: %w", Upstream(cause))
		assert.ErrorIs(t, err, ErrUpstream)
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, "ingest: embed passages: 503 service unavailable", err.Error())
	})

	t.Run("Should leave nil untouched", func(t *testing.T) {
		assert.NoError(t, Upstream(nil))
	})
}
