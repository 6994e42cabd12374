package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"counseling/backend/internal/store"
)

func TestWithExponentialBackoff_SucceedsWithoutRetry(t *testing.T) {
	calls := 0
	err := WithExponentialBackoff(context.Background(), func(context.Context) error {
		calls++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithExponentialBackoff_RetriesSerializationFailure(t *testing.T) {
	calls := 0
	err := WithExponentialBackoff(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("commit: %w", store.ErrSerialization)
		}
		return nil
	}, WithBaseDelay(time.Millisecond))

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithExponentialBackoff_FailsFastOnOtherErrors(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := WithExponentialBackoff(context.Background(), func(context.Context) error {
		calls++
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestWithExponentialBackoff_StopsAtMaxAttempts(t *testing.T) {
	calls := 0
	err := WithExponentialBackoff(context.Background(), func(context.Context) error {
		calls++
		return store.ErrSerialization
	}, WithMaxAttempts(3), WithBaseDelay(0), WithJitterFactor(0))

	assert.ErrorIs(t, err, store.ErrSerialization)
	assert.Equal(t, 3, calls)
}

func TestWithExponentialBackoff_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := WithExponentialBackoff(ctx, func(context.Context) error {
		calls++
		cancel()
		return store.ErrSerialization
	}, WithBaseDelay(time.Second))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestWithExponentialBackoff_InvalidOptions(t *testing.T) {
	noop := func(context.Context) error { return nil }

	assert.ErrorIs(t, WithExponentialBackoff(context.Background(), noop, WithMaxAttempts(0)), ErrInvalidMaxAttempts)
	assert.ErrorIs(t, WithExponentialBackoff(context.Background(), noop, WithBaseDelay(-time.Second)), ErrNegativeBaseDelay)
	assert.ErrorIs(t, WithExponentialBackoff(context.Background(), noop, WithJitterFactor(1.5)), ErrInvalidJitterFactor)
}
