package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"counseling/backend/internal/store"
)

const (
	defaultMaxAttempts  = 5
	defaultBaseDelay    = 10 * time.Millisecond
	defaultJitterFactor = 0.3
)

var (
	ErrInvalidMaxAttempts  = errors.New("max attempts must be positive")
	ErrNegativeBaseDelay   = errors.New("base delay must not be negative")
	ErrInvalidJitterFactor = errors.New("jitter factor must be between 0.0 and 1.0")
)

type Func func(ctx context.Context) error

type config struct {
	maxAttempts  int
	baseDelay    time.Duration
	jitterFactor float64
	retryable    func(error) bool
}

type Option func(*config) error

// WithExponentialBackoff runs fn until it succeeds, fails with a non-retryable
// error, or runs out of attempts. Delays double from the base delay with jitter.
// By default only store.ErrSerialization is retried.
func WithExponentialBackoff(ctx context.Context, fn Func, options ...Option) error {
	cfg := &config{
		maxAttempts:  defaultMaxAttempts,
		baseDelay:    defaultBaseDelay,
		jitterFactor: defaultJitterFactor,
		retryable:    IsSerializationFailure,
	}
	for _, opt := range options {
		if err := opt(cfg); err != nil {
			return err
		}
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = cfg.baseDelay
	exp.RandomizationFactor = cfg.jitterFactor
	exp.Multiplier = 2
	exp.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(cfg.maxAttempts-1)), ctx)

	return backoff.Retry(func() error {
		err := fn(ctx)
		if err != nil && !cfg.retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

func IsSerializationFailure(err error) bool {
	return errors.Is(err, store.ErrSerialization)
}

func WithMaxAttempts(attempts int) Option {
	return func(c *config) error {
		if attempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		c.maxAttempts = attempts
		return nil
	}
}

func WithBaseDelay(delay time.Duration) Option {
	return func(c *config) error {
		if delay < 0 {
			return ErrNegativeBaseDelay
		}
		c.baseDelay = delay
		return nil
	}
}

func WithJitterFactor(factor float64) Option {
	return func(c *config) error {
		if factor < 0.0 || factor > 1.0 {
			return ErrInvalidJitterFactor
		}
		c.jitterFactor = factor
		return nil
	}
}

// WithRetryable replaces the predicate that decides which errors are retried.
func WithRetryable(fn func(error) bool) Option {
	return func(c *config) error {
		if fn != nil {
			c.retryable = fn
		}
		return nil
	}
}
