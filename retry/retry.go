// Package retry wraps transient operations, mostly network fetches, with a
// bounded exponential backoff.
package retry

import (
	"context"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultMaxAttempts     = 3
	defaultInitialInterval = 5 * time.Second
	defaultMultiplier      = 2.0
)

// OperationFn is the unit of work being retried
type OperationFn func(ctx context.Context) error

type options struct {
	maxAttempts     int
	initialInterval time.Duration
}

// Option customizes retry behavior
type Option func(*options)

// WithMaxAttempts overrides the total attempt count (default 3)
func WithMaxAttempts(n int) Option {
	return func(o *options) {
		o.maxAttempts = n
	}
}

// WithInitialInterval overrides the first backoff delay (default 5s)
func WithInitialInterval(d time.Duration) Option {
	return func(o *options) {
		o.initialInterval = d
	}
}

// Do runs op up to 3 times with exponential backoff (5s, then 10s) between
// attempts. The final error is returned after the attempts are exhausted.
// Context cancellation aborts the backoff wait.
func Do(ctx context.Context, op OperationFn, opts ...Option) error {
	o := &options{
		maxAttempts:     defaultMaxAttempts,
		initialInterval: defaultInitialInterval,
	}
	for _, opt := range opts {
		opt(o)
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = o.initialInterval
	expo.Multiplier = defaultMultiplier
	expo.RandomizationFactor = 0
	expo.MaxElapsedTime = 0

	attempt := 0
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(o.maxAttempts-1)), ctx)
	return backoff.Retry(func() error {
		attempt++
		err := op(ctx)
		if err != nil {
			log.Printf("⚠️ Attempt %d/%d failed: %v", attempt, o.maxAttempts, err)
		}
		return err
	}, policy)
}
