// Package retry runs store operations under a bounded, fixed-delay retry
// budget. Only errors the policy classifies as retryable are retried;
// everything else is returned on the first attempt.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrExhausted wraps the last transient error once every attempt failed.
var ErrExhausted = errors.New("retry budget exhausted")

const (
	DefaultAttempts = 50
	DefaultDelay    = time.Second
)

// Policy is a bounded retry budget.
type Policy struct {
	// Attempts is the total number of calls made, including the first one.
	Attempts int
	// Delay is the fixed sleep between attempts.
	Delay time.Duration
	// Retryable reports whether err is transient. Nil retries nothing.
	Retryable func(error) bool
	Logger    *slog.Logger
}

// Default returns the 50 x 1s policy used for store contention.
func Default(retryable func(error) bool, logger *slog.Logger) Policy {
	return Policy{
		Attempts:  DefaultAttempts,
		Delay:     DefaultDelay,
		Retryable: retryable,
		Logger:    logger,
	}
}

// Do calls fn until it succeeds, fails with a non-retryable error, the
// attempt budget runs out, or ctx is done. op names the operation in logs
// and errors.
func (p Policy) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var b backoff.BackOff = backoff.NewConstantBackOff(p.Delay)
	b = backoff.WithMaxRetries(b, uint64(attempts-1))
	b = backoff.WithContext(b, ctx)

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if p.Retryable == nil || !p.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, d time.Duration) {
		logger.Warn("store busy, retrying", "op", op, "attempt", attempt, "attempts", attempts, "delay", d, "err", err)
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil || p.Retryable == nil || !p.Retryable(err) {
		return err
	}
	return fmt.Errorf("%s: %w after %d attempts: %w", op, ErrExhausted, attempt, err)
}
