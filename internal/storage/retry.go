package storage

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrStorage wraps every error returned after the retry policy gave up.
var ErrStorage = errors.New("storage error")

// RetryConfig is the local retry policy applied to each operation.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// InitialBackoff is the first wait, doubled on every retry up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// DegradeAfter is the number of consecutive failed operations after which
	// the repository reports itself as degraded.
	DegradeAfter int
}

// DefaultRetry returns the policy used when none is configured.
func DefaultRetry() RetryConfig {
	return RetryConfig{
		MaxRetries:     5,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		DegradeAfter:   3,
	}
}

func (c RetryConfig) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.InitialBackoff
	eb.MaxInterval = c.MaxBackoff
	eb.Multiplier = 2
	eb.RandomizationFactor = 0.2
	eb.MaxElapsedTime = 0
	eb.Reset()

	retries := c.MaxRetries
	if retries < 0 {
		retries = 0
	}

	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)
}

// do runs fn under the retry policy and records the outcome in the health tracker.
func (r *Repository) do(ctx context.Context, op string, fn func(context.Context) error) error {
	permanent := false
	attempt := func() error {
		err := fn(ctx)
		if err != nil && !retryable(ctx, err) {
			permanent = true
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Str("op", op).Dur("retry_in", wait).Msg("Storage operation failed, retrying")
	}

	if err := backoff.RetryNotify(attempt, r.retry.backOff(ctx), notify); err != nil {
		switch {
		case ctx.Err() != nil:
		case permanent:
			// the database answered, the statement was rejected
			r.health.ok()
		default:
			r.health.fail()
		}
		return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
	}

	r.health.ok()
	return nil
}

// retryable reports whether another attempt can succeed.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_CONSTRAINT, sqlite3.SQLITE_MISMATCH, sqlite3.SQLITE_ERROR:
			return false
		}
	}

	return true
}

// health counts consecutive failed operations.
type health struct {
	consecutive atomic.Int64
	total       atomic.Int64
	threshold   int64
}

func newHealth() *health {
	return &health{threshold: int64(DefaultRetry().DegradeAfter)}
}

func (h *health) fail() {
	h.consecutive.Add(1)
	h.total.Add(1)
}

func (h *health) ok() {
	h.consecutive.Store(0)
}

// Degraded reports whether the last DegradeAfter operations all failed.
func (r *Repository) Degraded() bool {
	return r.health.consecutive.Load() >= r.health.threshold
}

// Failures returns the number of operations that failed after all retries.
func (r *Repository) Failures() int64 {
	return r.health.total.Load()
}
