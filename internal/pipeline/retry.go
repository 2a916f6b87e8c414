package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/diku-dk/staffeli-go/internal/canvas"
	"github.com/diku-dk/staffeli-go/internal/config"
)

// ErrCancelled is returned by workers that observed the shared
// cancellation signal instead of finishing their work item.
var ErrCancelled = errors.New("pipeline cancelled")

// RetryState bounds one fetch-with-retry call chain. It is local to a
// single call chain and never shared across students.
type RetryState struct {
	Attempt     int
	MaxAttempts int
	BaseDelay   time.Duration
	Jitter      time.Duration
}

// NewRetryState derives the retry knobs from configuration.
func NewRetryState(cfg *config.Config) RetryState {
	rs := RetryState{
		MaxAttempts: cfg.MaxRetries,
		BaseDelay:   cfg.BaseDelay,
		Jitter:      cfg.Jitter,
	}
	if rs.MaxAttempts <= 0 {
		rs.MaxAttempts = config.DefaultMaxRetries
	}
	if rs.BaseDelay <= 0 {
		rs.BaseDelay = config.DefaultBaseDelay
	}
	if rs.Jitter <= 0 {
		rs.Jitter = config.DefaultJitter
	}
	return rs
}

// RateLimitExhaustedError reports that a remote call stayed
// rate-limited through every allowed attempt. The actionable fix is
// usually lowering concurrency.
type RateLimitExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RateLimitExhaustedError) Error() string {
	return fmt.Sprintf("still rate limited after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RateLimitExhaustedError) Unwrap() error { return e.Last }

// withRetry runs one remote call, retrying rate-limit failures with a
// jittered backoff. The backoff wait goes through the Canceller so a
// cancellation elsewhere aborts the wait immediately. Any error that
// is not a rate limit propagates without retry.
func withRetry[T any](ctx context.Context, cancel *Canceller, rs RetryState, logger *slog.Logger, op func(context.Context) (T, error)) (T, error) {
	var zero T
	for {
		if cancel.Signalled() {
			return zero, ErrCancelled
		}
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if !canvas.IsRateLimit(err) {
			return zero, err
		}
		rs.Attempt++
		if rs.Attempt >= rs.MaxAttempts {
			return zero, &RateLimitExhaustedError{Attempts: rs.Attempt, Last: err}
		}
		delay := rs.BaseDelay + time.Duration(rand.Int63n(int64(rs.Jitter)+1))
		logger.Warn("rate limited, backing off",
			slog.Int("attempt", rs.Attempt),
			slog.Int("max_attempts", rs.MaxAttempts),
			slog.Duration("delay", delay.Round(time.Millisecond)))
		if cancel.Wait(delay) {
			return zero, ErrCancelled
		}
	}
}
