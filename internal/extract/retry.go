package extract

import (
	"context"
	"log/slog"
	"time"
)

// RetryPolicy retries transient failures with exponential backoff.
// Non-retryable errors are returned after the first attempt.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Retryable   func(error) bool
}

// DefaultRetryPolicy matches the service contract: up to 3 attempts,
// backoff 1s doubling, capped at 9s, transient failures only.
func DefaultRetryPolicy(retryable func(error) bool) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    9 * time.Second,
		Retryable:   retryable,
	}
}

// Do runs fn until it succeeds, fails permanently, or attempts run out.
// The last error is returned either way.
func (p RetryPolicy) Do(ctx context.Context, log *slog.Logger, fn func() error) error {
	var err error
	delay := p.BaseDelay
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if p.Retryable == nil || !p.Retryable(err) {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}
		if log != nil {
			log.Warn("extract.retry", "attempt", attempt, "delay_ms", delay.Milliseconds(), "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return err
}
