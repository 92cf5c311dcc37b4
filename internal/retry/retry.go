// Package retry implements bounded retry with exponential backoff for
// remote provider calls. Call sites declare their policy as data
// instead of hand-rolling loops.
package retry

import (
	"context"
	"time"

	"github.com/shiftdesk/warm-transfer/internal/clock"
)

// Policy configures one call site's retry behavior.
type Policy struct {
	// MaxAttempts is the total number of tries, minimum 1.
	MaxAttempts int

	// InitialDelay is the wait before the second attempt. The delay
	// doubles on each further attempt. Defaults to one second.
	InitialDelay time.Duration

	// MaxDelay caps the backoff. Zero means uncapped.
	MaxDelay time.Duration

	// Retryable classifies errors. A nil predicate retries everything.
	// Returning false stops the loop and surfaces the error as is.
	Retryable func(error) bool

	// OnRetry, if set, is called after a failed attempt that will be
	// retried, before the backoff wait.
	OnRetry func(attempt int, err error)
}

// Do runs fn until it succeeds, fails permanently, exhausts
// MaxAttempts, or ctx is done. Backoff waits go through clk so tests
// can drive them.
func Do(ctx context.Context, clk clock.Clock, p Policy, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-clk.After(p.delay(attempt)):
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if attempt < attempts && p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
	}
	return lastErr
}

// delay returns the backoff before the given attempt (attempt >= 2).
func (p Policy) delay(attempt int) time.Duration {
	d := p.InitialDelay
	if d <= 0 {
		d = time.Second
	}
	d <<= uint(attempt - 2)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}
