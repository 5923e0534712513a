// Package retry provides the single retry policy shared by every source
// client, parameterized by attempt count and delay function instead of
// re-implementing the loop per call site.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agrovale/climate-collector/internal/domain"
)

// DelayFunc computes the pause before retry number attempt (zero-based: the
// delay taken after the first failure has attempt == 0).
type DelayFunc func(attempt int) time.Duration

// Fixed returns the same delay for every retry.
func Fixed(d time.Duration) DelayFunc {
	return func(int) time.Duration { return d }
}

// Exponential doubles the base delay on each retry: base, 2*base, 4*base...
func Exponential(base time.Duration) DelayFunc {
	return func(attempt int) time.Duration {
		return base << attempt
	}
}

// Policy bundles the attempt budget with the delay schedule.
type Policy struct {
	MaxAttempts int
	Delay       DelayFunc
}

// Do runs fn until it succeeds, returns a permanent error, the context is
// cancelled, or MaxAttempts is exhausted. Sleeps go through the process
// clock so tests can use a fake.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			if d := p.Delay(attempt - 1); d > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-domain.Clock().After(d):
				}
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		lastErr = err
	}
	return fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}

// Permanent wraps an error so Do stops retrying and returns it immediately,
// e.g. for HTTP 4xx responses that will not change on retry.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }
