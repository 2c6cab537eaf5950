// Package retry retries operations with exponential backoff and jitter.
// The CLI uses it when opening network-backed stores, which may still be
// starting when a command runs.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Policy bounds how often and how long an operation is retried.
type Policy struct {
	// Attempts is the total number of calls, including the first.
	Attempts int

	// BaseDelay is the wait after the first failure. It doubles per attempt.
	BaseDelay time.Duration

	// MaxDelay caps any single wait. Zero means no cap.
	MaxDelay time.Duration

	// Jitter spreads each wait by up to this fraction either way (0 to 1).
	Jitter float64
}

// ConnectPolicy is the policy for establishing backend connections. The
// caller bounds the total wait with its context.
func ConnectPolicy() Policy {
	return Policy{
		Attempts:  4,
		BaseDelay: 250 * time.Millisecond,
		MaxDelay:  2 * time.Second,
		Jitter:    0.1,
	}
}

// Backoff returns the wait that follows the given failed attempt (1-based).
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.BaseDelay) * math.Pow(2, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter > 0 {
		d += d * min(p.Jitter, 1) * (rand.Float64()*2 - 1)
	}
	return time.Duration(max(d, 0))
}

// Notify is told about every failure that will be retried.
type Notify func(attempt int, err error, delay time.Duration)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth another attempt. Do stops and returns err
// without the mark.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err carries the Permanent mark.
func IsPermanent(err error) bool {
	var perm *permanentError
	return errors.As(err, &perm)
}

// Do calls op until it succeeds, fails with a Permanent error, runs out of
// attempts or ctx is done. On failure it returns the last error op produced,
// or ctx's error when op never ran.
func Do[T any](ctx context.Context, p Policy, notify Notify, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var last error

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return zero, last
			}
			return zero, err
		}

		v, err := op(ctx)
		if err == nil {
			return v, nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		last = err

		if attempt >= p.Attempts {
			return zero, last
		}

		delay := p.Backoff(attempt)
		if notify != nil {
			notify(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, last
		case <-timer.C:
		}
	}
}
