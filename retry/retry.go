// Package retry re-runs an operation according to a Policy.
//
// It backs command retries and the wrap.WithRetry task decorator:
//
//	err := retry.Do(ctx, retry.Policy{
//	    MaxRetries: 3,
//	    Backoff:    retry.Exponential{Base: 100 * time.Millisecond, Max: 5 * time.Second},
//	}, func(ctx context.Context, attempt int) error {
//	    return push(ctx)
//	})
package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/pkg/errors"
)

// Policy configures Do.
type Policy struct {
	// MaxRetries is the number of attempts after the first one. 3 means up to
	// four attempts in total.
	MaxRetries int

	// Backoff yields the delay before each retry. Nil retries immediately.
	Backoff Backoff

	// ShouldRetry filters retryable errors. Nil retries every error.
	ShouldRetry func(error) bool

	// OnRetry runs before each retry; attempt is 0 for the first retry.
	OnRetry func(attempt int, err error)
}

// Backoff yields the delay before retry attempt (0-indexed). Returning false
// stops retrying.
type Backoff interface {
	Next(attempt int) (time.Duration, bool)
}

// Constant waits Delay between attempts.
type Constant struct {
	Delay time.Duration
}

func (c Constant) Next(int) (time.Duration, bool) {
	return c.Delay, true
}

// Exponential waits min(Base * Multiplier^n, Max), with optional ±Jitter.
type Exponential struct {
	Base time.Duration
	Max  time.Duration
	// Multiplier defaults to 2.
	Multiplier float64
	// Jitter in [0, 1]; 0.1 means ±10%.
	Jitter float64
}

func (e Exponential) Next(attempt int) (time.Duration, bool) {
	m := e.Multiplier
	if m == 0 {
		m = 2
	}

	delay := float64(e.Base) * math.Pow(m, float64(attempt))
	if e.Jitter > 0 {
		//nolint:gosec // jitter needs no cryptographic randomness
		delay *= 1 + e.Jitter*(2*rand.Float64()-1)
	}
	if e.Max > 0 && time.Duration(delay) > e.Max {
		delay = float64(e.Max)
	}
	return time.Duration(delay), true
}

// Linear waits min(Initial + n*Increment, Max).
type Linear struct {
	Initial   time.Duration
	Increment time.Duration
	Max       time.Duration
}

func (l Linear) Next(attempt int) (time.Duration, bool) {
	delay := l.Initial + time.Duration(attempt)*l.Increment
	if l.Max > 0 && delay > l.Max {
		delay = l.Max
	}
	return delay, true
}

// Do calls fn until it succeeds or the policy gives up, and returns the last
// error from fn. If ctx ends between attempts the context error is returned.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) error {
	var last error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		last = fn(ctx, attempt)
		if last == nil {
			return nil
		}
		if p.ShouldRetry != nil && !p.ShouldRetry(last) {
			return last
		}
		if attempt == p.MaxRetries {
			break
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, last)
		}
		delay, ok := next(p.Backoff, attempt)
		if !ok {
			break
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
	return last
}

func next(b Backoff, attempt int) (time.Duration, bool) {
	if b == nil {
		return 0, true
	}
	return b.Next(attempt)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// OnAny retries every non-nil error.
func OnAny(err error) bool {
	return err != nil
}

// OnTimeout retries context.DeadlineExceeded.
func OnTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// OnTemporary retries errors reporting Temporary() == true.
func OnTemporary(err error) bool {
	var t interface{ Temporary() bool }
	if errors.As(err, &t) {
		return t.Temporary()
	}
	return false
}

// Never disables retries while keeping OnRetry wiring in place.
func Never(error) bool {
	return false
}

// On retries errors matching any of targets.
func On(targets ...error) func(error) bool {
	return func(err error) bool {
		for _, target := range targets {
			if errors.Is(err, target) {
				return true
			}
		}
		return false
	}
}
