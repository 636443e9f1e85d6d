package wrap

import (
	"context"
	"time"

	"github.com/a2y-d5l/forge"
)

// WithTimeout bounds each run of the body of t by d. A d <= 0 returns t
// unchanged. A shorter deadline on the parent context still wins.
//
// Combined with WithRetry, the order decides what the timeout covers:
//
//	wrap.WithRetry(wrap.WithTimeout(t, d), p) // d per attempt
//	wrap.WithTimeout(wrap.WithRetry(t, p), d) // d for all attempts
func WithTimeout(t *forge.Task, d time.Duration) *forge.Task {
	if d <= 0 {
		return t
	}
	return decorate(t, func(body forge.Body) forge.Body {
		return func(ctx context.Context, tc *forge.TaskContext) error {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return body(ctx, tc)
		}
	})
}

// decorate returns a clone of t whose body is wrapped by w. A nil body is
// treated as one that does nothing.
func decorate(t *forge.Task, w func(forge.Body) forge.Body) *forge.Task {
	cp := t.Clone()
	body := cp.Run
	if body == nil {
		body = func(context.Context, *forge.TaskContext) error { return nil }
	}
	cp.Run = w(body)
	return cp
}
