package wrap

import (
	"context"

	"github.com/a2y-d5l/forge"
	"github.com/a2y-d5l/forge/retry"
)

// WithRetry reruns the body of t under p until it succeeds or p gives up.
// Retries are logged on the task logger unless p has its own OnRetry.
//
// The body sees the same TaskContext on every attempt, so anything it keeps
// there survives between attempts.
func WithRetry(t *forge.Task, p retry.Policy) *forge.Task {
	if p.MaxRetries <= 0 {
		return t
	}
	return decorate(t, func(body forge.Body) forge.Body {
		return func(ctx context.Context, tc *forge.TaskContext) error {
			policy := p
			if policy.OnRetry == nil {
				policy.OnRetry = func(attempt int, err error) {
					tc.Log.WithError(err).WithField("retry", attempt+1).Warn("task body failed, retrying")
				}
			}
			return retry.Do(ctx, policy, func(ctx context.Context, _ int) error {
				return body(ctx, tc)
			})
		}
	})
}
