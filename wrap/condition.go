package wrap

import (
	"context"

	"github.com/a2y-d5l/forge"
	"github.com/a2y-d5l/forge/config"
)

// Condition decides whether a decorated body runs.
type Condition func(ctx context.Context, tc *forge.TaskContext) bool

// WithCondition runs the body of t only when cond holds. Otherwise the body
// returns nil at once and the task counts as succeeded, with setup and
// teardown still run. Use a precondition instead when the task should be
// reported as skipped.
func WithCondition(t *forge.Task, cond Condition) *forge.Task {
	return decorate(t, func(body forge.Body) forge.Body {
		return func(ctx context.Context, tc *forge.TaskContext) error {
			if !cond(ctx, tc) {
				tc.Log.Debug("condition not met, body not run")
				return nil
			}
			return body(ctx, tc)
		}
	})
}

// ConfigCondition holds when key is set in the run configuration to a T for
// which check returns true. A missing key or a value of another type does
// not hold.
//
//	wrap.WithCondition(publish, wrap.ConfigCondition("release", func(on bool) bool { return on }))
func ConfigCondition[T any](key string, check func(T) bool) Condition {
	return func(_ context.Context, tc *forge.TaskContext) bool {
		v, ok := config.Lookup[T](tc.Config, key)
		return ok && check(v)
	}
}

// Precondition adapts a Condition to a task precondition, so that a false
// result skips the task.
func (c Condition) Precondition() forge.ConditionFunc {
	return func(ctx context.Context, tc *forge.TaskContext) (bool, error) {
		return c(ctx, tc), nil
	}
}
