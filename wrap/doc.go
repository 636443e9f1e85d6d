// Package wrap decorates tasks with retries, timeouts and run conditions,
// and lets a task body run a nested pipeline.
//
// Every decorator returns a clone of its task with the body wrapped, so the
// original can still be registered or decorated differently:
//
//	build := forge.NewTask("build", compile)
//	p.Register(wrap.WithRetry(wrap.WithTimeout(build, time.Minute), retry.Policy{MaxRetries: 2}))
//
// Decorators wrap only the body. Hooks of the task run once per task run,
// whatever the decorators do.
package wrap
