package stream

import (
	"context"
	"slices"
	"sync"

	"github.com/a2y-d5l/forge"
)

// Handle is an asynchronous run exposing its events and results as channels.
type Handle struct {
	obs    *Observer
	done   chan struct{}
	result forge.PipelineResult
	err    error
	mu     sync.Mutex
}

func start(obsOpts []Option, run func(obs *Observer) (forge.PipelineResult, error)) *Handle {
	h := &Handle{obs: NewObserver(obsOpts...), done: make(chan struct{})}
	go func() {
		defer close(h.done)
		defer h.obs.Close()

		res, err := run(h.obs)

		h.mu.Lock()
		h.result, h.err = res, err
		h.mu.Unlock()
	}()
	return h
}

// Start runs plan in a goroutine with an Observer attached. opts are passed
// to Plan.Run; obsOpts configure the Observer.
func Start(ctx context.Context, plan *forge.Plan, opts []forge.Option, obsOpts ...Option) *Handle {
	return start(obsOpts, func(obs *Observer) (forge.PipelineResult, error) {
		res := plan.Run(ctx, slices.Concat(opts, []forge.Option{forge.WithObserver(obs)})...)
		return res, res.Ensure()
	})
}

// StartService runs svc in a goroutine with an Observer attached. The
// handle's Wait returns the error of Service.Run and a zero result.
func StartService(ctx context.Context, svc *forge.Service, opts []forge.Option, obsOpts ...Option) *Handle {
	return start(obsOpts, func(obs *Observer) (forge.PipelineResult, error) {
		return forge.PipelineResult{}, svc.Run(ctx, slices.Concat(opts, []forge.Option{forge.WithObserver(obs)})...)
	})
}

// Events returns the event channel. It closes once the run is over.
func (h *Handle) Events() <-chan forge.Event {
	if h == nil {
		return closed[forge.Event]()
	}
	return h.obs.Events()
}

// Results returns the task result channel. It closes once the run is over.
func (h *Handle) Results() <-chan forge.TaskResult {
	if h == nil {
		return closed[forge.TaskResult]()
	}
	return h.obs.Results()
}

// Done is closed when the run completes.
func (h *Handle) Done() <-chan struct{} {
	if h == nil {
		return closed[struct{}]()
	}
	return h.done
}

// Wait blocks until the run completes. For a plan, the error is
// PipelineResult.Ensure.
func (h *Handle) Wait() (forge.PipelineResult, error) {
	if h == nil {
		return forge.PipelineResult{}, context.Canceled
	}
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result, h.err
}

// Drops returns the drop counters of the underlying Observer.
func (h *Handle) Drops() Drops {
	if h == nil {
		return Drops{}
	}
	return h.obs.Drops()
}
