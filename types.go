package forge

import (
	"time"
)

// TaskSpec is an immutable snapshot of a task definition suitable for
// exposing to callers and embedding in events.
//
// TaskSpec never contains executable code. It is safe to retain and reuse
// across runs.
type TaskSpec struct {
	Name            string
	Desc            string
	Deps            []string
	ContinueOnError bool
}

// ResultStatus describes the terminal outcome of a task run.
type ResultStatus uint8

const (
	// ResultUnknown marks a result that was never finalized.
	ResultUnknown ResultStatus = iota

	// ResultSucceeded indicates the body ran and every check passed.
	ResultSucceeded

	// ResultFailed indicates a captured failure; see TaskResult.Err.
	ResultFailed

	// ResultSkipped indicates a hook declined the run. A skip is not a
	// failure.
	ResultSkipped
)

func (s ResultStatus) String() string {
	switch s {
	case ResultSucceeded:
		return "succeeded"
	case ResultFailed:
		return "failed"
	case ResultSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// SkipReason refines why a task ended in ResultSkipped.
type SkipReason uint8

const (
	// SkipNone is the reason of every non-skipped result.
	SkipNone SkipReason = iota

	// SkipPrecondition indicates a precondition returned false.
	SkipPrecondition

	// SkipBeforeHook indicates a task before hook returned ErrSkip.
	SkipBeforeHook

	// SkipPipelineHook indicates a pipeline before-task hook declined the task.
	SkipPipelineHook
)

func (r SkipReason) String() string {
	switch r {
	case SkipPrecondition:
		return "precondition"
	case SkipBeforeHook:
		return "before hook"
	case SkipPipelineHook:
		return "pipeline hook"
	default:
		return ""
	}
}

// TaskResult is a terminal snapshot of one task run.
type TaskResult struct {
	StartedAt time.Time
	// Err is the captured failure, a *TaskError. Nil for success and skips.
	Err             error
	Name            string
	RunID           string
	Duration        time.Duration
	Status          ResultStatus
	SkipReason      SkipReason
	ContinueOnError bool
}

// OK reports whether no failure was captured.
func (r TaskResult) OK() bool {
	return r.Err == nil
}

// Ensure returns the captured failure.
func (r TaskResult) Ensure() error {
	return r.Err
}

// PipelineResult is the outcome of running a Plan.
type PipelineResult struct {
	// Err is an engine-level fault: a panic escaping the task loop or context
	// cancellation between tasks. Task failures live in Tasks.
	Err   error
	RunID string
	// Tasks holds one result per attempted task, in execution order.
	Tasks []TaskResult
	// Unmatched lists requested names that were not registered.
	Unmatched []string
	Duration  time.Duration
	// Canceled is set when a before-pipeline hook stopped the run.
	Canceled bool
}

// OK reports whether the run had no engine fault and every task that is not
// continue-on-error succeeded.
func (r PipelineResult) OK() bool {
	return r.Ensure() == nil
}

// Ensure returns the engine fault, or the first failure of a task that is
// not continue-on-error.
func (r PipelineResult) Ensure() error {
	if r.Err != nil {
		return r.Err
	}
	for _, t := range r.Tasks {
		if !t.OK() && !t.ContinueOnError {
			return t.Err
		}
	}
	return nil
}

// Result returns the result of the named task.
func (r PipelineResult) Result(name string) (TaskResult, bool) {
	for _, t := range r.Tasks {
		if t.Name == name {
			return t, true
		}
	}
	return TaskResult{}, false
}

// EventType describes the type of lifecycle event.
type EventType uint8

const (
	// EventTaskStarted indicates a task run began.
	EventTaskStarted EventType = iota

	// EventTaskFinished indicates a task run finalized with a TaskResult.
	EventTaskFinished

	// EventPipelineStarted indicates a plan run began.
	EventPipelineStarted

	// EventPipelineFinished indicates a plan run finalized with a
	// PipelineResult.
	EventPipelineFinished
)

// Event is a fire-and-forget notification about task and pipeline
// lifecycle.
//
// The payload is snapshot-based so observers cannot mutate engine state.
// Task and Result are set for task events; Pipeline is set for
// EventPipelineFinished.
type Event struct {
	Time     time.Time
	Result   *TaskResult
	Pipeline *PipelineResult
	RunID    string
	// Handler names the event handler that triggered a task run, if any.
	Handler string
	Task    TaskSpec
	Type    EventType
}

// Observer receives lifecycle events.
//
// Pipeline runs emit events from one goroutine in order. Event handlers run
// concurrently, so an Observer shared with a Service must be safe for
// concurrent use.
type Observer interface {
	HandleEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

// HandleEvent calls f(e).
func (f ObserverFunc) HandleEvent(e Event) {
	f(e)
}

// MultiObserver fans out events to multiple observers. Nil observers are
// ignored.
func MultiObserver(obs ...Observer) Observer {
	cp := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			cp = append(cp, o)
		}
	}
	if len(cp) == 0 {
		return ObserverFunc(func(Event) {})
	}
	if len(cp) == 1 {
		return cp[0]
	}

	return ObserverFunc(func(e Event) {
		for _, o := range cp {
			o.HandleEvent(e)
		}
	})
}
