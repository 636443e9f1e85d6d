package forge

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrSkip is returned by a before hook to decline the run without failing
	// it. Pipeline-level before hooks return it to cancel the run or a task.
	ErrSkip = errors.New("forge: skipped by hook")

	// ErrPostconditionBroken is the cause of a FailurePostcondition.
	ErrPostconditionBroken = errors.New("postcondition checking broken")

	// ErrDuplicateTask is returned when registering a task name twice.
	ErrDuplicateTask = errors.New("forge: duplicate task")

	// ErrDuplicateHandler is returned when registering a handler name twice.
	ErrDuplicateHandler = errors.New("forge: duplicate event handler")

	// ErrEmptyName is returned when registering a task or handler without a name.
	ErrEmptyName = errors.New("forge: empty name")

	// ErrCycle is matched by every *CycleError.
	ErrCycle = errors.New("forge: dependency cycle")
)

// FailureKind classifies a task failure.
type FailureKind uint8

const (
	// FailureBody is an error or panic from the task body.
	FailureBody FailureKind = iota + 1
	// FailurePostcondition is a postcondition that returned false.
	FailurePostcondition
	// FailureHook is an error or panic from a precondition, before, setup or
	// teardown hook.
	FailureHook
)

func (k FailureKind) String() string {
	switch k {
	case FailureBody:
		return "body"
	case FailurePostcondition:
		return "postcondition"
	case FailureHook:
		return "hook"
	default:
		return "unknown"
	}
}

// TaskError is the failure captured in a TaskResult.
type TaskError struct {
	Task string
	Kind FailureKind
	Err  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %q: %s failed: %v", e.Task, e.Kind, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// Cause lets errors.Cause from pkg/errors reach the underlying error.
func (e *TaskError) Cause() error { return e.Err }

// CycleError reports the tasks left unordered by a dependency cycle.
type CycleError struct {
	Tasks []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("forge: dependency cycle among tasks: %s", strings.Join(e.Tasks, ", "))
}

func (e *CycleError) Is(target error) bool { return target == ErrCycle }

// HandlerError reports a non-safe event handler that stopped.
type HandlerError struct {
	Handler string
	// Source is true when the event source failed rather than the handler task.
	Source bool
	Err    error
}

func (e *HandlerError) Error() string {
	if e.Source {
		return fmt.Sprintf("event handler %q: source failed: %v", e.Handler, e.Err)
	}
	return fmt.Sprintf("event handler %q: %v", e.Handler, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

func (e *HandlerError) Cause() error { return e.Err }

// protect runs fn and turns a panic into an error.
func protect(fn func() error) (err error) {
	defer func() {
		if v := recover(); v != nil {
			if perr, ok := v.(error); ok {
				err = errors.Wrap(perr, "panic")
				return
			}
			err = errors.Errorf("panic: %v", v)
		}
	}()
	return fn()
}
