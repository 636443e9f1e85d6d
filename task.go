package forge

import (
	"context"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/a2y-d5l/forge/config"
	"github.com/a2y-d5l/forge/event"
)

// Body is the executable work of a task.
type Body func(ctx context.Context, tc *TaskContext) error

// ConditionFunc gates a task. Preconditions returning false skip the task;
// postconditions returning false fail it.
type ConditionFunc func(ctx context.Context, tc *TaskContext) (bool, error)

// BeforeFunc runs before setup and may rewrite tc.Args and tc.Kwargs.
// Returning ErrSkip declines the run without failing it.
type BeforeFunc func(ctx context.Context, tc *TaskContext) error

// HookFunc is a setup or teardown hook.
type HookFunc func(ctx context.Context, tc *TaskContext) error

// AfterFunc observes a finished run. Its error is logged and never changes
// the result.
type AfterFunc func(ctx context.Context, tc *TaskContext, res TaskResult) error

// Hooks holds the lifecycle hooks of a task, one list per kind. Hooks of
// one kind run in the order they were added.
type Hooks struct {
	Preconditions  []ConditionFunc
	Before         []BeforeFunc
	Setup          []HookFunc
	Teardown       []HookFunc
	After          []AfterFunc
	Postconditions []ConditionFunc
}

func (h Hooks) clone() Hooks {
	return Hooks{
		Preconditions:  append([]ConditionFunc(nil), h.Preconditions...),
		Before:         append([]BeforeFunc(nil), h.Before...),
		Setup:          append([]HookFunc(nil), h.Setup...),
		Teardown:       append([]HookFunc(nil), h.Teardown...),
		After:          append([]AfterFunc(nil), h.After...),
		Postconditions: append([]ConditionFunc(nil), h.Postconditions...),
	}
}

// Task is a named unit of work.
//
// Dependencies are names and may refer to tasks registered later, or never;
// missing dependencies are dropped when a Plan is built. A task is not
// modified by running it, so one *Task may be run any number of times.
type Task struct {
	Run   Body
	Hooks Hooks
	Name  string
	Desc  string
	Deps  []string
	// ContinueOnError lets a pipeline proceed past this task's failure.
	ContinueOnError bool
}

// NewTask returns a task running body. A nil body does nothing.
func NewTask(name string, body Body) *Task {
	return &Task{Name: name, Run: body}
}

// Describe sets the human-readable description.
func (t *Task) Describe(desc string) *Task {
	t.Desc = desc
	return t
}

// DependOn appends dependency names.
func (t *Task) DependOn(names ...string) *Task {
	t.Deps = append(t.Deps, names...)
	return t
}

// Precondition appends a precondition hook.
func (t *Task) Precondition(f ConditionFunc) *Task {
	t.Hooks.Preconditions = append(t.Hooks.Preconditions, f)
	return t
}

// Before appends a before hook.
func (t *Task) Before(f BeforeFunc) *Task {
	t.Hooks.Before = append(t.Hooks.Before, f)
	return t
}

// Setup appends a setup hook.
func (t *Task) Setup(f HookFunc) *Task {
	t.Hooks.Setup = append(t.Hooks.Setup, f)
	return t
}

// Teardown appends a teardown hook.
func (t *Task) Teardown(f HookFunc) *Task {
	t.Hooks.Teardown = append(t.Hooks.Teardown, f)
	return t
}

// After appends an after hook.
func (t *Task) After(f AfterFunc) *Task {
	t.Hooks.After = append(t.Hooks.After, f)
	return t
}

// Postcondition appends a postcondition hook.
func (t *Task) Postcondition(f ConditionFunc) *Task {
	t.Hooks.Postconditions = append(t.Hooks.Postconditions, f)
	return t
}

// AllowFailure marks the task continue-on-error.
func (t *Task) AllowFailure() *Task {
	t.ContinueOnError = true
	return t
}

// Spec returns an immutable snapshot of t.
func (t *Task) Spec() TaskSpec {
	return TaskSpec{
		Name:            t.Name,
		Desc:            t.Desc,
		Deps:            append([]string(nil), t.Deps...),
		ContinueOnError: t.ContinueOnError,
	}
}

// Clone returns a copy of t whose dependency and hook lists can be appended
// to without affecting t.
func (t *Task) Clone() *Task {
	cp := *t
	cp.Deps = append([]string(nil), t.Deps...)
	cp.Hooks = t.Hooks.clone()
	return &cp
}

// Invoke runs t once with a TaskRunner.
func (t *Task) Invoke(ctx context.Context, opts ...Option) TaskResult {
	return NewTaskRunner(t, opts...).Run(ctx)
}

// Group returns a function that prefixes names with "prefix:". An empty
// prefix leaves names unchanged.
//
//	gotask := forge.Group("go")
//	forge.NewTask(gotask("build"), build) // "go:build"
func Group(prefix string) func(name string) string {
	prefix = strings.TrimSuffix(prefix, ":")
	return func(name string) string {
		if prefix == "" {
			return name
		}
		return prefix + ":" + name
	}
}

// TaskContext is the per-run state handed to a body and its hooks.
type TaskContext struct {
	Task *Task
	// Args and Kwargs are the invocation arguments. Before hooks may rewrite
	// them.
	Args   []any
	Kwargs map[string]any
	// Config is shared by every task of the run.
	Config *config.Config
	// Event is the occurrence that triggered a handler run, nil otherwise.
	Event *event.Context
	// Handler names the event handler running the task, if any.
	Handler string
	RunID   string
	Log     logrus.FieldLogger
	// Out is where the task prints for the user; see WithOutput.
	Out io.Writer
}

// Arg returns positional argument i, or nil.
func (tc *TaskContext) Arg(i int) any {
	if i < 0 || i >= len(tc.Args) {
		return nil
	}
	return tc.Args[i]
}

// Kwarg returns the named argument key, or nil.
func (tc *TaskContext) Kwarg(key string) any {
	return tc.Kwargs[key]
}
