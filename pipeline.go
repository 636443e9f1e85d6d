package forge

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/a2y-d5l/forge/config"
)

// PipelineContext is handed to before- and after-pipeline hooks.
type PipelineContext struct {
	Plan   *Plan
	Config *config.Config
	Log    logrus.FieldLogger
	RunID  string
}

// PipelineHookFunc runs before a pipeline. Returning any error, ErrSkip
// included, cancels the run without failing it.
type PipelineHookFunc func(ctx context.Context, pc *PipelineContext) error

// PipelineAfterFunc runs after a pipeline, whatever its outcome. Its error
// is logged.
type PipelineAfterFunc func(ctx context.Context, pc *PipelineContext, res PipelineResult) error

// PipelineHooks are the pipeline-wide hooks. BeforeTask hooks get the
// TaskContext of the task about to run; returning any error skips just that
// task. AfterTask errors are logged.
type PipelineHooks struct {
	Before     []PipelineHookFunc
	After      []PipelineAfterFunc
	BeforeTask []BeforeFunc
	AfterTask  []AfterFunc
}

func (h PipelineHooks) clone() PipelineHooks {
	return PipelineHooks{
		Before:     append([]PipelineHookFunc(nil), h.Before...),
		After:      append([]PipelineAfterFunc(nil), h.After...),
		BeforeTask: append([]BeforeFunc(nil), h.BeforeTask...),
		AfterTask:  append([]AfterFunc(nil), h.AfterTask...),
	}
}

func (h *PipelineHooks) merge(o PipelineHooks) {
	h.Before = append(h.Before, o.Before...)
	h.After = append(h.After, o.After...)
	h.BeforeTask = append(h.BeforeTask, o.BeforeTask...)
	h.AfterTask = append(h.AfterTask, o.AfterTask...)
}

// Pipeline is a registry of tasks plus pipeline-wide hooks. It is safe for
// concurrent use.
type Pipeline struct {
	tasks map[string]*Task
	order map[string]int
	names []string
	hooks PipelineHooks
	mu    sync.RWMutex
}

// NewPipeline returns an empty pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{
		tasks: make(map[string]*Task),
		order: make(map[string]int),
	}
}

// Register adds tasks. It fails on an empty or already registered name, and
// registers nothing from that task on.
func (p *Pipeline) Register(tasks ...*Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, t := range tasks {
		if t == nil || strings.TrimSpace(t.Name) == "" {
			return errors.WithStack(ErrEmptyName)
		}
		if _, ok := p.tasks[t.Name]; ok {
			return errors.Wrapf(ErrDuplicateTask, "register %q", t.Name)
		}
		p.order[t.Name] = len(p.names)
		p.names = append(p.names, t.Name)
		p.tasks[t.Name] = t
	}
	return nil
}

// Task returns the registered task called name.
func (p *Pipeline) Task(name string) (*Task, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.tasks[name]
	return t, ok
}

// Tasks returns the registered tasks in registration order.
func (p *Pipeline) Tasks() []*Task {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Task, 0, len(p.names))
	for _, name := range p.names {
		out = append(out, p.tasks[name])
	}
	return out
}

// Len returns the number of registered tasks.
func (p *Pipeline) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.names)
}

// BeforePipeline adds a before-pipeline hook.
func (p *Pipeline) BeforePipeline(f PipelineHookFunc) *Pipeline {
	return p.Hook(PipelineHooks{Before: []PipelineHookFunc{f}})
}

// AfterPipeline adds an after-pipeline hook.
func (p *Pipeline) AfterPipeline(f PipelineAfterFunc) *Pipeline {
	return p.Hook(PipelineHooks{After: []PipelineAfterFunc{f}})
}

// BeforeTask adds a hook run before every task.
func (p *Pipeline) BeforeTask(f BeforeFunc) *Pipeline {
	return p.Hook(PipelineHooks{BeforeTask: []BeforeFunc{f}})
}

// AfterTask adds a hook run after every task that ran.
func (p *Pipeline) AfterTask(f AfterFunc) *Pipeline {
	return p.Hook(PipelineHooks{AfterTask: []AfterFunc{f}})
}

// Hook appends every hook in h.
func (p *Pipeline) Hook(h PipelineHooks) *Pipeline {
	p.mu.Lock()
	p.hooks.merge(h)
	p.mu.Unlock()
	return p
}

// Copy returns a pipeline with the same tasks and hooks. Tasks are cloned,
// so adding hooks or dependencies to the copy leaves p unchanged.
func (p *Pipeline) Copy() *Pipeline {
	p.mu.RLock()
	defer p.mu.RUnlock()

	cp := NewPipeline()
	for _, name := range p.names {
		cp.order[name] = len(cp.names)
		cp.names = append(cp.names, name)
		cp.tasks[name] = p.tasks[name].Clone()
	}
	cp.hooks = p.hooks.clone()
	return cp
}

// Build resolves names into a Plan: the requested tasks plus everything they
// depend on, transitively, in dependency order. Tasks that do not depend on
// each other run in registration order.
//
// Requested names that are not registered are reported by Plan.Unmatched.
// Dependency names that are not registered are ignored. A dependency cycle
// fails with a *CycleError.
func (p *Pipeline) Build(names ...string) (*Plan, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	plan, err := resolve(p.tasks, p.order, names)
	if err != nil {
		return nil, err
	}
	plan.hooks = p.hooks.clone()
	return plan, nil
}

// Invoke builds a plan for names and runs it. The error is non-nil only when
// the plan cannot be built.
func (p *Pipeline) Invoke(ctx context.Context, names []string, opts ...Option) (PipelineResult, error) {
	plan, err := p.Build(names...)
	if err != nil {
		return PipelineResult{}, err
	}
	return plan.Run(ctx, opts...), nil
}
