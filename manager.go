package forge

import (
	"context"
	"fmt"
	"slices"

	"github.com/pkg/errors"

	"github.com/a2y-d5l/forge/config"
)

// DefaultTask is run by Manager.Execute when no task is named.
const DefaultTask = "default"

// Manager ties together the pipeline, the event service and the
// configuration of one program. Construct one per run; nothing in forge is
// process-global.
type Manager struct {
	Pipeline *Pipeline
	Service  *Service
	Config   *config.Config
	opts     []Option
}

// NewManager returns a manager with an empty pipeline and service. opts
// apply to every Execute and Serve call; WithConfig sets the shared
// configuration.
func NewManager(opts ...Option) *Manager {
	cfg := newRunConfig(opts)
	return &Manager{
		Pipeline: NewPipeline(),
		Service:  NewService(),
		Config:   cfg.config,
		opts:     slices.Clone(opts),
	}
}

// Register adds tasks to the pipeline.
func (m *Manager) Register(tasks ...*Task) error {
	return m.Pipeline.Register(tasks...)
}

// Handle adds event handlers to the service.
func (m *Manager) Handle(handlers ...*EventHandler) error {
	return m.Service.Register(handlers...)
}

// Hook adds pipeline-wide hooks.
func (m *Manager) Hook(h PipelineHooks) *Manager {
	m.Pipeline.Hook(h)
	return m
}

// LoadBuiltin registers the built-in tasks that are not already taken:
//
//	list   prints every registered task with its description
//	serve  runs the event service until it finishes
func (m *Manager) LoadBuiltin() {
	for _, t := range []*Task{
		NewTask("list", listTasks).Describe("List all defined tasks."),
		NewTask("serve", serve).Describe("Start event-based service."),
	} {
		if _, ok := m.Pipeline.Task(t.Name); ok {
			continue
		}
		_ = m.Pipeline.Register(t)
	}
}

func listTasks(_ context.Context, tc *TaskContext) error {
	m := Execution(tc.Config).Manager()
	if m == nil {
		return errors.New("list: no manager in execution state")
	}
	for _, t := range m.Pipeline.Tasks() {
		if _, err := fmt.Fprintf(tc.Out, "%s\t%s\n", t.Name, t.Desc); err != nil {
			return err
		}
	}
	return nil
}

func serve(ctx context.Context, tc *TaskContext) error {
	m := Execution(tc.Config).Manager()
	if m == nil {
		return errors.New("serve: no manager in execution state")
	}
	return m.Serve(ctx)
}

func (m *Manager) runOptions(extra []Option) []Option {
	return slices.Concat(m.opts, extra, []Option{WithConfig(m.Config)})
}

// Build resolves names against the pipeline, defaulting to DefaultTask.
func (m *Manager) Build(names ...string) (*Plan, error) {
	if len(names) == 0 {
		names = []string{DefaultTask}
	}
	return m.Pipeline.Build(names...)
}

// Execute runs the named tasks, or DefaultTask. The error is non-nil only
// when the plan cannot be built.
func (m *Manager) Execute(ctx context.Context, names []string, opts ...Option) (PipelineResult, error) {
	plan, err := m.Build(names...)
	if err != nil {
		return PipelineResult{}, err
	}

	defer Execution(m.Config).publish(m)()

	return plan.Run(ctx, m.runOptions(opts)...), nil
}

// Serve runs the event service with the manager's configuration.
func (m *Manager) Serve(ctx context.Context, opts ...Option) error {
	if state := Execution(m.Config); state.Manager() == nil {
		defer state.publish(m)()
	}
	return m.Service.Run(ctx, m.runOptions(opts)...)
}

// Copy returns an independent manager with copies of the pipeline, service
// and configuration.
func (m *Manager) Copy() *Manager {
	return &Manager{
		Pipeline: m.Pipeline.Copy(),
		Service:  m.Service.Copy(),
		Config:   m.Config.Copy(),
		opts:     slices.Clone(m.opts),
	}
}
