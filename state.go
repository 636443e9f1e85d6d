package forge

import (
	"github.com/a2y-d5l/forge/config"
)

// ExecutionSection is the configuration section holding ExecutionState.
const ExecutionSection = "execution"

const (
	stateUnmatched = "unmatchedtasks"
	stateTasks     = "tasks"
	stateTask      = "task"
	stateRunID     = "runid"
	stateManager   = "manager"
)

// ExecutionState exposes what the running pipeline publishes in the
// "execution" configuration section, so task bodies can inspect the run they
// belong to.
type ExecutionState struct {
	c *config.Config
}

// Execution returns the execution state stored in c.
func Execution(c *config.Config) ExecutionState {
	return ExecutionState{c: c.Section(ExecutionSection)}
}

// Unmatched returns the requested names of the current run that were not
// registered.
func (s ExecutionState) Unmatched() []string {
	return config.Get[[]string](s.c, stateUnmatched)
}

// Tasks returns the planned task names of the current run.
func (s ExecutionState) Tasks() []string {
	return config.Get[[]string](s.c, stateTasks)
}

// Task returns the name of the task being run, or "".
func (s ExecutionState) Task() string {
	return config.Get[string](s.c, stateTask)
}

// RunID returns the identifier of the current pipeline run, or "".
func (s ExecutionState) RunID() string {
	return config.Get[string](s.c, stateRunID)
}

// Manager returns the manager driving the run, if any.
func (s ExecutionState) Manager() *Manager {
	return config.Get[*Manager](s.c, stateManager)
}

// begin publishes the run and returns a function restoring what was there
// before, so a plan run from inside a task leaves its parent's state intact.
func (s ExecutionState) begin(runID string, p *Plan) (restore func()) {
	keys := []string{stateRunID, stateTasks, stateUnmatched, stateTask}
	prev := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := s.c.Lookup(k); ok {
			prev[k] = v
		}
	}

	s.c.Set(stateRunID, runID)
	s.c.Set(stateTasks, p.Names())
	s.c.Set(stateUnmatched, p.Unmatched())
	s.c.Delete(stateTask)

	return func() {
		for _, k := range keys {
			if v, ok := prev[k]; ok {
				s.c.Set(k, v)
				continue
			}
			s.c.Delete(k)
		}
	}
}

func (s ExecutionState) setTask(name string) {
	s.c.Set(stateTask, name)
}

// publish makes m the manager of the run and returns a function putting
// back the one it replaced, if any.
func (s ExecutionState) publish(m *Manager) (restore func()) {
	prev, had := s.c.Lookup(stateManager)
	s.c.Set(stateManager, m)
	return func() {
		if had {
			s.c.Set(stateManager, prev)
			return
		}
		s.c.Delete(stateManager)
	}
}
