package forge_test

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/a2y-d5l/forge"
)

func nullLogger() (logrus.FieldLogger, *test.Hook) {
	l, hook := test.NewNullLogger()
	l.SetLevel(logrus.DebugLevel)
	return l, hook
}

func quiet() forge.Option {
	l, _ := nullLogger()
	return forge.WithLogger(l)
}

// trace records the order in which bodies and hooks were called.
type trace struct {
	mu    sync.Mutex
	steps []string
}

func (tr *trace) add(step string) {
	tr.mu.Lock()
	tr.steps = append(tr.steps, step)
	tr.mu.Unlock()
}

func (tr *trace) get() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.steps...)
}

func (tr *trace) body(step string) forge.Body {
	return func(context.Context, *forge.TaskContext) error {
		tr.add(step)
		return nil
	}
}

func (tr *trace) hook(step string) forge.HookFunc {
	return func(context.Context, *forge.TaskContext) error {
		tr.add(step)
		return nil
	}
}

func fails(err error) forge.Body {
	return func(context.Context, *forge.TaskContext) error { return err }
}
