package forge

import (
	"io"
	"maps"
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/a2y-d5l/forge/config"
	"github.com/a2y-d5l/forge/event"
)

// Option configures a task, pipeline, service or manager run.
type Option func(*runConfig)

type runConfig struct {
	logger   logrus.FieldLogger
	observer Observer
	config   *config.Config
	event    *event.Context
	kwargs   map[string]any
	out      io.Writer
	runID    string
	handler  string
	args     []any
}

// WithLogger sets the logger. The default is the logrus standard logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *runConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver attaches an observer to receive lifecycle events. Repeated
// calls add observers.
func WithObserver(o Observer) Option {
	return func(c *runConfig) {
		if o == nil {
			return
		}
		if c.observer == nil {
			c.observer = o
			return
		}
		c.observer = MultiObserver(c.observer, o)
	}
}

// WithConfig shares cfg with every task of the run. Without it each run gets
// a fresh, empty configuration.
func WithConfig(cfg *config.Config) Option {
	return func(c *runConfig) {
		if cfg != nil {
			c.config = cfg
		}
	}
}

// WithArgs sets the positional arguments passed to a task.
func WithArgs(args ...any) Option {
	return func(c *runConfig) { c.args = args }
}

// WithKwargs sets the named arguments passed to a task.
func WithKwargs(kwargs map[string]any) Option {
	return func(c *runConfig) { c.kwargs = kwargs }
}

// WithEvent passes an occurrence to a task. Its Args and Kwargs become the
// task's arguments.
func WithEvent(ec *event.Context) Option {
	return func(c *runConfig) {
		c.event = ec
		if ec != nil {
			c.args = ec.Args
			c.kwargs = ec.Kwargs
		}
	}
}

// WithHandler records the event handler that triggered a run.
func WithHandler(name string) Option {
	return func(c *runConfig) { c.handler = name }
}

// WithRunID sets the run identifier. By default a random UUID is used.
func WithRunID(id string) Option {
	return func(c *runConfig) { c.runID = id }
}

// WithOutput sets TaskContext.Out, where tasks print for the user. The
// default is os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(c *runConfig) {
		if w != nil {
			c.out = w
		}
	}
}

func newRunConfig(opts []Option) runConfig {
	c := runConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	if c.logger == nil {
		c.logger = logrus.StandardLogger()
	}
	if c.config == nil {
		c.config = config.New()
	}
	if c.out == nil {
		c.out = os.Stdout
	}
	if c.runID == "" {
		c.runID = uuid.NewString()
	}
	return c
}

func (c *runConfig) emit(ev Event) {
	if c.observer != nil {
		c.observer.HandleEvent(ev)
	}
}

// taskArgs returns copies so before hooks never write through to the
// caller's slices and maps.
func (c *runConfig) taskArgs() ([]any, map[string]any) {
	args := append([]any(nil), c.args...)
	kwargs := make(map[string]any, len(c.kwargs))
	maps.Copy(kwargs, c.kwargs)
	return args, kwargs
}
