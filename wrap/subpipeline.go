package wrap

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/a2y-d5l/forge"
)

// SubPipeline runs a nested pipeline from inside a task body. The nested run
// shares the task's configuration, logger and run ID, so its tasks see what
// the parent run stored.
//
//	sub := &wrap.SubPipeline{Pipeline: deploy, Prefix: "deploy"}
//	p.Register(forge.NewTask("release", sub.Body("default")).DependOn("test"))
type SubPipeline struct {
	Pipeline *forge.Pipeline

	// Observer receives the nested run's events. With a Prefix, task names
	// are reported as "prefix:name".
	Observer forge.Observer
	Prefix   string

	// ContinueOnFailure makes Run succeed even when a nested task fails. The
	// failure stays visible in the returned result.
	ContinueOnFailure bool
}

// Run builds names against the nested pipeline and runs them. A build error,
// an unmatched name or a failed run is returned as an error.
func (s *SubPipeline) Run(ctx context.Context, tc *forge.TaskContext, names ...string) (forge.PipelineResult, error) {
	plan, err := s.Pipeline.Build(names...)
	if err != nil {
		return forge.PipelineResult{}, errors.Wrap(err, "sub-pipeline")
	}
	if u := plan.Unmatched(); len(u) > 0 {
		return forge.PipelineResult{Unmatched: u}, errors.Errorf("sub-pipeline: unknown tasks %s", strings.Join(u, ", "))
	}

	opts := []forge.Option{
		forge.WithConfig(tc.Config),
		forge.WithLogger(tc.Log.WithField("sub_pipeline", s.Prefix)),
		forge.WithRunID(tc.RunID),
		forge.WithArgs(tc.Args...),
		forge.WithKwargs(tc.Kwargs),
	}
	if s.Observer != nil {
		opts = append(opts, forge.WithObserver(prefixed(s.Observer, s.Prefix)))
	}

	res := plan.Run(ctx, opts...)
	if err := res.Ensure(); err != nil && !s.ContinueOnFailure {
		return res, errors.Wrap(err, "sub-pipeline")
	}
	return res, nil
}

// Body returns a task body running names, or the nested DefaultTask when
// none are given.
func (s *SubPipeline) Body(names ...string) forge.Body {
	if len(names) == 0 {
		names = []string{forge.DefaultTask}
	}
	return func(ctx context.Context, tc *forge.TaskContext) error {
		_, err := s.Run(ctx, tc, names...)
		return err
	}
}

func prefixed(o forge.Observer, prefix string) forge.Observer {
	if prefix == "" {
		return o
	}
	name := forge.Group(prefix)
	return forge.ObserverFunc(func(e forge.Event) {
		if e.Task.Name != "" {
			e.Task.Name = name(e.Task.Name)
		}
		if e.Result != nil {
			r := *e.Result
			r.Name = name(r.Name)
			e.Result = &r
		}
		o.HandleEvent(e)
	})
}
