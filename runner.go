package forge

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// TaskRunner runs one task once.
//
// The hooks of the task run in a fixed order:
//
//  1. preconditions; a false result skips the task
//  2. before hooks; ErrSkip skips the task
//  3. setup hooks
//  4. the body
//  5. teardown hooks, whenever setup started
//  6. postconditions, if nothing failed; false fails the task
//  7. after hooks
//
// Errors and panics from the body and hooks are captured in the TaskResult
// and never escape Run.
type TaskRunner struct {
	task *Task
	tc   *TaskContext
	cfg  runConfig
}

// NewTaskRunner prepares a run of t.
func NewTaskRunner(t *Task, opts ...Option) *TaskRunner {
	cfg := newRunConfig(opts)
	args, kwargs := cfg.taskArgs()

	fields := logrus.Fields{"task": t.Name, "run_id": cfg.runID}
	if cfg.handler != "" {
		fields["handler"] = cfg.handler
	}

	return &TaskRunner{
		task: t,
		cfg:  cfg,
		tc: &TaskContext{
			Task:    t,
			Args:    args,
			Kwargs:  kwargs,
			Config:  cfg.config,
			Event:   cfg.event,
			Handler: cfg.handler,
			RunID:   cfg.runID,
			Log:     cfg.logger.WithFields(fields),
			Out:     cfg.out,
		},
	}
}

// Context returns the TaskContext the run will use. Pipeline before-task
// hooks receive it before Run is called.
func (r *TaskRunner) Context() *TaskContext {
	return r.tc
}

// Run executes the task and returns its result.
func (r *TaskRunner) Run(ctx context.Context) TaskResult {
	t, tc, log := r.task, r.tc, r.tc.Log
	start := time.Now()

	r.cfg.emit(Event{
		Type:    EventTaskStarted,
		Time:    start,
		RunID:   tc.RunID,
		Handler: tc.Handler,
		Task:    t.Spec(),
	})
	log.Info("task started")

	res := TaskResult{
		Name:            t.Name,
		RunID:           tc.RunID,
		StartedAt:       start,
		ContinueOnError: t.ContinueOnError,
	}
	res.Status, res.SkipReason, res.Err = r.execute(ctx)

	for i, after := range t.Hooks.After {
		if err := protect(func() error { return after(ctx, tc, res) }); err != nil {
			log.WithError(err).WithField("hook", i).Warn("after hook failed")
		}
	}

	res.Duration = time.Since(start)

	entry := log.WithFields(logrus.Fields{
		"status":   res.Status.String(),
		"duration": res.Duration.Round(time.Millisecond),
	})
	switch res.Status {
	case ResultFailed:
		entry.WithError(res.Err).Error("task failed")
	case ResultSkipped:
		entry.WithField("reason", res.SkipReason.String()).Info("task skipped")
	default:
		entry.Info("task finished")
	}

	r.cfg.emit(Event{
		Type:    EventTaskFinished,
		Time:    start.Add(res.Duration),
		RunID:   tc.RunID,
		Handler: tc.Handler,
		Task:    t.Spec(),
		Result:  &res,
	})
	return res
}

func (r *TaskRunner) execute(ctx context.Context) (ResultStatus, SkipReason, error) {
	t, tc := r.task, r.tc

	for i, pre := range t.Hooks.Preconditions {
		var ok bool
		err := protect(func() (err error) {
			ok, err = pre(ctx, tc)
			return err
		})
		if err != nil {
			return ResultFailed, SkipNone, r.fail(FailureHook, errors.Wrapf(err, "precondition %d", i))
		}
		if !ok {
			return ResultSkipped, SkipPrecondition, nil
		}
	}

	for i, before := range t.Hooks.Before {
		err := protect(func() error { return before(ctx, tc) })
		if errors.Is(err, ErrSkip) {
			return ResultSkipped, SkipBeforeHook, nil
		}
		if err != nil {
			return ResultFailed, SkipNone, r.fail(FailureHook, errors.Wrapf(err, "before hook %d", i))
		}
	}

	if err := r.runBody(ctx); err != nil {
		return ResultFailed, SkipNone, err
	}

	for i, post := range t.Hooks.Postconditions {
		var ok bool
		err := protect(func() (err error) {
			ok, err = post(ctx, tc)
			return err
		})
		if err != nil {
			return ResultFailed, SkipNone, r.fail(FailureHook, errors.Wrapf(err, "postcondition %d", i))
		}
		if !ok {
			return ResultFailed, SkipNone, r.fail(FailurePostcondition, ErrPostconditionBroken)
		}
	}

	return ResultSucceeded, SkipNone, nil
}

// runBody runs setup, body and teardown. Teardown hooks all run once setup
// has started, however setup or the body ended.
func (r *TaskRunner) runBody(ctx context.Context) (err error) {
	t, tc := r.task, r.tc

	defer func() {
		for i, td := range t.Hooks.Teardown {
			terr := protect(func() error { return td(ctx, tc) })
			if terr == nil {
				continue
			}
			if err == nil {
				err = r.fail(FailureHook, errors.Wrapf(terr, "teardown hook %d", i))
				continue
			}
			tc.Log.WithError(terr).WithField("hook", i).Warn("teardown hook failed")
		}
	}()

	for i, setup := range t.Hooks.Setup {
		if serr := protect(func() error { return setup(ctx, tc) }); serr != nil {
			return r.fail(FailureHook, errors.Wrapf(serr, "setup hook %d", i))
		}
	}

	if t.Run == nil {
		return nil
	}
	if berr := protect(func() error { return t.Run(ctx, tc) }); berr != nil {
		return r.fail(FailureBody, berr)
	}
	return nil
}

func (r *TaskRunner) fail(kind FailureKind, err error) error {
	return &TaskError{Task: r.task.Name, Kind: kind, Err: err}
}
