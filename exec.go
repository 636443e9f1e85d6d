package forge

import (
	"context"
	"slices"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Run executes the plan's tasks one at a time, in order.
//
// Before-pipeline hooks run first; if any of them returns an error the run
// is canceled with no task attempted. Each task then runs through the
// before-task hooks, a TaskRunner and the after-task hooks. A task declined
// by a before-task hook is recorded as skipped and the run moves on.
//
// The run stops at the first failed task unless that task is
// continue-on-error. It also stops, with PipelineResult.Err set, when ctx is
// done between two tasks. After-pipeline hooks always run last.
func (p *Plan) Run(ctx context.Context, opts ...Option) (res PipelineResult) {
	cfg := newRunConfig(opts)
	log := cfg.logger.WithField("run_id", cfg.runID)
	start := time.Now()
	state := Execution(cfg.config)

	res = PipelineResult{
		RunID:     cfg.runID,
		Unmatched: p.Unmatched(),
		Tasks:     make([]TaskResult, 0, len(p.tasks)),
	}
	for _, name := range res.Unmatched {
		log.WithField("task", name).Warn("requested task is not registered")
	}

	pc := &PipelineContext{Plan: p, Config: cfg.config, Log: log, RunID: cfg.runID}
	restore := state.begin(cfg.runID, p)
	cfg.emit(Event{Type: EventPipelineStarted, Time: start, RunID: cfg.runID})
	log.WithField("tasks", p.Names()).Info("pipeline started")

	defer func() {
		if v := recover(); v != nil {
			res.Err = errors.Errorf("pipeline: panic: %v", v)
		}

		// hooks see the time spent on tasks; the final duration includes them
		res.Duration = time.Since(start)
		for i, after := range p.hooks.After {
			if err := protect(func() error { return after(ctx, pc, res) }); err != nil {
				log.WithError(err).WithField("hook", i).Warn("after-pipeline hook failed")
			}
		}
		restore()

		res.Duration = time.Since(start)
		entry := log.WithFields(logrus.Fields{
			"duration": res.Duration.Round(time.Millisecond),
			"tasks":    len(res.Tasks),
		})
		switch {
		case res.Canceled:
			entry.Info("pipeline canceled")
		case res.OK():
			entry.Info("pipeline succeeded")
		default:
			entry.WithError(res.Ensure()).Error("pipeline failed")
		}

		final := res
		cfg.emit(Event{Type: EventPipelineFinished, Time: start.Add(res.Duration), RunID: cfg.runID, Pipeline: &final})
	}()

	for i, before := range p.hooks.Before {
		if err := protect(func() error { return before(ctx, pc) }); err != nil {
			if !errors.Is(err, ErrSkip) {
				log.WithError(err).WithField("hook", i).Warn("before-pipeline hook failed")
			}
			res.Canceled = true
			return res
		}
	}

	for _, t := range p.tasks {
		if err := ctx.Err(); err != nil {
			res.Err = errors.Wrap(err, "pipeline: stopped before "+t.Name)
			return res
		}

		state.setTask(t.Name)
		tr := p.runTask(ctx, t, opts, cfg, log)
		state.setTask("")
		res.Tasks = append(res.Tasks, tr)

		if tr.OK() {
			continue
		}
		if !tr.ContinueOnError {
			log.WithField("task", t.Name).Error("stopping pipeline after failed task")
			return res
		}
		log.WithField("task", t.Name).WithError(tr.Err).Warn("task failed, continuing")
	}
	return res
}

func (p *Plan) runTask(ctx context.Context, t *Task, opts []Option, cfg runConfig, log logrus.FieldLogger) TaskResult {
	runner := NewTaskRunner(t, slices.Concat(opts, []Option{WithRunID(cfg.runID), WithConfig(cfg.config), WithLogger(cfg.logger)})...)
	tc := runner.Context()

	for i, before := range p.hooks.BeforeTask {
		err := protect(func() error { return before(ctx, tc) })
		if err == nil {
			continue
		}
		entry := log.WithField("task", t.Name)
		if !errors.Is(err, ErrSkip) {
			entry.WithError(err).WithField("hook", i).Warn("before-task hook failed")
		}
		entry.Info("task skipped by pipeline hook")

		skipped := TaskResult{
			Name:            t.Name,
			RunID:           cfg.runID,
			StartedAt:       time.Now(),
			Status:          ResultSkipped,
			SkipReason:      SkipPipelineHook,
			ContinueOnError: t.ContinueOnError,
		}
		cfg.emit(Event{Type: EventTaskFinished, Time: skipped.StartedAt, RunID: cfg.runID, Task: t.Spec(), Result: &skipped})
		return skipped
	}

	tr := runner.Run(ctx)

	for i, after := range p.hooks.AfterTask {
		if err := protect(func() error { return after(ctx, tc, tr) }); err != nil {
			log.WithError(err).WithFields(logrus.Fields{"task": t.Name, "hook": i}).Warn("after-task hook failed")
		}
	}
	return tr
}
