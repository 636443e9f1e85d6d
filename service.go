package forge

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/a2y-d5l/forge/event"
)

// EventHandler runs Task once for every occurrence of Source.
//
// When the task fails, or Source itself fails, a handler that is not Safe
// stops and reports a *HandlerError. A Safe handler logs task failures and
// keeps going; a Safe handler whose source fails logs it and ends cleanly.
type EventHandler struct {
	Source event.Source
	Task   *Task
	Name   string
	Safe   bool
}

// On returns a handler running task for every occurrence of src.
func On(name string, src event.Source, task *Task, safe bool) *EventHandler {
	return &EventHandler{Name: name, Source: src, Task: task, Safe: safe}
}

// Run iterates the source until it ends, ctx is done, or a non-safe failure
// occurs. Context cancellation ends the loop without error.
func (h *EventHandler) Run(ctx context.Context, opts ...Option) error {
	cfg := newRunConfig(opts)
	log := cfg.logger.WithFields(logrus.Fields{"handler": h.Name, "run_id": cfg.runID})
	log.Info("event handler started")

	occurrences := 0
	emit := func(ec *event.Context) error {
		occurrences++
		res := h.Task.Invoke(ctx, slices.Concat(opts, []Option{
			WithEvent(ec),
			WithHandler(h.Name),
			WithConfig(cfg.config),
			WithLogger(cfg.logger),
			WithRunID(""),
		})...)
		if res.OK() {
			return nil
		}
		if h.Safe {
			log.WithError(res.Err).WithField("occurrence", occurrences).Error("event handler failed, continuing")
			return nil
		}
		return &HandlerError{Handler: h.Name, Err: res.Err}
	}
	err := protect(func() error { return h.Source(ctx, emit) })

	log = log.WithField("occurrences", occurrences)
	var herr *HandlerError
	switch {
	case err == nil:
		log.Info("event handler finished")
		return nil
	case errors.As(err, &herr) && herr.Handler == h.Name:
		log.WithError(err).Error("event handler stopped")
		return herr
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		log.Info("event handler canceled")
		return nil
	case h.Safe:
		log.WithError(err).Error("event source failed")
		return nil
	default:
		log.WithError(err).Error("event source failed, handler stopped")
		return &HandlerError{Handler: h.Name, Source: true, Err: err}
	}
}

// Service is a set of independent event handlers. It is safe for
// concurrent use.
type Service struct {
	handlers map[string]*EventHandler
	names    []string
	mu       sync.RWMutex
}

// NewService returns an empty service.
func NewService() *Service {
	return &Service{handlers: make(map[string]*EventHandler)}
}

// Register adds handlers. It fails on an empty or already registered name.
func (s *Service) Register(handlers ...*EventHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, h := range handlers {
		if h == nil || strings.TrimSpace(h.Name) == "" {
			return errors.WithStack(ErrEmptyName)
		}
		if h.Source == nil || h.Task == nil {
			return errors.Errorf("forge: event handler %q needs a source and a task", h.Name)
		}
		if _, ok := s.handlers[h.Name]; ok {
			return errors.Wrapf(ErrDuplicateHandler, "register %q", h.Name)
		}
		s.names = append(s.names, h.Name)
		s.handlers[h.Name] = h
	}
	return nil
}

// Handler returns the handler called name.
func (s *Service) Handler(name string) (*EventHandler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handlers[name]
	return h, ok
}

// Handlers returns the handlers in registration order.
func (s *Service) Handlers() []*EventHandler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*EventHandler, 0, len(s.names))
	for _, name := range s.names {
		out = append(out, s.handlers[name])
	}
	return out
}

// Copy returns a service with the same handlers.
func (s *Service) Copy() *Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := NewService()
	for _, name := range s.names {
		h := *s.handlers[name]
		h.Task = h.Task.Clone()
		cp.names = append(cp.names, name)
		cp.handlers[name] = &h
	}
	return cp
}

// Run starts every handler concurrently and waits for all of them. A failing
// handler does not stop the others. Once all have finished, Run returns the
// first *HandlerError to have occurred, or nil.
func (s *Service) Run(ctx context.Context, opts ...Option) error {
	handlers := s.Handlers()
	cfg := newRunConfig(opts)
	log := cfg.logger.WithField("run_id", cfg.runID)
	log.WithField("handlers", len(handlers)).Info("service started")

	// every handler shares the run's configuration
	opts = slices.Concat(opts, []Option{WithConfig(cfg.config), WithRunID(cfg.runID)})

	var (
		mu    sync.Mutex
		first error
		wg    sync.WaitGroup
	)
	for _, h := range handlers {
		wg.Go(func() {
			if err := h.Run(ctx, opts...); err != nil {
				mu.Lock()
				if first == nil {
					first = err
				}
				mu.Unlock()
			}
		})
	}
	wg.Wait()

	if first != nil {
		log.WithError(first).Error("service finished with a failed handler")
		return first
	}
	log.Info("service finished")
	return nil
}
