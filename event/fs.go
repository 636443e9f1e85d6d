package event

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// Op is the kind of a filesystem change.
type Op = fsnotify.Op

const (
	OpCreate = fsnotify.Create
	OpWrite  = fsnotify.Write
	OpRemove = fsnotify.Remove
	OpRename = fsnotify.Rename
	OpChmod  = fsnotify.Chmod
)

type watchConfig struct {
	glob string
	ops  Op
}

// WatchOption configures a filesystem source.
type WatchOption func(*watchConfig)

// WithGlob only reports changes whose base name matches pattern
// (filepath.Match syntax).
func WithGlob(pattern string) WatchOption {
	return func(c *watchConfig) { c.glob = pattern }
}

// WithOps only reports the given kinds of change.
func WithOps(ops ...Op) WatchOption {
	return func(c *watchConfig) {
		for _, op := range ops {
			c.ops |= op
		}
	}
}

func (c *watchConfig) match(ev fsnotify.Event) bool {
	if c.ops != 0 && ev.Op&c.ops == 0 {
		return false
	}
	if c.glob != "" {
		ok, err := filepath.Match(c.glob, filepath.Base(ev.Name))
		if err != nil || !ok {
			return false
		}
	}
	return true
}

// Changed emits an occurrence for every change to path, a file or a
// directory (not recursive). Each occurrence carries the op and the changed
// path both positionally and as "op" and "path".
func Changed(path string, opts ...WatchOption) Source {
	cfg := &watchConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(ctx context.Context, emit Emit) error {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return errors.Wrap(err, "event: create watcher")
		}
		defer w.Close()

		if err := w.Add(path); err != nil {
			return errors.Wrapf(err, "event: watch %s", path)
		}

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ev, ok := <-w.Events:
				if !ok {
					return nil
				}
				if !cfg.match(ev) {
					continue
				}
				c := New(ev.Op, ev.Name).With("op", ev.Op).With("path", ev.Name)
				if err := emit(c); err != nil {
					return err
				}
			case err, ok := <-w.Errors:
				if !ok {
					return nil
				}
				return errors.Wrapf(err, "event: watch %s", path)
			}
		}
	}
}

// Created reports files created under path.
func Created(path string, opts ...WatchOption) Source {
	return Changed(path, append(opts, WithOps(OpCreate))...)
}

// Modified reports writes under path.
func Modified(path string, opts ...WatchOption) Source {
	return Changed(path, append(opts, WithOps(OpWrite))...)
}

// Deleted reports removals under path.
func Deleted(path string, opts ...WatchOption) Source {
	return Changed(path, append(opts, WithOps(OpRemove))...)
}

// Renamed reports renames under path.
func Renamed(path string, opts ...WatchOption) Source {
	return Changed(path, append(opts, WithOps(OpRename))...)
}
