// Package event defines occurrence streams that drive event handlers, and
// combinators that build new streams from existing ones.
//
// A Source is a function that pushes occurrences into an Emit callback until
// it decides to stop. Calling a Source again restarts it, which is what lets
// Repeat and Forever re-run a stream:
//
//	// every 30 seconds, at most 10 times
//	src := event.Limit(event.Periodic(30*time.Second), 10)
//
// A source ends normally by returning nil. It returns an error to fail, and
// it must return promptly once emit returns an error or ctx is done.
package event

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrNoOccurrence is returned by Occur when the source ended without emitting.
var ErrNoOccurrence = errors.New("event: source ended without an occurrence")

// Context is the data attached to one occurrence. A nil *Context means the
// occurrence carries no data.
type Context struct {
	Args   []any
	Kwargs map[string]any
}

// New returns a Context carrying the positional arguments args.
func New(args ...any) *Context {
	return &Context{Args: args}
}

// With sets a named argument and returns c.
func (c *Context) With(key string, value any) *Context {
	if c.Kwargs == nil {
		c.Kwargs = make(map[string]any)
	}
	c.Kwargs[key] = value
	return c
}

// Arg returns positional argument i, or nil.
func (c *Context) Arg(i int) any {
	if c == nil || i < 0 || i >= len(c.Args) {
		return nil
	}
	return c.Args[i]
}

// Kwarg returns the named argument key, or nil.
func (c *Context) Kwarg(key string) any {
	if c == nil {
		return nil
	}
	return c.Kwargs[key]
}

// Emit delivers one occurrence to the consumer. A non-nil error tells the
// source to stop and return that error.
type Emit func(*Context) error

// Source produces occurrences.
type Source func(ctx context.Context, emit Emit) error

// Of emits each of contexts in order.
func Of(contexts ...*Context) Source {
	return func(ctx context.Context, emit Emit) error {
		for _, c := range contexts {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := emit(c); err != nil {
				return err
			}
		}
		return nil
	}
}

// Func turns a blocking call into a single-occurrence source.
func Func(f func(ctx context.Context) (*Context, error)) Source {
	return func(ctx context.Context, emit Emit) error {
		c, err := f(ctx)
		if err != nil {
			return err
		}
		return emit(c)
	}
}

// Delay emits one empty occurrence after d.
func Delay(d time.Duration) Source {
	return Func(func(ctx context.Context) (*Context, error) {
		if err := sleep(ctx, d); err != nil {
			return nil, err
		}
		return nil, nil
	})
}

// Repeat runs src times+1 times in a row. A negative times repeats forever.
//
// An error returned by src stops the repetition unless continueOnError is
// set, in which case it is logged and the next round starts. Errors coming
// back from emit, and context cancellation, always stop it.
func Repeat(src Source, times int, continueOnError bool) Source {
	return func(ctx context.Context, emit Emit) error {
		remaining := times
		if remaining >= 0 {
			remaining++
		}

		for round := 1; remaining != 0; round++ {
			var downstream error
			err := src(ctx, func(c *Context) error {
				if err := emit(c); err != nil {
					downstream = err
					return err
				}
				return nil
			})

			switch {
			case downstream != nil:
				return downstream
			case ctx.Err() != nil:
				return ctx.Err()
			case err != nil && !continueOnError:
				return errors.Wrapf(err, "event: repeat round %d", round)
			case err != nil:
				logrus.WithError(err).WithField("round", round).Error("event: repeat round failed, continuing")
			}

			if remaining > 0 {
				remaining--
			}
		}
		return nil
	}
}

// Forever restarts src every time it ends.
func Forever(src Source) Source {
	return Repeat(src, -1, false)
}

// Periodic emits an empty occurrence every d, forever.
func Periodic(d time.Duration) Source {
	return Forever(Delay(d))
}

// Limit passes through at most n occurrences of src. Zero emits nothing and
// does not start src; a negative n leaves src unlimited.
func Limit(src Source, n int) Source {
	if n < 0 {
		return src
	}
	return func(ctx context.Context, emit Emit) error {
		if n == 0 {
			return nil
		}

		// each invocation gets its own sentinel so nested limits stay apart
		stop := &limitReached{n: n}
		left := n
		err := src(ctx, func(c *Context) error {
			if err := emit(c); err != nil {
				return err
			}
			left--
			if left == 0 {
				return stop
			}
			return nil
		})
		if err == stop || errors.Is(err, stop) {
			return nil
		}
		return err
	}
}

type limitReached struct{ n int }

func (l *limitReached) Error() string { return fmt.Sprintf("event: limit of %d reached", l.n) }

// Once passes through the first occurrence of src.
func Once(src Source) Source {
	return Limit(src, 1)
}

// Occur blocks until src emits once and returns that occurrence.
func Occur(ctx context.Context, src Source) (*Context, error) {
	var (
		got bool
		out *Context
	)
	err := Once(src)(ctx, func(c *Context) error {
		got, out = true, c
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !got {
		return nil, ErrNoOccurrence
	}
	return out, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
