package event

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/pkg/errors"
)

// Clock is a wall-clock time of day.
type Clock struct {
	Hour, Minute, Second int
}

// ParseClock parses "15:04" or "15:04:05".
func ParseClock(s string) (Clock, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return Clock{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
		}
	}
	return Clock{}, errors.Errorf("event: invalid clock %q", s)
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", c.Hour, c.Minute, c.Second)
}

// On returns the instant at c on day's date, in day's location.
func (c Clock) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, c.Hour, c.Minute, c.Second, 0, day.Location())
}

// NextDaily returns the first instant at c not earlier than now (truncated to
// the second).
func NextDaily(now time.Time, c Clock) time.Time {
	next := c.On(now)
	if next.Before(now.Truncate(time.Second)) {
		next = c.On(now.AddDate(0, 0, 1))
	}
	return next
}

// NextOn returns the first instant at c, not earlier than now, that falls on
// one of days. It reports false when days is empty.
func NextOn(now time.Time, c Clock, days ...time.Weekday) (time.Time, bool) {
	if len(days) == 0 {
		return time.Time{}, false
	}
	next := NextDaily(now, c)
	for range 7 {
		if slices.Contains(days, next.Weekday()) {
			return next, true
		}
		next = c.On(next.AddDate(0, 0, 1))
	}
	return time.Time{}, false
}

func occurredAt(t time.Time) *Context {
	return New(t).With("time", t)
}

// At emits once at t. If t is already more than a second in the past the
// source ends without emitting.
func At(t time.Time) Source {
	return func(ctx context.Context, emit Emit) error {
		wait := time.Until(t)
		if wait < -time.Second {
			return nil
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
		return emit(occurredAt(t))
	}
}

// Tomorrow emits once, a day after the source starts.
func Tomorrow() Source {
	return after(0, 0, 1)
}

// NextWeek emits once, seven days after the source starts.
func NextWeek() Source {
	return after(0, 0, 7)
}

func after(years, months, days int) Source {
	return func(ctx context.Context, emit Emit) error {
		return At(time.Now().AddDate(years, months, days))(ctx, emit)
	}
}

// Daily emits at c every day.
func Daily(c Clock) Source {
	return schedule(func(from time.Time) (time.Time, bool) {
		return NextDaily(from, c), true
	})
}

// Weekdays emits at c on each of days. With no days the source ends at once.
func Weekdays(c Clock, days ...time.Weekday) Source {
	return schedule(func(from time.Time) (time.Time, bool) {
		return NextOn(from, c, days...)
	})
}

// Weekday emits at c from Monday to Friday.
func Weekday(c Clock) Source {
	return Weekdays(c, time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday)
}

// Weekend emits at c on Saturday and Sunday.
func Weekend(c Clock) Source {
	return Weekdays(c, time.Saturday, time.Sunday)
}

func schedule(next func(from time.Time) (time.Time, bool)) Source {
	return func(ctx context.Context, emit Emit) error {
		var last time.Time
		for {
			from := time.Now()
			if !last.IsZero() && from.Before(last.Add(time.Second)) {
				from = last.Add(time.Second)
			}
			t, ok := next(from)
			if !ok {
				return nil
			}
			if err := sleep(ctx, time.Until(t)); err != nil {
				return err
			}
			if err := emit(occurredAt(t)); err != nil {
				return err
			}
			last = t
		}
	}
}
