package event_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a2y-d5l/forge/event"
)

// collect runs src to completion and returns every occurrence.
func collect(t *testing.T, src event.Source) ([]*event.Context, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var got []*event.Context
	err := src(ctx, func(c *event.Context) error {
		got = append(got, c)
		return nil
	})
	return got, err
}

// counting returns a source that emits its invocation number once per run,
// failing on the runs listed in fail.
func counting(runs *int, fail ...int) event.Source {
	return func(_ context.Context, emit event.Emit) error {
		*runs++
		for _, f := range fail {
			if f == *runs {
				return errors.Errorf("run %d failed", *runs)
			}
		}
		return emit(event.New(*runs))
	}
}

func TestContextAccessors(t *testing.T) {
	c := event.New("a", 2).With("k", "v")
	assert.Equal(t, "a", c.Arg(0))
	assert.Equal(t, 2, c.Arg(1))
	assert.Nil(t, c.Arg(2))
	assert.Equal(t, "v", c.Kwarg("k"))

	var empty *event.Context
	assert.Nil(t, empty.Arg(0))
	assert.Nil(t, empty.Kwarg("k"))
}

func TestOfAndOnce(t *testing.T) {
	src := event.Of(event.New(1), event.New(2), event.New(3))

	got, err := collect(t, src)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = collect(t, event.Once(src))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Arg(0))
}

func TestLimit(t *testing.T) {
	src := event.Of(event.New(1), event.New(2), event.New(3))

	tests := []struct {
		name string
		n    int
		want int
	}{
		{"zero", 0, 0},
		{"fewer", 2, 2},
		{"more than available", 10, 3},
		{"unlimited", -1, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := collect(t, event.Limit(src, tt.n))
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestLimitZeroDoesNotStartSource(t *testing.T) {
	runs := 0
	_, err := collect(t, event.Limit(counting(&runs), 0))
	require.NoError(t, err)
	assert.Zero(t, runs)
}

func TestNestedLimits(t *testing.T) {
	src := event.Limit(event.Forever(event.Of(event.New("x"))), 5)
	got, err := collect(t, event.Limit(src, 3))
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = collect(t, event.Limit(src, 8))
	require.NoError(t, err)
	assert.Len(t, got, 5)
}

func TestRepeatCounts(t *testing.T) {
	tests := []struct {
		times int
		want  int
	}{
		{0, 1},
		{1, 2},
		{3, 4},
	}
	for _, tt := range tests {
		runs := 0
		got, err := collect(t, event.Repeat(counting(&runs), tt.times, false))
		require.NoError(t, err)
		assert.Len(t, got, tt.want, "times=%d", tt.times)
		assert.Equal(t, tt.want, runs)
	}
}

func TestRepeatStopsOnInnerError(t *testing.T) {
	runs := 0
	got, err := collect(t, event.Repeat(counting(&runs, 2), 3, false))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run 2 failed")
	assert.Len(t, got, 1)
	assert.Equal(t, 2, runs)
}

func TestRepeatContinueOnError(t *testing.T) {
	runs := 0
	got, err := collect(t, event.Repeat(counting(&runs, 2), 3, true))
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, 4, runs)
}

func TestRepeatPropagatesConsumerError(t *testing.T) {
	errConsumer := errors.New("consumer")
	runs := 0
	err := event.Repeat(counting(&runs), 5, true)(context.Background(), func(*event.Context) error {
		return errConsumer
	})
	assert.ErrorIs(t, err, errConsumer)
	assert.Equal(t, 1, runs)
}

func TestForeverWithLimit(t *testing.T) {
	runs := 0
	got, err := collect(t, event.Limit(event.Forever(counting(&runs)), 4))
	require.NoError(t, err)
	assert.Len(t, got, 4)
	assert.Equal(t, 4, runs)
}

func TestDelay(t *testing.T) {
	start := time.Now()
	got, err := collect(t, event.Delay(20*time.Millisecond))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0])
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestDelayCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := event.Delay(time.Hour)(ctx, func(*event.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPeriodic(t *testing.T) {
	start := time.Now()
	got, err := collect(t, event.Limit(event.Periodic(5*time.Millisecond), 3))
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestOccur(t *testing.T) {
	c, err := event.Occur(context.Background(), event.Of(event.New("first"), event.New("second")))
	require.NoError(t, err)
	assert.Equal(t, "first", c.Arg(0))

	_, err = event.Occur(context.Background(), event.Of())
	assert.ErrorIs(t, err, event.ErrNoOccurrence)
}

func TestFunc(t *testing.T) {
	got, err := collect(t, event.Func(func(context.Context) (*event.Context, error) {
		return event.New().With("ready", true), nil
	}))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, true, got[0].Kwarg("ready"))

	errBoom := errors.New("boom")
	_, err = collect(t, event.Func(func(context.Context) (*event.Context, error) {
		return nil, errBoom
	}))
	assert.ErrorIs(t, err, errBoom)
}
