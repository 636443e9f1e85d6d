package forge_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a2y-d5l/forge"
	"github.com/a2y-d5l/forge/config"
	"github.com/a2y-d5l/forge/event"
	"github.com/a2y-d5l/forge/pkg/stream/streamtest"
)

func occurrences(n int) event.Source {
	ctxs := make([]*event.Context, n)
	for i := range ctxs {
		ctxs[i] = event.New(i)
	}
	return event.Of(ctxs...)
}

func counting(n *atomic.Int32, err error) *forge.Task {
	return forge.NewTask("count", func(context.Context, *forge.TaskContext) error {
		n.Add(1)
		return err
	})
}

func TestHandlerRunsTaskPerOccurrence(t *testing.T) {
	var got []any
	task := forge.NewTask("collect", func(_ context.Context, tc *forge.TaskContext) error {
		got = append(got, tc.Arg(0))
		assert.Equal(t, "h", tc.Handler)
		assert.NotNil(t, tc.Event)
		return nil
	})

	err := forge.On("h", occurrences(3), task, false).Run(context.Background(), quiet())

	require.NoError(t, err)
	assert.Equal(t, []any{0, 1, 2}, got)
}

func TestServiceIsolatesHandlers(t *testing.T) {
	var unsafe, safe atomic.Int32
	boom := errors.New("boom")

	svc := forge.NewService()
	require.NoError(t, svc.Register(
		forge.On("unsafe", occurrences(5), counting(&unsafe, boom), false),
		forge.On("safe", occurrences(5), counting(&safe, boom), true),
	))

	err := svc.Run(context.Background(), quiet())

	var herr *forge.HandlerError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, "unsafe", herr.Handler)
	assert.False(t, herr.Source)
	assert.ErrorIs(t, err, boom)

	assert.EqualValues(t, 1, unsafe.Load())
	assert.EqualValues(t, 5, safe.Load())
}

func TestServiceHandlerSourceFailure(t *testing.T) {
	broken := event.Func(func(context.Context) (*event.Context, error) {
		return nil, errors.New("no watcher")
	})
	var n atomic.Int32

	err := forge.On("unsafe", broken, counting(&n, nil), false).Run(context.Background(), quiet())
	var herr *forge.HandlerError
	require.ErrorAs(t, err, &herr)
	assert.True(t, herr.Source)

	err = forge.On("safe", broken, counting(&n, nil), true).Run(context.Background(), quiet())
	assert.NoError(t, err)
	assert.Zero(t, n.Load())
}

func TestServiceSourcePanic(t *testing.T) {
	src := event.Source(func(context.Context, event.Emit) error { panic("source") })
	var n atomic.Int32

	var err error
	require.NotPanics(t, func() {
		err = forge.On("h", src, counting(&n, nil), false).Run(context.Background(), quiet())
	})
	assert.Error(t, err)
}

func TestServiceStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var n atomic.Int32

	svc := forge.NewService()
	require.NoError(t, svc.Register(forge.On("tick", event.Periodic(time.Millisecond), counting(&n, nil), false)))

	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx, quiet()) }()

	require.Eventually(t, func() bool { return n.Load() >= 3 }, 5*time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop")
	}
}

func TestServiceSharesConfigAndObservers(t *testing.T) {
	cfg := config.New()
	rec := streamtest.NewEventRecorder()
	task := forge.NewTask("mark", func(_ context.Context, tc *forge.TaskContext) error {
		tc.Config.Set(tc.Handler, true)
		return nil
	})

	svc := forge.NewService()
	require.NoError(t, svc.Register(
		forge.On("one", occurrences(2), task, false),
		forge.On("two", occurrences(2), task, false),
	))

	require.NoError(t, svc.Run(context.Background(), quiet(), forge.WithConfig(cfg), forge.WithObserver(rec)))

	assert.True(t, cfg.Bool("one"))
	assert.True(t, cfg.Bool("two"))

	results := rec.Results()
	require.Len(t, results, 4)
	ids := map[string]bool{}
	for _, r := range results {
		ids[r.RunID] = true
	}
	assert.Len(t, ids, 4, "every occurrence gets its own run id")
}

func TestServiceRegister(t *testing.T) {
	svc := forge.NewService()
	task := forge.NewTask("t", nil)

	require.NoError(t, svc.Register(forge.On("h", occurrences(1), task, false)))
	assert.ErrorIs(t, svc.Register(forge.On("h", occurrences(1), task, false)), forge.ErrDuplicateHandler)
	assert.ErrorIs(t, svc.Register(forge.On("", occurrences(1), task, false)), forge.ErrEmptyName)
	assert.Error(t, svc.Register(forge.On("nosrc", nil, task, false)))
	assert.Error(t, svc.Register(forge.On("notask", occurrences(1), nil, false)))

	require.Len(t, svc.Handlers(), 1)
	_, ok := svc.Handler("h")
	assert.True(t, ok)

	cp := svc.Copy()
	require.NoError(t, cp.Register(forge.On("other", occurrences(1), task, false)))
	assert.Len(t, svc.Handlers(), 1)
	assert.Len(t, cp.Handlers(), 2)
}
