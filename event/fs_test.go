package event_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a2y-d5l/forge/event"
)

// touchUntil keeps creating files in dir until ctx is done, so the watcher
// sees events no matter when it finishes starting.
func touchUntil(ctx context.Context, t *testing.T, dir string, names ...string) {
	t.Helper()
	go func() {
		for i := 0; ; i++ {
			for _, name := range names {
				_ = os.WriteFile(filepath.Join(dir, fmt.Sprintf("%d-%s", i, name)), []byte("x"), 0o644)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(10 * time.Millisecond):
			}
		}
	}()
}

func TestCreatedWithGlob(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	touchUntil(ctx, t, dir, "notes.txt", "main.go")

	c, err := event.Occur(ctx, event.Created(dir, event.WithGlob("*.go")))
	require.NoError(t, err)

	path, ok := c.Kwarg("path").(string)
	require.True(t, ok)
	assert.Equal(t, ".go", filepath.Ext(path))
	assert.Equal(t, path, c.Arg(1))

	op, ok := c.Kwarg("op").(event.Op)
	require.True(t, ok)
	assert.True(t, op.Has(event.OpCreate))
}

func TestChangedMissingPath(t *testing.T) {
	err := event.Changed(filepath.Join(t.TempDir(), "missing"))(context.Background(), func(*event.Context) error {
		return nil
	})
	assert.Error(t, err)
}

func TestChangedCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := event.Deleted(t.TempDir())(ctx, func(*event.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
