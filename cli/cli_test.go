package cli_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"

	"github.com/a2y-d5l/forge"
	"github.com/a2y-d5l/forge/cli"
	"github.com/a2y-d5l/forge/event"
)

type harness struct {
	app      *cli.App
	out, err bytes.Buffer
}

func newHarness(t *testing.T, tasks ...*forge.Task) *harness {
	t.Helper()
	m := forge.NewManager()
	require.NoError(t, m.Register(tasks...))
	h := &harness{}
	h.app = &cli.App{
		Manager: m,
		Name:    "build",
		Out:     &h.out,
		Err:     &h.err,
		Environ: func() []string { return []string{"FORGE_TARGET=linux"} },
	}
	return h
}

func (h *harness) run(args ...string) int {
	return h.app.Run(context.Background(), append(args, "--no-color", "--log-level", "error"))
}

func TestRunDefaultTask(t *testing.T) {
	var ran []string
	record := func(name string) forge.Body {
		return func(context.Context, *forge.TaskContext) error { ran = append(ran, name); return nil }
	}
	h := newHarness(t,
		forge.NewTask("build", record("build")),
		forge.NewTask(forge.DefaultTask, record("default")).DependOn("build"),
	)

	assert.Equal(t, cli.ExitOK, h.run())
	assert.Equal(t, []string{"build", "default"}, ran)
	assert.Contains(t, h.out.String(), "Done SUCCESS")
	assert.Contains(t, h.out.String(), "(1/2)\tSUCCESS")
	assert.Contains(t, h.out.String(), "(2/2)\tSUCCESS")
}

func TestRunNamedTasksDirectly(t *testing.T) {
	var n atomic.Int32
	h := newHarness(t, forge.NewTask("lint", func(context.Context, *forge.TaskContext) error { n.Add(1); return nil }))

	assert.Equal(t, cli.ExitOK, h.run("lint"))
	assert.Equal(t, cli.ExitOK, h.run("run", "lint"))
	assert.EqualValues(t, 2, n.Load())
}

func TestRunFailureExitCode(t *testing.T) {
	h := newHarness(t,
		forge.NewTask("flaky", func(context.Context, *forge.TaskContext) error { return errors.New("tolerated") }).AllowFailure(),
		forge.NewTask("bad", func(context.Context, *forge.TaskContext) error { return errors.New("boom") }).DependOn("flaky"),
	)

	assert.Equal(t, cli.ExitFailure, h.run("bad"))
	out := h.out.String()
	assert.Contains(t, out, "Done FAILING")
	assert.Contains(t, out, "ALLOWED")
	assert.Contains(t, out, "FAILING")
	assert.NotContains(t, out, "\x1b[", "no escape codes with --no-color")
}

func TestRunNoSummary(t *testing.T) {
	h := newHarness(t, forge.NewTask("a", nil))
	assert.Equal(t, cli.ExitOK, h.run("a", "--no-summary"))
	assert.Empty(t, h.out.String())
}

func TestRunTimeout(t *testing.T) {
	h := newHarness(t,
		forge.NewTask("wait", func(ctx context.Context, _ *forge.TaskContext) error {
			<-ctx.Done()
			return ctx.Err()
		}),
	)
	start := time.Now()
	assert.Equal(t, cli.ExitFailure, h.run("wait", "--timeout", "20ms"))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestConfigLayers(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "build.yaml")
	require.NoError(t, os.WriteFile(file, []byte("go:\n  flags: -race\nmode: slow\n"), 0o600))

	var got map[string]string
	h := newHarness(t, forge.NewTask("show", func(_ context.Context, tc *forge.TaskContext) error {
		got = map[string]string{
			"target": tc.Config.String("target"),
			"flags":  tc.Config.String("go:flags"),
			"mode":   tc.Config.String("mode"),
		}
		return nil
	}))

	require.Equal(t, cli.ExitOK, h.run("show", "--config", file, "--set", "mode=fast"))
	assert.Equal(t, map[string]string{"target": "linux", "flags": "-race", "mode": "fast"}, got)
}

func TestConfigErrors(t *testing.T) {
	h := newHarness(t, forge.NewTask("a", nil))
	assert.Equal(t, cli.ExitFailure, h.run("a", "--config", filepath.Join(t.TempDir(), "missing.yaml")))
	assert.Equal(t, cli.ExitFailure, h.run("a", "--set", "novalue"))

	// h.run appends its own --log-level, which would win
	code := h.app.Run(context.Background(), []string{"a", "--no-color", "--log-level", "loud"})
	assert.Equal(t, cli.ExitFailure, code)
	assert.Contains(t, h.err.String(), "loud")
}

func TestPlan(t *testing.T) {
	h := newHarness(t,
		forge.NewTask("pre", nil),
		forge.NewTask("a", nil).DependOn("pre"),
		forge.NewTask("b", nil).DependOn("pre"),
		forge.NewTask(forge.DefaultTask, nil).DependOn("a", "b"),
	)

	require.Equal(t, cli.ExitOK, h.run("plan", "default", "ghost"))
	assert.Equal(t, "1. pre\n2. a, b\n3. default\nunknown task: ghost\n", h.out.String())
}

func TestPlanCycle(t *testing.T) {
	h := newHarness(t, forge.NewTask("a", nil).DependOn("a"))
	assert.Equal(t, cli.ExitFailure, h.run("plan", "a"))
}

func TestList(t *testing.T) {
	h := newHarness(t,
		forge.NewTask("build", nil).Describe("Compile."),
		forge.NewTask("test", nil).Describe("Run tests.").DependOn("build").AllowFailure(),
	)

	require.Equal(t, cli.ExitOK, h.run("list"))
	lines := strings.Split(strings.TrimSpace(h.out.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "build"))
	assert.Contains(t, lines[1], "(build)")

	h.out.Reset()
	require.Equal(t, cli.ExitOK, h.run("list", "--format", "yaml"))
	var infos []map[string]any
	require.NoError(t, yaml.Unmarshal(h.out.Bytes(), &infos))
	require.Len(t, infos, 2)
	assert.Equal(t, "test", infos[1]["name"])
	assert.Equal(t, true, infos[1]["continue_on_error"])

	assert.Equal(t, cli.ExitFailure, h.run("list", "--format", "xml"))
}

func TestServe(t *testing.T) {
	var n atomic.Int32
	h := newHarness(t)
	require.NoError(t, h.app.Manager.Handle(forge.On("tick",
		event.Limit(event.Periodic(time.Millisecond), 3),
		forge.NewTask("count", func(context.Context, *forge.TaskContext) error { n.Add(1); return nil }),
		false,
	)))

	assert.Equal(t, cli.ExitOK, h.run("serve", "--metrics-addr", "127.0.0.1:0"))
	assert.EqualValues(t, 3, n.Load())
}

func TestServeStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.app.Manager.Handle(forge.On("forever",
		event.Periodic(time.Millisecond), forge.NewTask("noop", nil), false)))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	code := h.app.Run(ctx, []string{"serve", "--log-level", "error"})
	assert.Equal(t, cli.ExitOK, code)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "SUCCESS", cli.Describe(forge.TaskResult{Status: forge.ResultSucceeded}))
	assert.Equal(t, "SKIPPED", cli.Describe(forge.TaskResult{Status: forge.ResultSkipped}))
	assert.Equal(t, "FAILING", cli.Describe(forge.TaskResult{Status: forge.ResultFailed, Err: errors.New("x")}))
	assert.Equal(t, "ALLOWED", cli.Describe(forge.TaskResult{Status: forge.ResultFailed, Err: errors.New("x"), ContinueOnError: true}))
}

func TestSummaryReportsCancelAndUnmatched(t *testing.T) {
	var buf bytes.Buffer
	cli.Summary(&buf, forge.PipelineResult{Canceled: true, Unmatched: []string{"ghost"}}, false)
	assert.Equal(t, "Done CANCELED (0s)\nwarning: unknown task ghost\n", buf.String())
}
