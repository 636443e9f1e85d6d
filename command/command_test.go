package command_test

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a2y-d5l/forge/command"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX utilities")
	}
}

func TestExecSuccessCaptured(t *testing.T) {
	requireUnix(t)

	res, err := command.Exec(context.Background(), command.Args{
		Cmd:     []string{"cat"},
		Input:   "hello",
		Capture: true,
	})
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.False(t, res.TimedOut())
	assert.Equal(t, 0, res.Code())
	assert.Equal(t, "hello", res.Stdout)
	assert.Equal(t, "SUCCESS", res.Describe())
}

func TestExecNonZeroExit(t *testing.T) {
	requireUnix(t)

	res, err := command.Exec(context.Background(), command.Args{
		Cmd:     []string{"sh", "-c", "echo oops >&2; exit 3"},
		Capture: true,
	})
	require.NoError(t, err)
	assert.False(t, res.OK())
	assert.False(t, res.TimedOut())
	assert.Equal(t, 3, res.Code())
	assert.Equal(t, "oops\n", res.Stderr)
	assert.Equal(t, "FAILING(3)", res.Describe())
}

func TestExecTimeout(t *testing.T) {
	requireUnix(t)

	res, err := command.Exec(context.Background(), command.Args{
		Cmd:     []string{"sleep", "5"},
		Timeout: 50 * time.Millisecond,
		Capture: true,
	})
	require.NoError(t, err)
	assert.False(t, res.OK())
	assert.True(t, res.TimedOut())
	assert.Nil(t, res.ExitCode)
	assert.Equal(t, "TIMEOUT", res.Describe())
	assert.Less(t, res.Duration, 5*time.Second)
}

func TestExecShellEnvAndDir(t *testing.T) {
	requireUnix(t)

	dir := t.TempDir()
	res, err := command.Exec(context.Background(), command.Args{
		Cmd:     []string{"echo", "$FORGE_TEST_VALUE", "&&", "pwd", "-P"},
		Env:     map[string]string{"FORGE_TEST_VALUE": "42"},
		Dir:     dir,
		Shell:   true,
		Capture: true,
	})
	require.NoError(t, err)
	require.True(t, res.OK())

	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Contains(t, res.Stdout, "42\n")
	assert.Contains(t, res.Stdout, resolved)
}

func TestExecStartFailure(t *testing.T) {
	_, err := command.Exec(context.Background(), command.Args{Cmd: []string{"forge-no-such-binary"}})
	assert.Error(t, err)

	_, err = command.Exec(context.Background(), command.Args{})
	assert.Error(t, err)
}

func TestRunRetriesThenFails(t *testing.T) {
	requireUnix(t)

	logger, hook := test.NewNullLogger()
	res, err := command.Run(context.Background(), command.Args{
		Cmd:     []string{"cat", filepath.Join(t.TempDir(), "missingfile")},
		Capture: true,
	}, command.WithRetry(3), command.WithLogger(logger))

	var exitErr *command.ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 4, res.Attempts)
	assert.NotZero(t, exitErr.Result.Code())
	assert.Contains(t, err.Error(), "missingfile")

	retries := 0
	for _, e := range hook.AllEntries() {
		if _, ok := e.Data["retry"]; ok {
			retries++
		}
	}
	assert.Equal(t, 3, retries)
}

func TestRunAllowFailure(t *testing.T) {
	requireUnix(t)

	logger, _ := test.NewNullLogger()
	res, err := command.Run(context.Background(), command.Args{
		Cmd:     []string{"false"},
		Capture: true,
	}, command.WithRetry(1), command.AllowFailure(), command.WithLogger(logger))

	require.NoError(t, err)
	assert.False(t, res.OK())
	assert.Equal(t, 2, res.Attempts)
}

func TestRunTimeoutError(t *testing.T) {
	requireUnix(t)

	logger, _ := test.NewNullLogger()
	_, err := command.Run(context.Background(), command.Args{
		Cmd:     []string{"sleep", "5"},
		Timeout: 20 * time.Millisecond,
		Capture: true,
	}, command.WithLogger(logger))

	var timeoutErr *command.TimeoutError
	require.True(t, errors.As(err, &timeoutErr))
	assert.True(t, timeoutErr.Result.TimedOut())
}

func TestRunSucceedsWithoutRetry(t *testing.T) {
	requireUnix(t)

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	res, err := command.Run(context.Background(), command.Args{
		Cmd:     []string{"true"},
		Capture: true,
	}, command.WithRetry(5), command.WithLogger(logger))

	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempts)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "SUCCESS", hook.LastEntry().Data["result"])
}
