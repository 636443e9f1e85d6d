// Package command runs external processes for task bodies.
//
// Exec runs a process once and reports how it ended. Run adds retries and
// turns a failing final result into an error unless AllowFailure is set:
//
//	res, err := command.Run(ctx, command.Args{
//	    Cmd:     []string{"go", "test", "./..."},
//	    Timeout: 5 * time.Minute,
//	}, command.WithRetry(2))
package command

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Args describes one process invocation.
type Args struct {
	// Cmd is the program followed by its arguments. In shell mode the
	// elements are joined with spaces and handed to the shell.
	Cmd []string
	// Env holds variables set on top of the current environment.
	Env map[string]string
	// Dir is the working directory; empty means the current one.
	Dir string
	// Timeout kills the process after the given duration. Zero means none.
	Timeout time.Duration
	// Input is written to the process's stdin.
	Input string
	// Shell runs Cmd through the system shell.
	Shell bool
	// Capture collects stdout and stderr into the Result instead of
	// streaming them to the terminal.
	Capture bool
}

func (a Args) String() string {
	return strings.Join(a.Cmd, " ")
}

// Result is the outcome of one process invocation.
type Result struct {
	Args     Args
	Duration time.Duration
	// ExitCode is nil when the process was killed by the timeout.
	ExitCode *int
	Stdout   string
	Stderr   string
	// Attempts counts the invocations Run made, retries included.
	Attempts int
}

// OK reports whether the process exited with code 0.
func (r Result) OK() bool {
	return r.ExitCode != nil && *r.ExitCode == 0
}

// TimedOut reports whether the process was killed by the timeout.
func (r Result) TimedOut() bool {
	return r.ExitCode == nil
}

// Code returns the exit code, or -1 after a timeout.
func (r Result) Code() int {
	if r.ExitCode == nil {
		return -1
	}
	return *r.ExitCode
}

// Describe returns SUCCESS, TIMEOUT or FAILING(code).
func (r Result) Describe() string {
	switch {
	case r.OK():
		return "SUCCESS"
	case r.TimedOut():
		return "TIMEOUT"
	default:
		return fmt.Sprintf("FAILING(%d)", *r.ExitCode)
	}
}

func (r Result) output() string {
	return "Standard Output:\n" + r.Stdout + "\nStandard Error:\n" + r.Stderr
}

// ExitError reports a process that exited with a non-zero code.
type ExitError struct {
	Result Result
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command: %q failed (%s): exit code %d\n%s",
		e.Result.Args.String(), e.Result.Duration, e.Result.Code(), e.Result.output())
}

// TimeoutError reports a process killed by its timeout.
type TimeoutError struct {
	Result Result
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("command: %q timed out (%s)\n%s",
		e.Result.Args.String(), e.Result.Duration, e.Result.output())
}

// Exec runs the process once. The returned error is non-nil only when the
// process could not be started or ctx was cancelled; a non-zero exit or a
// timeout is reported through the Result.
func Exec(ctx context.Context, args Args) (Result, error) {
	res := Result{Args: args}
	if len(args.Cmd) == 0 {
		return res, errors.New("command: empty command")
	}

	runCtx := ctx
	if args.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, args.Timeout)
		defer cancel()
	}

	cmd := build(runCtx, args)
	var stdout, stderr bytes.Buffer
	if args.Capture {
		cmd.Stdout, cmd.Stderr = &stdout, &stderr
	} else {
		cmd.Stdout, cmd.Stderr = os.Stdout, os.Stderr
	}

	start := time.Now()
	err := cmd.Run()
	res.Duration = time.Since(start)
	res.Stdout, res.Stderr = stdout.String(), stderr.String()

	switch {
	case ctx.Err() != nil:
		return res, errors.Wrapf(ctx.Err(), "command: %q", args.String())
	case args.Timeout > 0 && runCtx.Err() == context.DeadlineExceeded:
		// timed out; ExitCode stays nil
	case err == nil:
		code := 0
		res.ExitCode = &code
	default:
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return res, errors.Wrapf(err, "command: start %q", args.String())
		}
		code := exitErr.ExitCode()
		res.ExitCode = &code
	}
	return res, nil
}

func build(ctx context.Context, args Args) *exec.Cmd {
	var cmd *exec.Cmd
	if args.Shell {
		line := strings.Join(args.Cmd, " ")
		if runtime.GOOS == "windows" {
			cmd = exec.CommandContext(ctx, "cmd", "/C", line)
		} else {
			cmd = exec.CommandContext(ctx, "sh", "-c", line)
		}
	} else {
		cmd = exec.CommandContext(ctx, args.Cmd[0], args.Cmd[1:]...)
	}
	// don't hang on pipes held open by grandchildren after a kill
	cmd.WaitDelay = time.Second

	cmd.Dir = args.Dir
	if len(args.Env) > 0 {
		cmd.Env = mergeEnv(os.Environ(), args.Env)
	}
	if args.Input != "" {
		cmd.Stdin = strings.NewReader(args.Input)
	}
	return cmd
}

func mergeEnv(base []string, overrides map[string]string) []string {
	out := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		k, _, _ := strings.Cut(kv, "=")
		if _, ok := overrides[k]; ok {
			continue
		}
		out = append(out, kv)
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+overrides[k])
	}
	return out
}
