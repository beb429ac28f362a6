package vxexec

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// killGracePeriod is how long a timed-out child gets to exit after being
// asked nicely (SIGTERM on Unix) before Execute escalates to a hard kill.
const killGracePeriod = 5 * time.Second

// Execute spawns the prepared command, inheriting stdio from the current
// process, and returns its exit code (spec §4.7's Execute stage). A zero
// timeout means no deadline. On Windows, .cmd/.bat targets are wrapped via
// cmd.exe /c since exec.Command cannot invoke them directly.
func Execute(ctx context.Context, prep *PreparedExecution, timeout time.Duration) (exitCode int, err error) {
	name, args := resolveCommand(prep)

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = prep.Env
	cmd.Dir = prep.WorkingDir
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	configureGracefulCancel(cmd, killGracePeriod)

	runErr := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return 0, &ExecuteError{Executable: name, TimedOut: true}
	}
	if runErr == nil {
		return 0, nil
	}

	if exitErr, ok := runErr.(*exec.ExitError); ok {
		if code, signaled := exitFromState(exitErr); signaled {
			return code, nil
		}
		return exitErr.ExitCode(), nil
	}

	return 0, &ExecuteError{Executable: name, Err: runErr}
}

// resolveCommand applies command_prefix and the Windows .cmd/.bat wrapping
// rule, returning the program to exec and its full argument list.
func resolveCommand(prep *PreparedExecution) (string, []string) {
	exe := prep.Executable
	args := append(append([]string{}, prep.CommandPrefix...), prep.Args...)

	if runtime.GOOS == "windows" {
		ext := strings.ToLower(filepath.Ext(exe))
		if ext == ".cmd" || ext == ".bat" {
			return "cmd.exe", append([]string{"/c", exe}, args...)
		}
	}

	return exe, args
}
