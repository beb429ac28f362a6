//go:build windows

package vxexec

import (
	"os/exec"
	"time"
)

// exitFromState: Windows has no POSIX signal-termination concept in
// syscall.WaitStatus, so a child's exit code is always taken at face value.
func exitFromState(exitErr *exec.ExitError) (code int, signaled bool) {
	return 0, false
}

// configureGracefulCancel: Windows has no SIGTERM equivalent exec.Cmd can
// send, so a cancelled context falls back to exec.Cmd's default immediate
// taskkill-style termination.
func configureGracefulCancel(cmd *exec.Cmd, grace time.Duration) {}
