package vxexec

import (
	"fmt"

	"github.com/vx-dev/vx/internal/provider"
)

// ResolveError is returned by Resolve: the primary runtime is unknown or
// its platform support excludes the current platform.
type ResolveError struct {
	Runtime   string
	Supported []provider.Platform
	Current   provider.Platform
	Reason    string
}

func (e *ResolveError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("resolve %s: %s", e.Runtime, e.Reason)
	}
	return fmt.Sprintf("resolve %s: unsupported on %s (supported: %v)", e.Runtime, e.Current, e.Supported)
}

// EnsureError is returned by Ensure: a required install failed, or
// auto-install is disabled and something is missing.
type EnsureError struct {
	Runtime string
	Version string
	Err     error
}

func (e *EnsureError) Error() string {
	return fmt.Sprintf("ensure %s@%s: %v", e.Runtime, e.Version, e.Err)
}
func (e *EnsureError) Unwrap() error { return e.Err }

// AutoInstallDisabledError is a distinguished EnsureError cause so callers
// can render "pass --install or enable auto-install" instead of a generic
// failure.
type AutoInstallDisabledError struct {
	Runtime string
	Version string
}

func (e *AutoInstallDisabledError) Error() string {
	return fmt.Sprintf("%s@%s is not installed and auto-install is disabled", e.Runtime, e.Version)
}

// PrepareError is returned by Prepare: environment assembly or a provider's
// PrepareExecution hook failed.
type PrepareError struct {
	Runtime string
	Err     error
}

func (e *PrepareError) Error() string { return fmt.Sprintf("prepare %s: %v", e.Runtime, e.Err) }
func (e *PrepareError) Unwrap() error { return e.Err }

// ProxyNotAvailableError is a distinguished PrepareError cause: a
// proxy-managed runtime's PrepareExecution reported it isn't ready
// (spec §4.7's Prepare stage).
type ProxyNotAvailableError struct {
	Runtime string
}

func (e *ProxyNotAvailableError) Error() string {
	return fmt.Sprintf("%s is proxy-managed and not ready to execute", e.Runtime)
}

// OfflineError is raised by cmd/vx's offline-routing check (spec §4.7
// "Offline routing") before Ensure ever runs: the network looks
// unreachable (or --offline was forced) and the requested tool is not
// covered by the project bundle. NoBundle reports that no bundle exists at
// all; Missing reports that the bundle lists the tool but not the resolved
// version. A bundle that does not list the tool sets neither.
type OfflineError struct {
	Runtime  string
	Missing  bool
	NoBundle bool
}

func (e *OfflineError) Error() string {
	if e.NoBundle {
		return fmt.Sprintf("%s: no bundle available and network is offline", e.Runtime)
	}
	return fmt.Sprintf("%s: not found in bundle, run 'vx bundle create' while online", e.Runtime)
}

// Hint returns the one-line remediation suggestion spec §7 requires fatal
// errors to carry when one is available.
func (e *OfflineError) Hint() string {
	if e.NoBundle {
		return "run 'vx bundle create' while online"
	}
	return "run 'vx bundle create' while online"
}

// ExecuteError is returned by Execute: the child process could not be
// started, or a configured timeout expired.
type ExecuteError struct {
	Executable string
	Err        error
	TimedOut   bool
}

func (e *ExecuteError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("execute %s: timed out", e.Executable)
	}
	return fmt.Sprintf("execute %s: %v", e.Executable, e.Err)
}
func (e *ExecuteError) Unwrap() error { return e.Err }

// ExitCode maps a pipeline-stage error (or nil) to the process exit code
// vx itself should return (spec §6: "2 for CLI-parse errors; 1 for a core
// failure before the child is spawned (install error, resolve error,
// etc.)"): the child's own code when it ran, 128+signal when it was
// killed by a signal, 1 for any failure in Resolve/Ensure/Prepare, and 2
// reserved for cmd/vx's own argument-parsing failures (never produced by
// this package, which never sees raw CLI input). 130 on Ctrl-C is applied
// by cmd/vx itself, outside this mapping.
func ExitCode(err error, childExitCode int, ran bool) int {
	if ran {
		return childExitCode
	}
	return 1
}
