// Package vxexec implements the Resolve -> Ensure -> Prepare -> Execute
// pipeline (spec §4.7) that turns one command-line invocation into a
// running child process and an exit code. It is named apart from the
// teacher's own internal/executor (a batch installation-plan generator for
// its recipe DSL) to keep the two pipelines' very different data models
// from colliding in one package; see DESIGN.md for what became of that
// package.
package vxexec

import (
	"github.com/vx-dev/vx/internal/provider"
	"github.com/vx-dev/vx/internal/selector"
)

// RuntimeStatus is a PlannedRuntime's coarse state.
type RuntimeStatus string

const (
	StatusInstalled           RuntimeStatus = "installed"
	StatusNeedsInstall        RuntimeStatus = "needs_install"
	StatusPlatformUnsupported RuntimeStatus = "platform_unsupported"
)

// PlannedRuntime is one runtime's slot in an ExecutionPlan: the primary
// target, a dependency, or a --with-injected extra.
type PlannedRuntime struct {
	Name              string
	RequestedVersion  string // as given by selector.Resolve: may be a range, "latest", or concrete
	ResolvedVersion   string // concrete version once Ensure has run; == RequestedVersion until then
	VersionSource     selector.Source
	Status            RuntimeStatus
	UnsupportedReason string
	ExecutablePath    string
	InstallDir        string
	// BundledWithName is the parent runtime's canonical name when this
	// PlannedRuntime is bundled_with another tool (e.g. "npx" -> "node").
	// Only ever set on Primary; a bundled runtime is never installed on its
	// own and never appears among Dependencies itself.
	BundledWithName string
}

// needsInstall reports whether Ensure must still materialize this runtime.
func (p *PlannedRuntime) needsInstall() bool {
	return p.Status == StatusNeedsInstall
}

// ExecutionPlan is Resolve's output, mutated in place by Ensure and Prepare.
type ExecutionPlan struct {
	Primary      *PlannedRuntime
	Dependencies []*PlannedRuntime
	Injected     []*PlannedRuntime // --with <spec> entries
	Platform     provider.Platform
}

// forEnsure returns every planned runtime in install order: dependencies
// first, then the primary, then injected extras (spec §4.7's Ensure stage).
func (p *ExecutionPlan) forEnsure() []*PlannedRuntime {
	out := make([]*PlannedRuntime, 0, len(p.Dependencies)+1+len(p.Injected))
	out = append(out, p.Dependencies...)
	out = append(out, p.Primary)
	out = append(out, p.Injected...)
	return out
}

// findDependency returns the planned dependency with the given name, or nil.
func (p *ExecutionPlan) findDependency(name string) *PlannedRuntime {
	for _, dep := range p.Dependencies {
		if dep.Name == name {
			return dep
		}
	}
	return nil
}

// PreparedExecution is Prepare's output: everything Execute needs to spawn
// the child process.
type PreparedExecution struct {
	Executable    string
	CommandPrefix []string
	Args          []string
	Env           []string
	WorkingDir    string
	InheritVXPath bool
	VXToolsPath   string
}
