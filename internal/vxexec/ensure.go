package vxexec

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/vx-dev/vx/internal/provider"
)

// RuntimeInstaller is the subset of *installer.Installer Ensure depends on.
type RuntimeInstaller interface {
	Install(ctx context.Context, rt provider.Runtime, version string, opts provider.InstallOptions) (*provider.InstallResult, error)
}

// EnsureOptions configures Ensure's behavior.
type EnsureOptions struct {
	AutoInstall bool
	// InstallOptionsFor supplies per-runtime extra install options sourced
	// from a project's [tools.<name>] table (e.g. MSVC components).
	InstallOptionsFor func(name string) provider.InstallOptions
}

// Ensure materializes every NeedsInstall runtime in the plan, in
// dependencies-then-primary-then-injected order (spec §4.7's Ensure
// stage), and rewrites each entry's ResolvedVersion/ExecutablePath/
// InstallDir to the concrete, on-disk result. Proxy-managed runtimes
// (IsVersionInstallable == false) still go through the installer, which
// itself skips the download and leaves resolution to the later Prepare
// stage's PrepareExecution call.
func Ensure(ctx context.Context, registry *provider.Registry, inst RuntimeInstaller, plan *ExecutionPlan, opts EnsureOptions) error {
	for _, pr := range plan.forEnsure() {
		if pr.BundledWithName != "" {
			// Never installed on its own; its parent is a regular
			// Dependencies entry and gets ensured in this same loop
			// (dependencies run before the primary in forEnsure's order).
			continue
		}
		if !pr.needsInstall() {
			continue
		}
		if !opts.AutoInstall {
			return &EnsureError{Runtime: pr.Name, Version: pr.RequestedVersion, Err: &AutoInstallDisabledError{Runtime: pr.Name, Version: pr.RequestedVersion}}
		}

		rt, ok := registry.Get(pr.Name)
		if !ok {
			return &EnsureError{Runtime: pr.Name, Version: pr.RequestedVersion, Err: fmt.Errorf("no provider registered")}
		}

		var installOpts provider.InstallOptions
		if opts.InstallOptionsFor != nil {
			installOpts = opts.InstallOptionsFor(pr.Name)
		}

		result, err := inst.Install(ctx, rt, pr.RequestedVersion, installOpts)
		if err != nil {
			return &EnsureError{Runtime: pr.Name, Version: pr.RequestedVersion, Err: err}
		}

		// The requested version may have been a range or "latest"; the
		// directory actually created on disk holds the concrete version,
		// and every later stage must look at that, not the request.
		pr.ResolvedVersion = concreteVersion(pr.RequestedVersion, result)
		pr.Status = StatusInstalled
		pr.InstallDir = result.InstallDir
		pr.ExecutablePath = result.ExecutablePath
	}

	if plan.Primary.BundledWithName != "" {
		if err := resolveBundledPrimary(registry, plan); err != nil {
			return err
		}
	}

	return nil
}

// resolveBundledPrimary locates a bundled primary's executable inside its
// already-ensured parent's installed tree (spec §8 scenario 4: "executable
// path is {store}/node/20.1.0/{plat}/bin/npx... Ensure is a no-op" once the
// parent itself is present).
func resolveBundledPrimary(registry *provider.Registry, plan *ExecutionPlan) error {
	primary := plan.Primary
	parent := plan.findDependency(primary.BundledWithName)
	if parent == nil || parent.InstallDir == "" {
		return &EnsureError{Runtime: primary.Name, Version: primary.RequestedVersion,
			Err: fmt.Errorf("bundled parent %s was not ensured", primary.BundledWithName)}
	}

	rt, ok := registry.Get(primary.Name)
	if !ok {
		return &EnsureError{Runtime: primary.Name, Version: primary.RequestedVersion, Err: fmt.Errorf("no provider registered")}
	}

	primary.ResolvedVersion = parent.ResolvedVersion
	primary.Status = StatusInstalled
	primary.InstallDir = parent.InstallDir
	if relPath := rt.Descriptor().ExecutableRelPath; relPath != "" {
		primary.ExecutablePath = filepath.Join(parent.InstallDir, relPath)
	}
	return nil
}

// concreteVersion prefers the directory name the installer actually used
// (recovered from InstallDir) over the request string, falling back to the
// request when the installer didn't report an install dir (e.g. a
// proxy-managed runtime with nothing to install yet).
func concreteVersion(requested string, result *provider.InstallResult) string {
	if result == nil || result.InstallDir == "" {
		return requested
	}
	return versionFromInstallDir(result.InstallDir)
}

// versionFromInstallDir extracts the version path segment from
// {store}/{name}/{version}/{platform}, matching vxpath.Layout.PlatformDir's
// construction.
func versionFromInstallDir(installDir string) string {
	return filepath.Base(filepath.Dir(installDir))
}
