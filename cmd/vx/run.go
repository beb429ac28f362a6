package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vx-dev/vx/internal/bundle"
	"github.com/vx-dev/vx/internal/depgraph"
	"github.com/vx-dev/vx/internal/fetch"
	"github.com/vx-dev/vx/internal/installer"
	"github.com/vx-dev/vx/internal/project"
	"github.com/vx-dev/vx/internal/provider"
	"github.com/vx-dev/vx/internal/selector"
	vxstar "github.com/vx-dev/vx/internal/starlark"
	"github.com/vx-dev/vx/internal/vxexec"
	"github.com/vx-dev/vx/internal/vxlog"
	"github.com/vx-dev/vx/internal/vxpath"
)

// parseTarget splits a command-line runtime token into its canonical
// pieces: `msvc@14.42::cl` requests msvc 14.42 but runs the store's cl
// binary instead of msvc's own declared executable (spec §6: "<runtime>
// may be runtime::executable to override which file inside the runtime's
// store to run").
func parseTarget(spec string) (name, version, executableOverride string) {
	name = spec
	if idx := strings.Index(name, "::"); idx >= 0 {
		executableOverride = name[idx+2:]
		name = name[:idx]
	}
	if idx := strings.Index(name, "@"); idx >= 0 {
		version = name[idx+1:]
		name = name[:idx]
	}
	return name, version, executableOverride
}

func runRoot(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		_ = cmd.Help()
		exitWithCode(ExitUsage)
		return nil
	}

	name, explicitVersion, executableOverride := parseTarget(args[0])
	childArgs := args[1:]

	ctx := globalCtx
	layout, err := vxpath.NewLayout()
	if err != nil {
		exitWithCode(ExitGeneral)
		return nil
	}
	if err := layout.EnsureDirectories(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		exitWithCode(ExitGeneral)
		return nil
	}

	platform, err := provider.ParsePlatform(vxpath.CurrentPlatform())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		exitWithCode(ExitGeneral)
		return nil
	}

	registry := provider.NewRegistry()
	gh := provider.NewGithubClientSource(os.Getenv("VX_GITHUB_TOKEN"))
	if err := provider.RegisterBuiltins(registry, gh); err != nil {
		fmt.Fprintln(os.Stderr, err)
		exitWithCode(ExitGeneral)
		return nil
	}
	sandbox := vxstar.New(vxstar.NewAnalysisCache())
	if err := provider.RegisterStarlark(registry, layout.ProvidersDir(), sandbox); err != nil {
		fmt.Fprintln(os.Stderr, err)
		exitWithCode(ExitGeneral)
		return nil
	}

	fetchClient := fetch.New(fetch.Options{CacheDir: layout.DownloadsCache()})
	inst := installer.New(layout, fetchClient)

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		exitWithCode(ExitGeneral)
		return nil
	}

	projectCfg, err := project.Load(cwd)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		exitWithCode(ExitGeneral)
		return nil
	}

	var lockfile *project.Lockfile
	if projectCfg != nil {
		lockfile, err = project.LoadLockfile(projectCfg.LockPath())
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			exitWithCode(ExitGeneral)
			return nil
		}
	}

	installedLookup := newInstalledLookup(layout, registry, platform.String())
	depResolver := depgraph.New(registry, platform, installedLookup)
	sel := selector.New(vxlog.Default())

	injected := make(map[string]vxexec.VersionSources, len(withSpecs))
	for _, spec := range withSpecs {
		depName, depVersion, _ := parseTarget(spec)
		injected[depName] = sourcesFor(depName, depVersion, projectCfg, lockfile, layout, registry, platform.String())
	}

	req := vxexec.ResolveRequest{
		RuntimeName:          name,
		Sources:              sourcesFor(name, explicitVersion, projectCfg, lockfile, layout, registry, platform.String()),
		Injected:             injected,
		InstalledVersionsFor: func(depName string) []string { return installedVersions(layout, depName) },
	}

	plan, err := vxexec.Resolve(ctx, registry, depResolver, sel, platform, req)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		exitWithCode(vxexec.ExitCode(err, 0, false))
		return nil
	}

	skipEnsure, err := routeOffline(projectCfg, cwd, layout, registry, platform.String(), plan)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		exitWithCode(vxexec.ExitCode(err, 0, false))
		return nil
	}

	if !skipEnsure {
		var installOptsFor func(string) provider.InstallOptions
		if projectCfg != nil {
			installOptsFor = func(n string) provider.InstallOptions { return projectCfg.InstallOptionsFor(n) }
		}
		if err := vxexec.Ensure(ctx, registry, inst, plan, vxexec.EnsureOptions{AutoInstall: true, InstallOptionsFor: installOptsFor}); err != nil {
			fmt.Fprintln(os.Stderr, err)
			exitWithCode(vxexec.ExitCode(err, 0, false))
			return nil
		}
	}

	if executableOverride != "" {
		plan.Primary.ExecutablePath = layout.ExecutablePath(plan.Primary.Name, plan.Primary.ResolvedVersion, platform.String(), executableOverride)
	}

	if lockfile != nil {
		lockfile.Set(name, plan.Primary.ResolvedVersion, string(plan.Primary.VersionSource))
		if err := lockfile.Save(); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}

	prepared, err := vxexec.Prepare(ctx, registry, layout, plan, vxexec.PrepareOptions{
		Args:          childArgs,
		WorkingDir:    cwd,
		UseSystemPath: useSystemPathFlag,
		InheritEnv:    inheritEnvFlag,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		exitWithCode(vxexec.ExitCode(err, 0, false))
		return nil
	}

	timeout, _ := vxpath.GetExecTimeout()
	exitCode, err := vxexec.Execute(ctx, prepared, timeout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		exitWithCode(vxexec.ExitCode(err, 0, false))
		return nil
	}

	exitWithCode(vxexec.ExitCode(nil, exitCode, true))
	return nil
}

// sourcesFor assembles a VersionSources from every input the selector's
// priority chain (spec §4.3) can draw on for one runtime name: the
// command-line override, the project pin, the lockfile, what's already on
// disk, and (lazily) the runtime's own remote version list.
func sourcesFor(name, explicitVersion string, cfg *project.Config, lf *project.Lockfile, layout *vxpath.Layout, registry *provider.Registry, platform string) vxexec.VersionSources {
	srcs := vxexec.VersionSources{
		ExplicitVersion:   explicitVersion,
		ProjectVersion:    cfg.VersionFor(name),
		LockfileVersion:   lf.VersionFor(name),
		InstalledVersions: installedVersions(layout, name),
	}
	if rt, ok := registry.Get(name); ok {
		srcs.FetchRemote = func(ctx context.Context) ([]string, error) {
			infos, err := rt.FetchVersions(ctx)
			if err != nil {
				return nil, err
			}
			versions := make([]string, len(infos))
			for i, v := range infos {
				versions[i] = v.Version
			}
			return versions, nil
		}
	}
	return srcs
}

// routeOffline applies the offline-bundle short-circuit (spec §4.7
// "Offline routing"): a bundle hit redirects execution to the bundle's
// copy and skips Ensure entirely; a miss while offline fails fast instead
// of letting Ensure attempt (and hang on) a download.
func routeOffline(cfg *project.Config, cwd string, layout *vxpath.Layout, registry *provider.Registry, platform string, plan *vxexec.ExecutionPlan) (skipEnsure bool, err error) {
	projectRoot := cwd
	if cfg != nil {
		projectRoot = cfg.Dir
	}
	bundleDir := layout.BundleDir(projectRoot)

	lookup, lookupErr := bundle.NewLookup(bundleDir)
	noBundle := os.IsNotExist(lookupErr)
	if lookupErr != nil && !noBundle {
		return false, lookupErr
	}

	primary := plan.Primary
	if !noBundle {
		if dir, ok := lookup.Resolve(primary.Name, primary.ResolvedVersion, platform); ok {
			relPath := ""
			if rt, ok := registry.Get(primary.Name); ok {
				relPath = rt.Descriptor().ExecutableRelPath
			}
			primary.InstallDir = dir
			primary.ExecutablePath = filepath.Join(dir, filepath.FromSlash(relPath))
			primary.Status = vxexec.StatusInstalled
			return true, nil
		}
	}

	if !offlineFlag && isOnline(globalCtx) {
		return false, nil
	}

	if noBundle {
		return false, &vxexec.OfflineError{Runtime: primary.Name, NoBundle: true}
	}
	if !lookup.HasTool(primary.Name) {
		return false, &vxexec.OfflineError{Runtime: primary.Name}
	}
	// The bundle carries some version of the tool but not the one that was
	// resolved for this platform: still a miss for this exact request.
	return false, &vxexec.OfflineError{Runtime: primary.Name, Missing: true}
}
