package vxexec

import (
	"context"
	"fmt"
	"os"

	"github.com/vx-dev/vx/internal/envbuild"
	"github.com/vx-dev/vx/internal/provider"
	"github.com/vx-dev/vx/internal/vxpath"
)

// PrepareOptions carries the invocation-level inputs Prepare needs beyond
// the plan itself.
type PrepareOptions struct {
	Args          []string
	WorkingDir    string
	UseSystemPath bool
	InheritEnv    bool
}

// Prepare builds the environment map via internal/envbuild and, for a
// bundled or proxy-managed runtime that still has no absolute executable
// path after Ensure, calls the provider's PrepareExecution hook (spec
// §4.7's Prepare stage).
func Prepare(ctx context.Context, registry *provider.Registry, layout *vxpath.Layout, plan *ExecutionPlan, opts PrepareOptions) (*PreparedExecution, error) {
	primary := plan.Primary
	rt, ok := registry.Get(primary.Name)
	if !ok {
		return nil, &PrepareError{Runtime: primary.Name, Err: fmt.Errorf("no provider registered")}
	}
	desc := rt.Descriptor()

	// A bundled primary (npx, npm, pip...) has no env_config of its own;
	// its environment is computed from its parent's (spec §8 scenario 4).
	envRt := rt
	if primary.BundledWithName != "" {
		if parentRT, ok := registry.Get(primary.BundledWithName); ok {
			desc = parentRT.Descriptor()
			envRt = parentRT
		}
	}

	pctx := &provider.ProviderContext{Context: ctx, Platform: plan.Platform, InstallDir: primary.InstallDir}

	executable := primary.ExecutablePath
	var commandPrefix []string
	envVars := make(map[string]string)
	var pathPrepend []string

	if executable == "" {
		prep, err := rt.PrepareExecution(ctx, primary.ResolvedVersion, pctx)
		if err != nil {
			return nil, &PrepareError{Runtime: primary.Name, Err: err}
		}
		if prep == nil || !prep.ProxyReady {
			return nil, &PrepareError{Runtime: primary.Name, Err: &ProxyNotAvailableError{Runtime: primary.Name}}
		}
		if prep.ExecutableOverride != "" {
			executable = prep.ExecutableOverride
		}
		if prep.UseSystemPath {
			opts.UseSystemPath = true
			executable = desc.ExecutableName
		}
		commandPrefix = prep.CommandPrefix
		for k, v := range prep.EnvVars {
			envVars[k] = v
		}
		pathPrepend = prep.PathPrepend
	}

	envVars = mergeRuntimeEnv(ctx, registry, plan, envRt, primary, pctx, envVars)

	tc := envbuild.TemplateContext{
		InstallDir:    primary.InstallDir,
		Version:       primary.ResolvedVersion,
		Executable:    executable,
		ParentPath:    os.Getenv("PATH"),
		VXToolBinDirs: []string{layout.Bin()},
	}
	if opts.UseSystemPath {
		tc.VXToolBinDirs = nil
	}

	cfg := desc.EnvConfig
	if len(pathPrepend) > 0 {
		entries := make([]provider.PathEntry, 0, len(pathPrepend)+len(cfg.PathPrepend))
		for _, p := range pathPrepend {
			entries = append(entries, provider.PathEntry{Template: p})
		}
		entries = append(entries, cfg.PathPrepend...)
		cfg.PathPrepend = entries
	}
	if opts.InheritEnv {
		cfg.Isolate = false
	}

	env := envbuild.Build(cfg, tc, envVars)

	return &PreparedExecution{
		Executable:    executable,
		CommandPrefix: commandPrefix,
		Args:          opts.Args,
		Env:           env,
		WorkingDir:    opts.WorkingDir,
		InheritVXPath: cfg.InheritVXPath,
		VXToolsPath:   layout.Bin(),
	}, nil
}

// mergeRuntimeEnv layers every dependency's PrepareEnvironment (applied to
// all invocations that use it, directly or transitively) under the
// primary's own ExecutionEnvironment (applied only when it is the direct
// target), so the primary's choices win on conflict.
func mergeRuntimeEnv(ctx context.Context, registry *provider.Registry, plan *ExecutionPlan, primaryRt provider.Runtime, primary *PlannedRuntime, pctx *provider.ProviderContext, seed map[string]string) map[string]string {
	merged := make(map[string]string, len(seed))
	for k, v := range seed {
		merged[k] = v
	}

	for _, dep := range plan.Dependencies {
		rt, ok := registry.Get(dep.Name)
		if !ok {
			continue
		}
		depCtx := &provider.ProviderContext{Context: ctx, Platform: plan.Platform, InstallDir: dep.InstallDir}
		vars, err := rt.PrepareEnvironment(ctx, dep.ResolvedVersion, depCtx)
		if err != nil {
			continue
		}
		for k, v := range vars {
			merged[k] = v
		}
	}

	if vars, err := primaryRt.PrepareEnvironment(ctx, primary.ResolvedVersion, pctx); err == nil {
		for k, v := range vars {
			merged[k] = v
		}
	}
	if vars, err := primaryRt.ExecutionEnvironment(ctx, primary.ResolvedVersion, pctx); err == nil {
		for k, v := range vars {
			merged[k] = v
		}
	}

	return merged
}
