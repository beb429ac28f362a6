package vxexec

import (
	"context"
	"fmt"

	"github.com/vx-dev/vx/internal/depgraph"
	"github.com/vx-dev/vx/internal/provider"
	"github.com/vx-dev/vx/internal/selector"
)

// VersionSources bundles the per-runtime inputs the version selector needs,
// gathered from the command line, project config, lockfile, and store.
type VersionSources struct {
	ExplicitVersion   string
	ProjectVersion    string
	LockfileVersion   string
	InstalledVersions []string
	FetchRemote       func(ctx context.Context) ([]string, error)
}

// ResolveRequest is everything Resolve needs for one invocation.
type ResolveRequest struct {
	RuntimeName string
	Sources     VersionSources
	// Injected holds --with <name>[@version] extras; each is resolved the
	// same way as the primary but never drives dependency traversal.
	Injected map[string]VersionSources
	// InstalledVersionsFor looks up installed versions for a dependency
	// name discovered during traversal (the primary's own installed
	// versions come from Sources.InstalledVersions instead).
	InstalledVersionsFor func(name string) []string
}

// Resolve runs the Version Selector and Dependency Resolver over a request
// and produces an ExecutionPlan (spec §4.7's Resolve stage). It errors
// immediately when the primary runtime is unknown to the registry or its
// declared supported platforms exclude the current platform; incompatible
// or missing dependencies are recorded on the plan rather than failing here.
func Resolve(ctx context.Context, registry *provider.Registry, resolver *depgraph.Resolver, sel *selector.Selector, platform provider.Platform, req ResolveRequest) (*ExecutionPlan, error) {
	result := resolver.Resolve(req.RuntimeName)

	if result.RuntimeNeedsInstall && len(result.InstallOrder) == 0 {
		if _, ok := registry.Get(req.RuntimeName); !ok {
			return nil, &ResolveError{Runtime: req.RuntimeName, Reason: "unknown runtime; no provider registered"}
		}
	}

	for _, up := range result.UnsupportedPlatformRuntimes {
		if up.IsPrimary {
			return nil, &ResolveError{Runtime: up.Name, Supported: up.Supported, Current: up.Current}
		}
	}

	primarySrcs := req.Sources
	versionTarget := req.RuntimeName
	if result.BundledWith != "" {
		// A bundled tool (npx, npm, pip...) has no version identity of its
		// own: it rides along with whatever version of its parent gets
		// resolved (spec §4.4 tie-break rule 4, §8 scenario 4). An explicit
		// "npx@20" is read as pinning node@20.
		versionTarget = result.BundledWith
		var installed []string
		if req.InstalledVersionsFor != nil {
			installed = req.InstalledVersionsFor(result.BundledWith)
		}
		primarySrcs = VersionSources{
			ExplicitVersion:   req.Sources.ExplicitVersion,
			ProjectVersion:    req.Sources.ProjectVersion,
			LockfileVersion:   req.Sources.LockfileVersion,
			InstalledVersions: installed,
		}
		if parentRT, ok := registry.Get(result.BundledWith); ok {
			primarySrcs.FetchRemote = func(ctx context.Context) ([]string, error) {
				infos, err := parentRT.FetchVersions(ctx)
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
	}

	primary, err := resolvePlannedRuntime(ctx, sel, versionTarget, primarySrcs)
	if err != nil {
		return nil, &ResolveError{Runtime: req.RuntimeName, Reason: err.Error()}
	}
	primary.Name = req.RuntimeName
	primary.BundledWithName = result.BundledWith

	plan := &ExecutionPlan{Primary: primary, Platform: platform}

	for _, depName := range result.InstallOrder {
		if depName == result.Runtime {
			continue
		}
		var installed []string
		if req.InstalledVersionsFor != nil {
			installed = req.InstalledVersionsFor(depName)
		}
		depSources := VersionSources{InstalledVersions: installed}
		// A bundled primary's parent is resolved from the same sources as
		// the primary itself, so "npx@20" also requests node@20.
		if depName == result.BundledWith {
			depSources = primarySrcs
		}
		// Rust-ecosystem special case (spec §4.7's Ensure stage note): a
		// runtime substituted in for cargo/rustc via provided_by (i.e.
		// rustup) is pinned to the primary's own version, so
		// "cargo@1.90.0" also requests rustup@1.90.0 rather than falling
		// through to rustup's own remote-latest lookup.
		if depName == "rustup" && primary.RequestedVersion != "" {
			depSources.ExplicitVersion = primary.RequestedVersion
		}
		dep, err := resolvePlannedRuntime(ctx, sel, depName, depSources)
		if err != nil {
			return nil, &ResolveError{Runtime: depName, Reason: err.Error()}
		}
		plan.Dependencies = append(plan.Dependencies, dep)
	}

	for name, srcs := range req.Injected {
		extra, err := resolvePlannedRuntime(ctx, sel, name, srcs)
		if err != nil {
			return nil, &ResolveError{Runtime: name, Reason: err.Error()}
		}
		plan.Injected = append(plan.Injected, extra)
	}

	return plan, nil
}

func resolvePlannedRuntime(ctx context.Context, sel *selector.Selector, name string, srcs VersionSources) (*PlannedRuntime, error) {
	res, err := sel.Resolve(ctx, selector.Request{
		RuntimeName:        name,
		ExplicitVersion:    srcs.ExplicitVersion,
		ProjectVersion:     srcs.ProjectVersion,
		LockfileVersion:    srcs.LockfileVersion,
		InstalledVersions:  srcs.InstalledVersions,
		FetchRemoteVersions: srcs.FetchRemote,
	})
	if err != nil {
		return nil, fmt.Errorf("select version: %w", err)
	}

	status := StatusNeedsInstall
	if contains(srcs.InstalledVersions, res.Version) {
		status = StatusInstalled
	}

	return &PlannedRuntime{
		Name:             name,
		RequestedVersion: res.Version,
		ResolvedVersion:  res.Version,
		VersionSource:    res.Source,
		Status:           status,
	}, nil
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
