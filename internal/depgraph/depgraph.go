// Package depgraph resolves a runtime's declared dependency tree into an
// install order, flagging missing, incompatible, and platform-unsupported
// dependencies along the way (spec §4.4). The traversal and its
// cycle/memoization handling follows the same in-progress-marker technique
// the batch pipeline's blocker package uses for transitive blocking scores.
package depgraph

import (
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/vx-dev/vx/internal/provider"
)

// InstalledLookup answers "is {runtime, version} present on disk, and does
// its executable exist" for dependency edges. The resolver never touches
// the filesystem directly; callers inject this so the package stays
// testable without a real store.
type InstalledLookup func(runtimeName string) (version string, executableExists bool, ok bool)

// UnsupportedPlatformRuntime records a dependency whose declared supported
// platforms exclude the current one.
type UnsupportedPlatformRuntime struct {
	Name      string
	Supported []provider.Platform
	Current   provider.Platform
	IsPrimary bool
}

// IncompatibleDependency records an installed dependency version outside
// its declared [min, max] range.
type IncompatibleDependency struct {
	Runtime    string
	Current    string
	MinVersion string
	MaxVersion string
}

// ResolutionResult is the Dependency Resolver's output (spec §3).
type ResolutionResult struct {
	Runtime                   string
	Executable                string
	CommandPrefix             []string
	InstallOrder              []string
	MissingDependencies       []string
	RuntimeNeedsInstall       bool
	IncompatibleDependencies  []IncompatibleDependency
	UnsupportedPlatformRuntimes []UnsupportedPlatformRuntime
	// BundledWith is the parent runtime's canonical name when Runtime is
	// bundled_with another tool (e.g. "npx" -> "node"), empty otherwise. The
	// parent always appears in InstallOrder; Runtime itself never does.
	BundledWith string
}

// Resolver traverses a provider registry's dependency declarations.
type Resolver struct {
	registry  *provider.Registry
	platform  provider.Platform
	installed InstalledLookup
}

// New builds a Resolver bound to a registry, the current platform, and an
// installed-version lookup.
func New(registry *provider.Registry, platform provider.Platform, installed InstalledLookup) *Resolver {
	return &Resolver{registry: registry, platform: platform, installed: installed}
}

// visitState tracks the three-color traversal state used for cycle
// detection, mirroring blocker.ComputeTransitiveBlockers's in-progress
// marker: a name entered but not yet finished that is revisited again is a
// cycle, and the second visit is a no-op rather than infinite recursion.
type visitState int

const (
	unvisited visitState = iota
	inProgress
	done
)

// Resolve computes a ResolutionResult for runtimeName (spec §4.4's
// algorithm, steps 1-4).
func (r *Resolver) Resolve(runtimeName string) *ResolutionResult {
	result := &ResolutionResult{Runtime: runtimeName}

	canonical, ok := r.registry.Resolve(runtimeName)
	if !ok {
		result.RuntimeNeedsInstall = true
		result.Runtime = runtimeName
		return result
	}
	result.Runtime = canonical

	state := make(map[string]visitState)
	var order []string
	seen := make(map[string]bool)

	var visit func(name string, isPrimary bool)
	visit = func(name string, isPrimary bool) {
		if state[name] == inProgress || state[name] == done {
			return
		}
		state[name] = inProgress

		rt, ok := r.registry.Get(name)
		if !ok {
			if !seen[name] {
				seen[name] = true
				result.MissingDependencies = append(result.MissingDependencies, name)
			}
			state[name] = done
			return
		}
		desc := rt.Descriptor()

		if !desc.IsPlatformSupported(r.platform) {
			result.UnsupportedPlatformRuntimes = append(result.UnsupportedPlatformRuntimes, UnsupportedPlatformRuntime{
				Name:      desc.Name,
				Supported: desc.SupportedPlatforms,
				Current:   r.platform,
				IsPrimary: isPrimary,
			})
		}

		for _, dep := range desc.Dependencies {
			depName := dep.RuntimeName
			if dep.ProvidedBy != "" {
				depName = dep.ProvidedBy
			}
			visit(depName, false)

			depVersion, execExists, installedOK := r.installed(depName)
			if !installedOK || !execExists {
				if !seen[depName] {
					seen[depName] = true
					result.MissingDependencies = append(result.MissingDependencies, depName)
				}
				continue
			}
			if dep.Range != nil && !withinRange(depVersion, dep.Range) {
				result.IncompatibleDependencies = append(result.IncompatibleDependencies, IncompatibleDependency{
					Runtime:    depName,
					Current:    depVersion,
					MinVersion: dep.Range.Min,
					MaxVersion: dep.Range.Max,
				})
			}
		}

		// bundled_with ties the tool to its parent's installed tree: the
		// tool itself never occupies a slot in install_order, but its
		// parent must still be visited and installed as if it were a
		// declared dependency.
		if desc.BundledWith == "" {
			order = append(order, desc.Name)
		} else {
			visit(desc.BundledWith, false)
		}
		state[name] = done
	}

	visit(canonical, true)
	result.InstallOrder = order

	if rt, ok := r.registry.Get(canonical); ok {
		// A bundled tool's executable still lives inside its parent's
		// installed tree; the name alone identifies what to invoke there.
		result.Executable = rt.Descriptor().ExecutableName
		result.BundledWith = rt.Descriptor().BundledWith
	}

	return result
}

func withinRange(version string, rng *provider.VersionRange) bool {
	v, err := semver.NewVersion(normalizeForSemver(version))
	if err != nil {
		// Unparsable versions are never flagged incompatible; there's no
		// reliable way to compare them.
		return true
	}
	if rng.Min != "" {
		min, err := semver.NewVersion(normalizeForSemver(rng.Min))
		if err == nil && v.LessThan(min) {
			return false
		}
	}
	if rng.Max != "" {
		max, err := semver.NewVersion(normalizeForSemver(rng.Max))
		if err == nil && v.GreaterThan(max) {
			return false
		}
	}
	return true
}

func normalizeForSemver(v string) string {
	v = strings.TrimPrefix(v, "v")
	segs := strings.Split(v, ".")
	for len(segs) < 3 {
		segs = append(segs, "0")
	}
	return strings.Join(segs, ".")
}
