// Package selector implements the multi-source version selector (spec
// §4.3): explicit @version beats project config, which beats the
// lockfile, which beats the latest installed version, which beats a
// remote-latest lookup performed only when installation is necessary.
package selector

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"

	"github.com/vx-dev/vx/internal/vxlog"
)

// Source tags where a resolved version came from (spec §3's PlannedRuntime
// VersionSource).
type Source string

const (
	SourceExplicit       Source = "explicit"
	SourceProjectConfig  Source = "project_config"
	SourceLockfile       Source = "lockfile"
	SourceInstalledLatest Source = "installed_latest"
	SourceRemoteLatest   Source = "remote_latest"
)

// Request bundles every input the selector needs for one runtime name.
type Request struct {
	RuntimeName      string
	ExplicitVersion  string // from "name@version" on the command line, "" if absent
	ProjectVersion   string // from vx.toml [tools], "" if absent
	LockfileVersion  string // from vx.lock, "" if absent
	InstalledVersions []string // directory names under {store}/{name}/
	// FetchRemoteVersions is invoked only when installation is required and
	// no local source resolved a version (spec §4.3 step 5). Must return
	// versions newest-first; the selector takes the first non-prerelease
	// entry in the order given and does not re-sort the list.
	FetchRemoteVersions func(ctx context.Context) ([]string, error)
}

// Result is the selector's output for one runtime.
type Result struct {
	Version string
	Source  Source
}

// Selector resolves versions and deduplicates the "requested version not
// installed" warning per (tool) per process (spec §4.3 step 2).
type Selector struct {
	logger vxlog.Logger

	mu          sync.Mutex
	warnedTools map[string]bool
}

// New returns a Selector. Pass vxlog.NewNoop() when warnings should be
// suppressed (e.g. in tests).
func New(logger vxlog.Logger) *Selector {
	if logger == nil {
		logger = vxlog.NewNoop()
	}
	return &Selector{logger: logger, warnedTools: make(map[string]bool)}
}

// Resolve implements the priority chain documented in spec §4.3.
func (s *Selector) Resolve(ctx context.Context, req Request) (*Result, error) {
	if req.ExplicitVersion != "" {
		// "latest" passes through verbatim; remote resolution (if needed)
		// happens during Ensure, not here.
		return &Result{Version: req.ExplicitVersion, Source: SourceExplicit}, nil
	}

	if req.ProjectVersion != "" {
		if match, ok := BestMatch(req.ProjectVersion, req.InstalledVersions); ok {
			return &Result{Version: match, Source: SourceProjectConfig}, nil
		}
		s.warnOnce(req.RuntimeName, fmt.Sprintf(
			"project requests %s@%s but no matching version is installed locally", req.RuntimeName, req.ProjectVersion))
		// Still resolves to the constraint itself; Ensure will install it.
		return &Result{Version: req.ProjectVersion, Source: SourceProjectConfig}, nil
	}

	if req.LockfileVersion != "" {
		return &Result{Version: req.LockfileVersion, Source: SourceLockfile}, nil
	}

	if len(req.InstalledVersions) > 0 {
		sorted := SortDescending(req.InstalledVersions)
		return &Result{Version: sorted[0], Source: SourceInstalledLatest}, nil
	}

	if req.FetchRemoteVersions == nil {
		return nil, fmt.Errorf("%s: no version specified and no remote version source configured", req.RuntimeName)
	}
	remote, err := req.FetchRemoteVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: fetch remote versions: %w", req.RuntimeName, err)
	}
	if len(remote) == 0 {
		return nil, fmt.Errorf("%s: remote version source returned no versions", req.RuntimeName)
	}
	chosen := firstNonPrerelease(remote)
	return &Result{Version: chosen, Source: SourceRemoteLatest}, nil
}

func (s *Selector) warnOnce(tool, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.warnedTools[tool] {
		return
	}
	s.warnedTools[tool] = true
	s.logger.Warn(message)
}

// firstNonPrerelease returns the first version in the list that doesn't
// look like a prerelease tag, falling back to the absolute first entry
// (spec §4.3 step 5: "first non-prerelease version, falling back to the
// absolute first").
func firstNonPrerelease(versions []string) string {
	for _, v := range versions {
		if !looksPrerelease(v) {
			return v
		}
	}
	return versions[0]
}

func looksPrerelease(v string) bool {
	lower := strings.ToLower(v)
	for _, tag := range []string{"alpha", "beta", "rc", "preview", "dev", "nightly"} {
		if strings.Contains(lower, tag) {
			return true
		}
	}
	return false
}

// BestMatch finds the newest installed version satisfying a partial
// constraint (spec §4.3's prefix-boundary rule and §8's property test):
// "20" matches "20.0.0" and "20.11.0" but not "201.0.0"; among matches the
// newest wins.
func BestMatch(constraint string, candidates []string) (string, bool) {
	var matches []string
	for _, c := range candidates {
		if Matches(constraint, c) {
			matches = append(matches, c)
		}
	}
	if len(matches) == 0 {
		return "", false
	}
	sorted := SortDescending(matches)
	return sorted[0], true
}

// Matches reports whether a candidate version satisfies a partial
// constraint by exact equality or by a strict prefix boundary at a "."
// delimiter.
func Matches(constraint, candidate string) bool {
	if constraint == candidate {
		return true
	}
	prefix := constraint + "."
	return strings.HasPrefix(candidate, prefix)
}

// SortDescending sorts versions newest-first, using semver comparison for
// each pair that both parse as semver and falling back to a numeric
// segment-by-segment comparison otherwise (mirrors the teacher's
// CompareVersions fallback design).
func SortDescending(versions []string) []string {
	out := make([]string, len(versions))
	copy(out, versions)
	sort.SliceStable(out, func(i, j int) bool {
		vi, erri := semver.NewVersion(normalizeForSemver(out[i]))
		vj, errj := semver.NewVersion(normalizeForSemver(out[j]))
		if erri == nil && errj == nil {
			return vi.GreaterThan(vj)
		}
		return compareNumericSegments(out[i], out[j]) > 0
	})
	return out
}

func normalizeForSemver(v string) string {
	v = strings.TrimPrefix(v, "v")
	// semver requires 3 segments; pad "20" -> "20.0.0", "20.1" -> "20.1.0".
	parts := strings.SplitN(v, "-", 2)
	segs := strings.Split(parts[0], ".")
	for len(segs) < 3 {
		segs = append(segs, "0")
	}
	padded := strings.Join(segs, ".")
	if len(parts) == 2 {
		return padded + "-" + parts[1]
	}
	return padded
}

// compareNumericSegments compares version strings by their numeric
// segments after stripping a leading "v" (spec §3: "comparison is by
// numeric segments after stripping a leading v, with longer sequences
// sorting above shorter equal prefixes").
func compareNumericSegments(a, b string) int {
	as := strings.Split(strings.TrimPrefix(a, "v"), ".")
	bs := strings.Split(strings.TrimPrefix(b, "v"), ".")
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		var av, bv int
		if i < len(as) {
			av = atoiLoose(as[i])
		}
		if i < len(bs) {
			bv = atoiLoose(bs[i])
		}
		if av != bv {
			if av > bv {
				return 1
			}
			return -1
		}
	}
	if len(as) != len(bs) {
		if len(as) > len(bs) {
			return 1
		}
		return -1
	}
	return 0
}

func atoiLoose(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// EcosystemFallbackName looks up an ecosystem's primary runtime name for
// the project-config fallback rule (spec §4.3 step 2).
func EcosystemFallbackName(ecosystem string, table map[string]string) (string, bool) {
	name, ok := table[ecosystem]
	return name, ok
}
