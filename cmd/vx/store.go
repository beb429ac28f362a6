package main

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/Masterminds/semver/v3"

	"github.com/vx-dev/vx/internal/depgraph"
	"github.com/vx-dev/vx/internal/provider"
	"github.com/vx-dev/vx/internal/vxpath"
)

// installedVersions lists the version directories under {store}/{name},
// newest first when they parse as semver (ties and unparsable entries keep
// their directory-listing order).
func installedVersions(layout *vxpath.Layout, name string) []string {
	dir := filepath.Join(layout.Store(), name)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	versions := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			versions = append(versions, e.Name())
		}
	}

	sort.SliceStable(versions, func(i, j int) bool {
		vi, erri := semver.NewVersion(versions[i])
		vj, errj := semver.NewVersion(versions[j])
		if erri != nil || errj != nil {
			return false
		}
		return vi.GreaterThan(vj)
	})
	return versions
}

// newInstalledLookup builds the depgraph.InstalledLookup the dependency
// resolver needs: the newest installed version of a runtime, and whether
// its executable actually exists for the current platform (a version
// directory can exist with an interrupted/partial install).
func newInstalledLookup(layout *vxpath.Layout, registry *provider.Registry, platform string) depgraph.InstalledLookup {
	return func(name string) (string, bool, bool) {
		versions := installedVersions(layout, name)
		if len(versions) == 0 {
			return "", false, false
		}
		version := versions[0]

		rt, ok := registry.Get(name)
		if !ok {
			return version, false, true
		}
		relPath := rt.Descriptor().ExecutableRelPath
		if relPath == "" {
			return version, true, true
		}
		exePath := layout.ExecutablePath(name, version, platform, relPath)
		if _, err := os.Stat(exePath); err != nil {
			return version, false, true
		}
		return version, true, true
	}
}
