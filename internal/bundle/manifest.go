// Package bundle implements the project-local offline bundle (spec §4.8):
// a portable, content-addressed mirror of a subset of the global store,
// plus a manifest describing what it contains. Every operation here treats
// the bundle directory as disposable and rebuildable from the store and
// lockfile — nothing in the bundle is authoritative except the manifest's
// record of what was copied.
package bundle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ManifestVersion is the current on-disk manifest schema.
const ManifestVersion = 2

// ManifestFileName is the file written at the root of a bundle directory.
const ManifestFileName = "manifest.json"

// ToolManifest records one tool's bundled versions and per-platform paths.
type ToolManifest struct {
	Versions map[string]VersionManifest `json:"versions"`
}

// VersionManifest records the platforms bundled for one tool version.
//
// PlatformPaths replaces the v1 manifest's single Path field (migrated on
// load, see MigrateV1); every platform present in a v2 manifest must also
// appear in the manifest's top-level Platforms list.
type VersionManifest struct {
	PlatformPaths map[string]string `json:"platform_paths"`
	Size          int64             `json:"size"`

	// Path is the deprecated v1 single-platform field. It is never written
	// by this package but is still accepted on read so MigrateV1 can fold
	// it into PlatformPaths before any other code sees the manifest.
	Path string `json:"path,omitempty"`
}

// Manifest is the top-level bundle descriptor, `.vx/bundle/manifest.json`.
type Manifest struct {
	Version   int                     `json:"version"`
	CreatedAt time.Time               `json:"created_at"`
	VXVersion string                  `json:"vx_version"`
	Platform  string                  `json:"platform"`
	Platforms []string                `json:"platforms"`
	Tools     map[string]ToolManifest `json:"tools"`
	TotalSize int64                   `json:"total_size"`
}

// NewManifest returns an empty, ready-to-populate v2 manifest stamped for
// the given primary platform.
func NewManifest(vxVersion, primaryPlatform string) *Manifest {
	return &Manifest{
		Version:   ManifestVersion,
		CreatedAt: newManifestTimestamp(),
		VXVersion: vxVersion,
		Platform:  primaryPlatform,
		Platforms: []string{primaryPlatform},
		Tools:     make(map[string]ToolManifest),
	}
}

// newManifestTimestamp exists only so tests can observe that CreatedAt is
// always set; it is not a substitute for injecting a clock, since this
// package is never called concurrently with itself for the same bundle.
func newManifestTimestamp() time.Time {
	return time.Now().UTC()
}

// LoadManifest reads and migrates manifest.json from a bundle directory. A
// missing manifest is reported as os.IsNotExist on the returned error so
// callers can distinguish "no bundle yet" from "corrupt bundle".
func LoadManifest(bundleDir string) (*Manifest, error) {
	path := filepath.Join(bundleDir, ManifestFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	MigrateV1(&m)
	return &m, nil
}

// MigrateV1 folds a v1 manifest's per-version Path field into
// platform_paths[primary_platform] and bumps Version to 2 in place (spec
// §4.8: "v1 `path` fields are folded into `platform_paths[primary_platform]`").
// It is a no-op on an already-v2 manifest.
func MigrateV1(m *Manifest) {
	if m.Version >= ManifestVersion {
		return
	}

	if len(m.Platforms) == 0 && m.Platform != "" {
		m.Platforms = []string{m.Platform}
	}

	for toolName, tm := range m.Tools {
		for version, vm := range tm.Versions {
			if vm.Path == "" {
				continue
			}
			if vm.PlatformPaths == nil {
				vm.PlatformPaths = make(map[string]string)
			}
			if _, already := vm.PlatformPaths[m.Platform]; !already {
				vm.PlatformPaths[m.Platform] = vm.Path
			}
			vm.Path = ""
			tm.Versions[version] = vm
		}
		m.Tools[toolName] = tm
	}

	m.Version = ManifestVersion
}

// Save writes manifest.json into bundleDir via create-then-rename.
func (m *Manifest) Save(bundleDir string) error {
	if err := os.MkdirAll(bundleDir, 0o755); err != nil {
		return fmt.Errorf("create bundle directory: %w", err)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	path := filepath.Join(bundleDir, ManifestFileName)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp manifest: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename manifest into place: %w", err)
	}
	return nil
}

// HasPlatform reports whether a tool version was bundled for a platform.
func (m *Manifest) HasPlatform(tool, version, platform string) bool {
	tm, ok := m.Tools[tool]
	if !ok {
		return false
	}
	vm, ok := tm.Versions[version]
	if !ok {
		return false
	}
	_, ok = vm.PlatformPaths[platform]
	return ok
}

// StorePath returns the relative store-tree path bundled for a tool
// version/platform, or "" if absent.
func (m *Manifest) StorePath(tool, version, platform string) string {
	tm, ok := m.Tools[tool]
	if !ok {
		return ""
	}
	vm, ok := tm.Versions[version]
	if !ok {
		return ""
	}
	return vm.PlatformPaths[platform]
}

// addEntry records one bundled (tool, version, platform) -> relative path,
// growing Platforms/TotalSize as needed.
func (m *Manifest) addEntry(tool, version, platform, relPath string, size int64) {
	if m.Tools == nil {
		m.Tools = make(map[string]ToolManifest)
	}
	tm, ok := m.Tools[tool]
	if !ok {
		tm = ToolManifest{Versions: make(map[string]VersionManifest)}
	}
	vm, ok := tm.Versions[version]
	if !ok {
		vm = VersionManifest{PlatformPaths: make(map[string]string)}
	}
	if vm.PlatformPaths == nil {
		vm.PlatformPaths = make(map[string]string)
	}
	if _, already := vm.PlatformPaths[platform]; !already {
		m.TotalSize += size
		vm.Size += size
	}
	vm.PlatformPaths[platform] = relPath
	tm.Versions[version] = vm
	m.Tools[tool] = tm

	if !containsString(m.Platforms, platform) {
		m.Platforms = append(m.Platforms, platform)
	}
}

// removeVersion drops a tool version's bundled platform subtree(s) from the
// manifest, removing the tool entirely when no versions remain.
func (m *Manifest) removeVersion(tool, version string) {
	tm, ok := m.Tools[tool]
	if !ok {
		return
	}
	if vm, ok := tm.Versions[version]; ok {
		m.TotalSize -= vm.Size
	}
	delete(tm.Versions, version)
	if len(tm.Versions) == 0 {
		delete(m.Tools, tool)
		return
	}
	m.Tools[tool] = tm
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
