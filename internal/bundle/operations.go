package bundle

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vx-dev/vx/internal/project"
	"github.com/vx-dev/vx/internal/vxpath"
)

// LockedTool is one resolved (tool, version) pair to bundle, sourced from a
// project's vx.lock.
type LockedTool struct {
	Name    string
	Version string
}

// FromLockfile converts a project lockfile into the LockedTool list Create
// and Update consume.
func FromLockfile(lf *project.Lockfile) []LockedTool {
	tools := make([]LockedTool, 0, len(lf.Tools))
	for name, entry := range lf.Tools {
		tools = append(tools, LockedTool{Name: name, Version: entry.ResolvedVersion})
	}
	return tools
}

// Create builds a new bundle at bundleDir from the store directories of the
// given locked tools on the current platform, writing a fresh manifest
// (spec §4.8: "copies the store directories listed in the lockfile...").
func Create(layout *vxpath.Layout, bundleDir, vxVersion string, tools []LockedTool) (*Manifest, error) {
	platform := vxpath.CurrentPlatform()
	m := NewManifest(vxVersion, platform)

	for _, t := range tools {
		if err := copyToolIntoBundle(layout, bundleDir, m, t.Name, t.Version, platform); err != nil {
			return nil, err
		}
	}

	if err := m.Save(bundleDir); err != nil {
		return nil, err
	}
	return m, nil
}

// Update incrementally refreshes an existing bundle: tools with a changed
// resolved version have their old version's platform subtree removed (and
// the version directory pruned if it becomes empty), new platforms are
// added, and wholly new tools are copied in (spec §4.8).
func Update(layout *vxpath.Layout, bundleDir, vxVersion string, tools []LockedTool) (*Manifest, error) {
	m, err := LoadManifest(bundleDir)
	if os.IsNotExist(err) {
		return Create(layout, bundleDir, vxVersion, tools)
	}
	if err != nil {
		return nil, err
	}

	platform := vxpath.CurrentPlatform()
	if !containsString(m.Platforms, platform) {
		m.Platforms = append(m.Platforms, platform)
	}

	wanted := make(map[string]string, len(tools))
	for _, t := range tools {
		wanted[t.Name] = t.Version

		tm, hadTool := m.Tools[t.Name]
		if hadTool {
			for oldVersion := range tm.Versions {
				if oldVersion != t.Version {
					if err := pruneVersion(bundleDir, m, t.Name, oldVersion); err != nil {
						return nil, err
					}
				}
			}
		}

		if m.HasPlatform(t.Name, t.Version, platform) {
			continue
		}
		if err := copyToolIntoBundle(layout, bundleDir, m, t.Name, t.Version, platform); err != nil {
			return nil, err
		}
	}

	if err := m.Save(bundleDir); err != nil {
		return nil, err
	}
	return m, nil
}

// pruneVersion removes a stale tool version's on-disk subtree (the whole
// version directory if it has no other bundled platforms left) and updates
// the manifest to match.
func pruneVersion(bundleDir string, m *Manifest, tool, version string) error {
	tm, ok := m.Tools[tool]
	if !ok {
		return nil
	}
	vm, ok := tm.Versions[version]
	if !ok {
		return nil
	}

	for _, relPath := range vm.PlatformPaths {
		if err := os.RemoveAll(filepath.Join(bundleDir, relPath)); err != nil {
			return fmt.Errorf("remove stale bundle entry: %w", err)
		}
	}

	versionDir := filepath.Join(bundleDir, "store", tool, version)
	if entries, err := os.ReadDir(versionDir); err == nil && len(entries) == 0 {
		os.Remove(versionDir)
	}

	m.removeVersion(tool, version)
	return nil
}

func copyToolIntoBundle(layout *vxpath.Layout, bundleDir string, m *Manifest, tool, version, platform string) error {
	src := layout.PlatformDir(tool, version, platform)
	relPath := filepath.Join("store", tool, version, platform)
	dest := filepath.Join(bundleDir, relPath)

	size, err := copyTree(src, dest)
	if err != nil {
		return fmt.Errorf("bundle %s@%s (%s): %w", tool, version, platform, err)
	}

	m.addEntry(tool, version, platform, filepath.ToSlash(relPath), size)
	return nil
}

// copyTree recursively copies src into dest, preserving file modes and
// symlinks, returning the total number of bytes copied.
func copyTree(src, dest string) (int64, error) {
	info, err := os.Lstat(src)
	if err != nil {
		return 0, err
	}

	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(src)
		if err != nil {
			return 0, err
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return 0, err
		}
		os.Remove(dest)
		return 0, os.Symlink(target, dest)
	}

	if info.IsDir() {
		if err := os.MkdirAll(dest, info.Mode().Perm()); err != nil {
			return 0, err
		}
		entries, err := os.ReadDir(src)
		if err != nil {
			return 0, err
		}
		var total int64
		for _, entry := range entries {
			n, err := copyTree(filepath.Join(src, entry.Name()), filepath.Join(dest, entry.Name()))
			if err != nil {
				return total, err
			}
			total += n
		}
		return total, nil
	}

	return copyFile(src, dest, info.Mode())
}

func copyFile(src, dest string, mode os.FileMode) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, err
	}
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_RDWR|os.O_TRUNC, mode)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	n, err := io.Copy(out, in)
	if err != nil {
		return n, fmt.Errorf("copy file: %w", err)
	}
	return n, nil
}

// PlatformStatus reports, for one tool, which versions are bundled for the
// current platform; other platforms are not reported.
type PlatformStatus struct {
	Tool             string
	BundledVersions  []string
	CurrentSupported bool
}

// Status reports manifest v2 support for the current platform and
// per-tool coverage of that platform (spec §4.8's `status` operation).
type Status struct {
	ManifestVersion  int
	CurrentPlatform  string
	SupportsCurrent  bool
	Tools            []PlatformStatus
	TotalSize        int64
}

// ReportStatus summarizes a loaded manifest for `vx bundle status`.
func ReportStatus(m *Manifest) Status {
	platform := vxpath.CurrentPlatform()
	st := Status{
		ManifestVersion: m.Version,
		CurrentPlatform: platform,
		SupportsCurrent: containsString(m.Platforms, platform),
		TotalSize:       m.TotalSize,
	}

	for tool, tm := range m.Tools {
		ts := PlatformStatus{Tool: tool}
		for version, vm := range tm.Versions {
			if _, ok := vm.PlatformPaths[platform]; ok {
				ts.BundledVersions = append(ts.BundledVersions, version)
			}
		}
		ts.CurrentSupported = len(ts.BundledVersions) > 0
		st.Tools = append(st.Tools, ts)
	}
	return st
}

// Clean removes the bundle directory entirely. Callers must gate this on
// an explicit --force flag at the CLI layer (spec §4.8: "removes the
// bundle on --force").
func Clean(bundleDir string) error {
	return os.RemoveAll(bundleDir)
}
