package bundle

import "path/filepath"

// Lookup answers the offline-routing question the executor pipeline asks
// after Resolve and before Ensure (spec §4.7 "Offline routing", §8's "Offline
// fail-fast" invariant): is this tool/version/platform available from the
// project's bundle without touching the network or the global store?
type Lookup struct {
	bundleDir string
	manifest  *Manifest
}

// NewLookup loads the manifest at bundleDir. A missing bundle is reported
// via the returned error satisfying os.IsNotExist; callers should treat
// that as "no bundle" rather than failing the whole pipeline.
func NewLookup(bundleDir string) (*Lookup, error) {
	m, err := LoadManifest(bundleDir)
	if err != nil {
		return nil, err
	}
	return &Lookup{bundleDir: bundleDir, manifest: m}, nil
}

// Resolve returns the absolute on-disk platform directory for a bundled
// tool version, and whether it was found.
func (l *Lookup) Resolve(tool, version, platform string) (platformDir string, ok bool) {
	relPath := l.manifest.StorePath(tool, version, platform)
	if relPath == "" {
		return "", false
	}
	return filepath.Join(l.bundleDir, relPath), true
}

// HasTool reports whether the bundle carries any version of a tool at all,
// used to distinguish "tool entirely absent from bundle" from "tool
// present but not at the requested version" in error messages.
func (l *Lookup) HasTool(tool string) bool {
	_, ok := l.manifest.Tools[tool]
	return ok
}
