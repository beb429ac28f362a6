package bundle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vx-dev/vx/internal/vxpath"
)

func seedStoreTool(t *testing.T, layout *vxpath.Layout, name, version, platform string, files map[string]string) {
	t.Helper()
	dir := layout.PlatformDir(name, version, platform)
	for rel, content := range files {
		path := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func TestCreateCopiesStoreTreeAndWritesManifest(t *testing.T) {
	layout := vxpath.NewLayoutAt(t.TempDir())
	seedStoreTool(t, layout, "node", "20.1.0", "linux-x64", map[string]string{"bin/node": "binary bytes"})

	bundleDir := filepath.Join(t.TempDir(), "bundle")
	m, err := Create(layout, bundleDir, "0.1.0-test", []LockedTool{{Name: "node", Version: "20.1.0"}})
	require.NoError(t, err)

	assert.Equal(t, ManifestVersion, m.Version)
	assert.True(t, m.HasPlatform("node", "20.1.0", vxpath.CurrentPlatform()))

	copied := filepath.Join(bundleDir, m.StorePath("node", "20.1.0", vxpath.CurrentPlatform()), "bin/node")
	data, err := os.ReadFile(copied)
	require.NoError(t, err)
	assert.Equal(t, "binary bytes", string(data))

	reloaded, err := LoadManifest(bundleDir)
	require.NoError(t, err)
	assert.Equal(t, m.Tools, reloaded.Tools)
}

func TestUpdateRemovesStaleVersionAndAddsNew(t *testing.T) {
	layout := vxpath.NewLayoutAt(t.TempDir())
	seedStoreTool(t, layout, "node", "18.0.0", "linux-x64", map[string]string{"bin/node": "v18"})
	bundleDir := filepath.Join(t.TempDir(), "bundle")

	_, err := Create(layout, bundleDir, "0.1.0-test", []LockedTool{{Name: "node", Version: "18.0.0"}})
	require.NoError(t, err)

	seedStoreTool(t, layout, "node", "20.1.0", "linux-x64", map[string]string{"bin/node": "v20"})
	m, err := Update(layout, bundleDir, "0.1.0-test", []LockedTool{{Name: "node", Version: "20.1.0"}})
	require.NoError(t, err)

	assert.False(t, m.HasPlatform("node", "18.0.0", vxpath.CurrentPlatform()))
	assert.True(t, m.HasPlatform("node", "20.1.0", vxpath.CurrentPlatform()))

	_, statErr := os.Stat(filepath.Join(bundleDir, "store", "node", "18.0.0"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestManifestV1MigrationFoldsPathIntoPlatformPaths(t *testing.T) {
	m := &Manifest{
		Version:  1,
		Platform: "linux-x64",
		Tools: map[string]ToolManifest{
			"node": {Versions: map[string]VersionManifest{
				"20.1.0": {Path: "store/node/20.1.0/linux-x64", Size: 42},
			}},
		},
	}

	MigrateV1(m)

	assert.Equal(t, ManifestVersion, m.Version)
	assert.Equal(t, []string{"linux-x64"}, m.Platforms)
	vm := m.Tools["node"].Versions["20.1.0"]
	assert.Equal(t, "store/node/20.1.0/linux-x64", vm.PlatformPaths["linux-x64"])
	assert.Equal(t, "", vm.Path)
}

func TestExportImportRoundTripPreservesToolSet(t *testing.T) {
	layout := vxpath.NewLayoutAt(t.TempDir())
	seedStoreTool(t, layout, "node", "20.1.0", "linux-x64", map[string]string{"bin/node": "binary bytes", "lib/deep/nested/file.txt": "ok"})

	bundleDir := filepath.Join(t.TempDir(), "bundle")
	_, err := Create(layout, bundleDir, "0.1.0-test", []LockedTool{{Name: "node", Version: "20.1.0"}})
	require.NoError(t, err)

	archivePath := filepath.Join(t.TempDir(), "bundle.tar.gz")
	require.NoError(t, Export(bundleDir, archivePath, ExportOptions{}))

	importDir := filepath.Join(t.TempDir(), "imported")
	imported, err := Import(archivePath, importDir)
	require.NoError(t, err)

	original, err := LoadManifest(bundleDir)
	require.NoError(t, err)
	assert.ElementsMatch(t, keysOf(original.Tools), keysOf(imported.Tools))

	data, err := os.ReadFile(filepath.Join(importDir, imported.StorePath("node", "20.1.0", vxpath.CurrentPlatform()), "bin/node"))
	require.NoError(t, err)
	assert.Equal(t, "binary bytes", string(data))
}

func keysOf(m map[string]ToolManifest) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func TestStatusReportsCurrentPlatformCoverage(t *testing.T) {
	layout := vxpath.NewLayoutAt(t.TempDir())
	seedStoreTool(t, layout, "node", "20.1.0", "linux-x64", map[string]string{"bin/node": "x"})
	bundleDir := filepath.Join(t.TempDir(), "bundle")

	m, err := Create(layout, bundleDir, "0.1.0-test", []LockedTool{{Name: "node", Version: "20.1.0"}})
	require.NoError(t, err)

	st := ReportStatus(m)
	assert.True(t, st.SupportsCurrent)
	require.Len(t, st.Tools, 1)
	assert.Equal(t, "node", st.Tools[0].Tool)
}

func TestCleanRemovesBundleDirectory(t *testing.T) {
	bundleDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(bundleDir, "manifest.json"), []byte("{}"), 0o644))

	require.NoError(t, Clean(bundleDir))
	_, err := os.Stat(bundleDir)
	assert.True(t, os.IsNotExist(err))
}

func TestLookupResolvesBundledToolAndReportsMiss(t *testing.T) {
	layout := vxpath.NewLayoutAt(t.TempDir())
	seedStoreTool(t, layout, "node", "20.1.0", "linux-x64", map[string]string{"bin/node": "x"})
	bundleDir := filepath.Join(t.TempDir(), "bundle")
	_, err := Create(layout, bundleDir, "0.1.0-test", []LockedTool{{Name: "node", Version: "20.1.0"}})
	require.NoError(t, err)

	lookup, err := NewLookup(bundleDir)
	require.NoError(t, err)

	dir, ok := lookup.Resolve("node", "20.1.0", vxpath.CurrentPlatform())
	assert.True(t, ok)
	assert.DirExists(t, dir)

	_, ok = lookup.Resolve("python", "3.11.5", vxpath.CurrentPlatform())
	assert.False(t, ok)
	assert.False(t, lookup.HasTool("python"))
	assert.True(t, lookup.HasTool("node"))
}
