package provider

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vxstar "github.com/vx-dev/vx/internal/starlark"
)

const widgetProviderScript = `
NAME = "widget"
DESCRIPTION = "Widget build tool"
ALIASES = ["wgt"]
ECOSYSTEM = "other"
EXECUTABLE_REL_PATH = "bin/widget"

def fetch_versions():
    return github_versions(url="https://github.com/example/widget", strip_v_prefix=True)

def install_layout(version):
    return archive_install(url="https://example.test/widget-" + version + ".tar.gz")
`

func writeScript(t *testing.T, dir, name, src string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644))
}

func TestLoadStarlarkProvidersDiscoversScripts(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "widget.star", widgetProviderScript)
	writeScript(t, dir, "ignore.txt", "not a provider")

	runtimes, err := LoadStarlarkProviders(dir, vxstar.New(vxstar.NewAnalysisCache()))
	require.NoError(t, err)
	require.Len(t, runtimes, 1)

	desc := runtimes[0].Descriptor()
	assert.Equal(t, "widget", desc.Name)
	assert.Equal(t, "Widget build tool", desc.Description)
	assert.Equal(t, []string{"wgt"}, desc.Aliases)
	assert.Equal(t, Ecosystem("other"), desc.Ecosystem)
	assert.Equal(t, "bin/widget", desc.ExecutableRelPath)
}

func TestLoadStarlarkProvidersMissingDirIsNotError(t *testing.T) {
	runtimes, err := LoadStarlarkProviders(filepath.Join(t.TempDir(), "does-not-exist"), vxstar.New(vxstar.NewAnalysisCache()))
	require.NoError(t, err)
	assert.Empty(t, runtimes)
}

func TestLoadStarlarkProvidersRequiresName(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "noname.star", "def fetch_versions():\n    pass\n")

	_, err := LoadStarlarkProviders(dir, vxstar.New(vxstar.NewAnalysisCache()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NAME")
}

func TestRegisterStarlarkAddsToRegistry(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "widget.star", widgetProviderScript)

	reg := NewRegistry()
	require.NoError(t, RegisterStarlark(reg, dir, vxstar.New(vxstar.NewAnalysisCache())))

	rt, ok := reg.Get("widget")
	require.True(t, ok)
	assert.Equal(t, "widget", rt.Descriptor().Name)

	_, ok = reg.Get("wgt")
	assert.True(t, ok)
}
