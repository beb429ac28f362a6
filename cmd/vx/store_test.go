package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vx-dev/vx/internal/provider"
	"github.com/vx-dev/vx/internal/vxpath"
)

// fakeRuntime is a minimal provider.Runtime stub carrying only a descriptor,
// enough for store.go's lookup helpers (they never call the I/O methods).
type fakeRuntime struct{ provider.BaseRuntime }

func (fakeRuntime) FetchVersions(context.Context) ([]provider.VersionInfo, error) { return nil, nil }
func (fakeRuntime) DownloadURL(context.Context, string, provider.Platform) (string, bool, error) {
	return "", false, nil
}
func (fakeRuntime) Install(context.Context, string, *provider.ProviderContext) (*provider.InstallResult, error) {
	return nil, nil
}

func mkVersionDir(t *testing.T, layout *vxpath.Layout, name, version string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(layout.Store(), name, version), 0o755))
}

func TestInstalledVersionsSortsNewestFirst(t *testing.T) {
	layout := vxpath.NewLayoutAt(t.TempDir())
	mkVersionDir(t, layout, "node", "18.0.0")
	mkVersionDir(t, layout, "node", "20.1.0")
	mkVersionDir(t, layout, "node", "20.0.0")

	versions := installedVersions(layout, "node")
	assert.Equal(t, []string{"20.1.0", "20.0.0", "18.0.0"}, versions)
}

func TestInstalledVersionsMissingDirReturnsNil(t *testing.T) {
	layout := vxpath.NewLayoutAt(t.TempDir())
	assert.Nil(t, installedVersions(layout, "ghost"))
}

func TestNewInstalledLookupUnknownRuntimeVersionButNotRegistered(t *testing.T) {
	layout := vxpath.NewLayoutAt(t.TempDir())
	mkVersionDir(t, layout, "node", "20.1.0")
	reg := provider.NewRegistry()

	lookup := newInstalledLookup(layout, reg, "linux-x64")
	version, exists, ok := lookup("node")
	assert.Equal(t, "20.1.0", version)
	assert.False(t, exists)
	assert.True(t, ok)
}

func TestNewInstalledLookupExecutableMissingOnDisk(t *testing.T) {
	layout := vxpath.NewLayoutAt(t.TempDir())
	mkVersionDir(t, layout, "node", "20.1.0")
	reg := provider.NewRegistry()
	require.NoError(t, reg.Register(&fakeRuntime{provider.BaseRuntime{D: &provider.RuntimeDescriptor{
		Name:              "node",
		ExecutableRelPath: "bin/node",
	}}}))

	lookup := newInstalledLookup(layout, reg, "linux-x64")
	version, exists, ok := lookup("node")
	assert.Equal(t, "20.1.0", version)
	assert.False(t, exists)
	assert.True(t, ok)
}

func TestNewInstalledLookupExecutablePresent(t *testing.T) {
	layout := vxpath.NewLayoutAt(t.TempDir())
	mkVersionDir(t, layout, "node", "20.1.0")
	reg := provider.NewRegistry()
	require.NoError(t, reg.Register(&fakeRuntime{provider.BaseRuntime{D: &provider.RuntimeDescriptor{
		Name:              "node",
		ExecutableRelPath: "bin/node",
	}}}))

	exePath := layout.ExecutablePath("node", "20.1.0", "linux-x64", "bin/node")
	require.NoError(t, os.MkdirAll(filepath.Dir(exePath), 0o755))
	require.NoError(t, os.WriteFile(exePath, []byte("#!/bin/sh\n"), 0o755))

	lookup := newInstalledLookup(layout, reg, "linux-x64")
	version, exists, ok := lookup("node")
	assert.Equal(t, "20.1.0", version)
	assert.True(t, exists)
	assert.True(t, ok)
}

func TestNewInstalledLookupNoVersions(t *testing.T) {
	layout := vxpath.NewLayoutAt(t.TempDir())
	reg := provider.NewRegistry()

	lookup := newInstalledLookup(layout, reg, "linux-x64")
	version, exists, ok := lookup("ghost")
	assert.Equal(t, "", version)
	assert.False(t, exists)
	assert.False(t, ok)
}
