package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectFormat(t *testing.T) {
	cases := map[string]Format{
		"node-v20.11.0-linux-x64.tar.gz": FormatTarGz,
		"tool.tgz":                       FormatTarGz,
		"tool.tar.xz":                    FormatTarXz,
		"tool.txz":                       FormatTarXz,
		"tool.tar.zst":                   FormatTarZst,
		"tool.tar.lz":                    FormatTarLz,
		"tool.tar":                       FormatTar,
		"tool.zip":                       FormatZip,
		"tool.exe":                       FormatUnknown,
	}
	for name, want := range cases {
		assert.Equal(t, want, DetectFormat(name), name)
	}
}

func writeTarGz(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	gzw := gzip.NewWriter(f)
	defer gzw.Close()
	tw := tar.NewWriter(gzw)
	defer tw.Close()

	for name, content := range entries {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name,
			Mode: 0o644,
			Size: int64(len(content)),
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
}

func TestExtractTarGzStripsPrefix(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "tool.tar.gz")
	writeTarGz(t, archivePath, map[string]string{
		"tool-1.2.3/bin/tool":  "#!/bin/sh\necho hi\n",
		"tool-1.2.3/README.md": "docs",
	})

	dest := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(dest, 0o755))
	err := Extract(archivePath, dest, FormatTarGz, Options{StripPrefix: "tool-1.2.3"})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dest, "bin", "tool"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "echo hi")

	_, err = os.Stat(filepath.Join(dest, "README.md"))
	assert.NoError(t, err)
}

func TestExtractTarGzOnlyFilter(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "tool.tar.gz")
	writeTarGz(t, archivePath, map[string]string{
		"bin/tool": "binary",
		"bin/tool.1": "manpage",
	})

	dest := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(dest, 0o755))
	err := Extract(archivePath, dest, FormatTarGz, Options{Only: []string{"bin/tool"}})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dest, "bin", "tool"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dest, "bin", "tool.1"))
	assert.True(t, os.IsNotExist(err))
}

func TestExtractTarGzRejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "evil.tar.gz")
	writeTarGz(t, archivePath, map[string]string{
		"../../etc/passwd": "root:x:0:0",
	})

	dest := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(dest, 0o755))
	err := Extract(archivePath, dest, FormatTarGz, Options{})
	assert.Error(t, err)
}

func TestExtractTarGzRejectsSymlinkEscape(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "evil.tar.gz")

	f, err := os.Create(archivePath)
	require.NoError(t, err)
	gzw := gzip.NewWriter(f)
	tw := tar.NewWriter(gzw)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     "link",
		Typeflag: tar.TypeSymlink,
		Linkname: "../../outside",
		Mode:     0o777,
	}))
	require.NoError(t, tw.Close())
	require.NoError(t, gzw.Close())
	require.NoError(t, f.Close())

	dest := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(dest, 0o755))
	err = Extract(archivePath, dest, FormatTarGz, Options{})
	assert.Error(t, err)
}

func TestExtractZip(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "tool.zip")

	f, err := os.Create(archivePath)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("tool-1.0.0/bin/tool.exe")
	require.NoError(t, err)
	_, err = w.Write([]byte("binary"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	dest := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(dest, 0o755))
	err = Extract(archivePath, dest, FormatZip, Options{StripPrefix: "tool-1.0.0"})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dest, "bin", "tool.exe"))
	require.NoError(t, err)
	assert.Equal(t, "binary", string(data))
}

func TestRelativeEntryPathStripPrefix(t *testing.T) {
	rel, ok := relativeEntryPath("node-v20.11.0-linux-x64/bin/node", "node-v20.11.0-linux-x64")
	require.True(t, ok)
	assert.Equal(t, "bin/node", rel)

	_, ok = relativeEntryPath("node-v20.11.0-linux-x64", "node-v20.11.0-linux-x64")
	assert.False(t, ok, "the prefix directory entry itself carries no relative path")

	_, ok = relativeEntryPath("other-dir/bin/node", "node-v20.11.0-linux-x64")
	assert.False(t, ok)
}
