package installer

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

type stubDownloader struct {
	path string
	hits int
}

func (s *stubDownloader) Download(context.Context, string) (string, error) {
	s.hits++
	return s.path, nil
}

type stubRuntime struct {
	provider.BaseRuntime
	url          string
	installable  bool
	postExtract  []provider.PostExtractAction
}

func (s *stubRuntime) FetchVersions(context.Context) ([]provider.VersionInfo, error) { return nil, nil }
func (s *stubRuntime) DownloadURL(context.Context, string, provider.Platform) (string, bool, error) {
	return s.url, s.url != "", nil
}
func (s *stubRuntime) Install(context.Context, string, *provider.ProviderContext) (*provider.InstallResult, error) {
	return &provider.InstallResult{}, nil
}
func (s *stubRuntime) PostExtract(context.Context, string, string) ([]provider.PostExtractAction, error) {
	return s.postExtract, nil
}
func (s *stubRuntime) IsVersionInstallable(string) bool {
	if !s.installable {
		return false
	}
	return true
}

func TestInstallIsIdempotentOnExtractedMarker(t *testing.T) {
	home := t.TempDir()
	layout := vxpath.NewLayoutAt(home)
	require.NoError(t, layout.EnsureDirectories())

	platform := vxpath.CurrentPlatform()
	installDir := layout.PlatformDir("tool", "1.0.0", platform)
	require.NoError(t, os.MkdirAll(installDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(installDir, extractedMarkerName), nil, 0o644))

	dl := &stubDownloader{}
	inst := New(layout, dl)
	rt := &stubRuntime{BaseRuntime: provider.BaseRuntime{D: &provider.RuntimeDescriptor{Name: "tool", ExecutableName: "tool"}}, installable: true}

	result, err := inst.Install(context.Background(), rt, "1.0.0", nil)
	require.NoError(t, err)
	assert.True(t, result.AlreadyInstalled)
	assert.Equal(t, 0, dl.hits, "idempotent install must not re-download")
}

func TestInstallSkipsDownloadForNonInstallableVersion(t *testing.T) {
	home := t.TempDir()
	layout := vxpath.NewLayoutAt(home)
	require.NoError(t, layout.EnsureDirectories())

	dl := &stubDownloader{}
	inst := New(layout, dl)
	rt := &stubRuntime{BaseRuntime: provider.BaseRuntime{D: &provider.RuntimeDescriptor{Name: "yarn", ExecutableName: "yarn"}}, installable: false}

	result, err := inst.Install(context.Background(), rt, "2.4.3", nil)
	require.NoError(t, err)
	assert.NotNil(t, result)
	assert.Equal(t, 0, dl.hits)
}

func TestVerifyChecksumMatchesAndMismatches(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.bin")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	const sha256OfHello = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	require.NoError(t, VerifyChecksum(path, sha256OfHello))
	assert.Error(t, VerifyChecksum(path, "0000000000000000000000000000000000000000000000000000000000000"))
}

func TestInstallRejectsUnsupportedPlatform(t *testing.T) {
	home := t.TempDir()
	layout := vxpath.NewLayoutAt(home)
	require.NoError(t, layout.EnsureDirectories())

	other := provider.Platform{OS: "impossible-os", Arch: "impossible-arch"}
	rt := &stubRuntime{
		BaseRuntime: provider.BaseRuntime{D: &provider.RuntimeDescriptor{
			Name:               "tool",
			SupportedPlatforms: []provider.Platform{other},
		}},
		installable: true,
	}

	dl := &stubDownloader{}
	inst := New(layout, dl)
	_, err := inst.Install(context.Background(), rt, "1.0.0", nil)
	assert.Error(t, err)
}
