package provider

import (
	"context"
)

// msvcRuntime models the Visual C++ Build Tools toolchain, recovered from
// original_source/crates/vx-providers/msvc/src/runtime.rs. It is Windows-
// only (SupportedPlatforms excludes every other OS) and DownloadURL always
// reports ok=false: MSVC is installed via a separate kit rather than a
// single archive, so the installer must route it through a provider-custom
// path instead of the generic archive_install flow (spec §4.2).
type msvcRuntime struct {
	BaseRuntime
}

// knownMSVCVersions mirrors the Rust original's hard-coded stable version
// list (MSVC has no simple machine-readable release feed).
var knownMSVCVersions = []VersionInfo{
	{Version: "14.42", LTS: true, Stable: true},
	{Version: "14.41", LTS: true, Stable: true},
	{Version: "14.40", LTS: true, Stable: true},
	{Version: "14.39", LTS: true, Stable: true},
	{Version: "14.38", LTS: true, Stable: true},
	{Version: "14.37", LTS: true, Stable: true},
	{Version: "14.36", LTS: true, Stable: true},
	{Version: "14.35", LTS: true, Stable: true},
	{Version: "14.34", LTS: true, Stable: true},
	{Version: "14.29", LTS: false, Stable: true},
}

func newMSVCRuntime() Runtime {
	return &msvcRuntime{BaseRuntime: BaseRuntime{D: &RuntimeDescriptor{
		Name:               "msvc",
		Description:        "Visual C++ Build Tools",
		ExecutableName:     "cl",
		Ecosystem:          EcosystemOther,
		SupportedPlatforms: []Platform{{OS: "windows", Arch: "x64"}, {OS: "windows", Arch: "arm64"}},
		ExecutableRelPath:  "VC/Tools/MSVC/{version}/bin/Host{arch}/{arch}/cl.exe",
	}}}
}

func (m *msvcRuntime) FetchVersions(context.Context) ([]VersionInfo, error) {
	out := make([]VersionInfo, len(knownMSVCVersions))
	copy(out, knownMSVCVersions)
	return out, nil
}

// DownloadURL always reports ok=false: MSVC's installer fetches component
// packages itself from Microsoft's servers via a provider-custom install
// path, not a single downloadable archive.
func (m *msvcRuntime) DownloadURL(context.Context, string, Platform) (string, bool, error) {
	return "", false, nil
}

func (m *msvcRuntime) Install(_ context.Context, version string, pctx *ProviderContext) (*InstallResult, error) {
	if err := m.D.CheckPlatformSupport(pctx.Platform); err != nil {
		return nil, err
	}
	components, _ := pctx.InstallOptions["components"].([]string)
	_ = components // read but not used: Install downloads nothing and only reports the install directory
	return &InstallResult{InstallDir: pctx.InstallDir}, nil
}

func (m *msvcRuntime) PrepareEnvironment(_ context.Context, version string, pctx *ProviderContext) (map[string]string, error) {
	return map[string]string{
		"VSCMD_VER": version,
	}, nil
}
