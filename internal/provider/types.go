// Package provider implements the registry of runtime descriptors (spec
// §4.2): native, compiled-in providers plus Starlark-script providers,
// indexed by canonical name with a secondary alias map. Every other
// package in vx reaches a Runtime only through this registry.
package provider

import (
	"context"
	"fmt"
	"strings"
)

// Ecosystem is the closed set of runtime families used for fallback lookup
// in the version selector (spec §4.3) and for install-config defaults.
type Ecosystem string

const (
	EcosystemSystem Ecosystem = "system"
	EcosystemNode   Ecosystem = "node"
	EcosystemPython Ecosystem = "python"
	EcosystemRust   Ecosystem = "rust"
	EcosystemGo     Ecosystem = "go"
	EcosystemJVM    Ecosystem = "jvm"
	EcosystemOther  Ecosystem = "other"
)

// Platform is an {os, arch} pair rendered canonically as "os-arch".
type Platform struct {
	OS   string
	Arch string
}

// String renders the platform as its canonical "os-arch" tag, e.g. "linux-x64".
func (p Platform) String() string {
	return fmt.Sprintf("%s-%s", p.OS, p.Arch)
}

// ParsePlatform parses a canonical "os-arch" tag back into a Platform.
func ParsePlatform(s string) (Platform, error) {
	idx := strings.LastIndex(s, "-")
	if idx <= 0 || idx == len(s)-1 {
		return Platform{}, fmt.Errorf("invalid platform tag %q", s)
	}
	return Platform{OS: s[:idx], Arch: s[idx+1:]}, nil
}

// VersionInfo describes one available version of a runtime.
type VersionInfo struct {
	Version     string
	LTS         bool
	Prerelease  bool
	Stable      bool
	Date        string
	DownloadURL string
	Metadata    map[string]string
}

// VersionRange constrains a dependency to versions within [Min, Max]
// (either bound may be empty, meaning unbounded on that side).
type VersionRange struct {
	Min string
	Max string
}

// Dependency is one edge in a runtime's declared dependency list (spec §3).
type Dependency struct {
	RuntimeName        string
	Required           bool
	Reason             string
	ProvidedBy          string // substitute runtime that actually satisfies this edge (e.g. cargo -> rustup)
	RecommendedVersion string
	Range              *VersionRange
}

// EnvVarSpec is one entry of a runtime's declared environment configuration
// (spec §4.6). Either Value is used directly (after template expansion) or,
// when Replace is false, the final value is Prepend+current+Append joined
// by the platform path separator.
type EnvVarSpec struct {
	Value   string
	Prepend []string
	Append  []string
	Replace bool
}

// PathEntry is one entry of a provider's advanced PATH contribution,
// applied before (Prepend) or after (Append) the parent process PATH.
type PathEntry struct {
	Template string // may reference {install_dir}, {version}, etc.
}

// EnvConfig is a runtime's declared environment shape (spec §4.6).
type EnvConfig struct {
	// Isolate, when true, filters the inherited parent PATH down to a small
	// set of essential system directories unless the invocation requested
	// full env inheritance.
	Isolate bool
	// InheritVXPath, when true, appends the vx-managed bin directory of
	// every other installed runtime to the end of PATH.
	InheritVXPath bool
	// InheritSystemVars lists parent-env variable names (glob patterns like
	// "LC_*" allowed) copied through unless already set by the provider.
	InheritSystemVars []string
	PathPrepend       []PathEntry
	PathAppend        []PathEntry
	Vars              map[string]EnvVarSpec
}

// RuntimeDescriptor is the immutable, registry-resident description of one
// runtime (spec §3). Native and Starlark providers both produce one of
// these; downstream packages operate on the descriptor, never on the
// provider implementation directly.
type RuntimeDescriptor struct {
	Name                string
	Description         string
	ExecutableName       string
	Aliases             []string
	Ecosystem           Ecosystem
	BundledWith         string // parent runtime name, or "" if standalone
	Dependencies        []Dependency
	SupportedPlatforms  []Platform // empty means "all platforms"
	EnvConfig           EnvConfig
	ExecutableRelPath   string // relative path within the platform dir, e.g. "bin/node"
	Metadata            map[string]string
}

// IsPlatformSupported reports whether the descriptor's SupportedPlatforms
// list (when non-empty) contains the given platform.
func (d *RuntimeDescriptor) IsPlatformSupported(p Platform) bool {
	if len(d.SupportedPlatforms) == 0 {
		return true
	}
	for _, sp := range d.SupportedPlatforms {
		if sp == p {
			return true
		}
	}
	return false
}

// PlatformUnsupportedError is returned by CheckPlatformSupport.
type PlatformUnsupportedError struct {
	Runtime   string
	Supported []Platform
	Current   Platform
}

func (e *PlatformUnsupportedError) Error() string {
	supported := make([]string, len(e.Supported))
	for i, p := range e.Supported {
		supported[i] = p.String()
	}
	return fmt.Sprintf("%s does not support platform %s (supported: %s)",
		e.Runtime, e.Current, strings.Join(supported, ", "))
}

// CheckPlatformSupport returns a *PlatformUnsupportedError when the
// descriptor's platform list excludes p.
func (d *RuntimeDescriptor) CheckPlatformSupport(p Platform) error {
	if d.IsPlatformSupported(p) {
		return nil
	}
	return &PlatformUnsupportedError{Runtime: d.Name, Supported: d.SupportedPlatforms, Current: p}
}

// InstallOptions carries ecosystem-specific extra install options threaded
// from [tools.<name>] tables in vx.toml (spec §4.9), e.g. MSVC components.
type InstallOptions map[string]any

// ProviderContext is threaded through every Runtime capability call. It
// carries the ambient state a provider may need: target platform, install
// directory (once known), install options, and ecosystem install-config
// defaults (recovered from original_source's install_configs.rs).
type ProviderContext struct {
	Context        context.Context
	Platform       Platform
	InstallDir     string
	InstallOptions InstallOptions
	EcosystemEnv   map[string]string // install-config defaults, e.g. npm registry mirror
}

// InstallResult is returned by Runtime.Install.
type InstallResult struct {
	AlreadyInstalled bool
	InstallDir       string
	ExecutablePath   string
}

// PostExtractAction is one action returned by a provider's PostExtract hook.
type PostExtractAction struct {
	Type        string // "create_shim", "set_permissions", "run_command", "flatten_dir"
	Name        string
	Target      string
	Args        []string
	ShimDir     string
	Path        string
	Mode        string
	Executable  string
	WorkingDir  string
	Env         map[string]string
	OnFailure   string // "warn", "error", "ignore"
	Pattern     string
	KeepSubdirs []string
}

// ExecutionPrep is returned by Runtime.PrepareExecution for proxy-managed
// versions (spec §4.2, §4.7).
type ExecutionPrep struct {
	ProxyReady         bool
	UseSystemPath      bool
	ExecutableOverride string
	CommandPrefix      []string
	EnvVars            map[string]string
	PathPrepend        []string
}
