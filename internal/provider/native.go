package provider

import (
	"context"
	"fmt"
)

// archiveRuntime is a native provider for tools distributed as a single
// platform archive downloaded from a fixed per-platform URL template (node,
// go, python, rustup), with versions listed from GitHub. It implements Runtime
// directly; the installer drives Install via DownloadURL + the abstract
// extract(archive,dest) capability (internal/archive), matching the
// "native providers are compiled into the binary" clause of spec §4.2.
type archiveRuntime struct {
	BaseRuntime
	versions    *GitHubVersionSource
	urlTemplate func(version string, platform Platform) (string, bool)
}

func (a *archiveRuntime) FetchVersions(ctx context.Context) ([]VersionInfo, error) {
	if a.versions == nil {
		return nil, fmt.Errorf("%s: no version source configured", a.D.Name)
	}
	return a.versions.ListVersions(ctx)
}

func (a *archiveRuntime) DownloadURL(_ context.Context, version string, platform Platform) (string, bool, error) {
	if a.urlTemplate == nil {
		return "", false, nil
	}
	url, ok := a.urlTemplate(version, platform)
	return url, ok, nil
}

// Install is intentionally a thin contract check here: the real download +
// extract + verify state machine lives in internal/installer, which calls
// DownloadURL/PostExtract/PostInstall on the Runtime it resolves. Install
// exists on the interface so Starlark-backed runtimes (whose "install" is a
// sandboxed script function) have a uniform call site; native archive
// runtimes report NeedsInstall unconditionally here and let the installer
// perform and record the actual work.
func (a *archiveRuntime) Install(ctx context.Context, version string, pctx *ProviderContext) (*InstallResult, error) {
	return &InstallResult{InstallDir: pctx.InstallDir}, nil
}

// newNodeRuntime describes the node/npm/npx family. npx and npm are
// bundled_with node (spec §3, §4.4 tie-break rule 4): neither appears in
// install_order on its own, and their executable is located inside node's
// installed tree.
func newNodeRuntime(gh *GitHubVersionSource) Runtime {
	return &archiveRuntime{
		BaseRuntime: BaseRuntime{D: &RuntimeDescriptor{
			Name:              "node",
			Description:       "Node.js JavaScript runtime",
			ExecutableName:    "node",
			Ecosystem:         EcosystemNode,
			ExecutableRelPath: "bin/node",
			EnvConfig: EnvConfig{
				InheritVXPath: true,
				Vars: map[string]EnvVarSpec{
					"NODE_PATH": {Value: "{install_dir}/lib/node_modules", Replace: true},
				},
			},
		}},
		versions: gh,
		urlTemplate: func(version string, p Platform) (string, bool) {
			return fmt.Sprintf("https://nodejs.org/dist/v%s/node-v%s-%s-%s.tar.gz",
				version, version, goosName(p.OS), goarchName(p.Arch)), true
		},
	}
}

func newNpxRuntime() Runtime {
	return &archiveRuntime{BaseRuntime: BaseRuntime{D: &RuntimeDescriptor{
		Name:              "npx",
		Description:       "Execute npm package binaries",
		ExecutableName:    "npx",
		Ecosystem:         EcosystemNode,
		BundledWith:       "node",
		ExecutableRelPath: "bin/npx",
	}}}
}

func newNpmRuntime() Runtime {
	return &archiveRuntime{BaseRuntime: BaseRuntime{D: &RuntimeDescriptor{
		Name:              "npm",
		Description:       "Node package manager",
		ExecutableName:    "npm",
		Ecosystem:         EcosystemNode,
		BundledWith:       "node",
		ExecutableRelPath: "bin/npm",
	}}}
}

// newYarnRuntime models Yarn >= 2 as proxy-managed: IsVersionInstallable
// returns false for any version and PrepareExecution defers to corepack,
// which itself requires node to be installed (spec §4.2, §9 "proxy
// execution for uninstallable versions").
type yarnRuntime struct {
	BaseRuntime
}

func newYarnRuntime() Runtime {
	return &yarnRuntime{BaseRuntime: BaseRuntime{D: &RuntimeDescriptor{
		Name:           "yarn",
		Description:    "Yarn package manager (proxy-managed via corepack)",
		ExecutableName: "yarn",
		Ecosystem:      EcosystemNode,
		Dependencies: []Dependency{
			{RuntimeName: "node", Required: true, Reason: "corepack ships with node"},
		},
	}}}
}

func (y *yarnRuntime) FetchVersions(ctx context.Context) ([]VersionInfo, error) { return nil, nil }

func (y *yarnRuntime) DownloadURL(context.Context, string, Platform) (string, bool, error) {
	return "", false, nil
}

func (y *yarnRuntime) Install(context.Context, string, *ProviderContext) (*InstallResult, error) {
	return nil, fmt.Errorf("yarn >= 2 is proxy-managed via corepack and cannot be installed directly")
}

func (y *yarnRuntime) IsVersionInstallable(version string) bool { return false }

func (y *yarnRuntime) PrepareExecution(_ context.Context, version string, pctx *ProviderContext) (*ExecutionPrep, error) {
	return &ExecutionPrep{
		ProxyReady:    true,
		CommandPrefix: []string{"corepack", "yarn"},
		EnvVars:       map[string]string{"COREPACK_YARN_VERSION": version},
	}, nil
}

func newPythonRuntime(gh *GitHubVersionSource) Runtime {
	return &archiveRuntime{
		BaseRuntime: BaseRuntime{D: &RuntimeDescriptor{
			Name:              "python",
			Description:       "Python interpreter (python-build-standalone distribution)",
			ExecutableName:    "python3",
			Ecosystem:         EcosystemPython,
			ExecutableRelPath: "bin/python3",
			EnvConfig: EnvConfig{
				InheritVXPath: true,
				Vars: map[string]EnvVarSpec{
					"PYTHONHOME": {Value: "{install_dir}", Replace: true},
				},
			},
		}},
		versions: gh,
		urlTemplate: func(version string, p Platform) (string, bool) {
			return fmt.Sprintf("https://github.com/indygreg/python-build-standalone/releases/download/%s/cpython-%s-%s-%s-install_only.tar.gz",
				version, version, goarchName(p.Arch), goosName(p.OS)), true
		},
	}
}

func newPipRuntime() Runtime {
	return &archiveRuntime{BaseRuntime: BaseRuntime{D: &RuntimeDescriptor{
		Name:              "pip",
		Description:       "Python package installer",
		ExecutableName:    "pip3",
		Ecosystem:         EcosystemPython,
		BundledWith:       "python",
		ExecutableRelPath: "bin/pip3",
	}}}
}

func newUvRuntime(gh *GitHubVersionSource) Runtime {
	return &archiveRuntime{
		BaseRuntime: BaseRuntime{D: &RuntimeDescriptor{
			Name:              "uv",
			Description:       "Extremely fast Python package manager",
			ExecutableName:    "uv",
			Ecosystem:         EcosystemPython,
			ExecutableRelPath: "uv",
		}},
		versions: gh,
		urlTemplate: func(version string, p Platform) (string, bool) {
			return fmt.Sprintf("https://github.com/astral-sh/uv/releases/download/%s/uv-%s-%s.tar.gz",
				version, goarchName(p.Arch), goosName(p.OS)), true
		},
	}
}

func newGoRuntime(gh *GitHubVersionSource) Runtime {
	return &archiveRuntime{
		BaseRuntime: BaseRuntime{D: &RuntimeDescriptor{
			Name:              "go",
			Description:       "Go toolchain",
			ExecutableName:    "go",
			Ecosystem:         EcosystemGo,
			ExecutableRelPath: "bin/go",
			EnvConfig: EnvConfig{
				InheritVXPath: true,
				Vars: map[string]EnvVarSpec{
					"GOROOT": {Value: "{install_dir}", Replace: true},
				},
			},
		}},
		versions: gh,
		urlTemplate: func(version string, p Platform) (string, bool) {
			return fmt.Sprintf("https://go.dev/dl/go%s.%s-%s.tar.gz", version, goosName(p.OS), goarchName(p.Arch)), true
		},
	}
}

// newRustupRuntime is the sole installable member of the Rust family.
// cargo and rustc are provided_by rustup (spec §4.4 step 2): the resolver
// substitutes rustup for either, and the Rust-ecosystem special case in
// vxexec's Resolve stage (spec §4.7) pins the dependency version to
// match the requested cargo/rustc version.
func newRustupRuntime(gh *GitHubVersionSource) Runtime {
	return &archiveRuntime{
		BaseRuntime: BaseRuntime{D: &RuntimeDescriptor{
			Name:              "rustup",
			Description:       "Rust toolchain installer",
			ExecutableName:    "rustup",
			Ecosystem:         EcosystemRust,
			ExecutableRelPath: "bin/rustup",
			EnvConfig: EnvConfig{
				InheritVXPath: true,
				Vars: map[string]EnvVarSpec{
					"RUSTUP_HOME": {Value: "{install_dir}/rustup", Replace: true},
					"CARGO_HOME":  {Value: "{install_dir}/cargo", Replace: true},
				},
			},
		}},
		versions: gh,
		urlTemplate: func(version string, p Platform) (string, bool) {
			return fmt.Sprintf("https://static.rust-lang.org/rustup/archive/%s/%s-%s/rustup-init", version, goarchName(p.Arch), goosName(p.OS)), true
		},
	}
}

func newCargoRuntime() Runtime {
	return &archiveRuntime{BaseRuntime: BaseRuntime{D: &RuntimeDescriptor{
		Name:           "cargo",
		Description:    "Rust package manager",
		ExecutableName: "cargo",
		Ecosystem:      EcosystemRust,
		Dependencies: []Dependency{
			{RuntimeName: "rust", Required: true, ProvidedBy: "rustup"},
		},
		ExecutableRelPath: "cargo/bin/cargo",
	}}}
}

func newRustcRuntime() Runtime {
	return &archiveRuntime{BaseRuntime: BaseRuntime{D: &RuntimeDescriptor{
		Name:           "rustc",
		Description:    "Rust compiler",
		ExecutableName: "rustc",
		Ecosystem:      EcosystemRust,
		Dependencies: []Dependency{
			{RuntimeName: "rust", Required: true, ProvidedBy: "rustup"},
		},
		ExecutableRelPath: "bin/rustc",
	}}}
}

func goosName(os string) string {
	switch os {
	case "macos":
		return "darwin"
	default:
		return os
	}
}

func goarchName(arch string) string {
	switch arch {
	case "x64":
		return "amd64"
	case "x86":
		return "386"
	default:
		return arch
	}
}

// RegisterBuiltins wires every native provider described in SPEC_FULL.md
// §4.2 into the registry, using the given GitHub client for providers that
// resolve versions off GitHub releases/tags.
func RegisterBuiltins(reg *Registry, gh *GithubClientSource) error {
	node := newNodeRuntime(gh.For("nodejs/node", ""))
	for _, rt := range []Runtime{
		node,
		newNpmRuntime(),
		newNpxRuntime(),
		newYarnRuntime(),
		newPythonRuntime(gh.For("indygreg/python-build-standalone", "")),
		newPipRuntime(),
		newUvRuntime(gh.For("astral-sh/uv", "")),
		newGoRuntime(gh.For("golang/go", "go")),
		newRustupRuntime(gh.For("rust-lang/rustup", "")),
		newCargoRuntime(),
		newRustcRuntime(),
		newMSVCRuntime(),
	} {
		if err := reg.Register(rt); err != nil {
			return err
		}
	}
	return nil
}

// GithubClientSource lazily builds GitHubVersionSource values sharing one
// underlying *github.Client, avoiding one HTTP client per provider.
type GithubClientSource struct {
	client *ghClient
}

// NewGithubClientSource builds a source using the given GitHub API token
// (may be empty for unauthenticated access).
func NewGithubClientSource(token string) *GithubClientSource {
	return &GithubClientSource{client: newGhClient(token)}
}

// For returns a version source scoped to one repo/tagPrefix pair.
func (s *GithubClientSource) For(repo, tagPrefix string) *GitHubVersionSource {
	return &GitHubVersionSource{Client: s.client.c, Repo: repo, TagPrefix: tagPrefix}
}
