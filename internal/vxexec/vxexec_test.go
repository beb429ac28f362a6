package vxexec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vx-dev/vx/internal/depgraph"
	"github.com/vx-dev/vx/internal/provider"
	"github.com/vx-dev/vx/internal/selector"
	"github.com/vx-dev/vx/internal/vxlog"
	"github.com/vx-dev/vx/internal/vxpath"
)

type fakeRuntime struct {
	provider.BaseRuntime
	executionEnv map[string]string
	prepareEnv   map[string]string
	prep         *provider.ExecutionPrep
	installable  bool
}

func (f *fakeRuntime) FetchVersions(context.Context) ([]provider.VersionInfo, error) { return nil, nil }
func (f *fakeRuntime) DownloadURL(context.Context, string, provider.Platform) (string, bool, error) {
	return "", false, nil
}
func (f *fakeRuntime) Install(context.Context, string, *provider.ProviderContext) (*provider.InstallResult, error) {
	return &provider.InstallResult{}, nil
}
func (f *fakeRuntime) PrepareEnvironment(context.Context, string, *provider.ProviderContext) (map[string]string, error) {
	return f.prepareEnv, nil
}
func (f *fakeRuntime) ExecutionEnvironment(context.Context, string, *provider.ProviderContext) (map[string]string, error) {
	return f.executionEnv, nil
}
func (f *fakeRuntime) IsVersionInstallable(string) bool { return f.installable }
func (f *fakeRuntime) PrepareExecution(context.Context, string, *provider.ProviderContext) (*provider.ExecutionPrep, error) {
	return f.prep, nil
}

func register(t *testing.T, reg *provider.Registry, d *provider.RuntimeDescriptor, extra *fakeRuntime) {
	t.Helper()
	rt := extra
	if rt == nil {
		rt = &fakeRuntime{installable: true}
	}
	rt.D = d
	require.NoError(t, reg.Register(rt))
}

func TestResolveUnknownRuntimeErrors(t *testing.T) {
	reg := provider.NewRegistry()
	depResolver := depgraph.New(reg, provider.Platform{OS: "linux", Arch: "x64"}, func(string) (string, bool, bool) { return "", false, false })
	sel := selector.New(vxlog.NewNoop())

	_, err := Resolve(context.Background(), reg, depResolver, sel, provider.Platform{OS: "linux", Arch: "x64"}, ResolveRequest{RuntimeName: "ghost"})
	require.Error(t, err)
	var resolveErr *ResolveError
	assert.ErrorAs(t, err, &resolveErr)
}

func TestResolvePlatformUnsupportedErrors(t *testing.T) {
	reg := provider.NewRegistry()
	current := provider.Platform{OS: "windows", Arch: "x64"}
	register(t, reg, &provider.RuntimeDescriptor{Name: "tool", SupportedPlatforms: []provider.Platform{{OS: "linux", Arch: "x64"}}}, nil)

	depResolver := depgraph.New(reg, current, func(string) (string, bool, bool) { return "", false, false })
	sel := selector.New(vxlog.NewNoop())

	_, err := Resolve(context.Background(), reg, depResolver, sel, current, ResolveRequest{
		RuntimeName: "tool",
		Sources:     VersionSources{ExplicitVersion: "1.0.0"},
	})
	require.Error(t, err)
	var resolveErr *ResolveError
	require.ErrorAs(t, err, &resolveErr)
	assert.Equal(t, "tool", resolveErr.Runtime)
}

func TestResolveBuildsPlanWithDependencies(t *testing.T) {
	reg := provider.NewRegistry()
	register(t, reg, &provider.RuntimeDescriptor{Name: "rustup"}, nil)
	register(t, reg, &provider.RuntimeDescriptor{
		Name: "cargo",
		Dependencies: []provider.Dependency{
			{RuntimeName: "rustc", ProvidedBy: "rustup", Required: true},
		},
	}, nil)

	platform := provider.Platform{OS: "linux", Arch: "x64"}
	depResolver := depgraph.New(reg, platform, func(string) (string, bool, bool) { return "", false, false })
	sel := selector.New(vxlog.NewNoop())

	plan, err := Resolve(context.Background(), reg, depResolver, sel, platform, ResolveRequest{
		RuntimeName: "cargo",
		Sources:     VersionSources{ExplicitVersion: "1.90.0"},
	})
	require.NoError(t, err)
	require.Len(t, plan.Dependencies, 1)
	assert.Equal(t, "rustup", plan.Dependencies[0].Name)
	// Rust toolchain pinning: rustup is requested at cargo's version.
	assert.Equal(t, "1.90.0", plan.Dependencies[0].RequestedVersion)
}

type stubInstaller struct {
	installDir     string
	executablePath string
	calls          int
}

func (s *stubInstaller) Install(ctx context.Context, rt provider.Runtime, version string, opts provider.InstallOptions) (*provider.InstallResult, error) {
	s.calls++
	return &provider.InstallResult{InstallDir: s.installDir, ExecutablePath: s.executablePath}, nil
}

func TestEnsureInstallsNeedsInstallRuntimesInOrder(t *testing.T) {
	reg := provider.NewRegistry()
	register(t, reg, &provider.RuntimeDescriptor{Name: "tool"}, nil)

	layout := vxpath.NewLayoutAt(t.TempDir())
	plan := &ExecutionPlan{
		Primary: &PlannedRuntime{Name: "tool", RequestedVersion: "1.0.0", Status: StatusNeedsInstall},
	}
	inst := &stubInstaller{installDir: layout.PlatformDir("tool", "1.0.0", "linux-x64"), executablePath: "/store/tool/1.0.0/linux-x64/bin/tool"}

	err := Ensure(context.Background(), reg, inst, plan, EnsureOptions{AutoInstall: true})
	require.NoError(t, err)
	assert.Equal(t, 1, inst.calls)
	assert.Equal(t, StatusInstalled, plan.Primary.Status)
	assert.Equal(t, "1.0.0", plan.Primary.ResolvedVersion)
	assert.NotEmpty(t, plan.Primary.ExecutablePath)
}

func TestEnsureErrorsWhenAutoInstallDisabled(t *testing.T) {
	reg := provider.NewRegistry()
	register(t, reg, &provider.RuntimeDescriptor{Name: "tool"}, nil)
	layout := vxpath.NewLayoutAt(t.TempDir())
	plan := &ExecutionPlan{Primary: &PlannedRuntime{Name: "tool", RequestedVersion: "1.0.0", Status: StatusNeedsInstall}}
	inst := &stubInstaller{}

	err := Ensure(context.Background(), reg, inst, plan, EnsureOptions{AutoInstall: false})
	require.Error(t, err)
	assert.Equal(t, 0, inst.calls)
	var ensureErr *EnsureError
	require.ErrorAs(t, err, &ensureErr)
	var disabled *AutoInstallDisabledError
	assert.ErrorAs(t, err, &disabled)
}

func TestPrepareBuildsEnvironmentForInstalledRuntime(t *testing.T) {
	reg := provider.NewRegistry()
	register(t, reg, &provider.RuntimeDescriptor{Name: "tool", ExecutableName: "tool"}, &fakeRuntime{
		executionEnv: map[string]string{"TOOL_HOME": "/store/tool/1.0.0"},
	})
	layout := vxpath.NewLayoutAt(t.TempDir())

	plan := &ExecutionPlan{
		Primary: &PlannedRuntime{
			Name: "tool", ResolvedVersion: "1.0.0", Status: StatusInstalled,
			InstallDir: "/store/tool/1.0.0/linux-x64", ExecutablePath: "/store/tool/1.0.0/linux-x64/bin/tool",
		},
		Platform: provider.Platform{OS: "linux", Arch: "x64"},
	}

	prep, err := Prepare(context.Background(), reg, layout, plan, PrepareOptions{Args: []string{"--version"}})
	require.NoError(t, err)
	assert.Equal(t, "/store/tool/1.0.0/linux-x64/bin/tool", prep.Executable)
	assert.Equal(t, []string{"--version"}, prep.Args)

	found := false
	for _, kv := range prep.Env {
		if kv == "TOOL_HOME=/store/tool/1.0.0" {
			found = true
		}
	}
	assert.True(t, found, "execution environment var must be present in Prepare's output")
}

func TestPrepareCallsPrepareExecutionForProxyManagedRuntime(t *testing.T) {
	reg := provider.NewRegistry()
	register(t, reg, &provider.RuntimeDescriptor{Name: "yarn", ExecutableName: "yarn"}, &fakeRuntime{
		prep: &provider.ExecutionPrep{ProxyReady: true, CommandPrefix: []string{"corepack", "yarn"}},
	})
	layout := vxpath.NewLayoutAt(t.TempDir())

	plan := &ExecutionPlan{
		Primary:  &PlannedRuntime{Name: "yarn", ResolvedVersion: "2.4.3", Status: StatusInstalled},
		Platform: provider.Platform{OS: "linux", Arch: "x64"},
	}

	prep, err := Prepare(context.Background(), reg, layout, plan, PrepareOptions{Args: []string{"install"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"corepack", "yarn"}, prep.CommandPrefix)
}

func TestPrepareReturnsProxyNotAvailableError(t *testing.T) {
	reg := provider.NewRegistry()
	register(t, reg, &provider.RuntimeDescriptor{Name: "yarn", ExecutableName: "yarn"}, &fakeRuntime{
		prep: &provider.ExecutionPrep{ProxyReady: false},
	})
	layout := vxpath.NewLayoutAt(t.TempDir())
	plan := &ExecutionPlan{Primary: &PlannedRuntime{Name: "yarn", ResolvedVersion: "2.4.3", Status: StatusInstalled}}

	_, err := Prepare(context.Background(), reg, layout, plan, PrepareOptions{})
	require.Error(t, err)
	var prepErr *PrepareError
	require.ErrorAs(t, err, &prepErr)
	var proxyErr *ProxyNotAvailableError
	assert.ErrorAs(t, err, &proxyErr)
}

func TestResolveBundledPrimaryAddsParentToInstallOrder(t *testing.T) {
	reg := provider.NewRegistry()
	register(t, reg, &provider.RuntimeDescriptor{Name: "node", ExecutableRelPath: "bin/node"}, nil)
	register(t, reg, &provider.RuntimeDescriptor{Name: "npx", ExecutableName: "npx", BundledWith: "node", ExecutableRelPath: "bin/npx"}, nil)

	platform := provider.Platform{OS: "linux", Arch: "x64"}
	depResolver := depgraph.New(reg, platform, func(string) (string, bool, bool) { return "", false, false })
	sel := selector.New(vxlog.NewNoop())

	plan, err := Resolve(context.Background(), reg, depResolver, sel, platform, ResolveRequest{
		RuntimeName: "npx",
		Sources:     VersionSources{ExplicitVersion: "20.1.0"},
	})
	require.NoError(t, err)
	require.Len(t, plan.Dependencies, 1)
	assert.Equal(t, "node", plan.Dependencies[0].Name)
	assert.Equal(t, "npx", plan.Primary.Name)
	assert.Equal(t, "node", plan.Primary.BundledWithName)
	// The bundled primary rides node's own resolved version, not its own.
	assert.Equal(t, "20.1.0", plan.Primary.RequestedVersion)
}

func TestEnsureLocatesBundledPrimaryInsideParentTree(t *testing.T) {
	reg := provider.NewRegistry()
	register(t, reg, &provider.RuntimeDescriptor{Name: "node", ExecutableRelPath: "bin/node"}, nil)
	register(t, reg, &provider.RuntimeDescriptor{Name: "npx", ExecutableName: "npx", BundledWith: "node", ExecutableRelPath: "bin/npx"}, nil)

	layout := vxpath.NewLayoutAt(t.TempDir())
	nodeDir := layout.PlatformDir("node", "20.1.0", "linux-x64")
	plan := &ExecutionPlan{
		Primary:      &PlannedRuntime{Name: "npx", RequestedVersion: "20.1.0", Status: StatusNeedsInstall, BundledWithName: "node"},
		Dependencies: []*PlannedRuntime{{Name: "node", RequestedVersion: "20.1.0", Status: StatusNeedsInstall}},
	}
	inst := &stubInstaller{installDir: nodeDir, executablePath: nodeDir + "/bin/node"}

	err := Ensure(context.Background(), reg, inst, plan, EnsureOptions{AutoInstall: true})
	require.NoError(t, err)
	// Only node goes through the installer; npx is never installed on its own.
	assert.Equal(t, 1, inst.calls)
	assert.Equal(t, StatusInstalled, plan.Primary.Status)
	assert.Equal(t, nodeDir, plan.Primary.InstallDir)
	assert.Equal(t, nodeDir+"/bin/npx", plan.Primary.ExecutablePath)
}

func TestPrepareUsesParentEnvConfigForBundledPrimary(t *testing.T) {
	reg := provider.NewRegistry()
	register(t, reg, &provider.RuntimeDescriptor{Name: "node", ExecutableRelPath: "bin/node"}, &fakeRuntime{
		executionEnv: map[string]string{"NODE_HOME": "/store/node/20.1.0"},
	})
	register(t, reg, &provider.RuntimeDescriptor{Name: "npx", ExecutableName: "npx", BundledWith: "node", ExecutableRelPath: "bin/npx"}, nil)
	layout := vxpath.NewLayoutAt(t.TempDir())

	plan := &ExecutionPlan{
		Primary: &PlannedRuntime{
			Name: "npx", ResolvedVersion: "20.1.0", Status: StatusInstalled, BundledWithName: "node",
			InstallDir: "/store/node/20.1.0/linux-x64", ExecutablePath: "/store/node/20.1.0/linux-x64/bin/npx",
		},
		Platform: provider.Platform{OS: "linux", Arch: "x64"},
	}

	prep, err := Prepare(context.Background(), reg, layout, plan, PrepareOptions{Args: []string{"cowsay", "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "/store/node/20.1.0/linux-x64/bin/npx", prep.Executable)

	found := false
	for _, kv := range prep.Env {
		if kv == "NODE_HOME=/store/node/20.1.0" {
			found = true
		}
	}
	assert.True(t, found, "bundled primary must pick up its parent's ExecutionEnvironment")
}

func TestExitCodeMapping(t *testing.T) {
	assert.Equal(t, 7, ExitCode(nil, 7, true))
	assert.Equal(t, 1, ExitCode(&ResolveError{Runtime: "x"}, 0, false))
	assert.Equal(t, 1, ExitCode(&EnsureError{Runtime: "x"}, 0, false))
	assert.Equal(t, 1, ExitCode(&PrepareError{Runtime: "x"}, 0, false))
	assert.Equal(t, 1, ExitCode(&ExecuteError{Executable: "x"}, 0, false))
}
