package envbuild

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vx-dev/vx/internal/provider"
)

func TestExpandSubstitutesAllPlaceholders(t *testing.T) {
	t.Setenv("VX_ENVBUILD_TEST_VAR", "injected")
	tc := TemplateContext{
		InstallDir: "/store/node/20.11.0/linux-x64",
		Version:    "20.11.0",
		Executable: "/store/node/20.11.0/linux-x64/bin/node",
		ParentPath: "/usr/bin:/bin",
	}
	got := Expand("{install_dir}/lib:{PATH}:{env:VX_ENVBUILD_TEST_VAR}-v{version}", tc)
	assert.Equal(t, "/store/node/20.11.0/linux-x64/lib:/usr/bin:/bin:injected-v20.11.0", got)
}

func TestExpandHomePrefix(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	got := Expand("$HOME/.config/tool", TemplateContext{})
	assert.Equal(t, home+"/.config/tool", got)
}

func findVar(env []string, key string) (string, bool) {
	prefix := key + "="
	for _, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			return strings.TrimPrefix(kv, prefix), true
		}
	}
	return "", false
}

func TestBuildPathOrderPrependParentAppendEssentialVXTools(t *testing.T) {
	cfg := provider.EnvConfig{
		InheritVXPath: true,
		PathPrepend:   []provider.PathEntry{{Template: "{install_dir}/bin"}},
		PathAppend:    []provider.PathEntry{{Template: "{install_dir}/extra"}},
	}
	tc := TemplateContext{
		InstallDir:    "/store/tool/1.0.0/linux-x64",
		ParentPath:    "/usr/bin:/bin",
		VXToolBinDirs: []string{"/home/u/.vx/bin"},
	}
	env := Build(cfg, tc)
	path, ok := findVar(env, "PATH")
	require.True(t, ok)

	prependIdx := strings.Index(path, "/store/tool/1.0.0/linux-x64/bin")
	parentIdx := strings.Index(path, "/usr/bin")
	appendIdx := strings.Index(path, "/store/tool/1.0.0/linux-x64/extra")
	vxIdx := strings.Index(path, "/home/u/.vx/bin")

	require.True(t, prependIdx >= 0 && parentIdx >= 0 && appendIdx >= 0 && vxIdx >= 0)
	assert.True(t, prependIdx < parentIdx)
	assert.True(t, parentIdx < appendIdx)
	assert.True(t, appendIdx < vxIdx)
}

func TestBuildPathDedupesFirstEntryWins(t *testing.T) {
	cfg := provider.EnvConfig{
		PathPrepend: []provider.PathEntry{{Template: "/usr/bin"}},
	}
	tc := TemplateContext{ParentPath: "/usr/bin:/bin"}
	env := Build(cfg, tc)
	path, ok := findVar(env, "PATH")
	require.True(t, ok)
	assert.Equal(t, 1, strings.Count(path, "/usr/bin"))
}

func TestBuildIsolateDropsParentPathKeepsEssentials(t *testing.T) {
	cfg := provider.EnvConfig{Isolate: true}
	tc := TemplateContext{ParentPath: "/some/custom/dir"}
	env := Build(cfg, tc)
	path, ok := findVar(env, "PATH")
	require.True(t, ok)
	assert.NotContains(t, path, "/some/custom/dir")
	assert.Contains(t, path, "/usr/bin")
	assert.Contains(t, path, "/usr/local/bin")
}

func TestBuildAppendsEssentialPathsUnconditionally(t *testing.T) {
	cfg := provider.EnvConfig{}
	tc := TemplateContext{ParentPath: "/some/custom/dir"}
	env := Build(cfg, tc)
	path, ok := findVar(env, "PATH")
	require.True(t, ok)
	assert.Contains(t, path, "/bin")
	assert.Contains(t, path, "/usr/bin")
	assert.Contains(t, path, "/usr/local/bin")
}

func TestBuildIsolateCopiesOnlyMatchingInheritSystemVars(t *testing.T) {
	t.Setenv("LC_ALL", "en_US.UTF-8")
	t.Setenv("SECRET_TOKEN", "should-not-leak")

	cfg := provider.EnvConfig{Isolate: true, InheritSystemVars: []string{"LC_*"}}
	env := Build(cfg, TemplateContext{})

	_, hasLC := findVar(env, "LC_ALL")
	_, hasSecret := findVar(env, "SECRET_TOKEN")
	assert.True(t, hasLC)
	assert.False(t, hasSecret)
}

func TestBuildVarReplaceTakesValueVerbatim(t *testing.T) {
	t.Setenv("CC", "parent-compiler")
	cfg := provider.EnvConfig{Vars: map[string]provider.EnvVarSpec{
		"CC": {Value: "{install_dir}/bin/clang", Replace: true},
	}}
	env := Build(cfg, TemplateContext{InstallDir: "/store/llvm/18.0.0/linux-x64"})
	cc, ok := findVar(env, "CC")
	require.True(t, ok)
	assert.Equal(t, "/store/llvm/18.0.0/linux-x64/bin/clang", cc)
}

func TestBuildVarPrependAppendAroundCurrent(t *testing.T) {
	t.Setenv("PKG_CONFIG_PATH", "/existing/pkgconfig")
	cfg := provider.EnvConfig{Vars: map[string]provider.EnvVarSpec{
		"PKG_CONFIG_PATH": {
			Prepend: []string{"{install_dir}/lib/pkgconfig"},
		},
	}}
	env := Build(cfg, TemplateContext{InstallDir: "/store/zlib/1.3.0/linux-x64"})
	val, ok := findVar(env, "PKG_CONFIG_PATH")
	require.True(t, ok)
	assert.Equal(t, "/store/zlib/1.3.0/linux-x64/lib/pkgconfig:/existing/pkgconfig", val)
}

func TestBuildExtraOverridesTakePrecedence(t *testing.T) {
	env := Build(provider.EnvConfig{}, TemplateContext{}, map[string]string{"RUSTUP_HOME": "/store/rustup"})
	val, ok := findVar(env, "RUSTUP_HOME")
	require.True(t, ok)
	assert.Equal(t, "/store/rustup", val)
}
