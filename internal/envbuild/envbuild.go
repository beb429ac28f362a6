// Package envbuild assembles the environment (PATH and scalar variables) a
// resolved runtime's command runs under (spec §4.6). It generalizes the
// teacher's build-time env assembly (internal/actions/configure_make.go's
// buildAutotoolsEnv, which filters the parent environment and rebuilds PATH
// from dependency exec paths) into a declarative pipeline driven by a
// runtime's EnvConfig instead of one action's hardcoded variable list.
package envbuild

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/vx-dev/vx/internal/provider"
)

// pathSeparator is the PATH list separator for the current platform.
// os.PathListSeparator already tracks this, but it's spelled out here since
// template expansion needs it as a string, not a byte.
var pathSeparator = string(os.PathListSeparator)

// essentialSystemPaths are kept on PATH even under isolation, matching the
// small fixed set a sandboxed build environment still needs to find a shell
// and core utilities.
var essentialSystemPaths = map[string][]string{
	"windows": {`C:\Windows\System32`, `C:\Windows`},
}

// defaultEssentialPaths returns the directories spec §4.6 step 2d mandates
// be present on Unix unconditionally (/bin, /usr/bin, /usr/local/bin), plus
// the sbin equivalents so postinstall scripts that shell out to system admin
// tools still find them.
func defaultEssentialPaths() []string {
	if paths, ok := essentialSystemPaths[runtime.GOOS]; ok {
		return paths
	}
	return []string{"/bin", "/usr/bin", "/usr/local/bin", "/sbin", "/usr/sbin"}
}

// TemplateContext supplies the values {install_dir}, {version}, {executable},
// and {PATH} expand to, plus the vx-managed tool bin directories considered
// for InheritVXPath.
type TemplateContext struct {
	InstallDir    string
	Version       string
	Executable    string
	ParentPath    string
	VXToolBinDirs []string
}

// Expand replaces the placeholders a PathEntry or EnvVarSpec template may
// reference: {install_dir}, {version}, {executable}, {PATH}, {env:VAR}, and a
// leading $HOME (or %USERPROFILE% equivalent via os.UserHomeDir).
func Expand(template string, tc TemplateContext) string {
	s := template
	s = strings.ReplaceAll(s, "{install_dir}", tc.InstallDir)
	s = strings.ReplaceAll(s, "{version}", tc.Version)
	s = strings.ReplaceAll(s, "{executable}", tc.Executable)
	s = strings.ReplaceAll(s, "{PATH}", tc.ParentPath)
	s = expandEnvRefs(s)
	if strings.HasPrefix(s, "$HOME") {
		if home, err := os.UserHomeDir(); err == nil {
			s = home + strings.TrimPrefix(s, "$HOME")
		}
	}
	return s
}

// expandEnvRefs replaces every {env:VAR} with os.Getenv(VAR).
func expandEnvRefs(s string) string {
	for {
		start := strings.Index(s, "{env:")
		if start < 0 {
			return s
		}
		end := strings.Index(s[start:], "}")
		if end < 0 {
			return s
		}
		name := s[start+len("{env:") : start+end]
		s = s[:start] + os.Getenv(name) + s[start+end+1:]
	}
}

// Build assembles the full environment for one invocation: PATH in the
// declared precedence order, followed by the runtime's scalar Vars and any
// additional env the caller threaded through (e.g. PrepareEnvironment /
// ExecutionEnvironment hook output). Later sources win on key conflicts,
// except PATH, which is always reassembled from the pieces below rather than
// simply overwritten.
func Build(cfg provider.EnvConfig, tc TemplateContext, extra ...map[string]string) []string {
	parentEnv := os.Environ()
	path := buildPath(cfg, tc)

	result := make(map[string]string, len(parentEnv)+len(cfg.Vars))

	if cfg.Isolate {
		for _, pattern := range cfg.InheritSystemVars {
			copyMatchingVars(result, parentEnv, pattern)
		}
	} else {
		for _, kv := range parentEnv {
			if k, v, ok := splitEnv(kv); ok && k != "PATH" {
				result[k] = v
			}
		}
	}

	for name, spec := range cfg.Vars {
		result[name] = resolveVar(spec, result[name], tc)
	}

	for _, m := range extra {
		for k, v := range m {
			result[k] = v
		}
	}

	result["PATH"] = path

	out := make([]string, 0, len(result))
	for k, v := range result {
		out = append(out, k+"="+v)
	}
	return out
}

// buildPath assembles PATH in the order spec §4.6 documents:
// provider path_prepend, filtered parent PATH, provider path_append,
// essential system directories, vx-managed tool bins, then the runtime's own
// executable directory. The first occurrence of any directory wins; later
// duplicates are dropped.
func buildPath(cfg provider.EnvConfig, tc TemplateContext) string {
	var pieces []string

	for _, e := range cfg.PathPrepend {
		pieces = append(pieces, Expand(e.Template, tc))
	}

	if cfg.Isolate {
		pieces = append(pieces, defaultEssentialPaths()...)
	} else if tc.ParentPath != "" {
		pieces = append(pieces, strings.Split(tc.ParentPath, pathSeparator)...)
	}

	for _, e := range cfg.PathAppend {
		pieces = append(pieces, Expand(e.Template, tc))
	}

	if !cfg.Isolate {
		pieces = append(pieces, defaultEssentialPaths()...)
	}

	if cfg.InheritVXPath {
		pieces = append(pieces, tc.VXToolBinDirs...)
	}

	if tc.Executable != "" {
		pieces = append(pieces, filepath.Dir(tc.Executable))
	}

	return strings.Join(dedupe(pieces), pathSeparator)
}

func dedupe(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// resolveVar computes an EnvVarSpec's final value: Replace takes Value
// verbatim (after expansion); otherwise the result is Prepend+current+Append
// joined by the platform path list separator, mirroring how PATH itself is
// layered but for an arbitrary variable (e.g. PKG_CONFIG_PATH, CPPFLAGS).
func resolveVar(spec provider.EnvVarSpec, current string, tc TemplateContext) string {
	if spec.Replace {
		return Expand(spec.Value, tc)
	}

	var pieces []string
	for _, p := range spec.Prepend {
		pieces = append(pieces, Expand(p, tc))
	}
	if current != "" {
		pieces = append(pieces, current)
	}
	for _, a := range spec.Append {
		pieces = append(pieces, Expand(a, tc))
	}
	if spec.Value != "" {
		pieces = append(pieces, Expand(spec.Value, tc))
	}
	return strings.Join(dedupe(pieces), pathSeparator)
}

func splitEnv(kv string) (key, value string, ok bool) {
	i := strings.IndexByte(kv, '=')
	if i < 0 {
		return "", "", false
	}
	return kv[:i], kv[i+1:], true
}

// copyMatchingVars copies every parentEnv entry whose key matches pattern
// (a filepath.Match-style glob, e.g. "LC_*") into result, unless already set.
func copyMatchingVars(result map[string]string, parentEnv []string, pattern string) {
	for _, kv := range parentEnv {
		k, v, ok := splitEnv(kv)
		if !ok {
			continue
		}
		if _, exists := result[k]; exists {
			continue
		}
		if matched, err := filepath.Match(pattern, k); err == nil && matched {
			result[k] = v
		}
	}
}
