package provider

import (
	"context"
	"fmt"

	vxstar "github.com/vx-dev/vx/internal/starlark"
)

// starlarkRuntime adapts a loaded provider.star Program to the Runtime
// interface. Every method translates to a Program.Call and decodes the
// returned tagged Action(s); the sandbox performs no I/O itself (spec §4.2,
// §9), so all actual downloading/extracting is left to internal/installer
// and internal/archive, which consume the same Action vocabulary.
type starlarkRuntime struct {
	descriptor *RuntimeDescriptor
	program    *vxstar.Program
}

// NewStarlarkRuntime wraps an analyzed Program as a Runtime, using the
// descriptor parsed from the script's declared metadata (name, aliases,
// ecosystem, etc. — spec §4.2's "RuntimeMeta").
func NewStarlarkRuntime(descriptor *RuntimeDescriptor, program *vxstar.Program) Runtime {
	return &starlarkRuntime{descriptor: descriptor, program: program}
}

func (s *starlarkRuntime) Descriptor() *RuntimeDescriptor { return s.descriptor }

func (s *starlarkRuntime) FetchVersions(context.Context) ([]VersionInfo, error) {
	if !s.program.HasFunction("fetch_versions") {
		return nil, fmt.Errorf("%s: provider script has no fetch_versions()", s.descriptor.Name)
	}
	result, err := s.program.Call("fetch_versions")
	if err != nil {
		return nil, err
	}
	action, ok := result.(vxstar.Action)
	if !ok {
		return nil, fmt.Errorf("%s: fetch_versions() did not return a descriptor dict", s.descriptor.Name)
	}
	// The __type ("github_versions", "github_releases", ...) names the
	// resolver the descriptor asks for. No resolver is registered for any
	// __type, so after validating the shape (a malformed script fails fast
	// with its own message) this always returns an error.
	if _, ok := action["__type"]; !ok {
		return nil, fmt.Errorf("%s: fetch_versions() descriptor missing __type", s.descriptor.Name)
	}
	return nil, fmt.Errorf("%s: fetch_versions() descriptor %v requires a registered resolver", s.descriptor.Name, action["__type"])
}

// DownloadURL calls install_layout(version) and extracts a URL from
// archive_install/binary_install descriptors. msi_install and system_find
// descriptors have no single download URL, so ok=false routes the
// installer to a provider-custom path, exactly as spec §4.2 describes.
func (s *starlarkRuntime) DownloadURL(_ context.Context, version string, _ Platform) (string, bool, error) {
	action, err := s.installLayout(version)
	if err != nil {
		return "", false, err
	}
	switch action["__type"] {
	case "archive_install", "binary_install":
		url, _ := action["url"].(string)
		return url, url != "", nil
	default:
		return "", false, nil
	}
}

func (s *starlarkRuntime) installLayout(version string) (vxstar.Action, error) {
	if !s.program.HasFunction("install_layout") {
		return nil, fmt.Errorf("%s: provider script has no install_layout()", s.descriptor.Name)
	}
	result, err := s.program.Call("install_layout", version)
	if err != nil {
		return nil, err
	}
	action, ok := result.(vxstar.Action)
	if !ok {
		return nil, fmt.Errorf("%s: install_layout() did not return a descriptor dict", s.descriptor.Name)
	}
	return action, nil
}

// InstallLayout exposes the raw install_layout() descriptor. The installer
// does not call it; it works from DownloadURL alone, so msi_install and
// system_find descriptors are not acted on there.
func (s *starlarkRuntime) InstallLayout(version string) (vxstar.Action, error) {
	return s.installLayout(version)
}

func (s *starlarkRuntime) Install(_ context.Context, _ string, pctx *ProviderContext) (*InstallResult, error) {
	return &InstallResult{InstallDir: pctx.InstallDir}, nil
}

func (s *starlarkRuntime) PostExtract(_ context.Context, version string, installDir string) ([]PostExtractAction, error) {
	if !s.program.HasFunction("post_extract") {
		return nil, nil
	}
	result, err := s.program.Call("post_extract", version, installDir)
	if err != nil {
		return nil, err
	}
	list, ok := result.([]any)
	if !ok {
		return nil, fmt.Errorf("%s: post_extract() did not return a list", s.descriptor.Name)
	}
	out := make([]PostExtractAction, 0, len(list))
	for _, item := range list {
		action, ok := item.(vxstar.Action)
		if !ok {
			continue
		}
		out = append(out, decodePostExtractAction(action))
	}
	return out, nil
}

func decodePostExtractAction(a vxstar.Action) PostExtractAction {
	str := func(k string) string {
		v, _ := a[k].(string)
		return v
	}
	strs := func(k string) []string {
		raw, _ := a[k].([]any)
		out := make([]string, 0, len(raw))
		for _, v := range raw {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return PostExtractAction{
		Type:        str("__type"),
		Name:        str("name"),
		Target:      str("target"),
		Args:        strs("args"),
		ShimDir:     str("shim_dir"),
		Path:        str("path"),
		Mode:        str("mode"),
		Executable:  str("executable"),
		WorkingDir:  str("working_dir"),
		OnFailure:   str("on_failure"),
		Pattern:     str("pattern"),
		KeepSubdirs: strs("keep_subdirs"),
	}
}

func (s *starlarkRuntime) PostInstall(context.Context, string, *ProviderContext) error { return nil }

func (s *starlarkRuntime) PrepareEnvironment(_ context.Context, version string, _ *ProviderContext) (map[string]string, error) {
	if !s.program.HasFunction("prepare_environment") {
		return nil, nil
	}
	result, err := s.program.Call("prepare_environment", version)
	if err != nil {
		return nil, err
	}
	action, ok := result.(vxstar.Action)
	if !ok {
		return nil, nil
	}
	out := make(map[string]string, len(action))
	for k, v := range action {
		if k == "__type" {
			continue
		}
		if sv, ok := v.(string); ok {
			out[k] = sv
		}
	}
	return out, nil
}

func (s *starlarkRuntime) ExecutionEnvironment(context.Context, string, *ProviderContext) (map[string]string, error) {
	return nil, nil
}

func (s *starlarkRuntime) IsVersionInstallable(string) bool { return true }

func (s *starlarkRuntime) PrepareExecution(context.Context, string, *ProviderContext) (*ExecutionPrep, error) {
	return nil, nil
}
