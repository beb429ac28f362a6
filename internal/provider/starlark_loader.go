package provider

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	vxstar "github.com/vx-dev/vx/internal/starlark"
)

// RegisterStarlark discovers every *.star script directly under dir (spec
// §4.2's Starlark half of the provider model), evaluates it in sandbox, and
// registers the resulting Runtime the same way RegisterBuiltins registers
// native ones. A missing dir is not an error: Starlark providers are
// optional, user-dropped scripts (vxpath.Layout.ProvidersDir).
func RegisterStarlark(reg *Registry, dir string, sandbox *vxstar.Sandbox) error {
	runtimes, err := LoadStarlarkProviders(dir, sandbox)
	if err != nil {
		return err
	}
	for _, rt := range runtimes {
		if err := reg.Register(rt); err != nil {
			return fmt.Errorf("register starlark provider %s: %w", rt.Descriptor().Name, err)
		}
	}
	return nil
}

// LoadStarlarkProviders globs dir for *.star files, loads each through
// sandbox, and decodes its declared top-level metadata (NAME, ALIASES,
// ECOSYSTEM, ...) into a RuntimeDescriptor wrapping a starlarkRuntime. Glob
// results are sorted so registration order (and therefore alias-collision
// errors) is deterministic across runs.
func LoadStarlarkProviders(dir string, sandbox *vxstar.Sandbox) ([]Runtime, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.star"))
	if err != nil {
		return nil, fmt.Errorf("glob provider scripts in %s: %w", dir, err)
	}
	sort.Strings(matches)

	runtimes := make([]Runtime, 0, len(matches))
	for _, path := range matches {
		program, err := sandbox.LoadFile(path)
		if err != nil {
			return nil, err
		}
		desc, err := descriptorFromProgram(path, program)
		if err != nil {
			return nil, err
		}
		runtimes = append(runtimes, NewStarlarkRuntime(desc, program))
	}
	return runtimes, nil
}

// descriptorFromProgram builds a RuntimeDescriptor from a provider.star
// script's declared top-level globals. NAME is the only required one;
// everything else defaults the same way an undeclared field on a native
// RuntimeDescriptor would.
func descriptorFromProgram(path string, program *vxstar.Program) (*RuntimeDescriptor, error) {
	name, ok := globalString(program, "NAME")
	if !ok || name == "" {
		return nil, fmt.Errorf("provider script %s declares no NAME", path)
	}

	description, _ := globalString(program, "DESCRIPTION")
	executableName, _ := globalString(program, "EXECUTABLE_NAME")
	ecosystem, _ := globalString(program, "ECOSYSTEM")
	bundledWith, _ := globalString(program, "BUNDLED_WITH")
	execRelPath, _ := globalString(program, "EXECUTABLE_REL_PATH")

	desc := &RuntimeDescriptor{
		Name:              name,
		Description:       description,
		ExecutableName:    stringOr(executableName, name),
		Aliases:           globalStringList(program, "ALIASES"),
		Ecosystem:         Ecosystem(stringOr(ecosystem, string(EcosystemOther))),
		BundledWith:       bundledWith,
		ExecutableRelPath: stringOr(execRelPath, name),
	}
	return desc, nil
}

func stringOr(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

func globalString(p *vxstar.Program, name string) (string, bool) {
	v, ok := p.Global(name)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func globalStringList(p *vxstar.Program, name string) []string {
	v, ok := p.Global(name)
	if !ok {
		return nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
