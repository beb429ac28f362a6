package starlark

import "go.starlark.net/starlark"

// builtins returns the fixed, pure-descriptor builtin surface available to
// every provider.star script (spec §4.2, §4.5, §9). Each builtin just
// assembles a tagged dict; it never performs I/O. The set is exactly the
// action vocabulary spec.md names: version-list descriptors, install-layout
// descriptors, and post-extract/pre-run hook descriptors.
func builtins() starlark.StringDict {
	return starlark.StringDict{
		"github_versions":  starlark.NewBuiltin("github_versions", descriptorBuiltin("github_versions")),
		"github_releases":  starlark.NewBuiltin("github_releases", descriptorBuiltin("github_releases")),
		"archive_install":  starlark.NewBuiltin("archive_install", descriptorBuiltin("archive_install")),
		"msi_install":      starlark.NewBuiltin("msi_install", descriptorBuiltin("msi_install")),
		"binary_install":   starlark.NewBuiltin("binary_install", descriptorBuiltin("binary_install")),
		"system_find":      starlark.NewBuiltin("system_find", descriptorBuiltin("system_find")),
		"create_shim":      starlark.NewBuiltin("create_shim", descriptorBuiltin("create_shim")),
		"set_permissions":  starlark.NewBuiltin("set_permissions", descriptorBuiltin("set_permissions")),
		"run_command":      starlark.NewBuiltin("run_command", descriptorBuiltin("run_command")),
		"flatten_dir":      starlark.NewBuiltin("flatten_dir", descriptorBuiltin("flatten_dir")),
	}
}

// descriptorBuiltin builds a starlark.Builtin implementation that returns a
// dict of its keyword arguments plus a "__type" discriminator — the pure-
// descriptor pattern spec.md §9 calls "a tiny DSL compiled into our own
// action enum at call time" on the Go side.
func descriptorBuiltin(typeTag string) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		d := starlark.NewDict(len(kwargs) + 1)
		_ = d.SetKey(starlark.String("__type"), starlark.String(typeTag))
		for _, kv := range kwargs {
			key, ok := kv[0].(starlark.String)
			if !ok {
				continue
			}
			_ = d.SetKey(key, kv[1])
		}
		return d, nil
	}
}
