package installer

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/vx-dev/vx/internal/provider"
)

// applyPostExtractActions runs each action a provider's PostExtract hook
// returned, in order, against the freshly extracted install tree.
func applyPostExtractActions(installDir string, actions []provider.PostExtractAction) error {
	for _, a := range actions {
		var err error
		switch a.Type {
		case "create_shim":
			err = createShim(installDir, a)
		case "set_permissions":
			err = setPermissions(installDir, a)
		case "run_command":
			err = runCommand(installDir, a)
		case "flatten_dir":
			err = flattenDir(installDir, a)
		default:
			err = fmt.Errorf("unknown post_extract action %q", a.Type)
		}
		if err != nil {
			if a.OnFailure == "ignore" {
				continue
			}
			return fmt.Errorf("%s %q: %w", a.Type, a.Name, err)
		}
	}
	return nil
}

// createShim writes a small POSIX shim script at {installDir}/{shim_dir}/{name}
// that execs the real target binary, mirroring the teacher's wrapper-script
// generation for binaries with runtime dependencies
// (internal/install/manager.go's generateWrapperScript), generalized to a
// provider-declared target instead of a fixed runtime-dependency PATH list.
func createShim(installDir string, a provider.PostExtractAction) error {
	shimDir := a.ShimDir
	if shimDir == "" {
		shimDir = "bin"
	}
	dir := filepath.Join(installDir, shimDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	target := filepath.Join(installDir, a.Target)
	shimPath := filepath.Join(dir, a.Name)

	content := "#!/bin/sh\nexec \"" + target + "\""
	for _, arg := range a.Args {
		content += " \"" + arg + "\""
	}
	content += " \"$@\"\n"

	tmp := shimPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o755); err != nil {
		return err
	}
	return os.Rename(tmp, shimPath)
}

// setPermissions applies a chmod (mode given as an octal string, e.g.
// "0755") to the provider-declared path.
func setPermissions(installDir string, a provider.PostExtractAction) error {
	path := filepath.Join(installDir, a.Path)
	mode, err := strconv.ParseUint(a.Mode, 8, 32)
	if err != nil {
		return fmt.Errorf("invalid mode %q: %w", a.Mode, err)
	}
	return os.Chmod(path, os.FileMode(mode))
}

// runCommand executes a provider-declared post-extract hook (e.g. a
// self-contained setup script an archive ships with) with its working
// directory inside the install tree.
func runCommand(installDir string, a provider.PostExtractAction) error {
	workDir := installDir
	if a.WorkingDir != "" {
		workDir = filepath.Join(installDir, a.WorkingDir)
	}
	executable := a.Executable
	if !filepath.IsAbs(executable) {
		executable = filepath.Join(installDir, executable)
	}
	cmd := exec.Command(executable, a.Args...)
	cmd.Dir = workDir
	if len(a.Env) > 0 {
		env := os.Environ()
		for k, v := range a.Env {
			env = append(env, k+"="+v)
		}
		cmd.Env = env
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, out)
	}
	return nil
}

// flattenDir moves everything out of a nested single subdirectory (common
// when an archive wraps its payload in one extra directory level the
// provider's strip_prefix couldn't anticipate) up into installDir.
func flattenDir(installDir string, a provider.PostExtractAction) error {
	nested := filepath.Join(installDir, a.Path)
	entries, err := os.ReadDir(nested)
	if err != nil {
		return err
	}
	keep := toSet(a.KeepSubdirs)
	for _, entry := range entries {
		if keep[entry.Name()] {
			continue
		}
		from := filepath.Join(nested, entry.Name())
		to := filepath.Join(installDir, entry.Name())
		if err := os.Rename(from, to); err != nil {
			return err
		}
	}
	return os.Remove(nested)
}

func toSet(ss []string) map[string]bool {
	set := make(map[string]bool, len(ss))
	for _, s := range ss {
		set[s] = true
	}
	return set
}
