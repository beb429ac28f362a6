// Package project locates and parses vx.toml (spec §4.9): the per-project
// tool pin file and its sibling lockfile. Both are read by the version
// selector; vx.toml is never written, and vx.lock is rewritten by each
// `vx` run inside a project, always through a temp-file-then-rename so a
// crash mid-write never leaves a corrupt vx.lock behind.
package project

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// ConfigFileName is the project pin file vx looks for while walking up from cwd.
const ConfigFileName = "vx.toml"

// LockFileName is the sibling lockfile read/written alongside ConfigFileName.
const LockFileName = "vx.lock"

// ToolConfig is one [tools.<name>] table: install options layered onto a
// plain version pin (e.g. MSVC components).
type ToolConfig struct {
	Version    string         `toml:"-"`
	Components []string       `toml:"components,omitempty"`
	Options    map[string]any `toml:"-"`
}

// Config is a parsed vx.toml. Tools maps a runtime's canonical or alias
// name to its pinned version string; a missing [tools] table parses as an
// empty map rather than an error (spec §4.9).
type Config struct {
	Tools map[string]string `toml:"tools"`

	// ToolOptions holds the [tools.<name>] sub-tables keyed the same way as
	// Tools; present only for tools that declare extra install options.
	ToolOptions map[string]ToolConfig `toml:"-"`

	// Dir is the directory the config file was found in (the project root).
	Dir string `toml:"-"`
	// Path is the absolute path to the vx.toml that was loaded.
	Path string `toml:"-"`
}

// rawConfig mirrors the on-disk shape before options are split out of the
// simple `name = "version"` pins, since toml.Decode doesn't distinguish a
// string value from a sub-table at the same key without a two-pass decode.
type rawConfig struct {
	Tools map[string]toml.Primitive `toml:"tools"`
}

// Find walks up from startDir looking for vx.toml, honoring only the
// topmost hit (spec §4.9: "Only the topmost hit is honored"). It returns
// ("", false, nil) when no vx.toml is found before reaching the filesystem
// root.
func Find(startDir string) (path string, found bool, err error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("resolve start directory: %w", err)
	}

	var topmost string
	for {
		candidate := filepath.Join(dir, ConfigFileName)
		if _, statErr := os.Stat(candidate); statErr == nil {
			topmost = candidate
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if topmost == "" {
		return "", false, nil
	}
	return topmost, true, nil
}

// Load finds and parses the nearest vx.toml above startDir. A missing
// config file is not an error: Load returns (nil, nil) so callers can
// treat "no project file" as "no pins" uniformly.
func Load(startDir string) (*Config, error) {
	path, found, err := Find(startDir)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return LoadFile(path)
}

// LoadFile parses one vx.toml at an already-known path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var raw rawConfig
	meta, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg := &Config{
		Tools:       make(map[string]string),
		ToolOptions: make(map[string]ToolConfig),
		Dir:         filepath.Dir(path),
		Path:        path,
	}

	for name, prim := range raw.Tools {
		var version string
		if err := meta.PrimitiveDecode(prim, &version); err == nil {
			cfg.Tools[name] = version
			continue
		}

		// Not a plain string: it's a [tools.<name>] sub-table carrying
		// install options alongside its own "version" = pin.
		var table map[string]any
		if decodeErr := meta.PrimitiveDecode(prim, &table); decodeErr != nil {
			return nil, fmt.Errorf("parse %s: tools.%s: %w", path, name, decodeErr)
		}

		tc := ToolConfig{Options: make(map[string]any, len(table))}
		for k, v := range table {
			switch k {
			case "version":
				if s, ok := v.(string); ok {
					tc.Version = s
					cfg.Tools[name] = s
				}
			case "components":
				if items, ok := v.([]any); ok {
					for _, item := range items {
						if s, ok := item.(string); ok {
							tc.Components = append(tc.Components, s)
						}
					}
				}
			default:
				tc.Options[k] = v
			}
		}
		cfg.ToolOptions[name] = tc
	}

	return cfg, nil
}

// VersionFor returns the pinned version for a tool name, or "" if unpinned.
func (c *Config) VersionFor(name string) string {
	if c == nil {
		return ""
	}
	return c.Tools[name]
}

// InstallOptionsFor returns the install-options map declared in a
// [tools.<name>] table, threaded into the installer via ProviderContext
// (spec §4.9). Returns nil when the tool has no sub-table.
func (c *Config) InstallOptionsFor(name string) map[string]any {
	if c == nil {
		return nil
	}
	tc, ok := c.ToolOptions[name]
	if !ok {
		return nil
	}
	opts := make(map[string]any, len(tc.Options)+1)
	for k, v := range tc.Options {
		opts[k] = v
	}
	if len(tc.Components) > 0 {
		opts["components"] = tc.Components
	}
	return opts
}

// LockPath returns the sibling vx.lock path for a loaded config's directory.
func (c *Config) LockPath() string {
	return filepath.Join(c.Dir, LockFileName)
}
