package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// LockEntry is one resolved tool pin recorded in vx.lock.
type LockEntry struct {
	ResolvedVersion string `json:"resolved_version"`
	ResolvedFrom    string `json:"resolved_from"`
}

// Lockfile is the serialized mapping tool -> {resolved_version,
// resolved_from} sitting alongside vx.toml (spec §4.9, §6).
type Lockfile struct {
	Tools map[string]LockEntry `json:"tools"`

	path string
}

// LoadLockfile reads vx.lock at path. A missing file is not an error: it
// returns an empty, ready-to-populate Lockfile so callers don't need to
// special-case "no lockfile yet".
func LoadLockfile(path string) (*Lockfile, error) {
	lf := &Lockfile{Tools: make(map[string]LockEntry), path: path}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return lf, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := json.Unmarshal(data, lf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	lf.path = path
	if lf.Tools == nil {
		lf.Tools = make(map[string]LockEntry)
	}
	return lf, nil
}

// VersionFor returns the locked version for a tool, or "" if unlocked.
func (lf *Lockfile) VersionFor(name string) string {
	if lf == nil {
		return ""
	}
	return lf.Tools[name].ResolvedVersion
}

// Set records (or overwrites) a tool's resolution in-memory; callers must
// call Save to persist it.
func (lf *Lockfile) Set(name, resolvedVersion, resolvedFrom string) {
	if lf.Tools == nil {
		lf.Tools = make(map[string]LockEntry)
	}
	lf.Tools[name] = LockEntry{ResolvedVersion: resolvedVersion, ResolvedFrom: resolvedFrom}
}

// Save writes the lockfile via create-then-rename so a crash mid-write
// never leaves a truncated vx.lock on disk.
func (lf *Lockfile) Save() error {
	if lf.path == "" {
		return fmt.Errorf("lockfile has no path to save to")
	}

	data, err := json.MarshalIndent(lf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal lockfile: %w", err)
	}

	tmpPath := lf.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp lockfile: %w", err)
	}
	if err := os.Rename(tmpPath, lf.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename lockfile into place: %w", err)
	}
	return nil
}

// MarshalJSON renders only the Tools map, keeping the on-disk shape a flat
// {tool: {resolved_version, resolved_from}} mapping without leaking the
// unexported path field.
func (lf *Lockfile) MarshalJSON() ([]byte, error) {
	return json.Marshal(lf.Tools)
}

// UnmarshalJSON accepts the flat {tool: {...}} shape described above.
func (lf *Lockfile) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &lf.Tools)
}

// DefaultLockPath returns the vx.lock path sitting next to a vx.toml.
func DefaultLockPath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), LockFileName)
}
