// Package vxpath derives every on-disk path vx uses from one user-specific
// base directory. It is the sole owner of the store, cache, and bin
// directory layout (spec §4.1); no other package should build these paths
// by hand.
package vxpath

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

const (
	// EnvVXHome overrides the default vx home directory.
	EnvVXHome = "VX_HOME"
	// EnvAPITimeout configures the timeout used for version/download HTTP calls.
	EnvAPITimeout = "VX_API_TIMEOUT"
	// EnvVersionCacheTTL configures how long fetched version lists are cached.
	EnvVersionCacheTTL = "VX_VERSION_CACHE_TTL"
	// EnvExecTimeout configures the default child-process execution timeout.
	EnvExecTimeout = "VX_EXEC_TIMEOUT"

	// DefaultAPITimeout is used when EnvAPITimeout is unset or invalid.
	DefaultAPITimeout = 30 * time.Second
	// DefaultVersionCacheTTL is used when EnvVersionCacheTTL is unset or invalid.
	DefaultVersionCacheTTL = 1 * time.Hour
)

// DefaultHomeOverride lets the binary's main package point dev builds at an
// alternate home (e.g. ".vx-dev") via ldflags. VX_HOME still wins over this.
var DefaultHomeOverride string

// Layout is the canonical filesystem layout rooted at one base directory.
type Layout struct {
	Base string // $VX_HOME, typically $HOME/.vx

	store string
	cache string
	bin   string
}

// NewLayout resolves the layout from VX_HOME, DefaultHomeOverride, or
// $HOME/.vx, in that priority order.
func NewLayout() (*Layout, error) {
	base := os.Getenv(EnvVXHome)
	if base == "" {
		if DefaultHomeOverride != "" {
			base = DefaultHomeOverride
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("resolve user home directory: %w", err)
			}
			base = filepath.Join(home, ".vx")
		}
	}
	return NewLayoutAt(base), nil
}

// NewLayoutAt builds a Layout rooted at an explicit base directory. Used by
// tests and by --vx-home style overrides.
func NewLayoutAt(base string) *Layout {
	return &Layout{
		Base:  base,
		store: filepath.Join(base, "store"),
		cache: filepath.Join(base, "cache"),
		bin:   filepath.Join(base, "bin"),
	}
}

// Store is the root of the content-addressed installed-runtime tree.
func (l *Layout) Store() string { return l.store }

// Cache is the root of the download/version/resolution/exec-path cache.
func (l *Layout) Cache() string { return l.cache }

// Bin is vx's own shim directory.
func (l *Layout) Bin() string { return l.bin }

// ProvidersDir holds user-dropped provider.star scripts, discovered and
// registered alongside the native providers (spec §4.2's Starlark half).
func (l *Layout) ProvidersDir() string { return filepath.Join(l.Base, "providers") }

// DownloadsCache holds fetched archives, keyed by content/URL hash.
func (l *Layout) DownloadsCache() string { return filepath.Join(l.cache, "downloads") }

// VersionsCache holds cached remote version lists, keyed by runtime name.
func (l *Layout) VersionsCache() string { return filepath.Join(l.cache, "versions_v2") }

// ResolutionsCache holds cached dependency-resolution results.
func (l *Layout) ResolutionsCache() string { return filepath.Join(l.cache, "resolutions") }

// ExecPathCache holds the cached absolute path of each resolved executable.
func (l *Layout) ExecPathCache() string { return filepath.Join(l.cache, "exec-path") }

// EnsureDirectories creates every directory the layout owns.
func (l *Layout) EnsureDirectories() error {
	for _, dir := range []string{
		l.Base, l.store, l.cache, l.bin, l.ProvidersDir(),
		l.DownloadsCache(), l.VersionsCache(), l.ResolutionsCache(), l.ExecPathCache(),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// VersionStoreDir returns {store}/{name}/{version}, the root under which
// every platform subdirectory for that version lives.
func (l *Layout) VersionStoreDir(name, version string) string {
	return filepath.Join(l.store, name, version)
}

// PlatformDir returns {store}/{name}/{version}/{platform}, the directory
// into which a single (runtime, version, platform) tuple is extracted.
func (l *Layout) PlatformDir(name, version, platform string) string {
	return filepath.Join(l.VersionStoreDir(name, version), platform)
}

// ExtractedMarker is the empty file the installer writes once an install
// has completed; while it exists later installs short-circuit, and without
// it the next install runs again from the start.
func (l *Layout) ExtractedMarker(name, version, platform string) string {
	return filepath.Join(l.PlatformDir(name, version, platform), ".extracted")
}

// LockFile returns the per-(runtime,version) advisory lock path used to
// serialize concurrent installs of the same tuple.
func (l *Layout) LockFile(name, version string) string {
	return filepath.Join(l.VersionStoreDir(name, version), ".lock")
}

// ExecutablePath composes {platformDir}/{relPath}, applying the
// platform-canonical executable suffix when relPath has none and the
// target OS is windows.
func (l *Layout) ExecutablePath(name, version, platform, relPath string) string {
	dir := l.PlatformDir(name, version, platform)
	if strings.HasPrefix(platform, "windows-") || platform == "windows" {
		relPath = withWindowsExt(relPath)
	}
	return filepath.Join(dir, filepath.FromSlash(relPath))
}

func withWindowsExt(relPath string) string {
	ext := filepath.Ext(relPath)
	switch strings.ToLower(ext) {
	case ".exe", ".cmd", ".bat":
		return relPath
	}
	if ext == "" {
		return relPath + ".exe"
	}
	return relPath
}

// BundleDir returns the project-local offline bundle directory,
// {projectRoot}/.vx/bundle.
func (l *Layout) BundleDir(projectRoot string) string {
	return filepath.Join(projectRoot, ".vx", "bundle")
}

// CurrentPlatform renders the running OS/arch as the canonical "os-arch" tag.
func CurrentPlatform() string {
	return fmt.Sprintf("%s-%s", normalizeOS(runtime.GOOS), normalizeArch(runtime.GOARCH))
}

func normalizeOS(goos string) string {
	switch goos {
	case "darwin":
		return "macos"
	default:
		return goos
	}
}

func normalizeArch(goarch string) string {
	switch goarch {
	case "amd64":
		return "x64"
	case "386":
		return "x86"
	default:
		return goarch
	}
}

// GetAPITimeout returns VX_API_TIMEOUT, clamped to [1s, 10m], or the default.
func GetAPITimeout() time.Duration {
	return parseDurationEnv(EnvAPITimeout, DefaultAPITimeout, time.Second, 10*time.Minute)
}

// GetVersionCacheTTL returns VX_VERSION_CACHE_TTL, clamped to [5m, 7d], or the default.
func GetVersionCacheTTL() time.Duration {
	return parseDurationEnv(EnvVersionCacheTTL, DefaultVersionCacheTTL, 5*time.Minute, 7*24*time.Hour)
}

// GetExecTimeout returns VX_EXEC_TIMEOUT if set and valid, or zero (no timeout).
func GetExecTimeout() (time.Duration, bool) {
	v := os.Getenv(EnvExecTimeout)
	if v == "" {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		fmt.Fprintf(os.Stderr, "Warning: invalid %s value %q, ignoring\n", EnvExecTimeout, v)
		return 0, false
	}
	return d, true
}

func parseDurationEnv(envName string, def, min, max time.Duration) time.Duration {
	v := os.Getenv(envName)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: invalid %s value %q, using default %v\n", envName, v, def)
		return def
	}
	if d < min {
		fmt.Fprintf(os.Stderr, "Warning: %s too low (%v), using minimum %v\n", envName, d, min)
		return min
	}
	if d > max {
		fmt.Fprintf(os.Stderr, "Warning: %s too high (%v), using maximum %v\n", envName, d, max)
		return max
	}
	return d
}

// ParseByteSize parses human-readable byte sizes like "50MB", "50M", "52428800".
func ParseByteSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	var numStr, suffix string
	for i, c := range s {
		if (c >= '0' && c <= '9') || c == '.' {
			numStr += string(c)
		} else {
			suffix = s[i:]
			break
		}
	}
	if numStr == "" {
		return 0, fmt.Errorf("invalid size format: %q", s)
	}
	num, err := strconv.ParseFloat(numStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size number: %q", numStr)
	}
	var mult float64
	switch suffix {
	case "", "B":
		mult = 1
	case "K", "KB":
		mult = 1024
	case "M", "MB":
		mult = 1024 * 1024
	case "G", "GB":
		mult = 1024 * 1024 * 1024
	default:
		return 0, fmt.Errorf("invalid size suffix: %q", suffix)
	}
	return int64(num * mult), nil
}
