// Package installer drives the download -> extract -> post_extract -> verify
// state machine for a single (runtime, version) install (spec §4.5). It
// sits above internal/fetch, internal/archive, and internal/provider,
// reusing the teacher's checksum-verification and atomic-symlink patterns
// (internal/install/checksum.go, internal/install/manager.go) adapted to a
// content-addressed, per-version store directory instead of a single
// "current" symlink tree. internal/installer/filelock serializes concurrent
// installs of the same (runtime, version) tuple across processes.
package installer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vx-dev/vx/internal/archive"
	"github.com/vx-dev/vx/internal/installer/filelock"
	"github.com/vx-dev/vx/internal/provider"
	"github.com/vx-dev/vx/internal/vxpath"
)

// Downloader is the subset of *fetch.Client the installer depends on.
type Downloader interface {
	Download(ctx context.Context, url string) (string, error)
}

// Installer places one runtime version into the store.
type Installer struct {
	layout     *vxpath.Layout
	downloader Downloader
}

// New builds an Installer bound to a path layout and downloader.
func New(layout *vxpath.Layout, downloader Downloader) *Installer {
	return &Installer{layout: layout, downloader: downloader}
}

// extractedMarkerName names the zero-byte file that records a verified,
// completed install so re-entrant calls short-circuit without re-downloading
// (spec §4.2's idempotent-install contract).
const extractedMarkerName = ".extracted"

// Install ensures (name, version) exists in the store for the current
// platform, downloading and extracting it if necessary.
func (inst *Installer) Install(ctx context.Context, rt provider.Runtime, version string, opts provider.InstallOptions) (*provider.InstallResult, error) {
	desc := rt.Descriptor()
	platform, err := provider.ParsePlatform(vxpath.CurrentPlatform())
	if err != nil {
		return nil, fmt.Errorf("determine current platform: %w", err)
	}

	if err := desc.CheckPlatformSupport(platform); err != nil {
		return nil, err
	}

	// Serialize concurrent installs of the same (runtime, version) tuple
	// across vx processes (spec §4.5/§5) before the idempotence-marker
	// check, so a waiter sees the marker the lock holder just wrote instead
	// of racing it.
	lock, err := filelock.Acquire(inst.layout.LockFile(desc.Name, version))
	if err != nil {
		return nil, fmt.Errorf("%s@%s: %w", desc.Name, version, err)
	}
	defer lock.Release()

	installDir := inst.layout.PlatformDir(desc.Name, version, platform.String())
	marker := filepath.Join(installDir, extractedMarkerName)
	if _, err := os.Stat(marker); err == nil {
		return &provider.InstallResult{AlreadyInstalled: true, InstallDir: installDir}, nil
	}

	pctx := &provider.ProviderContext{Context: ctx, Platform: platform, InstallDir: installDir, InstallOptions: opts}

	if !rt.IsVersionInstallable(version) {
		// Proxy-managed versions (e.g. Yarn >= 2 via corepack) are never
		// downloaded by the installer; the executor resolves them later via
		// PrepareExecution.
		return &provider.InstallResult{InstallDir: installDir}, nil
	}

	url, ok, err := rt.DownloadURL(ctx, version, platform)
	if err != nil {
		return nil, fmt.Errorf("%s@%s: resolve download url: %w", desc.Name, version, err)
	}
	if !ok {
		// A provider-custom install path (e.g. MSVC's kit-based install)
		// delegates entirely to Runtime.Install.
		result, err := rt.Install(ctx, version, pctx)
		if err != nil {
			return nil, fmt.Errorf("%s@%s: provider-custom install: %w", desc.Name, version, err)
		}
		if err := inst.finalize(ctx, rt, version, installDir, pctx); err != nil {
			return nil, err
		}
		return result, nil
	}

	if err := os.MkdirAll(installDir, 0o755); err != nil {
		return nil, fmt.Errorf("%s@%s: create install dir: %w", desc.Name, version, err)
	}

	archivePath, err := inst.downloader.Download(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%s@%s: download: %w", desc.Name, version, err)
	}

	format := archive.DetectFormat(url)
	if format == archive.FormatUnknown {
		// A single bare executable (binary_install with no archive suffix):
		// place it directly rather than attempting extraction.
		if err := placeBareExecutable(archivePath, installDir, desc.ExecutableRelPath); err != nil {
			return nil, fmt.Errorf("%s@%s: place executable: %w", desc.Name, version, err)
		}
	} else {
		if err := archive.Extract(archivePath, installDir, format, archive.Options{}); err != nil {
			return nil, fmt.Errorf("%s@%s: extract: %w", desc.Name, version, err)
		}
	}

	if err := inst.finalize(ctx, rt, version, installDir, pctx); err != nil {
		return nil, err
	}

	execPath := inst.layout.ExecutablePath(desc.Name, version, platform.String(), desc.ExecutableRelPath)
	if _, err := os.Stat(execPath); err != nil {
		return nil, fmt.Errorf("%s@%s: verification failed, expected executable at %s: %w", desc.Name, version, execPath, err)
	}

	return &provider.InstallResult{InstallDir: installDir, ExecutablePath: execPath}, nil
}

// finalize runs PostExtract/PostInstall hooks and writes the extracted
// marker only once both succeed, so a crash mid-hook leaves no marker and a
// rerun redoes the whole install rather than skipping a partial one.
func (inst *Installer) finalize(ctx context.Context, rt provider.Runtime, version, installDir string, pctx *provider.ProviderContext) error {
	actions, err := rt.PostExtract(ctx, version, installDir)
	if err != nil {
		return fmt.Errorf("post_extract: %w", err)
	}
	if err := applyPostExtractActions(installDir, actions); err != nil {
		return fmt.Errorf("apply post_extract actions: %w", err)
	}
	if err := rt.PostInstall(ctx, version, pctx); err != nil {
		return fmt.Errorf("post_install: %w", err)
	}
	if err := os.WriteFile(filepath.Join(installDir, extractedMarkerName), nil, 0o644); err != nil {
		return fmt.Errorf("write extracted marker: %w", err)
	}
	return nil
}

func placeBareExecutable(src, installDir, relPath string) error {
	if relPath == "" {
		relPath = filepath.Base(src)
	}
	dest := filepath.Join(installDir, relPath)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return copyExecutable(src, dest)
}

func copyExecutable(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

// VerifyChecksum compares a file's SHA-256 against an expected hex digest.
func VerifyChecksum(path, expectedHex string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	actual := hex.EncodeToString(h.Sum(nil))
	if actual != expectedHex {
		return fmt.Errorf("checksum mismatch for %s: expected %s, got %s", path, expectedHex, actual)
	}
	return nil
}
