// Package archive extracts the tarballs (plain, gzip, xz, zstd, lzip) and
// zips a provider's install_layout descriptor points at into a version store
// directory. Extraction is the only place untrusted remote bytes turn into
// on-disk paths, so every entry is validated against path and symlink
// escape before being written (ported from the teacher's extraction action).
package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	lzip "github.com/sorairolake/lzip-go"
	"github.com/ulikunitz/xz"
)

// Format is a closed set of archive kinds recognised from a URL or declared
// explicitly by a provider.
type Format string

const (
	FormatTarGz   Format = "tar.gz"
	FormatTarXz   Format = "tar.xz"
	FormatTarZst  Format = "tar.zst"
	FormatTarLz   Format = "tar.lz"
	FormatTar     Format = "tar"
	FormatZip     Format = "zip"
	FormatUnknown Format = "unknown"
)

// DetectFormat infers the archive format from a filename's suffix.
func DetectFormat(name string) Format {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return FormatTarGz
	case strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".txz"):
		return FormatTarXz
	case strings.HasSuffix(lower, ".tar.zst"), strings.HasSuffix(lower, ".tzst"):
		return FormatTarZst
	case strings.HasSuffix(lower, ".tar.lz"), strings.HasSuffix(lower, ".tlz"):
		return FormatTarLz
	case strings.HasSuffix(lower, ".tar"):
		return FormatTar
	case strings.HasSuffix(lower, ".zip"):
		return FormatZip
	default:
		return FormatUnknown
	}
}

// Options controls how an archive is unpacked into the destination tree.
type Options struct {
	// StripPrefix removes a single known leading path component from every
	// entry (e.g. "node-v20.11.0-linux-x64/"), matching install_layout's
	// strip_prefix descriptor field (spec §4.2) rather than a numeric
	// component count.
	StripPrefix string
	// Only, when non-empty, extracts exactly these relative paths (after
	// stripping) and skips everything else.
	Only []string
}

// Extract unpacks archivePath into destPath according to format.
func Extract(archivePath, destPath string, format Format, opts Options) error {
	switch format {
	case FormatTarGz:
		return extractTarGz(archivePath, destPath, opts)
	case FormatTarXz:
		return extractTarXz(archivePath, destPath, opts)
	case FormatTarZst:
		return extractTarZst(archivePath, destPath, opts)
	case FormatTarLz:
		return extractTarLz(archivePath, destPath, opts)
	case FormatTar:
		return extractTar(archivePath, destPath, opts)
	case FormatZip:
		return extractZip(archivePath, destPath, opts)
	default:
		return fmt.Errorf("unsupported archive format: %s", format)
	}
}

func extractTarGz(archivePath, destPath string, opts Options) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer file.Close()

	gzr, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("create gzip reader: %w", err)
	}
	defer gzr.Close()

	return extractTarReader(tar.NewReader(gzr), destPath, opts)
}

func extractTarZst(archivePath, destPath string, opts Options) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer file.Close()

	zr, err := zstd.NewReader(file)
	if err != nil {
		return fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()

	return extractTarReader(tar.NewReader(zr), destPath, opts)
}

func extractTarXz(archivePath, destPath string, opts Options) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer file.Close()

	xzr, err := xz.NewReader(file)
	if err != nil {
		return fmt.Errorf("create xz reader: %w", err)
	}
	return extractTarReader(tar.NewReader(xzr), destPath, opts)
}

func extractTarLz(archivePath, destPath string, opts Options) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer file.Close()

	lr, err := lzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("create lzip reader: %w", err)
	}
	return extractTarReader(tar.NewReader(lr), destPath, opts)
}

func extractTar(archivePath, destPath string, opts Options) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer file.Close()

	return extractTarReader(tar.NewReader(file), destPath, opts)
}

// relativeEntryPath strips a leading "./" and, when set, a single known
// prefix directory from a raw archive entry name. ok is false when the
// entry falls outside the requested prefix and should be skipped.
func relativeEntryPath(name, stripPrefix string) (rel string, ok bool) {
	clean := strings.TrimPrefix(name, "./")
	if stripPrefix == "" {
		return clean, clean != ""
	}
	prefix := strings.TrimSuffix(stripPrefix, "/") + "/"
	if clean == strings.TrimSuffix(prefix, "/") {
		return "", false
	}
	if !strings.HasPrefix(clean, prefix) {
		return "", false
	}
	return strings.TrimPrefix(clean, prefix), true
}

func extractTarReader(tr *tar.Reader, destPath string, opts Options) error {
	only := toSet(opts.Only)

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read tar header: %w", err)
		}

		rel, ok := relativeEntryPath(header.Name, opts.StripPrefix)
		if !ok {
			continue
		}
		if len(only) > 0 && !only[rel] {
			continue
		}

		target := filepath.Join(destPath, rel)
		if !isPathWithinDirectory(target, destPath) {
			return fmt.Errorf("archive entry escapes destination directory: %s", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create directory: %w", err)
			}
		case tar.TypeReg:
			if err := writeRegularFile(target, tr, os.FileMode(header.Mode)); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := validateSymlinkTarget(header.Linkname, target, destPath); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create parent directory: %w", err)
			}
			if err := atomicSymlink(header.Linkname, target); err != nil {
				return fmt.Errorf("create symlink: %w", err)
			}
		}
	}
	return nil
}

func extractZip(archivePath, destPath string, opts Options) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	defer r.Close()

	only := toSet(opts.Only)

	for _, f := range r.File {
		rel, ok := relativeEntryPath(f.Name, opts.StripPrefix)
		if !ok {
			continue
		}
		if len(only) > 0 && !only[rel] {
			continue
		}

		target := filepath.Join(destPath, rel)
		if !isPathWithinDirectory(target, destPath) {
			return fmt.Errorf("zip entry escapes destination directory: %s", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create directory: %w", err)
			}
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("open file in zip: %w", err)
		}
		err = writeRegularFile(target, rc, f.Mode())
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func writeRegularFile(target string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_RDWR|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

func toSet(ss []string) map[string]bool {
	if len(ss) == 0 {
		return nil
	}
	set := make(map[string]bool, len(ss))
	for _, s := range ss {
		set[s] = true
	}
	return set
}

// isPathWithinDirectory reports whether targetPath resolves inside basePath,
// guarding against archive entries that try to escape the destination
// (e.g. "../../etc/passwd").
func isPathWithinDirectory(targetPath, basePath string) bool {
	absTarget, err := filepath.Abs(targetPath)
	if err != nil {
		return false
	}
	absBase, err := filepath.Abs(basePath)
	if err != nil {
		return false
	}
	return absTarget == absBase || strings.HasPrefix(absTarget, absBase+string(os.PathSeparator))
}

// validateSymlinkTarget rejects absolute symlink targets and any relative
// target that would resolve outside destPath.
func validateSymlinkTarget(linkTarget, linkLocation, destPath string) error {
	if filepath.IsAbs(linkTarget) {
		return fmt.Errorf("absolute symlink targets are not allowed: %s -> %s", linkLocation, linkTarget)
	}
	resolved := filepath.Join(filepath.Dir(linkLocation), linkTarget)
	if !isPathWithinDirectory(resolved, destPath) {
		return fmt.Errorf("symlink target escapes destination directory: %s -> %s (resolves to %s)",
			linkLocation, linkTarget, resolved)
	}
	return nil
}

// atomicSymlink creates linkPath -> target via a temp-name-then-rename so a
// concurrent reader never observes a half-created symlink.
func atomicSymlink(target, linkPath string) error {
	tmpLink := linkPath + ".tmp"
	os.Remove(tmpLink)
	if err := os.Symlink(target, tmpLink); err != nil {
		return err
	}
	if err := os.Rename(tmpLink, linkPath); err != nil {
		os.Remove(tmpLink)
		return err
	}
	return nil
}
