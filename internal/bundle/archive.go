package bundle

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ExportOptions filters what Export includes from a bundle directory.
type ExportOptions struct {
	// Tools, when non-empty, restricts export to these tool names.
	Tools []string
	// Platforms, when non-empty, restricts export to these platforms.
	Platforms []string
}

// Export produces a portable gzip-compressed tar at archivePath containing
// the (possibly filtered) manifest and its referenced store tree, using PAX
// extended headers for long paths (spec §4.8, §6). A bundle whose manifest
// predates per-platform layout (no platform subdirectory per version) is
// exported as a single-platform fallback rather than rejected.
func Export(bundleDir, archivePath string, opts ExportOptions) error {
	m, err := LoadManifest(bundleDir)
	if err != nil {
		return fmt.Errorf("load manifest: %w", err)
	}

	filtered := filterManifest(m, opts)

	out, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer out.Close()

	gzw := gzip.NewWriter(out)
	defer gzw.Close()

	tarW := tar.NewWriter(gzw)
	defer tarW.Close()

	manifestBytes, err := marshalManifest(filtered)
	if err != nil {
		return err
	}
	if err := writePaxEntry(tarW, ManifestFileName, manifestBytes); err != nil {
		return err
	}

	for tool, tm := range filtered.Tools {
		for version, vm := range tm.Versions {
			for platform, relPath := range vm.PlatformPaths {
				src := filepath.Join(bundleDir, relPath)
				if err := addTreeToTar(tarW, src, relPath); err != nil {
					return fmt.Errorf("export %s@%s (%s): %w", tool, version, platform, err)
				}
			}
		}
	}

	return nil
}

func filterManifest(m *Manifest, opts ExportOptions) *Manifest {
	toolFilter := toSet(opts.Tools)
	platformFilter := toSet(opts.Platforms)

	out := &Manifest{
		Version:   m.Version,
		CreatedAt: m.CreatedAt,
		VXVersion: m.VXVersion,
		Platform:  m.Platform,
		Tools:     make(map[string]ToolManifest),
	}

	platformSeen := make(map[string]bool)
	for tool, tm := range m.Tools {
		if len(toolFilter) > 0 && !toolFilter[tool] {
			continue
		}
		outTM := ToolManifest{Versions: make(map[string]VersionManifest)}
		for version, vm := range tm.Versions {
			outVM := VersionManifest{PlatformPaths: make(map[string]string), Size: vm.Size}
			for platform, relPath := range vm.PlatformPaths {
				if len(platformFilter) > 0 && !platformFilter[platform] {
					continue
				}
				outVM.PlatformPaths[platform] = relPath
				platformSeen[platform] = true
			}
			if len(outVM.PlatformPaths) > 0 {
				outTM.Versions[version] = outVM
				out.TotalSize += outVM.Size
			}
		}
		if len(outTM.Versions) > 0 {
			out.Tools[tool] = outTM
		}
	}

	for p := range platformSeen {
		out.Platforms = append(out.Platforms, p)
	}
	return out
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

func marshalManifest(m *Manifest) ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

func unmarshalManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

func writePaxEntry(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Size:     int64(len(content)),
		Mode:     0o644,
		Format:   tar.FormatPAX,
		ModTime:  time.Now().UTC(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write manifest header: %w", err)
	}
	if _, err := tw.Write(content); err != nil {
		return fmt.Errorf("write manifest body: %w", err)
	}
	return nil
}

// addTreeToTar walks src on disk and writes every entry under archiveName
// using PAX headers, so arbitrarily long paths (deep toolchain trees)
// round-trip without GNU-specific extensions.
func addTreeToTar(tw *tar.Writer, src, archiveName string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		name := archiveName
		if rel != "." {
			name = filepath.ToSlash(filepath.Join(archiveName, rel))
		}

		if info.Mode()&os.ModeSymlink != 0 {
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			hdr, err := tar.FileInfoHeader(info, target)
			if err != nil {
				return err
			}
			hdr.Name = name
			hdr.Format = tar.FormatPAX
			return tw.WriteHeader(hdr)
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = name
		hdr.Format = tar.FormatPAX
		if info.IsDir() {
			hdr.Name += "/"
			return tw.WriteHeader(hdr)
		}

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
}

// Import extracts an archive produced by Export into bundleDir, rewriting
// the manifest's created_at to the import time (spec §4.8: "extracts a
// tar.gz and rewrites created_at").
func Import(archivePath, bundleDir string) (*Manifest, error) {
	in, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer in.Close()

	gzr, err := gzip.NewReader(in)
	if err != nil {
		return nil, fmt.Errorf("create gzip reader: %w", err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	var manifestBytes []byte

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read tar header: %w", err)
		}

		if hdr.Name == ManifestFileName {
			data, err := io.ReadAll(tr)
			if err != nil {
				return nil, fmt.Errorf("read manifest entry: %w", err)
			}
			manifestBytes = data
			continue
		}

		target := filepath.Join(bundleDir, filepath.FromSlash(hdr.Name))
		if !strings.HasPrefix(target, filepath.Clean(bundleDir)+string(os.PathSeparator)) && target != filepath.Clean(bundleDir) {
			return nil, fmt.Errorf("archive entry escapes bundle directory: %s", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return nil, err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return nil, err
			}
			os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return nil, err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return nil, err
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_RDWR|os.O_TRUNC, os.FileMode(hdr.Mode))
			if err != nil {
				return nil, err
			}
			_, err = io.Copy(f, tr)
			f.Close()
			if err != nil {
				return nil, err
			}
		}
	}

	if manifestBytes == nil {
		return nil, fmt.Errorf("archive contains no %s", ManifestFileName)
	}

	m, err := unmarshalManifest(manifestBytes)
	if err != nil {
		return nil, err
	}
	MigrateV1(m)
	m.CreatedAt = time.Now().UTC()

	if err := m.Save(bundleDir); err != nil {
		return nil, err
	}
	return m, nil
}
