package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vx-dev/vx/internal/buildinfo"
	"github.com/vx-dev/vx/internal/bundle"
	"github.com/vx-dev/vx/internal/project"
	"github.com/vx-dev/vx/internal/vxpath"
)

var (
	bundleForce     bool
	bundleTools     []string
	bundlePlatforms []string
)

// bundleCmd groups the offline-bundle operations (spec §4.8). Unlike the
// root command's runtime-forwarding invocation, these take ordinary
// subcommand-shaped flags, so they're registered as normal cobra children
// rather than going through the root's interspersed-flag-disabled parsing.
var bundleCmd = &cobra.Command{
	Use:   "bundle",
	Short: "Manage the project-local offline bundle",
}

var bundleCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Copy the project's locked tool versions into .vx/bundle",
	RunE:  runBundleCreate,
}

var bundleUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Incrementally refresh .vx/bundle from the current lockfile",
	RunE:  runBundleUpdate,
}

var bundleStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report bundle coverage for the current platform",
	RunE:  runBundleStatus,
}

var bundleExportCmd = &cobra.Command{
	Use:   "export <archive.tar.gz>",
	Short: "Export the bundle as a portable archive",
	Args:  cobra.ExactArgs(1),
	RunE:  runBundleExport,
}

var bundleImportCmd = &cobra.Command{
	Use:   "import <archive.tar.gz>",
	Short: "Import a bundle archive into .vx/bundle",
	Args:  cobra.ExactArgs(1),
	RunE:  runBundleImport,
}

var bundleCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove .vx/bundle",
	RunE:  runBundleClean,
}

func init() {
	bundleExportCmd.Flags().StringSliceVar(&bundleTools, "tools", nil, "Restrict export to these tool names")
	bundleExportCmd.Flags().StringSliceVar(&bundlePlatforms, "platforms", nil, "Restrict export to these platforms")
	bundleCleanCmd.Flags().BoolVar(&bundleForce, "force", false, "Required to actually remove the bundle")

	bundleCmd.AddCommand(bundleCreateCmd, bundleUpdateCmd, bundleStatusCmd, bundleExportCmd, bundleImportCmd, bundleCleanCmd)
}

// bundleContext resolves the project root and its lockfile-derived tool
// list shared by create/update.
func bundleContext() (layout *vxpath.Layout, bundleDir string, tools []bundle.LockedTool, err error) {
	layout, err = vxpath.NewLayout()
	if err != nil {
		return nil, "", nil, err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, "", nil, err
	}

	cfg, err := project.Load(cwd)
	if err != nil {
		return nil, "", nil, fmt.Errorf("load project config: %w", err)
	}
	if cfg == nil {
		return nil, "", nil, fmt.Errorf("no vx.toml found above %s", cwd)
	}

	lf, err := project.LoadLockfile(cfg.LockPath())
	if err != nil {
		return nil, "", nil, fmt.Errorf("load lockfile: %w", err)
	}

	return layout, layout.BundleDir(cfg.Dir), bundle.FromLockfile(lf), nil
}

func runBundleCreate(cmd *cobra.Command, args []string) error {
	layout, bundleDir, tools, err := bundleContext()
	if err != nil {
		return err
	}
	m, err := bundle.Create(layout, bundleDir, buildinfo.Version(), tools)
	if err != nil {
		return err
	}
	fmt.Printf("bundle created: %d tool(s), %d byte(s)\n", len(m.Tools), m.TotalSize)
	return nil
}

func runBundleUpdate(cmd *cobra.Command, args []string) error {
	layout, bundleDir, tools, err := bundleContext()
	if err != nil {
		return err
	}
	m, err := bundle.Update(layout, bundleDir, buildinfo.Version(), tools)
	if err != nil {
		return err
	}
	fmt.Printf("bundle updated: %d tool(s), %d byte(s)\n", len(m.Tools), m.TotalSize)
	return nil
}

func runBundleStatus(cmd *cobra.Command, args []string) error {
	_, bundleDir, _, err := bundleContext()
	if err != nil {
		return err
	}
	m, err := bundle.LoadManifest(bundleDir)
	if err != nil {
		return fmt.Errorf("load manifest: %w", err)
	}

	st := bundle.ReportStatus(m)
	fmt.Printf("manifest version: %d\n", st.ManifestVersion)
	fmt.Printf("current platform (%s) supported: %v\n", st.CurrentPlatform, st.SupportsCurrent)
	fmt.Printf("total size: %d byte(s)\n", st.TotalSize)
	for _, t := range st.Tools {
		fmt.Printf("  %s: %v (current platform: %v)\n", t.Tool, t.BundledVersions, t.CurrentSupported)
	}
	return nil
}

func runBundleExport(cmd *cobra.Command, args []string) error {
	_, bundleDir, _, err := bundleContext()
	if err != nil {
		return err
	}
	return bundle.Export(bundleDir, args[0], bundle.ExportOptions{Tools: bundleTools, Platforms: bundlePlatforms})
}

func runBundleImport(cmd *cobra.Command, args []string) error {
	layout, err := vxpath.NewLayout()
	if err != nil {
		return err
	}
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	cfg, err := project.Load(cwd)
	if err != nil {
		return fmt.Errorf("load project config: %w", err)
	}
	if cfg == nil {
		return fmt.Errorf("no vx.toml found above %s", cwd)
	}

	m, err := bundle.Import(args[0], layout.BundleDir(cfg.Dir))
	if err != nil {
		return err
	}
	fmt.Printf("bundle imported: %d tool(s)\n", len(m.Tools))
	return nil
}

func runBundleClean(cmd *cobra.Command, args []string) error {
	if !bundleForce {
		return fmt.Errorf("refusing to remove the bundle without --force")
	}
	_, bundleDir, _, err := bundleContext()
	if err != nil {
		return err
	}
	return bundle.Clean(bundleDir)
}
