package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vx-dev/vx/internal/buildinfo"
	"github.com/vx-dev/vx/internal/vxlog"
)

var (
	quietFlag         bool
	verboseFlag       bool
	debugFlag         bool
	useSystemPathFlag bool
	inheritEnvFlag    bool
	offlineFlag       bool
	withSpecs         []string
)

// globalCtx is canceled on SIGINT/SIGTERM; the executor pipeline threads it
// through every blocking call (downloads, extraction, the child process).
var globalCtx context.Context
var globalCancel context.CancelFunc

var rootCmd = &cobra.Command{
	Use:   "vx <runtime>[@version] [args...]",
	Short: "Universal development-tool version manager and command forwarder",
	Long: `vx locates or installs a pinned version of a development tool and
forwards a command to it with a reproducible environment.

Examples:
  vx node@20 --version
  vx uv pip install requests
  vx cargo build
  vx msvc::cl /help`,
	Args:         cobra.ArbitraryArgs,
	SilenceUsage: true,
	RunE:         runRoot,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Show errors only")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Show verbose output (INFO level)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Show debug output")
	rootCmd.PersistentFlags().BoolVar(&useSystemPathFlag, "use-system-path", false, "Invoke the executable by name via PATH instead of its resolved store path")
	rootCmd.PersistentFlags().BoolVar(&inheritEnvFlag, "inherit-env", false, "Disable PATH isolation; inherit the full parent environment")
	rootCmd.PersistentFlags().BoolVar(&offlineFlag, "offline", false, "Force offline routing even if the network looks reachable")
	rootCmd.PersistentFlags().StringArrayVar(&withSpecs, "with", nil, "Inject an additional runtime[@version] into the child's environment (repeatable)")

	// Once the first positional argument is seen, stop parsing flags: a
	// second "--verbose" after the runtime name belongs to the child, not
	// to vx. This is what lets `vx node --version` forward --version to
	// node instead of vx itself.
	rootCmd.Flags().SetInterspersed(false)

	rootCmd.PersistentPreRun = initLogger
	rootCmd.Version = buildinfo.Version()

	rootCmd.AddCommand(bundleCmd)
}

func main() {
	globalCtx, globalCancel = context.WithCancel(context.Background())
	defer globalCancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		fmt.Fprintf(os.Stderr, "\nreceived %s, canceling...\n", sig)
		globalCancel()

		<-sigChan
		fmt.Fprintln(os.Stderr, "forced exit")
		exitWithCode(ExitCancelled)
	}()

	if err := rootCmd.Execute(); err != nil {
		if globalCtx.Err() == context.Canceled {
			exitWithCode(ExitCancelled)
		}
		fmt.Fprintln(os.Stderr, err)
		exitWithCode(ExitUsage)
	}
}

// initLogger wires the verbosity flags (and their VX_* environment
// fallbacks) into the process-global vxlog logger before any command runs.
func initLogger(cmd *cobra.Command, args []string) {
	level := determineLogLevel()
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	vxlog.SetDefault(vxlog.New(handler))

	if level == slog.LevelDebug {
		fmt.Fprintln(os.Stderr, "[DEBUG MODE] output may contain file paths and URLs")
	}
}

// determineLogLevel mirrors the teacher's flag-then-env-then-default
// priority, renamed from TSUKU_* to VX_*.
func determineLogLevel() slog.Level {
	if debugFlag {
		return slog.LevelDebug
	}
	if verboseFlag {
		return slog.LevelInfo
	}
	if quietFlag {
		return slog.LevelError
	}

	if isTruthy(os.Getenv("VX_DEBUG")) {
		return slog.LevelDebug
	}
	if isTruthy(os.Getenv("VX_VERBOSE")) {
		return slog.LevelInfo
	}
	if isTruthy(os.Getenv("VX_QUIET")) {
		return slog.LevelError
	}

	return slog.LevelWarn
}

func isTruthy(s string) bool {
	s = strings.ToLower(s)
	return s == "1" || s == "true" || s == "yes" || s == "on"
}
