// Package cli implements the fiberplant command-line interface. Every
// mutating command runs in its own edit session and saves it only when the
// command succeeds.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/fiberplant/internal/logging"
	"github.com/mesh-intelligence/fiberplant/internal/paths"
	"github.com/mesh-intelligence/fiberplant/pkg/types"
)

// Version is stamped at build time.
var Version = "dev"

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dataDir   string
	logLevel  string
	jsonMode  bool
}

// app carries the state shared by one command tree.
type app struct {
	flags     rootFlags
	configDir string
	settings  settings
	log       *slog.Logger
	stderr    io.Writer
}

// NewRootCmd creates the top-level "fiberplant" command with global flags
// and all subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{log: logging.Discard(), stderr: os.Stderr}

	root := &cobra.Command{
		Use:     "fiberplant",
		Short:   "Connectivity model for fiber optic plant records",
		Long:    "fiberplant keeps cables, devices, splice closures, and the splices and\nconnections between them consistent in a local workspace.",
		Version: Version,
		// Do not print usage on errors returned by subcommands.
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	root.PersistentFlags().StringVar(&a.flags.configDir, "config-dir", "", "configuration directory (default: $(CWD)/.fiberplant or the platform config dir)")
	root.PersistentFlags().StringVar(&a.flags.dataDir, "data-dir", "", "data directory (default: $(CWD)/.fiberplant-db)")
	root.PersistentFlags().StringVar(&a.flags.logLevel, "log-level", "", "log level: debug, info, warn, error, quiet")
	root.PersistentFlags().BoolVar(&a.flags.jsonMode, "json", false, "output as JSON")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd(a))
	root.AddCommand(newAddCmd(a))
	root.AddCommand(newGetCmd(a))
	root.AddCommand(newSpliceCmd(a))
	root.AddCommand(newMoveSpliceCmd(a))
	root.AddCommand(newConnectCmd(a))
	root.AddCommand(newResolveCmd(a))
	root.AddCommand(newDeleteCmd(a))
	root.AddCommand(newScanCmd(a))

	return root
}

// setup resolves the config directory, loads config.yaml, and builds the
// logger.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "version" {
		return nil
	}
	a.stderr = cmd.ErrOrStderr()

	configDir, err := paths.ResolveConfigDir(a.flags.configDir)
	if err != nil {
		return fmt.Errorf("resolve config dir: %w", err)
	}
	v, err := loadConfig(configDir)
	if err != nil {
		return err
	}
	s, err := decodeSettings(v)
	if err != nil {
		return err
	}
	if a.flags.logLevel != "" {
		s.LogLevel = a.flags.logLevel
	}

	a.configDir = configDir
	a.settings = s
	a.log = logging.New(a.stderr, logging.LevelFromString(s.LogLevel), s.LogFormat)
	return nil
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode maps caller mistakes to exitUserError and everything else to
// exitSysError.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitSuccess
	case errors.Is(err, types.ErrArgument),
		errors.Is(err, types.ErrNotFound),
		errors.Is(err, types.ErrClassNotFound),
		errors.Is(err, errUsage):
		return exitUserError
	default:
		return exitSysError
	}
}

// errUsage marks invalid command-line input.
var errUsage = errors.New("usage")

func usageErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{errUsage}, args...)...)
}
