// Package cli implements the varstore command-line interface.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/varstore/internal/logging"
	"github.com/mesh-intelligence/varstore/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	logLevel  string
	verbosity int
	quiet     bool
	jsonMode  bool
}

// app is the state shared by the subcommands of one root command.
type app struct {
	flags  rootFlags
	cfg    types.Config
	logger *slog.Logger
}

// NewRootCmd creates the top-level "varstore" command with global flags
// and all subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{cfg: types.DefaultConfig(), logger: logging.Discard()}

	root := &cobra.Command{
		Use:   "varstore",
		Short: "Maintenance tools for variant annotation result stores",
		Long: "varstore merges, filters, migrates and lifts over the SQLite result stores\n" +
			"written by a variant annotation pipeline.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.flags.configDir, "config-dir", "", "configuration directory (default: platform config dir)")
	root.PersistentFlags().StringVar(&a.flags.logLevel, "log-level", "", "log level: debug, info, warn or error")
	root.PersistentFlags().CountVarP(&a.flags.verbosity, "verbose", "v", "more logging (repeat for debug)")
	root.PersistentFlags().BoolVarP(&a.flags.quiet, "quiet", "q", false, "no logging")
	root.PersistentFlags().BoolVar(&a.flags.jsonMode, "json", false, "print reports as JSON")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd(a))
	root.AddCommand(newMergeCmd(a))
	root.AddCommand(newFilterCmd(a))
	root.AddCommand(newMigrateCmd(a))
	root.AddCommand(newLiftoverCmd(a))
	root.AddCommand(newInfoCmd(a))

	return root
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := NewRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "varstore:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps store faults to exitSysError and everything else to
// exitUserError.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitSuccess
	case errors.Is(err, types.ErrStoreIO):
		return exitSysError
	default:
		return exitUserError
	}
}

// setup loads config.yaml, applies flag overrides and builds the logger.
func (a *app) setup(cmd *cobra.Command) error {
	if cmd.Name() == "version" {
		return nil
	}

	cfg, err := loadConfig(a.flags.configDir)
	if err != nil {
		return err
	}
	if a.flags.logLevel != "" {
		cfg.LogLevel = a.flags.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	level := logging.LevelFromFlags(logging.ParseLevel(cfg.LogLevel), a.flags.verbosity, a.flags.quiet)
	a.logger = logging.New(cmd.ErrOrStderr(), level)
	return nil
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
