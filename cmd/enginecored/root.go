package main

import (
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/forgewright/enginecore/pkg/logging"
)

// rootFlags are persistent across every subcommand, matching the
// teacher's cmd/root.rootFlags shape.
type rootFlags struct {
	debugMode   bool
	logFilePath string
}

func newRootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:           "enginecored",
		Short:         "enginecored - the engine process of an AI coding assistant",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return flags.setupLogging()
		},
	}

	cmd.PersistentFlags().BoolVarP(&flags.debugMode, "debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&flags.logFilePath, "log-file", "", "Path to debug log file (default: ./enginecored.debug.log; only used with --debug)")

	cmd.AddCommand(newServeCmd())

	return cmd
}

// setupLogging installs the process-wide slog default: discarded unless
// --debug is set, in which case it writes to a size-rotated file (spec.md
// ambient stack, teacher: cmd/root.rootFlags.setupLogging).
func (f *rootFlags) setupLogging() error {
	if !f.debugMode {
		slog.SetDefault(slog.New(slog.DiscardHandler))
		return nil
	}

	path := f.logFilePath
	if path == "" {
		path = filepath.Join(".", "enginecored.debug.log")
	}

	logFile, err := logging.NewRotatingFile(path)
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: slog.LevelDebug})))
	return nil
}
