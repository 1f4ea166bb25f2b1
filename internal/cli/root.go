package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rileyhilliard/gpustat/internal/errors"
	"github.com/rileyhilliard/gpustat/internal/logger"
	"github.com/rileyhilliard/gpustat/internal/ui"
	"github.com/spf13/cobra"
)

// Global flags
var (
	cfgFile   string
	debugFlag bool
	noColor   bool
)

var rootCmd = &cobra.Command{
	Use:   "gpustat",
	Short: "GPU status for a fleet of hosts over SSH",
	Long: `gpustat runs a status script on every configured host over SSH and
reports the GPU rows it prints, as a table, as JSON, or over HTTP.

Connections are reused between polls and closed once they reach their
configured lifetime.

Examples:
  gpustat poll
  gpustat poll --hosts gpu-01,gpu-02 --json
  gpustat serve
  gpustat watch --interval 5s`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		applyGlobalFlags()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./gpustat.yaml or ~/.config/gpustat/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging (and CORS for serve)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// applyGlobalFlags applies flags that affect every command.
func applyGlobalFlags() {
	if noColor || os.Getenv("NO_COLOR") != "" {
		ui.DisableColors()
	}
	if debugFlag {
		logger.SetDebug(true)
	}
}

// Execute runs the root command. Ctrl+C cancels the command's context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		printError(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// printError writes structured errors in their multi-line layout and
// anything else as a single line.
func printError(w io.Writer, err error) {
	var e *errors.Error
	if stderrors.As(err, &e) {
		fmt.Fprint(w, e.Error())
		return
	}
	if isUnknownCommandError(err) {
		fmt.Fprintf(w, "✗ %s\n\n  Run 'gpustat --help' to see available commands.\n", err)
		return
	}
	fmt.Fprintf(w, "✗ %s\n", err)
}

// exitCode maps errors to process exit codes: 2 for usage and config
// problems, 1 for everything else.
func exitCode(err error) int {
	if isUnknownCommandError(err) || errors.IsCode(err, errors.ErrConfig) {
		return 2
	}
	return 1
}

// isUnknownCommandError checks if the error is from cobra for an unknown command or flag.
func isUnknownCommandError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "unknown command") || strings.Contains(msg, "unknown flag") ||
		strings.Contains(msg, "unknown shorthand flag")
}
