package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rileyhilliard/gpustat/internal/config"
	"github.com/rileyhilliard/gpustat/internal/errors"
	"github.com/rileyhilliard/gpustat/internal/monitor"
	"github.com/rileyhilliard/gpustat/internal/ui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	pollHostsFlag string
	pollJSONFlag  bool
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Poll every host once and print the result",
	Long: `Run the status script on every configured host in parallel and print
the result. Output is a table on a terminal and JSON otherwise.

Examples:
  gpustat poll
  gpustat poll --hosts gpu-01,gpu-02
  gpustat poll --json | jq '.[] | select(.success | not)'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return pollCommand(cmd.Context(), cmd.OutOrStdout(), pollHostsFlag, pollJSONFlag)
	},
}

func init() {
	pollCmd.Flags().StringVar(&pollHostsFlag, "hosts", "", "poll these hosts instead of the configured ones (comma-separated)")
	pollCmd.Flags().BoolVar(&pollJSONFlag, "json", false, "print JSON even on a terminal")
	rootCmd.AddCommand(pollCmd)
}

func pollCommand(ctx context.Context, out io.Writer, hostsFlag string, jsonOut bool) error {
	cfg, err := loadConfig(func(cfg *config.Config) {
		if hostsFlag != "" {
			cfg.Hosts = splitHosts(hostsFlag)
		}
	})
	if err != nil {
		return err
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if ctx == nil {
		ctx = context.Background()
	}
	result := a.poller.Poll(ctx, cfg.Hosts, a.credential())

	if err := writeResult(out, result, jsonOut || !isTerminal(out)); err != nil {
		return err
	}

	if len(result) > 0 && result.Succeeded() == 0 {
		return errors.New(errors.ErrConnect,
			fmt.Sprintf("None of the %d host(s) answered", len(result)),
			"Run with --debug to see each connection attempt")
	}
	return nil
}

// writeResult prints result as indented JSON or as a table.
func writeResult(out io.Writer, result monitor.PollResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	_, err := fmt.Fprint(out, ui.RenderPollTable(result))
	return err
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
