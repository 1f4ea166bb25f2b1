package cli

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rileyhilliard/gpustat/internal/config"
	"github.com/rileyhilliard/gpustat/internal/errors"
	"github.com/rileyhilliard/gpustat/internal/logger"
	"github.com/rileyhilliard/gpustat/internal/monitor"
	"github.com/rileyhilliard/gpustat/internal/ui"
	"github.com/spf13/cobra"
)

// minWatchInterval keeps the dashboard from hammering hosts.
const minWatchInterval = 500 * time.Millisecond

var (
	watchHostsFlag    string
	watchIntervalFlag string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live GPU status dashboard",
	Long: `Start an interactive dashboard that re-polls every host on an interval.
Connections are reused across refreshes until they reach their lifetime.

Keyboard shortcuts:
  q / Ctrl+C  Quit
  r           Refresh now

Examples:
  gpustat watch
  gpustat watch --interval 10s
  gpustat watch --hosts gpu-01,gpu-02`,
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, err := parseInterval(watchIntervalFlag)
		if err != nil {
			return err
		}
		return watchCommand(watchHostsFlag, interval)
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchHostsFlag, "hosts", "", "watch these hosts instead of the configured ones (comma-separated)")
	watchCmd.Flags().StringVar(&watchIntervalFlag, "interval", "5s", "refresh interval (e.g., 2s, 5s, 1m)")
	rootCmd.AddCommand(watchCmd)
}

// parseInterval validates the --interval flag.
func parseInterval(flag string) (time.Duration, error) {
	parsed, err := time.ParseDuration(flag)
	if err != nil {
		return 0, errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Invalid interval: %s", flag),
			"Use a valid duration like 2s, 5s, or 1m")
	}
	if parsed < minWatchInterval {
		return 0, errors.New(errors.ErrConfig,
			"Interval too short",
			"Minimum interval is 500ms to avoid overwhelming hosts")
	}
	return parsed, nil
}

func watchCommand(hostsFlag string, interval time.Duration) error {
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

	a.startSweeper()

	hosts, cred := cfg.Hosts, a.credential()
	model := ui.NewWatchModel(func(ctx context.Context) monitor.PollResult {
		return a.poller.Poll(ctx, hosts, cred)
	}, interval)

	// Log lines on stderr would tear the alt screen
	defer logger.QuietStderr(a.logFile)()

	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err = p.Run()
	return err
}
