package cli

import (
	"context"
	"strings"
	"time"

	"github.com/rileyhilliard/gpustat/internal/config"
	"github.com/rileyhilliard/gpustat/internal/errors"
	"github.com/rileyhilliard/gpustat/internal/logger"
	"github.com/rileyhilliard/gpustat/internal/monitor"
	"github.com/rileyhilliard/gpustat/pkg/sshutil"
)

const sweeperStopTimeout = 10 * time.Second

// app is the monitor stack shared by serve, poll and watch.
type app struct {
	cfg      *config.Config
	registry *monitor.Registry
	poller   *monitor.Poller
	sweeper  *monitor.Sweeper
	logFile  *logger.FileSink
	log      logger.Logger
}

// loadConfig resolves and validates the config. override, when non-nil,
// applies command flags before validation.
func loadConfig(override func(*config.Config)) (*config.Config, error) {
	cfg, path, err := config.Resolve(cfgFile)
	if err != nil {
		return nil, err
	}
	if debugFlag {
		cfg.Debug = true
	}
	if cfg.Debug {
		logger.SetDebug(true)
	}
	if override != nil {
		override(cfg)
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	log := logger.NewEnvLogger("[config]")
	if path != "" {
		log.Debug("Loaded %s", path)
	} else {
		log.Debug("No config file found, using defaults and environment")
	}
	return cfg, nil
}

// newApp wires the registry, fetcher and poller from cfg.
func newApp(cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, log: logger.NewEnvLogger("[gpustat]")}

	if cfg.Log.File != "" {
		sink, err := logger.OpenFile(logger.FileOptions{
			Path:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
			Daily:      true,
		})
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrConfig,
				"Can't open log file "+cfg.Log.File,
				"Check log.file points at a writable location")
		}
		a.logFile = sink
	}

	script, err := monitor.LoadScript(cfg.Script.Path)
	if err != nil {
		a.closeLog()
		return nil, err
	}

	dialer, err := sshutil.NewDialer(sshutil.DialOptions{
		Timeout:        cfg.Connection.ConnectTimeout,
		KnownHostsPath: cfg.Connection.KnownHosts,
	})
	if err != nil {
		a.closeLog()
		return nil, err
	}

	a.registry = monitor.NewRegistry(monitor.NewSSHDialer(dialer),
		monitor.WithLifetime(cfg.Connection.Lifetime))
	fetcher := monitor.NewFetcher(a.registry, script,
		monitor.WithExecTimeout(cfg.Connection.ExecTimeout))
	a.poller = monitor.NewPoller(fetcher)
	return a, nil
}

func (a *app) credential() monitor.Credential {
	return monitor.Credential{
		Username: a.cfg.Credentials.Username,
		Password: a.cfg.Credentials.Password,
	}
}

// startSweeper begins periodic cleanup. The sweeper then owns registry
// teardown: stopping it shuts the registry down.
func (a *app) startSweeper() *monitor.Sweeper {
	a.sweeper = monitor.NewSweeper(a.registry, a.cfg.Connection.SweepInterval)
	a.sweeper.Start()
	return a.sweeper
}

// Close shuts every connection and the log file. Safe to call twice, and
// after the sweeper was already stopped.
func (a *app) Close() {
	switch {
	case a.sweeper != nil:
		stopCtx, cancel := context.WithTimeout(context.Background(), sweeperStopTimeout)
		defer cancel()
		if err := a.sweeper.Stop(stopCtx); err != nil {
			a.log.Warn("Sweeper did not stop cleanly: %v", err)
		}
	case a.registry != nil:
		a.registry.Shutdown()
	}
	a.closeLog()
}

func (a *app) closeLog() {
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}

// splitHosts parses a comma-separated --hosts value.
func splitHosts(s string) []string {
	var hosts []string
	for _, h := range strings.Split(s, ",") {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}
