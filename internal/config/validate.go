package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rileyhilliard/gpustat/internal/errors"
)

// Validate checks the config for errors and returns structured error messages.
func Validate(cfg *Config) error {
	if len(cfg.Hosts) == 0 {
		return errors.New(errors.ErrConfig,
			"No hosts configured",
			"Set HOSTNAMES=gpu-01,gpu-02 or list them under 'hosts' in "+ConfigFileName)
	}

	for _, host := range cfg.Hosts {
		if err := validateHost(host); err != nil {
			return err
		}
	}

	if cfg.Credentials.Username == "" {
		return errors.New(errors.ErrConfig,
			"No username configured",
			"Set GPUSER_NAME or credentials.username")
	}

	if cfg.Credentials.Password == "" {
		return errors.New(errors.ErrConfig,
			"No password configured",
			"Set GPUSER_PASSWORD or credentials.password. Only password auth is supported.")
	}

	durations := []struct {
		key   string
		value time.Duration
	}{
		{"connection.lifetime", cfg.Connection.Lifetime},
		{"connection.sweep_interval", cfg.Connection.SweepInterval},
		{"connection.connect_timeout", cfg.Connection.ConnectTimeout},
		{"connection.exec_timeout", cfg.Connection.ExecTimeout},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("%s must be positive, got %s", d.key, d.value),
				"Use a Go duration like 30s or 1m")
		}
	}

	limits := []struct {
		key   string
		value int
	}{
		{"log.max_size_mb", cfg.Log.MaxSizeMB},
		{"log.max_backups", cfg.Log.MaxBackups},
		{"log.max_age_days", cfg.Log.MaxAgeDays},
	}
	for _, l := range limits {
		if l.value < 0 {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("%s can't be negative, got %d", l.key, l.value),
				"Use 0 for the default size, or to keep every rotated file")
		}
	}

	if cfg.Server.CacheTTL < 0 {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("server.cache_ttl can't be negative, got %s", cfg.Server.CacheTTL),
			"Use 0 to disable caching")
	}

	return nil
}

// ValidateServer checks the settings only the HTTP server needs.
func ValidateServer(cfg *Config) error {
	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return errors.New(errors.ErrConfig,
			"No listen address configured",
			"Set server.addr, for example :5000")
	}
	for _, origin := range cfg.Server.CORSOrigins {
		if strings.Count(origin, "*") > 1 || (strings.Contains(origin, "*") && !strings.HasSuffix(origin, "*")) {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Unsupported CORS origin pattern '%s'", origin),
				"Only a single trailing * is supported, e.g. http://localhost:*")
		}
	}
	return nil
}

func validateHost(host string) error {
	if strings.ContainsAny(host, " \t\n") {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Host '%s' contains whitespace", host),
			"Separate hosts with commas: HOSTNAMES=gpu-01,gpu-02")
	}
	if strings.HasPrefix(host, "-") {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Host '%s' can't start with a dash", host),
			"Check the hosts list for a stray flag")
	}
	return nil
}
