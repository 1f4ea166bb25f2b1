package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rileyhilliard/gpustat/internal/errors"
	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the config file looked for in the working directory.
	ConfigFileName = "gpustat.yaml"
	// GlobalConfigDir is the directory for global config, relative to home.
	GlobalConfigDir = ".config/gpustat"
	// GlobalConfigFile is the global config file name.
	GlobalConfigFile = "config.yaml"
	// EnvPrefix namespaces environment overrides, e.g. GPUSTAT_SERVER_ADDR.
	EnvPrefix = "GPUSTAT"
)

// envAliases binds keys to additional environment variable names. The
// unprefixed names match existing deployments' .env files.
var envAliases = map[string][]string{
	"hosts":                {"GPUSTAT_HOSTS", "HOSTNAMES"},
	"credentials.username": {"GPUSTAT_CREDENTIALS_USERNAME", "GPUSER_NAME"},
	"credentials.password": {"GPUSTAT_CREDENTIALS_PASSWORD", "GPUSER_PASSWORD"},
	"debug":                {"GPUSTAT_DEBUG", "DEBUG"},
}

// Load builds the config from defaults, the YAML file at path (optional),
// a .env file in the working directory, and environment variables, in
// increasing order of precedence.
func Load(path string) (*Config, error) {
	// A missing .env is normal
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		_ = v.BindEnv(append([]string{key}, names...)...)
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if os.IsNotExist(err) {
				return nil, errors.WrapWithCode(err, errors.ErrConfig,
					"Config file not found",
					"Run 'gpustat init' to create a config file, or specify one with --config")
			}
			return nil, errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to read config file",
				"Check the file exists and is valid YAML")
		}
	}

	return parseConfig(v, path)
}

// Find locates the config file using the search order:
// 1. Explicit path (from --config flag)
// 2. gpustat.yaml in current directory
// 3. ~/.config/gpustat/config.yaml (global defaults)
//
// Returns the path to the config file, or empty string if not found.
// Running without a file is fine; everything can come from the environment.
func Find(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			if os.IsNotExist(err) {
				return "", errors.WrapWithCode(err, errors.ErrConfig,
					"Specified config file not found: "+explicit,
					"Check the path is correct")
			}
			return "", errors.WrapWithCode(err, errors.ErrConfig,
				"Cannot access config file: "+explicit,
				"Check file permissions")
		}
		return explicit, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrConfig,
			"Cannot determine current directory",
			"Check directory permissions")
	}

	localConfig := filepath.Join(cwd, ConfigFileName)
	if _, err := os.Stat(localConfig); err == nil {
		return localConfig, nil
	}

	if global := GlobalConfigPath(); global != "" {
		if _, err := os.Stat(global); err == nil {
			return global, nil
		}
	}

	return "", nil
}

// Resolve finds and loads the config in one step. It returns the path that
// was used, which is empty when no file was found.
func Resolve(explicit string) (*Config, string, error) {
	path, err := Find(explicit)
	if err != nil {
		return nil, "", err
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// GlobalConfigPath returns ~/.config/gpustat/config.yaml, or "" when the
// home directory is unknown.
func GlobalConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, GlobalConfigDir, GlobalConfigFile)
}

// parseConfig converts viper config to our Config struct with defaults merged in.
func parseConfig(v *viper.Viper, path string) (*Config, error) {
	cfg := DefaultConfig()

	// viper's default decode hooks turn "30s" into durations and
	// "a,b" into slices, which covers HOSTNAMES=a,b
	if err := v.Unmarshal(cfg); err != nil {
		where := "the environment"
		if path != "" {
			where = path
		}
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid config format",
			"Check the values in "+where)
	}

	cfg.Hosts = cleanList(cfg.Hosts)
	cfg.Server.CORSOrigins = cleanList(cfg.Server.CORSOrigins)
	return cfg, nil
}

// setDefaults registers every key so environment variables can override
// keys that are absent from the file.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("hosts", d.Hosts)
	v.SetDefault("credentials.username", "")
	v.SetDefault("credentials.password", "")
	v.SetDefault("script.path", "")
	v.SetDefault("connection.lifetime", d.Connection.Lifetime.String())
	v.SetDefault("connection.sweep_interval", d.Connection.SweepInterval.String())
	v.SetDefault("connection.connect_timeout", d.Connection.ConnectTimeout.String())
	v.SetDefault("connection.exec_timeout", d.Connection.ExecTimeout.String())
	v.SetDefault("connection.known_hosts", d.Connection.KnownHosts)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.cache_ttl", d.Server.CacheTTL.String())
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("debug", false)
}

// cleanList trims entries and drops empty ones.
func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
