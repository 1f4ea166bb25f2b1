package config

import "time"

// Config represents the complete gpustat configuration.
type Config struct {
	// Hosts to poll, in display order. Entries can be hostnames,
	// host:port, user@host, or ~/.ssh/config aliases.
	Hosts       []string          `yaml:"hosts" mapstructure:"hosts"`
	Credentials CredentialsConfig `yaml:"credentials" mapstructure:"credentials"`
	Script      ScriptConfig      `yaml:"script" mapstructure:"script"`
	Connection  ConnectionConfig  `yaml:"connection" mapstructure:"connection"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
	Debug       bool              `yaml:"debug" mapstructure:"debug"`
}

// CredentialsConfig is the login shared by every host.
type CredentialsConfig struct {
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
}

// ScriptConfig selects the status script.
type ScriptConfig struct {
	// Path to a script to run instead of the bundled nvidia-smi one.
	Path string `yaml:"path,omitempty" mapstructure:"path"`
}

// ConnectionConfig controls SSH connection reuse.
type ConnectionConfig struct {
	// Lifetime is the maximum age of a connection, measured from when it was opened.
	Lifetime time.Duration `yaml:"lifetime" mapstructure:"lifetime"`

	// SweepInterval is how often expired connections are closed in the background.
	SweepInterval time.Duration `yaml:"sweep_interval" mapstructure:"sweep_interval"`

	// ConnectTimeout bounds TCP connect plus SSH handshake.
	ConnectTimeout time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout"`

	// ExecTimeout bounds connect plus script execution for one host.
	ExecTimeout time.Duration `yaml:"exec_timeout" mapstructure:"exec_timeout"`

	// KnownHosts is where host keys are recorded on first contact.
	KnownHosts string `yaml:"known_hosts" mapstructure:"known_hosts"`
}

// ServerConfig controls the HTTP endpoint.
type ServerConfig struct {
	Addr        string        `yaml:"addr" mapstructure:"addr"`
	CacheTTL    time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	CORSOrigins []string      `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig controls where logs go.
type LogConfig struct {
	// File receives a copy of all log output. Empty means stderr only.
	File string `yaml:"file,omitempty" mapstructure:"file"`
	// The file rotates at midnight and past MaxSizeMB. Rotated files are
	// kept for MaxAgeDays, at most MaxBackups of them.
	MaxSizeMB  int `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int `yaml:"max_age_days" mapstructure:"max_age_days"`
}

// DefaultConfig returns a Config with all defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Hosts: []string{},
		Connection: ConnectionConfig{
			Lifetime:       30 * time.Second,
			SweepInterval:  30 * time.Second,
			ConnectTimeout: 10 * time.Second,
			ExecTimeout:    30 * time.Second,
			KnownHosts:     "~/" + GlobalConfigDir + "/known_hosts",
		},
		Log: LogConfig{
			MaxSizeMB:  100,
			MaxBackups: 7,
			MaxAgeDays: 7,
		},
		Server: ServerConfig{
			Addr:     ":5000",
			CacheTTL: 3 * time.Second,
			CORSOrigins: []string{
				"http://localhost:*",
				"https://127.0.0.1:*",
			},
		},
	}
}
