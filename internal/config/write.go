package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const fileHeader = "# gpustat configuration\n# Environment variables (GPUSTAT_*, HOSTNAMES, GPUSER_NAME, GPUSER_PASSWORD) override these values.\n\n"

// Write saves cfg as YAML at path. The file holds a password, so it is
// created with owner-only permissions.
func Write(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, append([]byte(fileHeader), data...), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
