package monitor

import (
	_ "embed"
	"os"
	"strings"

	"github.com/rileyhilliard/gpustat/internal/errors"
)

//go:embed scripts/gpu_status.sh
var defaultScript string

// DefaultScript returns the bundled nvidia-smi status script.
func DefaultScript() string {
	return defaultScript
}

// LoadScript reads the status script at path, or returns the bundled
// script when path is empty. The script is sent to the host verbatim.
func LoadScript(path string) (string, error) {
	if path == "" {
		return defaultScript, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.WrapWithCode(err, errors.ErrConfig,
				"Script not found at "+path,
				"Fix script.path in your config, or remove it to use the bundled nvidia-smi script.")
		}
		return "", errors.WrapWithCode(err, errors.ErrConfig,
			"Couldn't read script at "+path, "Check the file permissions.")
	}

	if strings.TrimSpace(string(data)) == "" {
		return "", errors.New(errors.ErrScript,
			"Script at "+path+" is empty",
			"The script must print a CSV header line followed by one line per row.")
	}
	return string(data), nil
}
