package process

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/ossuary-pi/ossuary/pkg/errors"
)

// ValidateExecutionConfig validates a managed command launch configuration.
func ValidateExecutionConfig(config ExecutionConfig) error {
	if strings.TrimSpace(config.Command) == "" {
		return errors.NewValidationError("command is required", nil)
	}

	for key := range config.Environment {
		if key == "" {
			return errors.NewValidationError("environment variable name cannot be empty", nil)
		}
		if strings.Contains(key, "=") {
			return errors.NewValidationError("invalid environment variable name: "+key, nil)
		}
	}

	if config.WorkingDirectory != "" {
		if !filepath.IsAbs(config.WorkingDirectory) {
			return errors.NewValidationError("working directory must be an absolute path", nil)
		}
		info, err := os.Stat(config.WorkingDirectory)
		if err != nil {
			return errors.NewValidationError("working directory not accessible: "+config.WorkingDirectory, err)
		}
		if !info.IsDir() {
			return errors.NewValidationError("working directory is not a directory: "+config.WorkingDirectory, nil)
		}
	}

	return nil
}
