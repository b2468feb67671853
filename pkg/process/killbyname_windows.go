//go:build windows

package process

import (
	"context"
	"os/exec"
	"time"

	"github.com/ossuary-pi/ossuary/pkg/logging"
)

// KillByName force-terminates every process image matching the given name.
func KillByName(ctx context.Context, pattern string, logger logging.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := exec.CommandContext(ctx, "taskkill", "/F", "/IM", pattern+"*").Run()
	if err != nil {
		logger.Warnf("taskkill failed, pattern: %s, error: %v", pattern, err)
		return err
	}

	logger.Infof("Killed processes by name, pattern: %s", pattern)
	return nil
}
