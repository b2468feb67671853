//go:build !windows

package process

import (
	"context"
	"os/exec"
	"time"

	"github.com/ossuary-pi/ossuary/pkg/logging"
)

// KillByName force-terminates every process whose command line matches the
// given pattern. Used as a fallback for known GUI application identities
// whose descendants may escape the process group.
func KillByName(ctx context.Context, pattern string, logger logging.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := exec.CommandContext(ctx, "pkill", "-9", "-f", pattern).Run()
	if err != nil {
		// Exit status 1 means no process matched, which is the common case.
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return nil
		}
		logger.Warnf("pkill failed, pattern: %s, error: %v", pattern, err)
		return err
	}

	logger.Infof("Killed processes by name, pattern: %s", pattern)
	return nil
}
