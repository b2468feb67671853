package process

import (
	"context"
	"time"

	"github.com/ossuary-pi/ossuary/pkg/errors"
	"github.com/ossuary-pi/ossuary/pkg/logging"
)

// forcedKillGrace is how long survivors get to die after the forced kill
// before teardown is reported incomplete.
const forcedKillGrace = 2 * time.Second

// TerminateGroup tears down the managed command's entire process group:
// graceful group signal first, a bounded grace wait on the leader's exit,
// then a forced kill of any survivors. It returns survived=true when the
// graceful signal was not enough and force was needed. The done channel is
// the leader's wait result, owned by the caller.
func TerminateGroup(ctx context.Context, pid int, done <-chan error, gracefulTimeout time.Duration, logger logging.Logger) (bool, error) {
	if pid <= 0 {
		return false, errors.NewValidationError("invalid PID", nil).WithContext("pid", pid)
	}
	if gracefulTimeout <= 0 {
		gracefulTimeout = 10 * time.Second
	}

	logger.Infof("Terminating process group, pid: %d, graceful timeout: %v", pid, gracefulTimeout)

	if err := signalGroupTerm(pid); err != nil {
		logger.Warnf("Failed to send graceful signal to group, pid: %d, error: %v", pid, err)
	}

	// Wait for the leader to be reaped, bounded by the grace window.
	if done != nil {
		select {
		case <-done:
			logger.Infof("Group leader exited after graceful signal, pid: %d", pid)
		case <-time.After(gracefulTimeout):
			logger.Warnf("Group leader did not exit within %v, escalating, pid: %d", gracefulTimeout, pid)
		case <-ctx.Done():
			logger.Warnf("Context cancelled during graceful wait, escalating, pid: %d", pid)
		}
	} else {
		time.Sleep(gracefulTimeout)
	}

	// Even when the leader exited, forked descendants can survive in the
	// group. Probe and force-kill whatever is left.
	if !groupAlive(pid) {
		return false, nil
	}

	logger.Warnf("Process group has survivors, force killing, pid: %d", pid)
	if err := signalGroupKill(pid); err != nil {
		logger.Warnf("Forced kill signal failed, pid: %d, error: %v", pid, err)
	}

	deadline := time.Now().Add(forcedKillGrace)
	for time.Now().Before(deadline) {
		if !groupAlive(pid) {
			logger.Infof("Process group force terminated, pid: %d", pid)
			return true, nil
		}
		time.Sleep(50 * time.Millisecond)
	}

	return true, errors.NewTeardownError("process group survived forced kill", nil).WithContext("pid", pid)
}
