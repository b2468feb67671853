//go:build !windows

package processstate

import (
	"os"
	"syscall"

	"github.com/ossuary-pi/ossuary/pkg/errors"
)

// IsProcessRunning reports whether a process with the given PID exists. On
// Unix, os.FindProcess always succeeds, so existence is tested with signal 0.
func IsProcessRunning(pid int) (bool, error) {
	if pid <= 0 {
		return false, errors.NewValidationError("invalid PID", nil).WithContext("pid", pid)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false, err
	}

	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true, nil
	}
	if err.Error() == "os: process already finished" {
		return false, nil
	}
	errno, ok := err.(syscall.Errno)
	if !ok {
		return false, err
	}
	switch errno {
	case syscall.ESRCH:
		return false, nil
	case syscall.EPERM:
		// Exists, owned by someone else.
		return true, nil
	}
	return false, err
}
