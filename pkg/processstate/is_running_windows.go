//go:build windows

package processstate

import (
	"syscall"

	"github.com/ossuary-pi/ossuary/pkg/errors"
)

const (
	stillActive                    = 259
	processQueryLimitedInformation = 0x1000
)

// IsProcessRunning reports whether a process with the given PID exists.
func IsProcessRunning(pid int) (bool, error) {
	if pid <= 0 {
		return false, errors.NewValidationError("invalid PID", nil).WithContext("pid", pid)
	}

	handle, err := syscall.OpenProcess(processQueryLimitedInformation, false, uint32(pid))
	if err != nil {
		// Process doesn't exist or access denied.
		return false, nil
	}
	defer syscall.CloseHandle(handle)

	var exitCode uint32
	if err := syscall.GetExitCodeProcess(handle, &exitCode); err != nil {
		return false, err
	}

	return exitCode == stillActive, nil
}
