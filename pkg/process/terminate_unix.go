//go:build !windows

package process

import (
	"syscall"
)

// signalGroupTerm sends SIGTERM to the child's process group (negative PID)
// so the entire process tree receives it.
func signalGroupTerm(pid int) error {
	return syscall.Kill(-pid, syscall.SIGTERM)
}

// signalGroupKill sends SIGKILL to any survivors in the process group.
func signalGroupKill(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}

// groupAlive reports whether any process in the group still exists.
func groupAlive(pid int) bool {
	err := syscall.Kill(-pid, 0)
	if err == nil {
		return true
	}
	return err == syscall.EPERM
}
