//go:build windows

package process

import (
	"os/exec"
	"syscall"
)

func shellInvocation() (string, string) {
	return "cmd", "/C"
}

// setupProcessAttributes configures Windows-specific process attributes.
// Children go into a separate process group so termination can target the
// group without touching the supervisor's own console handling.
func setupProcessAttributes(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}
