//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

func shellInvocation() (string, string) {
	return "/bin/sh", "-c"
}

// setupProcessAttributes configures Unix-specific process attributes.
// The child gets its own process group so a signal to -pid reaches the
// entire tree (shell plus everything it forks).
func setupProcessAttributes(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}
