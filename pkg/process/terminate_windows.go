//go:build windows

package process

import (
	"os/exec"
	"strconv"

	"github.com/ossuary-pi/ossuary/pkg/processstate"
)

// signalGroupTerm asks the whole tree rooted at pid to exit. Windows has no
// SIGTERM equivalent for a group, so taskkill /T without /F is the graceful
// form.
func signalGroupTerm(pid int) error {
	return exec.Command("taskkill", "/T", "/PID", strconv.Itoa(pid)).Run()
}

// signalGroupKill force-terminates the tree rooted at pid.
func signalGroupKill(pid int) error {
	return exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(pid)).Run()
}

// groupAlive reports whether the group leader still exists. Descendants are
// handled by taskkill /T, so leader liveness is the best available probe.
func groupAlive(pid int) bool {
	running, err := processstate.IsProcessRunning(pid)
	if err != nil {
		return false
	}
	return running
}
