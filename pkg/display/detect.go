package display

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/ossuary-pi/ossuary/pkg/errors"
	"github.com/ossuary-pi/ossuary/pkg/logging"
)

// ServerFamily identifies the active display server family.
type ServerFamily string

const (
	FamilyWayland ServerFamily = "wayland"
	FamilyX11     ServerFamily = "x11"
	FamilyUnknown ServerFamily = "unknown"
)

// Compositor and X server process names probed when environment variables
// give no answer. labwc is the Pi 5 default compositor.
var (
	waylandCompositors = []string{"labwc", "wayfire", "weston", "sway"}
	xServers           = []string{"Xorg", "X"}
)

const defaultRetryDelay = 2 * time.Second

// Detector determines the display server family and builds the environment
// overrides a GUI-class command needs. The environment getter and process
// probe are injectable for tests.
type Detector struct {
	logger  logging.Logger
	getenv  func(string) string
	probe   func(name string) bool
	homedir func() (string, error)
}

// NewDetector creates a detector bound to the real environment.
func NewDetector(logger logging.Logger) *Detector {
	return &Detector{
		logger:  logger,
		getenv:  os.Getenv,
		probe:   processRunning,
		homedir: os.UserHomeDir,
	}
}

// Detect determines the active display server family. Ordered preference:
// explicit session type, Wayland display indicator, X11 display indicator,
// then live process inspection.
func (d *Detector) Detect() ServerFamily {
	switch strings.ToLower(d.getenv("XDG_SESSION_TYPE")) {
	case "wayland":
		return FamilyWayland
	case "x11":
		return FamilyX11
	}

	if d.getenv("WAYLAND_DISPLAY") != "" {
		return FamilyWayland
	}
	if d.getenv("DISPLAY") != "" {
		return FamilyX11
	}

	for _, name := range waylandCompositors {
		if d.probe(name) {
			d.logger.Debugf("Wayland compositor detected by process name: %s", name)
			return FamilyWayland
		}
	}
	for _, name := range xServers {
		if d.probe(name) {
			d.logger.Debugf("X server detected by process name: %s", name)
			return FamilyX11
		}
	}

	return FamilyUnknown
}

// Environment builds the child-scoped display environment overrides for the
// given family. The overrides apply to the child invocation only.
func (d *Detector) Environment(family ServerFamily) map[string]string {
	env := make(map[string]string)

	display := d.getenv("DISPLAY")
	if display == "" {
		display = ":0"
	}
	env["DISPLAY"] = display

	switch family {
	case FamilyWayland:
		env["XDG_SESSION_TYPE"] = "wayland"
		waylandDisplay := d.getenv("WAYLAND_DISPLAY")
		if waylandDisplay == "" {
			waylandDisplay = "wayland-0"
		}
		env["WAYLAND_DISPLAY"] = waylandDisplay
		env["XDG_RUNTIME_DIR"] = d.runtimeDir()

	case FamilyX11:
		env["XDG_SESSION_TYPE"] = "x11"
		if xauthority := d.xauthority(); xauthority != "" {
			env["XAUTHORITY"] = xauthority
		}
	}

	return env
}

// WaitReady waits until a display server family is detectable, bounded by the
// ceiling. Expiry returns a timeout error; callers log a warning and launch
// anyway.
func (d *Detector) WaitReady(ctx context.Context, ceiling time.Duration) (ServerFamily, error) {
	if ceiling <= 0 {
		ceiling = 60 * time.Second
	}

	deadline := time.Now().Add(ceiling)
	for {
		if family := d.Detect(); family != FamilyUnknown {
			return family, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}

		delay := defaultRetryDelay
		if delay > remaining {
			delay = remaining
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return FamilyUnknown, errors.NewCancelledError("display wait cancelled", ctx.Err())
		}
	}

	return FamilyUnknown, errors.NewTimeoutError("no display server detected within ceiling", nil).WithContext("ceiling", ceiling.String())
}

func (d *Detector) runtimeDir() string {
	if dir := d.getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir
	}
	return fmt.Sprintf("/run/user/%d", os.Getuid())
}

// xauthority locates the X authority file: explicit environment first, then
// the home directory default.
func (d *Detector) xauthority() string {
	if xauth := d.getenv("XAUTHORITY"); xauth != "" {
		return xauth
	}

	home, err := d.homedir()
	if err != nil {
		return ""
	}
	candidate := filepath.Join(home, ".Xauthority")
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return ""
}

// processRunning reports whether a process with the given name exists.
func processRunning(name string) bool {
	return exec.Command("pgrep", "-x", name).Run() == nil
}
