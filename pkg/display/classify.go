package display

import (
	"strings"
)

// Known browser process identities, in match-preference order. Used both to
// classify a command as GUI-class and to kill stale instances before launch.
var browserIdentities = []string{
	"chromium-browser",
	"chromium",
	"firefox-esr",
	"firefox",
	"epiphany",
	"midori",
}

// IsGUICommand reports whether the command text looks like it needs a display
// server. This is a best-effort heuristic over user-supplied text (browser
// process names, explicit display variable references); it can misfire on
// arbitrary commands and is not a contract.
func IsGUICommand(command string) bool {
	if command == "" {
		return false
	}
	if _, ok := BrowserIdentity(command); ok {
		return true
	}
	return strings.Contains(command, "DISPLAY")
}

// BrowserIdentity returns the browser process name referenced by the command
// text, if any.
func BrowserIdentity(command string) (string, bool) {
	for _, field := range strings.Fields(command) {
		// Strip a leading path so /usr/bin/chromium-browser matches.
		base := field
		if idx := strings.LastIndex(base, "/"); idx >= 0 {
			base = base[idx+1:]
		}
		for _, identity := range browserIdentities {
			if base == identity {
				return identity, true
			}
		}
	}
	return "", false
}
