package display

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsGUICommand(t *testing.T) {
	tests := []struct {
		name    string
		command string
		gui     bool
	}{
		{
			name:    "chromium_kiosk",
			command: "chromium-browser --kiosk http://localhost:8080",
			gui:     true,
		},
		{
			name:    "chromium_with_path",
			command: "/usr/bin/chromium --kiosk about:blank",
			gui:     true,
		},
		{
			name:    "firefox",
			command: "firefox -url https://example.com",
			gui:     true,
		},
		{
			name:    "explicit_display_reference",
			command: "DISPLAY=:0 xterm -e htop",
			gui:     true,
		},
		{
			name:    "wayland_display_reference",
			command: "WAYLAND_DISPLAY=wayland-0 ./dashboard",
			gui:     true,
		},
		{
			name:    "headless_python",
			command: "python3 -m http.server 8000",
			gui:     false,
		},
		{
			name:    "empty",
			command: "",
			gui:     false,
		},
		{
			name:    "substring_is_not_an_identity",
			command: "echo chromium-browser-licence.txt",
			gui:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.gui, IsGUICommand(tt.command))
		})
	}
}

func TestBrowserIdentity(t *testing.T) {
	identity, ok := BrowserIdentity("chromium-browser --kiosk http://localhost")
	assert.True(t, ok)
	assert.Equal(t, "chromium-browser", identity)

	identity, ok = BrowserIdentity("/usr/lib/firefox-esr/firefox-esr about:blank")
	assert.True(t, ok)
	assert.Equal(t, "firefox-esr", identity)

	_, ok = BrowserIdentity("sleep 10")
	assert.False(t, ok)
}
