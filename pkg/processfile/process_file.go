package processfile

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/ossuary-pi/ossuary/pkg/errors"
	"github.com/ossuary-pi/ossuary/pkg/logging"
)

// Default application name used for the runtime subdirectory.
const DefaultAppName = "ossuary"

// Well-known identity file names. The supervisor file answers "is the
// supervisor alive", the command file answers "is a command currently
// running"; external tooling keys off their presence.
const (
	SupervisorFile = "startupd.pid"
	CommandFile    = "command.pid"
)

// Config holds configuration for identity file placement.
type Config struct {
	// Base directory for PID files. If empty, uses the OS-appropriate default.
	BaseDirectory string

	// Application name for subdirectory creation.
	AppName string
}

// Manager generates, writes, and removes the supervisor's process identity files.
type Manager struct {
	config Config
	logger logging.Logger
}

// NewManager creates a process identity file manager.
func NewManager(config Config, logger logging.Logger) *Manager {
	if config.AppName == "" {
		config.AppName = DefaultAppName
	}
	return &Manager{
		config: config,
		logger: logger,
	}
}

// Path returns the full path for the given identity file name.
func (m *Manager) Path(name string) string {
	return filepath.Join(m.baseDirectory(), name)
}

// Write records a PID in the named identity file.
func (m *Manager) Write(name string, pid int) error {
	path := m.Path(name)
	m.logger.Debugf("Writing PID file, name: %s, pid: %d, path: %s", name, pid, path)

	if err := ValidateDirectory(path); err != nil {
		return errors.NewIOError("PID file directory validation failed", err).WithContext("pid_file", path)
	}

	content := fmt.Sprintf("%d\n", pid)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return errors.NewIOError("failed to write PID file", err).WithContext("pid_file", path).WithContext("pid", pid)
	}

	m.logger.Infof("PID file written, name: %s, pid: %d, path: %s", name, pid, path)
	return nil
}

// Read returns the PID stored in the named identity file.
func (m *Manager) Read(name string) (int, error) {
	path := m.Path(name)

	content, err := os.ReadFile(path)
	if err != nil {
		return 0, errors.NewIOError("failed to read PID file", err).WithContext("pid_file", path)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(content)))
	if err != nil {
		return 0, errors.NewValidationError("invalid PID file content", err).WithContext("pid_file", path).WithContext("content", strings.TrimSpace(string(content)))
	}

	return pid, nil
}

// Remove deletes the named identity file. A file that is already gone is not
// an error: removal happens on every shutdown path.
func (m *Manager) Remove(name string) error {
	path := m.Path(name)

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.NewIOError("failed to remove PID file", err).WithContext("pid_file", path)
	}

	m.logger.Debugf("PID file removed, name: %s, path: %s", name, path)
	return nil
}

// baseDirectory returns the directory for identity files.
func (m *Manager) baseDirectory() string {
	if m.config.BaseDirectory != "" {
		return m.config.BaseDirectory
	}

	switch runtime.GOOS {
	case "windows":
		programData := os.Getenv("PROGRAMDATA")
		if programData == "" {
			programData = "C:\\ProgramData"
		}
		return filepath.Join(programData, m.config.AppName)

	case "darwin":
		return filepath.Join("/var/run", m.config.AppName)

	default:
		// Modern standard is /run, with fallback to /var/run.
		if _, err := os.Stat("/run"); err == nil {
			return filepath.Join("/run", m.config.AppName)
		}
		return filepath.Join("/var/run", m.config.AppName)
	}
}

// ValidateDirectory ensures the identity file's directory exists and is writable.
func ValidateDirectory(pidFilePath string) error {
	dir := filepath.Dir(pidFilePath)

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return errors.NewIOError("failed to create PID file directory", err).WithContext("directory", dir)
			}
		} else {
			return errors.NewIOError("failed to access PID file directory", err).WithContext("directory", dir)
		}
	} else if !info.IsDir() {
		return errors.NewValidationError("PID file path is not a directory", nil).WithContext("path", dir)
	}

	testFile := filepath.Join(dir, ".write_test")
	file, err := os.Create(testFile)
	if err != nil {
		return errors.NewPermissionError("PID file directory is not writable", err).WithContext("directory", dir)
	}
	file.Close()
	os.Remove(testFile)

	return nil
}
