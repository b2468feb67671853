package configstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/ossuary-pi/ossuary/pkg/errors"
	"github.com/ossuary-pi/ossuary/pkg/logging"
)

// DefaultPath is the well-known location of the shared configuration record.
const DefaultPath = "/etc/ossuary/config.json"

const (
	defaultRestartDelaySeconds     = 5
	defaultLongRestartDelaySeconds = 60
	defaultMaxRapidRestarts        = 10
)

// Config is the shared configuration record. The administrative panel writes
// it, the supervisor polls it. An empty StartupCommand means "no process to
// run".
type Config struct {
	StartupCommand          string            `json:"startup_command"`
	Environment             map[string]string `json:"environment,omitempty"`
	RestartDelaySeconds     int               `json:"restart_delay_seconds,omitempty"`
	LongRestartDelaySeconds int               `json:"long_restart_delay_seconds,omitempty"`
	MaxRapidRestarts        int               `json:"max_rapid_restarts,omitempty"`
}

// RestartDelay returns the short inter-restart cooldown.
func (c Config) RestartDelay() time.Duration {
	return time.Duration(c.RestartDelaySeconds) * time.Second
}

// LongRestartDelay returns the escalated cooldown applied once the rapid
// restart threshold is exceeded.
func (c Config) LongRestartDelay() time.Duration {
	return time.Duration(c.LongRestartDelaySeconds) * time.Second
}

func setConfigDefaults(config *Config) {
	if config.RestartDelaySeconds <= 0 {
		config.RestartDelaySeconds = defaultRestartDelaySeconds
	}
	if config.LongRestartDelaySeconds <= 0 {
		config.LongRestartDelaySeconds = defaultLongRestartDelaySeconds
	}
	if config.MaxRapidRestarts <= 0 {
		config.MaxRapidRestarts = defaultMaxRapidRestarts
	}
}

// Store reads and writes the configuration record at a fixed path.
type Store struct {
	path   string
	logger logging.Logger
}

// NewStore creates a store for the given path; an empty path selects
// DefaultPath.
func NewStore(path string, logger logging.Logger) *Store {
	if path == "" {
		path = DefaultPath
	}
	return &Store{
		path:   path,
		logger: logger,
	}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the configuration record. A missing file yields a default
// record with an empty startup command, not an error. Unparseable content
// yields a config error so callers can keep their previous record: the file
// is externally owned and may be read mid-write.
func (s *Store) Load() (Config, error) {
	var config Config

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Debugf("Configuration file does not exist, using defaults, path: %s", s.path)
			setConfigDefaults(&config)
			return config, nil
		}
		setConfigDefaults(&config)
		return config, errors.NewIOError("failed to read configuration file", err).WithContext("path", s.path)
	}

	if err := json.Unmarshal(data, &config); err != nil {
		setConfigDefaults(&config)
		return config, errors.NewConfigError("failed to parse configuration file", err).WithContext("path", s.path)
	}

	setConfigDefaults(&config)
	return config, nil
}

// Save writes the configuration record atomically: the content goes to a
// temporary file in the same directory, then replaces the target via rename,
// so a polling reader never observes a partial write.
func (s *Store) Save(config Config) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.NewIOError("failed to create configuration directory", err).WithContext("dir", dir)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return errors.NewInternalError("failed to encode configuration", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, ".config-*.json")
	if err != nil {
		return errors.NewIOError("failed to create temporary configuration file", err).WithContext("dir", dir)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.NewIOError("failed to write temporary configuration file", err).WithContext("path", tmpPath)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.NewIOError("failed to close temporary configuration file", err).WithContext("path", tmpPath)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return errors.NewIOError("failed to set configuration file mode", err).WithContext("path", tmpPath)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return errors.NewIOError("failed to replace configuration file", err).WithContext("path", s.path)
	}

	s.logger.Infof("Configuration saved, path: %s", s.path)
	return nil
}
