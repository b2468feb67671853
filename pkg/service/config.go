package service

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ossuary-pi/ossuary/pkg/configstore"
	"github.com/ossuary-pi/ossuary/pkg/errors"
	"github.com/ossuary-pi/ossuary/pkg/logsink"
	"github.com/ossuary-pi/ossuary/pkg/netprobe"
)

// ServiceConfig represents the top-level daemon settings file structure.
// These are fixed deployment settings, distinct from the shared JSON record
// the panel edits at runtime.
type ServiceConfig struct {
	Supervisor SupervisorConfigOptions `yaml:"supervisor"`
	Panel      PanelConfigOptions      `yaml:"panel"`
	LogLevel   string                  `yaml:"log_level,omitempty"`
}

// SupervisorConfigOptions represents supervisor-level settings.
type SupervisorConfigOptions struct {
	ConfigPath         string        `yaml:"config_path,omitempty"`
	LogPath            string        `yaml:"log_path,omitempty"`
	PIDDirectory       string        `yaml:"pid_directory,omitempty"`
	PollInterval       time.Duration `yaml:"poll_interval,omitempty"`
	NetworkWaitCeiling time.Duration `yaml:"network_wait_ceiling,omitempty"`
	DisplayWaitCeiling time.Duration `yaml:"display_wait_ceiling,omitempty"`
	GracefulTimeout    time.Duration `yaml:"graceful_timeout,omitempty"`
	ProbeAddress       string        `yaml:"probe_address,omitempty"`
}

// PanelConfigOptions represents panel-level settings.
type PanelConfigOptions struct {
	Address string `yaml:"address,omitempty"`
}

// LoadConfigFromFile loads daemon settings from a YAML file.
func LoadConfigFromFile(filename string) (*ServiceConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.NewIOError("failed to read settings file", err).WithContext("filename", filename)
	}

	var config ServiceConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.NewValidationError("failed to parse YAML settings", err).WithContext("filename", filename)
	}

	setConfigDefaults(&config)

	if err := ValidateConfig(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// DefaultConfig returns the settings used when no file is given.
func DefaultConfig() *ServiceConfig {
	config := &ServiceConfig{}
	setConfigDefaults(config)
	return config
}

func setConfigDefaults(config *ServiceConfig) {
	if config.Supervisor.ConfigPath == "" {
		config.Supervisor.ConfigPath = configstore.DefaultPath
	}
	if config.Supervisor.LogPath == "" {
		config.Supervisor.LogPath = logsink.DefaultPath
	}
	if config.Supervisor.PollInterval <= 0 {
		config.Supervisor.PollInterval = 5 * time.Second
	}
	if config.Supervisor.NetworkWaitCeiling <= 0 {
		config.Supervisor.NetworkWaitCeiling = 60 * time.Second
	}
	if config.Supervisor.DisplayWaitCeiling <= 0 {
		config.Supervisor.DisplayWaitCeiling = 60 * time.Second
	}
	if config.Supervisor.GracefulTimeout <= 0 {
		config.Supervisor.GracefulTimeout = 10 * time.Second
	}
	if config.Supervisor.ProbeAddress == "" {
		config.Supervisor.ProbeAddress = netprobe.DefaultAddress
	}
	if config.Panel.Address == "" {
		config.Panel.Address = ":8080"
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
}

// ValidateConfig validates the daemon settings structure.
func ValidateConfig(config *ServiceConfig) error {
	if config == nil {
		return errors.NewValidationError("settings cannot be nil", nil)
	}
	if config.Supervisor.PollInterval < 100*time.Millisecond {
		return errors.NewValidationError("poll_interval must be at least 100ms", nil).
			WithContext("poll_interval", config.Supervisor.PollInterval.String())
	}
	switch config.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.NewValidationError("log_level must be one of debug, info, warn, error", nil).
			WithContext("log_level", config.LogLevel)
	}
	return nil
}
