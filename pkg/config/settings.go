package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvSettings names an optional YAML settings file. When unset,
// DefaultSettingsFile is used if it exists.
const (
	EnvSettings         = "KINETIC_SETTINGS"
	DefaultSettingsFile = "kinetic.yaml"
)

// Settings holds harness tunables that are not credentials: file locations,
// login timing and wait bounds.
type Settings struct {
	// StateFile is where the authenticated storage state is persisted.
	StateFile string `yaml:"state_file" json:"state_file"`

	Login    LoginSettings   `yaml:"login" json:"login"`
	Timeouts TimeoutSettings `yaml:"timeouts" json:"timeouts"`
	Logging  LoggingSettings `yaml:"logging" json:"logging"`
}

// LoginSettings tunes the login form flow.
type LoginSettings struct {
	AccountType string `yaml:"account_type" json:"account_type"`

	// PreLoginSettle and PostLoginSettle are fixed waits after network idle.
	// The login widgets and the post-login shell keep mounting after the
	// network goes quiet, and no DOM signal for "done" has been identified.
	PreLoginSettle  time.Duration `yaml:"pre_login_settle" json:"pre_login_settle"`
	PostLoginSettle time.Duration `yaml:"post_login_settle" json:"post_login_settle"`
}

// TimeoutSettings bounds every blocking browser operation.
type TimeoutSettings struct {
	Navigation   time.Duration `yaml:"navigation" json:"navigation"`
	NetworkIdle  time.Duration `yaml:"network_idle" json:"network_idle"`
	Action       time.Duration `yaml:"action" json:"action"`
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`
}

// LoggingSettings controls the run log.
type LoggingSettings struct {
	Dir   string `yaml:"dir" json:"dir"`
	Level string `yaml:"level" json:"level"`
}

// DefaultSettings returns the settings used when no file overrides them.
func DefaultSettings() Settings {
	return Settings{
		StateFile: "epicor_state.json",
		Login: LoginSettings{
			AccountType:     "Epicor Basic",
			PreLoginSettle:  3 * time.Second,
			PostLoginSettle: 5 * time.Second,
		},
		Timeouts: TimeoutSettings{
			Navigation:   60 * time.Second,
			NetworkIdle:  30 * time.Second,
			Action:       30 * time.Second,
			PollInterval: 250 * time.Millisecond,
		},
		Logging: LoggingSettings{
			Dir:   ".kinetic/logs",
			Level: "info",
		},
	}
}

// LoadSettings resolves the settings file from the environment and overlays
// it on DefaultSettings. A missing default file is not an error; a missing
// file named explicitly via KINETIC_SETTINGS is.
func LoadSettings(lookup LookupFunc) (Settings, error) {
	path, explicit := lookup(EnvSettings)
	if !explicit || path == "" {
		path = DefaultSettingsFile
		explicit = false
	}

	settings, err := LoadSettingsFile(path)
	if err != nil && !explicit && errors.Is(err, os.ErrNotExist) {
		return DefaultSettings(), nil
	}
	return settings, err
}

// LoadSettingsFile reads YAML settings from path over the defaults.
func LoadSettingsFile(path string) (Settings, error) {
	settings := DefaultSettings()

	data, err := os.ReadFile(path)
	if err != nil {
		return settings, fmt.Errorf("failed to read settings file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &settings); err != nil {
		return settings, fmt.Errorf("failed to parse settings file %s: %w", path, err)
	}

	if err := settings.Validate(); err != nil {
		return settings, fmt.Errorf("invalid settings file %s: %w", path, err)
	}

	return settings, nil
}

// Validate checks the settings for values the harness cannot work with.
func (s *Settings) Validate() error {
	if s.StateFile == "" {
		return fmt.Errorf("state_file is required")
	}

	if s.Login.AccountType == "" {
		return fmt.Errorf("login.account_type is required")
	}

	durations := map[string]time.Duration{
		"login.pre_login_settle":  s.Login.PreLoginSettle,
		"login.post_login_settle": s.Login.PostLoginSettle,
		"timeouts.navigation":     s.Timeouts.Navigation,
		"timeouts.network_idle":   s.Timeouts.NetworkIdle,
		"timeouts.action":         s.Timeouts.Action,
		"timeouts.poll_interval":  s.Timeouts.PollInterval,
	}
	for name, d := range durations {
		if d < 0 {
			return fmt.Errorf("%s cannot be negative", name)
		}
	}

	if s.Timeouts.PollInterval == 0 {
		return fmt.Errorf("timeouts.poll_interval must be positive")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[s.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be 'debug', 'info', 'warn', or 'error')", s.Logging.Level)
	}

	return nil
}
