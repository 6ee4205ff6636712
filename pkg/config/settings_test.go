package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kinetic.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefaultSettingsAreValid(t *testing.T) {
	s := DefaultSettings()
	require.NoError(t, s.Validate())
	assert.Equal(t, "epicor_state.json", s.StateFile)
	assert.Equal(t, 3*time.Second, s.Login.PreLoginSettle)
	assert.Equal(t, 5*time.Second, s.Login.PostLoginSettle)
}

func TestLoadSettingsFileOverlaysDefaults(t *testing.T) {
	path := writeSettings(t, `
state_file: .auth/state.json
login:
  post_login_settle: 8s
timeouts:
  network_idle: 45s
logging:
  level: debug
`)

	s, err := LoadSettingsFile(path)
	require.NoError(t, err)

	assert.Equal(t, ".auth/state.json", s.StateFile)
	assert.Equal(t, 8*time.Second, s.Login.PostLoginSettle)
	assert.Equal(t, 3*time.Second, s.Login.PreLoginSettle)
	assert.Equal(t, 45*time.Second, s.Timeouts.NetworkIdle)
	assert.Equal(t, "Epicor Basic", s.Login.AccountType)
	assert.Equal(t, "debug", s.Logging.Level)
}

func TestLoadSettingsFileRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{"negative settle", "login:\n  pre_login_settle: -1s\n", "cannot be negative"},
		{"zero poll", "timeouts:\n  poll_interval: 0s\n", "poll_interval must be positive"},
		{"bad level", "logging:\n  level: chatty\n", "invalid logging level"},
		{"empty state file", "state_file: \"\"\n", "state_file is required"},
		{"malformed yaml", "login: [\n", "failed to parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadSettingsFile(writeSettings(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadSettingsWithoutFileUsesDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	s, err := LoadSettings(MapLookup(nil))
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)
}

func TestLoadSettingsExplicitMissingFileFails(t *testing.T) {
	lookup := MapLookup(map[string]string{EnvSettings: filepath.Join(t.TempDir(), "absent.yaml")})

	_, err := LoadSettings(lookup)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadSettingsExplicitFile(t *testing.T) {
	path := writeSettings(t, "state_file: custom.json\n")

	s, err := LoadSettings(MapLookup(map[string]string{EnvSettings: path}))
	require.NoError(t, err)
	assert.Equal(t, "custom.json", s.StateFile)
}
