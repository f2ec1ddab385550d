package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/openmined/bridgemon/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("BRIDGEMON_CONFIG", "")

	cfg, err := loadConfig(rootCmd)
	require.NoError(t, err)

	assert.Equal(t, config.DefaultHealthURL, cfg.HealthURL)
	assert.Equal(t, config.DefaultStateFile, cfg.StateFile)
	assert.Equal(t, config.DefaultTimeout, cfg.Timeout)
	assert.Equal(t, config.DefaultActionTimeout, cfg.ActionTimeout)
	assert.True(t, cfg.Lock)
	assert.Empty(t, cfg.RestartCmd)
	assert.Empty(t, cfg.AlertCmd)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfigEnv(t *testing.T) {
	t.Setenv("BRIDGEMON_HEALTH_URL", "http://10.0.0.5:9000/healthz")
	t.Setenv("BRIDGEMON_STATE_FILE", "/tmp/bridgemon-test/state")
	t.Setenv("BRIDGEMON_TIMEOUT", "2")
	t.Setenv("BRIDGEMON_RESTART_CMD", "systemctl restart bridge")
	t.Setenv("BRIDGEMON_ALERT_CMD", "notify-send bridge")
	t.Setenv("BRIDGEMON_LOCK", "false")
	t.Setenv("BRIDGEMON_ALERT_WEBHOOK_URL", "https://hooks.example.com/x")
	t.Setenv("BRIDGEMON_ALERT_EMAIL_ENABLED", "true")
	t.Setenv("BRIDGEMON_ALERT_EMAIL_SENDGRID_API_KEY", "SG.key")
	t.Setenv("BRIDGEMON_ALERT_EMAIL_FROM", "bridgemon@example.com")
	t.Setenv("BRIDGEMON_ALERT_EMAIL_TO", "ops@example.com")
	t.Setenv("BRIDGEMON_LOG_LEVEL", "debug")

	cfg, err := loadConfig(rootCmd)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "http://10.0.0.5:9000/healthz", cfg.HealthURL)
	assert.Equal(t, filepath.Clean("/tmp/bridgemon-test/state"), cfg.StateFile)
	assert.Equal(t, 2, cfg.Timeout)
	assert.Equal(t, "systemctl restart bridge", cfg.RestartCmd)
	assert.Equal(t, "notify-send bridge", cfg.AlertCmd)
	assert.False(t, cfg.Lock)
	assert.Equal(t, "https://hooks.example.com/x", cfg.Alert.WebhookURL)
	assert.True(t, cfg.Alert.Email.Enabled)
	assert.Equal(t, "SG.key", cfg.Alert.Email.SendgridAPIKey)
	assert.Equal(t, "ops@example.com", cfg.Alert.Email.To)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfigYAML(t *testing.T) {
	dummyConfig := `
health_url: http://bridge.internal:8787/health
state_file: /var/lib/bridgemon/state
timeout: 3
restart_cmd: systemctl restart bridge
alert:
  webhook_url: https://hooks.example.com/y
log:
  level: warn
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(dummyConfig), 0o644))
	t.Setenv("BRIDGEMON_CONFIG", path)
	// env beats the file
	t.Setenv("BRIDGEMON_TIMEOUT", "7")

	cfg, err := loadConfig(rootCmd)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.Path)
	assert.Equal(t, "http://bridge.internal:8787/health", cfg.HealthURL)
	assert.Equal(t, "/var/lib/bridgemon/state", cfg.StateFile)
	assert.Equal(t, 7, cfg.Timeout)
	assert.Equal(t, "systemctl restart bridge", cfg.RestartCmd)
	assert.Equal(t, "https://hooks.example.com/y", cfg.Alert.WebhookURL)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.True(t, cfg.Lock, "default kept when the file is silent")
}

func TestLoadConfigEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridgemon.env")
	require.NoError(t, os.WriteFile(path, []byte("BRIDGEMON_ALERT_CMD=logger -t bridgemon alert\n"), 0o644))
	t.Setenv("BRIDGEMON_ENV_FILE", path)
	// godotenv never overrides variables already set; restore after the test
	t.Setenv("BRIDGEMON_ALERT_CMD", "")
	require.NoError(t, os.Unsetenv("BRIDGEMON_ALERT_CMD"))

	cfg, err := loadConfig(rootCmd)
	require.NoError(t, err)
	assert.Equal(t, "logger -t bridgemon alert", cfg.AlertCmd)
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	t.Setenv("BRIDGEMON_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := loadConfig(rootCmd)
	assert.Error(t, err)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 1, exitCode(&exitError{code: 1}))
	assert.Equal(t, 2, exitCode(errors.New("state: rename failed")))
	assert.Equal(t, 1, exitCode(&exitError{code: 1, err: errors.New("x")}))
}
