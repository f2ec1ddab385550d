// Package config holds the monitor's configuration surface and its defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openmined/bridgemon/internal/action"
)

const (
	DefaultHealthURL     = "http://127.0.0.1:8787/health"
	DefaultTimeout       = 5  // seconds
	DefaultActionTimeout = 30 // seconds
	DefaultLogLevel      = "info"
	EnvPrefix            = "BRIDGEMON"
)

var (
	ErrInvalidHealthURL = errors.New("config: invalid health url")
	ErrInvalidTimeout   = errors.New("config: timeout must be a positive number of seconds")
	ErrNoStateFile      = errors.New("config: state file path missing")
	ErrInvalidLogLevel  = errors.New("config: invalid log level")
	ErrInvalidWebhook   = errors.New("config: invalid alert webhook url")
)

// DefaultStateFile lives under the per-user runtime dir when there is one.
var DefaultStateFile = defaultStateFile()

func defaultStateFile() string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "bridgemon", "state")
}

type Config struct {
	HealthURL     string      `mapstructure:"health_url"`
	StateFile     string      `mapstructure:"state_file"`
	Timeout       int         `mapstructure:"timeout"`
	RestartCmd    string      `mapstructure:"restart_cmd"`
	AlertCmd      string      `mapstructure:"alert_cmd"`
	ActionTimeout int         `mapstructure:"action_timeout"`
	Lock          bool        `mapstructure:"lock"`
	Alert         AlertConfig `mapstructure:"alert"`
	Log           LogConfig   `mapstructure:"log"`
	Path          string      `mapstructure:"-"` // config file used, if any
}

type AlertConfig struct {
	WebhookURL string             `mapstructure:"webhook_url"`
	Email      action.EmailConfig `mapstructure:"email"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// Defaults maps every key to its default; viper only sees env vars for keys it knows.
func Defaults() map[string]any {
	return map[string]any{
		"health_url":                   DefaultHealthURL,
		"state_file":                   DefaultStateFile,
		"timeout":                      DefaultTimeout,
		"restart_cmd":                  "",
		"alert_cmd":                    "",
		"action_timeout":               DefaultActionTimeout,
		"lock":                         true,
		"alert.webhook_url":            "",
		"alert.email.enabled":          false,
		"alert.email.sendgrid_api_key": "",
		"alert.email.from":             "",
		"alert.email.to":               "",
		"log.level":                    DefaultLogLevel,
		"log.file":                     "",
	}
}

func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.ActionTimeout) * time.Second
}

// SlogLevel parses Log.Level; Validate guarantees it succeeds.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Validate checks the config and normalizes paths to absolute form.
func (c *Config) Validate() error {
	if err := validateHTTPURL(c.HealthURL); err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidHealthURL, c.HealthURL, err)
	}

	if c.Timeout <= 0 || c.ActionTimeout <= 0 {
		return ErrInvalidTimeout
	}

	if strings.TrimSpace(c.StateFile) == "" {
		return ErrNoStateFile
	}
	path, err := resolvePath(c.StateFile)
	if err != nil {
		return fmt.Errorf("config: state file: %w", err)
	}
	c.StateFile = path

	if c.Log.File != "" {
		if c.Log.File, err = resolvePath(c.Log.File); err != nil {
			return fmt.Errorf("config: log file: %w", err)
		}
	}

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return fmt.Errorf("%w %q", ErrInvalidLogLevel, c.Log.Level)
	}

	if c.Alert.WebhookURL != "" {
		if err := validateHTTPURL(c.Alert.WebhookURL); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidWebhook, err)
		}
	}

	return c.Alert.Email.Validate()
}

func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("health_url", c.HealthURL),
		slog.String("state_file", c.StateFile),
		slog.Int("timeout", c.Timeout),
		slog.String("restart_cmd", c.RestartCmd),
		slog.String("alert_cmd", c.AlertCmd),
		slog.Bool("lock", c.Lock),
		slog.String("alert_webhook", maskURL(c.Alert.WebhookURL)),
		slog.Bool("alert_email", c.Alert.Email.Enabled),
		slog.String("sendgrid_api_key", maskSecret(c.Alert.Email.SendgridAPIKey)),
		slog.String("config", c.Path),
	)
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("host missing")
	}
	return nil
}

// resolvePath expands a leading ~ and returns a clean absolute path.
func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("home dir: %w", err)
		}
		path = strings.Replace(path, "~", home, 1)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "*****"
	}
	return s[:4] + "*****"
}

// maskURL hides webhook paths, which usually embed a token.
func maskURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "*****"
	}
	return u.Scheme + "://" + u.Host + "/*****"
}
