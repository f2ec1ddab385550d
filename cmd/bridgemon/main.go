package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/openmined/bridgemon/internal/config"
	"github.com/openmined/bridgemon/internal/logging"
	"github.com/openmined/bridgemon/internal/monitor"
	"github.com/openmined/bridgemon/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	exitInfra      = 2
	configFileName = "config"
)

var (
	home, _ = os.UserHomeDir()

	// set by the persistent pre-run of every command that needs them
	cfg       *config.Config
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "bridgemon",
	Short: "Check bridge health once, restart and escalate on repeated failures",
	Long: `bridgemon polls the bridge health endpoint once, updates the persisted
consecutive-failure count, runs the restart action on every failure and the
alert action from the second consecutive failure on.

Exit status: 0 healthy, 1 unhealthy or unreachable, 2 monitor failure.
Run it from cron or a systemd timer.`,
	Version:       version.Detailed(),
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMonitor(cmd.Context(), cfg)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringP("config", "c", "", "Config file (json, yaml or toml)")
	pf.String("env-file", "", "Load environment variables from this dotenv file")
	pf.StringP("state-file", "s", config.DefaultStateFile, "Failure state file")
	pf.String("log-level", config.DefaultLogLevel, "Log level: debug, info, warn, error")
	pf.String("log-file", "", "Also append logs to this file")

	f := rootCmd.Flags()
	f.SortFlags = false
	f.StringP("url", "u", config.DefaultHealthURL, "Health endpoint to poll")
	f.IntP("timeout", "t", config.DefaultTimeout, "Health check timeout in seconds")
	f.String("restart-cmd", "", "Shell command run on every failure")
	f.String("alert-cmd", "", "Shell command run from the second consecutive failure on")
	f.Int("action-timeout", config.DefaultActionTimeout, "Timeout for each action in seconds")
	f.Bool("lock", true, "Hold a lock on the state file for the whole run")
	f.String("alert-webhook", "", "POST alerts as JSON to this URL")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	code := exitCode(err)
	if code == exitInfra {
		slog.Error("bridgemon failed", "error", err)
	}

	if logCloser != nil {
		logCloser.Close()
	}
	stop()
	os.Exit(code)
}

// exitError carries a process exit status out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

// exitCode maps a command error to the process exit status. Anything not
// explicitly tagged is a monitor failure.
func exitCode(err error) int {
	if err == nil {
		return monitor.ExitHealthy
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitInfra
}

func setup(cmd *cobra.Command) error {
	c, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}

	closer, err := logging.Setup(logging.Options{
		Level: c.SlogLevel(),
		File:  c.Log.File,
	})
	if err != nil {
		return err
	}

	cfg, logCloser = c, closer
	slog.Debug("config loaded", "config", cfg)
	return nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()
	for key, value := range config.Defaults() {
		v.SetDefault(key, value)
	}

	// dotenv first so the env vars it sets are visible below
	envFile := flagString(cmd, "env-file")
	if envFile == "" {
		envFile = os.Getenv(config.EnvPrefix + "_ENV_FILE")
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("env file '%s': %w", envFile, err)
		}
	}

	configFile := flagString(cmd, "config")
	if configFile == "" {
		configFile = os.Getenv(config.EnvPrefix + "_CONFIG")
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath("/etc/bridgemon")
		v.AddConfigPath(filepath.Join(home, ".config", "bridgemon"))
		v.SetConfigName(configFileName)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	bindFlag(v, cmd, "health_url", "url")
	bindFlag(v, cmd, "state_file", "state-file")
	bindFlag(v, cmd, "timeout", "timeout")
	bindFlag(v, cmd, "restart_cmd", "restart-cmd")
	bindFlag(v, cmd, "alert_cmd", "alert-cmd")
	bindFlag(v, cmd, "action_timeout", "action-timeout")
	bindFlag(v, cmd, "lock", "lock")
	bindFlag(v, cmd, "alert.webhook_url", "alert-webhook")
	bindFlag(v, cmd, "log.level", "log-level")
	bindFlag(v, cmd, "log.file", "log-file")

	v.SetEnvPrefix(config.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c config.Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config decode: %w", err)
	}
	c.Path = v.ConfigFileUsed()

	return &c, nil
}

// bindFlag binds a flag when the command has it; subcommands see only the
// persistent ones.
func bindFlag(v *viper.Viper, cmd *cobra.Command, key, name string) {
	if f := cmd.Flag(name); f != nil {
		_ = v.BindPFlag(key, f)
	}
}

func flagString(cmd *cobra.Command, name string) string {
	if f := cmd.Flag(name); f != nil {
		return f.Value.String()
	}
	return ""
}
