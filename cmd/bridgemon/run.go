package main

import (
	"context"
	"log/slog"

	"github.com/openmined/bridgemon/internal/action"
	"github.com/openmined/bridgemon/internal/config"
	"github.com/openmined/bridgemon/internal/monitor"
	"github.com/openmined/bridgemon/internal/probe"
	"github.com/openmined/bridgemon/internal/state"
)

func runMonitor(ctx context.Context, c *config.Config) error {
	m, err := newMonitor(c)
	if err != nil {
		return err
	}

	res, err := m.Run(ctx)
	if err != nil {
		return err
	}

	code := res.ExitCode()
	slog.Debug("run finished", "run", res.RunID, "exit", code, "state", res.Next)
	if code != monitor.ExitHealthy {
		return &exitError{code: code}
	}
	return nil
}

func newMonitor(c *config.Config) (*monitor.Monitor, error) {
	checker, err := probe.New(c.HealthURL, c.PollTimeout())
	if err != nil {
		return nil, err
	}

	restart, err := restartAction(c)
	if err != nil {
		return nil, err
	}

	alert, err := alertAction(c)
	if err != nil {
		return nil, err
	}

	return monitor.New(monitor.Options{
		Checker:     checker,
		Store:       state.NewStore(c.StateFile),
		Restart:     restart,
		Alert:       alert,
		Lock:        c.Lock,
		LockTimeout: c.PollTimeout(),
	})
}

func restartAction(c *config.Config) (action.Action, error) {
	if c.RestartCmd == "" {
		return action.Noop{}, nil
	}
	return action.NewCommand("restart", c.RestartCmd, c.CommandTimeout())
}

// alertAction combines every configured alert sink; with none it is a no-op.
func alertAction(c *config.Config) (action.Action, error) {
	var sinks []action.Action

	if c.AlertCmd != "" {
		cmd, err := action.NewCommand("alert", c.AlertCmd, c.CommandTimeout())
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, cmd)
	}

	if c.Alert.WebhookURL != "" {
		hook, err := action.NewWebhook(c.Alert.WebhookURL, c.CommandTimeout())
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, hook)
	}

	if c.Alert.Email.Enabled {
		email, err := action.NewEmail(c.Alert.Email)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, email)
	}

	return action.Combine(sinks...), nil
}
