package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

const (
	DefaultCommandTimeout = 30 * time.Second

	// output kept for logs and errors
	maxOutput = 4096
)

var ErrEmptyCommand = errors.New("action: empty command")

// Command runs a shell command line. The event is passed through BRIDGEMON_*
// environment variables.
type Command struct {
	name    string
	line    string
	timeout time.Duration
}

func NewCommand(name, line string, timeout time.Duration) (*Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, ErrEmptyCommand
	}
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &Command{name: name, line: line, timeout: timeout}, nil
}

func (c *Command) Name() string {
	return c.name
}

func (c *Command) Run(ctx context.Context, ev Event) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := shellCommand(ctx, c.line)
	cmd.Env = append(os.Environ(), ev.Environ()...)
	// do not hang on grandchildren that keep our pipes open
	cmd.WaitDelay = time.Second

	start := time.Now()
	out, err := cmd.CombinedOutput()
	output := truncate(strings.TrimSpace(string(out)))

	slog.Debug("action command finished",
		"action", c.name,
		"command", c.line,
		"took", time.Since(start),
		"output", output,
		"error", err,
	)

	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("action %s: timed out after %s: %w", c.name, c.timeout, err)
		}
		return fmt.Errorf("action %s: %w: %s", c.name, err, output)
	}

	return nil
}

func truncate(s string) string {
	if len(s) <= maxOutput {
		return s
	}
	return s[:maxOutput] + "...(truncated)"
}
