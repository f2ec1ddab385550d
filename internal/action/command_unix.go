//go:build !windows

package action

import (
	"context"
	"os/exec"
)

// Command lines are POSIX sh regardless of the caller's $SHELL.
func shellCommand(ctx context.Context, line string) *exec.Cmd {
	return exec.CommandContext(ctx, "sh", "-c", line)
}
