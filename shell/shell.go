// Package shell runs diagnostic commands on the device.
//
// Commands are passed to /bin/sh unchecked: anyone who can reach the RPC
// channel can run anything the agent's user can.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

var ErrEmptyCommand = errors.New("empty command")

// Config controls the shell facility
type Config struct {
	Enabled bool          `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DefaultConfig returns the default shell configuration
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		Timeout: 30 * time.Second,
	}
}

// Runner executes shell commands and captures stdout
type Runner struct {
	config Config
	logger *slog.Logger
}

// NewRunner creates a Runner
func NewRunner(config Config, logger *slog.Logger) *Runner {
	return &Runner{config: config, logger: logger}
}

// Run executes command with /bin/sh -c and returns its stdout. A non-zero
// exit status is not an error; whatever the command printed is returned.
func (r *Runner) Run(ctx context.Context, command string) (string, error) {
	if command == "" {
		return "", ErrEmptyCommand
	}

	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	r.logger.Info("Running shell command", "command", command)

	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	cmd.Stdout = &stdout
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return "", fmt.Errorf("failed to run %q: %w", command, err)
	}
	if exitErr != nil {
		r.logger.Warn("Shell command exited with error", "command", command, "exit_code", exitErr.ExitCode())
	}
	return stdout.String(), nil
}
