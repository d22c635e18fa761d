package reboot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/screenlink/internal/logging"
)

// DefaultCommandTimeout bounds a restart command.
const DefaultCommandTimeout = 30 * time.Second

// Exec restarts by replacing the running process with a fresh copy of the
// same binary and arguments. On success Restart never returns.
type Exec struct {
	// Before runs just before the exec, e.g. to flush logs.
	Before func()

	exec func(argv0 string, argv, envv []string) error
}

// NewExec returns an Exec restarter.
func NewExec(before func()) *Exec {
	return &Exec{Before: before, exec: syscall.Exec}
}

// Restart implements supervisor.Restarter.
func (e *Exec) Restart() error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	logging.Info("Re-executing", zap.String("path", self), zap.Strings("args", os.Args[1:]))
	if e.Before != nil {
		e.Before()
	}
	if err := e.exec(self, os.Args, os.Environ()); err != nil {
		return fmt.Errorf("exec %s: %w", self, err)
	}
	return nil
}

// Command restarts by running an external command such as
// "systemctl restart screenlink" or "systemctl reboot".
type Command struct {
	Argv    []string
	Timeout time.Duration
}

// NewCommand returns a Command restarter for argv.
func NewCommand(argv []string) *Command {
	return &Command{Argv: argv, Timeout: DefaultCommandTimeout}
}

// Restart implements supervisor.Restarter.
func (c *Command) Restart() error {
	if len(c.Argv) == 0 || c.Argv[0] == "" {
		return errors.New("restart command is empty")
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()

	logging.Info("Running restart command", zap.Strings("argv", c.Argv))
	out, err := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", strings.Join(c.Argv, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

// ErrDisabled is returned by Disabled.
var ErrDisabled = errors.New("restart disabled")

// Disabled never restarts. The supervisor then applies new settings in
// place, which is what simulated runs want.
type Disabled struct{}

// Restart implements supervisor.Restarter.
func (Disabled) Restart() error {
	return ErrDisabled
}
