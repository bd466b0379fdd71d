// Package exec runs daemon control commands as child processes.
package exec

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	osexec "os/exec"
	"strings"

	"github.com/frobware/go-opstart/interpreter"
	"github.com/frobware/go-opstart/logging"
)

// Runner implements interpreter.Runner with os/exec.
type Runner struct {
	logger *slog.Logger
	// Dir, when set, is the working directory of every command.
	Dir string
}

var _ interpreter.Runner = (*Runner)(nil)

// New returns a Runner.
func New(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{logger: logger.With(logging.ComponentKey, logging.Exec)}
}

// Run starts command and waits for it. The combined output is logged
// line by line. A non-zero exit is returned as exitCode with a nil
// error.
func (r *Runner) Run(ctx context.Context, command string, args []string) (int, error) {
	cmd := osexec.CommandContext(ctx, command, args...)
	cmd.Dir = r.Dir

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	r.logOutput(ctx, command, out.String())

	var exitErr *osexec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return -1, err
	}
	return 0, nil
}

func (r *Runner) logOutput(ctx context.Context, command, out string) {
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		if line == "" {
			continue
		}
		r.logger.InfoContext(ctx, line, "command", command)
	}
}
