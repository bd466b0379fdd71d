package interpreter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/frobware/go-opstart"
	"github.com/frobware/go-opstart/action"
	"github.com/frobware/go-opstart/logging"
)

// ErrNoSettingsWriter is returned when a settings action is executed
// by an executor built without a store.
var ErrNoSettingsWriter = errors.New("executor has no settings writer")

// ActionExecutor executes reified actions.
type ActionExecutor interface {
	Execute(ctx context.Context, a action.Action) error
	ExecuteAll(ctx context.Context, actions []action.Action) error
}

// executor interprets and executes actions.
type executor struct {
	runner   Runner
	commands Commands
	store    SettingsWriter
	logger   *slog.Logger
}

// NewExecutor creates a new action executor. store may be nil when only
// daemon actions are executed.
func NewExecutor(runner Runner, commands Commands, store SettingsWriter, logger *slog.Logger) ActionExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &executor{
		runner:   runner,
		commands: commands,
		store:    store,
		logger:   logger.With(logging.ComponentKey, logging.Executor),
	}
}

// Execute runs a single action.
func (e *executor) Execute(ctx context.Context, a action.Action) error {
	switch a := a.(type) {
	case action.Flush:
		return e.run(ctx, a.Step(), e.commands.Dump, nil)

	case action.Stop:
		return e.run(ctx, a.Step(), e.commands.Stop, nil)

	case action.Start:
		return e.run(ctx, a.Step(), e.commands.Start, a.Args, "launch_id", a.LaunchID)

	case action.SaveGlobal:
		if e.store == nil {
			return ErrNoSettingsWriter
		}
		return e.store.SaveGlobal(ctx, a.Global)

	case action.SaveSlot:
		if e.store == nil {
			return ErrNoSettingsWriter
		}
		return e.store.SaveSlot(ctx, a.Slot, a.Settings)

	case action.Sequence:
		return e.ExecuteAll(ctx, a.Actions)

	default:
		return fmt.Errorf("unknown action type: %T", a)
	}
}

// ExecuteAll runs multiple actions, stopping on first error.
func (e *executor) ExecuteAll(ctx context.Context, actions []action.Action) error {
	for _, a := range actions {
		if err := e.Execute(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// run executes a daemon control command. Once issued a command is not
// cancelled; the caller blocks until its exit status is known.
func (e *executor) run(ctx context.Context, step, command string, args []string, attrs ...any) error {
	logger := e.logger.With(attrs...).With("step", step, "command", command)
	logger.DebugContext(ctx, "running command", "args", args)

	start := time.Now()
	code, err := e.runner.Run(context.WithoutCancel(ctx), command, args)
	if err != nil {
		logger.ErrorContext(ctx, "command failed to run", "error", err)
		return fmt.Errorf("%s: %w", step, err)
	}
	if code != 0 {
		logger.WarnContext(ctx, "command exited with non-zero status", "exit_code", code, "duration", time.Since(start))
		return &opstart.CommandError{Step: step, Command: command, ExitCode: code}
	}

	logger.InfoContext(ctx, "command completed", "duration", time.Since(start))
	return nil
}
