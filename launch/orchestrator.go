package launch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/frobware/go-opstart"
	"github.com/frobware/go-opstart/action"
	"github.com/frobware/go-opstart/interpreter"
	"github.com/frobware/go-opstart/logging"
)

// ConfirmFunc asks the operator whether a running daemon may be
// restarted.
type ConfirmFunc func() bool

// Orchestrator drives the daemon control commands. Each operation
// fetches the daemon state, computes the actions to take, and executes
// them in order.
type Orchestrator struct {
	executor interpreter.ActionExecutor
	status   interpreter.StatusSource
	logger   *slog.Logger
	newID    func() string
}

// New returns an Orchestrator.
func New(executor interpreter.ActionExecutor, status interpreter.StatusSource, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		executor: executor,
		status:   status,
		logger:   logger.With(logging.ComponentKey, logging.Launch),
		newID:    uuid.NewString,
	}
}

// Start validates the assignment and launches the daemon. If the daemon
// is already running, confirm must approve a restart; the running
// daemon is then flushed and stopped before the new launch. Nothing is
// executed when validation fails.
func (o *Orchestrator) Start(ctx context.Context, states []opstart.CounterState, cfg opstart.GlobalConfig, confirm ConfirmFunc) error {
	args, err := BuildArgs(states, cfg)
	if err != nil {
		return err
	}

	st, err := o.status.Status(ctx)
	if err != nil {
		return fmt.Errorf("daemon status: %w", err)
	}
	if st.Running && (confirm == nil || !confirm()) {
		return opstart.ErrRestartDeclined
	}

	id := o.newID()
	actions := PlanStart(st.Running, id, args)
	o.logger.InfoContext(ctx, "starting profiler", "launch_id", id, "restart", st.Running, "args", len(args))
	return o.executor.ExecuteAll(ctx, actions)
}

// Stop flushes and stops a running daemon.
func (o *Orchestrator) Stop(ctx context.Context) error {
	if err := o.requireRunning(ctx); err != nil {
		return err
	}
	o.logger.InfoContext(ctx, "stopping profiler")
	return o.executor.Execute(ctx, shutdown())
}

// Flush asks a running daemon to write out its samples.
func (o *Orchestrator) Flush(ctx context.Context) error {
	if err := o.requireRunning(ctx); err != nil {
		return err
	}
	o.logger.InfoContext(ctx, "flushing profiler data")
	return o.executor.Execute(ctx, action.Flush{})
}

func (o *Orchestrator) requireRunning(ctx context.Context) error {
	st, err := o.status.Status(ctx)
	if err != nil {
		return fmt.Errorf("daemon status: %w", err)
	}
	if !st.Running {
		return opstart.ErrNotRunning
	}
	return nil
}

// PlanStart returns the actions that launch the daemon with args. A
// running instance is shut down first by one flush-then-stop sequence.
func PlanStart(running bool, launchID string, args []string) []action.Action {
	var actions []action.Action
	if running {
		actions = append(actions, shutdown())
	}
	return append(actions, action.Start{LaunchID: launchID, Args: args})
}

// shutdown flushes before stopping so no samples are lost. The stop is
// skipped when the flush fails.
func shutdown() action.Sequence {
	return action.Sequence{Actions: []action.Action{action.Flush{}, action.Stop{}}}
}
