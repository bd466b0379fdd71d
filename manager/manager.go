// Package manager is the command interface over the counter model, the
// settings store and the daemon launcher.
//
// A Manager owns one counter model for the detected CPU. Every command
// takes the manager's mutex, so callers on several goroutines see the
// same serialised sequence of edits a single operator would produce.
//
// Settings are read once by Open and written only by Save. Save and
// Start commit the pending edit of the active slot first.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/frobware/go-opstart"
	"github.com/frobware/go-opstart/action"
	"github.com/frobware/go-opstart/catalog"
	"github.com/frobware/go-opstart/counter"
	"github.com/frobware/go-opstart/interpreter"
	"github.com/frobware/go-opstart/launch"
	"github.com/frobware/go-opstart/lock"
	"github.com/frobware/go-opstart/logging"
	"github.com/frobware/go-opstart/settings"
)

// ErrAborted is returned by Open when the operator declines to discard
// settings written for another CPU.
var ErrAborted = errors.New("aborted")

// Decision is the operator's answer to a CPU type mismatch.
type Decision int

const (
	// Abort leaves the stored settings untouched and fails Open.
	Abort Decision = iota
	// Discard replaces the stored settings with defaults.
	Discard
)

// Options configures Open.
type Options struct {
	Catalog  *catalog.Catalog
	Backend  settings.Backend
	Runner   interpreter.Runner
	Status   interpreter.StatusSource
	Commands interpreter.Commands
	// SpeedMHz seeds default counts; 0 means unknown.
	SpeedMHz uint64
	// LockPath is the cross-process writer lock taken by Save. Empty
	// disables locking.
	LockPath string
	// OnMismatch decides what to do with settings written for another
	// CPU. nil aborts.
	OnMismatch func(*opstart.CPUMismatchError) Decision
	Logger     *slog.Logger
}

// Manager serialises operator commands.
type Manager struct {
	mu sync.Mutex

	cat      *catalog.Catalog
	model    *counter.Model
	store    *settings.Store
	global   opstart.GlobalConfig
	executor interpreter.ActionExecutor
	launcher *launch.Orchestrator
	status   interpreter.StatusSource
	lockPath string
	warnings []string
	logger   *slog.Logger
}

// Open loads persisted settings and builds the counter model.
//
// Missing records are created from defaults. Settings stored for a
// different CPU are handled by opts.OnMismatch. Any other persistence
// failure falls back to defaults and is recorded in Warnings.
func Open(ctx context.Context, opts Options) (*Manager, error) {
	if opts.Catalog == nil || opts.Backend == nil {
		return nil, errors.New("manager: catalog and backend are required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	logger := WithOpIDHandler(opts.Logger)
	ctx = withOp(ctx)

	speed := opts.SpeedMHz
	seed := func(_ int, d *opstart.EventDescriptor) opstart.EventSetting {
		return opstart.DefaultEventSetting(d, speed)
	}

	store := settings.New(opts.Backend, opts.Catalog, seed, logger)
	executor := interpreter.NewExecutor(opts.Runner, opts.Commands, store, logger)

	m := &Manager{
		cat:      opts.Catalog,
		model:    counter.New(opts.Catalog, seed),
		store:    store,
		executor: executor,
		launcher: launch.New(executor, opts.Status, logger),
		status:   opts.Status,
		lockPath: opts.LockPath,
		logger:   logger.With(logging.ComponentKey, logging.Manager),
	}

	g, err := store.LoadGlobal(ctx)
	var mismatch *opstart.CPUMismatchError
	switch {
	case errors.As(err, &mismatch):
		g, err = m.resolveMismatch(ctx, mismatch, opts.OnMismatch)
		if err != nil {
			return nil, err
		}
	case err != nil:
		m.warn(ctx, "using default global settings", err)
		g = store.Defaults()
	}

	m.global = g.Config
	for i := range m.model.Counters() {
		slotSettings, err := store.LoadSlot(ctx, i)
		if err != nil {
			m.warn(ctx, fmt.Sprintf("using default settings for counter %d", i), err)
			if slotSettings == nil {
				slotSettings = store.SlotDefaults(i)
			}
		}
		st := g.Counters[i]
		if err := m.model.Load(i, st.Enabled, st.Event, slotSettings); err != nil {
			m.warn(ctx, fmt.Sprintf("counter %d event %q not restored", i, st.Event), err)
		}
		m.model.Seed(i)
	}
	if err := m.model.SelectActive(0); err != nil {
		return nil, err
	}

	m.logger.InfoContext(ctx, "settings loaded", "cpu", m.cat.CPU(), "counters", m.model.Counters(), "warnings", len(m.warnings))
	return m, nil
}

func (m *Manager) resolveMismatch(ctx context.Context, mismatch *opstart.CPUMismatchError, decide func(*opstart.CPUMismatchError) Decision) (settings.Global, error) {
	if decide == nil || decide(mismatch) != Discard {
		m.logger.WarnContext(ctx, "cpu type mismatch, aborting", "stored", mismatch.Stored, "detected", mismatch.Detected)
		return settings.Global{}, fmt.Errorf("%w: %w", ErrAborted, mismatch)
	}

	err := m.withLock(ctx, func(ctx context.Context) error {
		return m.store.Discard(ctx)
	})
	if err != nil {
		m.warn(ctx, "discarding mismatched settings failed", err)
	}
	return m.store.Defaults(), nil
}

func (m *Manager) warn(ctx context.Context, msg string, err error) {
	m.warnings = append(m.warnings, fmt.Sprintf("%s: %v", msg, err))
	m.logger.WarnContext(ctx, msg, "error", err)
}

// withLock runs fn under the cross-process writer lock when one is
// configured.
func (m *Manager) withLock(ctx context.Context, fn func(context.Context) error) error {
	if m.lockPath == "" {
		return fn(ctx)
	}
	return lock.Run(ctx, m.lockPath, func(ctx context.Context, scope lock.WriterScope) error {
		m.logger.DebugContext(ctx, "writer lock held", "path", scope.Path())
		return fn(ctx)
	})
}

// Warnings returns the problems recovered from while loading.
func (m *Manager) Warnings() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.warnings...)
}

// Catalog returns the event catalog.
func (m *Manager) Catalog() *catalog.Catalog { return m.cat }

// SelectActive makes slot the active slot, committing the pending edit
// of the previous one.
func (m *Manager) SelectActive(slot int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.model.SelectActive(slot)
}

// AssignEvent assigns the named event to slot. "none" or "" clears it.
func (m *Manager) AssignEvent(slot int, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if name == "" || name == "none" {
		return m.model.AssignEvent(slot, nil)
	}
	d, err := m.cat.Locate(name)
	if err != nil {
		return err
	}
	return m.model.AssignEvent(slot, d)
}

// SetEnabled enables or disables slot. Disabling clears its event.
func (m *Manager) SetEnabled(slot int, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.model.SetEnabled(slot, enabled)
}

// Stage replaces the pending edit of the active slot.
func (m *Manager) Stage(edit opstart.EventSetting) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.model.Stage(edit)
}

// CommitEdit stores edit as the setting of slot's current event.
func (m *Manager) CommitEdit(slot int, edit opstart.EventSetting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.model.CommitEdit(slot, edit)
}

// Edit makes slot active, applies fn to its pending edit and commits
// the result.
func (m *Manager) Edit(slot int, fn func(d *opstart.EventDescriptor, s *opstart.EventSetting) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.model.SelectActive(slot); err != nil {
		return err
	}
	st, err := m.model.Slot(slot)
	if err != nil {
		return err
	}
	if st.Event == nil {
		return fmt.Errorf("%w: counter %d has no event", opstart.ErrInvalidAssignment, slot)
	}

	edit := m.model.Pending()
	if err := fn(st.Event, &edit); err != nil {
		return err
	}
	m.model.Stage(edit)
	m.model.Flush()
	return nil
}

// UpdateGlobal applies fn to a copy of the global configuration and
// keeps the result if it validates.
func (m *Manager) UpdateGlobal(fn func(*opstart.GlobalConfig)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg := m.global
	fn(&cfg)
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.global = cfg
	return nil
}

// Global returns the global configuration.
func (m *Manager) Global() opstart.GlobalConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.global
}

// Slots returns a view of every slot. The active slot shows its
// pending edit.
func (m *Manager) Slots() []opstart.CounterState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slots()
}

func (m *Manager) slots() []opstart.CounterState {
	out := m.model.Slots()
	if a := m.model.Active(); out[a].Event != nil {
		out[a].Setting = m.model.Pending()
	}
	return out
}

// Active returns the index of the active slot.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.model.Active()
}

// Settings returns every per-event setting recorded for slot.
func (m *Manager) Settings(slot int) map[string]opstart.EventSetting {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.model.Settings(slot)
}

// Save writes every slot record and then the global record under the
// writer lock.
func (m *Manager) Save(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx = withOp(ctx)
	m.model.Flush()

	var actions []action.Action
	counters := make([]settings.SlotState, m.model.Counters())
	for _, st := range m.model.Slots() {
		counters[st.Index].Enabled = st.Enabled
		if st.Event != nil {
			counters[st.Index].Event = st.Event.Name
		}
		actions = append(actions, action.SaveSlot{Slot: st.Index, Settings: m.model.Settings(st.Index)})
	}
	actions = append(actions, action.SaveGlobal{Global: settings.Global{
		CPU:      m.cat.CPU(),
		Counters: counters,
		Config:   m.global,
	}})

	err := m.withLock(ctx, func(ctx context.Context) error {
		return m.executor.ExecuteAll(ctx, actions)
	})
	if err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "settings saved")
	return nil
}

// Args returns the daemon arguments the current assignment would
// launch with, without running anything.
func (m *Manager) Args() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.model.Flush()
	return launch.BuildArgs(m.model.Slots(), m.global)
}

// Start validates the assignment and launches the daemon. confirm is
// asked before restarting a running daemon.
func (m *Manager) Start(ctx context.Context, confirm launch.ConfirmFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.model.Flush()
	return m.launcher.Start(withOp(ctx), m.model.Slots(), m.global, confirm)
}

// Stop flushes and stops the daemon.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.launcher.Stop(withOp(ctx))
}

// Flush asks the daemon to write out its samples.
func (m *Manager) Flush(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.launcher.Flush(withOp(ctx))
}

// Status returns the daemon status.
func (m *Manager) Status(ctx context.Context) (opstart.DaemonStatus, error) {
	return m.status.Status(ctx)
}
