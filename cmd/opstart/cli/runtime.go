package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/frobware/go-opstart"
	"github.com/frobware/go-opstart/catalog"
	"github.com/frobware/go-opstart/config"
	"github.com/frobware/go-opstart/cpu"
	"github.com/frobware/go-opstart/interpreter"
	"github.com/frobware/go-opstart/interpreter/daemon"
	"github.com/frobware/go-opstart/interpreter/exec"
	"github.com/frobware/go-opstart/manager"
	"github.com/frobware/go-opstart/settings"
	"github.com/frobware/go-opstart/settings/flatfile"
	"github.com/frobware/go-opstart/settings/sqlite"
)

// Runtime provides manager access for CLI commands. It must be closed
// when no longer needed.
type Runtime struct {
	Manager *manager.Manager
	Config  config.Config
	Dirs    config.Dirs
	Logger  *slog.Logger
	closer  io.Closer
}

// Close releases the settings backend.
func (r *Runtime) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// NewRuntime detects the CPU, opens the settings backend and loads the
// manager. Warnings recovered from while loading are printed to the
// error stream.
func (c *CLI) NewRuntime(ctx context.Context) (*Runtime, error) {
	cfg, err := c.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := c.Logger(cfg)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	cpuType, err := c.cpuType(cfg)
	if err != nil {
		return nil, err
	}
	cat, err := catalog.Build(cpuType)
	if err != nil {
		return nil, err
	}

	dirs, err := cfg.SettingsDirs()
	if err != nil {
		return nil, err
	}
	if err := dirs.EnsureDirectories(c.fs()); err != nil {
		return nil, err
	}

	backend, closer, err := c.openBackend(ctx, cfg, dirs, logger)
	if err != nil {
		return nil, err
	}

	speed := cfg.CPU.SpeedMHz
	if speed == 0 {
		speed = cpu.SpeedMHz(c.fs())
	}

	mgr, err := manager.Open(ctx, manager.Options{
		Catalog:    cat,
		Backend:    backend,
		Runner:     c.runner(logger),
		Status:     c.statusSource(cfg, logger),
		Commands:   cfg.Daemon.Commands,
		SpeedMHz:   speed,
		LockPath:   dirs.Lock(),
		OnMismatch: c.onMismatch,
		Logger:     logger,
	})
	if err != nil {
		if closer != nil {
			if closeErr := closer.Close(); closeErr != nil {
				logger.Warn("failed to close settings backend during cleanup", "error", closeErr)
			}
		}
		return nil, err
	}

	for _, w := range mgr.Warnings() {
		fmt.Fprintf(c.errOut(), "warning: %s\n", w)
	}

	return &Runtime{
		Manager: mgr,
		Config:  cfg,
		Dirs:    dirs,
		Logger:  logger,
		closer:  closer,
	}, nil
}

func (c *CLI) cpuType(cfg config.Config) (opstart.CPUType, error) {
	t, ok, err := cfg.CPUOverride()
	if err != nil {
		return 0, err
	}
	if ok {
		return t, nil
	}
	t, err = cpu.Detect()
	if err != nil {
		return 0, fmt.Errorf("%w (use --cpu to override)", err)
	}
	return t, nil
}

func (c *CLI) openBackend(ctx context.Context, cfg config.Config, dirs config.Dirs, logger *slog.Logger) (settings.Backend, io.Closer, error) {
	switch cfg.Settings.Backend {
	case config.BackendSQLite:
		b, err := sqlite.New(ctx, dirs.DBPath(), logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open settings database %s: %w", dirs.DBPath(), err)
		}
		return b, b, nil
	default:
		return flatfile.New(c.fs(), dirs.Base(), logger), nil, nil
	}
}

func (c *CLI) runner(logger *slog.Logger) interpreter.Runner {
	if c.Runner != nil {
		return c.Runner
	}
	return exec.New(logger)
}

func (c *CLI) statusSource(cfg config.Config, logger *slog.Logger) interpreter.StatusSource {
	if c.StatusSource != nil {
		return c.StatusSource
	}
	return daemon.New(c.fs(), logger,
		daemon.WithLockFile(cfg.Daemon.LockFile),
		daemon.WithInterruptsFile(cfg.Daemon.InterruptsFile),
	)
}

func (c *CLI) onMismatch(e *opstart.CPUMismatchError) manager.Decision {
	q := fmt.Sprintf("%s.\nDelete the stored configuration and continue?", e.Error())
	if c.confirm(q) {
		return manager.Discard
	}
	return manager.Abort
}
