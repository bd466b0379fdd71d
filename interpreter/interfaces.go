// Package interpreter contains interfaces and executors for effects.
// This is the only package that performs actual I/O.
package interpreter

import (
	"context"

	"github.com/frobware/go-opstart"
	"github.com/frobware/go-opstart/settings"
)

// Runner runs an external command to completion. A command that ran
// but failed reports its exit status with a nil error; err is reserved
// for commands that could not be run at all.
type Runner interface {
	Run(ctx context.Context, command string, args []string) (exitCode int, err error)
}

// StatusSource reports the state of the profiling daemon.
type StatusSource interface {
	Status(ctx context.Context) (opstart.DaemonStatus, error)
}

// SettingsWriter persists settings records.
type SettingsWriter interface {
	SaveGlobal(ctx context.Context, g settings.Global) error
	SaveSlot(ctx context.Context, slot int, m map[string]opstart.EventSetting) error
}

// Commands names the daemon control programs.
type Commands struct {
	Start string `toml:"start_command"`
	Stop  string `toml:"stop_command"`
	Dump  string `toml:"dump_command"`
}

// DefaultCommands returns the stock daemon control programs.
func DefaultCommands() Commands {
	return Commands{
		Start: "op_start",
		Stop:  "op_stop",
		Dump:  "op_dump",
	}
}
