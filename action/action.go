// Package action contains reified effects - descriptions of what to do
// without actually doing it. These are pure data structures.
package action

import (
	"github.com/frobware/go-opstart"
	"github.com/frobware/go-opstart/settings"
)

// Action represents an effect to be executed.
// Actions are data - they describe what to do, not how.
type Action interface {
	isAction()
	// Step names the action in logs and errors.
	Step() string
}

// Daemon actions - commands that control the profiling daemon

// Flush asks the daemon to write out its buffered samples.
type Flush struct{}

func (Flush) isAction() {}
func (Flush) Step() string { return "flush" }

// Stop shuts the daemon down.
type Stop struct{}

func (Stop) isAction() {}
func (Stop) Step() string { return "stop" }

// Start launches the daemon with a validated argument list.
type Start struct {
	LaunchID string
	Args     []string
}

func (Start) isAction() {}
func (Start) Step() string { return "start" }

// Settings actions - writes to the settings store

// SaveGlobal persists the global record.
type SaveGlobal struct {
	Global settings.Global
}

func (SaveGlobal) isAction() {}
func (SaveGlobal) Step() string { return "save-global" }

// SaveSlot persists the per-event settings of one counter slot.
type SaveSlot struct {
	Slot     int
	Settings map[string]opstart.EventSetting
}

func (SaveSlot) isAction() {}
func (SaveSlot) Step() string { return "save-slot" }

// Composite actions

// Sequence runs actions in order, stopping at the first failure.
type Sequence struct {
	Actions []Action
}

func (Sequence) isAction() {}
func (Sequence) Step() string { return "sequence" }
