package opstart

import (
	"errors"
	"fmt"
)

// Operator input errors. They abort only the requested action.
var (
	ErrNoCountersEnabled       = errors.New("no counters enabled")
	ErrNoProfilingDomain       = errors.New("must profile at least one of user binaries or kernel")
	ErrCountOutOfRange         = errors.New("count out of range")
	ErrInvalidUnitMask         = errors.New("invalid unit mask")
	ErrBufferSizeOutOfRange    = errors.New("buffer size out of range")
	ErrHashTableSizeOutOfRange = errors.New("hash table size out of range")
	ErrFilterOutOfRange        = errors.New("filter out of range")
	ErrInvalidPath             = errors.New("invalid path")
)

var (
	// ErrEventNotFound is returned when an event name is not in the
	// catalog.
	ErrEventNotFound = errors.New("event not found")

	// ErrInvalidAssignment is returned when an event is assigned to a
	// counter it cannot run on.
	ErrInvalidAssignment = errors.New("invalid counter assignment")

	// ErrCPUMismatch matches any *CPUMismatchError.
	ErrCPUMismatch = errors.New("cpu type mismatch")

	// ErrNotRunning is returned by stop and flush when the daemon is
	// not running.
	ErrNotRunning = errors.New("profiler is not running")

	// ErrRestartDeclined is returned by start when the daemon is
	// already running and the operator declines the restart.
	ErrRestartDeclined = errors.New("profiler already running and restart declined")
)

// ValidationError reports why a configuration cannot be launched.
type ValidationError struct {
	Err error
	// Slot is the counter index, or -1 for global settings.
	Slot   int
	Event  string
	Detail string
}

func (e *ValidationError) Error() string {
	msg := e.Err.Error()
	if e.Event != "" {
		msg = fmt.Sprintf("counter %d event %s: %s", e.Slot, e.Event, msg)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

// CPUMismatchError is returned when persisted settings were written for
// a different CPU type than the one detected.
type CPUMismatchError struct {
	Stored   CPUType
	Detected CPUType
}

func (e *CPUMismatchError) Error() string {
	return fmt.Sprintf("cpu type in configuration (%s) does not match current cpu (%s)", e.Stored, e.Detected)
}

func (e *CPUMismatchError) Is(target error) bool { return target == ErrCPUMismatch }

// CommandError is returned when a daemon control command exits with a
// non-zero status.
type CommandError struct {
	// Step names the action that failed, e.g. "flush".
	Step     string
	Command  string
	ExitCode int
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s exited with status %d", e.Step, e.Command, e.ExitCode)
}

func rangeDetail(v, lo, hi uint64) string {
	return fmt.Sprintf("%d must be in [%d, %d]", v, lo, hi)
}
