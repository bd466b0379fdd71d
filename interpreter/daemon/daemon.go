// Package daemon reports the state of the profiling daemon from the
// files it leaves behind: a lock file holding its pid and a counter
// file holding the number of sampling interrupts taken.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sys/unix"

	"github.com/frobware/go-opstart"
	"github.com/frobware/go-opstart/interpreter"
	"github.com/frobware/go-opstart/logging"
)

const (
	DefaultLockFile       = "/var/lock/oprofile"
	DefaultInterruptsFile = "/proc/sys/dev/oprofile/nr_interrupts"

	// clockTicks is USER_HZ, the unit of process start times in
	// /proc/<pid>/stat.
	clockTicks = 100

	// startTimeField is the 1-based index of starttime in
	// /proc/<pid>/stat.
	startTimeField = 22
)

// Source implements interpreter.StatusSource.
type Source struct {
	fs             afero.Fs
	lockFile       string
	interruptsFile string
	logger         *slog.Logger

	alive  func(pid int) bool
	uptime func() (time.Duration, error)
}

var _ interpreter.StatusSource = (*Source)(nil)

// Option configures a Source.
type Option func(*Source)

// WithLockFile overrides the daemon lock file path.
func WithLockFile(path string) Option {
	return func(s *Source) { s.lockFile = path }
}

// WithInterruptsFile overrides the interrupt counter path.
func WithInterruptsFile(path string) Option {
	return func(s *Source) { s.interruptsFile = path }
}

// WithProbe replaces the liveness check and the system uptime source.
func WithProbe(alive func(pid int) bool, uptime func() (time.Duration, error)) Option {
	return func(s *Source) {
		s.alive = alive
		s.uptime = uptime
	}
}

// New returns a Source reading from fsys.
func New(fsys afero.Fs, logger *slog.Logger, opts ...Option) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Source{
		fs:             fsys,
		lockFile:       DefaultLockFile,
		interruptsFile: DefaultInterruptsFile,
		logger:         logger.With(logging.ComponentKey, logging.Daemon),
		alive:          processAlive,
		uptime:         systemUptime,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Status reports whether the daemon runs, for how long, and how many
// interrupts it has taken. A missing or stale lock file means the
// daemon is not running. Failure to read runtime or interrupt count
// of a running daemon is logged and leaves the field zero.
func (s *Source) Status(ctx context.Context) (opstart.DaemonStatus, error) {
	pid, err := s.readPID()
	if errors.Is(err, fs.ErrNotExist) {
		return opstart.DaemonStatus{}, nil
	}
	if err != nil {
		return opstart.DaemonStatus{}, err
	}
	if !s.alive(pid) {
		s.logger.DebugContext(ctx, "stale lock file", "path", s.lockFile, "pid", pid)
		return opstart.DaemonStatus{}, nil
	}

	st := opstart.DaemonStatus{Running: true, PID: pid}

	if rt, err := s.runtime(pid); err != nil {
		s.logger.DebugContext(ctx, "cannot determine daemon runtime", "pid", pid, "error", err)
	} else {
		st.Runtime = rt
	}

	if n, err := s.readUint(s.interruptsFile); err != nil {
		s.logger.DebugContext(ctx, "cannot read interrupt count", "path", s.interruptsFile, "error", err)
	} else {
		st.Interrupts = n
	}

	return st, nil
}

func (s *Source) readPID() (int, error) {
	data, err := afero.ReadFile(s.fs, s.lockFile)
	if err != nil {
		return 0, err
	}
	text := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(text)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("lock file %s: invalid pid %q", s.lockFile, text)
	}
	return pid, nil
}

func (s *Source) readUint(path string) (uint64, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
}

// runtime is system uptime minus the process start time.
func (s *Source) runtime(pid int) (time.Duration, error) {
	data, err := afero.ReadFile(s.fs, fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return 0, err
	}
	ticks, err := parseStartTime(string(data))
	if err != nil {
		return 0, err
	}
	up, err := s.uptime()
	if err != nil {
		return 0, err
	}
	started := time.Duration(ticks) * time.Second / clockTicks
	if up < started {
		return 0, nil
	}
	return (up - started).Truncate(time.Second), nil
}

// parseStartTime extracts starttime from a /proc/<pid>/stat line. The
// command name in field 2 may contain spaces, so fields are counted
// from the closing parenthesis.
func parseStartTime(stat string) (uint64, error) {
	end := strings.LastIndexByte(stat, ')')
	if end < 0 {
		return 0, fmt.Errorf("malformed stat line")
	}
	fields := strings.Fields(stat[end+1:])
	// fields[0] is field 3 (state).
	idx := startTimeField - 3
	if len(fields) <= idx {
		return 0, fmt.Errorf("stat line has %d fields, want at least %d", len(fields)+2, startTimeField)
	}
	return strconv.ParseUint(fields[idx], 10, 64)
}

func processAlive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

func systemUptime() (time.Duration, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, err
	}
	return time.Duration(info.Uptime) * time.Second, nil
}
