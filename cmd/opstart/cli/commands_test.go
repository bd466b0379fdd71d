package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frobware/go-opstart"
	"github.com/frobware/go-opstart/cmd/opstart/cli"
	"github.com/frobware/go-opstart/manager"
)

// fakeDaemon records every command run and tracks whether the daemon
// is running.
type fakeDaemon struct {
	mu      sync.Mutex
	running bool
	runtime time.Duration
	ops     []string
	args    [][]string
}

func (f *fakeDaemon) Run(_ context.Context, command string, args []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, command)
	f.args = append(f.args, args)
	switch command {
	case "op_start":
		f.running = true
	case "op_stop":
		f.running = false
	}
	return 0, nil
}

func (f *fakeDaemon) Status(context.Context) (opstart.DaemonStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return opstart.DaemonStatus{}, nil
	}
	return opstart.DaemonStatus{Running: true, PID: 4242, Runtime: f.runtime, Interrupts: 5000}, nil
}

func (f *fakeDaemon) Ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

// harness runs commands against a temporary settings directory.
type harness struct {
	t          *testing.T
	configFile string
	settings   string
	daemon     *fakeDaemon
	answer     bool
	prompts    []string
}

func newHarness(t *testing.T, cpu string) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		t:          t,
		configFile: filepath.Join(dir, "opstart.toml"),
		settings:   filepath.Join(dir, "oprofile"),
		daemon:     &fakeDaemon{runtime: 62 * time.Second},
	}
	h.writeConfig(cpu, "flatfile")
	return h
}

func (h *harness) writeConfig(cpu, backend string) {
	h.t.Helper()
	cfg := fmt.Sprintf(`
[settings]
dir = %q
backend = %q

[cpu]
type = %q
speed_mhz = 400
`, h.settings, backend, cpu)
	require.NoError(h.t, os.WriteFile(h.configFile, []byte(cfg), 0o644))
}

// run parses args and runs the selected command, returning stdout.
func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	var out, errOut bytes.Buffer
	c := &cli.CLI{
		Out:          &out,
		Err:          &errOut,
		Runner:       h.daemon,
		StatusSource: h.daemon,
		Prompt: func(q string) bool {
			h.prompts = append(h.prompts, q)
			return h.answer
		},
	}

	parser, err := kong.New(c, cli.KongOptions()...)
	require.NoError(h.t, err)
	kctx, err := parser.Parse(append([]string{"--config-file", h.configFile}, args...))
	if err != nil {
		return "", err
	}
	kctx.BindTo(context.Background(), (*context.Context)(nil))
	err = kctx.Run()
	return out.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	require.NoError(h.t, err, strings.Join(args, " "))
	return out
}

type showOutput struct {
	CPU      string                 `json:"cpu"`
	Active   int                    `json:"active"`
	Counters []opstart.CounterState `json:"counters"`
}

func (h *harness) show() showOutput {
	h.t.Helper()
	var res showOutput
	require.NoError(h.t, json.Unmarshal([]byte(h.mustRun("show", "-o", "json")), &res))
	return res
}

func TestEvents_ListsEventsForCounter(t *testing.T) {
	h := newHarness(t, "pii")

	out := h.mustRun("events", "--counter", "0")
	assert.Contains(t, out, "CPU_CLK_UNHALTED")
	assert.Contains(t, out, "(M)odified cache state")

	var events []opstart.EventDescriptor
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("events", "-o", "json")), &events))
	assert.NotEmpty(t, events)

	_, err := h.run("events", "--counter", "5")
	require.Error(t, err)
}

func TestAssignEditShow(t *testing.T) {
	h := newHarness(t, "pii")

	h.mustRun("assign", "0", "L2_LD")
	h.mustRun("edit", "0", "--count", "7777", "--select", "0,1", "--no-kernel")

	res := h.show()
	assert.Equal(t, "pii", res.CPU)
	require.Len(t, res.Counters, 2)
	c0 := res.Counters[0]
	assert.True(t, c0.Enabled)
	require.NotNil(t, c0.Event)
	assert.Equal(t, "L2_LD", c0.Event.Name)
	assert.Equal(t, opstart.EventSetting{Count: 7777, UnitMask: 0x0c, User: true}, c0.Setting)

	table := h.mustRun("show")
	assert.Contains(t, table, "Intel Pentium II")
	assert.Contains(t, table, "L2_LD")

	args := h.mustRun("args")
	assert.True(t, strings.HasPrefix(args, "op_start --ctr0-event=L2_LD --ctr0-count=7777"), args)
}

func TestEdit_RejectsCountBelowMinimum(t *testing.T) {
	h := newHarness(t, "pii")

	h.mustRun("assign", "1", "CPU_CLK_UNHALTED")
	_, err := h.run("edit", "1", "--count", "10")
	require.ErrorIs(t, err, opstart.ErrCountOutOfRange)

	_, err = h.run("edit", "0", "--count", "10000")
	require.ErrorIs(t, err, opstart.ErrInvalidAssignment)
}

func TestEdit_UnitMaskMustComeFromTheEventsEntries(t *testing.T) {
	h := newHarness(t, "pii")
	h.mustRun("assign", "0", "L2_LD")

	for _, raw := range []string{"0x30", "0x18", "0"} {
		_, err := h.run("edit", "0", "--unit-mask", raw)
		require.ErrorIs(t, err, opstart.ErrInvalidUnitMask, raw)
	}
	assert.Equal(t, uint32(0x0f), h.show().Counters[0].Setting.UnitMask)

	h.mustRun("edit", "0", "--unit-mask", "0x0c")
	assert.Equal(t, uint32(0x0c), h.show().Counters[0].Setting.UnitMask)

	// The final MESI entry on its own means every state.
	h.mustRun("edit", "0", "--select", "4")
	assert.Equal(t, uint32(0x0f), h.show().Counters[0].Setting.UnitMask)
}

func TestEdit_MandatoryUnitMaskIsFixed(t *testing.T) {
	h := newHarness(t, "hammer")
	h.mustRun("assign", "0", "RETIRED_MMX_FP_INSTRUCTIONS")

	_, err := h.run("edit", "0", "--unit-mask", "0x3")
	require.ErrorIs(t, err, opstart.ErrInvalidUnitMask)

	_, err = h.run("edit", "0", "--select", "0")
	require.ErrorIs(t, err, opstart.ErrInvalidUnitMask)

	assert.Contains(t, h.mustRun("args"), "--ctr0-unit-mask=15 ")
}

func TestDisableClearsEvent(t *testing.T) {
	h := newHarness(t, "pii")

	h.mustRun("assign", "0", "CPU_CLK_UNHALTED")
	h.mustRun("disable", "0")

	res := h.show()
	assert.False(t, res.Counters[0].Enabled)
	assert.Nil(t, res.Counters[0].Event)

	_, err := h.run("start")
	require.ErrorIs(t, err, opstart.ErrNoCountersEnabled)
	assert.Empty(t, h.daemon.Ops())
}

func TestStart_RestartNeedsConfirmation(t *testing.T) {
	h := newHarness(t, "athlon")

	h.mustRun("assign", "2", "RETIRED_OPS")
	assert.Equal(t, "Profiler started.\n", h.mustRun("start"))
	assert.Equal(t, []string{"op_start"}, h.daemon.Ops())

	_, err := h.run("start")
	require.ErrorIs(t, err, opstart.ErrRestartDeclined)
	require.Len(t, h.prompts, 1)
	assert.Equal(t, "Profiler already started: stop and restart it?", h.prompts[0])

	h.mustRun("--yes", "start")
	assert.Equal(t, []string{"op_start", "op_dump", "op_stop", "op_start"}, h.daemon.Ops())
	assert.Len(t, h.prompts, 1)

	h.mustRun("flush")
	assert.Equal(t, "Profiler stopped.\n", h.mustRun("stop"))
	assert.Equal(t, []string{"op_start", "op_dump", "op_stop", "op_start", "op_dump", "op_dump", "op_stop"}, h.daemon.Ops())

	_, err = h.run("stop")
	require.ErrorIs(t, err, opstart.ErrNotRunning)
}

func TestConfig_UpdateAndQuery(t *testing.T) {
	h := newHarness(t, "pii")

	h.mustRun("config", "--base-dir", "/srv/opd", "--buffer-size", "2048", "--verbose=true")

	assert.Equal(t, "/srv/opd/\n", h.mustRun("config", "-o", "jsonpath={.baseDir}"))

	var g opstart.GlobalConfig
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("config", "-o", "json")), &g))
	assert.Equal(t, uint32(2048), g.BufferSize)
	assert.True(t, g.Verbose)

	_, err := h.run("config", "--buffer-size", "1")
	require.ErrorIs(t, err, opstart.ErrBufferSizeOutOfRange)

	_, err = h.run("config", "--kernel-image", "/boot/vmlinux\nverbose=0")
	require.ErrorIs(t, err, opstart.ErrInvalidPath)
	assert.Equal(t, "/boot/vmlinux\n", h.mustRun("config", "-o", "jsonpath={.kernelImage}"))
	assert.Contains(t, h.mustRun("config"), "buffer-size:            2048")
}

func TestStatus(t *testing.T) {
	h := newHarness(t, "pii")

	assert.Equal(t, "Profiler is not running.\n", h.mustRun("status"))

	h.daemon.running = true
	assert.Equal(t, "Profiler running 1m2s\n", h.mustRun("status"))

	out := h.mustRun("status", "-o", "yaml")
	assert.Contains(t, out, "running: true")
	assert.Contains(t, out, "pid: 4242")
}

func TestCPUMismatch(t *testing.T) {
	h := newHarness(t, "pii")
	h.mustRun("assign", "0", "L2_LD")

	h.writeConfig("athlon", "flatfile")
	_, err := h.run("show")
	require.ErrorIs(t, err, manager.ErrAborted)
	require.ErrorIs(t, err, opstart.ErrCPUMismatch)
	require.Len(t, h.prompts, 1)

	h.answer = true
	res := h.show()
	assert.Equal(t, "athlon", res.CPU)
	assert.Len(t, res.Counters, 4)
	for _, c := range res.Counters {
		assert.Nil(t, c.Event)
	}
}

func TestSQLiteBackendPersists(t *testing.T) {
	h := newHarness(t, "athlon")
	h.writeConfig("athlon", "sqlite")

	h.mustRun("assign", "3", "CPU_CLK_UNHALTED")
	h.mustRun("edit", "3", "--count", "90000")

	res := h.show()
	require.NotNil(t, res.Counters[3].Event)
	assert.Equal(t, "CPU_CLK_UNHALTED", res.Counters[3].Event.Name)
	assert.Equal(t, uint32(90000), res.Counters[3].Setting.Count)

	_, err := os.Stat(filepath.Join(h.settings, "opstart.db"))
	require.NoError(t, err)
}
