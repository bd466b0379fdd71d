package manager_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frobware/go-opstart"
	"github.com/frobware/go-opstart/catalog"
	"github.com/frobware/go-opstart/interpreter"
	"github.com/frobware/go-opstart/manager"
	"github.com/frobware/go-opstart/settings"
	"github.com/frobware/go-opstart/settings/flatfile"
)

// testLogger returns a logger for tests. By default it discards all output.
// Set OPSTART_TEST_VERBOSE=1 to enable logging.
func testLogger() *slog.Logger {
	if os.Getenv("OPSTART_TEST_VERBOSE") != "" {
		return slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const settingsDir = "/home/op/.oprofile"

// fakeDaemon records every command run and tracks whether the daemon
// is running.
type fakeDaemon struct {
	mu      sync.Mutex
	running bool
	ops     []string
}

func (f *fakeDaemon) Run(_ context.Context, command string, _ []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, command)
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
	return opstart.DaemonStatus{Running: f.running}, nil
}

// testFixture provides access to all components for verification.
type testFixture struct {
	t      *testing.T
	fs     afero.Fs
	daemon *fakeDaemon
}

func newTestFixture(t *testing.T) *testFixture {
	t.Helper()
	return &testFixture{t: t, fs: afero.NewMemMapFs(), daemon: &fakeDaemon{}}
}

func (f *testFixture) backend() *flatfile.Backend {
	return flatfile.New(f.fs, settingsDir, testLogger())
}

func (f *testFixture) open(cpu opstart.CPUType, opts ...func(*manager.Options)) (*manager.Manager, error) {
	f.t.Helper()
	cat, err := catalog.Build(cpu)
	require.NoError(f.t, err)

	o := manager.Options{
		Catalog:  cat,
		Backend:  f.backend(),
		Runner:   f.daemon,
		Status:   f.daemon,
		Commands: interpreter.DefaultCommands(),
		Logger:   testLogger(),
	}
	for _, fn := range opts {
		fn(&o)
	}
	return manager.Open(context.Background(), o)
}

func (f *testFixture) mustOpen(cpu opstart.CPUType, opts ...func(*manager.Options)) *manager.Manager {
	f.t.Helper()
	m, err := f.open(cpu, opts...)
	require.NoError(f.t, err)
	return m
}

func (f *testFixture) readFile(name string) string {
	f.t.Helper()
	data, err := afero.ReadFile(f.fs, filepath.Join(settingsDir, name))
	require.NoError(f.t, err)
	return string(data)
}

func (f *testFixture) AssertOps(want ...string) {
	f.t.Helper()
	assert.Equal(f.t, want, f.daemon.ops)
}

func withSpeed(mhz uint64) func(*manager.Options) {
	return func(o *manager.Options) { o.SpeedMHz = mhz }
}

func TestOpen_FreshBootstrap(t *testing.T) {
	f := newTestFixture(t)
	m := f.mustOpen(opstart.CPUPII, withSpeed(400))

	assert.Empty(t, m.Warnings())
	assert.Equal(t, 0, m.Active())
	assert.Equal(t, opstart.DefaultGlobalConfig(), m.Global())

	slots := m.Slots()
	require.Len(t, slots, 2)
	for _, s := range slots {
		assert.False(t, s.Enabled)
		assert.Nil(t, s.Event)
	}

	for _, name := range []string{flatfile.GlobalFile, flatfile.SlotFilePrefix + "0", flatfile.SlotFilePrefix + "1"} {
		ok, err := afero.Exists(f.fs, filepath.Join(settingsDir, name))
		require.NoError(t, err)
		assert.True(t, ok, name)
	}

	// Defaults derive from the clock: 400 MHz * 500.
	assert.Equal(t, uint32(200000), m.Settings(1)["MUL"].Count)
	f.AssertOps()
}

func TestScenarioA_AssignEditArgs(t *testing.T) {
	f := newTestFixture(t)
	m := f.mustOpen(opstart.CPUPII)

	require.NoError(t, m.SetEnabled(0, true))
	require.NoError(t, m.AssignEvent(0, "CPU_CLK_UNHALTED"))
	require.NoError(t, m.Edit(0, func(_ *opstart.EventDescriptor, s *opstart.EventSetting) error {
		s.Count = 60000
		return nil
	}))

	args, err := m.Args()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"--ctr0-event=CPU_CLK_UNHALTED",
		"--ctr0-count=60000",
		"--ctr0-kernel=1",
		"--ctr0-user=1",
	}, args[:4])
	assert.Equal(t, "--base-dir=/var/opd/", args[9])
	f.AssertOps()
}

func TestScenarioB_StartWithNothingEnabled(t *testing.T) {
	f := newTestFixture(t)
	m := f.mustOpen(opstart.CPUPII)

	err := m.Start(context.Background(), nil)
	require.ErrorIs(t, err, opstart.ErrNoCountersEnabled)
	f.AssertOps()
}

func TestScenarioE_RestartFlushesAndStops(t *testing.T) {
	f := newTestFixture(t)
	m := f.mustOpen(opstart.CPUAthlon)

	require.NoError(t, m.SetEnabled(2, true))
	require.NoError(t, m.AssignEvent(2, "RETIRED_OPS"))

	require.NoError(t, m.Start(context.Background(), nil))
	f.AssertOps("op_start")

	err := m.Start(context.Background(), func() bool { return false })
	require.ErrorIs(t, err, opstart.ErrRestartDeclined)
	f.AssertOps("op_start")

	require.NoError(t, m.Start(context.Background(), func() bool { return true }))
	f.AssertOps("op_start", "op_dump", "op_stop", "op_start")

	require.NoError(t, m.Flush(context.Background()))
	require.NoError(t, m.Stop(context.Background()))
	f.AssertOps("op_start", "op_dump", "op_stop", "op_start", "op_dump", "op_dump", "op_stop")

	require.ErrorIs(t, m.Stop(context.Background()), opstart.ErrNotRunning)

	st, err := m.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Running)
}

func TestSave_RoundTrip(t *testing.T) {
	f := newTestFixture(t)
	lockPath := filepath.Join(t.TempDir(), ".lock")
	withLock := func(o *manager.Options) { o.LockPath = lockPath }

	m := f.mustOpen(opstart.CPUPII, withLock)
	require.NoError(t, m.SetEnabled(0, true))
	require.NoError(t, m.AssignEvent(0, "L2_LD"))
	require.NoError(t, m.Edit(0, func(_ *opstart.EventDescriptor, s *opstart.EventSetting) error {
		s.Count = 7777
		s.UnitMask = 0x0c
		s.Kernel = false
		return nil
	}))
	require.NoError(t, m.SetEnabled(1, true))
	require.NoError(t, m.UpdateGlobal(func(c *opstart.GlobalConfig) {
		c.BaseDir = "/srv/opd"
		c.PIDFilter = 42
	}))
	require.NoError(t, m.Save(context.Background()))

	assert.True(t, strings.HasPrefix(f.readFile(flatfile.GlobalFile), "1 1 L2_LD 1 none\n"))
	assert.Contains(t, f.readFile(flatfile.SlotFilePrefix+"0"), "L2_LD 7777 12 0 1\n")

	again := f.mustOpen(opstart.CPUPII, withLock)
	slots := again.Slots()
	require.NotNil(t, slots[0].Event)
	assert.Equal(t, "L2_LD", slots[0].Event.Name)
	assert.Equal(t, opstart.EventSetting{Count: 7777, UnitMask: 0x0c, User: true}, slots[0].Setting)
	assert.True(t, slots[1].Enabled)
	assert.Nil(t, slots[1].Event)
	assert.Equal(t, "/srv/opd/", again.Global().BaseDir)
	assert.Equal(t, uint32(42), again.Global().PIDFilter)
}

func TestSlotSwitchCommitsPendingEdit(t *testing.T) {
	f := newTestFixture(t)
	m := f.mustOpen(opstart.CPUPII)

	require.NoError(t, m.SetEnabled(0, true))
	require.NoError(t, m.AssignEvent(0, "DATA_MEM_REFS"))

	m.Stage(opstart.EventSetting{Count: 12345, Kernel: true})
	assert.Equal(t, uint32(12345), m.Slots()[0].Setting.Count, "active slot shows its pending edit")

	require.NoError(t, m.SelectActive(1))
	assert.Equal(t, 1, m.Active())
	assert.Equal(t, opstart.EventSetting{Count: 12345, Kernel: true}, m.Settings(0)["DATA_MEM_REFS"])
}

func TestDisableClearsEvent(t *testing.T) {
	f := newTestFixture(t)
	m := f.mustOpen(opstart.CPUPII)

	require.NoError(t, m.SetEnabled(1, true))
	require.NoError(t, m.AssignEvent(1, "MUL"))
	require.NoError(t, m.SetEnabled(1, false))
	assert.Nil(t, m.Slots()[1].Event)

	err := m.AssignEvent(1, "MUL")
	require.ErrorIs(t, err, opstart.ErrInvalidAssignment, "disabled slot takes no event")

	require.NoError(t, m.SetEnabled(0, true))
	err = m.AssignEvent(0, "MUL")
	require.ErrorIs(t, err, opstart.ErrInvalidAssignment, "MUL only runs on counter 1")

	require.ErrorIs(t, m.AssignEvent(0, "NO_SUCH_EVENT"), opstart.ErrEventNotFound)
	require.NoError(t, m.AssignEvent(0, "none"))
}

func TestEdit_NoEvent(t *testing.T) {
	f := newTestFixture(t)
	m := f.mustOpen(opstart.CPUPII)

	err := m.Edit(0, func(*opstart.EventDescriptor, *opstart.EventSetting) error {
		t.Fatal("edit callback called for empty slot")
		return nil
	})
	require.ErrorIs(t, err, opstart.ErrInvalidAssignment)
}

func TestUpdateGlobal_RejectsInvalid(t *testing.T) {
	f := newTestFixture(t)
	m := f.mustOpen(opstart.CPUPII)

	err := m.UpdateGlobal(func(c *opstart.GlobalConfig) { c.HashTableSize = 1 })
	require.ErrorIs(t, err, opstart.ErrHashTableSizeOutOfRange)
	assert.Equal(t, opstart.DefaultGlobalConfig(), m.Global())
}

func TestScenarioD_CPUMismatch(t *testing.T) {
	f := newTestFixture(t)

	pii := f.mustOpen(opstart.CPUPII)
	require.NoError(t, pii.SetEnabled(0, true))
	require.NoError(t, pii.AssignEvent(0, "CPU_CLK_UNHALTED"))
	require.NoError(t, pii.Save(context.Background()))
	before := f.readFile(flatfile.GlobalFile)

	t.Run("abort", func(t *testing.T) {
		var asked *opstart.CPUMismatchError
		_, err := f.open(opstart.CPUAthlon, func(o *manager.Options) {
			o.OnMismatch = func(e *opstart.CPUMismatchError) manager.Decision {
				asked = e
				return manager.Abort
			}
		})
		require.ErrorIs(t, err, manager.ErrAborted)
		require.ErrorIs(t, err, opstart.ErrCPUMismatch)
		require.NotNil(t, asked)
		assert.Equal(t, opstart.CPUPII, asked.Stored)
		assert.Equal(t, opstart.CPUAthlon, asked.Detected)
		assert.Equal(t, before, f.readFile(flatfile.GlobalFile), "abort leaves disk untouched")
	})

	t.Run("nil decision aborts", func(t *testing.T) {
		_, err := f.open(opstart.CPUAthlon)
		require.ErrorIs(t, err, manager.ErrAborted)
	})

	t.Run("discard", func(t *testing.T) {
		m, err := f.open(opstart.CPUAthlon, func(o *manager.Options) {
			o.OnMismatch = func(*opstart.CPUMismatchError) manager.Decision { return manager.Discard }
		})
		require.NoError(t, err)
		assert.Len(t, m.Slots(), 4)
		for _, s := range m.Slots() {
			assert.Nil(t, s.Event)
		}
		assert.True(t, strings.HasPrefix(f.readFile(flatfile.GlobalFile), "3 0 none 0 none 0 none 0 none\n"))
	})
}

func TestOpen_UnknownStoredEventIsWarning(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	g := settings.Global{
		CPU:      opstart.CPUPII,
		Counters: []settings.SlotState{{Enabled: true, Event: "RETIRED_OPS"}, {}},
		Config:   opstart.DefaultGlobalConfig(),
	}
	require.NoError(t, f.backend().WriteGlobal(ctx, g))

	m := f.mustOpen(opstart.CPUPII)
	warnings := m.Warnings()
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "RETIRED_OPS")

	s := m.Slots()[0]
	assert.True(t, s.Enabled)
	assert.Nil(t, s.Event)
}

func TestOpen_CorruptSlotFallsBackToDefaults(t *testing.T) {
	f := newTestFixture(t)
	require.NoError(t, afero.WriteFile(f.fs, filepath.Join(settingsDir, flatfile.SlotFilePrefix+"1"), []byte("MUL lots\n"), 0o644))

	m := f.mustOpen(opstart.CPUPII)
	require.Len(t, m.Warnings(), 1)
	assert.Contains(t, m.Warnings()[0], "counter 1")
	assert.Equal(t, uint32(100000), m.Settings(1)["MUL"].Count)
}

func TestOpen_RequiresCatalogAndBackend(t *testing.T) {
	_, err := manager.Open(context.Background(), manager.Options{})
	require.Error(t, err)
}

func TestCommandsAreSerialised(t *testing.T) {
	f := newTestFixture(t)
	m := f.mustOpen(opstart.CPUAthlon)
	for i := range 4 {
		require.NoError(t, m.SetEnabled(i, true))
	}

	var wg sync.WaitGroup
	for i := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				_ = m.AssignEvent(i, "RETIRED_OPS")
				_ = m.SelectActive(i)
				m.Stage(opstart.EventSetting{Count: uint32(1000 + i), User: true})
				_ = m.Slots()
				_ = m.AssignEvent(i, "none")
			}
		}()
	}
	wg.Wait()

	for _, s := range m.Slots() {
		assert.Nil(t, s.Event)
	}
}
