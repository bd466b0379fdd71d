package flatfile

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/frobware/go-opstart"
	"github.com/frobware/go-opstart/settings"
)

const noEvent = "none"

// Global file keys, in the order they are written.
const (
	keyKernelImage         = "kernel_filename"
	keySystemMap           = "map_filename"
	keyBaseDir             = "base_opd_dir"
	keySamplesDir          = "samples_files_dir"
	keyDeviceFile          = "device_file"
	keyHashMapDevice       = "hash_map_device"
	keyLogFile             = "daemon_log_file"
	keyBufferSize          = "buffer_size"
	keyHashTableSize       = "hash_table_size"
	keyPIDFilter           = "pid_filter"
	keyPGRPFilter          = "pgrp_filter"
	keyIgnoreDaemonSamples = "ignore_daemon_samples"
	keyKernelOnly          = "kernel_only"
	keyVerbose             = "verbose"
)

type field struct {
	key string
	get func(*opstart.GlobalConfig) string
	set func(*opstart.GlobalConfig, string) error
}

func stringField(key string, p func(*opstart.GlobalConfig) *string) field {
	return field{
		key: key,
		get: func(c *opstart.GlobalConfig) string { return *p(c) },
		set: func(c *opstart.GlobalConfig, v string) error { *p(c) = v; return nil },
	}
}

func uintField(key string, p func(*opstart.GlobalConfig) *uint32) field {
	return field{
		key: key,
		get: func(c *opstart.GlobalConfig) string { return strconv.FormatUint(uint64(*p(c)), 10) },
		set: func(c *opstart.GlobalConfig, v string) error {
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil {
				return err
			}
			*p(c) = uint32(n)
			return nil
		},
	}
}

func boolField(key string, p func(*opstart.GlobalConfig) *bool) field {
	return field{
		key: key,
		get: func(c *opstart.GlobalConfig) string { return formatBool(*p(c)) },
		set: func(c *opstart.GlobalConfig, v string) error {
			b, err := parseBool(v)
			if err != nil {
				return err
			}
			*p(c) = b
			return nil
		},
	}
}

var globalFields = []field{
	stringField(keyKernelImage, func(c *opstart.GlobalConfig) *string { return &c.KernelImage }),
	stringField(keySystemMap, func(c *opstart.GlobalConfig) *string { return &c.SystemMap }),
	stringField(keyBaseDir, func(c *opstart.GlobalConfig) *string { return &c.BaseDir }),
	stringField(keySamplesDir, func(c *opstart.GlobalConfig) *string { return &c.SamplesDir }),
	stringField(keyDeviceFile, func(c *opstart.GlobalConfig) *string { return &c.DeviceFile }),
	stringField(keyHashMapDevice, func(c *opstart.GlobalConfig) *string { return &c.HashMapDevice }),
	stringField(keyLogFile, func(c *opstart.GlobalConfig) *string { return &c.LogFile }),
	uintField(keyBufferSize, func(c *opstart.GlobalConfig) *uint32 { return &c.BufferSize }),
	uintField(keyHashTableSize, func(c *opstart.GlobalConfig) *uint32 { return &c.HashTableSize }),
	uintField(keyPIDFilter, func(c *opstart.GlobalConfig) *uint32 { return &c.PIDFilter }),
	uintField(keyPGRPFilter, func(c *opstart.GlobalConfig) *uint32 { return &c.PGRPFilter }),
	boolField(keyIgnoreDaemonSamples, func(c *opstart.GlobalConfig) *bool { return &c.IgnoreDaemonSamples }),
	boolField(keyKernelOnly, func(c *opstart.GlobalConfig) *bool { return &c.KernelOnly }),
	boolField(keyVerbose, func(c *opstart.GlobalConfig) *bool { return &c.Verbose }),
}

// encodeGlobal writes the header line
//
//	<cpu> <enabled0> <event0> <enabled1> <event1> ...
//
// followed by one key=value line per configuration field.
func encodeGlobal(w io.Writer, g settings.Global) error {
	var b strings.Builder
	b.WriteString(strconv.Itoa(int(g.CPU)))
	for _, s := range g.Counters {
		ev := s.Event
		if ev == "" {
			ev = noEvent
		}
		fmt.Fprintf(&b, " %s %s", formatBool(s.Enabled), ev)
	}
	b.WriteByte('\n')

	for _, f := range globalFields {
		v := f.get(&g.Config)
		if strings.ContainsAny(v, "\r\n") || strings.TrimSpace(v) != v {
			return fmt.Errorf("%s: value %q cannot be stored on one line", f.key, v)
		}
		fmt.Fprintf(&b, "%s=%s\n", f.key, v)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// decodeGlobal parses a global file. Keys that are absent keep their
// default value; unknown keys are returned so the caller can report
// them.
func decodeGlobal(r io.Reader) (settings.Global, []string, error) {
	g := settings.Global{Config: opstart.DefaultGlobalConfig()}
	sc := bufio.NewScanner(r)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return g, nil, err
		}
		return g, nil, fmt.Errorf("missing header line")
	}

	fields := strings.Fields(sc.Text())
	if len(fields) == 0 {
		return g, nil, fmt.Errorf("line 1: empty header")
	}
	cpu, err := strconv.Atoi(fields[0])
	if err != nil {
		return g, nil, fmt.Errorf("line 1: cpu type: %w", err)
	}
	g.CPU = opstart.CPUType(cpu)

	pairs := fields[1:]
	if len(pairs)%2 != 0 {
		return g, nil, fmt.Errorf("line 1: unpaired counter entry %q", pairs[len(pairs)-1])
	}
	for i := 0; i < len(pairs); i += 2 {
		enabled, err := parseBool(pairs[i])
		if err != nil {
			return g, nil, fmt.Errorf("line 1: counter %d enabled flag: %w", i/2, err)
		}
		ev := pairs[i+1]
		if ev == noEvent {
			ev = ""
		}
		g.Counters = append(g.Counters, settings.SlotState{Enabled: enabled, Event: ev})
	}

	var unknown []string
	line := 1
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		key, value, ok := strings.Cut(text, "=")
		if !ok {
			return g, unknown, fmt.Errorf("line %d: expected key=value, got %q", line, text)
		}
		key = strings.TrimSpace(key)
		idx := slices.IndexFunc(globalFields, func(f field) bool { return f.key == key })
		if idx < 0 {
			unknown = append(unknown, key)
			continue
		}
		if err := globalFields[idx].set(&g.Config, strings.TrimSpace(value)); err != nil {
			return g, unknown, fmt.Errorf("line %d: %s: %w", line, key, err)
		}
	}
	return g, unknown, sc.Err()
}

// encodeSlot writes one "NAME COUNT UMASK KERNEL USER" line per event,
// sorted by name.
func encodeSlot(w io.Writer, m map[string]opstart.EventSetting) error {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	slices.Sort(names)

	var b strings.Builder
	for _, name := range names {
		s := m[name]
		fmt.Fprintf(&b, "%s %d %d %s %s\n", name, s.Count, s.UnitMask, formatBool(s.Kernel), formatBool(s.User))
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func decodeSlot(r io.Reader) (map[string]opstart.EventSetting, error) {
	m := make(map[string]opstart.EventSetting)
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 5 {
			return m, fmt.Errorf("line %d: expected 5 fields, got %d", line, len(fields))
		}

		count, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return m, fmt.Errorf("line %d: count: %w", line, err)
		}
		umask, err := strconv.ParseUint(fields[2], 10, 32)
		if err != nil {
			return m, fmt.Errorf("line %d: unit mask: %w", line, err)
		}
		kernel, err := parseBool(fields[3])
		if err != nil {
			return m, fmt.Errorf("line %d: kernel flag: %w", line, err)
		}
		user, err := parseBool(fields[4])
		if err != nil {
			return m, fmt.Errorf("line %d: user flag: %w", line, err)
		}

		m[fields[0]] = opstart.EventSetting{
			Count:    uint32(count),
			UnitMask: uint32(umask),
			Kernel:   kernel,
			User:     user,
		}
	}
	return m, sc.Err()
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func parseBool(s string) (bool, error) {
	switch s {
	case "1":
		return true, nil
	case "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid flag %q, want 0 or 1", s)
}
