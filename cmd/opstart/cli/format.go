package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
	"k8s.io/client-go/util/jsonpath"

	"github.com/frobware/go-opstart"
	"github.com/frobware/go-opstart/unitmask"
)

// format renders v according to flags. table produces the table form.
func format(v any, flags *OutputFlags, table func() string) (string, error) {
	switch flags.Format() {
	case OutputFormatJSON:
		return formatJSON(v)
	case OutputFormatYAML:
		return formatYAML(v)
	case OutputFormatJSONPath:
		return formatJSONPath(v, flags.JSONPathExpr())
	default:
		return table(), nil
	}
}

func formatJSON(v any) (string, error) {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}
	return string(output) + "\n", nil
}

func formatYAML(v any) (string, error) {
	output, err := yaml.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}
	return string(output), nil
}

func formatJSONPath(v any, expr string) (string, error) {
	jp := jsonpath.New("output")
	if err := jp.Parse(expr); err != nil {
		return "", fmt.Errorf("invalid jsonpath expression %q: %w", expr, err)
	}

	// jsonpath walks generic values, not tagged structs.
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal: %w", err)
	}
	var data any
	if err := json.Unmarshal(jsonBytes, &data); err != nil {
		return "", fmt.Errorf("failed to unmarshal: %w", err)
	}

	var buf bytes.Buffer
	if err := jp.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("jsonpath execution failed: %w", err)
	}
	return buf.String() + "\n", nil
}

func formatEventsTable(events []*opstart.EventDescriptor) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-28s %-6s %-9s %-10s %s\n", "EVENT", "VALUE", "COUNTERS", "MIN-COUNT", "DESCRIPTION")
	for _, d := range events {
		fmt.Fprintf(&b, "%-28s 0x%02x   %-9s %-10d %s\n", d.Name, d.Value, counterList(d.CounterMask), d.MinCount, d.Help)
		if d.UnitMask == nil || !unitmask.Selectable(d.UnitMask) {
			continue
		}
		fmt.Fprintf(&b, "  unit mask (%s, default 0x%02x):\n", d.UnitMask.Mode, d.UnitMask.Default)
		for i, e := range d.UnitMask.Entries {
			fmt.Fprintf(&b, "    [%d] 0x%02x %s\n", i, e.Value, e.Description)
		}
	}
	return b.String()
}

func counterList(mask uint32) string {
	var parts []string
	for i := 0; i < opstart.MaxCounters; i++ {
		if mask&(1<<uint(i)) != 0 {
			parts = append(parts, fmt.Sprint(i))
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ",")
}

func formatCountersTable(cpu opstart.CPUType, active int, states []opstart.CounterState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CPU: %s (%s)\n\n", cpu.Description(), cpu)
	fmt.Fprintf(&b, "%-3s %-8s %-28s %-11s %-7s %-6s %s\n", "", "ENABLED", "EVENT", "COUNT", "UMASK", "KERNEL", "USER")
	for _, st := range states {
		marker := fmt.Sprint(st.Index)
		if st.Index == active {
			marker += "*"
		}
		if st.Event == nil {
			fmt.Fprintf(&b, "%-3s %-8t %-28s %-11s %-7s %-6s %s\n", marker, st.Enabled, "none", "-", "-", "-", "-")
			continue
		}
		s := st.Setting
		fmt.Fprintf(&b, "%-3s %-8t %-28s %-11d 0x%-5x %-6t %t\n", marker, st.Enabled, st.Event.Name, s.Count, s.UnitMask, s.Kernel, s.User)
	}
	return b.String()
}

func formatGlobalTable(c opstart.GlobalConfig) string {
	var b strings.Builder
	row := func(k string, v any) { fmt.Fprintf(&b, "%-23s %v\n", k+":", v) }
	row("kernel-image", c.KernelImage)
	row("system-map", c.SystemMap)
	row("base-dir", c.BaseDir)
	row("samples-dir", c.SamplesDir)
	row("device-file", c.DeviceFile)
	row("hash-map-device", c.HashMapDevice)
	row("log-file", c.LogFile)
	row("buffer-size", c.BufferSize)
	row("hash-table-size", c.HashTableSize)
	row("pid-filter", c.PIDFilter)
	row("pgrp-filter", c.PGRPFilter)
	row("ignore-daemon-samples", c.IgnoreDaemonSamples)
	row("kernel-only", c.KernelOnly)
	row("verbose", c.Verbose)
	return b.String()
}
