package opstart

import (
	"strings"
	"time"
	"unicode"
)

// Hardware and daemon limits.
const (
	// MaxPerfCount is the largest count a counter can be programmed with.
	MaxPerfCount = 2147483647

	MinBufferSize     = 1024
	MaxBufferSize     = 1048576
	DefaultBufferSize = 32768

	MinHashTableSize     = 256
	MaxHashTableSize     = 262144
	DefaultHashTableSize = 65536

	MinPID  = 0
	MaxPID  = 32767
	MinPGRP = 0
	MaxPGRP = 32767
)

// EventSetting is the per counter, per event configuration.
type EventSetting struct {
	Count    uint32 `json:"count" yaml:"count"`
	UnitMask uint32 `json:"unitMask" yaml:"unitMask"`
	Kernel   bool   `json:"kernel" yaml:"kernel"`
	User     bool   `json:"user" yaml:"user"`
}

// DefaultEventSetting returns the setting a (slot, event) pair starts
// with. A CPU clock of cpuMHz/2000 interrupts per second is safe for
// every event and good for most; without a clock speed the event's
// minimum count scaled by 100 is used.
func DefaultEventSetting(d *EventDescriptor, cpuMHz uint64) EventSetting {
	s := EventSetting{Kernel: true, User: true}
	if cpuMHz != 0 {
		count := cpuMHz * 500
		if count > MaxPerfCount {
			count = MaxPerfCount
		}
		s.Count = uint32(count)
	} else {
		s.Count = d.MinCount * 100
	}
	if d.UnitMask != nil {
		s.UnitMask = d.UnitMask.Default
	}
	return s
}

// CounterState is a read-only view of one counter slot.
type CounterState struct {
	Index   int              `json:"index" yaml:"index"`
	Enabled bool             `json:"enabled" yaml:"enabled"`
	Event   *EventDescriptor `json:"event,omitempty" yaml:"event,omitempty"`
	Setting EventSetting     `json:"setting" yaml:"setting"`
}

// Assigned reports whether the slot is enabled and has an event.
func (c CounterState) Assigned() bool {
	return c.Enabled && c.Event != nil
}

// GlobalConfig holds the daemon wide settings. Field order here is the
// order in which they are persisted.
type GlobalConfig struct {
	KernelImage         string `json:"kernelImage" yaml:"kernelImage"`
	SystemMap           string `json:"systemMap" yaml:"systemMap"`
	BaseDir             string `json:"baseDir" yaml:"baseDir"`
	SamplesDir          string `json:"samplesDir" yaml:"samplesDir"`
	DeviceFile          string `json:"deviceFile" yaml:"deviceFile"`
	HashMapDevice       string `json:"hashMapDevice" yaml:"hashMapDevice"`
	LogFile             string `json:"logFile" yaml:"logFile"`
	BufferSize          uint32 `json:"bufferSize" yaml:"bufferSize"`
	HashTableSize       uint32 `json:"hashTableSize" yaml:"hashTableSize"`
	PIDFilter           uint32 `json:"pidFilter" yaml:"pidFilter"`
	PGRPFilter          uint32 `json:"pgrpFilter" yaml:"pgrpFilter"`
	IgnoreDaemonSamples bool   `json:"ignoreDaemonSamples" yaml:"ignoreDaemonSamples"`
	KernelOnly          bool   `json:"kernelOnly" yaml:"kernelOnly"`
	Verbose             bool   `json:"verbose" yaml:"verbose"`
}

// DefaultGlobalConfig returns the configuration written on first use.
func DefaultGlobalConfig() GlobalConfig {
	return GlobalConfig{
		KernelImage:         "/boot/vmlinux",
		SystemMap:           "/boot/System.map",
		BaseDir:             "/var/opd/",
		SamplesDir:          "samples",
		DeviceFile:          "opdev",
		HashMapDevice:       "ophashmapdev",
		LogFile:             "oprofiled.log",
		BufferSize:          DefaultBufferSize,
		HashTableSize:       DefaultHashTableSize,
		IgnoreDaemonSamples: true,
	}
}

// Normalize applies canonical formatting: a non-empty base directory
// always ends with a slash.
func (c *GlobalConfig) Normalize() {
	if c.BaseDir != "" && !strings.HasSuffix(c.BaseDir, "/") {
		c.BaseDir += "/"
	}
}

// Validate checks the configuration against the daemon limits.
func (c *GlobalConfig) Validate() error {
	if c.BufferSize < MinBufferSize || c.BufferSize > MaxBufferSize {
		return &ValidationError{
			Err:    ErrBufferSizeOutOfRange,
			Slot:   -1,
			Detail: rangeDetail(uint64(c.BufferSize), MinBufferSize, MaxBufferSize),
		}
	}
	if c.HashTableSize < MinHashTableSize || c.HashTableSize > MaxHashTableSize {
		return &ValidationError{
			Err:    ErrHashTableSizeOutOfRange,
			Slot:   -1,
			Detail: rangeDetail(uint64(c.HashTableSize), MinHashTableSize, MaxHashTableSize),
		}
	}
	if c.PIDFilter > MaxPID {
		return &ValidationError{
			Err:    ErrFilterOutOfRange,
			Slot:   -1,
			Detail: "pid " + rangeDetail(uint64(c.PIDFilter), MinPID, MaxPID),
		}
	}
	if c.PGRPFilter > MaxPGRP {
		return &ValidationError{
			Err:    ErrFilterOutOfRange,
			Slot:   -1,
			Detail: "pgrp " + rangeDetail(uint64(c.PGRPFilter), MinPGRP, MaxPGRP),
		}
	}
	return c.validatePaths()
}

// validatePaths rejects values the line based settings file cannot hold
// unchanged.
func (c *GlobalConfig) validatePaths() error {
	paths := []struct{ name, value string }{
		{"kernel image", c.KernelImage},
		{"system map", c.SystemMap},
		{"base dir", c.BaseDir},
		{"samples dir", c.SamplesDir},
		{"device file", c.DeviceFile},
		{"hash map device", c.HashMapDevice},
		{"log file", c.LogFile},
	}
	for _, p := range paths {
		var detail string
		switch {
		case strings.ContainsFunc(p.value, unicode.IsControl):
			detail = "contains a control character"
		case strings.TrimSpace(p.value) != p.value:
			detail = "has leading or trailing space"
		default:
			continue
		}
		return &ValidationError{Err: ErrInvalidPath, Slot: -1, Detail: p.name + " " + detail}
	}
	return nil
}

// DaemonStatus is a snapshot of the external profiling daemon.
type DaemonStatus struct {
	Running    bool          `json:"running" yaml:"running"`
	PID        int           `json:"pid,omitempty" yaml:"pid,omitempty"`
	Runtime    time.Duration `json:"runtime" yaml:"runtime"`
	Interrupts uint64        `json:"interrupts" yaml:"interrupts"`
}
