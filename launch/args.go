// Package launch validates a counter assignment, derives the daemon
// command line from it, and drives the daemon control commands.
package launch

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"

	"github.com/frobware/go-opstart"
	"github.com/frobware/go-opstart/unitmask"
)

// Validate checks every enabled, assigned slot and then the global
// configuration. The first failure is returned as a
// *opstart.ValidationError.
func Validate(states []opstart.CounterState, cfg opstart.GlobalConfig) error {
	assigned := 0
	for _, s := range states {
		if s.Assigned() {
			assigned++
		}
	}
	if assigned == 0 {
		return &opstart.ValidationError{Err: opstart.ErrNoCountersEnabled, Slot: -1}
	}

	for _, s := range states {
		if !s.Assigned() {
			continue
		}
		d, set := s.Event, s.Setting

		if !set.Kernel && !set.User {
			return &opstart.ValidationError{Err: opstart.ErrNoProfilingDomain, Slot: s.Index, Event: d.Name}
		}
		if set.Count < d.MinCount || set.Count > opstart.MaxPerfCount {
			return &opstart.ValidationError{
				Err:    opstart.ErrCountOutOfRange,
				Slot:   s.Index,
				Event:  d.Name,
				Detail: fmt.Sprintf("%d must be in [%d, %d]", set.Count, d.MinCount, opstart.MaxPerfCount),
			}
		}
		if d.UnitMask != nil && d.UnitMask.Mode == opstart.UnitMaskBitmask && set.UnitMask == 0 {
			return &opstart.ValidationError{
				Err:    opstart.ErrInvalidUnitMask,
				Slot:   s.Index,
				Event:  d.Name,
				Detail: "no unit mask bits selected",
			}
		}
		if _, err := unitmask.Effective(d.UnitMask, set.UnitMask); err != nil {
			return &opstart.ValidationError{
				Err:    opstart.ErrInvalidUnitMask,
				Slot:   s.Index,
				Event:  d.Name,
				Detail: err.Error(),
			}
		}
	}

	return cfg.Validate()
}

// BuildArgs validates the assignment and returns the daemon arguments:
// one block per enabled slot in ascending slot order, then the global
// options.
func BuildArgs(states []opstart.CounterState, cfg opstart.GlobalConfig) ([]string, error) {
	cfg.Normalize()
	if err := Validate(states, cfg); err != nil {
		return nil, err
	}

	var args []string
	for _, s := range sortedAssigned(states) {
		ctr := "--ctr" + strconv.Itoa(s.Index)
		args = append(args,
			ctr+"-event="+s.Event.Name,
			ctr+"-count="+strconv.FormatUint(uint64(s.Setting.Count), 10),
			ctr+"-kernel="+flag(s.Setting.Kernel),
			ctr+"-user="+flag(s.Setting.User),
		)
		if s.Event.UnitMask != nil {
			// Checked by Validate.
			mask, _ := unitmask.Effective(s.Event.UnitMask, s.Setting.UnitMask)
			args = append(args, ctr+"-unit-mask="+strconv.FormatUint(uint64(mask), 10))
		}
	}

	base := cfg.BaseDir
	args = append(args,
		"--map-file="+cfg.SystemMap,
		"--vmlinux="+cfg.KernelImage,
		"--kernel-only="+flag(cfg.KernelOnly),
		"--pid-filter="+strconv.FormatUint(uint64(cfg.PIDFilter), 10),
		"--pgrp-filter="+strconv.FormatUint(uint64(cfg.PGRPFilter), 10),
		"--base-dir="+base,
		"--samples-dir="+base+cfg.SamplesDir,
		"--device-file="+base+cfg.DeviceFile,
		"--hash-map-device-file="+base+cfg.HashMapDevice,
		"--log-file="+base+cfg.LogFile,
		"--ignore-myself="+flag(cfg.IgnoreDaemonSamples),
		"--buffer-size="+strconv.FormatUint(uint64(cfg.BufferSize), 10),
		"--hash-table-size="+strconv.FormatUint(uint64(cfg.HashTableSize), 10),
	)
	if cfg.Verbose {
		args = append(args, "--verbose")
	}
	return args, nil
}

// sortedAssigned returns the enabled, assigned slots ordered by index.
func sortedAssigned(states []opstart.CounterState) []opstart.CounterState {
	out := slices.DeleteFunc(slices.Clone(states), func(s opstart.CounterState) bool {
		return !s.Assigned()
	})
	slices.SortStableFunc(out, func(a, b opstart.CounterState) int {
		return cmp.Compare(a.Index, b.Index)
	})
	return out
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
