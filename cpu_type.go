package opstart

import (
	"fmt"
	"strconv"
	"strings"
)

// CPUType identifies a processor generation. The numeric value is the
// tag written to the global settings file, so values must never be
// renumbered.
type CPUType int

const (
	CPUPPro   CPUType = 0
	CPUPII    CPUType = 1
	CPUPIII   CPUType = 2
	CPUAthlon CPUType = 3
	// CPURTC is the real-time-clock fallback. It has no programmable
	// counters and cannot be configured here.
	CPURTC    CPUType = 4
	CPUHammer CPUType = 5
)

// MaxCounters is the largest number of counter slots on any supported CPU.
const MaxCounters = 4

// String returns the string representation of the CPU type.
func (c CPUType) String() string {
	switch c {
	case CPUPPro:
		return "ppro"
	case CPUPII:
		return "pii"
	case CPUPIII:
		return "piii"
	case CPUAthlon:
		return "athlon"
	case CPURTC:
		return "rtc"
	case CPUHammer:
		return "hammer"
	default:
		return fmt.Sprintf("CPUType(%d)", int(c))
	}
}

// Description returns a human readable processor name.
func (c CPUType) Description() string {
	switch c {
	case CPUPPro:
		return "Intel Pentium Pro"
	case CPUPII:
		return "Intel Pentium II"
	case CPUPIII:
		return "Intel Pentium III"
	case CPUAthlon:
		return "AMD Athlon"
	case CPURTC:
		return "RTC timer"
	case CPUHammer:
		return "AMD Hammer"
	default:
		return c.String()
	}
}

// Counters returns the number of hardware counter slots for the CPU
// type, or 0 if the type has no programmable counters.
func (c CPUType) Counters() int {
	switch c {
	case CPUAthlon, CPUHammer:
		return 4
	case CPUPPro, CPUPII, CPUPIII:
		return 2
	default:
		return 0
	}
}

// Supported reports whether the CPU type has programmable counters.
func (c CPUType) Supported() bool {
	return c.Counters() > 0
}

// ParseCPUType parses a CPU type name (e.g. "athlon") or its numeric
// tag.
func ParseCPUType(s string) (CPUType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "ppro":
		return CPUPPro, nil
	case "pii":
		return CPUPII, nil
	case "piii":
		return CPUPIII, nil
	case "athlon":
		return CPUAthlon, nil
	case "rtc":
		return CPURTC, nil
	case "hammer":
		return CPUHammer, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("unknown cpu type %q", s)
	}
	c := CPUType(n)
	if c < CPUPPro || c > CPUHammer {
		return 0, fmt.Errorf("cpu type %d out of range", n)
	}
	return c, nil
}
