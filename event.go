package opstart

import "fmt"

// UnitMaskMode describes how the entries of a unit mask combine.
type UnitMaskMode int

const (
	// UnitMaskMandatory masks are fixed; the operator never sees them.
	UnitMaskMandatory UnitMaskMode = iota
	// UnitMaskExclusive masks select exactly one entry.
	UnitMaskExclusive
	// UnitMaskBitmask masks OR any subset of entries together. The
	// final entry conventionally holds the value of all bits.
	UnitMaskBitmask
)

// String returns the string representation of the unit mask mode.
func (m UnitMaskMode) String() string {
	switch m {
	case UnitMaskMandatory:
		return "mandatory"
	case UnitMaskExclusive:
		return "exclusive"
	case UnitMaskBitmask:
		return "bitmask"
	default:
		return fmt.Sprintf("UnitMaskMode(%d)", int(m))
	}
}

// UnitMaskEntry is one selectable sub-condition of an event.
type UnitMaskEntry struct {
	Value       uint32 `json:"value" yaml:"value"`
	Description string `json:"description" yaml:"description"`
}

// UnitMask refines what an event counts.
type UnitMask struct {
	Mode    UnitMaskMode    `json:"mode" yaml:"mode"`
	Entries []UnitMaskEntry `json:"entries,omitempty" yaml:"entries,omitempty"`
	Default uint32          `json:"default" yaml:"default"`
}

// Clone returns a deep copy of the unit mask.
func (u *UnitMask) Clone() *UnitMask {
	if u == nil {
		return nil
	}
	c := *u
	c.Entries = append([]UnitMaskEntry(nil), u.Entries...)
	return &c
}

// EventDescriptor describes a hardware event the CPU can count. It is
// owned by the catalog and never mutated after construction.
type EventDescriptor struct {
	Name string `json:"name" yaml:"name"`
	// Value is the hardware event number.
	Value uint8 `json:"value" yaml:"value"`
	// CounterMask has bit N set when the event may run on counter N.
	CounterMask uint32    `json:"counterMask" yaml:"counterMask"`
	UnitMask    *UnitMask `json:"unitMask,omitempty" yaml:"unitMask,omitempty"`
	MinCount    uint32    `json:"minCount" yaml:"minCount"`
	Help        string    `json:"help" yaml:"help"`
}

// AllowedOn reports whether the event may be assigned to counter slot.
func (d *EventDescriptor) AllowedOn(slot int) bool {
	if slot < 0 || slot >= 32 {
		return false
	}
	return d.CounterMask&(1<<uint(slot)) != 0
}
