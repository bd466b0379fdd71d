// Package unitmask converts between an event's unit mask value and the
// per-entry selections an operator toggles.
//
// The same rules are used when saving (Resolve) and when loading or
// displaying (Selections), so a stored value reproduces the selection
// that produced it. Two different selections may yield the same value;
// the inverse then reports only one of them.
package unitmask

import (
	"errors"
	"fmt"

	"github.com/frobware/go-opstart"
)

// MaxEntries is the largest number of selectable entries per mask.
const MaxEntries = 7

var (
	// ErrInvalid is returned by Validate for malformed unit masks.
	ErrInvalid = errors.New("invalid unit mask")

	// ErrUnreachable is returned by Effective for a value no selection
	// of the mask's entries produces.
	ErrUnreachable = errors.New("unit mask value not reachable from any selection")
)

// Resolve computes the mask value for the given selections. selected[i]
// corresponds to um.Entries[i]; missing trailing selections are false.
func Resolve(um *opstart.UnitMask, selected []bool) uint32 {
	if um == nil {
		return 0
	}

	switch um.Mode {
	case opstart.UnitMaskMandatory:
		return um.Default

	case opstart.UnitMaskExclusive:
		var mask uint32
		for i, e := range um.Entries {
			if isSet(selected, i) {
				mask = e.Value
			}
		}
		return mask

	case opstart.UnitMaskBitmask:
		var mask uint32
		// The final entry stands for "all bits" and contributes
		// nothing on its own.
		for i := 0; i < len(um.Entries)-1; i++ {
			if isSet(selected, i) {
				mask |= um.Entries[i].Value
			}
		}
		return mask
	}

	return 0
}

// Selections reconstructs the per-entry selections from a mask value.
// Mandatory masks have no selection surface and report none selected.
func Selections(um *opstart.UnitMask, mask uint32) []bool {
	if um == nil {
		return nil
	}

	selected := make([]bool, len(um.Entries))
	switch um.Mode {
	case opstart.UnitMaskExclusive:
		for i, e := range um.Entries {
			selected[i] = mask == e.Value
		}

	case opstart.UnitMaskBitmask:
		last := len(um.Entries) - 1
		for i, e := range um.Entries {
			if i == last {
				selected[i] = mask == e.Value
			} else {
				selected[i] = mask&e.Value != 0
			}
		}
	}
	return selected
}

// Effective returns the value a stored mask launches with. Mandatory
// masks always launch with their default. Any other stored value must
// be the Resolve of its own Selections.
func Effective(um *opstart.UnitMask, stored uint32) (uint32, error) {
	if um == nil {
		return 0, nil
	}
	if um.Mode == opstart.UnitMaskMandatory {
		return um.Default, nil
	}
	if v := Resolve(um, Selections(um, stored)); v != stored {
		return 0, fmt.Errorf("%w: 0x%x", ErrUnreachable, stored)
	}
	return stored, nil
}

// Validate checks the structural invariants the resolve/inverse pair
// depends on. For bitmask masks the final entry must be exactly the OR
// of the preceding entries, otherwise selecting every bit individually
// would not be recognised as "all".
func Validate(um *opstart.UnitMask) error {
	if um == nil {
		return nil
	}

	switch um.Mode {
	case opstart.UnitMaskMandatory:
		return nil

	case opstart.UnitMaskExclusive, opstart.UnitMaskBitmask:
		if len(um.Entries) == 0 {
			return fmt.Errorf("%w: %s mask has no entries", ErrInvalid, um.Mode)
		}
		if len(um.Entries) > MaxEntries {
			return fmt.Errorf("%w: %d entries exceeds maximum of %d", ErrInvalid, len(um.Entries), MaxEntries)
		}

	default:
		return fmt.Errorf("%w: unknown mode %d", ErrInvalid, int(um.Mode))
	}

	if um.Mode != opstart.UnitMaskBitmask {
		return nil
	}

	last := len(um.Entries) - 1
	var all uint32
	for _, e := range um.Entries[:last] {
		if e.Value == 0 {
			return fmt.Errorf("%w: bitmask entry %q has no bits", ErrInvalid, e.Description)
		}
		all |= e.Value
	}
	if last > 0 && um.Entries[last].Value != all {
		return fmt.Errorf("%w: final entry 0x%x is not the union 0x%x of preceding entries",
			ErrInvalid, um.Entries[last].Value, all)
	}
	return nil
}

// Selectable reports whether the mask offers the operator any choice.
func Selectable(um *opstart.UnitMask) bool {
	return um != nil && um.Mode != opstart.UnitMaskMandatory
}

func isSet(selected []bool, i int) bool {
	return i < len(selected) && selected[i]
}
