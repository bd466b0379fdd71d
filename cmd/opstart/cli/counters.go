package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/frobware/go-opstart"
	"github.com/frobware/go-opstart/unitmask"
)

// ShowCmd prints the counter assignments.
type ShowCmd struct {
	OutputFlags
}

type showResult struct {
	CPU      string                 `json:"cpu" yaml:"cpu"`
	Active   int                    `json:"active" yaml:"active"`
	Counters []opstart.CounterState `json:"counters" yaml:"counters"`
}

// Run executes the show command.
func (c *ShowCmd) Run(cli *CLI, ctx context.Context) error {
	rt, err := cli.NewRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	m := rt.Manager
	res := showResult{
		CPU:      m.Catalog().CPU().String(),
		Active:   m.Active(),
		Counters: m.Slots(),
	}
	output, err := format(res, &c.OutputFlags, func() string {
		return formatCountersTable(m.Catalog().CPU(), res.Active, res.Counters)
	})
	if err != nil {
		return err
	}
	return cli.PrintOut(output)
}

// AssignCmd assigns an event to a counter and saves.
type AssignCmd struct {
	Counter int    `arg:"" help:"Counter slot."`
	Event   string `arg:"" help:"Event name, or 'none' to clear."`
}

// Run executes the assign command.
func (c *AssignCmd) Run(cli *CLI, ctx context.Context) error {
	rt, err := cli.NewRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	m := rt.Manager
	if c.Event != "none" && c.Event != "" {
		if err := m.SetEnabled(c.Counter, true); err != nil {
			return err
		}
	}
	if err := m.AssignEvent(c.Counter, c.Event); err != nil {
		return err
	}
	return m.Save(ctx)
}

// EnableCmd enables a counter.
type EnableCmd struct {
	Counter int `arg:"" help:"Counter slot."`
}

// Run executes the enable command.
func (c *EnableCmd) Run(cli *CLI, ctx context.Context) error {
	return setEnabled(ctx, cli, c.Counter, true)
}

// DisableCmd disables a counter, which also clears its event.
type DisableCmd struct {
	Counter int `arg:"" help:"Counter slot."`
}

// Run executes the disable command.
func (c *DisableCmd) Run(cli *CLI, ctx context.Context) error {
	return setEnabled(ctx, cli, c.Counter, false)
}

func setEnabled(ctx context.Context, cli *CLI, slot int, enabled bool) error {
	rt, err := cli.NewRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.Manager.SetEnabled(slot, enabled); err != nil {
		return err
	}
	return rt.Manager.Save(ctx)
}

// EditCmd changes the setting of the event assigned to a counter.
type EditCmd struct {
	Counter  int    `arg:"" help:"Counter slot."`
	Count    uint32 `help:"Events between samples."`
	Kernel   bool   `xor:"kernel" help:"Count events in kernel mode."`
	NoKernel bool   `xor:"kernel" help:"Do not count events in kernel mode."`
	User     bool   `xor:"user" help:"Count events in user mode."`
	NoUser   bool   `xor:"user" help:"Do not count events in user mode."`
	UnitMask string `name:"unit-mask" xor:"umask" help:"Raw unit mask value (e.g. 0x0f)."`
	Select   []int  `xor:"umask" help:"Unit mask entries to select, by index (see 'opstart events'). Selecting only the final entry of a bitmask selects every bit."`
}

// Run executes the edit command.
func (c *EditCmd) Run(cli *CLI, ctx context.Context) error {
	rt, err := cli.NewRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	err = rt.Manager.Edit(c.Counter, func(d *opstart.EventDescriptor, s *opstart.EventSetting) error {
		return c.apply(d, s)
	})
	if err != nil {
		return err
	}
	return rt.Manager.Save(ctx)
}

func (c *EditCmd) apply(d *opstart.EventDescriptor, s *opstart.EventSetting) error {
	if c.Count != 0 {
		if c.Count < d.MinCount || c.Count > opstart.MaxPerfCount {
			return &opstart.ValidationError{
				Err:    opstart.ErrCountOutOfRange,
				Slot:   c.Counter,
				Event:  d.Name,
				Detail: fmt.Sprintf("%d must be in [%d, %d]", c.Count, d.MinCount, opstart.MaxPerfCount),
			}
		}
		s.Count = c.Count
	}

	switch {
	case c.Kernel:
		s.Kernel = true
	case c.NoKernel:
		s.Kernel = false
	}
	switch {
	case c.User:
		s.User = true
	case c.NoUser:
		s.User = false
	}

	switch {
	case c.UnitMask != "":
		if !unitmask.Selectable(d.UnitMask) {
			return fmt.Errorf("%w: %s has no selectable unit mask", opstart.ErrInvalidUnitMask, d.Name)
		}
		v, err := strconv.ParseUint(c.UnitMask, 0, 32)
		if err != nil {
			return fmt.Errorf("%w: %q: %w", opstart.ErrInvalidUnitMask, c.UnitMask, err)
		}
		if _, err := unitmask.Effective(d.UnitMask, uint32(v)); err != nil {
			return fmt.Errorf("%w: %s: %w", opstart.ErrInvalidUnitMask, d.Name, err)
		}
		if v == 0 && d.UnitMask.Mode == opstart.UnitMaskBitmask {
			return fmt.Errorf("%w: %s needs at least one unit mask bit", opstart.ErrInvalidUnitMask, d.Name)
		}
		s.UnitMask = uint32(v)
	case len(c.Select) > 0:
		if !unitmask.Selectable(d.UnitMask) {
			return fmt.Errorf("%w: %s has no selectable unit mask", opstart.ErrInvalidUnitMask, d.Name)
		}
		selected := make([]bool, len(d.UnitMask.Entries))
		for _, i := range c.Select {
			if i < 0 || i >= len(selected) {
				return fmt.Errorf("%w: entry %d out of range for %s", opstart.ErrInvalidUnitMask, i, d.Name)
			}
			selected[i] = true
		}
		if onlyFinal(d.UnitMask, selected) {
			for i := range selected {
				selected[i] = true
			}
		}
		s.UnitMask = unitmask.Resolve(d.UnitMask, selected)
	}
	return nil
}

// onlyFinal reports whether a bitmask selection holds just the final
// "all" entry, which resolves to no bits on its own.
func onlyFinal(um *opstart.UnitMask, selected []bool) bool {
	if um.Mode != opstart.UnitMaskBitmask || len(selected) < 2 {
		return false
	}
	last := len(selected) - 1
	for _, sel := range selected[:last] {
		if sel {
			return false
		}
	}
	return selected[last]
}
