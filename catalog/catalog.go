// Package catalog provides the hardware events available on a CPU type.
package catalog

import (
	"errors"
	"fmt"

	"github.com/frobware/go-opstart"
	"github.com/frobware/go-opstart/unitmask"
)

// ErrInvalidCatalog is returned by Build when the event table violates
// an integrity rule.
var ErrInvalidCatalog = errors.New("invalid event catalog")

// Catalog is the ordered, immutable set of events for one CPU type.
type Catalog struct {
	cpu      opstart.CPUType
	counters int
	events   []*opstart.EventDescriptor
	byName   map[string]*opstart.EventDescriptor
}

// Build returns the catalog of the static table for cpu.
func Build(cpu opstart.CPUType) (*Catalog, error) {
	return BuildFrom(Table, cpu)
}

// BuildFrom filters table by cpu, preserving table order. Unit masks
// are cloned so that each descriptor owns its own.
func BuildFrom(table []Entry, cpu opstart.CPUType) (*Catalog, error) {
	if !cpu.Supported() {
		return nil, fmt.Errorf("%w: cpu type %s has no performance counters", ErrInvalidCatalog, cpu)
	}

	c := &Catalog{
		cpu:      cpu,
		counters: cpu.Counters(),
		byName:   make(map[string]*opstart.EventDescriptor),
	}

	bit := uint32(1) << uint(cpu)
	for _, e := range table {
		if e.CPUMask&bit == 0 {
			continue
		}
		if e.CounterMask == 0 {
			return nil, fmt.Errorf("%w: event %s has an empty counter mask", ErrInvalidCatalog, e.Name)
		}
		if err := unitmask.Validate(e.UnitMask); err != nil {
			return nil, fmt.Errorf("%w: event %s: %w", ErrInvalidCatalog, e.Name, err)
		}
		if _, dup := c.byName[e.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate event %s", ErrInvalidCatalog, e.Name)
		}

		d := &opstart.EventDescriptor{
			Name:        e.Name,
			Value:       e.Value,
			CounterMask: e.CounterMask,
			UnitMask:    e.UnitMask.Clone(),
			MinCount:    e.MinCount,
			Help:        e.Help,
		}
		c.events = append(c.events, d)
		c.byName[d.Name] = d
	}

	return c, nil
}

// CPU returns the CPU type the catalog was built for.
func (c *Catalog) CPU() opstart.CPUType { return c.cpu }

// Counters returns the number of counter slots on the CPU.
func (c *Catalog) Counters() int { return c.counters }

// Events returns every event in table order.
func (c *Catalog) Events() []*opstart.EventDescriptor {
	out := make([]*opstart.EventDescriptor, len(c.events))
	copy(out, c.events)
	return out
}

// Locate returns the descriptor named name.
func (c *Catalog) Locate(name string) (*opstart.EventDescriptor, error) {
	d, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", opstart.ErrEventNotFound, name)
	}
	return d, nil
}

// ForCounter returns the events that may be programmed on slot, in table
// order.
func (c *Catalog) ForCounter(slot int) []*opstart.EventDescriptor {
	if slot < 0 || slot >= c.counters {
		return nil
	}
	var out []*opstart.EventDescriptor
	for _, d := range c.events {
		if d.AllowedOn(slot) {
			out = append(out, d)
		}
	}
	return out
}
