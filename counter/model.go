// Package counter tracks which event is assigned to each hardware
// counter slot and the per-event settings of every slot.
//
// The model has no locking of its own; callers serialise access.
package counter

import (
	"fmt"
	"maps"

	"github.com/frobware/go-opstart"
	"github.com/frobware/go-opstart/catalog"
)

// Seeder returns the initial setting of an event on a slot the first
// time it is looked up.
type Seeder func(slot int, d *opstart.EventDescriptor) opstart.EventSetting

type slot struct {
	enabled  bool
	event    *opstart.EventDescriptor
	settings map[string]opstart.EventSetting
}

// Model is the counter assignment state for one CPU.
type Model struct {
	cat     *catalog.Catalog
	seed    Seeder
	slots   []slot
	active  int
	pending opstart.EventSetting
}

// New returns a model with every slot disabled and no event assigned.
// A nil seed uses opstart.DefaultEventSetting with an unknown clock.
func New(cat *catalog.Catalog, seed Seeder) *Model {
	if seed == nil {
		seed = func(_ int, d *opstart.EventDescriptor) opstart.EventSetting {
			return opstart.DefaultEventSetting(d, 0)
		}
	}
	m := &Model{
		cat:   cat,
		seed:  seed,
		slots: make([]slot, cat.Counters()),
	}
	for i := range m.slots {
		m.slots[i].settings = make(map[string]opstart.EventSetting)
	}
	return m
}

// Catalog returns the catalog the model was built from.
func (m *Model) Catalog() *catalog.Catalog { return m.cat }

// Load restores persisted state for a slot. eventName may be empty or
// "none". Settings are kept as given, including entries for events the
// catalog does not know. An unknown or ineligible event leaves the slot
// without an event and is reported as an error; the settings are still
// restored.
func (m *Model) Load(i int, enabled bool, eventName string, settings map[string]opstart.EventSetting) error {
	if err := m.check(i); err != nil {
		return err
	}

	s := &m.slots[i]
	s.enabled = enabled
	s.event = nil
	s.settings = make(map[string]opstart.EventSetting, len(settings))
	maps.Copy(s.settings, settings)

	var err error
	if enabled && eventName != "" && eventName != "none" {
		var d *opstart.EventDescriptor
		d, err = m.cat.Locate(eventName)
		switch {
		case err != nil:
		case !d.AllowedOn(i):
			err = fmt.Errorf("%w: event %s cannot run on counter %d", opstart.ErrInvalidAssignment, d.Name, i)
		default:
			s.event = d
		}
	}

	if i == m.active {
		m.pending = m.current(i)
	}
	return err
}

// SelectActive makes slot i the active slot. The pending edit of the
// previously active slot is committed first.
func (m *Model) SelectActive(i int) error {
	if err := m.check(i); err != nil {
		return err
	}
	m.Flush()
	m.active = i
	m.pending = m.current(i)
	return nil
}

// AssignEvent assigns d to slot i, or clears the slot when d is nil.
func (m *Model) AssignEvent(i int, d *opstart.EventDescriptor) error {
	if err := m.check(i); err != nil {
		return err
	}

	s := &m.slots[i]
	if d != nil {
		if !s.enabled {
			return fmt.Errorf("%w: counter %d is disabled", opstart.ErrInvalidAssignment, i)
		}
		if !d.AllowedOn(i) {
			return fmt.Errorf("%w: event %s cannot run on counter %d", opstart.ErrInvalidAssignment, d.Name, i)
		}
	}

	if i == m.active {
		m.Flush()
	}
	s.event = d
	if i == m.active {
		m.pending = m.current(i)
	}
	return nil
}

// SetEnabled enables or disables slot i. Disabling clears its event.
func (m *Model) SetEnabled(i int, enabled bool) error {
	if err := m.check(i); err != nil {
		return err
	}
	if !enabled {
		if err := m.AssignEvent(i, nil); err != nil {
			return err
		}
	}
	m.slots[i].enabled = enabled
	return nil
}

// Stage replaces the in-progress edit of the active slot.
func (m *Model) Stage(edit opstart.EventSetting) {
	m.pending = edit
}

// CommitEdit writes edit into the setting of the event currently
// assigned to slot i. It does nothing when the slot has no event.
func (m *Model) CommitEdit(i int, edit opstart.EventSetting) error {
	if err := m.check(i); err != nil {
		return err
	}

	s := &m.slots[i]
	if s.event == nil {
		return nil
	}

	s.settings[s.event.Name] = edit
	if i == m.active {
		m.pending = edit
	}
	return nil
}

// Flush commits the pending edit of the active slot.
func (m *Model) Flush() {
	if m.slots[m.active].event == nil {
		return
	}
	_ = m.CommitEdit(m.active, m.pending)
}

// Active returns the index of the active slot.
func (m *Model) Active() int { return m.active }

// Pending returns the in-progress edit of the active slot.
func (m *Model) Pending() opstart.EventSetting { return m.pending }

// Counters returns the number of slots.
func (m *Model) Counters() int { return len(m.slots) }

// Slot returns a view of slot i. The setting is the committed one;
// see Pending for the active slot's edit.
func (m *Model) Slot(i int) (opstart.CounterState, error) {
	if err := m.check(i); err != nil {
		return opstart.CounterState{}, err
	}
	s := m.slots[i]
	return opstart.CounterState{
		Index:   i,
		Enabled: s.enabled,
		Event:   s.event,
		Setting: m.current(i),
	}, nil
}

// Slots returns a view of every slot in index order.
func (m *Model) Slots() []opstart.CounterState {
	out := make([]opstart.CounterState, len(m.slots))
	for i := range m.slots {
		out[i], _ = m.Slot(i)
	}
	return out
}

// Settings returns a copy of every per-event setting recorded for
// slot i.
func (m *Model) Settings(i int) map[string]opstart.EventSetting {
	if m.check(i) != nil {
		return nil
	}
	return maps.Clone(m.slots[i].settings)
}

// Seed fills in settings for every catalog event eligible on slot i
// that has none yet.
func (m *Model) Seed(i int) {
	if m.check(i) != nil {
		return
	}
	for _, d := range m.cat.ForCounter(i) {
		m.setting(i, d)
	}
}

func (m *Model) current(i int) opstart.EventSetting {
	s := m.slots[i]
	if s.event == nil {
		return opstart.EventSetting{}
	}
	return m.setting(i, s.event)
}

// setting returns the stored setting of d on slot i, creating it from
// the seeder on first use.
func (m *Model) setting(i int, d *opstart.EventDescriptor) opstart.EventSetting {
	s := m.slots[i]
	if v, ok := s.settings[d.Name]; ok {
		return v
	}
	v := m.seed(i, d)
	s.settings[d.Name] = v
	return v
}

func (m *Model) check(i int) error {
	if i < 0 || i >= len(m.slots) {
		return fmt.Errorf("%w: counter %d out of range [0, %d)", opstart.ErrInvalidAssignment, i, len(m.slots))
	}
	return nil
}
