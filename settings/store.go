// Package settings persists the global configuration and the per-slot
// event settings across sessions.
//
// A Store applies the load policy (bootstrap of missing records, CPU
// type checks, defaults) on top of a Backend, which only moves records
// to and from durable storage.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/frobware/go-opstart"
	"github.com/frobware/go-opstart/catalog"
	"github.com/frobware/go-opstart/counter"
	"github.com/frobware/go-opstart/logging"
)

// ErrNotExist is returned by a Backend when a record has never been
// written.
var ErrNotExist = errors.New("settings record does not exist")

// SlotState is the persisted assignment of one counter slot. An empty
// Event means no event.
type SlotState struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Event   string `json:"event,omitempty" yaml:"event,omitempty"`
}

// Global is the persisted global record.
type Global struct {
	CPU      opstart.CPUType      `json:"cpu" yaml:"cpu"`
	Counters []SlotState          `json:"counters" yaml:"counters"`
	Config   opstart.GlobalConfig `json:"config" yaml:"config"`
}

// Backend moves settings records to and from durable storage.
type Backend interface {
	ReadGlobal(ctx context.Context) (Global, error)
	WriteGlobal(ctx context.Context, g Global) error
	ReadSlot(ctx context.Context, slot int) (map[string]opstart.EventSetting, error)
	WriteSlot(ctx context.Context, slot int, settings map[string]opstart.EventSetting) error
	RemoveSlot(ctx context.Context, slot int) error
}

// Store loads and saves settings for the catalog's CPU.
type Store struct {
	backend Backend
	cat     *catalog.Catalog
	seed    counter.Seeder
	logger  *slog.Logger
}

// New returns a Store. seed provides the default setting of events
// written to a freshly created slot record.
func New(backend Backend, cat *catalog.Catalog, seed counter.Seeder, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if seed == nil {
		seed = func(_ int, d *opstart.EventDescriptor) opstart.EventSetting {
			return opstart.DefaultEventSetting(d, 0)
		}
	}
	return &Store{
		backend: backend,
		cat:     cat,
		seed:    seed,
		logger:  logger.With(logging.ComponentKey, logging.Settings),
	}
}

// Defaults returns the global record written on first use.
func (s *Store) Defaults() Global {
	return Global{
		CPU:      s.cat.CPU(),
		Counters: make([]SlotState, s.cat.Counters()),
		Config:   opstart.DefaultGlobalConfig(),
	}
}

// SlotDefaults returns the settings written to a fresh slot record:
// every event eligible on the slot with its seeded setting.
func (s *Store) SlotDefaults(slot int) map[string]opstart.EventSetting {
	out := make(map[string]opstart.EventSetting)
	for _, d := range s.cat.ForCounter(slot) {
		out[d.Name] = s.seed(slot, d)
	}
	return out
}

// LoadGlobal returns the global record, creating it from defaults when
// absent. When the record was written for another CPU type the record
// is returned together with a *opstart.CPUMismatchError; nothing is
// changed on disk.
func (s *Store) LoadGlobal(ctx context.Context) (Global, error) {
	g, err := s.backend.ReadGlobal(ctx)
	if errors.Is(err, ErrNotExist) {
		s.logger.Info("no global settings, writing defaults", "cpu", s.cat.CPU())
		g = s.Defaults()
		if err := s.backend.WriteGlobal(ctx, g); err != nil {
			return g, fmt.Errorf("bootstrap global settings: %w", err)
		}
		return g, nil
	}
	if err != nil {
		return Global{}, fmt.Errorf("load global settings: %w", err)
	}

	if g.CPU != s.cat.CPU() {
		return g, &opstart.CPUMismatchError{Stored: g.CPU, Detected: s.cat.CPU()}
	}

	g.Counters = fitCounters(g.Counters, s.cat.Counters())
	g.Config.Normalize()
	return g, nil
}

// SaveGlobal writes the global record. The CPU type is always the
// catalog's.
func (s *Store) SaveGlobal(ctx context.Context, g Global) error {
	g.CPU = s.cat.CPU()
	g.Counters = fitCounters(g.Counters, s.cat.Counters())
	g.Config.Normalize()
	if err := s.backend.WriteGlobal(ctx, g); err != nil {
		return fmt.Errorf("save global settings: %w", err)
	}
	return nil
}

// LoadSlot returns the per-event settings of slot, creating the record
// from defaults when absent.
func (s *Store) LoadSlot(ctx context.Context, slot int) (map[string]opstart.EventSetting, error) {
	m, err := s.backend.ReadSlot(ctx, slot)
	if errors.Is(err, ErrNotExist) {
		s.logger.Info("no slot settings, writing defaults", "slot", slot)
		m = s.SlotDefaults(slot)
		if err := s.backend.WriteSlot(ctx, slot, m); err != nil {
			return m, fmt.Errorf("bootstrap counter %d settings: %w", slot, err)
		}
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load counter %d settings: %w", slot, err)
	}
	return m, nil
}

// SaveSlot writes the per-event settings of slot.
func (s *Store) SaveSlot(ctx context.Context, slot int, settings map[string]opstart.EventSetting) error {
	if err := s.backend.WriteSlot(ctx, slot, settings); err != nil {
		return fmt.Errorf("save counter %d settings: %w", slot, err)
	}
	return nil
}

// Discard replaces everything on disk with defaults for the current
// CPU. Slot records beyond the CPU's counter count are removed.
func (s *Store) Discard(ctx context.Context) error {
	s.logger.Warn("discarding stored settings", "cpu", s.cat.CPU())

	if err := s.backend.WriteGlobal(ctx, s.Defaults()); err != nil {
		return fmt.Errorf("discard global settings: %w", err)
	}

	var errs []error
	for slot := 0; slot < opstart.MaxCounters; slot++ {
		if slot < s.cat.Counters() {
			if err := s.backend.WriteSlot(ctx, slot, s.SlotDefaults(slot)); err != nil {
				errs = append(errs, fmt.Errorf("discard counter %d settings: %w", slot, err))
			}
			continue
		}
		if err := s.backend.RemoveSlot(ctx, slot); err != nil && !errors.Is(err, ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove counter %d settings: %w", slot, err))
		}
	}
	return errors.Join(errs...)
}

// fitCounters pads or truncates to exactly n slots.
func fitCounters(in []SlotState, n int) []SlotState {
	out := make([]SlotState, n)
	copy(out, in)
	return out
}
