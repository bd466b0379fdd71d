// Package poller samples the daemon status on a fixed interval.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/frobware/go-opstart"
	"github.com/frobware/go-opstart/interpreter"
	"github.com/frobware/go-opstart/logging"
)

// DefaultInterval is the time between status samples.
const DefaultInterval = 5 * time.Second

// Snapshot is the outcome of one tick.
type Snapshot struct {
	Status opstart.DaemonStatus `json:"status" yaml:"status"`
	// Rate is interrupts per second over the elapsed whole seconds
	// since the previous tick. HasRate is false when no whole second
	// has elapsed.
	Rate    uint64    `json:"rate,omitempty" yaml:"rate,omitempty"`
	HasRate bool      `json:"hasRate" yaml:"hasRate"`
	At      time.Time `json:"at" yaml:"at"`
}

// Controls reports which daemon commands make sense in this state.
type Controls struct {
	Start bool `json:"start" yaml:"start"`
	Stop  bool `json:"stop" yaml:"stop"`
	Flush bool `json:"flush" yaml:"flush"`
}

// Controls gates start against stop and flush.
func (s Snapshot) Controls() Controls {
	r := s.Status.Running
	return Controls{Start: !r, Stop: r, Flush: r}
}

// Text renders the status line.
func (s Snapshot) Text() string {
	if !s.Status.Running {
		return "Profiler is not running."
	}
	text := "Profiler running " + s.Status.Runtime.Truncate(time.Second).String()
	if s.HasRate {
		text += fmt.Sprintf(" (%d interrupts / second)", s.Rate)
	}
	return text
}

// Poller computes snapshots from a status source. Its only state is
// the time of the previous tick.
type Poller struct {
	source   interpreter.StatusSource
	interval time.Duration
	metrics  *Metrics
	logger   *slog.Logger
	now      func() time.Time
	last     time.Time
}

// Option configures a Poller.
type Option func(*Poller)

// WithInterval sets the tick interval.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithMetrics publishes every snapshot to m.
func WithMetrics(m *Metrics) Option {
	return func(p *Poller) { p.metrics = m }
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(p *Poller) { p.now = now }
}

// New returns a Poller. The first tick measures its rate from the
// moment of construction.
func New(source interpreter.StatusSource, logger *slog.Logger, opts ...Option) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Poller{
		source:   source,
		interval: DefaultInterval,
		logger:   logger.With(logging.ComponentKey, logging.Poller),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.last = p.now()
	return p
}

// Interval returns the tick interval.
func (p *Poller) Interval() time.Duration { return p.interval }

// Tick fetches a fresh status and computes the interrupt rate.
func (p *Poller) Tick(ctx context.Context) (Snapshot, error) {
	st, err := p.source.Status(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("daemon status: %w", err)
	}

	now := p.now()
	snap := Snapshot{Status: st, At: now}
	if elapsed := uint64(now.Sub(p.last) / time.Second); elapsed > 0 {
		snap.Rate = st.Interrupts / elapsed
		snap.HasRate = true
	}
	p.last = now

	if p.metrics != nil {
		p.metrics.Observe(snap)
	}
	p.logger.DebugContext(ctx, "tick", "running", st.Running, "interrupts", st.Interrupts, "rate", snap.Rate)
	return snap, nil
}

// Run ticks immediately and then every interval until ctx is done,
// passing each snapshot to fn. A failed tick is logged and skipped.
func (p *Poller) Run(ctx context.Context, fn func(Snapshot)) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if snap, err := p.Tick(ctx); err != nil {
			p.logger.WarnContext(ctx, "status poll failed", "error", err)
		} else {
			fn(snap)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
