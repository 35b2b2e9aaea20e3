package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/chase3718/lou-lights/note"
)

const (
	DefaultPeriod   = 20 * time.Millisecond
	DefaultMaxNotes = 20
)

// Sink consumes the snapshot published on every tick. An empty snapshot
// means silence.
type Sink interface {
	Render(Snapshot) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Snapshot) error

func (f SinkFunc) Render(s Snapshot) error { return f(s) }

type Options struct {
	Catalog *note.Catalog
	Queue   *Queue
	Sink    Sink

	Envelope Envelope
	Sustain  SustainConfig
	MaxNotes int
	Period   time.Duration

	// Now defaults to time.Now.
	Now    func() time.Time
	Logger *slog.Logger
}

// Stats are cumulative driver counters.
type Stats struct {
	Ticks      uint64
	Events     uint64
	Ignored    uint64
	Evicted    uint64
	Expired    uint64
	SinkErrors uint64
	Dropped    uint64
	Active     int
}

// Driver owns the registry and the sustain state. Every mutation happens on
// the goroutine that calls Run (or Step); producers only touch the Queue.
type Driver struct {
	catalog  *note.Catalog
	queue    *Queue
	sink     Sink
	registry *Registry
	sustain  *Sustain
	env      Envelope
	maxNotes int
	period   time.Duration
	now      func() time.Time
	logger   *slog.Logger

	dropWarn    *rate.Limiter
	sinkWarn    *rate.Limiter
	lastDropped uint64

	ticks, events, ignored, evicted, expired, sinkErrors atomic.Uint64
	active                                               atomic.Int64
}

func NewDriver(opts Options) (*Driver, error) {
	if opts.Catalog == nil {
		return nil, errors.New("engine: nil catalog")
	}
	if opts.Queue == nil {
		return nil, errors.New("engine: nil queue")
	}
	if opts.Envelope == (Envelope{}) {
		opts.Envelope = DefaultEnvelope()
	}
	if err := opts.Envelope.Validate(); err != nil {
		return nil, err
	}
	if opts.Sustain == (SustainConfig{}) {
		opts.Sustain = DefaultSustain()
	}
	if err := opts.Sustain.Validate(); err != nil {
		return nil, err
	}
	if opts.MaxNotes <= 0 {
		opts.MaxNotes = DefaultMaxNotes
	}
	if opts.Period <= 0 {
		opts.Period = DefaultPeriod
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Sink == nil {
		opts.Sink = SinkFunc(func(Snapshot) error { return nil })
	}
	return &Driver{
		catalog:  opts.Catalog,
		queue:    opts.Queue,
		sink:     opts.Sink,
		registry: NewRegistry(opts.Envelope),
		sustain:  NewSustain(opts.Sustain),
		env:      opts.Envelope,
		maxNotes: opts.MaxNotes,
		period:   opts.Period,
		now:      opts.Now,
		logger:   opts.Logger,
		dropWarn: rate.NewLimiter(rate.Every(time.Second), 1),
		sinkWarn: rate.NewLimiter(rate.Every(time.Second), 1),
	}, nil
}

// Run ticks until ctx is cancelled. Each tick drains the queue, enforces the
// polyphony cap, waits for the tick boundary, advances the envelopes and
// publishes a snapshot. Render failures are logged and never stop the loop.
// Events still queued at shutdown are discarded.
func (d *Driver) Run(ctx context.Context) error {
	t := time.NewTicker(d.period)
	defer t.Stop()

	d.logger.Info("engine: running",
		"period", d.period,
		"max_notes", d.maxNotes,
		"hold", d.env.Hold,
		"catalog_notes", d.catalog.Len(),
	)
	for {
		d.drain(d.now())
		d.enforceCap()

		select {
		case <-ctx.Done():
			d.logger.Info("engine: stopped", "discarded_events", d.queue.Len(), "active", d.registry.Len())
			return ctx.Err()
		case <-t.C:
		}

		if err := d.advance(d.now()); err != nil && d.sinkWarn.Allow() {
			d.logger.Warn("engine: render failed", "err", err, "sink_errors", d.sinkErrors.Load())
		}
	}
}

// Step runs one full tick at now without waiting. It returns the render
// error, if any; note state has already advanced when it does.
func (d *Driver) Step(now time.Time) error {
	d.drain(now)
	d.enforceCap()
	return d.advance(now)
}

func (d *Driver) Stats() Stats {
	return Stats{
		Ticks:      d.ticks.Load(),
		Events:     d.events.Load(),
		Ignored:    d.ignored.Load(),
		Evicted:    d.evicted.Load(),
		Expired:    d.expired.Load(),
		SinkErrors: d.sinkErrors.Load(),
		Dropped:    d.queue.Dropped(),
		Active:     int(d.active.Load()),
	}
}

// drain routes every queued event. It stops after one queue's worth so that
// a producer that never pauses cannot stall the tick.
func (d *Driver) drain(now time.Time) int {
	n := 0
	for ; n < d.queue.Cap(); n++ {
		ev, ok := d.queue.Poll()
		if !ok {
			break
		}
		d.dispatch(ev, now)
	}
	if n > 0 {
		d.events.Add(uint64(n))
		d.logger.Debug("engine: drained events", "count", n, "active", d.registry.Len())
	}

	if dropped := d.queue.Dropped(); dropped != d.lastDropped {
		if d.dropWarn.Allow() {
			d.logger.Warn("engine: event queue full, events dropped",
				"dropped", dropped-d.lastDropped,
				"total_dropped", dropped,
				"capacity", d.queue.Cap(),
			)
			d.lastDropped = dropped
		}
	}
	return n
}

func (d *Driver) dispatch(ev note.Event, now time.Time) {
	switch ev.Kind {
	case note.NoteOn:
		if d.sustain.Cancel(ev.ID) {
			d.logger.Debug("engine: re-strike cancels pending release", "note", ev.ID)
		}
		cfg, ok := d.catalog.Lookup(ev.ID)
		if !ok {
			d.ignored.Add(1)
			d.logger.Debug("engine: note not in catalog", "note", ev.ID, "midi", uint8(ev.ID))
			return
		}
		d.registry.NoteOn(cfg, ev.Velocity, now)

	case note.NoteOff:
		if d.sustain.Defer(ev.ID) {
			d.logger.Debug("engine: note-off held by pedal", "note", ev.ID)
			return
		}
		d.registry.NoteOff(ev.ID)

	case note.ControlChange:
		if !d.sustain.Handles(ev.Controller) {
			d.ignored.Add(1)
			d.logger.Debug("engine: unhandled controller", "controller", ev.Controller, "value", ev.Value)
			return
		}
		released, changed := d.sustain.Pedal(ev.Value)
		if changed {
			d.logger.Debug("engine: sustain", "engaged", d.sustain.Engaged(), "released", len(released))
		}
		for _, id := range released {
			d.registry.NoteOff(id)
		}

	default:
		d.ignored.Add(1)
		d.logger.Debug("engine: unknown event kind", "kind", ev.Kind)
	}
}

func (d *Driver) enforceCap() {
	evicted := d.registry.EnforceCap(d.maxNotes)
	if len(evicted) == 0 {
		return
	}
	d.evicted.Add(uint64(len(evicted)))
	d.logger.Info("engine: polyphony cap reached, evicted oldest notes",
		"evicted", len(evicted),
		"max_notes", d.maxNotes,
	)
}

func (d *Driver) advance(now time.Time) error {
	expired := d.registry.Advance(now)
	d.expired.Add(uint64(len(expired)))
	d.ticks.Add(1)

	snap := d.registry.Snapshot()
	snap.Time = now
	snap.Sustained = d.sustain.Engaged()
	d.active.Store(int64(snap.Len()))

	if err := d.sink.Render(snap); err != nil {
		d.sinkErrors.Add(1)
		return fmt.Errorf("render: %w", err)
	}
	return nil
}
