package input

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/chase3718/lou-lights/note"
)

const DefaultRescan = time.Second

// MIDIConfig selects which input port the watcher connects to. Preferred
// patterns are matched case-insensitively, in order; with no match the
// watcher connects only when exactly one port is available. Excluded ports
// (virtual/system ports) are never auto-connected.
type MIDIConfig struct {
	Preferred []string      `yaml:"preferred"`
	Excluded  []string      `yaml:"excluded"`
	Rescan    time.Duration `yaml:"rescan"`
}

func DefaultMIDIConfig() MIDIConfig {
	return MIDIConfig{
		Preferred: []string{"Digital Piano", "Launchkey", "Novation"},
		Excluded:  []string{"Midi Through", "Through Port", "Dummy"},
		Rescan:    DefaultRescan,
	}
}

// MIDIWatcher monitors available MIDI inputs and keeps a connection to the
// preferred device across hot-plug and unplug. Every decoded event is
// handed to out.
type MIDIWatcher struct {
	cfg    MIDIConfig
	out    Enqueuer
	logger *slog.Logger

	mu           sync.Mutex
	drv          *rtmididrv.Driver
	inPort       drivers.In
	stopFn       func()
	connected    bool
	selectedName string

	received atomic.Uint64
	rejected atomic.Uint64
}

// NewMIDIWatcher initialises the rtmidi driver. Call Close when done.
func NewMIDIWatcher(cfg MIDIConfig, out Enqueuer, logger *slog.Logger) (*MIDIWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Rescan <= 0 {
		cfg.Rescan = DefaultRescan
	}
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("rtmididrv: %w", err)
	}
	return &MIDIWatcher{cfg: cfg, out: out, logger: logger, drv: drv}, nil
}

// Run rescans the ports until ctx is cancelled.
func (m *MIDIWatcher) Run(ctx context.Context) error {
	m.logger.Info("midi: watching for devices",
		"preferred", strings.Join(m.cfg.Preferred, ", "),
		"rescan", m.cfg.Rescan,
	)
	t := time.NewTicker(m.cfg.Rescan)
	defer t.Stop()
	for {
		m.Tick()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Tick scans for devices once, connects to a preferred one and detects
// disappearances.
func (m *MIDIWatcher) Tick() {
	m.mu.Lock()
	defer m.mu.Unlock()

	inputs := m.listInputs()

	if m.connected {
		if slices.Contains(inputs, m.selectedName) {
			return
		}
		m.logger.Warn("midi: device disappeared", "device", m.selectedName)
		m.closeConn()
		m.releasePedal()
	}

	if len(inputs) == 0 {
		return
	}
	cand, ok := pickPreferred(inputs, m.cfg.Preferred)
	if !ok {
		m.logger.Debug("midi: no preferred device", "available", strings.Join(inputs, ", "))
		return
	}
	if err := m.openByName(cand); err != nil {
		m.logger.Error("midi: connect failed", "device", cand, "err", err)
	}
}

// Connected returns the name of the open device.
func (m *MIDIWatcher) Connected() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selectedName, m.connected
}

func (m *MIDIWatcher) Stats() (received, rejected uint64) {
	return m.received.Load(), m.rejected.Load()
}

// Close shuts down the active connection and the rtmidi driver.
func (m *MIDIWatcher) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeConn()
	m.drv.Close()
}

func (m *MIDIWatcher) listInputs() []string {
	ins, err := m.drv.Ins()
	if err != nil {
		m.logger.Error("midi: list inputs failed", "err", err)
		return nil
	}
	names := make([]string, 0, len(ins))
	for _, in := range ins {
		names = append(names, in.String())
	}
	names = withoutExcluded(names, m.cfg.Excluded)
	m.logger.Debug("midi: inputs found", "count", len(names), "devices", strings.Join(names, ", "))
	return names
}

func (m *MIDIWatcher) closeConn() {
	if m.stopFn != nil {
		m.stopFn()
		m.stopFn = nil
	}
	if m.inPort != nil {
		_ = m.inPort.Close()
		m.inPort = nil
	}
	m.connected = false
	m.selectedName = ""
}

// releasePedal lifts the sustain pedal on disconnect so notes it was holding
// decay or release normally instead of waiting for a pedal-up that will
// never arrive.
func (m *MIDIWatcher) releasePedal() {
	m.out.Enqueue(note.CC(note.SustainController, 0))
	m.logger.Info("midi: sustain released after disconnect")
}

func (m *MIDIWatcher) openByName(name string) error {
	ins, err := m.drv.Ins()
	if err != nil {
		return err
	}
	var found drivers.In
	for _, in := range ins {
		if in.String() == name {
			found = in
			break
		}
	}
	if found == nil {
		return fmt.Errorf("input %q not found", name)
	}
	if err := found.Open(); err != nil {
		return fmt.Errorf("open %q: %w", name, err)
	}

	stop, err := midi.ListenTo(found, func(msg midi.Message, _ int32) {
		m.handle(msg)
	}, midi.HandleError(func(listenErr error) {
		m.logger.Warn("midi: listener error", "device", name, "err", listenErr)
		// closeConn stops the listener, so it must not run on the listener
		// goroutine.
		go func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if m.connected && m.selectedName == name {
				m.closeConn()
				m.releasePedal()
			}
		}()
	}))
	if err != nil {
		_ = found.Close()
		return fmt.Errorf("listen %q: %w", name, err)
	}

	m.inPort = found
	m.stopFn = stop
	m.connected = true
	m.selectedName = name
	m.logger.Info("midi: connected", "device", name)
	return nil
}

func (m *MIDIWatcher) handle(msg midi.Message) {
	ev, err := Translate(msg)
	if err != nil {
		m.rejected.Add(1)
		m.logger.Debug("midi: message dropped", "msg", msg.String(), "err", err)
		return
	}
	m.received.Add(1)
	m.logger.Debug("midi: event", "event", ev)
	m.out.Enqueue(ev)
}

// Translate decodes a channel message into an engine event. A NoteOn with
// velocity zero is a NoteOff. The channel is ignored.
func Translate(msg midi.Message) (note.Event, error) {
	var ch, key, vel, ctrl, val uint8
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		if err := checkPlayable(key); err != nil {
			return note.Event{}, err
		}
		return note.On(note.ID(key), vel), nil
	case msg.GetNoteEnd(&ch, &key):
		if err := checkPlayable(key); err != nil {
			return note.Event{}, err
		}
		return note.Off(note.ID(key)), nil
	case msg.GetControlChange(&ch, &ctrl, &val):
		return note.CC(ctrl, val), nil
	}
	return note.Event{}, fmt.Errorf("%w: %s", ErrUnsupported, msg.Type())
}

func pickPreferred(inputs, preferred []string) (string, bool) {
	for _, pat := range preferred {
		for _, name := range inputs {
			if containsCI(name, pat) {
				return name, true
			}
		}
	}
	if len(inputs) == 1 {
		return inputs[0], true
	}
	return "", false
}

func withoutExcluded(names, excluded []string) []string {
	return slices.DeleteFunc(names, func(name string) bool {
		return slices.ContainsFunc(excluded, func(pat string) bool { return containsCI(name, pat) })
	})
}

func containsCI(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
