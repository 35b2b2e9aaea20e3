package engine

import (
	"fmt"
	"slices"

	"github.com/chase3718/lou-lights/note"
)

// SustainConfig sets the pedal controller and its hysteresis thresholds.
// Values at or above High engage the pedal, values at or below Low release
// it, and anything in between is ignored.
type SustainConfig struct {
	Controller uint8 `yaml:"controller"`
	High       uint8 `yaml:"high"`
	Low        uint8 `yaml:"low"`
}

func DefaultSustain() SustainConfig {
	return SustainConfig{Controller: note.SustainController, High: 80, Low: 40}
}

func (c SustainConfig) Validate() error {
	if c.Controller > note.MaxValue || c.High > note.MaxValue {
		return fmt.Errorf("sustain: controller %d / high %d out of MIDI range", c.Controller, c.High)
	}
	if c.Low >= c.High {
		return fmt.Errorf("sustain: low threshold %d must be below high threshold %d", c.Low, c.High)
	}
	return nil
}

// Sustain is the damper pedal state machine. While engaged, note-offs are
// deferred into a pending set that is flushed when the pedal is released.
type Sustain struct {
	cfg     SustainConfig
	engaged bool
	pending map[note.ID]struct{}
}

func NewSustain(cfg SustainConfig) *Sustain {
	return &Sustain{cfg: cfg, pending: make(map[note.ID]struct{})}
}

// Handles reports whether controller is the sustain pedal.
func (s *Sustain) Handles(controller uint8) bool { return controller == s.cfg.Controller }

// Pedal applies a controller value. On the Engaged -> Released transition it
// returns the deferred note-offs, sorted, and clears them. changed reports
// whether the state flipped.
func (s *Sustain) Pedal(value uint8) (released []note.ID, changed bool) {
	switch {
	case value >= s.cfg.High:
		changed = !s.engaged
		s.engaged = true
	case value <= s.cfg.Low:
		changed = s.engaged
		s.engaged = false
		released = s.Pending()
		clear(s.pending)
	}
	return released, changed
}

// Defer records a note-off while the pedal is engaged. It returns false when
// the pedal is up and the caller must release the note itself.
func (s *Sustain) Defer(id note.ID) bool {
	if !s.engaged {
		return false
	}
	s.pending[id] = struct{}{}
	return true
}

// Cancel drops any deferred release of id; striking a note again keeps it
// sounding past the next pedal release.
func (s *Sustain) Cancel(id note.ID) bool {
	if _, ok := s.pending[id]; !ok {
		return false
	}
	delete(s.pending, id)
	return true
}

func (s *Sustain) Engaged() bool { return s.engaged }

// Pending returns the deferred note-offs in ascending order.
func (s *Sustain) Pending() []note.ID {
	if len(s.pending) == 0 {
		return nil
	}
	ids := make([]note.ID, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
