package note

import "fmt"

// ID is a MIDI note number.
type ID uint8

// Playable compass accepted from the transports. Events outside it are
// rejected by the input adapters before they reach the engine.
const (
	MinID ID = 22
	MaxID ID = 108
)

// MaxValue is the upper bound of MIDI velocity and controller values.
const MaxValue = 127

// SustainController is the MIDI controller number of the damper pedal.
const SustainController = 64

// Playable reports whether id lies inside the instrument's compass.
func (id ID) Playable() bool { return id >= MinID && id <= MaxID }

func (id ID) String() string { return Name(id) }

// Kind tags the variant held by an Event.
type Kind uint8

const (
	NoteOn Kind = iota + 1
	NoteOff
	ControlChange
)

func (k Kind) String() string {
	switch k {
	case NoteOn:
		return "NOTE_ON"
	case NoteOff:
		return "NOTE_OFF"
	case ControlChange:
		return "CC"
	}
	return "UNKNOWN"
}

// Event is a typed performance event produced by an input adapter.
//
// Only the fields relevant to Kind are meaningful: ID and Velocity for
// NoteOn, ID for NoteOff, Controller and Value for ControlChange.
type Event struct {
	Kind       Kind
	ID         ID
	Velocity   uint8
	Controller uint8
	Value      uint8
}

func On(id ID, velocity uint8) Event {
	return Event{Kind: NoteOn, ID: id, Velocity: velocity}
}

func Off(id ID) Event {
	return Event{Kind: NoteOff, ID: id}
}

func CC(controller, value uint8) Event {
	return Event{Kind: ControlChange, Controller: controller, Value: value}
}

func (e Event) String() string {
	switch e.Kind {
	case NoteOn:
		return fmt.Sprintf("%s %s(%d) vel=%d", e.Kind, e.ID, uint8(e.ID), e.Velocity)
	case NoteOff:
		return fmt.Sprintf("%s %s(%d)", e.Kind, e.ID, uint8(e.ID))
	case ControlChange:
		return fmt.Sprintf("%s %d=%d", e.Kind, e.Controller, e.Value)
	}
	return e.Kind.String()
}
