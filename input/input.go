// Package input turns MIDI devices and UDP datagrams into note events and
// hands them to the engine's queue.
package input

import (
	"errors"
	"fmt"

	"github.com/chase3718/lou-lights/note"
)

var (
	ErrMalformed   = errors.New("malformed message")
	ErrOutOfRange  = errors.New("out of range")
	ErrUnsupported = errors.New("unsupported message")
)

// Enqueuer accepts events without blocking. It reports false when the event
// was dropped.
type Enqueuer interface {
	Enqueue(note.Event) bool
}

func checkPlayable(key uint8) error {
	if !note.ID(key).Playable() {
		return fmt.Errorf("%w: note %d", ErrOutOfRange, key)
	}
	return nil
}
