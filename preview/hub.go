// Package preview serves a browser view of the strips fed by the engine.
package preview

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/chase3718/lou-lights/engine"
	"github.com/chase3718/lou-lights/render"
)

type StripView struct {
	Name   string `json:"name"`
	Length int    `json:"length"`
}

type NoteView struct {
	MIDI      uint8  `json:"midi"`
	Name      string `json:"name"`
	Intensity uint8  `json:"intensity"`
	Strip     int    `json:"strip"`
	Start     int    `json:"start"`
	End       int    `json:"end"`
	Color     string `json:"color"`
}

// State is the JSON document pushed to browsers.
type State struct {
	Time    time.Time   `json:"time"`
	Sustain bool        `json:"sustain"`
	Strips  []StripView `json:"strips"`
	Notes   []NoteView  `json:"notes"`
}

// Hub is an engine.Sink that keeps the latest state and fans it out to
// listeners. A listener that cannot keep up is closed and dropped.
type Hub struct {
	layout render.Layout
	strips []StripView

	lock      sync.RWMutex
	state     *State
	listeners []chan<- *State
}

func NewHub(layout render.Layout) *Hub {
	strips := make([]StripView, len(layout))
	for i, s := range layout {
		strips[i] = StripView{Name: s.Name, Length: s.Length}
	}
	return &Hub{
		layout: layout,
		strips: strips,
		state:  &State{Strips: strips, Notes: []NoteView{}},
	}
}

func (h *Hub) Render(snap engine.Snapshot) error {
	st := h.build(snap)

	h.lock.Lock()
	defer h.lock.Unlock()
	changed := st.Sustain != h.state.Sustain || !slices.Equal(st.Notes, h.state.Notes)
	h.state = st
	if !changed {
		return nil
	}
	ls := h.listeners
	var pos int
	for _, l := range ls {
		select {
		case l <- st:
			ls[pos] = l
			pos++
		default:
			close(l)
		}
	}
	h.listeners = ls[:pos]
	for ; pos < len(ls); pos++ {
		ls[pos] = nil
	}
	return nil
}

// Latest returns the most recent state.
func (h *Hub) Latest() *State {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return h.state
}

// addListener registers ch and returns the current state.
func (h *Hub) addListener(ch chan<- *State) *State {
	if ch == nil {
		panic("nil channel")
	}
	h.lock.Lock()
	defer h.lock.Unlock()
	h.listeners = append(h.listeners, ch)
	return h.state
}

// removeListener unregisters and closes ch if it is still registered.
func (h *Hub) removeListener(ch chan<- *State) {
	h.lock.Lock()
	defer h.lock.Unlock()
	for i, l := range h.listeners {
		if l == ch {
			h.listeners[i] = h.listeners[len(h.listeners)-1]
			h.listeners[len(h.listeners)-1] = nil
			h.listeners = h.listeners[:len(h.listeners)-1]
			close(ch)
			return
		}
	}
}

func (h *Hub) build(snap engine.Snapshot) *State {
	st := &State{
		Time:    snap.Time,
		Sustain: snap.Sustained,
		Strips:  h.strips,
		Notes:   make([]NoteView, 0, len(snap.Notes)),
	}
	for _, n := range snap.Notes {
		strip, ok := h.layout.StripFor(n.ID())
		if !ok {
			continue
		}
		c := render.TimbreColor(n.Config.Timbre).Scale(n.Intensity)
		st.Notes = append(st.Notes, NoteView{
			MIDI:      uint8(n.ID()),
			Name:      n.Config.Name,
			Intensity: n.Intensity,
			Strip:     strip,
			Start:     n.Config.Range.Start,
			End:       min(n.Config.Range.End, h.layout[strip].Length),
			Color:     fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B),
		})
	}
	return st
}
