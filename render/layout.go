package render

import (
	"errors"
	"fmt"
	"slices"

	"github.com/chase3718/lou-lights/engine"
	"github.com/chase3718/lou-lights/note"
)

// maxStripLength is the largest LED index a frame span can address.
const maxStripLength = 1<<16 - 1

var ErrInvalidLayout = errors.New("invalid strip layout")

// Strip is one physical LED strip. It owns every note up to and including
// MaxNote that an earlier strip has not claimed.
type Strip struct {
	Name    string  `yaml:"name"`
	Length  int     `yaml:"length"`
	MaxNote note.ID `yaml:"max_note"`
}

// Layout lists the strips in ascending MaxNote order. The strip index is the
// strip byte sent on the wire.
type Layout []Strip

// DefaultLayout is the two-strip piano: bass strip up to B3, treble strip
// for the rest of the keyboard.
func DefaultLayout() Layout {
	return Layout{
		{Name: "bass", Length: 1200, MaxNote: 59},
		{Name: "treble", Length: 1500, MaxNote: note.MaxID},
	}
}

func (l Layout) Validate() error {
	if len(l) == 0 {
		return fmt.Errorf("%w: no strips", ErrInvalidLayout)
	}
	if len(l) > 256 {
		return fmt.Errorf("%w: %d strips, at most 256", ErrInvalidLayout, len(l))
	}
	for i, s := range l {
		if s.Length <= 0 || s.Length > maxStripLength {
			return fmt.Errorf("%w: strip %q length %d", ErrInvalidLayout, s.Name, s.Length)
		}
		if i > 0 && s.MaxNote <= l[i-1].MaxNote {
			return fmt.Errorf("%w: strip %q max_note %d not above %d",
				ErrInvalidLayout, s.Name, s.MaxNote, l[i-1].MaxNote)
		}
	}
	return nil
}

// StripFor returns the index of the strip that lights id.
func (l Layout) StripFor(id note.ID) (int, bool) {
	for i, s := range l {
		if id <= s.MaxNote {
			return i, true
		}
	}
	return 0, false
}

type Color struct {
	R, G, B uint8
}

var (
	White    = Color{255, 255, 255}
	Lavender = Color{150, 150, 255}
)

func TimbreColor(t note.Timbre) Color {
	if t == note.Secondary {
		return Lavender
	}
	return White
}

// Scale dims c by intensity/128, clamped to [0, 1] and truncated per channel.
func (c Color) Scale(intensity uint8) Color {
	f := min(float64(intensity)/128, 1)
	return Color{
		R: uint8(float64(c.R) * f),
		G: uint8(float64(c.G) * f),
		B: uint8(float64(c.B) * f),
	}
}

// Span is a lit half-open LED range [Start, End) on one strip.
type Span struct {
	Start, End int
	Color      Color
}

// Spans maps a snapshot onto the layout. The result has one entry per strip,
// each sorted by Start. Ranges are clipped to the strip; notes with no strip
// or an empty range after clipping are skipped.
func (l Layout) Spans(snap engine.Snapshot) [][]Span {
	out := make([][]Span, len(l))
	for _, n := range snap.Notes {
		idx, ok := l.StripFor(n.ID())
		if !ok {
			continue
		}
		r := n.Config.Range
		end := min(r.End, l[idx].Length)
		if r.Start >= end {
			continue
		}
		out[idx] = append(out[idx], Span{
			Start: r.Start,
			End:   end,
			Color: TimbreColor(n.Config.Timbre).Scale(n.Intensity),
		})
	}
	for _, spans := range out {
		slices.SortFunc(spans, func(a, b Span) int { return a.Start - b.Start })
	}
	return out
}
