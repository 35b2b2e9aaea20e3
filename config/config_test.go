package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/chase3718/lou-lights/engine"
	"github.com/chase3718/lou-lights/note"
	"github.com/chase3718/lou-lights/render"
)

func TestDefaultIsValid(t *testing.T) {
	s := Default()
	if err := s.Validate(); err != nil {
		t.Fatalf("default settings invalid: %v", err)
	}
	c, err := s.OpenCatalog()
	if err != nil {
		t.Fatalf("OpenCatalog: %v", err)
	}
	// Every generated range must fit the default strips.
	for _, n := range c.Notes() {
		idx, ok := s.Strips.StripFor(n.ID)
		if !ok || n.Range.End > s.Strips[idx].Length {
			t.Fatalf("note %v range %v does not fit strip %d", n.ID, n.Range, idx)
		}
	}
}

func TestParseOverridesDefaults(t *testing.T) {
	s, err := Parse([]byte(`
engine:
  period: 10ms
  max_notes: 12
envelope:
  hold: 4s
sustain:
  high: 100
midi:
  enabled: false
  preferred: ["Clavinova"]
udp:
  addr: ""
strips:
  - {name: all, length: 300, max_note: 108}
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if s.Engine.Period != 10*time.Millisecond || s.Engine.MaxNotes != 12 {
		t.Errorf("engine = %+v", s.Engine)
	}
	if s.Engine.QueueSize != Default().Engine.QueueSize {
		t.Errorf("queue_size lost its default: %d", s.Engine.QueueSize)
	}
	if s.Envelope.Hold != 4*time.Second || s.Envelope.DecayScale != 0.1 {
		t.Errorf("envelope = %+v", s.Envelope)
	}
	if s.Sustain.High != 100 || s.Sustain.Low != 40 {
		t.Errorf("sustain = %+v", s.Sustain)
	}
	if s.MIDI.Enabled || !slices.Equal(s.MIDI.Preferred, []string{"Clavinova"}) || len(s.MIDI.Excluded) == 0 {
		t.Errorf("midi = %+v", s.MIDI)
	}
	if s.UDP.Addr != "" {
		t.Errorf("udp addr %q, want disabled", s.UDP.Addr)
	}
	if want := (render.Layout{{Name: "all", Length: 300, MaxNote: 108}}); !slices.Equal(s.Strips, want) {
		t.Errorf("strips = %v", s.Strips)
	}

	opts := s.EngineOptions()
	if opts.MaxNotes != 12 || opts.Period != 10*time.Millisecond || opts.Envelope.Hold != 4*time.Second {
		t.Errorf("EngineOptions = %+v", opts)
	}
}

func TestParseEmptyUsesDefaults(t *testing.T) {
	s, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if s.Engine != Default().Engine {
		t.Fatalf("engine = %+v", s.Engine)
	}
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":     "colour: red\n",
		"bad duration":    "engine: {period: soon}\n",
		"zero cap":        "engine: {max_notes: 0}\n",
		"cap over frame":  "engine: {max_notes: 36}\n",
		"thresholds":      "sustain: {high: 30, low: 40}\n",
		"envelope":        "envelope: {decay_scale: 0.9}\n",
		"overlap strips":  "strips: [{name: a, length: 10, max_note: 60}, {name: b, length: 10, max_note: 50}]\n",
		"no catalog":      "catalog: \"\"\n",
		"builtin no leds": "builtin: {leds_per_key: 0}\n",
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
	if _, err := Parse([]byte("strips: []\n")); !errors.Is(err, render.ErrInvalidLayout) {
		t.Errorf("empty strips: %v", err)
	}
}

func TestMaxNotesFitOneFrame(t *testing.T) {
	s, err := Parse([]byte(fmt.Sprintf("engine: {max_notes: %d}\n", render.MaxSpans)))
	if err != nil {
		t.Fatalf("max_notes %d: %v", render.MaxSpans, err)
	}

	// Every active note on one strip must still encode.
	c, err := s.OpenCatalog()
	if err != nil {
		t.Fatalf("OpenCatalog: %v", err)
	}
	var snap engine.Snapshot
	for id := note.ID(60); len(snap.Notes) < s.Engine.MaxNotes; id++ {
		cfg, ok := c.Lookup(id)
		if !ok {
			t.Fatalf("note %d missing", id)
		}
		snap.Notes = append(snap.Notes, engine.ActiveNote{Config: *cfg, Intensity: 100})
	}
	var buf bytes.Buffer
	sink := render.NewFrameSink(&buf, s.Strips, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := sink.Render(snap); err != nil {
		t.Fatalf("Render with %d notes on one strip: %v", len(snap.Notes), err)
	}

	s.Engine.MaxNotes = render.MaxSpans + 1
	if err := s.Validate(); err == nil {
		t.Fatalf("max_notes %d accepted", s.Engine.MaxNotes)
	}
}

func TestLoadCatalogFile(t *testing.T) {
	dir := t.TempDir()
	catalog := filepath.Join(dir, "notes.json")
	if err := os.WriteFile(catalog, []byte(`[{"name":"C4","midi":60,"led_range":[0,10],"note_type":"White"}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	settings := filepath.Join(dir, "lights.yaml")
	if err := os.WriteFile(settings, []byte("catalog: "+catalog+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(settings)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	c, err := s.OpenCatalog()
	if err != nil {
		t.Fatalf("OpenCatalog: %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("catalog has %d notes", c.Len())
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Load missing file: %v", err)
	}
}
