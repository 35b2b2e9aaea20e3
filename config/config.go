// Package config loads the YAML settings file and applies defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chase3718/lou-lights/engine"
	"github.com/chase3718/lou-lights/input"
	"github.com/chase3718/lou-lights/note"
	"github.com/chase3718/lou-lights/render"
)

// BuiltinCatalog selects the generated catalog instead of a mapping file.
const BuiltinCatalog = "builtin"

// Settings is the full runtime configuration. Zero-length strings disable
// the optional sources and outputs (UDP, serial, HTTP).
type Settings struct {
	Catalog  string               `yaml:"catalog"`
	Builtin  Builtin              `yaml:"builtin"`
	Engine   Engine               `yaml:"engine"`
	Envelope engine.Envelope      `yaml:"envelope"`
	Sustain  engine.SustainConfig `yaml:"sustain"`
	MIDI     MIDI                 `yaml:"midi"`
	UDP      UDP                  `yaml:"udp"`
	Serial   Serial               `yaml:"serial"`
	Strips   render.Layout        `yaml:"strips"`
	HTTP     string               `yaml:"http"`
}

// Builtin sizes the generated catalog.
type Builtin struct {
	LEDsPerKey int     `yaml:"leds_per_key"`
	Split      note.ID `yaml:"split"`
}

type Engine struct {
	Period    time.Duration `yaml:"period"`
	MaxNotes  int           `yaml:"max_notes"`
	QueueSize int           `yaml:"queue_size"`
}

type MIDI struct {
	Enabled          bool `yaml:"enabled"`
	input.MIDIConfig `yaml:",inline"`
}

type UDP struct {
	Addr string `yaml:"addr"`
}

type Serial struct {
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

// Default returns the settings used when no file is given.
func Default() *Settings {
	return &Settings{
		Catalog: BuiltinCatalog,
		Builtin: Builtin{LEDsPerKey: 30, Split: 59},
		Engine: Engine{
			Period:    engine.DefaultPeriod,
			MaxNotes:  engine.DefaultMaxNotes,
			QueueSize: engine.DefaultQueueSize,
		},
		Envelope: engine.DefaultEnvelope(),
		Sustain:  engine.DefaultSustain(),
		MIDI:     MIDI{Enabled: true, MIDIConfig: input.DefaultMIDIConfig()},
		UDP:      UDP{Addr: input.DefaultUDPAddr},
		Serial:   Serial{Device: "/dev/ttyACM0", Baud: 500000},
		Strips:   render.DefaultLayout(),
	}
}

// Load reads path over the defaults. Unknown keys are an error.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return s, nil
}

func Parse(data []byte) (*Settings, error) {
	s := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(s); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) Validate() error {
	var errs []error
	if s.Catalog == "" {
		errs = append(errs, errors.New("catalog: path required"))
	}
	if s.Catalog == BuiltinCatalog && s.Builtin.LEDsPerKey <= 0 {
		errs = append(errs, fmt.Errorf("builtin: leds_per_key %d must be > 0", s.Builtin.LEDsPerKey))
	}
	if s.Engine.Period <= 0 {
		errs = append(errs, fmt.Errorf("engine: period %v must be > 0", s.Engine.Period))
	}
	// One strip may hold every active note, and a strip is sent as one frame.
	if s.Engine.MaxNotes <= 0 || s.Engine.MaxNotes > render.MaxSpans {
		errs = append(errs, fmt.Errorf("engine: max_notes %d must be in 1..%d", s.Engine.MaxNotes, render.MaxSpans))
	}
	if s.Engine.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("engine: queue_size %d must be > 0", s.Engine.QueueSize))
	}
	if s.Serial.Device != "" && s.Serial.Baud <= 0 {
		errs = append(errs, fmt.Errorf("serial: baud %d must be > 0", s.Serial.Baud))
	}
	errs = append(errs, s.Envelope.Validate(), s.Sustain.Validate(), s.Strips.Validate())
	return errors.Join(errs...)
}

// OpenCatalog loads the configured note catalog.
func (s *Settings) OpenCatalog() (*note.Catalog, error) {
	if s.Catalog == BuiltinCatalog {
		return note.Builtin(s.Builtin.LEDsPerKey, s.Builtin.Split), nil
	}
	return note.LoadCatalog(s.Catalog)
}

// EngineOptions returns the driver tuning. The caller supplies the catalog,
// queue, sink and logger.
func (s *Settings) EngineOptions() engine.Options {
	return engine.Options{
		Envelope: s.Envelope,
		Sustain:  s.Sustain,
		MaxNotes: s.Engine.MaxNotes,
		Period:   s.Engine.Period,
	}
}
