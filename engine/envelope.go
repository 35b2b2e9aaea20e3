package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/chase3718/lou-lights/note"
)

// Envelope maps the age of a note to its current intensity.
//
// The age is normalised against Hold into p = age/Hold. A linear decay
// raw = birth*(1-p) is then scaled by region:
//
//	p <= Attack       raw * AttackScale
//	p <= SustainEnd   raw * SustainScale
//	p <= DecayEnd     raw * DecayScale
//	p >  DecayEnd     0
//
// The result is clamped to [0, Max] and truncated toward zero.
type Envelope struct {
	Hold time.Duration `yaml:"hold"`

	Attack     float64 `yaml:"attack"`
	SustainEnd float64 `yaml:"sustain_end"`
	DecayEnd   float64 `yaml:"decay_end"`

	AttackScale  float64 `yaml:"attack_scale"`
	SustainScale float64 `yaml:"sustain_scale"`
	DecayScale   float64 `yaml:"decay_scale"`

	Max uint8 `yaml:"max"`
}

func DefaultEnvelope() Envelope {
	return Envelope{
		Hold:         10 * time.Second,
		Attack:       0.015,
		SustainEnd:   0.15,
		DecayEnd:     1.0,
		AttackScale:  1.0,
		SustainScale: 0.3,
		DecayScale:   0.1,
		Max:          note.MaxValue,
	}
}

func (e Envelope) Validate() error {
	if e.Hold <= 0 {
		return errors.New("envelope: hold must be > 0")
	}
	if e.Attack < 0 || e.Attack > e.SustainEnd || e.SustainEnd > e.DecayEnd {
		return fmt.Errorf("envelope: breakpoints must satisfy 0 <= attack <= sustain_end <= decay_end (got %g, %g, %g)",
			e.Attack, e.SustainEnd, e.DecayEnd)
	}
	// Non-increasing scales keep intensity monotone across region boundaries.
	if e.DecayScale < 0 || e.SustainScale < e.DecayScale || e.AttackScale < e.SustainScale {
		return fmt.Errorf("envelope: scales must satisfy attack >= sustain >= decay >= 0 (got %g, %g, %g)",
			e.AttackScale, e.SustainScale, e.DecayScale)
	}
	if e.Max == 0 {
		return errors.New("envelope: max must be > 0")
	}
	return nil
}

// Intensity returns the intensity of a note struck at birth after age has
// elapsed. Negative ages are treated as zero.
func (e Envelope) Intensity(birth uint8, age time.Duration) uint8 {
	if age < 0 {
		age = 0
	}
	p := age.Seconds() / e.Hold.Seconds()
	raw := float64(birth) * (1 - p)

	var v float64
	switch {
	case p <= e.Attack:
		v = raw * e.AttackScale
	case p <= e.SustainEnd:
		v = raw * e.SustainScale
	case p <= e.DecayEnd:
		v = raw * e.DecayScale
	default:
		return 0
	}
	if v <= 0 {
		return 0
	}
	if v >= float64(e.Max) {
		return e.Max
	}
	return uint8(v)
}
