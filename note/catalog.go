package note

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	ErrDuplicateID   = errors.New("duplicate note id")
	ErrInvalidConfig = errors.New("invalid note config")
)

// Timbre selects how a note is coloured by the renderer.
type Timbre uint8

const (
	Primary   Timbre = iota // white keys
	Secondary               // black keys
)

func (t Timbre) String() string {
	switch t {
	case Primary:
		return "White"
	case Secondary:
		return "Black"
	}
	return fmt.Sprintf("Timbre(%d)", uint8(t))
}

// ParseTimbre accepts the catalog spellings "White"/"Black" as well as
// "Primary"/"Secondary", case-insensitively.
func ParseTimbre(s string) (Timbre, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white", "primary":
		return Primary, nil
	case "black", "secondary":
		return Secondary, nil
	}
	return 0, fmt.Errorf("%w: unknown note_type %q", ErrInvalidConfig, s)
}

func (t Timbre) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Timbre) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseTimbre(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

func (t *Timbre) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := ParseTimbre(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Range is a half-open interval of LED indices [Start, End) on the strip
// that owns the note. It is encoded as a two element array.
type Range struct {
	Start, End int
}

func (r Range) Len() int { return r.End - r.Start }

func (r Range) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{r.Start, r.End})
}

func (r *Range) UnmarshalJSON(b []byte) error {
	var v []int
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return r.set(v)
}

func (r *Range) UnmarshalYAML(n *yaml.Node) error {
	var v []int
	if err := n.Decode(&v); err != nil {
		return err
	}
	return r.set(v)
}

func (r *Range) set(v []int) error {
	if len(v) != 2 {
		return fmt.Errorf("%w: led_range needs 2 elements, got %d", ErrInvalidConfig, len(v))
	}
	r.Start, r.End = v[0], v[1]
	return nil
}

// Config is the static configuration of one playable note.
type Config struct {
	Name   string `json:"name" yaml:"name"`
	ID     ID     `json:"midi" yaml:"midi"`
	Range  Range  `json:"led_range" yaml:"led_range"`
	Timbre Timbre `json:"note_type" yaml:"note_type"`
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: note %d has an empty name", ErrInvalidConfig, c.ID)
	}
	if c.ID > MaxValue {
		return fmt.Errorf("%w: note %q id %d is not a MIDI note", ErrInvalidConfig, c.Name, c.ID)
	}
	if c.Range.Start < 0 || c.Range.End < c.Range.Start {
		return fmt.Errorf("%w: note %q has led_range [%d, %d)", ErrInvalidConfig, c.Name, c.Range.Start, c.Range.End)
	}
	if c.Timbre != Primary && c.Timbre != Secondary {
		return fmt.Errorf("%w: note %q has timbre %d", ErrInvalidConfig, c.Name, c.Timbre)
	}
	return nil
}

// Catalog is the immutable note-to-output mapping. It is built once at
// startup and never modified, so concurrent lookups need no locking.
type Catalog struct {
	byID  [MaxValue + 1]*Config
	notes []Config
}

// NewCatalog validates cfgs and builds a catalog from a copy of them.
func NewCatalog(cfgs []Config) (*Catalog, error) {
	c := &Catalog{notes: slices.Clone(cfgs)}
	slices.SortStableFunc(c.notes, func(a, b Config) int { return int(a.ID) - int(b.ID) })
	for i := range c.notes {
		n := &c.notes[i]
		if err := n.validate(); err != nil {
			return nil, err
		}
		if prev := c.byID[n.ID]; prev != nil {
			return nil, fmt.Errorf("%w: %d (%q and %q)", ErrDuplicateID, n.ID, prev.Name, n.Name)
		}
		c.byID[n.ID] = n
	}
	return c, nil
}

// Lookup returns the configuration of id. The returned value is shared and
// must be treated as read-only.
func (c *Catalog) Lookup(id ID) (*Config, bool) {
	if int(id) >= len(c.byID) {
		return nil, false
	}
	n := c.byID[id]
	return n, n != nil
}

func (c *Catalog) Len() int { return len(c.notes) }

// Notes returns a copy of every entry ordered by id.
func (c *Catalog) Notes() []Config { return slices.Clone(c.notes) }

// Format is the encoding of a catalog file.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

// FormatOf picks the format from the file extension; anything that is not
// .yaml or .yml is read as JSON.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// ParseCatalog decodes a list of note configs and builds a catalog. Unknown
// fields are rejected.
func ParseCatalog(data []byte, f Format) (*Catalog, error) {
	var cfgs []Config
	switch f {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfgs); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfgs); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	if len(cfgs) == 0 {
		return nil, fmt.Errorf("%w: catalog is empty", ErrInvalidConfig)
	}
	return NewCatalog(cfgs)
}

// LoadCatalog reads and parses the catalog file at path.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	c, err := ParseCatalog(data, FormatOf(path))
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// Builtin returns a catalog covering MinID..MaxID with ledsPerKey LEDs per
// key. LED indices restart at the first key above split, so every range
// indexes into the strip that owns the note.
func Builtin(ledsPerKey int, split ID) *Catalog {
	var cfgs []Config
	base := MinID
	for id := MinID; id <= MaxID; id++ {
		if id == split+1 {
			base = id
		}
		start := int(id-base) * ledsPerKey
		t := Primary
		if IsBlackKey(id) {
			t = Secondary
		}
		cfgs = append(cfgs, Config{
			Name:   Name(id),
			ID:     id,
			Range:  Range{Start: start, End: start + ledsPerKey},
			Timbre: t,
		})
	}
	c, err := NewCatalog(cfgs)
	if err != nil {
		panic(err)
	}
	return c
}
