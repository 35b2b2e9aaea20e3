package note

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const sampleJSON = `[
  {"name": "C4", "midi": 60, "led_range": [100, 120], "note_type": "White"},
  {"name": "C#4", "midi": 61, "led_range": [120, 130], "note_type": "Black"},
  {"name": "A0", "midi": 21, "led_range": [0, 10], "note_type": "White"}
]`

func TestParseCatalogJSON(t *testing.T) {
	c, err := ParseCatalog([]byte(sampleJSON), FormatJSON)
	if err != nil {
		t.Fatalf("ParseCatalog: %v", err)
	}
	if c.Len() != 3 {
		t.Fatalf("got %d notes, want 3", c.Len())
	}
	n, ok := c.Lookup(61)
	if !ok {
		t.Fatalf("note 61 missing")
	}
	if n.Name != "C#4" || n.Timbre != Secondary || n.Range != (Range{120, 130}) {
		t.Fatalf("note 61 mismatch: %+v", n)
	}
	if _, ok := c.Lookup(62); ok {
		t.Fatalf("unexpected entry for 62")
	}
	if _, ok := c.Lookup(200); ok {
		t.Fatalf("unexpected entry for 200")
	}
	notes := c.Notes()
	if notes[0].ID != 21 || notes[2].ID != 61 {
		t.Fatalf("notes not ordered by id: %+v", notes)
	}
}

func TestParseCatalogYAML(t *testing.T) {
	src := `
- name: C4
  midi: 60
  led_range: [100, 120]
  note_type: primary
- name: C#4
  midi: 61
  led_range: [120, 130]
  note_type: Secondary
`
	c, err := ParseCatalog([]byte(src), FormatYAML)
	if err != nil {
		t.Fatalf("ParseCatalog: %v", err)
	}
	n, ok := c.Lookup(60)
	if !ok || n.Timbre != Primary || n.Range.Len() != 20 {
		t.Fatalf("note 60 mismatch: %+v", n)
	}
}

func TestParseCatalogRejects(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want error
	}{
		{"duplicate", `[{"name":"C4","midi":60,"led_range":[0,1],"note_type":"White"},
			{"name":"C4b","midi":60,"led_range":[1,2],"note_type":"White"}]`, ErrDuplicateID},
		{"garbage", `{not json`, ErrInvalidConfig},
		{"empty", `[]`, ErrInvalidConfig},
		{"unknown field", `[{"name":"C4","midi":60,"led_range":[0,1],"note_type":"White","x":1}]`, ErrInvalidConfig},
		{"bad timbre", `[{"name":"C4","midi":60,"led_range":[0,1],"note_type":"Green"}]`, ErrInvalidConfig},
		{"inverted range", `[{"name":"C4","midi":60,"led_range":[5,1],"note_type":"White"}]`, ErrInvalidConfig},
		{"short range", `[{"name":"C4","midi":60,"led_range":[5],"note_type":"White"}]`, ErrInvalidConfig},
		{"no name", `[{"name":"","midi":60,"led_range":[0,1],"note_type":"White"}]`, ErrInvalidConfig},
		{"not midi", `[{"name":"X","midi":200,"led_range":[0,1],"note_type":"White"}]`, ErrInvalidConfig},
	}
	for _, c := range cases {
		_, err := ParseCatalog([]byte(c.src), FormatJSON)
		if !errors.Is(err, c.want) {
			t.Errorf("%s: got err %v, want %v", c.name, err, c.want)
		}
	}
}

func TestLoadCatalogPicksFormatFromExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.yml")
	src := "- {name: D4, midi: 62, led_range: [0, 4], note_type: White}\n"
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	c, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if _, ok := c.Lookup(62); !ok {
		t.Fatalf("note 62 missing")
	}

	if _, err := LoadCatalog(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestNewCatalogCopiesInput(t *testing.T) {
	cfgs := []Config{{Name: "C4", ID: 60, Range: Range{0, 2}}}
	c, err := NewCatalog(cfgs)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	cfgs[0].Name = "changed"
	n, _ := c.Lookup(60)
	if n.Name != "C4" {
		t.Fatalf("catalog aliased caller slice: %q", n.Name)
	}
}

func TestBuiltinRestartsRangesAfterSplit(t *testing.T) {
	c := Builtin(10, 59)
	if c.Len() != int(MaxID-MinID)+1 {
		t.Fatalf("got %d notes", c.Len())
	}
	first, _ := c.Lookup(MinID)
	if first.Range != (Range{0, 10}) {
		t.Fatalf("first range %+v", first.Range)
	}
	low, _ := c.Lookup(59)
	if low.Range != (Range{370, 380}) {
		t.Fatalf("note 59 range %+v", low.Range)
	}
	high, _ := c.Lookup(60)
	if high.Range != (Range{0, 10}) || high.Name != "C4" || high.Timbre != Primary {
		t.Fatalf("note 60 %+v", high)
	}
	sharp, _ := c.Lookup(61)
	if sharp.Timbre != Secondary {
		t.Fatalf("note 61 should be a black key")
	}
}

func TestName(t *testing.T) {
	cases := map[ID]string{21: "A0", 22: "A#0", 60: "C4", 69: "A4", 108: "C8"}
	for id, want := range cases {
		if got := Name(id); got != want {
			t.Errorf("Name(%d) = %q, want %q", id, got, want)
		}
	}
}
