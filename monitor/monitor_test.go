package monitor

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/chase3718/lou-lights/engine"
	"github.com/chase3718/lou-lights/note"
)

func snapshot(t *testing.T, ids ...note.ID) engine.Snapshot {
	t.Helper()
	c := note.Builtin(4, 59)
	var s engine.Snapshot
	for _, id := range ids {
		cfg, _ := c.Lookup(id)
		s.Notes = append(s.Notes, engine.ActiveNote{Config: *cfg, Intensity: 100})
	}
	return s
}

func TestSinkKeepsNewest(t *testing.T) {
	s := NewSink()
	s.Render(snapshot(t, 60))
	s.Render(snapshot(t, 60, 62))
	s.Render(snapshot(t, 64))
	got := <-s.ch
	if got.Len() != 1 || got.Notes[0].ID() != 64 {
		t.Fatalf("got %v", got)
	}
	select {
	case extra := <-s.ch:
		t.Fatalf("unexpected extra snapshot %v", extra)
	default:
	}
}

func TestModelShowsNotes(t *testing.T) {
	sink := NewSink()
	m := NewModel(sink, func() engine.Stats { return engine.Stats{Events: 12345} })

	snap := snapshot(t, 60, 61)
	snap.Sustained = true
	next, cmd := m.Update(snapshotMsg(snap))
	if cmd == nil {
		t.Fatalf("model stopped listening for snapshots")
	}
	view := next.View()
	for _, want := range []string{"C4", "C#4", "SUSTAIN", "2 active", "12,345"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestModelQuits(t *testing.T) {
	m := NewModel(NewSink(), nil)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatalf("no command on quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("q did not quit")
	}
	if next.View() != "" {
		t.Fatalf("view after quit: %q", next.View())
	}
}

func TestBarLen(t *testing.T) {
	if barLen(127, 40) != 40 || barLen(0, 40) != 0 || barLen(64, 40) != 20 {
		t.Fatalf("bar lengths %d %d %d", barLen(127, 40), barLen(0, 40), barLen(64, 40))
	}
}
