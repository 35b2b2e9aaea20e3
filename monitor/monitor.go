// Package monitor is a terminal view of the active notes.
package monitor

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/chase3718/lou-lights/engine"
	"github.com/chase3718/lou-lights/note"
	"github.com/chase3718/lou-lights/render"
)

const defaultBarWidth = 40

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	pedalStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff0")).Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#555"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888"))
)

// Sink hands snapshots to the UI. Only the newest pending snapshot is kept,
// so a slow terminal never holds up the engine.
type Sink struct {
	ch chan engine.Snapshot
}

func NewSink() *Sink {
	return &Sink{ch: make(chan engine.Snapshot, 1)}
}

// Render must be called from a single goroutine.
func (s *Sink) Render(snap engine.Snapshot) error {
	select {
	case s.ch <- snap:
		return nil
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- snap:
	default:
	}
	return nil
}

type snapshotMsg engine.Snapshot

func listenForSnapshots(s *Sink) tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(<-s.ch)
	}
}

type Model struct {
	sink     *Sink
	stats    func() engine.Stats
	snap     engine.Snapshot
	barWidth int
	quitting bool
}

// NewModel builds the UI model. stats may be nil.
func NewModel(sink *Sink, stats func() engine.Stats) Model {
	return Model{sink: sink, stats: stats, barWidth: defaultBarWidth}
}

func (m Model) Init() tea.Cmd {
	return listenForSnapshots(m.sink)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.barWidth = max(msg.Width-16, 8)
	case snapshotMsg:
		m.snap = engine.Snapshot(msg)
		return m, listenForSnapshots(m.sink)
	}
	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("lou-lights"))
	if m.snap.Sustained {
		b.WriteString("  " + pedalStyle.Render("SUSTAIN"))
	} else {
		b.WriteString("  " + dimStyle.Render("sustain"))
	}
	fmt.Fprintf(&b, "  %d active\n\n", m.snap.Len())

	for _, n := range m.snap.Notes {
		c := render.TimbreColor(n.Config.Timbre).Scale(n.Intensity)
		bar := lipgloss.NewStyle().
			Foreground(lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B))).
			Render(strings.Repeat("█", barLen(n.Intensity, m.barWidth)))
		fmt.Fprintf(&b, "%-4s %3d %s\n", n.ID(), n.Intensity, bar)
	}
	if m.snap.Len() == 0 {
		b.WriteString(dimStyle.Render("silence") + "\n")
	}

	if m.stats != nil {
		st := m.stats()
		b.WriteString("\n" + statusStyle.Render(fmt.Sprintf(
			"events %s  ignored %s  evicted %s  dropped %s  render errors %s",
			humanize.Comma(int64(st.Events)),
			humanize.Comma(int64(st.Ignored)),
			humanize.Comma(int64(st.Evicted)),
			humanize.Comma(int64(st.Dropped)),
			humanize.Comma(int64(st.SinkErrors)),
		)))
	}
	b.WriteString("\n" + dimStyle.Render("q: quit"))
	return b.String()
}

func barLen(intensity uint8, width int) int {
	return int(intensity) * width / note.MaxValue
}

// Run shows the monitor until the user quits or ctx is cancelled. It
// returns nil when the user quits.
func Run(ctx context.Context, sink *Sink, stats func() engine.Stats) error {
	p := tea.NewProgram(NewModel(sink, stats), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("monitor: %w", err)
	}
	return nil
}
