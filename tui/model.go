package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"go-chorale/playback"
	"go-chorale/theme"
)

type Model struct {
	Conductor *playback.Conductor
	Theme     *theme.Theme
	Title     string

	// replay restarts the performance from the top.
	replay   func() error
	quitting bool
	err      error
}

type UpdateMsg struct{}

type tickMsg time.Time

func NewModel(c *playback.Conductor, th *theme.Theme, title string, replay func() error) Model {
	return Model{
		Conductor: c,
		Theme:     th,
		Title:     title,
		replay:    replay,
	}
}

func ListenForUpdates(c *playback.Conductor) tea.Cmd {
	return func() tea.Msg {
		<-c.UpdateChan
		return UpdateMsg{}
	}
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(ListenForUpdates(m.Conductor), tick())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			m.Conductor.Stop()
			return m, tea.Quit

		case "p", " ":
			if m.Conductor.Playing() {
				m.Conductor.Stop()
			} else if m.replay != nil {
				m.err = m.replay()
			}
		}

	case UpdateMsg:
		return m, ListenForUpdates(m.Conductor)

	case tickMsg:
		return m, tick()
	}

	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	headerStyle := lipgloss.NewStyle().Foreground(m.Theme.Accent())
	dimStyle := lipgloss.NewStyle().Foreground(m.Theme.Muted())
	soundStyle := lipgloss.NewStyle().Foreground(m.Theme.Success())
	skipStyle := lipgloss.NewStyle().Foreground(m.Theme.Warning())
	labelStyle := lipgloss.NewStyle().Foreground(m.Theme.FG())

	_, _, playing := m.Conductor.RunInfo()
	playState := "STOP"
	if playing {
		playState = "PLAY"
	}
	elapsed := m.Conductor.Elapsed().Seconds()

	header := headerStyle.Render(fmt.Sprintf("go-chorale  %s  %s  %6.2fs", m.Title, playState, elapsed))

	sym := m.Theme.Symbols

	// Harmony line: one cell per region, label underneath the sounding one.
	var harmony strings.Builder
	var soundingLabel string
	for _, r := range m.Conductor.RegionViews() {
		switch {
		case r.Skipped:
			harmony.WriteString(skipStyle.Render(string(sym.RegionSkipped)))
		case r.Sounding:
			harmony.WriteString(soundStyle.Render(string(sym.RegionSounding)))
			soundingLabel = r.Label
		case playing && elapsed > r.OnsetSeconds+r.DurationSeconds:
			harmony.WriteString(dimStyle.Render(string(sym.RegionDone)))
		default:
			harmony.WriteString(dimStyle.Render(string(sym.RegionIdle)))
		}
		harmony.WriteString(" ")
	}

	// Melody line.
	var melody strings.Builder
	var soundingNote string
	for _, n := range m.Conductor.MelodyViews() {
		switch {
		case n.Sounding:
			melody.WriteString(soundStyle.Render(string(sym.NoteSounding)))
			soundingNote = noteName(n.Pitch)
		case playing && elapsed > n.OnsetSeconds+n.DurationSeconds:
			melody.WriteString(dimStyle.Render(string(sym.NoteDone)))
		default:
			melody.WriteString(dimStyle.Render(string(sym.NoteIdle)))
		}
		melody.WriteString(" ")
	}

	now := ""
	if soundingLabel != "" || soundingNote != "" {
		now = labelStyle.Render(fmt.Sprintf("%s %s  %s", string(sym.Playhead), soundingLabel, soundingNote))
	}

	help := dimStyle.Render("p/space:play-stop  q:quit")

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n\n")
	out.WriteString("  chords  ")
	out.WriteString(harmony.String())
	out.WriteString("\n  melody  ")
	out.WriteString(melody.String())
	out.WriteString("\n\n  ")
	out.WriteString(now)
	out.WriteString("\n\n")
	out.WriteString(help)

	if m.err != nil {
		out.WriteString("\n")
		out.WriteString(skipStyle.Render(m.err.Error()))
	}

	return out.String()
}

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

func noteName(pitch uint8) string {
	return fmt.Sprintf("%s%d", noteNames[pitch%12], int(pitch)/12-1)
}
