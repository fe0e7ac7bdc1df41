package tail

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// maxRows bounds the scrollback the view keeps.
const maxRows = 500

// KeyMap defines the view's keyboard bindings.
type KeyMap struct {
	Clear key.Binding
	Quit  key.Binding
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Clear: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "clear"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

func (k KeyMap) ShortHelp() []key.Binding  { return []key.Binding{k.Clear, k.Quit} }
func (k KeyMap) FullHelp() [][]key.Binding { return [][]key.Binding{k.ShortHelp()} }

type frameMsg Frame

type connMsg bool

// Feed forwards a Client's frames and connection changes into a running
// program.
type Feed struct {
	p *tea.Program
}

func NewFeed(p *tea.Program) *Feed {
	return &Feed{p: p}
}

func (f *Feed) Print(fr Frame) error {
	f.p.Send(frameMsg(fr))
	return nil
}

func (f *Feed) Connected(up bool) {
	f.p.Send(connMsg(up))
}

// Model is a full-screen live-feed view: connection status, the latest
// processed recording and a scrolling event list.
type Model struct {
	keys     KeyMap
	help     help.Model
	renderer *lipgloss.Renderer

	url       string
	connected bool
	received  int
	rows      []Frame
	latest    *Frame

	width  int
	height int
}

func NewModel(url string) Model {
	return Model{
		keys:     DefaultKeyMap(),
		help:     help.New(),
		renderer: lipgloss.DefaultRenderer(),
		url:      url,
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Clear):
			m.rows = nil
			m.latest = nil
		}

	case connMsg:
		m.connected = bool(msg)

	case frameMsg:
		f := Frame(msg)
		m.received++
		m.rows = append(m.rows, f)
		if len(m.rows) > maxRows {
			m.rows = m.rows[len(m.rows)-maxRows:]
		}
		if f.Type == "eeg_processed" {
			m.latest = &f
		}
	}
	return m, nil
}

func (m Model) View() string {
	title := m.renderer.NewStyle().Bold(true).Render("neurobot live")
	status := m.renderer.NewStyle().Foreground(colorErrored).Render("disconnected")
	if m.connected {
		status = m.renderer.NewStyle().Foreground(colorHealthy).Render("connected")
	}
	header := fmt.Sprintf("%s  %s  %s  events=%d", title, status,
		m.renderer.NewStyle().Foreground(colorDimmed).Render(m.url), m.received)

	var b strings.Builder
	b.WriteString(header + "\n\n")
	b.WriteString(m.latestPanel() + "\n\n")

	for _, f := range m.visibleRows() {
		b.WriteString(frameStyle(m.renderer, f).Render(f.Text()) + "\n")
	}
	b.WriteString("\n" + m.help.View(m.keys))
	return b.String()
}

func (m Model) latestPanel() string {
	box := m.renderer.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	if m.latest == nil {
		return box.Foreground(colorDimmed).Render("waiting for a recording")
	}
	f := *m.latest
	lines := []string{
		frameStyle(m.renderer, f).Render(fmt.Sprintf("mood   %s", optString(f.Mood))),
		fmt.Sprintf("record %s", optInt(f.RecordID)),
	}
	if s := f.Features; s != nil {
		lines = append(lines,
			fmt.Sprintf("n=%d  mean=%.4g  std=%.4g", s.Length, s.Mean, s.Std),
			fmt.Sprintf("min=%.4g  max=%.4g", s.Min, s.Max))
	}
	return box.Render(strings.Join(lines, "\n"))
}

// visibleRows returns the newest rows that fit under the header, the
// latest panel and the help line.
func (m Model) visibleRows() []Frame {
	room := len(m.rows)
	if m.height > 0 {
		room = max(m.height-12, 1)
	}
	if len(m.rows) <= room {
		return m.rows
	}
	return m.rows[len(m.rows)-room:]
}
