package tail

import (
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/neurobot/backend/internal/inference"
)

var (
	colorDimmed  = lipgloss.Color("#6b7280")
	colorEcho    = lipgloss.Color("#06b6d4")
	colorHealthy = lipgloss.Color("#22c55e")
	colorWarning = lipgloss.Color("#d97706")
	colorErrored = lipgloss.Color("#dc2626")
)

// Printer writes frames to out, coloured when the output supports it.
type Printer struct {
	out      io.Writer
	renderer *lipgloss.Renderer
	color    bool
}

func NewPrinter(out io.Writer, color bool) *Printer {
	return &Printer{out: out, renderer: lipgloss.NewRenderer(out), color: color}
}

func (p *Printer) Print(f Frame) error {
	line := f.Text()
	if p.color {
		line = frameStyle(p.renderer, f).Render(line)
	}
	_, err := io.WriteString(p.out, line+"\n")
	return err
}

func frameStyle(r *lipgloss.Renderer, f Frame) lipgloss.Style {
	s := r.NewStyle()
	switch f.Type {
	case "welcome":
		return s.Foreground(colorDimmed)
	case "echo":
		return s.Foreground(colorEcho)
	case "eeg_processed":
		switch optString(f.Mood) {
		case inference.MoodError:
			return s.Foreground(colorErrored)
		case inference.MoodNoKey, "":
			return s.Foreground(colorWarning)
		}
		return s.Foreground(colorHealthy).Bold(true)
	}
	return s
}
