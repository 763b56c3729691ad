package viz

import (
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/binsim/internal/binning"
	"github.com/san-kum/binsim/internal/collision"
	"github.com/san-kum/binsim/internal/engine"
	"github.com/san-kum/binsim/internal/metrics"
	"github.com/san-kum/binsim/internal/present"
)

const (
	statsWidth  = 42
	graphWidth  = 30
	historySize = 240

	// GIFPath is where G writes the recording.
	GIFPath = "binsim.gif"
)

// Session is the part of an engine the terminal view drives.
type Session interface {
	IsRunning() bool
	HandleResize(width, height int) error
	Record(r engine.Recorder) error
	StopRecording() error
	Recording() bool
}

var _ Session = (*engine.Engine)(nil)

type frameMsg struct {
	tick   int64
	view   string
	parked int
	total  int
}

type resizedMsg struct{ err error }

type recordMsg struct {
	recording bool
	err       error
}

// Model is the terminal UI around a running session. Frames arrive from
// the engine's presentation pass; the model never steps the simulation.
type Model struct {
	session   Session
	collector *metrics.Collector
	colliders []collision.Collider
	backend   string

	cols, rows int
	view       string
	tick       int64
	parked     int
	total      int
	recording  bool
	showHelp   bool
	status     string
}

func NewModel(s Session, c *metrics.Collector, colliders []collision.Collider, backend string, cols, rows int) Model {
	return Model{
		session:   s,
		collector: c,
		colliders: colliders,
		backend:   backend,
		cols:      max(cols, 1),
		rows:      max(rows, 1),
	}
}

func (m Model) Init() tea.Cmd { return nil }

// Update handles input and frames. Calls into the session run as commands:
// the engine blocks on Send while presenting, so Update must not wait on it.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch strings.ToLower(msg.String()) {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "?":
			m.showHelp = !m.showHelp
		case "t":
			NextTheme()
		case "g":
			return m, m.toggleRecording()
		}

	case tea.WindowSizeMsg:
		m.cols = max(msg.Width-statsWidth-4, 1)
		m.rows = max(msg.Height-2, 1)
		s, w, h := m.session, m.cols*2, m.rows*4
		return m, func() tea.Msg {
			return resizedMsg{err: s.HandleResize(w, h)}
		}

	case resizedMsg:
		if msg.err != nil && !errors.Is(msg.err, engine.ErrNotRunning) {
			m.status = "resize: " + msg.err.Error()
		}

	case recordMsg:
		m.recording = msg.recording
		if msg.err != nil {
			m.status = "gif: " + msg.err.Error()
		} else if !msg.recording {
			m.status = "saved " + GIFPath
		}

	case frameMsg:
		m.tick, m.view = msg.tick, msg.view
		m.parked, m.total = msg.parked, msg.total
	}
	return m, nil
}

func (m Model) toggleRecording() tea.Cmd {
	s, colliders := m.session, m.colliders
	return func() tea.Msg {
		if s.Recording() {
			return recordMsg{recording: false, err: s.StopRecording()}
		}
		if err := s.Record(newGIFRecorder(GIFPath, colliders)); err != nil {
			return recordMsg{err: err}
		}
		return recordMsg{recording: true}
	}
}

// View renders the canvas next to a stats panel.
func (m Model) View() string {
	canvasView := canvasStyle.Render(particleStyle().Render(m.view))

	var s strings.Builder
	s.WriteString(titleStyle().Render("BINSIM") + "\n")
	state := "RUNNING"
	if !m.session.IsRunning() {
		state = "STOPPED"
	}
	if m.recording {
		state += "  " + StatusRecording.Render("● REC")
	}
	s.WriteString(state + "\n\n")

	row := func(label, value string) {
		s.WriteString(labelStyle.Render(label) + valueStyle().Render(value) + "\n")
	}
	row("Tick", fmt.Sprintf("%d", m.tick))
	row("Particles", fmt.Sprintf("%d", m.total))
	row("Parked", fmt.Sprintf("%d", m.parked))
	row("Backend", m.backend)
	row("Viewport", fmt.Sprintf("%dx%d", m.cols*2, m.rows*4))

	if sample, ok := m.collector.Last(); ok {
		row("Mean speed", fmt.Sprintf("%.4f", sample.MeanSpeed))
		row("Occupied", fmt.Sprintf("%d", sample.Occupied))
		row("Overflow", fmt.Sprintf("%d", sample.Overflow))
		s.WriteString(labelStyle.Render("Max load") +
			LoadBar(float64(sample.MaxLoad)/float64(binning.Capacity+1), 16) +
			fmt.Sprintf(" %d", sample.MaxLoad) + "\n")
	}

	energy := tail(m.collector.Series(func(s metrics.Sample) float64 { return s.KineticEnergy }), historySize)
	if len(energy) > 1 {
		chart := asciigraph.Plot(energy,
			asciigraph.Height(5),
			asciigraph.Width(graphWidth),
			asciigraph.Caption("Kinetic energy"))
		s.WriteString("\n" + graphStyle.Render(chart) + "\n")
	}
	speed := m.collector.Series(func(s metrics.Sample) float64 { return s.MeanSpeed })
	s.WriteString("\n" + labelStyle.Render("Speed") + graphStyle.Render(SparklineChart(speed, graphWidth-12)) + "\n")

	if m.status != "" {
		s.WriteString("\n" + valueStyle().Render(m.status) + "\n")
	}
	s.WriteString(helpStyle.Render("Q:Quit  G:Record  T:Theme  ?:Help"))

	mainView := lipgloss.JoinHorizontal(lipgloss.Top, canvasView, statsStyle.Render(s.String()))
	if m.showHelp {
		return `
╔══════════════════════════════════╗
║        KEYBOARD SHORTCUTS        ║
╠══════════════════════════════════╣
║  Q        - Quit                 ║
║  G        - Toggle GIF recording ║
║  T        - Cycle themes         ║
║  ?        - Toggle this help     ║
╚══════════════════════════════════╝
` + "\n" + mainView
	}
	return mainView
}

func tail(v []float64, n int) []float64 {
	if len(v) > n {
		return v[len(v)-n:]
	}
	return v
}

// Draw rasterizes a frame onto a braille canvas sized to its viewport:
// one canvas dot per viewport pixel.
func Draw(f present.Frame, colliders []collision.Collider) *Canvas {
	c := NewCanvas(f.Width/2, f.Height/4)
	for _, col := range colliders {
		c.Circle(col.Center, col.Radius)
	}
	for _, p := range f.Particles {
		if p.IsParked() {
			continue
		}
		c.Plot(p.Position)
	}
	c.Frame()
	return c
}
