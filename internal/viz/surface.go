package viz

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/binsim/internal/collision"
	"github.com/san-kum/binsim/internal/present"
)

// TerminalSurface presents frames by sending them to a bubbletea program.
type TerminalSurface struct {
	colliders []collision.Collider

	mu   sync.Mutex
	send func(tea.Msg)
}

func NewTerminalSurface(colliders []collision.Collider) *TerminalSurface {
	return &TerminalSurface{colliders: colliders}
}

// Attach sets where frames go, usually (*tea.Program).Send.
func (s *TerminalSurface) Attach(send func(tea.Msg)) {
	s.mu.Lock()
	s.send = send
	s.mu.Unlock()
}

func (s *TerminalSurface) Acquire(width, height int) (present.Target, error) {
	if width < 2 || height < 4 {
		return nil, present.ErrUnavailable
	}
	return &terminalTarget{surface: s}, nil
}

type terminalTarget struct {
	surface *TerminalSurface
}

func (t *terminalTarget) Resize(int, int) {}

func (t *terminalTarget) Present(f present.Frame) error {
	t.surface.mu.Lock()
	send := t.surface.send
	t.surface.mu.Unlock()
	if send == nil {
		return nil
	}

	parked := 0
	for _, p := range f.Particles {
		if p.IsParked() {
			parked++
		}
	}
	send(frameMsg{
		tick:   f.Tick,
		view:   Draw(f, t.surface.colliders).String(),
		parked: parked,
		total:  len(f.Particles),
	})
	return nil
}

func (t *terminalTarget) Release() {}
