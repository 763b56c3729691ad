package viz

import (
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/binsim/internal/collision"
	"github.com/san-kum/binsim/internal/engine"
	"github.com/san-kum/binsim/internal/metrics"
)

const (
	initialCols = 80
	initialRows = 24
)

// Run starts a session on a terminal surface and blocks until the user
// quits. The collector must already be an observer of eng.
func Run(eng *engine.Engine, collector *metrics.Collector) error {
	cfg := eng.Config()
	var colliders []collision.Collider
	if cfg.Collisions.StaticCollisions {
		colliders = cfg.Params().Colliders
	}

	surface := NewTerminalSurface(colliders)
	model := NewModel(eng, collector, colliders, eng.Backend().Name(), initialCols, initialRows)
	p := tea.NewProgram(model, tea.WithAltScreen())
	surface.Attach(p.Send)

	if err := eng.Run(surface, initialCols*2, initialRows*4); err != nil {
		return err
	}
	_, runErr := p.Run()
	// Run has cancelled the program, so a Present blocked in Send returns.
	stopErr := eng.Stop()
	if errors.Is(stopErr, engine.ErrNotRunning) {
		stopErr = nil
	}
	if runErr != nil {
		return runErr
	}
	if stopErr != nil {
		return stopErr
	}
	return eng.Err()
}
