// Package present defines the presentation boundary: the orchestrator
// hands every tick's particle state to a Target acquired from a Surface.
package present

import (
	"errors"

	"github.com/san-kum/binsim/internal/particle"
)

var ErrUnavailable = errors.New("present: surface unavailable")

// Frame is one tick's output.
type Frame struct {
	Tick          int64
	Width, Height int
	PointSize     float32 // particle radius in pixels
	// Particles is the state after the tick, in id order. It is only valid
	// for the duration of the call that received it.
	Particles []particle.Particle
}

// Surface is where a session draws. Acquire fails with an error wrapping
// ErrUnavailable when no drawing context can be created.
type Surface interface {
	Acquire(width, height int) (Target, error)
}

type Target interface {
	Resize(width, height int)
	Present(f Frame) error
	Release()
}

// PointSize converts a radius in domain units to pixels for a viewport.
// The domain spans [-1,1] so one pixel is min(1/width, 1/height) units.
func PointSize(radius float32, width, height int) float32 {
	if width <= 0 || height <= 0 {
		return 0
	}
	pixel := min(1/float32(width), 1/float32(height))
	return radius / pixel
}

// ToPixel maps a domain position to viewport pixel coordinates, y up.
func ToPixel(p particle.Particle, width, height int) (x, y float32) {
	x = (p.Position.X()*0.5 + 0.5) * float32(width)
	y = (0.5 - p.Position.Y()*0.5) * float32(height)
	return x, y
}
