package compute

import (
	"errors"
	"fmt"

	"github.com/san-kum/binsim/internal/collision"
	"github.com/san-kum/binsim/internal/logging"
	"github.com/san-kum/binsim/internal/particle"
)

var (
	ErrBackendUnavailable = errors.New("compute: backend unavailable")
	ErrUnknownBackend     = errors.New("compute: unknown backend")
	ErrNotInitialized     = errors.New("compute: backend not initialized")
	// ErrDeviceLost means the device or context went away mid-session.
	ErrDeviceLost = errors.New("compute: device lost")
)

// Resources describes everything a backend allocates at session start.
type Resources struct {
	Width, Height int // particle state texture; Width*Height particles
	Initial       []particle.Particle
	Update        collision.Params
}

func (r Resources) Validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("compute: state texture must be positive, got %dx%d", r.Width, r.Height)
	}
	if len(r.Initial) != r.Width*r.Height {
		return fmt.Errorf("compute: %d initial particles for %dx%d texture", len(r.Initial), r.Width, r.Height)
	}
	return r.Update.Validate()
}

type Backend interface {
	Name() string
	Available() bool
	// Init allocates the state pair and bin array and uploads the initial
	// particles. It may be called again to start a fresh session.
	Init(res Resources) error
	// BinPass builds layer k of the bin array from the current state.
	// Layers must be built in order 0..binning.Capacity-1.
	BinPass(k int) error
	// UpdatePass writes the next state from the current state and bins.
	UpdatePass(dt float32) error
	// Swap makes the state written by UpdatePass current.
	Swap()
	// Readback appends the current state, id order, to dst.
	Readback(dst []particle.Particle) ([]particle.Particle, error)
	Cleanup()
}

const (
	BackendAuto   = "auto"
	BackendCPU    = "cpu"
	BackendOpenGL = "opengl"
)

// Names lists the selectable backend names.
func Names() []string {
	return []string{BackendAuto, BackendCPU, BackendOpenGL}
}

// New returns the named backend. "auto" picks the best available one.
func New(name string) (Backend, error) {
	switch name {
	case "", BackendAuto:
		return AutoSelectBackend(), nil
	case BackendCPU:
		return NewCPUBackend(), nil
	case BackendOpenGL:
		gl := NewOpenGLBackend()
		if !gl.Available() {
			return nil, fmt.Errorf("%w: %s", ErrBackendUnavailable, gl.Name())
		}
		return gl, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
}

// AutoSelectBackend prefers OpenGL when it can create a context and falls
// back to the CPU.
func AutoSelectBackend() Backend {
	gl := NewOpenGLBackend()
	if gl.Available() {
		logging.Logger().Info("compute backend selected", "backend", gl.Name())
		return gl
	}
	gl.Cleanup()
	logging.Logger().Warn("opengl unavailable, using cpu backend")
	return NewCPUBackend()
}
