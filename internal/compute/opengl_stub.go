//go:build !opengl

package compute

import "github.com/san-kum/binsim/internal/particle"

// OpenGLBackend is unavailable in builds without the opengl tag.
type OpenGLBackend struct{}

func NewOpenGLBackend() *OpenGLBackend { return &OpenGLBackend{} }

func (c *OpenGLBackend) Name() string    { return BackendOpenGL }
func (c *OpenGLBackend) Available() bool { return false }

func (c *OpenGLBackend) Init(Resources) error { return ErrBackendUnavailable }

func (c *OpenGLBackend) BinPass(int) error { return ErrBackendUnavailable }

func (c *OpenGLBackend) UpdatePass(float32) error { return ErrBackendUnavailable }

func (c *OpenGLBackend) Swap() {}

func (c *OpenGLBackend) Readback(dst []particle.Particle) ([]particle.Particle, error) {
	return dst, ErrBackendUnavailable
}

func (c *OpenGLBackend) Cleanup() {}
