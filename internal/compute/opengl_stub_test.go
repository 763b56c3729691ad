//go:build !opengl

package compute

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpenGLStubUnavailable(t *testing.T) {
	b := NewOpenGLBackend()
	assert.False(t, b.Available())
	assert.ErrorIs(t, b.Init(Resources{}), ErrBackendUnavailable)

	_, err := New(BackendOpenGL)
	assert.ErrorIs(t, err, ErrBackendUnavailable)

	assert.Equal(t, BackendCPU, AutoSelectBackend().Name())
}
