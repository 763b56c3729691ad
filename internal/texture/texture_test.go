package texture

import (
	"sync"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/binsim/internal/particle"
)

func TestTexture2DUploadReadback(t *testing.T) {
	ps := []particle.Particle{
		{Position: mgl32.Vec2{0.1, 0.2}, Velocity: mgl32.Vec2{1, 2}},
		{Position: mgl32.Vec2{-0.3, 0.4}},
		{Position: mgl32.Vec2{0.5, -0.6}, Velocity: mgl32.Vec2{-1, 0}},
		particle.Park(),
	}
	tex, err := NewTexture2DFrom(2, 2, ps)
	require.NoError(t, err)

	assert.Equal(t, 4, tex.Len())
	assert.Equal(t, ps, tex.Readback(nil))
	assert.Equal(t, ps[2], tex.Load(particle.ID(0, 1, 2)))
}

func TestTexture2DUploadMismatch(t *testing.T) {
	tex, err := NewTexture2D(3, 3)
	require.NoError(t, err)

	err = tex.Upload(make([]particle.Particle, 4))
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestNewRejectsEmpty(t *testing.T) {
	_, err := NewTexture2D(0, 3)
	assert.ErrorIs(t, err, ErrEmpty)
	_, err = NewTarget2D(3, 0)
	assert.ErrorIs(t, err, ErrEmpty)
	_, err = NewTextureArray(3, 3, 0)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestTargetWriteMinKeepsSmallest(t *testing.T) {
	tgt, err := NewTarget2D(4, 4)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for v := uint32(100); v >= 3; v-- {
		wg.Add(1)
		go func(v uint32) {
			defer wg.Done()
			tgt.WriteMin(1, 2, v)
		}(v)
	}
	wg.Wait()

	assert.Equal(t, uint32(3), tgt.At(1, 2))
	assert.Equal(t, uint32(0), tgt.At(0, 0))

	tgt.Clear()
	assert.Equal(t, uint32(0), tgt.At(1, 2))
}

func TestArrayCopyLayer(t *testing.T) {
	arr, err := NewTextureArray(2, 2, 4)
	require.NoError(t, err)
	tgt, err := NewTarget2D(2, 2)
	require.NoError(t, err)

	tgt.WriteMin(1, 1, 7)
	require.NoError(t, arr.CopyLayer(2, tgt))

	assert.Equal(t, uint32(7), arr.At(1, 1, 2))
	assert.Equal(t, uint32(0), arr.At(1, 1, 1))
	assert.Equal(t, uint32(0), arr.At(-1, 0, 0))
	assert.Equal(t, uint32(0), arr.At(0, 5, 0))

	assert.ErrorIs(t, arr.CopyLayer(4, tgt), ErrDimensionMismatch)

	small, err := NewTarget2D(1, 1)
	require.NoError(t, err)
	assert.ErrorIs(t, arr.CopyLayer(0, small), ErrDimensionMismatch)
}

func TestPingPongSwap(t *testing.T) {
	initial, err := NewTexture2DFrom(1, 1, []particle.Particle{{Position: mgl32.Vec2{0.5, 0.5}}})
	require.NoError(t, err)

	pp, err := NewPingPong(initial)
	require.NoError(t, err)

	assert.Same(t, initial, pp.Read())
	assert.NotSame(t, pp.Read(), pp.Write())
	assert.Equal(t, 0, pp.Current())

	pp.Write().Store(0, particle.Park())
	pp.Swap()

	assert.Equal(t, 1, pp.Current())
	assert.True(t, pp.Read().Load(0).IsParked())
	assert.Same(t, initial, pp.Write())
}
