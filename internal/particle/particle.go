// Package particle defines the particle record and how it is packed into
// state texels.
package particle

import (
	"math/rand"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	// Components per texel: x, y position then x, y velocity.
	Components = 4

	DefaultMinVelocity float32 = -0.1
	DefaultMaxVelocity float32 = 0.1
)

// Parked is where removed particles live. It lies far outside the [-1,1]
// domain so it never lands in a bin and never overlaps anything.
var Parked = mgl32.Vec2{-1000, -1000}

// parkedLimit separates parked particles from live ones. A parked particle
// keeps falling under gravity but has no horizontal velocity, so its x
// stays at Parked.X().
const parkedLimit float32 = -500

type Particle struct {
	Position mgl32.Vec2
	Velocity mgl32.Vec2
}

// IsParked reports whether p has been removed from the simulation.
func (p Particle) IsParked() bool {
	return p.Position.X() <= parkedLimit
}

// Park returns the removed form of a particle: parked position, no velocity.
func Park() Particle {
	return Particle{Position: Parked}
}

// Texel packs p as (x, y, vx, vy).
func (p Particle) Texel() [Components]float32 {
	return [Components]float32{p.Position[0], p.Position[1], p.Velocity[0], p.Velocity[1]}
}

// FromTexel is the inverse of Texel.
func FromTexel(t [Components]float32) Particle {
	return Particle{
		Position: mgl32.Vec2{t[0], t[1]},
		Velocity: mgl32.Vec2{t[2], t[3]},
	}
}

// ID returns the row-major particle id for texel coordinates in a texture
// of the given width.
func ID(x, y, width int) int {
	return x + y*width
}

// Coords is the inverse of ID.
func Coords(id, width int) (x, y int) {
	return id % width, id / width
}

// Generate returns cnt particles with positions uniform in [minPos, maxPos]
// and velocities uniform in [minVel, maxVel] on both axes.
func Generate(rng *rand.Rand, cnt int, minPos, maxPos mgl32.Vec2, minVel, maxVel float32) []Particle {
	out := make([]Particle, cnt)
	vmin := mgl32.Vec2{minVel, minVel}
	vmax := mgl32.Vec2{maxVel, maxVel}
	for i := range out {
		out[i] = Particle{
			Position: rangeRandom(rng, minPos, maxPos),
			Velocity: rangeRandom(rng, vmin, vmax),
		}
	}
	return out
}

func rangeRandom(rng *rand.Rand, lo, hi mgl32.Vec2) mgl32.Vec2 {
	return mgl32.Vec2{
		rng.Float32()*(hi[0]-lo[0]) + lo[0],
		rng.Float32()*(hi[1]-lo[1]) + lo[1],
	}
}
