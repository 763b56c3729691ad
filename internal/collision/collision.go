// Package collision implements the per-particle update pass: neighbour and
// static-obstacle collision response followed by explicit integration
// under gravity.
package collision

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/san-kum/binsim/internal/binning"
	"github.com/san-kum/binsim/internal/particle"
	"github.com/san-kum/binsim/internal/texture"
)

const (
	// DefaultGravity is the downward acceleration in domain units per s^2.
	DefaultGravity float32 = 0.987

	// CorrectionFactor scales the contact half distance to the distance a
	// particle is pushed back to, so resolved pairs end slightly apart.
	CorrectionFactor float32 = 2.05
)

var ErrInvalidParams = errors.New("collision: invalid parameters")

// Flags select which collision sources contribute. They are fixed for the
// lifetime of a Pass.
type Flags struct {
	Collisions         bool // inter-particle collisions at all
	StaticCollisions   bool // the fixed obstacle list
	ExactCollisions    bool // also scan the 4-neighbourhood bins
	DiagonalCellChecks bool // also scan the diagonal bins; implies ExactCollisions
}

// Offsets returns the bin offsets scanned for neighbours, in scan order:
// own bin, then N, S, E, W, then the diagonals.
func (f Flags) Offsets() [][2]int {
	if !f.Collisions {
		return nil
	}
	out := [][2]int{{0, 0}}
	if f.ExactCollisions || f.DiagonalCellChecks {
		out = append(out, [2]int{0, 1}, [2]int{0, -1}, [2]int{1, 0}, [2]int{-1, 0})
	}
	if f.DiagonalCellChecks {
		out = append(out, [2]int{1, 1}, [2]int{-1, 1}, [2]int{1, -1}, [2]int{-1, -1})
	}
	return out
}

// Collider is a fixed circular obstacle.
type Collider struct {
	Center mgl32.Vec2
	Radius float32
}

type Params struct {
	Grid        binning.Grid
	Radius      float32 // particle radius
	Gravity     float32
	Restitution float32 // 0 removes the whole approaching normal component
	Flags       Flags
	Colliders   []Collider
}

func (p Params) Validate() error {
	if err := p.Grid.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	if !(p.Radius > 0) {
		return fmt.Errorf("%w: particle radius must be positive, got %v", ErrInvalidParams, p.Radius)
	}
	if p.Restitution < 0 || p.Restitution > 1 {
		return fmt.Errorf("%w: restitution must be in [0,1], got %v", ErrInvalidParams, p.Restitution)
	}
	for i, c := range p.Colliders {
		if !(c.Radius > 0) {
			return fmt.Errorf("%w: collider %d radius must be positive, got %v", ErrInvalidParams, i, c.Radius)
		}
	}
	return nil
}

// Pass is the compiled update pass. Its configuration never changes after
// construction, so one Pass can be shared by all workers.
type Pass struct {
	params    Params
	offsets   [][2]int
	colliders []Collider
}

func NewPass(p Params) (*Pass, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	var colliders []Collider
	if p.Flags.StaticCollisions {
		colliders = append(colliders, p.Colliders...)
	}
	return &Pass{params: p, offsets: p.Flags.Offsets(), colliders: colliders}, nil
}

func (s *Pass) Params() Params { return s.params }

// Step computes the next state of particle id. It only reads src and bins,
// both of which describe tick t.
func (s *Pass) Step(id int, src *texture.Texture2D, bins *texture.TextureArray, dt float32) particle.Particle {
	p := src.Load(id)

	r := s.params.Radius
	pos, vel := p.Position, p.Velocity

	if len(s.offsets) > 0 {
		if bx, by, ok := s.params.Grid.BinCoords(pos); ok {
			for _, off := range s.offsets {
				for _, slot := range binning.Occupants(bins, bx+off[0], by+off[1]) {
					other, self := occupant(slot, id, src)
					if self {
						continue
					}
					resolve(&pos, &vel, other.Position, r, s.params.Restitution)
				}
			}
		}
	}

	for _, c := range s.colliders {
		maxDst := (r + c.Radius) * 0.5
		overlap, hit := resolve(&pos, &vel, c.Center, maxDst, s.params.Restitution)
		if hit && overlap > 2*maxDst-r {
			return particle.Park()
		}
	}

	pos = pos.Add(vel.Mul(dt))
	vel = vel.Add(mgl32.Vec2{0, -s.params.Gravity}.Mul(dt))
	return particle.Particle{Position: pos, Velocity: vel}
}

// Run writes the next state of every particle into dst.
func (s *Pass) Run(src, dst *texture.Texture2D, bins *texture.TextureArray, dt float32, dispatch binning.Dispatch) error {
	if src.Width != dst.Width || src.Height != dst.Height {
		return fmt.Errorf("%w: src %dx%d, dst %dx%d", texture.ErrDimensionMismatch, src.Width, src.Height, dst.Width, dst.Height)
	}
	if src == dst {
		return fmt.Errorf("collision: source and destination must differ")
	}
	if dispatch == nil {
		dispatch = binning.Serial
	}
	dispatch(src.Len(), func(start, end int) {
		for id := start; id < end; id++ {
			dst.Store(id, s.Step(id, src, bins, dt))
		}
	})
	return nil
}

// occupant decodes a bin slot. Empty slots decode to a parked particle,
// which is too far away to collide with anything.
func occupant(slot uint32, self int, src *texture.Texture2D) (particle.Particle, bool) {
	id, ok := binning.Decode(slot)
	if !ok {
		return particle.Park(), false
	}
	if id == self {
		return particle.Particle{}, true
	}
	return src.Load(id), false
}

// resolve separates a circle at pos from one at q when their centres are
// within 2*maxDst. The push-out is scaled by how well the velocity lines
// up with the contact normal; a particle at rest is pushed the full
// amount. The approaching normal velocity is removed (scaled by
// 1+restitution); the tangential part is kept. pos and vel are updated in
// place, so later contacts in the same scan see the corrected values.
func resolve(pos, vel *mgl32.Vec2, q mgl32.Vec2, maxDst, restitution float32) (overlap float32, hit bool) {
	d := pos.Sub(q)
	dist2 := d.Dot(d)
	reach := 2 * maxDst
	if dist2 > reach*reach {
		return 0, false
	}

	dist := float32(math.Sqrt(float64(dist2)))
	if dist == 0 {
		// coincident centres have no normal to push along
		return CorrectionFactor * maxDst, true
	}
	n := d.Mul(1 / dist)

	overlap = max(CorrectionFactor*maxDst-dist, 0)
	align := float32(1)
	if speed := vel.Len(); speed > 0 {
		align = float32(math.Abs(float64(n.Dot(*vel)))) / speed
	}
	*pos = pos.Add(n.Mul(overlap * align))

	if vn := vel.Dot(n); vn < 0 {
		*vel = vel.Sub(n.Mul(vn * (1 + restitution)))
	}
	return overlap, true
}
