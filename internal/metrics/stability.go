package metrics

import (
	"github.com/san-kum/binsim/internal/particle"
)

// Containment is the mean fraction of active particles inside the [-1,1]
// domain. Particles that fall out keep integrating but are never binned,
// so they stop colliding.
type Containment struct {
	name    string
	sum     float64
	samples int
}

func NewContainment() *Containment {
	return &Containment{name: "containment"}
}

func (s *Containment) Name() string {
	return s.name
}

func (s *Containment) Observe(ps []particle.Particle, t float64) {
	active, inside := 0, 0
	for _, p := range ps {
		if p.IsParked() {
			continue
		}
		active++
		x, y := p.Position.X(), p.Position.Y()
		if x >= -1 && x < 1 && y >= -1 && y < 1 {
			inside++
		}
	}
	s.samples++
	if active == 0 {
		s.sum += 1
		return
	}
	s.sum += float64(inside) / float64(active)
}

func (s *Containment) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return s.sum / float64(s.samples)
}

func (s *Containment) Reset() {
	s.sum = 0
	s.samples = 0
}
