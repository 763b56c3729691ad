package metrics

import "github.com/san-kum/binsim/internal/particle"

// Metric accumulates a scalar over the ticks it observes.
type Metric interface {
	Name() string
	Observe(ps []particle.Particle, t float64)
	Value() float64
	Reset()
}
