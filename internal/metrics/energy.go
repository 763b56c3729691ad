package metrics

import (
	"github.com/san-kum/binsim/internal/particle"
)

// KineticEnergy returns the total kinetic energy of the active particles,
// taking every particle to have unit mass.
func KineticEnergy(ps []particle.Particle) float64 {
	var ke float64
	for _, p := range ps {
		if p.IsParked() {
			continue
		}
		v := p.Velocity
		ke += 0.5 * float64(v.Dot(v))
	}
	return ke
}

// PotentialEnergy is measured from the floor of the domain at y = -1.
func PotentialEnergy(ps []particle.Particle, gravity float64) float64 {
	var pe float64
	for _, p := range ps {
		if p.IsParked() {
			continue
		}
		pe += gravity * (float64(p.Position.Y()) + 1)
	}
	return pe
}

// Energy is the mean total energy over the observed ticks.
type Energy struct {
	name        string
	gravity     float64
	samples     int
	totalEnergy float64
}

func NewEnergy(gravity float64) *Energy {
	return &Energy{
		name:    "energy",
		gravity: gravity,
	}
}

func (e *Energy) Name() string { return e.name }

func (e *Energy) Observe(ps []particle.Particle, t float64) {
	e.totalEnergy += KineticEnergy(ps) + PotentialEnergy(ps, e.gravity)
	e.samples++
}

func (e *Energy) Value() float64 {
	if e.samples == 0 {
		return 0
	}
	return e.totalEnergy / float64(e.samples)
}

func (e *Energy) Reset() {
	e.totalEnergy = 0
	e.samples = 0
}

// EnergyLoss is the largest fraction of the first observed energy lost
// so far. Inelastic contacts and removals only ever lose energy.
type EnergyLoss struct {
	name    string
	gravity float64
	initial float64
	maxLoss float64
	samples int
}

func NewEnergyLoss(gravity float64) *EnergyLoss {
	return &EnergyLoss{name: "energy_loss", gravity: gravity}
}

func (e *EnergyLoss) Name() string { return e.name }

func (e *EnergyLoss) Observe(ps []particle.Particle, t float64) {
	energy := KineticEnergy(ps) + PotentialEnergy(ps, e.gravity)
	if e.samples == 0 {
		e.initial = energy
	}
	e.samples++
	if e.initial == 0 {
		return
	}
	e.maxLoss = max(e.maxLoss, (e.initial-energy)/e.initial)
}

func (e *EnergyLoss) Value() float64 { return e.maxLoss }

func (e *EnergyLoss) Reset() {
	e.initial, e.maxLoss, e.samples = 0, 0, 0
}
