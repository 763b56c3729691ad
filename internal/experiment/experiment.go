// Package experiment runs headless sessions for a fixed number of ticks and
// collects their metrics.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/san-kum/binsim/internal/binning"
	"github.com/san-kum/binsim/internal/compute"
	"github.com/san-kum/binsim/internal/config"
	"github.com/san-kum/binsim/internal/engine"
	"github.com/san-kum/binsim/internal/metrics"
	"github.com/san-kum/binsim/internal/particle"
	"github.com/san-kum/binsim/internal/present"
)

type Config struct {
	Sim   config.Config
	Ticks int64
	// SampleEvery keeps one metrics sample every n ticks; 0 keeps all.
	SampleEvery int64
	// Backend overrides the one Sim.Backend names. The caller owns it.
	Backend compute.Backend
	// Surface defaults to a present.NullSurface.
	Surface present.Surface
}

type Result struct {
	Ticks   int64
	Wall    time.Duration
	Backend string
	Samples []metrics.Sample
	Metrics map[string]float64
	Final   []particle.Particle
}

type Experiment struct {
	cfg       Config
	observers []engine.Observer
	recorder  engine.Recorder
}

func New(cfg Config) *Experiment {
	return &Experiment{cfg: cfg}
}

// Observe adds an observer besides the metrics collector.
func (e *Experiment) Observe(o engine.Observer) {
	e.observers = append(e.observers, o)
}

// Record attaches a recorder for the whole run. It is closed when the run
// ends.
func (e *Experiment) Record(r engine.Recorder) {
	e.recorder = r
}

// NewCollector returns a collector with the standard run metrics.
func NewCollector(cfg *config.Config) *metrics.Collector {
	grid := binning.Grid{Columns: cfg.Grid.Columns, Rows: cfg.Grid.Rows}
	return metrics.NewCollector(grid,
		metrics.NewEnergy(cfg.Physics.Gravity),
		metrics.NewEnergyLoss(cfg.Physics.Gravity),
		metrics.NewContainment(),
	)
}

// Run steps the session with a simulated clock at the display rate, so
// results do not depend on wall time unless dt is measured.
func (e *Experiment) Run(ctx context.Context) (*Result, error) {
	simCfg := e.cfg.Sim
	collector := NewCollector(&simCfg)
	if e.cfg.SampleEvery > 0 {
		collector.SetEvery(e.cfg.SampleEvery)
	}

	src := engine.NewManualSource()
	opts := []engine.Option{engine.WithFrameSource(src), engine.WithObserver(collector)}
	for _, o := range e.observers {
		opts = append(opts, engine.WithObserver(o))
	}
	if e.cfg.Backend != nil {
		opts = append(opts, engine.WithBackend(e.cfg.Backend))
	}
	eng, err := engine.New(&simCfg, opts...)
	if err != nil {
		return nil, err
	}
	if e.cfg.Backend == nil {
		defer eng.Backend().Cleanup()
	}

	surface := e.cfg.Surface
	if surface == nil {
		surface = &present.NullSurface{}
	}
	if err := eng.Run(surface, simCfg.Display.Width, simCfg.Display.Height); err != nil {
		return nil, err
	}
	if e.recorder != nil {
		if err := eng.Record(e.recorder); err != nil {
			_ = eng.Stop()
			return nil, err
		}
	}

	frame := time.Second / time.Duration(simCfg.Display.FPS)
	now := time.Now()
	start := now
	var stepErr error
	for i := int64(0); i < e.cfg.Ticks; i++ {
		if err := ctx.Err(); err != nil {
			stepErr = err
			break
		}
		now = now.Add(frame)
		if !src.Step(now) {
			break
		}
	}
	wall := time.Since(start)

	recErr := eng.StopRecording()
	if err := eng.Stop(); err != nil && !errors.Is(err, engine.ErrNotRunning) {
		return nil, err
	}
	if err := errors.Join(stepErr, eng.Err(), recErr); err != nil {
		return nil, err
	}

	res := &Result{
		Ticks:   eng.Tick(),
		Wall:    wall,
		Backend: eng.Backend().Name(),
		Samples: collector.Samples(),
		Metrics: collector.Values(),
		Final:   eng.Snapshot(),
	}
	if last, ok := collector.Last(); ok {
		res.Metrics["active"] = float64(last.Active)
		res.Metrics["parked"] = float64(last.Parked)
		res.Metrics["mean_speed"] = last.MeanSpeed
		res.Metrics["max_load"] = float64(last.MaxLoad)
	}
	return res, nil
}

// RunEnsemble runs n copies of base concurrently, seeded seedStart,
// seedStart+1 and so on, each on its own CPU backend. A zero seed means a
// time based one, so start from 1 for reproducible ensembles.
func RunEnsemble(ctx context.Context, base Config, n int, seedStart int64) ([]*Result, error) {
	if n <= 0 {
		return nil, fmt.Errorf("experiment: ensemble size must be positive, got %d", n)
	}
	results := make([]*Result, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			cfg := base
			cfg.Sim.Particles.Seed = seedStart + int64(idx)
			backend := compute.NewCPUBackend()
			defer backend.Cleanup()
			cfg.Backend = backend

			results[idx], errs[idx] = New(cfg).Run(ctx)
			if errs[idx] != nil {
				errs[idx] = fmt.Errorf("seed %d: %w", cfg.Sim.Particles.Seed, errs[idx])
			}
		}(i)
	}

	wg.Wait()
	return results, errors.Join(errs...)
}
