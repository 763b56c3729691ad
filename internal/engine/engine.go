// Package engine is the frame orchestrator. It owns a compute backend and
// drives one session at a time through the per-tick pass sequence: bin
// layers 0..Capacity-1, the update pass, the state swap, then presentation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"github.com/san-kum/binsim/internal/binning"
	"github.com/san-kum/binsim/internal/compute"
	"github.com/san-kum/binsim/internal/config"
	"github.com/san-kum/binsim/internal/logging"
	"github.com/san-kum/binsim/internal/particle"
	"github.com/san-kum/binsim/internal/present"
)

// Observer sees every presented frame. Observe runs on the session
// goroutine and must not call Stop.
type Observer interface {
	Observe(f present.Frame)
}

type ObserverFunc func(f present.Frame)

func (fn ObserverFunc) Observe(f present.Frame) { fn(f) }

type Option func(*Engine)

func WithBackend(b compute.Backend) Option {
	return func(e *Engine) { e.backend = b }
}

func WithFrameSource(src FrameSource) Option {
	return func(e *Engine) { e.source = src }
}

func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

type Engine struct {
	cfg       config.Config
	backend   compute.Backend
	source    FrameSource
	observers []Observer
	logger    *slog.Logger

	running atomic.Bool
	tick    atomic.Int64

	mu        sync.Mutex
	sess      *session
	err       error
	width     int
	height    int
	pointSize float32
	state     []particle.Particle // last readback, published under mu
	recorder  Recorder
}

type session struct {
	id     uuid.UUID
	target present.Target
	frames <-chan time.Time
	resize chan resizeRequest
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once

	last time.Time
	bufs [2][]particle.Particle
	next int
}

type resizeRequest struct {
	width, height int
	done          chan struct{}
}

// New validates cfg and picks a backend unless one is supplied.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	e := &Engine{cfg: *cfg}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.Logger()
	}
	if e.backend == nil {
		b, err := compute.New(cfg.Backend)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrContextUnavailable, err)
		}
		e.backend = b
	}
	if e.source == nil {
		e.source = NewTickerSource(cfg.Display.FPS)
	}
	return e, nil
}

func (e *Engine) Config() config.Config  { return e.cfg }
func (e *Engine) Backend() compute.Backend { return e.backend }

// Run starts a session drawing to surface at width x height: it allocates
// the state texture for the full particle budget, seeds it, and begins
// scheduling ticks. It returns once the session is running.
func (e *Engine) Run(surface present.Surface, width, height int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess != nil {
		return ErrAlreadyRunning
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: viewport %dx%d", ErrInvalidConfig, width, height)
	}
	if surface == nil {
		return fmt.Errorf("%w: no surface", ErrContextUnavailable)
	}

	target, err := surface.Acquire(width, height)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrContextUnavailable, err)
	}

	initial := e.seed()
	side := e.cfg.Particles.CountSqrt
	err = e.backend.Init(compute.Resources{
		Width:   side,
		Height:  side,
		Initial: initial,
		Update:  e.cfg.Params(),
	})
	if err != nil {
		target.Release()
		if errors.Is(err, compute.ErrBackendUnavailable) {
			return fmt.Errorf("%w: %w", ErrContextUnavailable, err)
		}
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	s := &session{
		id:     uuid.New(),
		target: target,
		frames: e.source.Frames(),
		resize: make(chan resizeRequest),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	s.bufs[0] = initial
	s.bufs[1] = make([]particle.Particle, 0, len(initial))
	s.next = 1

	e.sess = s
	e.err = nil
	e.width, e.height = width, height
	e.pointSize = present.PointSize(e.cfg.ParticleRadius(), width, height)
	e.state = initial
	e.tick.Store(0)
	e.running.Store(true)

	e.logger.Info("session started",
		"session", s.id,
		"backend", e.backend.Name(),
		"particles", len(initial),
		"grid", fmt.Sprintf("%dx%d", e.cfg.Grid.Columns, e.cfg.Grid.Rows),
		"viewport", fmt.Sprintf("%dx%d", width, height))

	go e.loop(s)
	return nil
}

func (e *Engine) seed() []particle.Particle {
	seed := e.cfg.Particles.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	p := e.cfg.Particles
	return particle.Generate(rng, e.cfg.Count(),
		mgl32.Vec2{-1, -1}, mgl32.Vec2{1, 1},
		float32(p.MinVelocity), float32(p.MaxVelocity))
}

func (e *Engine) IsRunning() bool {
	return e.running.Load()
}

// Stop ends the session. The in-flight tick, if any, completes first.
func (e *Engine) Stop() error {
	e.mu.Lock()
	s := e.sess
	e.mu.Unlock()
	if s == nil {
		return ErrNotRunning
	}
	s.once.Do(func() { close(s.stop) })
	<-s.done
	return nil
}

// HandleResize changes the presentation viewport. It is applied between
// ticks and leaves particle state and the bin grid untouched.
func (e *Engine) HandleResize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: viewport %dx%d", ErrInvalidConfig, width, height)
	}
	e.mu.Lock()
	s := e.sess
	e.mu.Unlock()
	if s == nil {
		return ErrNotRunning
	}
	req := resizeRequest{width: width, height: height, done: make(chan struct{})}
	select {
	case s.resize <- req:
	case <-s.done:
		return ErrNotRunning
	}
	<-req.done
	return nil
}

// Err is the error that ended the last session, if any.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Tick is the number of completed ticks in the current or last session.
func (e *Engine) Tick() int64 {
	return e.tick.Load()
}

func (e *Engine) ViewportSize() (width, height int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.width, e.height
}

// PointSize is the particle radius in pixels for the current viewport.
func (e *Engine) PointSize() float32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pointSize
}

// Snapshot copies the particle state after the last completed tick.
func (e *Engine) Snapshot() []particle.Particle {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil
	}
	out := make([]particle.Particle, len(e.state))
	copy(out, e.state)
	return out
}

func (e *Engine) loop(s *session) {
	defer e.finish(s)

	fpsLast := time.Now()
	for {
		select {
		case <-s.stop:
			return
		case req := <-s.resize:
			e.applyResize(s, req)
		case now, ok := <-s.frames:
			if !ok {
				return
			}
			if err := e.step(s, now); err != nil {
				e.mu.Lock()
				e.err = err
				e.mu.Unlock()
				e.logger.Error("session failed", "session", s.id, "err", err)
				return
			}
			if e.logger.Enabled(context.Background(), slog.LevelDebug) {
				elapsed := time.Since(fpsLast)
				fpsLast = time.Now()
				e.logger.Debug("frame",
					"tick", e.tick.Load(),
					"delta_ms", float64(elapsed.Microseconds())/1000,
					"fps", 1/elapsed.Seconds())
			}
		}
	}
}

func (e *Engine) applyResize(s *session, req resizeRequest) {
	defer close(req.done)
	s.target.Resize(req.width, req.height)

	e.mu.Lock()
	e.width, e.height = req.width, req.height
	e.pointSize = present.PointSize(e.cfg.ParticleRadius(), req.width, req.height)
	e.mu.Unlock()

	e.logger.Info("viewport resized", "session", s.id, "width", req.width, "height", req.height)
}

// step runs one tick.
func (e *Engine) step(s *session, now time.Time) error {
	tick := e.tick.Load() + 1
	// The first tick has no previous frame; it gets one nominal interval.
	delta := time.Second / time.Duration(max(e.cfg.Display.FPS, 1))
	if !s.last.IsZero() {
		delta = now.Sub(s.last)
	}
	dt := e.cfg.StepDt(delta.Seconds())
	s.last = now

	for k := 0; k < binning.Capacity; k++ {
		if err := e.backend.BinPass(k); err != nil {
			return passError(tick, fmt.Sprintf("bin[%d]", k), err)
		}
	}
	if err := e.backend.UpdatePass(dt); err != nil {
		return passError(tick, "update", err)
	}
	e.backend.Swap()

	buf, err := e.backend.Readback(s.bufs[s.next][:0])
	if err != nil {
		return passError(tick, "readback", err)
	}
	s.bufs[s.next] = buf
	s.next = 1 - s.next

	e.mu.Lock()
	e.state = buf
	frame := present.Frame{
		Tick:      tick,
		Width:     e.width,
		Height:    e.height,
		PointSize: e.pointSize,
		Particles: buf,
	}
	recorder := e.recorder
	e.mu.Unlock()
	e.tick.Store(tick)

	if err := s.target.Present(frame); err != nil {
		return passError(tick, "present", err)
	}
	for _, o := range e.observers {
		o.Observe(frame)
	}
	if recorder != nil {
		if err := recorder.Record(frame); err != nil {
			e.logger.Warn("recording stopped", "session", s.id, "tick", tick, "err", err)
			e.dropRecorder(recorder)
		}
	}
	return nil
}

func passError(tick int64, pass string, err error) error {
	if errors.Is(err, compute.ErrDeviceLost) {
		err = fmt.Errorf("%w: %w", ErrContextLost, err)
	}
	return &PassError{Tick: tick, Pass: pass, Wrapped: err}
}

func (e *Engine) finish(s *session) {
	e.source.Stop()
	s.target.Release()

	e.mu.Lock()
	e.sess = nil
	e.running.Store(false)
	e.mu.Unlock()

	e.logger.Info("session stopped", "session", s.id, "ticks", e.tick.Load())
	close(s.done)
}
