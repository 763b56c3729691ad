package engine_test

import (
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/binsim/internal/compute"
	"github.com/san-kum/binsim/internal/config"
	"github.com/san-kum/binsim/internal/engine"
	"github.com/san-kum/binsim/internal/particle"
	"github.com/san-kum/binsim/internal/present"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Particles.CountSqrt = 8
	cfg.Particles.Seed = 42
	cfg.Grid = config.GridConfig{Columns: 8, Rows: 8}
	cfg.Physics.Dt = 0.01
	cfg.Backend = "cpu"
	return cfg
}

// failingBackend wraps the CPU backend and fails the update pass on demand.
type failingBackend struct {
	*compute.CPUBackend
	mu   sync.Mutex
	fail error
}

func (b *failingBackend) UpdatePass(dt float32) error {
	b.mu.Lock()
	err := b.fail
	b.mu.Unlock()
	if err != nil {
		return err
	}
	return b.CPUBackend.UpdatePass(dt)
}

func (b *failingBackend) setFail(err error) {
	b.mu.Lock()
	b.fail = err
	b.mu.Unlock()
}

type unavailableSurface struct{}

func (unavailableSurface) Acquire(int, int) (present.Target, error) {
	return nil, present.ErrUnavailable
}

type frameLog struct {
	mu     sync.Mutex
	frames []present.Frame
}

func (l *frameLog) Observe(f present.Frame) {
	l.mu.Lock()
	defer l.mu.Unlock()
	f.Particles = append([]particle.Particle(nil), f.Particles...)
	l.frames = append(l.frames, f)
}

func (l *frameLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.frames)
}

func (l *frameLog) Last() present.Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frames[len(l.frames)-1]
}

type memRecorder struct {
	mu     sync.Mutex
	ticks  []int64
	fail   bool
	closed bool
}

func (r *memRecorder) Record(f present.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("disk full")
	}
	r.ticks = append(r.ticks, f.Tick)
	return nil
}

func (r *memRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *memRecorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

var _ = Describe("Engine", func() {
	var (
		eng     *engine.Engine
		source  *engine.ManualSource
		backend *failingBackend
		surface *present.NullSurface
		frames  *frameLog
		start   time.Time
	)

	step := func(n int) {
		for i := 0; i < n; i++ {
			start = start.Add(16 * time.Millisecond)
			source.Step(start)
		}
	}

	BeforeEach(func() {
		source = engine.NewManualSource()
		backend = &failingBackend{CPUBackend: compute.NewCPUBackendWorkers(2, 8)}
		surface = &present.NullSurface{}
		frames = &frameLog{}
		start = time.Now()

		var err error
		eng, err = engine.New(testConfig(),
			engine.WithBackend(backend),
			engine.WithFrameSource(source),
			engine.WithObserver(frames))
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if eng.IsRunning() {
			Expect(eng.Stop()).To(Succeed())
		}
	})

	Describe("New", func() {
		It("rejects an invalid config", func() {
			cfg := testConfig()
			cfg.Grid.Columns = 0
			_, err := engine.New(cfg)
			Expect(err).To(MatchError(engine.ErrInvalidConfig))
			Expect(err).To(MatchError(config.ErrInvalid))
		})

		It("picks the configured backend", func() {
			e, err := engine.New(testConfig())
			Expect(err).NotTo(HaveOccurred())
			Expect(e.Backend().Name()).To(Equal(compute.BackendCPU))
		})
	})

	Describe("lifecycle", func() {
		It("starts stopped", func() {
			Expect(eng.IsRunning()).To(BeFalse())
			Expect(eng.Stop()).To(MatchError(engine.ErrNotRunning))
			Expect(eng.HandleResize(10, 10)).To(MatchError(engine.ErrNotRunning))
		})

		It("runs and stops", func() {
			Expect(eng.Run(surface, 400, 300)).To(Succeed())
			Expect(eng.IsRunning()).To(BeTrue())

			step(3)
			Eventually(eng.Tick).Should(BeEquivalentTo(3))

			Expect(eng.Stop()).To(Succeed())
			Expect(eng.IsRunning()).To(BeFalse())
			Expect(eng.Err()).NotTo(HaveOccurred())
			Expect(surface.Frames()).To(BeEquivalentTo(3))
		})

		It("stops taking manual frames once stopped", func() {
			Expect(source.Step(start)).To(BeFalse())

			Expect(eng.Run(surface, 400, 300)).To(Succeed())
			Expect(source.Step(start.Add(time.Millisecond))).To(BeTrue())
			Expect(eng.Stop()).To(Succeed())
			Expect(source.Step(start.Add(2 * time.Millisecond))).To(BeFalse())
		})

		It("refuses a second run without disturbing the first", func() {
			Expect(eng.Run(surface, 400, 300)).To(Succeed())
			step(1)
			Eventually(eng.Tick).Should(BeEquivalentTo(1))

			Expect(eng.Run(surface, 800, 600)).To(MatchError(engine.ErrAlreadyRunning))
			Expect(eng.IsRunning()).To(BeTrue())
			w, h := eng.ViewportSize()
			Expect([]int{w, h}).To(Equal([]int{400, 300}))

			step(1)
			Eventually(eng.Tick).Should(BeEquivalentTo(2))
		})

		It("can run again after stopping", func() {
			Expect(eng.Run(surface, 400, 300)).To(Succeed())
			step(2)
			Expect(eng.Stop()).To(Succeed())

			Expect(eng.Run(surface, 400, 300)).To(Succeed())
			Expect(eng.Tick()).To(BeEquivalentTo(0))
			step(1)
			Eventually(eng.Tick).Should(BeEquivalentTo(1))
		})

		It("reports an unavailable surface without starting", func() {
			err := eng.Run(unavailableSurface{}, 400, 300)
			Expect(err).To(MatchError(engine.ErrContextUnavailable))
			Expect(err).To(MatchError(present.ErrUnavailable))
			Expect(eng.IsRunning()).To(BeFalse())
		})

		It("rejects an empty viewport", func() {
			Expect(eng.Run(surface, 0, 300)).To(MatchError(engine.ErrInvalidConfig))
			Expect(eng.IsRunning()).To(BeFalse())
		})
	})

	Describe("ticks", func() {
		It("seeds the full particle budget reproducibly", func() {
			Expect(eng.Run(surface, 400, 300)).To(Succeed())
			first := eng.Snapshot()
			Expect(first).To(HaveLen(64))
			Expect(eng.Stop()).To(Succeed())

			Expect(eng.Run(surface, 400, 300)).To(Succeed())
			Expect(eng.Snapshot()).To(Equal(first))
		})

		It("hands every tick to observers in order", func() {
			Expect(eng.Run(surface, 400, 300)).To(Succeed())
			step(4)
			Eventually(frames.Len).Should(Equal(4))

			last := frames.Last()
			Expect(last.Tick).To(BeEquivalentTo(4))
			Expect(last.Particles).To(HaveLen(64))
			Expect(last.Width).To(Equal(400))
		})

		It("gives the first tick one nominal frame interval", func() {
			cfg := testConfig()
			cfg.Physics.Dt = 0
			cfg.Physics.MaxDt = 10
			cfg.Collisions.Collisions = false

			runOnce := func(delay time.Duration) []particle.Particle {
				src := engine.NewManualSource()
				e, err := engine.New(cfg, engine.WithBackend(compute.NewCPUBackend()), engine.WithFrameSource(src))
				Expect(err).NotTo(HaveOccurred())
				Expect(e.Run(&present.NullSurface{}, 400, 300)).To(Succeed())
				initial := e.Snapshot()
				time.Sleep(delay)
				Expect(src.Step(time.Unix(100, 0))).To(BeTrue())
				Eventually(e.Tick).Should(BeEquivalentTo(1))
				out := e.Snapshot()
				Expect(e.Stop()).To(Succeed())

				dt := float32(1) / float32(cfg.Display.FPS)
				Expect(out[0].Velocity.Y()).To(BeNumerically("~", initial[0].Velocity.Y()-dt*float32(cfg.Physics.Gravity), 1e-6))
				return out
			}

			Expect(runOnce(0)).To(Equal(runOnce(20 * time.Millisecond)))
		})

		It("matches the snapshot to the last presented frame", func() {
			Expect(eng.Run(surface, 400, 300)).To(Succeed())
			step(2)
			Eventually(frames.Len).Should(Equal(2))
			Expect(eng.Snapshot()).To(Equal(frames.Last().Particles))
		})
	})

	Describe("HandleResize", func() {
		It("changes only the presentation", func() {
			Expect(eng.Run(surface, 800, 600)).To(Succeed())
			step(2)
			Eventually(eng.Tick).Should(BeEquivalentTo(2))

			before := eng.Snapshot()
			Expect(eng.HandleResize(400, 300)).To(Succeed())
			Expect(eng.Snapshot()).To(Equal(before))
			Expect(eng.HandleResize(800, 600)).To(Succeed())
			Expect(eng.Snapshot()).To(Equal(before))

			w, h := eng.ViewportSize()
			Expect([]int{w, h}).To(Equal([]int{800, 600}))
			Expect(surface.Resizes()).To(Equal(2))
			Expect(eng.Tick()).To(BeEquivalentTo(2))
		})

		It("recomputes the point size", func() {
			Expect(eng.Run(surface, 800, 600)).To(Succeed())
			large := eng.PointSize()
			Expect(eng.HandleResize(400, 300)).To(Succeed())
			Expect(eng.PointSize()).To(BeNumerically("~", large/2, 1e-4))
		})

		It("rejects an empty viewport", func() {
			Expect(eng.Run(surface, 800, 600)).To(Succeed())
			Expect(eng.HandleResize(0, 300)).To(MatchError(engine.ErrInvalidConfig))
		})
	})

	Describe("pass failures", func() {
		It("ends the session on a lost device", func() {
			Expect(eng.Run(surface, 400, 300)).To(Succeed())
			step(1)
			Eventually(eng.Tick).Should(BeEquivalentTo(1))

			backend.setFail(compute.ErrDeviceLost)
			step(1)
			Eventually(eng.IsRunning).Should(BeFalse())

			err := eng.Err()
			Expect(err).To(MatchError(engine.ErrContextLost))
			var pe *engine.PassError
			Expect(errors.As(err, &pe)).To(BeTrue())
			Expect(pe.Pass).To(Equal("update"))
			Expect(pe.Tick).To(BeEquivalentTo(2))
			Expect(eng.Tick()).To(BeEquivalentTo(1))
		})

		It("needs an explicit run to restart", func() {
			Expect(eng.Run(surface, 400, 300)).To(Succeed())
			backend.setFail(errors.New("boom"))
			step(1)
			Eventually(eng.IsRunning).Should(BeFalse())
			Expect(eng.Stop()).To(MatchError(engine.ErrNotRunning))

			backend.setFail(nil)
			Expect(eng.Run(surface, 400, 300)).To(Succeed())
			Expect(eng.Err()).NotTo(HaveOccurred())
		})
	})

	Describe("recording", func() {
		It("records ticks until stopped", func() {
			rec := &memRecorder{}
			Expect(eng.Run(surface, 400, 300)).To(Succeed())
			Expect(eng.Record(rec)).To(Succeed())
			Expect(eng.Recording()).To(BeTrue())

			step(3)
			Eventually(eng.Tick).Should(BeEquivalentTo(3))
			Expect(eng.StopRecording()).To(Succeed())
			Expect(eng.Recording()).To(BeFalse())
			Expect(rec.Closed()).To(BeTrue())

			step(1)
			Eventually(eng.Tick).Should(BeEquivalentTo(4))
			Expect(rec.ticks).To(Equal([]int64{1, 2, 3}))
		})

		It("drops a failing recorder and keeps running", func() {
			rec := &memRecorder{fail: true}
			Expect(eng.Run(surface, 400, 300)).To(Succeed())
			Expect(eng.Record(rec)).To(Succeed())

			step(1)
			Eventually(eng.Recording).Should(BeFalse())
			Expect(rec.Closed()).To(BeTrue())
			Expect(eng.IsRunning()).To(BeTrue())
		})
	})
})
