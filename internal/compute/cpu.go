package compute

import (
	"runtime"
	"sync"

	"github.com/san-kum/binsim/internal/binning"
	"github.com/san-kum/binsim/internal/collision"
	"github.com/san-kum/binsim/internal/particle"
	"github.com/san-kum/binsim/internal/texture"
)

// minChunk is the smallest range worth handing to a worker.
const minChunk = 1024

type CPUBackend struct {
	workers  int
	minChunk int

	state   *texture.PingPong
	builder *binning.Builder
	update  *collision.Pass
}

func NewCPUBackend() *CPUBackend {
	return &CPUBackend{
		workers:  runtime.NumCPU(),
		minChunk: minChunk,
	}
}

// NewCPUBackendWorkers fixes the worker count and chunk floor.
func NewCPUBackendWorkers(workers, chunk int) *CPUBackend {
	if workers < 1 {
		workers = 1
	}
	if chunk < 1 {
		chunk = 1
	}
	return &CPUBackend{workers: workers, minChunk: chunk}
}

func (c *CPUBackend) Name() string    { return BackendCPU }
func (c *CPUBackend) Available() bool { return true }

func (c *CPUBackend) Init(res Resources) error {
	if err := res.Validate(); err != nil {
		return err
	}
	initial, err := texture.NewTexture2DFrom(res.Width, res.Height, res.Initial)
	if err != nil {
		return err
	}
	state, err := texture.NewPingPong(initial)
	if err != nil {
		return err
	}
	builder, err := binning.NewBuilder(res.Update.Grid)
	if err != nil {
		return err
	}
	update, err := collision.NewPass(res.Update)
	if err != nil {
		return err
	}
	c.state, c.builder, c.update = state, builder, update
	return nil
}

func (c *CPUBackend) BinPass(k int) error {
	if c.state == nil {
		return ErrNotInitialized
	}
	return c.builder.Pass(k, c.state.Read(), c.dispatch)
}

func (c *CPUBackend) UpdatePass(dt float32) error {
	if c.state == nil {
		return ErrNotInitialized
	}
	return c.update.Run(c.state.Read(), c.state.Write(), c.builder.Bins(), dt, c.dispatch)
}

func (c *CPUBackend) Swap() {
	if c.state != nil {
		c.state.Swap()
	}
}

func (c *CPUBackend) Readback(dst []particle.Particle) ([]particle.Particle, error) {
	if c.state == nil {
		return dst, ErrNotInitialized
	}
	return c.state.Read().Readback(dst), nil
}

// Bins exposes the bin array built by the last bin passes.
func (c *CPUBackend) Bins() *texture.TextureArray {
	if c.builder == nil {
		return nil
	}
	return c.builder.Bins()
}

func (c *CPUBackend) Cleanup() {
	c.state, c.builder, c.update = nil, nil, nil
}

// dispatch splits [0, n) into one contiguous chunk per worker and waits for
// all of them, so a pass is complete when it returns.
func (c *CPUBackend) dispatch(n int, kernel func(start, end int)) {
	workers := c.workers
	if n/c.minChunk < workers {
		workers = n / c.minChunk
	}
	if workers <= 1 {
		kernel(0, n)
		return
	}

	chunkSize := (n + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * chunkSize
		end := start + chunkSize
		if end > n {
			end = n
		}
		if start >= end {
			break
		}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			kernel(s, e)
		}(start, end)
	}
	wg.Wait()
}
