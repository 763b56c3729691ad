//go:build opengl

package compute

import (
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/go-gl/gl/v4.3-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/san-kum/binsim/internal/binning"
	"github.com/san-kum/binsim/internal/logging"
	"github.com/san-kum/binsim/internal/particle"
)

// OpenGLBackend runs the passes as GL 4.3 compute shaders in a hidden
// window's context. GL calls are bound to one OS thread, so every call is
// funnelled through a dedicated goroutine.
type OpenGLBackend struct {
	calls chan func()
	once  sync.Once
	ready bool
	err   error

	window *glfw.Window

	partition, fill, update uint32

	ssbo  [2]uint32
	cur   int
	bins  uint32
	count int
	res   Resources
}

func NewOpenGLBackend() *OpenGLBackend {
	return &OpenGLBackend{}
}

func (c *OpenGLBackend) Name() string { return BackendOpenGL }

// Available creates the context on first use and reports whether it
// supports compute shaders.
func (c *OpenGLBackend) Available() bool {
	return c.start() == nil
}

func (c *OpenGLBackend) start() error {
	c.once.Do(func() {
		c.calls = make(chan func())
		done := make(chan error)
		go c.loop(done)
		c.err = <-done
		c.ready = c.err == nil
		if c.err != nil {
			logging.Logger().Debug("opengl context unavailable", "err", c.err)
		}
	})
	return c.err
}

func (c *OpenGLBackend) loop(done chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := c.createContext(); err != nil {
		done <- err
		return
	}
	done <- nil

	for fn := range c.calls {
		fn()
	}
	c.window.Destroy()
	glfw.Terminate()
}

func (c *OpenGLBackend) createContext() error {
	if err := glfw.Init(); err != nil {
		return fmt.Errorf("%w: glfw: %v", ErrBackendUnavailable, err)
	}
	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 3)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)

	window, err := glfw.CreateWindow(1, 1, "binsim", nil, nil)
	if err != nil {
		glfw.Terminate()
		return fmt.Errorf("%w: create context: %v", ErrBackendUnavailable, err)
	}
	window.MakeContextCurrent()
	if err := gl.Init(); err != nil {
		window.Destroy()
		glfw.Terminate()
		return fmt.Errorf("%w: gl init: %v", ErrBackendUnavailable, err)
	}
	c.window = window

	var maxGroups, maxSize int32
	gl.GetIntegeri_v(gl.MAX_COMPUTE_WORK_GROUP_COUNT, 0, &maxGroups)
	gl.GetIntegeri_v(gl.MAX_COMPUTE_WORK_GROUP_SIZE, 0, &maxSize)
	logging.Logger().Info("opengl compute initialized",
		"version", gl.GoStr(gl.GetString(gl.VERSION)),
		"max_work_groups", maxGroups,
		"max_work_group_size", maxSize)
	return nil
}

// do runs fn on the GL thread and waits for it.
func (c *OpenGLBackend) do(fn func() error) error {
	if err := c.start(); err != nil {
		return err
	}
	errc := make(chan error, 1)
	c.calls <- func() { errc <- fn() }
	return <-errc
}

func (c *OpenGLBackend) Init(res Resources) error {
	if err := res.Validate(); err != nil {
		return err
	}
	return c.do(func() error {
		c.release()

		var err error
		if c.partition, err = createComputeProgram(partitionSource); err != nil {
			return err
		}
		if c.fill, err = createComputeProgram(fillSource); err != nil {
			return err
		}
		if c.update, err = createComputeProgram(updateShaderSource(res.Update)); err != nil {
			return err
		}

		c.count = len(res.Initial)
		c.res = res
		data := make([]float32, 0, c.count*particle.Components)
		for _, p := range res.Initial {
			t := p.Texel()
			data = append(data, t[:]...)
		}
		size := len(data) * 4

		gl.GenBuffers(2, &c.ssbo[0])
		gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, c.ssbo[0])
		gl.BufferData(gl.SHADER_STORAGE_BUFFER, size, gl.Ptr(data), gl.DYNAMIC_COPY)
		gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, c.ssbo[1])
		gl.BufferData(gl.SHADER_STORAGE_BUFFER, size, nil, gl.DYNAMIC_COPY)
		c.cur = 0

		g := res.Update.Grid
		gl.GenTextures(1, &c.bins)
		gl.BindTexture(gl.TEXTURE_2D_ARRAY, c.bins)
		gl.TexStorage3D(gl.TEXTURE_2D_ARRAY, 1, gl.R32UI, int32(g.Columns), int32(g.Rows), binning.Capacity)

		return checkError("init")
	})
}

func (c *OpenGLBackend) BinPass(k int) error {
	if k < 0 || k >= binning.Capacity {
		return fmt.Errorf("%w: %d", binning.ErrPassOutOfRange, k)
	}
	return c.do(func() error {
		if c.count == 0 {
			return ErrNotInitialized
		}
		g := c.res.Update.Grid
		gl.BindImageTexture(0, c.bins, 0, true, 0, gl.READ_WRITE, gl.R32UI)

		c.runFill(k, 0)
		gl.MemoryBarrier(gl.SHADER_IMAGE_ACCESS_BARRIER_BIT)

		gl.UseProgram(c.partition)
		gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 0, c.ssbo[c.cur])
		setInt2(c.partition, "grid_size", g.Columns, g.Rows)
		setInt(c.partition, "layer", k)
		setUint(c.partition, "count", c.count)
		gl.DispatchCompute(groups(c.count, 256), 1, 1)
		gl.MemoryBarrier(gl.SHADER_IMAGE_ACCESS_BARRIER_BIT)

		c.runFill(k, 1)
		gl.MemoryBarrier(gl.SHADER_IMAGE_ACCESS_BARRIER_BIT)

		return checkError(fmt.Sprintf("bin pass %d", k))
	})
}

func (c *OpenGLBackend) runFill(layer, mode int) {
	g := c.res.Update.Grid
	gl.UseProgram(c.fill)
	setInt2(c.fill, "grid_size", g.Columns, g.Rows)
	setInt(c.fill, "layer", layer)
	setInt(c.fill, "mode", mode)
	gl.DispatchCompute(groups(g.Columns, 16), groups(g.Rows, 16), 1)
}

func (c *OpenGLBackend) UpdatePass(dt float32) error {
	return c.do(func() error {
		if c.count == 0 {
			return ErrNotInitialized
		}
		p := c.res.Update
		gl.UseProgram(c.update)
		gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 0, c.ssbo[c.cur])
		gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 1, c.ssbo[1-c.cur])
		gl.BindImageTexture(0, c.bins, 0, true, 0, gl.READ_ONLY, gl.R32UI)
		setInt2(c.update, "grid_size", p.Grid.Columns, p.Grid.Rows)
		setUint(c.update, "count", c.count)
		setFloat(c.update, "dt", dt)
		setFloat(c.update, "particle_radius", p.Radius)
		setFloat(c.update, "gravity", p.Gravity)
		setFloat(c.update, "restitution", p.Restitution)
		gl.DispatchCompute(groups(c.count, 256), 1, 1)
		gl.MemoryBarrier(gl.SHADER_STORAGE_BARRIER_BIT)

		return checkError("update pass")
	})
}

func (c *OpenGLBackend) Swap() {
	_ = c.do(func() error {
		c.cur = 1 - c.cur
		return nil
	})
}

func (c *OpenGLBackend) Readback(dst []particle.Particle) ([]particle.Particle, error) {
	var data []float32
	err := c.do(func() error {
		if c.count == 0 {
			return ErrNotInitialized
		}
		data = make([]float32, c.count*particle.Components)
		gl.MemoryBarrier(gl.BUFFER_UPDATE_BARRIER_BIT)
		gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, c.ssbo[c.cur])
		gl.GetBufferSubData(gl.SHADER_STORAGE_BUFFER, 0, len(data)*4, gl.Ptr(data))
		return checkError("readback")
	})
	if err != nil {
		return dst, err
	}
	for i := 0; i < len(data); i += particle.Components {
		dst = append(dst, particle.FromTexel([particle.Components]float32(data[i:i+particle.Components])))
	}
	return dst, nil
}

func (c *OpenGLBackend) Cleanup() {
	if !c.ready {
		return
	}
	_ = c.do(func() error {
		c.release()
		return nil
	})
	close(c.calls)
	c.ready = false
	c.err = ErrNotInitialized
}

// release frees the session objects; the context itself stays alive.
func (c *OpenGLBackend) release() {
	if c.ssbo[0] != 0 {
		gl.DeleteBuffers(2, &c.ssbo[0])
		c.ssbo = [2]uint32{}
	}
	if c.bins != 0 {
		gl.DeleteTextures(1, &c.bins)
		c.bins = 0
	}
	for _, p := range []*uint32{&c.partition, &c.fill, &c.update} {
		if *p != 0 {
			gl.DeleteProgram(*p)
			*p = 0
		}
	}
	c.count = 0
}

func groups(n, size int) uint32 {
	return uint32((n + size - 1) / size)
}

func setInt(program uint32, name string, v int) {
	gl.Uniform1i(gl.GetUniformLocation(program, gl.Str(name+"\x00")), int32(v))
}

func setInt2(program uint32, name string, x, y int) {
	gl.Uniform2i(gl.GetUniformLocation(program, gl.Str(name+"\x00")), int32(x), int32(y))
}

func setUint(program uint32, name string, v int) {
	gl.Uniform1ui(gl.GetUniformLocation(program, gl.Str(name+"\x00")), uint32(v))
}

func setFloat(program uint32, name string, v float32) {
	gl.Uniform1f(gl.GetUniformLocation(program, gl.Str(name+"\x00")), v)
}

// checkError maps a pending GL error to a Go error. Out of memory leaves
// the context unusable, so it is reported as a lost device.
func checkError(stage string) error {
	switch code := gl.GetError(); code {
	case gl.NO_ERROR:
		return nil
	case gl.OUT_OF_MEMORY:
		return fmt.Errorf("%w: %s: out of memory", ErrDeviceLost, stage)
	default:
		return fmt.Errorf("compute: %s: gl error 0x%x", stage, code)
	}
}

func createComputeProgram(source string) (uint32, error) {
	shader := gl.CreateShader(gl.COMPUTE_SHADER)
	csources, free := gl.Strs(source + "\x00")
	gl.ShaderSource(shader, 1, csources, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)
		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(shader, logLength, nil, gl.Str(log))
		gl.DeleteShader(shader)
		return 0, fmt.Errorf("compute: compile shader: %v", log)
	}

	program := gl.CreateProgram()
	gl.AttachShader(program, shader)
	gl.LinkProgram(program)
	gl.DeleteShader(shader)

	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLength)
		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetProgramInfoLog(program, logLength, nil, gl.Str(log))
		gl.DeleteProgram(program)
		return 0, fmt.Errorf("compute: link program: %v", log)
	}
	return program, nil
}
