package viz

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/binsim/internal/binning"
	"github.com/san-kum/binsim/internal/collision"
	"github.com/san-kum/binsim/internal/engine"
	"github.com/san-kum/binsim/internal/metrics"
	"github.com/san-kum/binsim/internal/particle"
	"github.com/san-kum/binsim/internal/present"
)

type fakeSession struct {
	mu       sync.Mutex
	running  bool
	resizes  [][2]int
	recorder engine.Recorder
}

func (s *fakeSession) IsRunning() bool { return s.running }

func (s *fakeSession) HandleResize(w, h int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resizes = append(s.resizes, [2]int{w, h})
	return nil
}

func (s *fakeSession) Record(r engine.Recorder) error {
	s.recorder = r
	return nil
}

func (s *fakeSession) StopRecording() error {
	r := s.recorder
	s.recorder = nil
	if r == nil {
		return nil
	}
	return r.Close()
}

func (s *fakeSession) Recording() bool { return s.recorder != nil }

func newTestModel(s Session) Model {
	return NewModel(s, metrics.NewCollector(binning.Grid{Columns: 4, Rows: 4}), nil, "cpu", 20, 10)
}

func TestWindowSizeForwardsResize(t *testing.T) {
	s := &fakeSession{running: true}
	m := newTestModel(s)

	next, cmd := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	require.NotNil(t, cmd)
	model := next.(Model)
	assert.Equal(t, 100-statsWidth-4, model.cols)
	assert.Equal(t, 28, model.rows)

	msg := cmd()
	assert.Equal(t, resizedMsg{}, msg)
	require.Len(t, s.resizes, 1)
	assert.Equal(t, [2]int{model.cols * 2, model.rows * 4}, s.resizes[0])
}

func TestResizeWhenStoppedIsQuiet(t *testing.T) {
	m := newTestModel(&fakeSession{})
	next, _ := m.Update(resizedMsg{err: engine.ErrNotRunning})
	assert.Empty(t, next.(Model).status)
}

func TestQuitKey(t *testing.T) {
	m := newTestModel(&fakeSession{running: true})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestFrameMessageUpdatesView(t *testing.T) {
	m := newTestModel(&fakeSession{running: true})
	next, cmd := m.Update(frameMsg{tick: 7, view: "dots", parked: 2, total: 9})
	assert.Nil(t, cmd)
	model := next.(Model)
	assert.Equal(t, int64(7), model.tick)
	assert.Equal(t, 2, model.parked)
	assert.Contains(t, model.View(), "dots")
	assert.Contains(t, model.View(), "RUNNING")
}

func TestRecordingToggle(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	s := &fakeSession{running: true}
	m := newTestModel(s)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("g")})
	require.NotNil(t, cmd)
	next, _ := m.Update(cmd())
	m = next.(Model)
	assert.True(t, m.recording)
	require.True(t, s.Recording())

	frame := present.Frame{
		Tick: 1, Width: 16, Height: 16,
		Particles: []particle.Particle{{Position: mgl32.Vec2{0, 0}}},
	}
	require.NoError(t, s.recorder.Record(frame))

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("g")})
	next, _ = m.Update(cmd())
	m = next.(Model)
	assert.False(t, m.recording)
	assert.Equal(t, "saved "+GIFPath, m.status)
	assert.FileExists(t, filepath.Join(dir, GIFPath))
}

func TestDrawSkipsParked(t *testing.T) {
	f := present.Frame{
		Width: 20, Height: 20,
		Particles: []particle.Particle{particle.Park(), {Position: mgl32.Vec2{0.5, 0.5}}},
	}
	c := Draw(f, []collision.Collider{{Center: mgl32.Vec2{0, 0}, Radius: 0.5}})
	assert.True(t, c.IsSet(15, 5))
	assert.True(t, c.IsSet(0, 0), "frame")
}

func TestTerminalTargetSendsFrames(t *testing.T) {
	s := NewTerminalSurface(nil)
	target, err := s.Acquire(20, 20)
	require.NoError(t, err)

	var got []tea.Msg
	s.Attach(func(msg tea.Msg) { got = append(got, msg) })
	require.NoError(t, target.Present(present.Frame{
		Tick: 3, Width: 20, Height: 20,
		Particles: []particle.Particle{particle.Park(), {}},
	}))
	require.Len(t, got, 1)
	msg := got[0].(frameMsg)
	assert.Equal(t, int64(3), msg.tick)
	assert.Equal(t, 1, msg.parked)
	assert.Equal(t, 2, msg.total)

	_, err = s.Acquire(1, 1)
	assert.ErrorIs(t, err, present.ErrUnavailable)
}
