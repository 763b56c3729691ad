package stream

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/binsim/internal/particle"
	"github.com/san-kum/binsim/internal/present"
)

func TestEncodeFrame(t *testing.T) {
	f := present.Frame{
		Width: 10, Height: 10,
		Particles: []particle.Particle{
			{Position: mgl32.Vec2{0, 0}},  // pixel (5, 5)
			{Position: mgl32.Vec2{-1, 1}}, // pixel (0, 0)
			{Position: mgl32.Vec2{3, 0}},  // off screen
			particle.Park(),
		},
	}
	msg := EncodeFrame(f, nil)

	require.Len(t, msg, 1+13)
	assert.Equal(t, OpCodeFrame, msg[0])
	assert.True(t, PixelSet(msg, 10, 5, 5))
	assert.True(t, PixelSet(msg, 10, 0, 0))
	assert.False(t, PixelSet(msg, 10, 9, 9))

	lit := 0
	for _, b := range msg[1:] {
		for ; b != 0; b &= b - 1 {
			lit++
		}
	}
	assert.Equal(t, 2, lit)
}

func TestEncodeFrameReusesBuffer(t *testing.T) {
	buf := make([]byte, 64)
	msg := EncodeFrame(present.Frame{Width: 8, Height: 8}, buf)
	assert.Len(t, msg, 9)
	assert.Equal(t, &buf[0], &msg[0])
}

func TestSizeRoundTrip(t *testing.T) {
	w, h, err := DecodeSize(EncodeSize(800, 600))
	require.NoError(t, err)
	assert.Equal(t, 800, w)
	assert.Equal(t, 600, h)

	_, _, err = DecodeSize([]byte{OpCodeSimSize, 1})
	assert.ErrorIs(t, err, ErrMalformed)
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	mt, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, mt)
	return msg
}

func TestServerStreamsFrames(t *testing.T) {
	s := NewServer()
	target, err := s.Surface().Acquire(16, 8)
	require.NoError(t, err)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	conn := dial(t, srv)

	w, h, err := DecodeSize(read(t, conn))
	require.NoError(t, err)
	assert.Equal(t, 16, w)
	assert.Equal(t, 8, h)

	require.Eventually(t, func() bool { return s.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, target.Present(present.Frame{
		Width: 16, Height: 8,
		Particles: []particle.Particle{{Position: mgl32.Vec2{0, 0}}},
	}))

	msg := read(t, conn)
	assert.Equal(t, OpCodeFrame, msg[0])
	assert.True(t, PixelSet(msg, 16, 8, 4))

	target.Resize(32, 16)
	w, h, err = DecodeSize(read(t, conn))
	require.NoError(t, err)
	assert.Equal(t, 32, w)
	assert.Equal(t, 16, h)
}

func TestServerForwardsClientResize(t *testing.T) {
	sizes := make(chan [2]int, 1)
	s := NewServer(WithResizeHandler(func(w, h int) { sizes <- [2]int{w, h} }))
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, EncodeSize(400, 300)))

	select {
	case got := <-sizes:
		assert.Equal(t, [2]int{400, 300}, got)
	case <-time.After(2 * time.Second):
		t.Fatal("resize not forwarded")
	}
}

func TestServerMaxClients(t *testing.T) {
	s := NewServer(WithMaxClients(1))
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	dial(t, srv)
	require.Eventually(t, func() bool { return s.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	second := dial(t, srv)
	require.NoError(t, second.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := second.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 1, s.Clients())
}

func TestPresentWithoutClients(t *testing.T) {
	s := NewServer()
	target, err := s.Surface().Acquire(4, 4)
	require.NoError(t, err)
	assert.NoError(t, target.Present(present.Frame{Width: 4, Height: 4}))
	assert.Equal(t, int64(0), s.Dropped())

	_, err = s.Surface().Acquire(0, 4)
	assert.ErrorIs(t, err, present.ErrUnavailable)
}
