package viz

import (
	"image"
	"image/color"
	"image/gif"
	"os"
	"sync"

	"github.com/san-kum/binsim/internal/collision"
	"github.com/san-kum/binsim/internal/present"
)

const (
	maxGIFFrames = 600
	gifDelay     = 2 // hundredths of a second
)

// gifRecorder rasterizes every presented frame the way the terminal
// draws it and writes an animated GIF on Close.
type gifRecorder struct {
	path      string
	colliders []collision.Collider

	mu     sync.Mutex
	closed bool
	frames []*image.Paletted
}

func newGIFRecorder(path string, colliders []collision.Collider) *gifRecorder {
	return &gifRecorder{path: path, colliders: colliders}
}

func (r *gifRecorder) Record(f present.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || len(r.frames) >= maxGIFFrames {
		return nil
	}
	r.frames = append(r.frames, captureFrame(Draw(f, r.colliders)))
	return nil
}

func (r *gifRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if len(r.frames) == 0 {
		return nil
	}
	anim := gif.GIF{LoopCount: 0}
	for _, frame := range r.frames {
		anim.Image = append(anim.Image, frame)
		anim.Delay = append(anim.Delay, gifDelay)
	}
	f, err := os.Create(r.path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gif.EncodeAll(f, &anim)
}

// captureFrame renders each braille dot as a dotW x dotH block.
func captureFrame(c *Canvas) *image.Paletted {
	const charW, charH = 8, 16
	const dotW, dotH = charW / 2, charH / 4
	img := image.NewPaletted(
		image.Rect(0, 0, c.Width*charW, c.Height*charH),
		color.Palette{color.Black, color.White},
	)
	w, h := c.DotSize()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !c.IsSet(x, y) {
				continue
			}
			for py := 0; py < dotH; py++ {
				for px := 0; px < dotW; px++ {
					img.SetColorIndex(x*dotW+px, y*dotH+py, 1)
				}
			}
		}
	}
	return img
}
