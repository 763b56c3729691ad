package present

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"sync"

	"golang.org/x/image/colornames"
)

// ImageSurface rasterizes frames into an in-memory RGBA image.
type ImageSurface struct {
	Background color.RGBA
	Particle   color.RGBA

	mu     sync.Mutex
	img    *image.RGBA
	frames int64
}

func NewImageSurface() *ImageSurface {
	return &ImageSurface{
		Background: colornames.Black,
		Particle:   colornames.Lightskyblue,
	}
}

func (s *ImageSurface) Acquire(width, height int) (Target, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrUnavailable, width, height)
	}
	s.mu.Lock()
	s.img = image.NewRGBA(image.Rect(0, 0, width, height))
	s.frames = 0
	s.mu.Unlock()
	return &imageTarget{s: s}, nil
}

// Image returns a copy of the last presented frame, or nil.
func (s *ImageSurface) Image() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.img == nil {
		return nil
	}
	out := image.NewRGBA(s.img.Rect)
	copy(out.Pix, s.img.Pix)
	return out
}

// Frames is the number of frames presented since the last Acquire.
func (s *ImageSurface) Frames() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

func (s *ImageSurface) WritePNG(w io.Writer) error {
	img := s.Image()
	if img == nil {
		return fmt.Errorf("present: nothing presented yet")
	}
	return png.Encode(w, img)
}

type imageTarget struct {
	s *ImageSurface
}

func (t *imageTarget) Resize(width, height int) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.s.img != nil && t.s.img.Rect.Dx() == width && t.s.img.Rect.Dy() == height {
		return
	}
	t.s.img = image.NewRGBA(image.Rect(0, 0, width, height))
}

func (t *imageTarget) Present(f Frame) error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.img == nil {
		return fmt.Errorf("present: target released")
	}

	img := s.img
	w, h := img.Rect.Dx(), img.Rect.Dy()
	draw.Draw(img, img.Rect, &image.Uniform{C: s.Background}, image.Point{}, draw.Src)

	r := max(f.PointSize, 0.5)
	r2 := r * r
	for _, p := range f.Particles {
		if p.IsParked() {
			continue
		}
		cx, cy := ToPixel(p, w, h)
		x0, x1 := int(cx-r), int(cx+r)
		y0, y1 := int(cy-r), int(cy+r)
		for y := max(y0, 0); y <= min(y1, h-1); y++ {
			for x := max(x0, 0); x <= min(x1, w-1); x++ {
				dx := float32(x) + 0.5 - cx
				dy := float32(y) + 0.5 - cy
				if dx*dx+dy*dy <= r2 {
					img.SetRGBA(x, y, s.Particle)
				}
			}
		}
	}
	s.frames++
	return nil
}

func (t *imageTarget) Release() {}

// NullSurface accepts frames and discards them.
type NullSurface struct {
	mu      sync.Mutex
	frames  int64
	resizes int
}

func (s *NullSurface) Acquire(width, height int) (Target, error) {
	return &nullTarget{s: s}, nil
}

func (s *NullSurface) Frames() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

func (s *NullSurface) Resizes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resizes
}

type nullTarget struct {
	s *NullSurface
}

func (t *nullTarget) Resize(int, int) {
	t.s.mu.Lock()
	t.s.resizes++
	t.s.mu.Unlock()
}

func (t *nullTarget) Present(Frame) error {
	t.s.mu.Lock()
	t.s.frames++
	t.s.mu.Unlock()
	return nil
}

func (t *nullTarget) Release() {}
