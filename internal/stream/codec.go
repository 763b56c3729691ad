package stream

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/san-kum/binsim/internal/present"
)

// Message opcodes; the first byte of every binary message.
const (
	OpCodeFrame   byte = 0x01
	OpCodeSimSize byte = 0x02
)

var ErrMalformed = errors.New("stream: malformed message")

// EncodeFrame packs f into one bit per pixel, row-major and LSB first,
// behind an OpCodeFrame byte. buf is reused when large enough.
func EncodeFrame(f present.Frame, buf []byte) []byte {
	w, h := f.Width, f.Height
	n := 1 + (w*h+7)/8
	if cap(buf) < n {
		buf = make([]byte, n)
	}
	buf = buf[:n]
	clear(buf)
	buf[0] = OpCodeFrame

	bits := buf[1:]
	for _, p := range f.Particles {
		if p.IsParked() {
			continue
		}
		fx, fy := present.ToPixel(p, w, h)
		if fx < 0 || fy < 0 {
			continue
		}
		x, y := int(fx), int(fy)
		if x >= w || y >= h {
			continue
		}
		idx := y*w + x
		bits[idx/8] |= 1 << (idx % 8)
	}
	return buf
}

// PixelSet reports whether pixel (x, y) is lit in an encoded frame.
func PixelSet(msg []byte, width, x, y int) bool {
	idx := y*width + x
	i := 1 + idx/8
	if i >= len(msg) {
		return false
	}
	return msg[i]>>(idx%8)&1 == 1
}

// EncodeSize builds an OpCodeSimSize message carrying a viewport size.
func EncodeSize(width, height int) []byte {
	msg := make([]byte, 9)
	msg[0] = OpCodeSimSize
	binary.LittleEndian.PutUint32(msg[1:], uint32(width))
	binary.LittleEndian.PutUint32(msg[5:], uint32(height))
	return msg
}

func DecodeSize(msg []byte) (width, height int, err error) {
	if len(msg) != 9 || msg[0] != OpCodeSimSize {
		return 0, 0, fmt.Errorf("%w: want %d-byte size message, got %d bytes", ErrMalformed, 9, len(msg))
	}
	width = int(binary.LittleEndian.Uint32(msg[1:]))
	height = int(binary.LittleEndian.Uint32(msg[5:]))
	return width, height, nil
}
