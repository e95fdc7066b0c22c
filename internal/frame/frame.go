// Package frame defines the fixed-layout video frame value passed between
// the capture source, the detection pipeline and the shared-memory bus.
package frame

import (
	"fmt"
)

// BGR channel count for decoded stream frames.
const Channels = 3

// Frame is an immutable decoded video frame. It is built once, fully, and
// then handed around by reference; the pixel buffer is never resized.
type Frame struct {
	Width     uint32
	Height    uint32
	Channels  uint32
	Timestamp float64 // capture time, seconds
	Sequence  uint64  // producer-assigned, monotonically increasing
	Pixels    []byte  // BGR, row-major, no padding
}

// New constructs a Frame and validates the pixel buffer length against the
// declared dimensions.
func New(width, height, channels uint32, timestamp float64, pixels []byte) (*Frame, error) {
	want := int(width) * int(height) * int(channels)
	if len(pixels) != want {
		return nil, fmt.Errorf("frame: pixel buffer length %d does not match %dx%dx%d (want %d)",
			len(pixels), width, height, channels, want)
	}
	return &Frame{
		Width:     width,
		Height:    height,
		Channels:  channels,
		Timestamp: timestamp,
		Pixels:    pixels,
	}, nil
}

// Size returns the payload size in bytes.
func (f *Frame) Size() int {
	return int(f.Width) * int(f.Height) * int(f.Channels)
}

// Clone returns a deep copy with a private pixel buffer.
func (f *Frame) Clone() *Frame {
	pixels := make([]byte, len(f.Pixels))
	copy(pixels, f.Pixels)
	c := *f
	c.Pixels = pixels
	return &c
}

// Gray converts the frame to a single-channel intensity buffer of
// Width*Height bytes using integer BT.601 weights. Single-channel frames
// are copied through unchanged.
func (f *Frame) Gray() []byte {
	w, h := int(f.Width), int(f.Height)
	out := make([]byte, w*h)
	if f.Channels == 1 {
		copy(out, f.Pixels)
		return out
	}
	c := int(f.Channels)
	for i := 0; i < w*h; i++ {
		// Pixels are BGR ordered.
		b := int(f.Pixels[i*c])
		g := int(f.Pixels[i*c+1])
		r := int(f.Pixels[i*c+2])
		out[i] = byte((299*r + 587*g + 114*b) / 1000)
	}
	return out
}

// Crop returns a copy of the rectangle (x,y,w,h) clamped to the frame
// bounds. The returned frame shares timestamp and sequence with the source.
func (f *Frame) Crop(x, y, w, h int) (*Frame, error) {
	fw, fh := int(f.Width), int(f.Height)
	if x < 0 {
		w += x
		x = 0
	}
	if y < 0 {
		h += y
		y = 0
	}
	if x+w > fw {
		w = fw - x
	}
	if y+h > fh {
		h = fh - y
	}
	if w <= 0 || h <= 0 || x >= fw || y >= fh {
		return nil, fmt.Errorf("frame: crop (%d,%d %dx%d) outside %dx%d", x, y, w, h, fw, fh)
	}
	c := int(f.Channels)
	pixels := make([]byte, w*h*c)
	for row := 0; row < h; row++ {
		srcOff := ((y+row)*fw + x) * c
		copy(pixels[row*w*c:(row+1)*w*c], f.Pixels[srcOff:srcOff+w*c])
	}
	return &Frame{
		Width:     uint32(w),
		Height:    uint32(h),
		Channels:  f.Channels,
		Timestamp: f.Timestamp,
		Sequence:  f.Sequence,
		Pixels:    pixels,
	}, nil
}
