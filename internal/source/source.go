// Package source produces BGR frames for the pipeline. The synthetic source
// renders a moving block for development and load testing; the raw file
// source replays packed BGR24 captures.
package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/tkoide/framesentry/internal/frame"
)

// Source delivers frames one at a time. Next blocks until the next frame is
// due or the context is cancelled; io.EOF signals a finite source is
// exhausted.
type Source interface {
	Next(ctx context.Context) (*frame.Frame, error)
	Close() error
}

// Synthetic renders a light block bouncing over a dark background at a
// fixed rate. Frames produced this way trip the motion detector on every
// step, which makes it a convenient end-to-end exerciser without a camera.
type Synthetic struct {
	Width     int
	Height    int
	FPS       float64
	BlockSize int

	x, y   int
	dx, dy int
	ticker *time.Ticker
}

func NewSynthetic(width, height int, fps float64) *Synthetic {
	if fps <= 0 {
		fps = 15
	}
	return &Synthetic{
		Width:     width,
		Height:    height,
		FPS:       fps,
		BlockSize: width / 8,
		dx:        4,
		dy:        3,
		ticker:    time.NewTicker(time.Duration(float64(time.Second) / fps)),
	}
}

func (s *Synthetic) Next(ctx context.Context) (*frame.Frame, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.ticker.C:
	}

	pixels := make([]byte, s.Width*s.Height*3)
	for i := range pixels {
		pixels[i] = 16
	}
	for row := s.y; row < s.y+s.BlockSize && row < s.Height; row++ {
		for col := s.x; col < s.x+s.BlockSize && col < s.Width; col++ {
			off := (row*s.Width + col) * 3
			pixels[off] = 64     // B
			pixels[off+1] = 200  // G
			pixels[off+2] = 220  // R
		}
	}
	s.advance()

	f, err := frame.New(uint32(s.Width), uint32(s.Height), 3, nowSeconds(), pixels)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Synthetic) advance() {
	s.x += s.dx
	s.y += s.dy
	if s.x <= 0 || s.x+s.BlockSize >= s.Width {
		s.dx = -s.dx
		s.x += 2 * s.dx
	}
	if s.y <= 0 || s.y+s.BlockSize >= s.Height {
		s.dy = -s.dy
		s.y += 2 * s.dy
	}
}

func (s *Synthetic) Close() error {
	s.ticker.Stop()
	return nil
}

// RawFile replays a file of densely packed BGR24 frames at the configured
// rate. The file must be a whole number of width*height*3 byte frames.
type RawFile struct {
	Width  int
	Height int
	FPS    float64
	Loop   bool

	file   *os.File
	buf    []byte
	ticker *time.Ticker
}

func OpenRawFile(path string, width, height int, fps float64, loop bool) (*RawFile, error) {
	if fps <= 0 {
		fps = 15
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("source: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("source: stat %s: %w", path, err)
	}
	frameSize := int64(width * height * 3)
	if info.Size() == 0 || info.Size()%frameSize != 0 {
		f.Close()
		return nil, fmt.Errorf("source: %s size %d is not a multiple of frame size %d",
			path, info.Size(), frameSize)
	}
	return &RawFile{
		Width:  width,
		Height: height,
		FPS:    fps,
		Loop:   loop,
		file:   f,
		buf:    make([]byte, frameSize),
		ticker: time.NewTicker(time.Duration(float64(time.Second) / fps)),
	}, nil
}

func (r *RawFile) Next(ctx context.Context) (*frame.Frame, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.ticker.C:
	}

	if _, err := io.ReadFull(r.file, r.buf); err != nil {
		if err == io.EOF && r.Loop {
			if _, serr := r.file.Seek(0, io.SeekStart); serr != nil {
				return nil, fmt.Errorf("source: rewind: %w", serr)
			}
			if _, err = io.ReadFull(r.file, r.buf); err != nil {
				return nil, fmt.Errorf("source: read after rewind: %w", err)
			}
		} else if err == io.EOF {
			return nil, io.EOF
		} else {
			return nil, fmt.Errorf("source: read: %w", err)
		}
	}

	pixels := make([]byte, len(r.buf))
	copy(pixels, r.buf)
	return frame.New(uint32(r.Width), uint32(r.Height), 3, nowSeconds(), pixels)
}

func (r *RawFile) Close() error {
	r.ticker.Stop()
	return r.file.Close()
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}
