package source

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestSyntheticProducesMovingBlock(t *testing.T) {
	s := NewSynthetic(160, 120, 200)
	defer s.Close()

	ctx := context.Background()
	f1, err := s.Next(ctx)
	if err != nil {
		t.Fatal(err)
	}
	f2, err := s.Next(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if f1.Width != 160 || f1.Height != 120 || f1.Channels != 3 {
		t.Fatalf("unexpected geometry %dx%dx%d", f1.Width, f1.Height, f1.Channels)
	}
	same := true
	for i := range f1.Pixels {
		if f1.Pixels[i] != f2.Pixels[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("consecutive synthetic frames are identical")
	}
}

func TestSyntheticHonorsContext(t *testing.T) {
	s := NewSynthetic(160, 120, 0.001)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Next(ctx); err != context.Canceled {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestRawFileReplay(t *testing.T) {
	const w, h = 4, 3
	path := filepath.Join(t.TempDir(), "frames.bgr")

	raw := make([]byte, 2*w*h*3)
	for i := range raw[:w*h*3] {
		raw[i] = 0x11
	}
	for i := range raw[w*h*3:] {
		raw[w*h*3+i] = 0x22
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}

	src, err := OpenRawFile(path, w, h, 500, false)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	ctx := context.Background()
	f1, err := src.Next(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if f1.Pixels[0] != 0x11 {
		t.Errorf("first frame byte = %#x, want 0x11", f1.Pixels[0])
	}
	f2, err := src.Next(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if f2.Pixels[0] != 0x22 {
		t.Errorf("second frame byte = %#x, want 0x22", f2.Pixels[0])
	}
	if _, err := src.Next(ctx); err != io.EOF {
		t.Fatalf("got %v, want io.EOF at end of file", err)
	}
}

func TestRawFileLoops(t *testing.T) {
	const w, h = 2, 2
	path := filepath.Join(t.TempDir(), "frames.bgr")

	raw := make([]byte, w*h*3)
	for i := range raw {
		raw[i] = 0x33
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}

	src, err := OpenRawFile(path, w, h, 500, true)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f, err := src.Next(ctx)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if f.Pixels[0] != 0x33 {
			t.Fatalf("frame %d byte = %#x", i, f.Pixels[0])
		}
	}
}

func TestRawFileRejectsPartialFrame(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.bgr")
	if err := os.WriteFile(path, make([]byte, 10), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenRawFile(path, 4, 3, 15, false); err == nil {
		t.Error("expected error for truncated file")
	}
}
