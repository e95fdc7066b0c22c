package shmbus

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/tkoide/framesentry/internal/frame"
)

func segName(t *testing.T) string {
	t.Helper()
	name := fmt.Sprintf("framesentry-test-%d-%s", os.Getpid(), t.Name())
	// Segment may be left over from an interrupted earlier run.
	os.Remove("/dev/shm/" + name)
	return name
}

func testFrame(t *testing.T, w, h uint32, seq uint64, fill byte) *frame.Frame {
	t.Helper()
	pixels := make([]byte, int(w)*int(h)*3)
	for i := range pixels {
		pixels[i] = fill
	}
	f, err := frame.New(w, h, 3, float64(seq)*0.033, pixels)
	if err != nil {
		t.Fatal(err)
	}
	f.Sequence = seq
	return f
}

func TestRoundTrip(t *testing.T) {
	name := segName(t)
	pub, err := Open(name, 64, 48, 3)
	if err != nil {
		t.Fatal(err)
	}
	defer pub.Close()

	sub, err := Attach(name)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Detach()

	want := testFrame(t, 64, 48, 1, 0)
	for i := range want.Pixels {
		want.Pixels[i] = byte(i % 251)
	}
	want.Timestamp = 1234.5678
	if err := pub.Publish(want); err != nil {
		t.Fatal(err)
	}

	got, err := sub.Poll(0)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("poll returned no frame after publish")
	}
	if got.Width != want.Width || got.Height != want.Height || got.Channels != want.Channels {
		t.Errorf("dimensions = %dx%dx%d, want %dx%dx%d",
			got.Width, got.Height, got.Channels, want.Width, want.Height, want.Channels)
	}
	if got.Timestamp != want.Timestamp {
		t.Errorf("timestamp = %v, want %v", got.Timestamp, want.Timestamp)
	}
	if got.Sequence != want.Sequence {
		t.Errorf("sequence = %d, want %d", got.Sequence, want.Sequence)
	}
	if !bytes.Equal(got.Pixels, want.Pixels) {
		t.Error("payload bytes differ from published frame")
	}
}

func TestPollIdempotentWithoutNewPublish(t *testing.T) {
	name := segName(t)
	pub, err := Open(name, 32, 32, 3)
	if err != nil {
		t.Fatal(err)
	}
	defer pub.Close()

	sub, err := Attach(name)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Detach()

	// Nothing published yet.
	for i := 0; i < 3; i++ {
		f, err := sub.Poll(0)
		if err != nil || f != nil {
			t.Fatalf("poll before publish = (%v, %v), want (nil, nil)", f, err)
		}
	}

	if err := pub.Publish(testFrame(t, 32, 32, 1, 0xAB)); err != nil {
		t.Fatal(err)
	}
	f, err := sub.Poll(0)
	if err != nil || f == nil {
		t.Fatalf("poll after publish = (%v, %v)", f, err)
	}

	// Same lastSeen, no intervening publish: always no new frame.
	seq := f.Sequence
	for i := 0; i < 5; i++ {
		f, err := sub.Poll(seq)
		if err != nil || f != nil {
			t.Fatalf("repeated poll = (%v, %v), want (nil, nil)", f, err)
		}
	}
}

func TestSingleLivePublisherPerName(t *testing.T) {
	name := segName(t)
	pub, err := Open(name, 16, 16, 3)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := Open(name, 16, 16, 3); !errors.Is(err, ErrResourceUnavailable) {
		t.Errorf("second Open = %v, want ErrResourceUnavailable", err)
	}

	// After the first publisher closes, the name is free again.
	if err := pub.Close(); err != nil {
		t.Fatal(err)
	}
	pub2, err := Open(name, 16, 16, 3)
	if err != nil {
		t.Fatalf("reopen after close: %v", err)
	}
	pub2.Close()
}

func TestPublishRejectsOversizedFrame(t *testing.T) {
	name := segName(t)
	pub, err := Open(name, 8, 8, 3)
	if err != nil {
		t.Fatal(err)
	}
	defer pub.Close()

	if err := pub.Publish(testFrame(t, 16, 16, 1, 0)); !errors.Is(err, ErrInvalidFrame) {
		t.Errorf("oversized publish = %v, want ErrInvalidFrame", err)
	}
}

func TestPublishRejectsNonIncreasingSequence(t *testing.T) {
	name := segName(t)
	pub, err := Open(name, 8, 8, 3)
	if err != nil {
		t.Fatal(err)
	}
	defer pub.Close()

	if err := pub.Publish(testFrame(t, 8, 8, 5, 0)); err != nil {
		t.Fatal(err)
	}
	if err := pub.Publish(testFrame(t, 8, 8, 5, 0)); !errors.Is(err, ErrInvalidFrame) {
		t.Errorf("repeated sequence = %v, want ErrInvalidFrame", err)
	}
}

func TestAttachLifecycle(t *testing.T) {
	name := segName(t)

	if _, err := Attach(name); !errors.Is(err, ErrNotFound) {
		t.Errorf("attach before open = %v, want ErrNotFound", err)
	}

	pub, err := Open(name, 16, 16, 3)
	if err != nil {
		t.Fatal(err)
	}
	sub, err := Attach(name)
	if err != nil {
		t.Fatalf("attach while open: %v", err)
	}
	sub.Detach()
	pub.Close()

	if _, err := Attach(name); !errors.Is(err, ErrNotFound) {
		t.Errorf("attach after close = %v, want ErrNotFound", err)
	}
}

func TestAttachWithRetryWaitsForPublisher(t *testing.T) {
	name := segName(t)

	var pub *Publisher
	done := make(chan struct{})
	go func() {
		defer close(done)
		time.Sleep(50 * time.Millisecond)
		p, err := Open(name, 16, 16, 3)
		if err != nil {
			t.Error(err)
			return
		}
		pub = p
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sub, err := AttachWithRetry(ctx, name, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("AttachWithRetry: %v", err)
	}
	sub.Detach()
	<-done
	if pub != nil {
		pub.Close()
	}
}

func TestAttachWithRetryHonorsContext(t *testing.T) {
	name := segName(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := AttachWithRetry(ctx, name, 10*time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("AttachWithRetry without publisher = %v, want deadline exceeded", err)
	}
}

// TestCam1Scenario walks the full lifecycle: open, publish, poll, publish,
// close, drain, not-found.
func TestCam1Scenario(t *testing.T) {
	name := segName(t)
	pub, err := Open(name, 640, 480, 3)
	if err != nil {
		t.Fatal(err)
	}

	if err := pub.Publish(testFrame(t, 640, 480, 1, 0x00)); err != nil {
		t.Fatal(err)
	}

	sub, err := Attach(name)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Detach()

	f, err := sub.Poll(0)
	if err != nil || f == nil {
		t.Fatalf("first poll = (%v, %v)", f, err)
	}
	if f.Sequence != 1 || len(f.Pixels) != 921600 {
		t.Fatalf("frame 1: sequence=%d payload=%d, want 1/921600", f.Sequence, len(f.Pixels))
	}
	for i, b := range f.Pixels {
		if b != 0x00 {
			t.Fatalf("frame 1 pixel %d = %#x, want 0x00", i, b)
		}
	}

	if err := pub.Publish(testFrame(t, 640, 480, 2, 0xFF)); err != nil {
		t.Fatal(err)
	}
	if err := pub.Close(); err != nil {
		t.Fatal(err)
	}

	// The final frame published before close is still delivered once.
	f, err = sub.Poll(1)
	if err != nil || f == nil {
		t.Fatalf("poll after close = (%v, %v), want final frame", f, err)
	}
	if f.Sequence != 2 {
		t.Fatalf("final frame sequence = %d, want 2", f.Sequence)
	}
	for i, b := range f.Pixels {
		if b != 0xFF {
			t.Fatalf("frame 2 pixel %d = %#x, want 0xFF", i, b)
		}
	}

	// Drained and removed: end of stream.
	if _, err := sub.Poll(2); !errors.Is(err, ErrNotFound) {
		t.Errorf("poll after drain = %v, want ErrNotFound", err)
	}
}

// TestSequenceMonotonicUnderConcurrentPolling publishes from one goroutine
// while a subscriber polls continuously, and checks every observed sequence
// is one the publisher actually wrote, in non-decreasing order, with the
// payload matching its sequence number.
func TestSequenceMonotonicUnderConcurrentPolling(t *testing.T) {
	name := segName(t)
	pub, err := Open(name, 64, 64, 3)
	if err != nil {
		t.Fatal(err)
	}

	sub, err := Attach(name)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Detach()

	const frames = 500
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for seq := uint64(1); seq <= frames; seq++ {
			// Payload encodes the sequence so torn reads are detectable.
			if err := pub.Publish(testFrame(t, 64, 64, seq, byte(seq%251))); err != nil {
				t.Error(err)
				return
			}
		}
	}()

	var lastSeen uint64
	for lastSeen < frames {
		f, err := sub.Poll(lastSeen)
		if err != nil {
			t.Fatal(err)
		}
		if f == nil {
			continue
		}
		if f.Sequence < lastSeen || f.Sequence > frames {
			t.Fatalf("observed sequence %d outside published range (lastSeen %d)", f.Sequence, lastSeen)
		}
		want := byte(f.Sequence % 251)
		for i, b := range f.Pixels {
			if b != want {
				t.Fatalf("seq %d: pixel %d = %#x, want %#x (payload/sequence mismatch)", f.Sequence, i, b, want)
			}
		}
		lastSeen = f.Sequence
	}

	wg.Wait()
	pub.Close()
}

func TestDetachLeavesSegmentIntact(t *testing.T) {
	name := segName(t)
	pub, err := Open(name, 16, 16, 3)
	if err != nil {
		t.Fatal(err)
	}
	defer pub.Close()

	sub, err := Attach(name)
	if err != nil {
		t.Fatal(err)
	}
	if err := sub.Detach(); err != nil {
		t.Fatal(err)
	}

	// A fresh subscriber can still attach and read.
	if err := pub.Publish(testFrame(t, 16, 16, 1, 0x42)); err != nil {
		t.Fatal(err)
	}
	sub2, err := Attach(name)
	if err != nil {
		t.Fatalf("attach after another subscriber detached: %v", err)
	}
	defer sub2.Detach()
	f, err := sub2.Poll(0)
	if err != nil || f == nil || f.Sequence != 1 {
		t.Fatalf("poll = (%v, %v), want frame 1", f, err)
	}
}
