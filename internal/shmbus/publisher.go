package shmbus

import (
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/tkoide/framesentry/internal/frame"
)

// Publisher owns a shared-memory segment and writes the latest frame into
// it. There is exactly one live publisher per segment name, enforced with a
// non-blocking exclusive flock held for the publisher's lifetime. A stale
// segment left behind by a crashed publisher is reclaimed on Open.
//
// Publish is a fixed-cost memory write: it never blocks on subscriber
// activity and does not know how many subscribers exist.
type Publisher struct {
	name     string
	path     string
	capacity int
	fd       int
	data     []byte
	lastSeq  uint64
	closed   bool
}

// Open creates the segment sized for maxWidth*maxHeight*channels payload
// bytes. It fails with ErrResourceUnavailable when another live publisher
// holds the same name.
func Open(name string, maxWidth, maxHeight, channels uint32) (*Publisher, error) {
	path, err := segmentPath(name)
	if err != nil {
		return nil, err
	}
	capacity := int(maxWidth) * int(maxHeight) * int(channels)
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: zero capacity segment (%dx%dx%d)", ErrInvalidFrame, maxWidth, maxHeight, channels)
	}

	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("shmbus: create segment %q: %w", name, err)
	}
	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		unix.Close(fd)
		if err == unix.EWOULDBLOCK {
			return nil, fmt.Errorf("%w: %q", ErrResourceUnavailable, name)
		}
		return nil, fmt.Errorf("shmbus: lock segment %q: %w", name, err)
	}

	size := headerSize + capacity
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		unix.Unlink(path)
		return nil, fmt.Errorf("shmbus: size segment %q: %w", name, err)
	}
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		unix.Unlink(path)
		return nil, fmt.Errorf("shmbus: map segment %q: %w", name, err)
	}

	// A reclaimed stale segment may still carry an old header; start the
	// new segment lifetime at sequence zero.
	for i := 0; i < headerSize; i++ {
		data[i] = 0
	}

	return &Publisher{
		name:     name,
		path:     path,
		capacity: capacity,
		fd:       fd,
		data:     data,
	}, nil
}

// Publish writes the frame into the segment: header fields, then payload,
// then the sequence number last. A subscriber that observes the new
// sequence is guaranteed the preceding payload bytes are complete.
func (p *Publisher) Publish(f *frame.Frame) error {
	if p.closed {
		return ErrClosed
	}
	size := f.Size()
	if len(f.Pixels) != size {
		return fmt.Errorf("%w: pixel buffer length %d does not match %dx%dx%d",
			ErrInvalidFrame, len(f.Pixels), f.Width, f.Height, f.Channels)
	}
	if size > p.capacity {
		return fmt.Errorf("%w: payload %d bytes exceeds segment capacity %d", ErrInvalidFrame, size, p.capacity)
	}
	if f.Sequence <= p.lastSeq {
		return fmt.Errorf("%w: sequence %d not greater than last published %d", ErrInvalidFrame, f.Sequence, p.lastSeq)
	}

	putHeader(p.data, f.Width, f.Height, f.Channels, f.Timestamp)
	copy(p.data[headerSize:], f.Pixels)
	storeSeq(p.data, f.Sequence)
	p.lastSeq = f.Sequence
	return nil
}

// LastSequence reports the most recently published sequence number, zero
// before the first publish.
func (p *Publisher) LastSequence() uint64 { return p.lastSeq }

// Name returns the segment name.
func (p *Publisher) Name() string { return p.name }

// Capacity returns the payload capacity in bytes.
func (p *Publisher) Capacity() int { return p.capacity }

// Close unmaps and removes the segment. Subscribers polling afterwards
// observe ErrNotFound once they have drained the final frame; that is
// their normal end-of-stream signal, not a failure.
func (p *Publisher) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true

	var firstErr error
	if err := unix.Munmap(p.data); err != nil && firstErr == nil {
		firstErr = err
	}
	p.data = nil
	if err := unix.Close(p.fd); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := unix.Unlink(p.path); err != nil && firstErr == nil {
		firstErr = err
	}
	if firstErr != nil {
		return fmt.Errorf("shmbus: close segment %q: %w", p.name, firstErr)
	}
	return nil
}

func segmentPath(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, "/\x00") {
		return "", fmt.Errorf("shmbus: invalid segment name %q", name)
	}
	return filepath.Join(shmDir, name), nil
}
