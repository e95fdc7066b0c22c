package shmbus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/tkoide/framesentry/internal/frame"
)

// Subscriber attaches read-only to an existing segment and copies out new
// frames. It never creates, resizes or removes the segment, and Poll never
// blocks: absence of a new frame is a normal, immediately-returned outcome.
type Subscriber struct {
	name     string
	path     string
	fd       int
	data     []byte
	capacity int
	closed   bool
}

// Attach maps the named segment read-only. It fails with ErrNotFound when
// no publisher has created it (or the publisher already removed it).
func Attach(name string) (*Subscriber, error) {
	path, err := segmentPath(name)
	if err != nil {
		return nil, err
	}
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		if err == unix.ENOENT {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
		}
		return nil, fmt.Errorf("shmbus: open segment %q: %w", name, err)
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("shmbus: stat segment %q: %w", name, err)
	}
	if st.Size < headerSize {
		// The publisher created the file but has not sized it yet.
		unix.Close(fd)
		return nil, fmt.Errorf("%w: %q not initialized", ErrNotFound, name)
	}

	data, err := unix.Mmap(fd, 0, int(st.Size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("shmbus: map segment %q: %w", name, err)
	}

	return &Subscriber{
		name:     name,
		path:     path,
		fd:       fd,
		data:     data,
		capacity: int(st.Size) - headerSize,
	}, nil
}

// AttachWithRetry attaches to the segment, retrying at the given interval
// until the publisher creates it or the context is done. This decouples
// consumer startup from publisher startup order without a fixed sleep.
func AttachWithRetry(ctx context.Context, name string, interval time.Duration) (*Subscriber, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		sub, err := Attach(name)
		if err == nil {
			return sub, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("shmbus: waiting for segment %q: %w", name, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Poll returns the latest published frame when its sequence number differs
// from lastSeen, or (nil, nil) when nothing new was published. Once the
// publisher has removed the segment and no undelivered frame remains, Poll
// returns ErrNotFound.
//
// A copy that the publisher overwrites mid-read is detected by re-reading
// the sequence number and retried a bounded number of times; when retries
// exhaust, the poll yields no new frame rather than an error.
func (s *Subscriber) Poll(lastSeen uint64) (*frame.Frame, error) {
	if s.closed {
		return nil, ErrClosed
	}

	for attempt := 0; attempt < maxPollRetries; attempt++ {
		seq := loadSeq(s.data)
		if seq == lastSeen {
			// No new frame. The mapping outlives segment removal, so file
			// presence is what distinguishes "nothing yet" from
			// "publisher gone".
			if err := unix.Access(s.path, unix.F_OK); err != nil {
				return nil, fmt.Errorf("%w: %q removed by publisher", ErrNotFound, s.name)
			}
			return nil, nil
		}

		width, height, channels, timestamp := getHeader(s.data)
		size := int(width) * int(height) * int(channels)
		if size <= 0 || size > s.capacity {
			if loadSeq(s.data) != seq {
				continue // header was mid-overwrite, retry
			}
			return nil, fmt.Errorf("%w: header %dx%dx%d exceeds capacity %d",
				ErrInvalidFrame, width, height, channels, s.capacity)
		}

		pixels := make([]byte, size)
		copy(pixels, s.data[headerSize:headerSize+size])

		if loadSeq(s.data) != seq {
			continue // torn read, retry with the fresh frame
		}

		return &frame.Frame{
			Width:     width,
			Height:    height,
			Channels:  channels,
			Timestamp: timestamp,
			Sequence:  seq,
			Pixels:    pixels,
		}, nil
	}

	// Retries exhausted: the publisher is overwriting faster than we can
	// copy. Report no new frame and let the next poll cycle catch up.
	return nil, nil
}

// Detach releases the local mapping. The segment itself is untouched.
func (s *Subscriber) Detach() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	if err := unix.Munmap(s.data); err != nil {
		firstErr = err
	}
	s.data = nil
	if err := unix.Close(s.fd); err != nil && firstErr == nil {
		firstErr = err
	}
	if firstErr != nil {
		return fmt.Errorf("shmbus: detach from %q: %w", s.name, firstErr)
	}
	return nil
}

// Name returns the segment name.
func (s *Subscriber) Name() string { return s.name }

// Capacity returns the payload capacity of the attached segment.
func (s *Subscriber) Capacity() int { return s.capacity }
