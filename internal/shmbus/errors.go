package shmbus

import "errors"

var (
	// ErrResourceUnavailable is returned by Open when the segment name is
	// already owned by another live publisher.
	ErrResourceUnavailable = errors.New("shmbus: segment already owned by a live publisher")
	// ErrNotFound is returned when attaching to or polling a segment that
	// does not exist or has been removed by its publisher.
	ErrNotFound = errors.New("shmbus: segment not found")
	// ErrInvalidFrame is returned when a frame does not fit the segment or
	// a polled header fails validation.
	ErrInvalidFrame = errors.New("shmbus: invalid frame")
	// ErrClosed is returned on use after Close or Detach.
	ErrClosed = errors.New("shmbus: closed")
)
