// Package shmbus implements the cross-process frame bus: a POSIX
// shared-memory segment carrying the single latest frame from one publisher
// to any number of subscribers.
//
// Wire layout (little-endian, producer and consumers must agree):
//
//	offset  size  field
//	0       4     width (uint32)
//	4       4     height (uint32)
//	8       4     channels (uint32)
//	12      8     timestamp (float64 seconds)
//	20      8     sequence (uint64)
//	28      N     BGR pixel payload, row-major
//
// The sequence number is written last and read first. A reader that
// observes a new sequence number copies the payload and re-reads the
// sequence; a mismatch means the publisher overwrote mid-copy and the read
// is discarded.
package shmbus

import (
	"encoding/binary"
	"math"
	"sync/atomic"
	"unsafe"
)

const (
	headerSize      = 28
	widthOffset     = 0
	heightOffset    = 4
	channelsOffset  = 8
	timestampOffset = 12
	seqOffset       = 20

	// shmDir is where POSIX shared memory objects live on Linux.
	shmDir = "/dev/shm"

	// maxPollRetries bounds how often a subscriber restarts a copy that was
	// overwritten mid-read before giving up for the poll cycle.
	maxPollRetries = 3
)

func putHeader(data []byte, width, height, channels uint32, timestamp float64) {
	binary.LittleEndian.PutUint32(data[widthOffset:], width)
	binary.LittleEndian.PutUint32(data[heightOffset:], height)
	binary.LittleEndian.PutUint32(data[channelsOffset:], channels)
	binary.LittleEndian.PutUint64(data[timestampOffset:], math.Float64bits(timestamp))
}

func getHeader(data []byte) (width, height, channels uint32, timestamp float64) {
	width = binary.LittleEndian.Uint32(data[widthOffset:])
	height = binary.LittleEndian.Uint32(data[heightOffset:])
	channels = binary.LittleEndian.Uint32(data[channelsOffset:])
	timestamp = math.Float64frombits(binary.LittleEndian.Uint64(data[timestampOffset:]))
	return
}

// The sequence field sits at offset 20, which is only 4-byte aligned, so it
// is accessed as two aligned 32-bit atomics instead of one 64-bit atomic
// (unaligned 64-bit atomics fault on arm64). The low word is stored last by
// the writer and loaded first by readers, making it the release/acquire
// word of the protocol. The high word changes once per 2^32 frames; a tear
// across that rollover is caught by the post-copy sequence re-read. This
// matches the little-endian wire layout above and assumes a little-endian
// host, as the rest of the header does.

func loadSeq(data []byte) uint64 {
	lo := atomic.LoadUint32((*uint32)(unsafe.Pointer(&data[seqOffset])))
	hi := atomic.LoadUint32((*uint32)(unsafe.Pointer(&data[seqOffset+4])))
	return uint64(hi)<<32 | uint64(lo)
}

func storeSeq(data []byte, seq uint64) {
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&data[seqOffset+4])), uint32(seq>>32))
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&data[seqOffset])), uint32(seq))
}
