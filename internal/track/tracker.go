// Package track implements a simple IoU-based tracker so the crop consumer
// persists each detected region once instead of once per poll.
package track

import (
	"github.com/google/uuid"

	"github.com/tkoide/framesentry/internal/detect"
)

const (
	DefaultIoUThreshold = 0.3
	DefaultTimeout      = 2.0 // seconds
)

// Track is one object being followed across frames.
type Track struct {
	ID        uuid.UUID
	Region    detect.Region
	FirstSeen float64
	LastSeen  float64
}

// Match pairs an incoming region with its track. New is true the first time
// the region appears.
type Match struct {
	Region detect.Region
	Track  *Track
	New    bool
}

// Tracker matches incoming regions to existing tracks greedily by IoU.
// Tracks that go unseen for longer than Timeout are dropped, so a region
// that disappears and comes back is treated as new again.
type Tracker struct {
	IoUThreshold float64
	Timeout      float64

	tracks map[uuid.UUID]*Track
}

func NewTracker(iouThreshold, timeout float64) *Tracker {
	return &Tracker{
		IoUThreshold: iouThreshold,
		Timeout:      timeout,
		tracks:       make(map[uuid.UUID]*Track),
	}
}

// Update advances the tracker one frame and reports a match per region.
func (t *Tracker) Update(regions []detect.Region, timestamp float64) []Match {
	for id, tr := range t.tracks {
		if timestamp-tr.LastSeen > t.Timeout {
			delete(t.tracks, id)
		}
	}

	used := make(map[uuid.UUID]bool)
	matches := make([]Match, 0, len(regions))

	for _, region := range regions {
		var best *Track
		bestIoU := 0.0
		for id, tr := range t.tracks {
			if used[id] {
				continue
			}
			if tr.Region.Kind != region.Kind || tr.Region.Label != region.Label {
				continue
			}
			iou := region.IoU(tr.Region)
			if iou > t.IoUThreshold && iou > bestIoU {
				bestIoU = iou
				best = tr
			}
		}

		if best != nil {
			best.Region = region
			best.LastSeen = timestamp
			used[best.ID] = true
			matches = append(matches, Match{Region: region, Track: best, New: false})
			continue
		}

		tr := &Track{
			ID:        uuid.New(),
			Region:    region,
			FirstSeen: timestamp,
			LastSeen:  timestamp,
		}
		t.tracks[tr.ID] = tr
		used[tr.ID] = true
		matches = append(matches, Match{Region: region, Track: tr, New: true})
	}

	return matches
}

// Len reports the number of live tracks.
func (t *Tracker) Len() int { return len(t.tracks) }

// Reset drops all tracks.
func (t *Tracker) Reset() {
	t.tracks = make(map[uuid.UUID]*Track)
}
