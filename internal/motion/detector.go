// Package motion implements frame-differencing motion detection.
//
// The detector keeps the previous frame as a grayscale baseline and reports
// one bounding region per connected component of above-threshold pixel
// change. Connected components use 8-connectivity.
package motion

import (
	"github.com/tkoide/framesentry/internal/detect"
	"github.com/tkoide/framesentry/internal/frame"
)

const (
	DefaultThreshold     = 25
	DefaultMinRegionArea = 500
)

// Detector holds per-session motion state. It is owned by a single caller
// and is not safe for concurrent use.
type Detector struct {
	Threshold     uint8
	MinRegionArea int

	prev       []byte // grayscale baseline
	prevWidth  int
	prevHeight int
}

func NewDetector(threshold uint8, minRegionArea int) *Detector {
	return &Detector{
		Threshold:     threshold,
		MinRegionArea: minRegionArea,
	}
}

// Reset discards the baseline. The next Detect call starts a new session.
func (d *Detector) Reset() {
	d.prev = nil
	d.prevWidth = 0
	d.prevHeight = 0
}

// Detect compares the frame against the baseline and returns the motion
// regions. The first frame of a session yields no regions and becomes the
// baseline. A frame whose dimensions differ from the baseline resets the
// session instead of failing: stream resolution can change when the
// upstream connection renegotiates.
//
// The just-processed frame always becomes the new baseline (sliding
// one-frame difference). A dropped frame therefore widens the effective
// time delta and raises false-positive risk; that sensitivity is accepted
// in exchange for bounded drift under slow lighting changes.
func (d *Detector) Detect(f *frame.Frame) []detect.Region {
	w, h := int(f.Width), int(f.Height)
	gray := f.Gray()

	if d.prev == nil || d.prevWidth != w || d.prevHeight != h {
		d.setBaseline(gray, w, h)
		return nil
	}

	mask := make([]bool, w*h)
	thr := int(d.Threshold)
	for i, v := range gray {
		diff := int(v) - int(d.prev[i])
		if diff < 0 {
			diff = -diff
		}
		if diff > thr {
			mask[i] = true
		}
	}

	regions := d.extractRegions(mask, w, h)
	d.setBaseline(gray, w, h)
	return regions
}

func (d *Detector) setBaseline(gray []byte, w, h int) {
	d.prev = gray
	d.prevWidth = w
	d.prevHeight = h
}

// extractRegions labels connected components in the binary mask with an
// iterative flood fill (8-connectivity) and keeps those whose bounding-box
// area reaches MinRegionArea.
func (d *Detector) extractRegions(mask []bool, w, h int) []detect.Region {
	var regions []detect.Region
	var stack []int

	for start, on := range mask {
		if !on {
			continue
		}
		minX, minY := start%w, start/w
		maxX, maxY := minX, minY

		mask[start] = false
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := idx%w, idx/w

			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}

			for dy := -1; dy <= 1; dy++ {
				ny := y + dy
				if ny < 0 || ny >= h {
					continue
				}
				for dx := -1; dx <= 1; dx++ {
					nx := x + dx
					if nx < 0 || nx >= w {
						continue
					}
					n := ny*w + nx
					if mask[n] {
						mask[n] = false
						stack = append(stack, n)
					}
				}
			}
		}

		r := detect.Region{
			X:    minX,
			Y:    minY,
			W:    maxX - minX + 1,
			H:    maxY - minY + 1,
			Kind: detect.KindMotion,
		}
		if r.Area() >= d.MinRegionArea {
			regions = append(regions, r)
		}
	}
	return regions
}
