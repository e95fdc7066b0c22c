// Package detect holds the detection region types shared by the motion
// detector, the overlay renderer and the crop consumer, plus the seam for
// the external object-detection model.
package detect

// Kind tags the origin of a region.
type Kind string

const (
	KindMotion Kind = "motion"
	KindObject Kind = "object"
)

// Region is a detection bounding box. Confidence and Label are only set for
// object regions. Regions are produced per frame and consumed immediately
// for overlay rendering; they are not persisted.
type Region struct {
	X          int
	Y          int
	W          int
	H          int
	Kind       Kind
	Label      string
	Confidence float32
}

// Area returns the bounding-box area in pixels.
func (r Region) Area() int {
	return r.W * r.H
}

// IoU computes intersection over union between two regions.
func (r Region) IoU(o Region) float64 {
	x1 := max(r.X, o.X)
	y1 := max(r.Y, o.Y)
	x2 := min(r.X+r.W, o.X+o.W)
	y2 := min(r.Y+r.H, o.Y+o.H)
	if x2 <= x1 || y2 <= y1 {
		return 0
	}
	inter := (x2 - x1) * (y2 - y1)
	union := r.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
