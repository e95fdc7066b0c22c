package detect

import "github.com/tkoide/framesentry/internal/frame"

// Provider supplies object-detection boxes for a frame. The model inference
// itself runs in an external collaborator; the pipeline only merges its
// results with motion regions.
type Provider interface {
	Detect(f *frame.Frame) ([]Region, error)
}

// Detection is the raw shape an external model reports: corner coordinates
// and a numeric class id.
type Detection struct {
	X1, Y1     int
	X2, Y2     int
	ClassID    int
	Confidence float32
}

// Region converts a model detection to an object region, resolving the
// class id to its label.
func (d Detection) Region() Region {
	return Region{
		X:          d.X1,
		Y:          d.Y1,
		W:          d.X2 - d.X1,
		H:          d.Y2 - d.Y1,
		Kind:       KindObject,
		Label:      ClassName(d.ClassID),
		Confidence: d.Confidence,
	}
}

// None is a Provider that reports no objects. Used when object detection is
// disabled or no external detector is attached.
type None struct{}

func (None) Detect(*frame.Frame) ([]Region, error) { return nil, nil }

// Static replays a fixed set of regions on every frame. Useful in tests and
// when boxes arrive out of band.
type Static struct {
	Regions []Region
}

func (s *Static) Detect(*frame.Frame) ([]Region, error) {
	out := make([]Region, len(s.Regions))
	copy(out, s.Regions)
	for i := range out {
		out[i].Kind = KindObject
	}
	return out, nil
}
