package detect

import "testing"

func TestIoU(t *testing.T) {
	a := Region{X: 0, Y: 0, W: 10, H: 10}

	if got := a.IoU(a); got != 1.0 {
		t.Errorf("IoU(a,a) = %v, want 1", got)
	}
	if got := a.IoU(Region{X: 20, Y: 20, W: 10, H: 10}); got != 0 {
		t.Errorf("IoU of disjoint boxes = %v, want 0", got)
	}

	// Half overlap: intersection 50, union 150.
	b := Region{X: 5, Y: 0, W: 10, H: 10}
	want := 50.0 / 150.0
	if got := a.IoU(b); got < want-1e-9 || got > want+1e-9 {
		t.Errorf("IoU = %v, want %v", got, want)
	}
}

func TestDetectionRegion(t *testing.T) {
	d := Detection{X1: 10, Y1: 20, X2: 110, Y2: 80, ClassID: 0, Confidence: 0.87}
	r := d.Region()

	if r.X != 10 || r.Y != 20 || r.W != 100 || r.H != 60 {
		t.Errorf("region box = (%d,%d %dx%d)", r.X, r.Y, r.W, r.H)
	}
	if r.Kind != KindObject {
		t.Errorf("kind = %q", r.Kind)
	}
	if r.Label != "person" {
		t.Errorf("label = %q, want person", r.Label)
	}
}

func TestClassName(t *testing.T) {
	if got := ClassName(16); got != "dog" {
		t.Errorf("ClassName(16) = %q, want dog", got)
	}
	if got := ClassName(999); got != "class_999" {
		t.Errorf("ClassName(999) = %q", got)
	}
	if got := ClassName(-1); got != "class_-1" {
		t.Errorf("ClassName(-1) = %q", got)
	}
}

func TestStaticProviderTagsObjects(t *testing.T) {
	p := &Static{Regions: []Region{{X: 1, Y: 1, W: 5, H: 5}}}
	out, err := p.Detect(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].Kind != KindObject {
		t.Errorf("static provider output = %+v", out)
	}

	// The provider hands out copies; callers must not see shared state.
	out[0].X = 99
	if p.Regions[0].X == 99 {
		t.Error("provider output aliases internal slice")
	}
}
