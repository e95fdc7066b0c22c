// Package overlay draws detection results and a status line onto BGR
// frames before they are displayed or republished.
package overlay

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/tkoide/framesentry/internal/detect"
	"github.com/tkoide/framesentry/internal/frame"
)

// Outline and text colors. Motion regions are red, object boxes green,
// matching the source feed conventions.
var (
	MotionColor = color.RGBA{R: 255, A: 255}
	ObjectColor = color.RGBA{G: 255, A: 255}
	StatusColor = color.RGBA{G: 255, A: 255}
)

const outlineWidth = 2

// Status is the per-frame state rendered in the top-left corner.
type Status struct {
	FPS           float64
	Motion        bool
	MotionEnabled bool
	ObjectCount   int
	ObjectEnabled bool
}

// Renderer draws in place on a frame's pixel buffer.
type Renderer struct {
	face font.Face
}

func NewRenderer() *Renderer {
	return &Renderer{face: basicfont.Face7x13}
}

// Draw annotates the frame with one outlined box per region, labels for
// object regions, and the status line. The frame buffer is modified in
// place.
func (r *Renderer) Draw(f *frame.Frame, regions []detect.Region, status Status) {
	img := &bgrImage{f: f}
	for _, reg := range regions {
		col := ObjectColor
		label := ""
		switch reg.Kind {
		case detect.KindMotion:
			col = MotionColor
			label = "Motion"
		case detect.KindObject:
			label = fmt.Sprintf("%s %.2f", reg.Label, reg.Confidence)
		}
		drawRect(img, reg.X, reg.Y, reg.W, reg.H, col)
		if label != "" {
			r.drawText(img, reg.X, reg.Y-4, label, col)
		}
	}
	r.drawText(img, 10, 24, formatStatus(status), StatusColor)
}

func formatStatus(s Status) string {
	text := fmt.Sprintf("FPS: %.1f", s.FPS)
	if s.ObjectEnabled {
		text += fmt.Sprintf(" | Det: %d", s.ObjectCount)
	}
	if s.MotionEnabled {
		if s.Motion {
			text += " | Mot: Y"
		} else {
			text += " | Mot: N"
		}
	}
	return text
}

func (r *Renderer) drawText(img *bgrImage, x, y int, text string, col color.RGBA) {
	if y < r.face.Metrics().Ascent.Ceil() {
		y = r.face.Metrics().Ascent.Ceil()
	}
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: r.face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

func drawRect(img *bgrImage, x, y, w, h int, col color.RGBA) {
	for t := 0; t < outlineWidth; t++ {
		hline(img, x, x+w-1, y+t, col)
		hline(img, x, x+w-1, y+h-1-t, col)
		vline(img, x+t, y, y+h-1, col)
		vline(img, x+w-1-t, y, y+h-1, col)
	}
}

func hline(img *bgrImage, x1, x2, y int, col color.RGBA) {
	for x := x1; x <= x2; x++ {
		img.Set(x, y, col)
	}
}

func vline(img *bgrImage, x, y1, y2 int, col color.RGBA) {
	for y := y1; y <= y2; y++ {
		img.Set(x, y, col)
	}
}

// bgrImage adapts a frame's packed BGR buffer to draw.Image so the font
// drawer can render into it directly.
type bgrImage struct {
	f *frame.Frame
}

func (b *bgrImage) ColorModel() color.Model { return color.RGBAModel }

func (b *bgrImage) Bounds() image.Rectangle {
	return image.Rect(0, 0, int(b.f.Width), int(b.f.Height))
}

func (b *bgrImage) At(x, y int) color.Color {
	if !(image.Point{X: x, Y: y}.In(b.Bounds())) {
		return color.RGBA{}
	}
	off := (y*int(b.f.Width) + x) * int(b.f.Channels)
	px := b.f.Pixels
	return color.RGBA{R: px[off+2], G: px[off+1], B: px[off], A: 255}
}

func (b *bgrImage) Set(x, y int, c color.Color) {
	if !(image.Point{X: x, Y: y}.In(b.Bounds())) {
		return
	}
	r, g, bl, _ := c.RGBA()
	off := (y*int(b.f.Width) + x) * int(b.f.Channels)
	px := b.f.Pixels
	px[off] = byte(bl >> 8)
	px[off+1] = byte(g >> 8)
	px[off+2] = byte(r >> 8)
}
