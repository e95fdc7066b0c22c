package frame

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
)

// RGBA converts the BGR pixel buffer to a stdlib image for encoding.
func (f *Frame) RGBA() *image.RGBA {
	w, h := int(f.Width), int(f.Height)
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	c := int(f.Channels)
	for i := 0; i < w*h; i++ {
		if c == 1 {
			v := f.Pixels[i]
			img.Pix[i*4] = v
			img.Pix[i*4+1] = v
			img.Pix[i*4+2] = v
		} else {
			img.Pix[i*4] = f.Pixels[i*c+2]
			img.Pix[i*4+1] = f.Pixels[i*c+1]
			img.Pix[i*4+2] = f.Pixels[i*c]
		}
		img.Pix[i*4+3] = 255
	}
	return img
}

// EncodeJPEG encodes the frame as JPEG at the given quality (1-100).
func (f *Frame) EncodeJPEG(quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, f.RGBA(), &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodePNG encodes the frame as PNG.
func (f *Frame) EncodePNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, f.RGBA()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
