package j2k

import (
	"image"
	"image/color"
)

// XYZImage adapts an XYZ12 buffer to image.Image so it can be handed to
// jpeg2000.Encode. Each 12-bit component is widened into the high bits of a
// 16-bit channel; Options.Precision on the encode call tells the codec the
// true sample depth is 12 bits.
type XYZImage struct {
	buf *XYZ12
}

// NewXYZImage wraps buf.
func NewXYZImage(buf *XYZ12) *XYZImage {
	return &XYZImage{buf: buf}
}

func (im *XYZImage) ColorModel() color.Model {
	return color.RGBA64Model
}

func (im *XYZImage) Bounds() image.Rectangle {
	return image.Rect(0, 0, im.buf.Width, im.buf.Height)
}

func (im *XYZImage) At(x, y int) color.Color {
	i := y*im.buf.Width + x
	return color.RGBA64{
		R: widen12(im.buf.X[i]),
		G: widen12(im.buf.Y[i]),
		B: widen12(im.buf.Z[i]),
		A: 0xffff,
	}
}

// widen12 expands a 12-bit sample into the full 16-bit range so the
// component preserves its relative magnitude under a generic color.Color
// reader while the true precision is conveyed separately via
// jpeg2000.Options.Precision.
func widen12(v uint16) uint16 {
	return v << 4
}
