// Package j2k wraps github.com/mrjoshuak/go-jpeg2000 into the cinema-profile
// JPEG2000 codestream encoder the local and server-side workers need: RGB to
// companded 12-bit XYZ colour conversion (§4.2 step 1) followed by a
// cinema-profile encode (§4.2 steps 2-3).
package j2k

import (
	"math"

	"github.com/five82/dcpflow/internal/model"
)

// dciCoefficient is the DCI companding multiplier, 48 cd/m^2 reference white
// over the 52.37 value baked into the XYZ colourimetry, exactly the
// DCI_COEFFICENT constant used throughout the reference encoder.
const dciCoefficient = 48.0 / 52.37

// xyz12Max is the maximum value of a companded 12-bit XYZ component.
const xyz12Max = 4095.0

// XYZ12 is one decoded-and-converted frame: three planes of 12-bit XYZ
// samples (stored widened to uint16), row-major, no padding.
type XYZ12 struct {
	Width, Height int
	X, Y, Z       []uint16
}

// NewXYZ12 allocates a blank XYZ12 buffer.
func NewXYZ12(width, height int) *XYZ12 {
	n := width * height
	return &XYZ12{
		Width: width, Height: height,
		X: make([]uint16, n), Y: make([]uint16, n), Z: make([]uint16, n),
	}
}

// ConvertToXYZ12 applies §4.2 step 1 to an RGB PixelPlanes image: input
// gamma linearisation, RGB-to-XYZ matrix, DCI companding, and inverse
// output gamma, in that order, producing companded 12-bit XYZ samples. If
// conv is nil, the planes are assumed to already hold XYZ values in the
// RGB24 or RGB48LE layout and are passed through without colour processing:
// 8-bit samples are widened to 12 bits by a left shift of 4, and 16-bit
// samples are copied, clamped to the 12-bit maximum.
func ConvertToXYZ12(planes model.PixelPlanes, conv *model.ColourConversion) (*XYZ12, error) {
	if err := planes.Validate(); err != nil {
		return nil, err
	}

	out := NewXYZ12(planes.Width, planes.Height)

	if conv == nil {
		return passThroughXYZ(planes, out)
	}

	r, g, b, maxVal, err := rgbSamples(planes)
	if err != nil {
		return nil, err
	}

	invOutGamma := 1.0 / conv.OutputGammaPower
	n := planes.Width * planes.Height
	for i := 0; i < n; i++ {
		rl := linearize(float64(r(i))/maxVal, conv)
		gl := linearize(float64(g(i))/maxVal, conv)
		bl := linearize(float64(b(i))/maxVal, conv)

		m := conv.RGBToXYZ
		x := m[0][0]*rl + m[0][1]*gl + m[0][2]*bl
		y := m[1][0]*rl + m[1][1]*gl + m[1][2]*bl
		z := m[2][0]*rl + m[2][1]*gl + m[2][2]*bl

		out.X[i] = compandAndGamma(x, invOutGamma)
		out.Y[i] = compandAndGamma(y, invOutGamma)
		out.Z[i] = compandAndGamma(z, invOutGamma)
	}

	return out, nil
}

// linearize applies the (optionally two-segment) input gamma curve to a
// normalized [0,1] sample.
func linearize(v float64, conv *model.ColourConversion) float64 {
	if v < 0 {
		v = 0
	}
	if conv.LinearizeAtLow && v <= conv.LinearThreshold && conv.LinearThreshold > 0 {
		// Linear segment continuous with the power segment at the
		// threshold: slope chosen so f(threshold) matches v^gamma.
		slope := math.Pow(conv.LinearThreshold, conv.InputGamma-1)
		return v * slope
	}
	return math.Pow(v, conv.InputGamma)
}

// compandAndGamma applies DCI companding then the inverse output gamma to a
// linear XYZ sample, quantizing the result to 12 bits.
func compandAndGamma(v, invOutGamma float64) uint16 {
	v = v * dciCoefficient
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	v = math.Pow(v, invOutGamma)
	q := uint16(math.Round(v * xyz12Max))
	if q > xyz12Max {
		q = xyz12Max
	}
	return q
}

// rgbSamples returns per-plane sample accessors (index -> raw component
// value) and the normalizing max value for the plane's bit depth.
func rgbSamples(planes model.PixelPlanes) (r, g, b func(int) uint16, maxVal float64, err error) {
	switch planes.Format {
	case model.RGB24:
		data := planes.Planes[0].Data
		stride := planes.Planes[0].Stride
		w := planes.Width
		at := func(i, c int) uint16 {
			row := i / w
			col := i % w
			return uint16(data[row*stride+col*3+c])
		}
		return func(i int) uint16 { return at(i, 0) },
			func(i int) uint16 { return at(i, 1) },
			func(i int) uint16 { return at(i, 2) },
			255, nil
	case model.RGB48LE:
		data := planes.Planes[0].Data
		stride := planes.Planes[0].Stride
		w := planes.Width
		at := func(i, c int) uint16 {
			row := i / w
			col := i % w
			off := row*stride + col*6 + c*2
			return uint16(data[off]) | uint16(data[off+1])<<8
		}
		return func(i int) uint16 { return at(i, 0) },
			func(i int) uint16 { return at(i, 1) },
			func(i int) uint16 { return at(i, 2) },
			65535, nil
	default:
		return nil, nil, nil, 0, errUnsupportedFormat(planes.Format)
	}
}

func passThroughXYZ(planes model.PixelPlanes, out *XYZ12) (*XYZ12, error) {
	if planes.Format == model.RGB24 {
		x, y, z, _, err := rgbSamples(planes)
		if err != nil {
			return nil, err
		}
		for i := 0; i < planes.Width*planes.Height; i++ {
			out.X[i] = x(i) << 4
			out.Y[i] = y(i) << 4
			out.Z[i] = z(i) << 4
		}
		return out, nil
	}
	if planes.Format != model.RGB48LE {
		return nil, errUnsupportedFormat(planes.Format)
	}
	data := planes.Planes[0].Data
	stride := planes.Planes[0].Stride
	w := planes.Width
	n := planes.Width * planes.Height
	for i := 0; i < n; i++ {
		row := i / w
		col := i % w
		off := row*stride + col*6
		x := uint16(data[off]) | uint16(data[off+1])<<8
		y := uint16(data[off+2]) | uint16(data[off+3])<<8
		z := uint16(data[off+4]) | uint16(data[off+5])<<8
		out.X[i] = min16(x, xyz12Max)
		out.Y[i] = min16(y, xyz12Max)
		out.Z[i] = min16(z, xyz12Max)
	}
	return out, nil
}

func min16(a, b uint16) uint16 {
	if a < b {
		return a
	}
	return b
}

type errUnsupportedFormat model.PixelFormat

func (e errUnsupportedFormat) Error() string {
	return "j2k: colour conversion unsupported for pixel format " + model.PixelFormat(e).String()
}
