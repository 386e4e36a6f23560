package j2k

import (
	"testing"

	"github.com/five82/dcpflow/internal/model"
)

func srgbConversion() *model.ColourConversion {
	return &model.ColourConversion{
		InputGamma:      2.4,
		LinearizeAtLow:  true,
		LinearThreshold: 0.04045 / 12.92,
		RGBToXYZ: [3][3]float64{
			{0.4124564, 0.3575761, 0.1804375},
			{0.2126729, 0.7151522, 0.0721750},
			{0.0193339, 0.1191920, 0.9503041},
		},
		OutputGammaPower: 2.6,
	}
}

func solidRGB24(w, h int, r, g, b byte) model.PixelPlanes {
	data := make([]byte, w*h*3)
	for i := 0; i < w*h; i++ {
		data[i*3] = r
		data[i*3+1] = g
		data[i*3+2] = b
	}
	return model.PixelPlanes{
		Format: model.RGB24,
		Width:  w,
		Height: h,
		Planes: []model.Plane{{Stride: w * 3, Data: data}},
	}
}

func TestConvertToXYZ12_Black(t *testing.T) {
	planes := solidRGB24(4, 4, 0, 0, 0)
	out, err := ConvertToXYZ12(planes, srgbConversion())
	if err != nil {
		t.Fatalf("ConvertToXYZ12: %v", err)
	}
	for i, v := range out.X {
		if v != 0 {
			t.Fatalf("pixel %d: expected black to map to X=0, got %d", i, v)
		}
	}
}

func TestConvertToXYZ12_WhiteInRange(t *testing.T) {
	planes := solidRGB24(2, 2, 255, 255, 255)
	out, err := ConvertToXYZ12(planes, srgbConversion())
	if err != nil {
		t.Fatalf("ConvertToXYZ12: %v", err)
	}
	for i := range out.Y {
		if out.Y[i] == 0 || out.Y[i] > xyz12Max {
			t.Fatalf("pixel %d: white luminance out of range: %d", i, out.Y[i])
		}
	}
}

func TestConvertToXYZ12_Uniform(t *testing.T) {
	planes := solidRGB24(8, 8, 120, 80, 200)
	out, err := ConvertToXYZ12(planes, srgbConversion())
	if err != nil {
		t.Fatalf("ConvertToXYZ12: %v", err)
	}
	first := [3]uint16{out.X[0], out.Y[0], out.Z[0]}
	for i := range out.X {
		if out.X[i] != first[0] || out.Y[i] != first[1] || out.Z[i] != first[2] {
			t.Fatalf("uniform input produced non-uniform output at %d", i)
		}
	}
}

func TestConvertToXYZ12_PassThroughRGB48LE(t *testing.T) {
	w, h := 2, 2
	data := make([]byte, w*h*6)
	for i := 0; i < w*h; i++ {
		off := i * 6
		// X=100, Y=200, Z=300 (well within 12-bit range), little-endian.
		data[off], data[off+1] = 100, 0
		data[off+2], data[off+3] = 200, 0
		data[off+4], data[off+5] = 44, 1 // 300
	}
	planes := model.PixelPlanes{
		Format: model.RGB48LE,
		Width:  w, Height: h,
		Planes: []model.Plane{{Stride: w * 6, Data: data}},
	}
	out, err := ConvertToXYZ12(planes, nil)
	if err != nil {
		t.Fatalf("ConvertToXYZ12: %v", err)
	}
	if out.X[0] != 100 || out.Y[0] != 200 || out.Z[0] != 300 {
		t.Fatalf("pass-through mismatch: got X=%d Y=%d Z=%d", out.X[0], out.Y[0], out.Z[0])
	}
}
