package localworker

import (
	"testing"

	"github.com/five82/dcpflow/internal/model"
)

func gradientRGB24(w, h int) model.PixelPlanes {
	stride := w * 3
	data := make([]byte, stride*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := y*stride + x*3
			data[off] = byte(x * 255 / max(w-1, 1))
			data[off+1] = byte(y * 255 / max(h-1, 1))
			data[off+2] = 128
		}
	}
	return model.PixelPlanes{
		Format: model.RGB24, Width: w, Height: h,
		Planes: []model.Plane{{Stride: stride, Data: data}},
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func TestEncodeLocal_ProducesNonEmptyCodestream(t *testing.T) {
	frame := &model.PreparedFrame{
		Planes:     gradientRGB24(64, 64),
		Eye:        model.MONO,
		Resolution: model.Res2K,
		Index:      0,
		Colour: &model.ColourConversion{
			InputGamma:      2.4,
			LinearizeAtLow:  true,
			LinearThreshold: 0.04045 / 12.92,
			RGBToXYZ: [3][3]float64{
				{0.4124564, 0.3575761, 0.1804375},
				{0.2126729, 0.7151522, 0.0721750},
				{0.0193339, 0.1191920, 0.9503041},
			},
			OutputGammaPower: 2.6,
		},
	}

	encoded, err := EncodeLocal(frame, 250_000_000, 24)
	if err != nil {
		t.Fatalf("EncodeLocal: %v", err)
	}
	if len(encoded.Codestream) == 0 {
		t.Fatal("expected non-empty codestream")
	}
	if encoded.Index != 0 || encoded.Eye != model.MONO {
		t.Fatalf("unexpected frame identity: index=%d eye=%v", encoded.Index, encoded.Eye)
	}
}

func TestEncodeLocal_DeterministicFingerprint(t *testing.T) {
	frame := &model.PreparedFrame{
		Planes:     gradientRGB24(32, 32),
		Eye:        model.MONO,
		Resolution: model.Res2K,
		Index:      5,
	}
	a, err := EncodeLocal(frame, 250_000_000, 24)
	if err != nil {
		t.Fatalf("EncodeLocal: %v", err)
	}
	b, err := EncodeLocal(frame, 250_000_000, 24)
	if err != nil {
		t.Fatalf("EncodeLocal: %v", err)
	}
	if a.Fingerprint != b.Fingerprint {
		t.Fatal("fingerprint should be deterministic for identical input planes")
	}
}
