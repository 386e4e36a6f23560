package j2k

import (
	"bytes"
	"fmt"
	"image"

	jpeg2000 "github.com/mrjoshuak/go-jpeg2000"

	"github.com/five82/dcpflow/internal/model"
)

// bytesPerComponentSample is the container width (in bytes) used for the
// raw-size estimate that drives the compression-ratio target; the true
// sample precision is 12 bits but DCI XYZ data is carried in 16-bit words.
const bytesPerComponentSample = 2

const numComponents = 3

// codeBlockLog2 is 32x32 code blocks expressed as log2(32) = 5, per §4.2.
const codeBlockLog2 = 5

// EncodeConfig carries the per-frame parameters the cinema-profile encoder
// needs to compute its target layer rate (§4.2 step 2).
type EncodeConfig struct {
	FPS          float64
	Eye          model.Eye
	Resolution   model.Resolution
	J2KBandwidth uint64 // bits per second, from config.Config.J2KBandwidth
}

// Encode runs the §4.2 steps 2-3 cinema-profile JPEG2000 encode over an
// already colour-converted XYZ12 buffer.
func Encode(buf *XYZ12, cfg EncodeConfig) ([]byte, error) {
	if cfg.FPS <= 0 {
		return nil, fmt.Errorf("j2k: encode: fps must be positive, got %v", cfg.FPS)
	}

	maxCodestreamBytes := float64(cfg.J2KBandwidth) / 8 / cfg.FPS
	if cfg.Eye == model.LEFT || cfg.Eye == model.RIGHT {
		maxCodestreamBytes /= 2
	}
	maxComponentBytes := maxCodestreamBytes / 1.25

	rawBytes := float64(buf.Width*buf.Height*numComponents) * bytesPerComponentSample
	ratio := rawBytes / maxComponentBytes
	if ratio < 1 {
		ratio = 1
	}

	opts := &jpeg2000.Options{
		Format:           jpeg2000.FormatJ2K,
		Profile:          cinemaProfile(cfg.Resolution),
		Lossless:         false,
		CompressionRatio: ratio,
		NumResolutions:   numResolutions(cfg.Resolution),
		CodeBlockSize:    image.Point{X: codeBlockLog2, Y: codeBlockLog2},
		ProgressionOrder: jpeg2000.CPRL,
		NumLayers:        1,
		ColorSpace:       jpeg2000.ColorSpaceUnspecified,
		Precision:        12,
	}

	var buffer bytes.Buffer
	if err := jpeg2000.Encode(&buffer, NewXYZImage(buf), opts); err != nil {
		return nil, fmt.Errorf("j2k: encode: %w", err)
	}
	return buffer.Bytes(), nil
}

func cinemaProfile(res model.Resolution) jpeg2000.Profile {
	if res == model.Res4K {
		return jpeg2000.ProfileCinema4K
	}
	return jpeg2000.ProfileCinema2K
}

// numResolutions sizes the decomposition so that, at 4K, dropping the
// finest resolution level yields a structurally valid 2K decode — an
// approximation of the reference encoder's explicit POC segment restricting
// 2K-only players to the coarser resolution levels (the go-jpeg2000 Options
// type exposes no packet-level POC control).
func numResolutions(res model.Resolution) int {
	if res == model.Res4K {
		return 7
	}
	return 6
}
