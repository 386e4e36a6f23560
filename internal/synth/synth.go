// Package synth provides a deterministic, manifest-driven synthetic frame
// and audio source standing in for the decode collaborator the spec places
// out of scope (§1, §4.2). It exists so the CLI and tests have something to
// feed the coordinator without depending on a real video decoder.
package synth

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/five82/dcpflow/internal/model"
)

// Manifest describes a synthetic source's shape, read from a small JSON
// file passed to the CLI's encode subcommand.
type Manifest struct {
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Frames   int     `json:"frames"`
	FPS      float64 `json:"fps"`
	EyeMode  string  `json:"eye_mode"` // "mono" or "stereo"
	Channels int     `json:"channels"`
}

// LoadManifest reads and validates a Manifest from path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("synth: read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("synth: parse manifest: %w", err)
	}
	if m.Width <= 0 || m.Height <= 0 {
		return nil, fmt.Errorf("synth: manifest width/height must be positive")
	}
	if m.Frames <= 0 {
		return nil, fmt.Errorf("synth: manifest frames must be positive")
	}
	if m.FPS <= 0 {
		m.FPS = 24
	}
	if m.Channels <= 0 {
		m.Channels = 2
	}
	if m.EyeMode != "mono" && m.EyeMode != "stereo" {
		m.EyeMode = "mono"
	}
	return &m, nil
}

// Stereo reports whether the manifest describes a 3D source.
func (m *Manifest) Stereo() bool {
	return m.EyeMode == "stereo"
}

// FrameSource yields deterministic solid-gradient PreparedFrames, one call
// per (index, eye) pair, in presentation order.
type FrameSource struct {
	manifest *Manifest
	resolution model.Resolution
}

// NewFrameSource builds a FrameSource targeting the given output
// resolution.
func NewFrameSource(m *Manifest, resolution model.Resolution) *FrameSource {
	return &FrameSource{manifest: m, resolution: resolution}
}

// Next returns the PreparedFrame for (index, eye), or nil once index has
// reached the manifest's frame count.
func (s *FrameSource) Next(index int, eye model.Eye) *model.PreparedFrame {
	if index >= s.manifest.Frames {
		return nil
	}
	return &model.PreparedFrame{
		Planes:     gradientFrame(s.manifest.Width, s.manifest.Height, index, eye),
		Eye:        eye,
		Resolution: s.resolution,
		Index:      index,
	}
}

// gradientFrame renders a deterministic RGB24 image: a horizontal gradient
// on the red channel, vertical on green, and a per-frame constant on blue,
// so consecutive frames and distinct eyes are never byte-identical.
func gradientFrame(width, height, index int, eye model.Eye) model.PixelPlanes {
	stride := width * 3
	data := make([]byte, stride*height)
	blue := byte((index*7 + int(eye)*31) % 256)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			off := y*stride + x*3
			data[off] = byte(x * 255 / maxInt(width-1, 1))
			data[off+1] = byte(y * 255 / maxInt(height-1, 1))
			data[off+2] = blue
		}
	}
	return model.PixelPlanes{
		Format: model.RGB24,
		Width:  width,
		Height: height,
		Planes: []model.Plane{{Stride: stride, Data: data}},
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// AudioSource yields fixed-size blocks of silence for manifest.Frames
// worth of presentation time, enough to exercise the Writer's audio path
// without a real decoder.
type AudioSource struct {
	manifest     *Manifest
	sampleRate   int
	blockSamples int
	emitted      int
}

// NewAudioSource builds a silent AudioSource at the given sample rate,
// sized to one video frame's worth of samples per block.
func NewAudioSource(m *Manifest, sampleRate int) *AudioSource {
	return &AudioSource{
		manifest:     m,
		sampleRate:   sampleRate,
		blockSamples: int(float64(sampleRate) / m.FPS),
	}
}

// Next returns the next silent PcmBlock, or nil once manifest.Frames worth
// of audio has been emitted.
func (a *AudioSource) Next() *model.PcmBlock {
	if a.emitted >= a.manifest.Frames {
		return nil
	}
	a.emitted++
	return &model.PcmBlock{
		Channels:   a.manifest.Channels,
		SampleRate: a.sampleRate,
		Samples:    make([]byte, a.blockSamples*a.manifest.Channels*3),
	}
}
