// Package dcpflow provides a Go library for distributed JPEG2000 encoding
// of Digital Cinema Packages.
//
// This file re-exports the data-model types a caller needs to hand frames
// and audio to the pipeline, so callers never import internal/model
// directly.
package dcpflow

import "github.com/five82/dcpflow/internal/model"

// PixelFormat identifies the plane layout of a PixelPlanes image.
type PixelFormat = model.PixelFormat

// Supported pixel formats (§3 PixelPlanes).
const (
	RGB24   = model.RGB24
	RGB48LE = model.RGB48LE
	YUV420P = model.YUV420P
	YUV422P = model.YUV422P
	YUV444P = model.YUV444P
)

// Eye identifies which stereoscopic view a frame represents.
type Eye = model.Eye

// The three eye tags (§3 PreparedFrame).
const (
	MONO  = model.MONO
	LEFT  = model.LEFT
	RIGHT = model.RIGHT
)

// Resolution is the output frame size tag.
type Resolution = model.Resolution

// Supported output resolutions.
const (
	Res2K = model.Res2K
	Res4K = model.Res4K
)

// Plane is one image plane: byte buffer plus its row stride in bytes.
type Plane = model.Plane

// PixelPlanes is an immutable multi-plane image (§3).
type PixelPlanes = model.PixelPlanes

// ColourConversion describes how to transform RGB source data into the
// companded 12-bit XYZ values JPEG2000 cinema profiles require (§4.2).
// Leave nil on a PreparedFrame when the source already holds XYZ values.
type ColourConversion = model.ColourConversion

// PreparedFrame is one picture frame ready for encoding (§3).
type PreparedFrame = model.PreparedFrame

// PcmBlock is a block of already-resampled interleaved PCM audio samples
// (§3), submitted in presentation order.
type PcmBlock = model.PcmBlock

// ServerDescription identifies a discovered or configured remote encoding
// server (§3).
type ServerDescription = model.ServerDescription

// FrameInfo describes where one frame's codestream lives in an essence
// file (§3), as read back from a prior run's index for fake-writes.
type FrameInfo = model.FrameInfo

// JobStatus is the Job Manager's state machine tag (§3 JobState).
type JobStatus = model.JobStatus

// Job states.
const (
	JobNew               = model.JobNew
	JobRunning           = model.JobRunning
	JobFinishedOK        = model.JobFinishedOK
	JobFinishedError     = model.JobFinishedError
	JobFinishedCancelled = model.JobFinishedCancelled
)
