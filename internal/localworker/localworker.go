// Package localworker implements the in-process JPEG2000 encode path
// described in spec §4.2: colour convert, then cinema-profile encode.
package localworker

import (
	"fmt"

	"github.com/five82/dcpflow/internal/j2k"
	"github.com/five82/dcpflow/internal/model"
)

// EncodeLocal runs §4.2 steps 1-3 against a single PreparedFrame.
// Failures are wrapped in model.ErrLocalEncodeFailed; the coordinator
// re-queues the frame on this error.
func EncodeLocal(frame *model.PreparedFrame, j2kBandwidth uint64, fps float64) (*model.EncodedFrame, error) {
	xyz, err := j2k.ConvertToXYZ12(frame.Planes, frame.Colour)
	if err != nil {
		return nil, fmt.Errorf("localworker: colour conversion: %w: %v", model.ErrLocalEncodeFailed, err)
	}

	codestream, err := j2k.Encode(xyz, j2k.EncodeConfig{
		FPS:          fps,
		Eye:          frame.Eye,
		Resolution:   frame.Resolution,
		J2KBandwidth: j2kBandwidth,
	})
	if err != nil {
		return nil, fmt.Errorf("localworker: j2k encode: %w: %v", model.ErrLocalEncodeFailed, err)
	}

	return &model.EncodedFrame{
		Index:       frame.Index,
		Eye:         frame.Eye,
		Codestream:  codestream,
		Fingerprint: model.Fingerprint(frame.Planes),
	}, nil
}
