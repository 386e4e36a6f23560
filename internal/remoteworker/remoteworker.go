// Package remoteworker implements the wire-protocol client side of §4.3: it
// sends one PreparedFrame to a named server and reads back its J2K
// codestream, sharing the wire contract with internal/serverd.
package remoteworker

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/five82/dcpflow/internal/model"
	"github.com/five82/dcpflow/internal/socket"
)

// ConnectTimeout is the fixed connect deadline from §4.3 step 1.
const ConnectTimeout = 20 * time.Second

// RollingDeadline is the per-operation deadline applied to every socket
// read/write for the duration of the exchange (§5 "every socket operation
// carries a 20-second rolling deadline").
const RollingDeadline = 20 * time.Second

// wireColour mirrors model.ColourConversion for JSON transport; field names
// are shortened to keep the metadata message compact.
type wireColour struct {
	InputGamma      float64    `json:"ig"`
	LinearizeAtLow  bool       `json:"lin"`
	LinearThreshold float64    `json:"lt"`
	RGBToXYZ        [3][3]float64 `json:"m"`
	OutGamma        float64    `json:"og"`
}

func toWireColour(c *model.ColourConversion) *wireColour {
	if c == nil {
		return nil
	}
	return &wireColour{
		InputGamma: c.InputGamma, LinearizeAtLow: c.LinearizeAtLow,
		LinearThreshold: c.LinearThreshold, RGBToXYZ: c.RGBToXYZ, OutGamma: c.OutputGammaPower,
	}
}

func (w *wireColour) toModel() *model.ColourConversion {
	if w == nil {
		return nil
	}
	return &model.ColourConversion{
		InputGamma: w.InputGamma, LinearizeAtLow: w.LinearizeAtLow,
		LinearThreshold: w.LinearThreshold, RGBToXYZ: w.RGBToXYZ, OutputGammaPower: w.OutGamma,
	}
}

// Metadata is the parsed form of the "encode ..." text message (§6).
type Metadata struct {
	ProtocolVersion uint32
	Width, Height   int
	Format          model.PixelFormat
	OutWidth, OutHeight int
	Eye             model.Eye
	Index           int
	FPS             float64
	Colour          *model.ColourConversion
	J2KBandwidth    uint64
	Resolution      model.Resolution
}

func formatMetadata(frame *model.PreparedFrame, protocolVersion uint32, j2kBandwidth uint64, fps float64) (string, error) {
	colourJSON := "null"
	if wc := toWireColour(frame.Colour); wc != nil {
		b, err := json.Marshal(wc)
		if err != nil {
			return "", fmt.Errorf("remoteworker: marshal colour conversion: %w", err)
		}
		colourJSON = string(b)
	}

	return fmt.Sprintf("encode %d %d %d %d %d %d %d %d %g %s %d %d",
		protocolVersion,
		frame.Planes.Width, frame.Planes.Height, int(frame.Planes.Format),
		frame.Planes.Width, frame.Planes.Height, // out-width/out-height mirror input; scaling is a collaborator concern
		int(frame.Eye), frame.Index, fps, colourJSON,
		j2kBandwidth, int(frame.Resolution)), nil
}

// ParseMetadata parses the space-separated "encode ..." message the server
// receives. Used by internal/serverd.
func ParseMetadata(msg string) (*Metadata, error) {
	fields := strings.SplitN(msg, " ", 13)
	if len(fields) != 13 || fields[0] != "encode" {
		return nil, fmt.Errorf("remoteworker: malformed metadata message: %w", model.ErrProtocol)
	}

	var m Metadata
	var pixelFmt, eye, resolution int
	_, err := fmt.Sscanf(fields[1], "%d", &m.ProtocolVersion)
	if err != nil {
		return nil, fmt.Errorf("remoteworker: parse protocol version: %w: %v", model.ErrProtocol, err)
	}
	scan := func(s string, dst *int) error {
		_, err := fmt.Sscanf(s, "%d", dst)
		return err
	}
	if err := scan(fields[2], &m.Width); err != nil {
		return nil, fmt.Errorf("remoteworker: parse width: %w", model.ErrProtocol)
	}
	if err := scan(fields[3], &m.Height); err != nil {
		return nil, fmt.Errorf("remoteworker: parse height: %w", model.ErrProtocol)
	}
	if err := scan(fields[4], &pixelFmt); err != nil {
		return nil, fmt.Errorf("remoteworker: parse pixel format: %w", model.ErrProtocol)
	}
	m.Format = model.PixelFormat(pixelFmt)
	if err := scan(fields[5], &m.OutWidth); err != nil {
		return nil, fmt.Errorf("remoteworker: parse out width: %w", model.ErrProtocol)
	}
	if err := scan(fields[6], &m.OutHeight); err != nil {
		return nil, fmt.Errorf("remoteworker: parse out height: %w", model.ErrProtocol)
	}
	if err := scan(fields[7], &eye); err != nil {
		return nil, fmt.Errorf("remoteworker: parse eye: %w", model.ErrProtocol)
	}
	m.Eye = model.Eye(eye)
	if err := scan(fields[8], &m.Index); err != nil {
		return nil, fmt.Errorf("remoteworker: parse index: %w", model.ErrProtocol)
	}
	if _, err := fmt.Sscanf(fields[9], "%g", &m.FPS); err != nil {
		return nil, fmt.Errorf("remoteworker: parse fps: %w", model.ErrProtocol)
	}
	var wc wireColour
	if fields[10] != "null" {
		if err := json.Unmarshal([]byte(fields[10]), &wc); err != nil {
			return nil, fmt.Errorf("remoteworker: parse colour conversion: %w: %v", model.ErrProtocol, err)
		}
		m.Colour = wc.toModel()
	}
	var bw int
	if err := scan(fields[11], &bw); err != nil {
		return nil, fmt.Errorf("remoteworker: parse bandwidth: %w", model.ErrProtocol)
	}
	if err := scan(fields[12], &resolution); err != nil {
		return nil, fmt.Errorf("remoteworker: parse resolution: %w", model.ErrProtocol)
	}
	m.J2KBandwidth = uint64(bw)
	m.Resolution = model.Resolution(resolution)

	return &m, nil
}

// EncodeRemote performs §4.3's wire exchange against one server for one
// frame.
func EncodeRemote(frame *model.PreparedFrame, server model.ServerDescription, protocolVersion uint32, j2kBandwidth uint64, fps float64) (*model.EncodedFrame, error) {
	sock, err := socket.Connect(server.String(), ConnectTimeout)
	if err != nil {
		return nil, err
	}
	defer func() { _ = sock.Close() }()

	return encodeOverSocket(sock, frame, protocolVersion, j2kBandwidth, fps)
}

func encodeOverSocket(sock *socket.Socket, frame *model.PreparedFrame, protocolVersion uint32, j2kBandwidth uint64, fps float64) (*model.EncodedFrame, error) {
	meta, err := formatMetadata(frame, protocolVersion, j2kBandwidth, fps)
	if err != nil {
		return nil, err
	}
	if err := sock.WriteText(meta); err != nil {
		return nil, err
	}

	for _, plane := range frame.Planes.Planes {
		if err := sock.Write(plane.Data); err != nil {
			return nil, err
		}
	}

	reply, err := sock.ReadFrame()
	if err != nil {
		return nil, err
	}
	if len(reply) >= 6 && string(reply[:6]) == "ERROR " {
		detail := string(reply[6:])
		if strings.Contains(detail, "protocol version") {
			return nil, fmt.Errorf("remoteworker: server reported %q: %w", detail, model.ErrProtocol)
		}
		return nil, fmt.Errorf("remoteworker: server reported %q: %w", detail, model.ErrTransport)
	}

	return &model.EncodedFrame{
		Index:       frame.Index,
		Eye:         frame.Eye,
		Codestream:  reply,
		Fingerprint: model.Fingerprint(frame.Planes),
	}, nil
}

// Backoff tracks the additive backoff state for one remote server,
// owned exclusively by the thread(s) bound to it (§5).
type Backoff struct {
	current time.Duration
}

const (
	backoffStart = 10 * time.Second
	backoffStep  = 10 * time.Second
	backoffMax   = 60 * time.Second
)

// NewBackoff returns a Backoff starting at its floor.
func NewBackoff() *Backoff {
	return &Backoff{current: backoffStart}
}

// Next returns the current backoff duration and advances it additively
// towards the ceiling, per §4.3.
func (b *Backoff) Next() time.Duration {
	d := b.current
	b.current += backoffStep
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}

// Reset returns the backoff to its floor after a successful encode.
func (b *Backoff) Reset() {
	b.current = backoffStart
}
