// Package model holds the data types shared across the encoding pipeline:
// pixel planes, prepared and encoded frames, the on-disk frame index, and
// the small set of value types that describe a remote encoding server.
package model

import "fmt"

// PixelFormat identifies the plane layout of a PixelPlanes image.
type PixelFormat int

const (
	RGB24 PixelFormat = iota
	RGB48LE
	YUV420P
	YUV422P
	YUV444P
)

func (f PixelFormat) String() string {
	switch f {
	case RGB24:
		return "RGB24"
	case RGB48LE:
		return "RGB48LE"
	case YUV420P:
		return "YUV420P"
	case YUV422P:
		return "YUV422P"
	case YUV444P:
		return "YUV444P"
	default:
		return "unknown"
	}
}

// planeCount returns how many planes a format requires.
func (f PixelFormat) planeCount() int {
	switch f {
	case RGB24, RGB48LE:
		return 1
	case YUV420P, YUV422P, YUV444P:
		return 3
	default:
		return 0
	}
}

// Eye identifies which stereoscopic view a frame represents.
type Eye int

const (
	MONO Eye = iota
	LEFT
	RIGHT
)

func (e Eye) String() string {
	switch e {
	case MONO:
		return "MONO"
	case LEFT:
		return "LEFT"
	case RIGHT:
		return "RIGHT"
	default:
		return "unknown"
	}
}

// Resolution is the output frame size tag.
type Resolution int

const (
	Res2K Resolution = iota
	Res4K
)

func (r Resolution) String() string {
	if r == Res4K {
		return "4K"
	}
	return "2K"
}

// Plane is one image plane: byte buffer plus its row stride in bytes.
type Plane struct {
	Stride int
	Data   []byte
}

// PixelPlanes is an immutable multi-plane image.
type PixelPlanes struct {
	Format PixelFormat
	Width  int
	Height int
	Planes []Plane
}

// bytesPerPixel returns the bytes each pixel occupies in plane 0 for this
// format (all components for packed RGB, one luma sample for planar YUV).
func (f PixelFormat) bytesPerPixel() int {
	switch f {
	case RGB24:
		return 3
	case RGB48LE:
		return 6
	case YUV420P, YUV422P, YUV444P:
		return 1
	default:
		return 0
	}
}

// planeDims returns the (width, height) of plane i for this format given the
// full image dimensions.
func (f PixelFormat) planeDims(i, width, height int) (int, int) {
	switch f {
	case RGB24, RGB48LE:
		return width, height
	case YUV420P:
		if i == 0 {
			return width, height
		}
		return (width + 1) / 2, (height + 1) / 2
	case YUV422P:
		if i == 0 {
			return width, height
		}
		return (width + 1) / 2, height
	case YUV444P:
		return width, height
	default:
		return 0, 0
	}
}

// PlaneLayout describes one plane's dimensions and minimum row stride.
type PlaneLayout struct {
	Width  int
	Height int
	Stride int
}

// Layout returns the per-plane dimensions and minimum stride for an image of
// the given size in this format. Callers that must allocate plane buffers
// before they have a PixelPlanes value (the wire decoder, synthetic
// sources) use this instead of reaching into the unexported helpers above.
func (f PixelFormat) Layout(width, height int) ([]PlaneLayout, error) {
	n := f.planeCount()
	if n == 0 {
		return nil, fmt.Errorf("model: unknown pixel format %v", f)
	}
	bpp := f.bytesPerPixel()
	layouts := make([]PlaneLayout, n)
	for i := 0; i < n; i++ {
		w, h := f.planeDims(i, width, height)
		layouts[i] = PlaneLayout{Width: w, Height: h, Stride: w * bpp}
	}
	return layouts, nil
}

// Validate checks the PixelPlanes invariants from the data model: plane
// count matches the format, stride is at least wide enough for one row, and
// buffer length matches stride times plane height.
func (p PixelPlanes) Validate() error {
	want := p.Format.planeCount()
	if want == 0 {
		return fmt.Errorf("model: unknown pixel format %v", p.Format)
	}
	if len(p.Planes) != want {
		return fmt.Errorf("model: format %v requires %d planes, got %d", p.Format, want, len(p.Planes))
	}
	bpp := p.Format.bytesPerPixel()
	for i, pl := range p.Planes {
		pw, ph := p.Format.planeDims(i, p.Width, p.Height)
		minStride := pw * bpp
		if pl.Stride < minStride {
			return fmt.Errorf("model: plane %d stride %d below minimum %d", i, pl.Stride, minStride)
		}
		want := pl.Stride * ph
		if len(pl.Data) != want {
			return fmt.Errorf("model: plane %d buffer length %d, want %d (stride %d * height %d)", i, len(pl.Data), want, pl.Stride, ph)
		}
	}
	return nil
}

// ColourConversion describes how to transform RGB source data into the
// companded 12-bit XYZ values JPEG2000 cinema profiles require.
type ColourConversion struct {
	InputGamma       float64
	LinearizeAtLow   bool    // two-segment curve: linear below Threshold, power above
	LinearThreshold  float64 // in [0,1], only used when LinearizeAtLow is true
	RGBToXYZ         [3][3]float64
	OutputGammaPower float64 // inverse output gamma exponent applied after companding
}

// PreparedFrame is what the coordinator consumes: one picture frame ready
// for encoding, with its eye, optional colour conversion, and target
// resolution.
type PreparedFrame struct {
	Planes     PixelPlanes
	Eye        Eye
	Colour     *ColourConversion // nil: planes already hold XYZ values
	Resolution Resolution
	Index      int
}

// EncodedFrame is the JPEG2000 codestream produced by any worker.
type EncodedFrame struct {
	Index       int
	Eye         Eye
	Codestream  []byte
	Fingerprint [16]byte
}

// FrameInfo is the fixed-size on-disk record describing where one frame's
// codestream lives in the essence file.
type FrameInfo struct {
	Offset uint64
	Size   uint64
	Hash   [16]byte
}

// FrameInfoRecordSize is the marshalled size of a FrameInfo record.
const FrameInfoRecordSize = 8 + 8 + 32 // offset + size + 32 ASCII hex hash bytes

// ServerDescription identifies a discovered (or configured) remote encoding
// server.
type ServerDescription struct {
	Host    string
	Port    uint16
	Threads int
}

func (s ServerDescription) String() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// QueueTag identifies the kind of work an EncodeQueueEntry carries.
type QueueTag int

const (
	FULL QueueTag = iota
	FAKE
	REPEAT
)

// EncodeQueueEntry is one unit of work inside the coordinator's bounded
// queue.
type EncodeQueueEntry struct {
	Tag   QueueTag
	Index int
	Eye   Eye
	Frame *PreparedFrame // set when Tag == FULL
}

// PcmBlock is a block of already-resampled interleaved PCM audio samples,
// submitted to the Writer in presentation order.
type PcmBlock struct {
	Channels   int
	SampleRate int
	Samples    []byte // interleaved, little-endian signed 24-bit per sample
}

// JobStatus is the Job Manager's state machine tag (§3 JobState):
// NEW -> RUNNING -> {FINISHED_OK, FINISHED_ERROR, FINISHED_CANCELLED}.
type JobStatus int

const (
	JobNew JobStatus = iota
	JobRunning
	JobFinishedOK
	JobFinishedError
	JobFinishedCancelled
)

func (s JobStatus) String() string {
	switch s {
	case JobNew:
		return "NEW"
	case JobRunning:
		return "RUNNING"
	case JobFinishedOK:
		return "FINISHED_OK"
	case JobFinishedError:
		return "FINISHED_ERROR"
	case JobFinishedCancelled:
		return "FINISHED_CANCELLED"
	default:
		return "unknown"
	}
}
