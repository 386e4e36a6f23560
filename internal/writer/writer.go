// Package writer implements the Writer (§4.7): it orders completed picture
// frames by (index, eye), assembles them into an essence file, interleaves
// audio, and maintains the FrameInfo index the Frame Cache reads back.
// Grounded on the seek-table-alongside-data idiom in
// SaveTheRbtz-zstd-seekable-format-go/pkg/writer.go, adapted to the spec's
// strict-ordering-with-spill design instead of a purely sequential stream.
package writer

import (
	"fmt"
	"os"
	"sync"

	"github.com/five82/dcpflow/internal/framecache"
	"github.com/five82/dcpflow/internal/model"
	"github.com/five82/dcpflow/internal/util"
)

type posKey struct {
	index int
	eye   model.Eye
}

type pendingEntry struct {
	bytes     []byte // nil when spilled
	hash      [16]byte
	spillPath string
}

// Config describes one Writer instance's on-disk layout and limits.
type Config struct {
	PictureEssencePath string
	AudioEssencePath   string
	FrameInfoPath      string
	Stereo             bool
	BufferCap          int // 8 when unset; the pipeline passes 8 × local thread count
	SpillDir           string

	// WarnFunc, when set, receives a message whenever a spill proceeds with
	// SpillDir below util.MinTempSpaceMB free (§11.7). Optional.
	WarnFunc func(string)

	// PriorPictureEssencePath and PriorFrameInfoPath, when both set, enable
	// fake-writes by sourcing bytes from a previous run's output.
	PriorPictureEssencePath string
	PriorFrameInfoPath      string
}

// Writer is the §4.7 Writer. The zero value is not usable; construct with
// New.
type Writer struct {
	mu sync.Mutex

	pictureFile *os.File
	audioFile   *os.File
	cache       *framecache.Cache

	priorPictureFile *os.File
	priorCache       *framecache.Cache

	stereo    bool
	bufferCap int
	spillDir  string
	warn      func(string)

	pending map[posKey]*pendingEntry

	cursorIndex int
	cursorEye   model.Eye

	pictureOffset uint64
	audioOffset   uint64

	lastBytes []byte
	lastHash  [16]byte
	haveLast  bool

	firstErr error

	fullEncodes int
	fakeWrites  int
	repeats     int
}

// New opens the essence and FrameInfo files described by cfg.
func New(cfg Config) (*Writer, error) {
	pictureFile, err := os.Create(cfg.PictureEssencePath)
	if err != nil {
		return nil, fmt.Errorf("writer: create picture essence: %w", err)
	}
	audioFile, err := os.Create(cfg.AudioEssencePath)
	if err != nil {
		_ = pictureFile.Close()
		return nil, fmt.Errorf("writer: create audio essence: %w", err)
	}
	cache, err := framecache.Open(cfg.FrameInfoPath)
	if err != nil {
		_ = pictureFile.Close()
		_ = audioFile.Close()
		return nil, fmt.Errorf("writer: open frame cache: %w", err)
	}

	w := &Writer{
		pictureFile: pictureFile,
		audioFile:   audioFile,
		cache:       cache,
		stereo:      cfg.Stereo,
		bufferCap:   cfg.BufferCap,
		spillDir:    cfg.SpillDir,
		warn:        cfg.WarnFunc,
		pending:     make(map[posKey]*pendingEntry),
	}
	if w.bufferCap <= 0 {
		w.bufferCap = 8
	}
	if w.stereo {
		w.cursorEye = model.LEFT
	} else {
		w.cursorEye = model.MONO
	}

	if cfg.PriorPictureEssencePath != "" && cfg.PriorFrameInfoPath != "" {
		if pf, err := os.Open(cfg.PriorPictureEssencePath); err == nil {
			if pc, err := framecache.Open(cfg.PriorFrameInfoPath); err == nil {
				w.priorPictureFile = pf
				w.priorCache = pc
			} else {
				_ = pf.Close()
			}
		}
	}

	return w, nil
}

// PriorLookup exposes the prior run's Frame Cache for the coordinator's
// fake-write decision in SubmitVideo, per §4.8.
func (w *Writer) PriorLookup() func(index int, eye model.Eye) (*model.FrameInfo, bool) {
	if w.priorCache == nil {
		return nil
	}
	return w.priorCache.Lookup
}

// WriteVideo inserts a freshly-encoded frame into the ordered buffer and
// drains whatever is now contiguous with the cursor.
func (w *Writer) WriteVideo(entry model.EncodeQueueEntry, encoded *model.EncodedFrame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.firstErr != nil {
		return w.firstErr
	}
	key := posKey{index: entry.Index, eye: entry.Eye}
	w.pending[key] = &pendingEntry{bytes: encoded.Codestream, hash: encoded.Fingerprint}
	w.fullEncodes++
	w.maybeSpill()
	return w.drain()
}

// FakeWrite copies a frame's bytes from the prior run's essence file rather
// than re-encoding it, per §4.7.
func (w *Writer) FakeWrite(index int, eye model.Eye) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.firstErr != nil {
		return w.firstErr
	}
	if w.priorCache == nil || w.priorPictureFile == nil {
		return fmt.Errorf("writer: fake-write requested with no prior run configured: %w", model.ErrFrameCacheMismatch)
	}
	info, ok := w.priorCache.Lookup(index, eye)
	if !ok {
		return fmt.Errorf("writer: no prior record for index=%d eye=%v: %w", index, eye, model.ErrFrameCacheMismatch)
	}
	buf := make([]byte, info.Size)
	if _, err := w.priorPictureFile.ReadAt(buf, int64(info.Offset)); err != nil {
		return fmt.Errorf("writer: read prior essence: %w", model.ErrWriteIO)
	}
	key := posKey{index: index, eye: eye}
	w.pending[key] = &pendingEntry{bytes: buf, hash: info.Hash}
	w.fakeWrites++
	w.maybeSpill()
	return w.drain()
}

// Repeat re-emits the last fully-written frame's bytes at (index, eye), per
// §4.7.
func (w *Writer) Repeat(index int, eye model.Eye) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.firstErr != nil {
		return w.firstErr
	}
	if !w.haveLast {
		return fmt.Errorf("writer: repeat requested before any frame was written")
	}
	key := posKey{index: index, eye: eye}
	w.pending[key] = &pendingEntry{bytes: w.lastBytes, hash: w.lastHash}
	w.repeats++
	w.maybeSpill()
	return w.drain()
}

// Stats returns the running tally of how frames reached the essence file
// and the total bytes written to each essence, for end-of-job reporting.
func (w *Writer) Stats() (full, fake, repeats int, pictureBytes, audioBytes uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fullEncodes, w.fakeWrites, w.repeats, w.pictureOffset, w.audioOffset
}

// SubmitAudio appends one PCM block to the audio essence in submission
// order (§4.6, §5: "the coordinator must submit audio in presentation
// order").
func (w *Writer) SubmitAudio(block model.PcmBlock) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.firstErr != nil {
		return w.firstErr
	}
	_, n, err := writeKLVPacket(w.audioFile, audioEssenceKey, block.Samples, w.audioOffset)
	if err != nil {
		w.setFirstErr(fmt.Errorf("%w: %v", model.ErrWriteIO, err))
		return w.firstErr
	}
	w.audioOffset += uint64(n)
	return nil
}

// Finish discards any buffered entries that never became contiguous,
// closes the essence and FrameInfo files, and surfaces
// the first write error observed, per §4.7.
func (w *Writer) Finish() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	_ = w.pictureFile.Close()
	_ = w.audioFile.Close()
	_ = w.cache.Close()
	if w.priorPictureFile != nil {
		_ = w.priorPictureFile.Close()
	}
	if w.priorCache != nil {
		_ = w.priorCache.Close()
	}
	return w.firstErr
}

func (w *Writer) setFirstErr(err error) {
	if w.firstErr == nil {
		w.firstErr = err
	}
}

// drain appends every contiguous-with-cursor entry to the essence file in
// order, advancing the cursor (LEFT before RIGHT for 3D) after each one.
func (w *Writer) drain() error {
	for {
		key := posKey{index: w.cursorIndex, eye: w.cursorEye}
		entry, ok := w.pending[key]
		if !ok {
			return nil
		}
		bytes, err := w.materialize(entry)
		if err != nil {
			w.setFirstErr(err)
			return err
		}

		_, n, err := writeKLVPacket(w.pictureFile, pictureEssenceKey, bytes, w.pictureOffset)
		if err != nil {
			wrapped := fmt.Errorf("%w: %v", model.ErrWriteIO, err)
			w.setFirstErr(wrapped)
			return wrapped
		}
		valueOffset := w.pictureOffset + uint64(n) - uint64(len(bytes))
		w.pictureOffset += uint64(n)

		if err := w.cache.Append(key.index, key.eye, model.FrameInfo{
			Offset: valueOffset,
			Size:   uint64(len(bytes)),
			Hash:   entry.hash,
		}); err != nil {
			wrapped := fmt.Errorf("%w: %v", model.ErrWriteIO, err)
			w.setFirstErr(wrapped)
			return wrapped
		}

		w.lastBytes = bytes
		w.lastHash = entry.hash
		w.haveLast = true

		delete(w.pending, key)
		w.advanceCursor()
	}
}

func (w *Writer) advanceCursor() {
	if !w.stereo {
		w.cursorIndex++
		return
	}
	if w.cursorEye == model.LEFT {
		w.cursorEye = model.RIGHT
		return
	}
	w.cursorEye = model.LEFT
	w.cursorIndex++
}

// maybeSpill moves the entries furthest ahead of the cursor to temporary
// files once the in-memory buffer exceeds its cap, letting producers race
// ahead of a slow drain without exhausting RAM (§4.7).
func (w *Writer) maybeSpill() {
	if len(w.pending) <= w.bufferCap || w.spillDir == "" {
		return
	}
	var farthest posKey
	farthestDist := -1
	for key, entry := range w.pending {
		if entry.spillPath != "" {
			continue
		}
		dist := w.distanceFromCursor(key)
		if dist > farthestDist {
			farthestDist = dist
			farthest = key
		}
	}
	if farthestDist < 0 {
		return
	}
	entry := w.pending[farthest]
	util.CheckDiskSpace(w.spillDir, w.logf)
	tmp, err := util.CreateTempFile(w.spillDir, "dcpflow-spill", "bin")
	if err != nil {
		return // best-effort: leave it in memory rather than fail the job
	}
	if _, err := tmp.Write(entry.bytes); err != nil {
		_ = tmp.Cleanup()
		return
	}
	_ = tmp.Close()
	entry.spillPath = tmp.Path()
	entry.bytes = nil
}

// logf forwards a low-disk-space warning to the configured WarnFunc, if any.
func (w *Writer) logf(format string, args ...any) {
	if w.warn == nil {
		return
	}
	w.warn(fmt.Sprintf(format, args...))
}

func (w *Writer) distanceFromCursor(key posKey) int {
	if !w.stereo {
		return key.index - w.cursorIndex
	}
	d := (key.index - w.cursorIndex) * 2
	if key.eye == model.RIGHT {
		d++
	}
	if w.cursorEye == model.RIGHT {
		d--
	}
	return d
}

func (w *Writer) materialize(entry *pendingEntry) ([]byte, error) {
	if entry.spillPath == "" {
		return entry.bytes, nil
	}
	data, err := os.ReadFile(entry.spillPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read spill file: %v", model.ErrWriteIO, err)
	}
	_ = os.Remove(entry.spillPath)
	return data, nil
}
