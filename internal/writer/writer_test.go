package writer

import (
	"path/filepath"
	"testing"

	"github.com/five82/dcpflow/internal/model"
)

func newTestWriter(t *testing.T, stereo bool) *Writer {
	t.Helper()
	dir := t.TempDir()
	w, err := New(Config{
		PictureEssencePath: filepath.Join(dir, "picture.mxf"),
		AudioEssencePath:   filepath.Join(dir, "audio.mxf"),
		FrameInfoPath:      filepath.Join(dir, "frameinfo.dat"),
		Stereo:             stereo,
		BufferCap:          8,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = w.Finish() })
	return w
}

func encodedFrame(index int, eye model.Eye, payload byte) *model.EncodedFrame {
	return &model.EncodedFrame{
		Index:      index,
		Eye:        eye,
		Codestream: []byte{payload, payload, payload},
	}
}

func TestWriter_OutOfOrderVideoDrainsInOrder(t *testing.T) {
	w := newTestWriter(t, false)

	// Submit 2 before 0 and 1; nothing should drain until the gap fills.
	if err := w.WriteVideo(model.EncodeQueueEntry{Tag: model.FULL, Index: 2}, encodedFrame(2, model.MONO, 2)); err != nil {
		t.Fatalf("WriteVideo(2): %v", err)
	}
	if len(w.pending) != 1 {
		t.Fatalf("expected frame 2 buffered pending cursor fill, got %d pending", len(w.pending))
	}

	if err := w.WriteVideo(model.EncodeQueueEntry{Tag: model.FULL, Index: 0}, encodedFrame(0, model.MONO, 0)); err != nil {
		t.Fatalf("WriteVideo(0): %v", err)
	}
	if err := w.WriteVideo(model.EncodeQueueEntry{Tag: model.FULL, Index: 1}, encodedFrame(1, model.MONO, 1)); err != nil {
		t.Fatalf("WriteVideo(1): %v", err)
	}

	if len(w.pending) != 0 {
		t.Fatalf("expected all three frames drained, %d still pending", len(w.pending))
	}
	if w.cursorIndex != 3 {
		t.Fatalf("expected cursor at 3, got %d", w.cursorIndex)
	}

	for i := 0; i < 3; i++ {
		info, ok := w.cache.Lookup(i, model.MONO)
		if !ok {
			t.Fatalf("expected FrameInfo for index %d", i)
		}
		if info.Size != 3 {
			t.Fatalf("unexpected size for index %d: %d", i, info.Size)
		}
	}
}

func TestWriter_StereoOrdersLeftBeforeRight(t *testing.T) {
	w := newTestWriter(t, true)

	if err := w.WriteVideo(model.EncodeQueueEntry{Tag: model.FULL, Index: 0, Eye: model.RIGHT}, encodedFrame(0, model.RIGHT, 9)); err != nil {
		t.Fatalf("WriteVideo(RIGHT): %v", err)
	}
	if len(w.pending) != 1 {
		t.Fatal("expected RIGHT to buffer until LEFT arrives")
	}
	if err := w.WriteVideo(model.EncodeQueueEntry{Tag: model.FULL, Index: 0, Eye: model.LEFT}, encodedFrame(0, model.LEFT, 5)); err != nil {
		t.Fatalf("WriteVideo(LEFT): %v", err)
	}
	if len(w.pending) != 0 {
		t.Fatal("expected both eyes drained once LEFT arrived")
	}

	left, _ := w.cache.Lookup(0, model.LEFT)
	right, _ := w.cache.Lookup(0, model.RIGHT)
	if left.Offset >= right.Offset {
		t.Fatalf("expected LEFT offset before RIGHT offset: left=%d right=%d", left.Offset, right.Offset)
	}
}

func TestWriter_RepeatReusesLastBytes(t *testing.T) {
	w := newTestWriter(t, false)

	if err := w.WriteVideo(model.EncodeQueueEntry{Tag: model.FULL, Index: 0}, encodedFrame(0, model.MONO, 7)); err != nil {
		t.Fatalf("WriteVideo: %v", err)
	}
	if err := w.Repeat(1, model.MONO); err != nil {
		t.Fatalf("Repeat: %v", err)
	}

	first, _ := w.cache.Lookup(0, model.MONO)
	second, _ := w.cache.Lookup(1, model.MONO)
	if first.Size != second.Size || first.Hash != second.Hash {
		t.Fatalf("expected repeat to duplicate size/hash: first=%+v second=%+v", first, second)
	}
}

func TestWriter_RepeatBeforeAnyWriteFails(t *testing.T) {
	w := newTestWriter(t, false)
	if err := w.Repeat(0, model.MONO); err == nil {
		t.Fatal("expected error repeating before any frame written")
	}
}
