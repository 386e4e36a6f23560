package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/five82/dcpflow/internal/model"
)

type fakeWriter struct {
	mu       sync.Mutex
	written  []int
	faked    []int
	repeated []int
	audio    int
}

func (f *fakeWriter) WriteVideo(entry model.EncodeQueueEntry, encoded *model.EncodedFrame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, entry.Index)
	return nil
}

func (f *fakeWriter) FakeWrite(index int, eye model.Eye) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faked = append(f.faked, index)
	return nil
}

func (f *fakeWriter) Repeat(index int, eye model.Eye) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.repeated = append(f.repeated, index)
	return nil
}

func (f *fakeWriter) SubmitAudio(block model.PcmBlock) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audio++
	return nil
}

func (f *fakeWriter) Finish() error { return nil }

func solidRGB24(w, h int) model.PixelPlanes {
	data := make([]byte, w*h*3)
	return model.PixelPlanes{
		Format: model.RGB24, Width: w, Height: h,
		Planes: []model.Plane{{Stride: w * 3, Data: data}},
	}
}

func TestCoordinator_SubmitsAndDrainsFullFrames(t *testing.T) {
	w := &fakeWriter{}
	c := New(Config{LocalThreads: 2, FPS: 24, J2KBandwidth: 250_000_000}, w)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Begin(ctx, nil)

	for i := 0; i < 5; i++ {
		frame := &model.PreparedFrame{
			Planes: solidRGB24(16, 16), Eye: model.MONO, Resolution: model.Res2K, Index: i,
		}
		if err := c.SubmitVideo(frame, false); err != nil {
			t.Fatalf("SubmitVideo(%d): %v", i, err)
		}
	}

	if err := c.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.written) != 5 {
		t.Fatalf("expected 5 frames written, got %d", len(w.written))
	}
}

func TestCoordinator_FakeWriteTakesPriority(t *testing.T) {
	w := &fakeWriter{}
	lookup := func(index int, eye model.Eye) (*model.FrameInfo, bool) {
		if index == 2 {
			return &model.FrameInfo{Offset: 0, Size: 10, Hash: model.Fingerprint(solidRGB24(8, 8))}, true
		}
		return nil, false
	}
	c := New(Config{LocalThreads: 1, FPS: 24, J2KBandwidth: 250_000_000, Lookup: lookup}, w)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Begin(ctx, nil)

	frame := &model.PreparedFrame{Planes: solidRGB24(8, 8), Eye: model.MONO, Resolution: model.Res2K, Index: 2}
	if err := c.SubmitVideo(frame, false); err != nil {
		t.Fatalf("SubmitVideo: %v", err)
	}
	if err := c.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.faked) != 1 || w.faked[0] != 2 {
		t.Fatalf("expected fake-write of index 2, got faked=%v written=%v", w.faked, w.written)
	}
}

func TestCoordinator_RepeatAfterFullEncode(t *testing.T) {
	w := &fakeWriter{}
	c := New(Config{LocalThreads: 1, FPS: 24, J2KBandwidth: 250_000_000}, w)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Begin(ctx, nil)

	first := &model.PreparedFrame{Planes: solidRGB24(8, 8), Eye: model.MONO, Resolution: model.Res2K, Index: 0}
	if err := c.SubmitVideo(first, false); err != nil {
		t.Fatalf("SubmitVideo(0): %v", err)
	}
	second := &model.PreparedFrame{Planes: solidRGB24(8, 8), Eye: model.MONO, Resolution: model.Res2K, Index: 1}
	if err := c.SubmitVideo(second, true); err != nil {
		t.Fatalf("SubmitVideo(1): %v", err)
	}

	if err := c.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.written) != 1 || w.written[0] != 0 {
		t.Fatalf("expected index 0 full-written, got %v", w.written)
	}
	if len(w.repeated) != 1 || w.repeated[0] != 1 {
		t.Fatalf("expected index 1 repeated, got %v", w.repeated)
	}
}

func TestCoordinator_SubmitAfterCancelFails(t *testing.T) {
	w := &fakeWriter{}
	c := New(Config{LocalThreads: 1, FPS: 24, J2KBandwidth: 250_000_000}, w)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Begin(ctx, nil)

	for i := 0; i < 3; i++ {
		frame := &model.PreparedFrame{Planes: solidRGB24(8, 8), Eye: model.MONO, Resolution: model.Res2K, Index: i}
		_ = c.SubmitVideo(frame, false)
	}
	c.Cancel()
	time.Sleep(50 * time.Millisecond)

	if err := c.SubmitVideo(&model.PreparedFrame{Planes: solidRGB24(8, 8), Index: 99}, false); err == nil {
		t.Fatal("expected submit after cancel to fail")
	}
}
