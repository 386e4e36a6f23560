package dcpflow

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/five82/dcpflow/internal/synth"
)

type gradientVideoSource struct {
	fs *synth.FrameSource
}

func (v *gradientVideoSource) Next(index int, eye Eye) (*PreparedFrame, bool) {
	return v.fs.Next(index, eye), false
}

type silentAudioSource struct {
	as *synth.AudioSource
}

func (a *silentAudioSource) Next() *PcmBlock {
	return a.as.Next()
}

func TestPipeline_EncodeDCP_MonoEndToEnd(t *testing.T) {
	dir := t.TempDir()
	mkOutWork(t, dir)
	manifestPath := writeManifest(t, dir, `{"width":16,"height":16,"frames":6,"fps":24,"eye_mode":"mono","channels":2}`)
	manifest, err := synth.LoadManifest(manifestPath)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}

	pipeline, err := New(filepath.Join(dir, "out"), filepath.Join(dir, "work"), filepath.Join(dir, "logs"),
		WithAnyServers(false),
		WithLocalThreads(2),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	input := JobInput{
		Video:      &gradientVideoSource{fs: synth.NewFrameSource(manifest, Res2K)},
		Audio:      &silentAudioSource{as: synth.NewAudioSource(manifest, 48000)},
		Stereo:     manifest.Stereo(),
		Resolution: Res2K,
		FPS:        manifest.FPS,
		FrameCount: manifest.Frames,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := pipeline.EncodeDCP(ctx, input, nil)
	if err != nil {
		t.Fatalf("EncodeDCP: %v", err)
	}

	if result.FullEncodes != manifest.Frames {
		t.Fatalf("expected %d full encodes, got %d (fake=%d repeat=%d)",
			manifest.Frames, result.FullEncodes, result.FakeWrites, result.Repeats)
	}
	if result.PictureBytes == 0 {
		t.Fatal("expected non-zero picture essence bytes")
	}
	if _, err := os.Stat(result.PictureAsset); err != nil {
		t.Fatalf("picture essence missing: %v", err)
	}
	if _, err := os.Stat(result.FrameInfoAsset); err != nil {
		t.Fatalf("frame info missing: %v", err)
	}
}

func TestPipeline_EncodeDCP_StereoEncodesBothEyes(t *testing.T) {
	dir := t.TempDir()
	mkOutWork(t, dir)
	manifestPath := writeManifest(t, dir, `{"width":8,"height":8,"frames":3,"fps":24,"eye_mode":"stereo","channels":2}`)
	manifest, err := synth.LoadManifest(manifestPath)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}

	pipeline, err := New(filepath.Join(dir, "out"), filepath.Join(dir, "work"), filepath.Join(dir, "logs"),
		WithAnyServers(false),
		WithLocalThreads(1),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	input := JobInput{
		Video:      &gradientVideoSource{fs: synth.NewFrameSource(manifest, Res2K)},
		Audio:      &silentAudioSource{as: synth.NewAudioSource(manifest, 48000)},
		Stereo:     true,
		Resolution: Res2K,
		FPS:        manifest.FPS,
		FrameCount: manifest.Frames,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := pipeline.EncodeDCP(ctx, input, nil)
	if err != nil {
		t.Fatalf("EncodeDCP: %v", err)
	}
	if result.FullEncodes != manifest.Frames*2 {
		t.Fatalf("expected %d full encodes (LEFT+RIGHT per frame), got %d", manifest.Frames*2, result.FullEncodes)
	}
}

func TestPipeline_EncodeDCP_EventsReportJobComplete(t *testing.T) {
	dir := t.TempDir()
	mkOutWork(t, dir)
	manifestPath := writeManifest(t, dir, `{"width":8,"height":8,"frames":2,"fps":24,"eye_mode":"mono","channels":2}`)
	manifest, err := synth.LoadManifest(manifestPath)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}

	pipeline, err := New(filepath.Join(dir, "out"), filepath.Join(dir, "work"), filepath.Join(dir, "logs"),
		WithAnyServers(false),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	input := JobInput{
		Video:      &gradientVideoSource{fs: synth.NewFrameSource(manifest, Res2K)},
		Audio:      &silentAudioSource{as: synth.NewAudioSource(manifest, 48000)},
		Resolution: Res2K,
		FPS:        manifest.FPS,
		FrameCount: manifest.Frames,
	}

	var sawComplete bool
	handler := func(e Event) error {
		if e.Type() == EventTypeJobComplete {
			sawComplete = true
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := pipeline.EncodeDCP(ctx, input, handler); err != nil {
		t.Fatalf("EncodeDCP: %v", err)
	}
	if !sawComplete {
		t.Fatal("expected a job_complete event")
	}
}

func mkOutWork(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(dir, "out"), 0o755); err != nil {
		t.Fatalf("mkdir out: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "work"), 0o755); err != nil {
		t.Fatalf("mkdir work: %v", err)
	}
}

func writeManifest(t *testing.T, dir, contents string) string {
	t.Helper()
	path := filepath.Join(dir, "manifest.json")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}
