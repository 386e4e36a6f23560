package synth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/five82/dcpflow/internal/model"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "manifest.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadManifest_Defaults(t *testing.T) {
	path := writeManifest(t, `{"width":64,"height":64,"frames":5}`)
	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if m.FPS != 24 || m.Channels != 2 || m.EyeMode != "mono" {
		t.Fatalf("unexpected defaults: %+v", m)
	}
}

func TestFrameSource_DeterministicAndBounded(t *testing.T) {
	m := &Manifest{Width: 8, Height: 8, Frames: 2, FPS: 24, Channels: 2, EyeMode: "mono"}
	src := NewFrameSource(m, model.Res2K)

	f0a := src.Next(0, model.MONO)
	f0b := src.Next(0, model.MONO)
	if string(f0a.Planes.Planes[0].Data) != string(f0b.Planes.Planes[0].Data) {
		t.Fatal("expected deterministic frame content for same index/eye")
	}

	f1 := src.Next(1, model.MONO)
	if string(f1.Planes.Planes[0].Data) == string(f0a.Planes.Planes[0].Data) {
		t.Fatal("expected distinct content across frame indices")
	}

	if src.Next(2, model.MONO) != nil {
		t.Fatal("expected nil past manifest frame count")
	}
}

func TestAudioSource_EmitsExpectedCount(t *testing.T) {
	m := &Manifest{Width: 8, Height: 8, Frames: 3, FPS: 24, Channels: 2}
	src := NewAudioSource(m, 48000)

	count := 0
	for src.Next() != nil {
		count++
	}
	if count != 3 {
		t.Fatalf("expected 3 audio blocks, got %d", count)
	}
}
