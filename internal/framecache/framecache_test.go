package framecache

import (
	"path/filepath"
	"testing"

	"github.com/five82/dcpflow/internal/model"
)

func TestCache_AppendAndLookup_Mono(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frameinfo.dat")
	c, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	info := model.FrameInfo{Offset: 1024, Size: 2048}
	info.Hash[0] = 0xab
	if err := c.Append(3, model.MONO, info); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, ok := c.Lookup(3, model.MONO)
	if !ok {
		t.Fatal("expected lookup hit")
	}
	if got.Offset != 1024 || got.Size != 2048 || got.Hash[0] != 0xab {
		t.Fatalf("unexpected record: %+v", got)
	}

	if _, ok := c.Lookup(4, model.MONO); ok {
		t.Fatal("expected lookup miss for unwritten index")
	}
}

func TestCache_StereoPositions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frameinfo.dat")
	c, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	left := model.FrameInfo{Offset: 10, Size: 20}
	right := model.FrameInfo{Offset: 30, Size: 40}
	if err := c.Append(0, model.LEFT, left); err != nil {
		t.Fatalf("Append left: %v", err)
	}
	if err := c.Append(0, model.RIGHT, right); err != nil {
		t.Fatalf("Append right: %v", err)
	}

	gotLeft, ok := c.Lookup(0, model.LEFT)
	if !ok || gotLeft.Offset != 10 {
		t.Fatalf("left record mismatch: %+v ok=%v", gotLeft, ok)
	}
	gotRight, ok := c.Lookup(0, model.RIGHT)
	if !ok || gotRight.Offset != 30 {
		t.Fatalf("right record mismatch: %+v ok=%v", gotRight, ok)
	}
}

func TestCache_FirstMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frameinfo.dat")
	c, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	for i := 0; i < 3; i++ {
		if err := c.Append(i, model.MONO, model.FrameInfo{Offset: uint64(i)}); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}

	if got := c.FirstMissing(false, 10); got != 3 {
		t.Fatalf("expected first missing index 3, got %d", got)
	}
}
