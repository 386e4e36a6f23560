package serverd

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/five82/dcpflow/internal/model"
	"github.com/five82/dcpflow/internal/remoteworker"
)

func freePortBase(t *testing.T) uint16 {
	t.Helper()
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	_ = ln.Close()
	if port%2 != 0 {
		port--
	}
	return uint16(port)
}

func solidRGB24(w, h int, r, g, b byte) model.PixelPlanes {
	data := make([]byte, w*h*3)
	for i := 0; i < w*h; i++ {
		data[i*3], data[i*3+1], data[i*3+2] = r, g, b
	}
	return model.PixelPlanes{
		Format: model.RGB24, Width: w, Height: h,
		Planes: []model.Plane{{Stride: w * 3, Data: data}},
	}
}

func TestEncodeRemote_RoundTrip(t *testing.T) {
	portBase := freePortBase(t)
	d := New(Config{PortBase: portBase, Threads: 2, ProtocolVersion: 2, Hostname: "test-host"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	// Give the listener goroutines a moment to bind.
	time.Sleep(100 * time.Millisecond)

	frame := &model.PreparedFrame{
		Planes:     solidRGB24(16, 16, 10, 20, 30),
		Eye:        model.MONO,
		Resolution: model.Res2K,
		Index:      7,
	}

	server := model.ServerDescription{Host: "127.0.0.1", Port: portBase, Threads: 2}
	encoded, err := remoteworker.EncodeRemote(frame, server, 2, 250_000_000, 24)
	if err != nil {
		t.Fatalf("EncodeRemote: %v", err)
	}
	if len(encoded.Codestream) == 0 {
		t.Fatal("expected non-empty codestream from remote encode")
	}
	if encoded.Index != 7 {
		t.Fatalf("index mismatch: got %d", encoded.Index)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not shut down after cancel")
	}
}

func TestEncodeRemote_ProtocolMismatchRejected(t *testing.T) {
	portBase := freePortBase(t)
	d := New(Config{PortBase: portBase, Threads: 1, ProtocolVersion: 2, Hostname: "test-host"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)

	frame := &model.PreparedFrame{
		Planes: solidRGB24(4, 4, 1, 2, 3),
		Eye:    model.MONO, Resolution: model.Res2K, Index: 0,
	}
	server := model.ServerDescription{Host: "127.0.0.1", Port: portBase, Threads: 1}
	_, err := remoteworker.EncodeRemote(frame, server, 999, 250_000_000, 24)
	if err == nil {
		t.Fatal("expected protocol mismatch error")
	}
}
