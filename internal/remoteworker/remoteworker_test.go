package remoteworker_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/five82/dcpflow/internal/model"
	"github.com/five82/dcpflow/internal/remoteworker"
	"github.com/five82/dcpflow/internal/serverd"
)

// freePort grabs an ephemeral TCP port and releases it immediately, the way
// client_server_test.cc picks a scratch port for its in-process server.
func freePort(t *testing.T) uint16 {
	t.Helper()
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("freePort: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return uint16(port)
}

func solidRGB24(w, h int) model.PixelPlanes {
	data := make([]byte, w*h*3)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return model.PixelPlanes{
		Format: model.RGB24, Width: w, Height: h,
		Planes: []model.Plane{{Stride: w * 3, Data: data}},
	}
}

func TestEncodeRemote_RoundTripsAgainstRealServer(t *testing.T) {
	port := freePort(t)
	daemon := serverd.New(serverd.Config{
		PortBase:        port,
		Threads:         2,
		ProtocolVersion: 2,
		Hostname:        "localhost",
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- daemon.Run(ctx) }()
	time.Sleep(200 * time.Millisecond) // let the listener bind before dialing

	server := model.ServerDescription{Host: "127.0.0.1", Port: port, Threads: 2}
	frame := &model.PreparedFrame{
		Planes:     solidRGB24(16, 16),
		Eye:        model.MONO,
		Resolution: model.Res2K,
		Index:      3,
	}

	encoded, err := remoteworker.EncodeRemote(frame, server, 2, 250_000_000, 24)
	if err != nil {
		t.Fatalf("EncodeRemote: %v", err)
	}
	if len(encoded.Codestream) == 0 {
		t.Fatal("expected a non-empty codestream")
	}
	if encoded.Index != frame.Index || encoded.Eye != frame.Eye {
		t.Fatalf("expected index=%d eye=%v echoed back, got index=%d eye=%v",
			frame.Index, frame.Eye, encoded.Index, encoded.Eye)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not shut down after cancel")
	}
}

func TestEncodeRemote_ProtocolMismatchIsRejected(t *testing.T) {
	port := freePort(t)
	daemon := serverd.New(serverd.Config{
		PortBase:        port,
		Threads:         1,
		ProtocolVersion: 5,
		Hostname:        "localhost",
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = daemon.Run(ctx) }()
	time.Sleep(200 * time.Millisecond)

	server := model.ServerDescription{Host: "127.0.0.1", Port: port, Threads: 1}
	frame := &model.PreparedFrame{Planes: solidRGB24(8, 8), Eye: model.MONO, Resolution: model.Res2K, Index: 0}

	_, err := remoteworker.EncodeRemote(frame, server, 2, 250_000_000, 24)
	if err == nil {
		t.Fatal("expected a protocol-version mismatch error")
	}
}

func TestBackoff_GrowsAdditivelyToCeiling(t *testing.T) {
	b := remoteworker.NewBackoff()
	first := b.Next()
	if first != 10*time.Second {
		t.Fatalf("expected initial backoff of 10s, got %v", first)
	}
	var last time.Duration
	for i := 0; i < 10; i++ {
		last = b.Next()
	}
	if last != 60*time.Second {
		t.Fatalf("expected backoff to settle at 60s ceiling, got %v", last)
	}
	b.Reset()
	if got := b.Next(); got != 10*time.Second {
		t.Fatalf("expected reset to return to 10s floor, got %v", got)
	}
}
