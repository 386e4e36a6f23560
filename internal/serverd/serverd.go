// Package serverd implements the Server Daemon (§4.5): it announces local
// encoding capacity on the discovery protocol and answers encode requests
// using internal/localworker, sharing the wire contract with
// internal/remoteworker.
package serverd

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/five82/dcpflow/internal/discovery"
	"github.com/five82/dcpflow/internal/localworker"
	"github.com/five82/dcpflow/internal/model"
	"github.com/five82/dcpflow/internal/remoteworker"
	"github.com/five82/dcpflow/internal/socket"
)

// acceptDeadline bounds how long a connected client has to send its
// metadata and plane data before the daemon gives up on it.
const acceptDeadline = 20 * time.Second

// Config describes one daemon instance.
type Config struct {
	PortBase        uint16
	Threads         int
	ProtocolVersion uint32
	Hostname        string // overrides os.Hostname when set, for tests
}

// Daemon owns the encode listener and the discovery responder/announcer.
type Daemon struct {
	cfg  Config
	sem  chan struct{}
	host string
}

// New constructs a Daemon. Threads bounds concurrent local encodes; it is
// also what the daemon advertises in its announcements.
func New(cfg Config) *Daemon {
	if cfg.Threads <= 0 {
		cfg.Threads = 1
	}
	host := cfg.Hostname
	if host == "" {
		if h, err := os.Hostname(); err == nil {
			host = h
		} else {
			host = "localhost"
		}
	}
	return &Daemon{
		cfg:  cfg,
		sem:  make(chan struct{}, cfg.Threads),
		host: host,
	}
}

// Run starts the encode listener and the discovery responder, and blocks
// until ctx is cancelled or one of them fails.
func (d *Daemon) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := d.runEncodeListener(ctx); err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("serverd: encode listener: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := d.runDiscoveryResponder(ctx); err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("serverd: discovery responder: %w", err)
		}
	}()

	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

func (d *Daemon) description() model.ServerDescription {
	return model.ServerDescription{
		Host:    d.host,
		Port:    d.cfg.PortBase,
		Threads: d.cfg.Threads,
	}
}

// runEncodeListener accepts one connection per frame, matching the
// source's fixed-size thread pool handing off each accepted socket (§4.5).
func (d *Daemon) runEncodeListener(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", fmt.Sprintf(":%d", d.cfg.PortBase))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go d.handleEncodeConnection(conn)
	}
}

func (d *Daemon) handleEncodeConnection(conn net.Conn) {
	d.sem <- struct{}{}
	defer func() { <-d.sem }()

	sock := socket.Wrap(conn, acceptDeadline)
	defer func() { _ = sock.Close() }()

	msg, err := sock.ReadText()
	if err != nil {
		return
	}

	meta, err := remoteworker.ParseMetadata(msg)
	if err != nil {
		_ = sock.WriteFrame([]byte("ERROR malformed metadata"))
		return
	}
	if meta.ProtocolVersion != d.cfg.ProtocolVersion {
		_ = sock.WriteFrame([]byte(fmt.Sprintf("ERROR protocol version mismatch: have %d want %d", meta.ProtocolVersion, d.cfg.ProtocolVersion)))
		return
	}

	planes, err := readPlanes(sock, meta)
	if err != nil {
		_ = sock.WriteFrame([]byte(fmt.Sprintf("ERROR %v", err)))
		return
	}

	frame := &model.PreparedFrame{
		Planes:     planes,
		Colour:     meta.Colour,
		Eye:        meta.Eye,
		Resolution: meta.Resolution,
		Index:      meta.Index,
	}

	encoded, err := localworker.EncodeLocal(frame, meta.J2KBandwidth, meta.FPS)
	if err != nil {
		_ = sock.WriteFrame([]byte(fmt.Sprintf("ERROR %v", err)))
		return
	}

	_ = sock.WriteFrame(encoded.Codestream)
}

func readPlanes(sock *socket.Socket, meta *remoteworker.Metadata) (model.PixelPlanes, error) {
	planes := model.PixelPlanes{
		Format: meta.Format,
		Width:  meta.Width,
		Height: meta.Height,
	}
	layouts, err := meta.Format.Layout(meta.Width, meta.Height)
	if err != nil {
		return model.PixelPlanes{}, fmt.Errorf("plane layout: %w", err)
	}
	for _, layout := range layouts {
		buf := make([]byte, layout.Stride*layout.Height)
		if err := sock.Read(buf); err != nil {
			return model.PixelPlanes{}, fmt.Errorf("read plane data: %w", err)
		}
		planes.Planes = append(planes.Planes, model.Plane{Stride: layout.Stride, Data: buf})
	}
	return planes, nil
}

// runDiscoveryResponder listens for client probes on the discovery port
// and, for every one received, connects back to the probing client and
// announces itself (§4.5, §4.4). It also periodically broadcasts the
// announcement as a UDP datagram on the discovery port; discovery.Finder
// receives announcements only over TCP, so it does not pick these up.
func (d *Daemon) runDiscoveryResponder(ctx context.Context) error {
	discoveryPort := d.cfg.PortBase + 1

	conn, err := net.ListenPacket("udp4", fmt.Sprintf(":%d", discoveryPort))
	if err != nil {
		return fmt.Errorf("listen udp: %w", err)
	}
	defer func() { _ = conn.Close() }()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	go d.periodicBroadcast(ctx, discoveryPort)

	buf := make([]byte, 256)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		msg := strings.TrimRight(string(buf[:n]), "\x00")
		if msg != discovery.HelloMessage {
			continue
		}
		go d.announceTo(addr, discoveryPort)
	}
}

func (d *Daemon) periodicBroadcast(ctx context.Context, discoveryPort uint16) {
	ticker := time.NewTicker(discovery.ProbeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if conn, err := net.Dial("udp4", fmt.Sprintf("255.255.255.255:%d", discoveryPort)); err == nil {
				payload, _ := discovery.MarshalAnnouncement(d.description(), d.cfg.ProtocolVersion)
				_, _ = conn.Write(payload)
				_ = conn.Close()
			}
		}
	}
}

func (d *Daemon) announceTo(addr net.Addr, discoveryPort uint16) {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		host = addr.String()
	}

	sock, err := socket.Connect(fmt.Sprintf("%s:%d", host, discoveryPort), acceptDeadline)
	if err != nil {
		return
	}
	defer func() { _ = sock.Close() }()

	payload, err := discovery.MarshalAnnouncement(d.description(), d.cfg.ProtocolVersion)
	if err != nil {
		return
	}
	_ = sock.WriteFrame(payload)
}
