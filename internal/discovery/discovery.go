// Package discovery implements the Server Finder (§4.4): a UDP broadcaster
// that announces clients looking for encoding capacity, and a TCP listener
// that receives servers' self-descriptions and emits ServerFound events to
// subscribers.
package discovery

import (
	"context"
	"encoding/xml"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/five82/dcpflow/internal/model"
	"github.com/five82/dcpflow/internal/socket"
)

// HelloMessage is the literal broadcast payload servers listen for.
const HelloMessage = "DCP-o-matic hello"

// ProbeInterval is how often the broadcaster re-announces.
const ProbeInterval = 10 * time.Second

// acceptDeadline bounds how long the listener waits to read one
// announcement after accepting a connection.
const acceptDeadline = 20 * time.Second

// serverAvailableXML is the wire document a server sends when announcing
// itself (§6).
type serverAvailableXML struct {
	XMLName xml.Name `xml:"ServerAvailable"`
	Version int      `xml:"Version"`
	Host    string   `xml:"Host"`
	Port    int      `xml:"Port"`
	Threads int      `xml:"Threads"`
}

// Finder runs the broadcaster and listener tasks and fans discovered
// servers out to subscribers. The zero value is not usable; construct with
// New.
type Finder struct {
	discoveryPort   uint16
	useAnyServers   bool
	explicitServers []string

	mu       sync.Mutex
	known    map[string]model.ServerDescription
	subs     map[int]chan model.ServerDescription
	nextSub  int
}

// New creates a Finder listening/broadcasting on discoveryPort
// (server_port_base + 1).
func New(discoveryPort uint16, useAnyServers bool, explicitServers []string) *Finder {
	return &Finder{
		discoveryPort:   discoveryPort,
		useAnyServers:   useAnyServers,
		explicitServers: explicitServers,
		known:           make(map[string]model.ServerDescription),
		subs:            make(map[int]chan model.ServerDescription),
	}
}

// Subscribe returns a channel receiving a ServerFound event for every new
// server address. The channel is closed when unsubscribed. The returned id
// is passed to Unsubscribe. This is the channel-based replacement for the
// source's auto-disconnecting signal/slot machinery (§9).
func (f *Finder) Subscribe() (id int, ch <-chan model.ServerDescription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id = f.nextSub
	f.nextSub++
	c := make(chan model.ServerDescription, 16)
	f.subs[id] = c
	return id, c
}

// Unsubscribe disconnects a subscription.
func (f *Finder) Unsubscribe(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.subs[id]; ok {
		close(c)
		delete(f.subs, id)
	}
}

func (f *Finder) emit(desc model.ServerDescription) {
	f.mu.Lock()
	key := desc.String()
	if _, seen := f.known[key]; seen {
		f.mu.Unlock()
		return
	}
	f.known[key] = desc
	subs := make([]chan model.ServerDescription, 0, len(f.subs))
	for _, c := range f.subs {
		subs = append(subs, c)
	}
	f.mu.Unlock()

	for _, c := range subs {
		select {
		case c <- desc:
		default:
		}
	}
}

// Run starts the broadcaster and listener tasks and blocks until ctx is
// cancelled. Both tasks run as separate goroutines internally, matching the
// "two independent tasks" shape of §4.4.
func (f *Finder) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := f.runListener(ctx); err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("discovery: listener: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		f.runBroadcaster(ctx)
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

func (f *Finder) runBroadcaster(ctx context.Context) {
	if !f.useAnyServers && len(f.explicitServers) == 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(ProbeInterval)
	defer ticker.Stop()

	f.broadcastOnce()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.broadcastOnce()
		}
	}
}

func (f *Finder) broadcastOnce() {
	payload := append([]byte(HelloMessage), 0)

	if f.useAnyServers {
		if conn, err := net.Dial("udp4", fmt.Sprintf("255.255.255.255:%d", f.discoveryPort)); err == nil {
			_, _ = conn.Write(payload)
			_ = conn.Close()
		}
	}

	for _, host := range f.explicitServers {
		addr := fmt.Sprintf("%s:%d", host, f.discoveryPort)
		if conn, err := net.DialTimeout("udp4", addr, 2*time.Second); err == nil {
			_, _ = conn.Write(payload)
			_ = conn.Close()
		}
	}
}

func (f *Finder) runListener(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", fmt.Sprintf(":%d", f.discoveryPort))
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
		go f.handleAnnouncement(conn)
	}
}

func (f *Finder) handleAnnouncement(conn net.Conn) {
	sock := socket.Wrap(conn, acceptDeadline)
	defer func() { _ = sock.Close() }()

	payload, err := sock.ReadFrame()
	if err != nil {
		return
	}

	var doc serverAvailableXML
	if err := xml.Unmarshal(payload, &doc); err != nil {
		return
	}

	f.emit(model.ServerDescription{
		Host:    doc.Host,
		Port:    uint16(doc.Port),
		Threads: doc.Threads,
	})
}

// MarshalAnnouncement renders a server's self-description as the XML
// document the listener expects; the length prefix is added by the
// caller's socket.WriteFrame. Shared with
// internal/serverd so both sides of the discovery protocol agree on shape.
func MarshalAnnouncement(desc model.ServerDescription, protocolVersion uint32) ([]byte, error) {
	doc := serverAvailableXML{
		Version: int(protocolVersion),
		Host:    desc.Host,
		Port:    int(desc.Port),
		Threads: desc.Threads,
	}
	return xml.Marshal(doc)
}
