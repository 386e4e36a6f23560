// Package socket provides a length-prefixed, deadline-enforced framing
// layer over a TCP connection, shared by the remote worker client, the
// server daemon, and the discovery listener.
package socket

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/five82/dcpflow/internal/model"
)

// maxFrameBytes caps a single length-prefixed payload to guard against a
// corrupt or hostile peer claiming an enormous length.
const maxFrameBytes = 256 << 20 // 256 MiB: comfortably above one 4K XYZ12 plane

// Socket wraps a connected net.Conn with a single rolling deadline applied
// to both reads and writes, rearmed on every operation.
type Socket struct {
	conn     net.Conn
	deadline time.Duration
}

// Connect dials endpoint with the given connect timeout, returning
// ErrTransport (wrapped) on timeout or refusal.
func Connect(endpoint string, timeout time.Duration) (*Socket, error) {
	conn, err := net.DialTimeout("tcp", endpoint, timeout)
	if err != nil {
		return nil, fmt.Errorf("socket: connect %s: %w: %v", endpoint, model.ErrTransport, err)
	}
	return &Socket{conn: conn, deadline: timeout}, nil
}

// Wrap adapts an already-connected net.Conn (e.g. one returned by
// net.Listener.Accept) into a Socket with the given rolling deadline.
func Wrap(conn net.Conn, deadline time.Duration) *Socket {
	return &Socket{conn: conn, deadline: deadline}
}

// Close closes the underlying connection.
func (s *Socket) Close() error {
	return s.conn.Close()
}

// Shutdown interrupts any in-flight read/write, waking a goroutine blocked
// on network IO.
func (s *Socket) Shutdown() {
	if tc, ok := s.conn.(*net.TCPConn); ok {
		_ = tc.SetDeadline(time.Now())
		return
	}
	_ = s.conn.Close()
}

func (s *Socket) rearm() error {
	return s.conn.SetDeadline(time.Now().Add(s.deadline))
}

// Write blocks until all of b is sent or the deadline fires.
func (s *Socket) Write(b []byte) error {
	if err := s.rearm(); err != nil {
		return fmt.Errorf("socket: write: %w: %v", model.ErrTransport, err)
	}
	if _, err := s.conn.Write(b); err != nil {
		return fmt.Errorf("socket: write timeout/closed: %w: %v", model.ErrTransport, err)
	}
	return nil
}

// Read blocks until exactly len(b) bytes have arrived or the deadline
// fires.
func (s *Socket) Read(b []byte) error {
	if err := s.rearm(); err != nil {
		return fmt.Errorf("socket: read: %w: %v", model.ErrTransport, err)
	}
	if _, err := io.ReadFull(s.conn, b); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return fmt.Errorf("socket: peer closed: %w: %v", model.ErrTransport, err)
		}
		return fmt.Errorf("socket: read timeout: %w: %v", model.ErrTransport, err)
	}
	return nil
}

// WriteU32 writes v as a big-endian 32-bit integer.
func (s *Socket) WriteU32(v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return s.Write(b[:])
}

// ReadU32 reads a big-endian 32-bit integer.
func (s *Socket) ReadU32() (uint32, error) {
	var b [4]byte
	if err := s.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// WriteFrame writes a length-prefixed application message: a big-endian u32
// length followed by payload.
func (s *Socket) WriteFrame(payload []byte) error {
	if err := s.WriteU32(uint32(len(payload))); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	return s.Write(payload)
}

// ReadFrame reads one length-prefixed application message.
func (s *Socket) ReadFrame() ([]byte, error) {
	n, err := s.ReadU32()
	if err != nil {
		return nil, err
	}
	if n > maxFrameBytes {
		return nil, fmt.Errorf("socket: frame length %d exceeds maximum: %w", n, model.ErrProtocol)
	}
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if err := s.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteText sends a NUL-terminated ASCII message as a length-prefixed
// frame, per the wire protocol convention in §4.1.
func (s *Socket) WriteText(msg string) error {
	return s.WriteFrame(append([]byte(msg), 0))
}

// ReadText reads a length-prefixed frame and strips its trailing NUL
// terminator.
func (s *Socket) ReadText() (string, error) {
	b, err := s.ReadFrame()
	if err != nil {
		return "", err
	}
	if len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return string(b), nil
}
