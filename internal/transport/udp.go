package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// ErrNotConnected is returned by Send when no outbound channel exists.
var ErrNotConnected = errors.New("udp transport not connected")

// UDP owns the outbound datagram channel to the mixing server. Ensure
// and Send are safe to call concurrently from the tick loop and from
// lifecycle transitions; the connection handle is the only shared
// resource and sits behind a single mutex.
type UDP struct {
	mu     sync.Mutex
	conn   net.Conn
	addr   string
	logger *slog.Logger
}

// NewUDP returns an unconnected transport.
func NewUDP(logger *slog.Logger) *UDP {
	return &UDP{logger: logger}
}

// Ensure (re)creates the outbound channel bound to addr, replacing any
// prior channel.
func (t *UDP) Ensure(addr string) error {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to dial udp %s: %w", addr, err)
	}

	t.mu.Lock()
	old := t.conn
	t.conn = conn
	t.addr = addr
	t.mu.Unlock()

	if old != nil {
		old.Close()
	}

	t.logger.Info("UDP transport ready", slog.String("remote_addr", addr))
	return nil
}

// Ready reports whether an outbound channel currently exists.
func (t *UDP) Ready() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

// Send fires one datagram at the mixing server, best effort. An empty
// payload is a no-op. The returned error is informational; there is no
// retry and no delivery guarantee beyond UDP's own.
func (t *UDP) Send(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return ErrNotConnected
	}
	if _, err := t.conn.Write(payload); err != nil {
		return fmt.Errorf("udp send to %s failed: %w", t.addr, err)
	}
	return nil
}

// Close releases the outbound channel. Safe to call repeatedly.
func (t *UDP) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}
