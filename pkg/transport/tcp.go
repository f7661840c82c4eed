package transport

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// TCP is a TCP client transport (e.g. a WiFi telemetry bridge).
type TCP struct {
	addr        string
	dialTimeout time.Duration

	mu     sync.Mutex
	conn   net.Conn
	open   bool
	closed chan struct{}
	done   chan struct{}
}

// NewTCP creates a TCP transport dialing addr ("host:port").
func NewTCP(addr string) *TCP {
	return &TCP{addr: addr, dialTimeout: 10 * time.Second}
}

// Kind implements Transport.
func (t *TCP) Kind() string { return "tcp" }

// SettleDelay implements Transport.
func (t *TCP) SettleDelay() time.Duration { return 0 }

// Open implements Transport.
func (t *TCP) Open(ev Events) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.open {
		return ErrAlreadyOpen
	}
	conn, err := net.DialTimeout("tcp", t.addr, t.dialTimeout)
	if err != nil {
		return fmt.Errorf("transport: dial %s: %w", t.addr, err)
	}
	t.conn = conn
	t.open = true
	t.closed = make(chan struct{})
	t.done = make(chan struct{})
	go streamReadLoop(conn, ev, t.closed, t.done)
	return nil
}

// streamReadLoop pumps a net.Conn into ev; shared with the UDP backend.
func streamReadLoop(conn net.Conn, ev Events, closed, done chan struct{}) {
	defer close(done)
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		select {
		case <-closed:
			return
		default:
		}
		if n > 0 && ev.Data != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			ev.Data(chunk)
		}
		if err != nil {
			if err == io.EOF {
				if ev.Closed != nil {
					ev.Closed()
				}
			} else if ev.Error != nil {
				ev.Error(err)
			}
			return
		}
	}
}

// Write implements Transport.
func (t *TCP) Write(p []byte) error {
	t.mu.Lock()
	conn := t.conn
	open := t.open
	t.mu.Unlock()
	if !open {
		return ErrNotOpen
	}
	_, err := conn.Write(p)
	return err
}

// Close implements Transport.
func (t *TCP) Close() error {
	t.mu.Lock()
	if !t.open {
		t.mu.Unlock()
		return nil
	}
	t.open = false
	conn := t.conn
	closed, done := t.closed, t.done
	t.conn = nil
	t.mu.Unlock()

	close(closed)
	err := conn.Close()
	<-done
	return err
}
