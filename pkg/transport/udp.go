package transport

import (
	"fmt"
	"net"
	"sync"
	"time"
)

// UDP is a connected UDP transport. Datagram boundaries are irrelevant
// to the engine; payload bytes feed the same stream scanners as serial.
type UDP struct {
	addr string

	mu     sync.Mutex
	conn   net.Conn
	open   bool
	closed chan struct{}
	done   chan struct{}
}

// NewUDP creates a UDP transport talking to addr ("host:port").
func NewUDP(addr string) *UDP {
	return &UDP{addr: addr}
}

// Kind implements Transport.
func (u *UDP) Kind() string { return "udp" }

// SettleDelay implements Transport.
func (u *UDP) SettleDelay() time.Duration { return 0 }

// Open implements Transport.
func (u *UDP) Open(ev Events) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.open {
		return ErrAlreadyOpen
	}
	raddr, err := net.ResolveUDPAddr("udp", u.addr)
	if err != nil {
		return fmt.Errorf("transport: resolve %s: %w", u.addr, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return fmt.Errorf("transport: dial %s: %w", u.addr, err)
	}
	u.conn = conn
	u.open = true
	u.closed = make(chan struct{})
	u.done = make(chan struct{})
	go streamReadLoop(conn, ev, u.closed, u.done)
	return nil
}

// Write implements Transport.
func (u *UDP) Write(p []byte) error {
	u.mu.Lock()
	conn := u.conn
	open := u.open
	u.mu.Unlock()
	if !open {
		return ErrNotOpen
	}
	_, err := conn.Write(p)
	return err
}

// Close implements Transport.
func (u *UDP) Close() error {
	u.mu.Lock()
	if !u.open {
		u.mu.Unlock()
		return nil
	}
	u.open = false
	conn := u.conn
	closed, done := u.closed, u.done
	u.conn = nil
	u.mu.Unlock()

	close(closed)
	err := conn.Close()
	<-done
	return err
}
