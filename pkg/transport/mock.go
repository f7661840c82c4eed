package transport

import (
	"sync"
	"time"
)

// Mock is an in-memory transport for tests: received chunks are injected
// with Feed, written bytes are captured for inspection.
type Mock struct {
	mu     sync.Mutex
	ev     Events
	open   bool
	writes [][]byte

	// WriteHook, when set, observes every Write while open. Used by
	// tests to script device behavior.
	WriteHook func(p []byte)
}

// NewMock creates a mock transport.
func NewMock() *Mock {
	return &Mock{}
}

// Kind implements Transport.
func (m *Mock) Kind() string { return "mock" }

// SettleDelay implements Transport.
func (m *Mock) SettleDelay() time.Duration { return 0 }

// Open implements Transport.
func (m *Mock) Open(ev Events) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.open {
		return ErrAlreadyOpen
	}
	m.ev = ev
	m.open = true
	return nil
}

// Write implements Transport.
func (m *Mock) Write(p []byte) error {
	m.mu.Lock()
	if !m.open {
		m.mu.Unlock()
		return ErrNotOpen
	}
	cp := append([]byte(nil), p...)
	m.writes = append(m.writes, cp)
	hook := m.WriteHook
	m.mu.Unlock()

	if hook != nil {
		hook(cp)
	}
	return nil
}

// Close implements Transport.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = false
	m.ev = Events{}
	return nil
}

// Feed injects received bytes, as if the device had sent them.
func (m *Mock) Feed(p []byte) {
	m.mu.Lock()
	ev := m.ev
	open := m.open
	m.mu.Unlock()
	if open && ev.Data != nil {
		ev.Data(append([]byte(nil), p...))
	}
}

// FailWith injects a fatal transport error.
func (m *Mock) FailWith(err error) {
	m.mu.Lock()
	ev := m.ev
	open := m.open
	m.mu.Unlock()
	if open && ev.Error != nil {
		ev.Error(err)
	}
}

// RemoteClose injects an orderly remote close.
func (m *Mock) RemoteClose() {
	m.mu.Lock()
	ev := m.ev
	open := m.open
	m.mu.Unlock()
	if open && ev.Closed != nil {
		ev.Closed()
	}
}

// Writes returns a copy of everything written so far.
func (m *Mock) Writes() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.writes))
	copy(out, m.writes)
	return out
}

// ResetWrites clears the captured write log.
func (m *Mock) ResetWrites() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = nil
}
