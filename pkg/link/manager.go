package link

import (
	"sync"
	"time"

	"gclink/pkg/log"
)

// Manager enforces the single-session ownership rule: at most one
// session exists at a time, and opening a new one first tears the old
// one down completely, honoring the old transport's settle delay before
// the replacement opens.
type Manager struct {
	mu      sync.Mutex
	current *Session
	lg      *log.Logger

	// sleep is swappable for tests.
	sleep func(time.Duration)
}

// NewManager creates a session manager.
func NewManager(lg *log.Logger) *Manager {
	if lg == nil {
		lg = log.New("link")
	}
	return &Manager{lg: lg, sleep: time.Sleep}
}

// Connect replaces any active session with a new one over opts.Transport
// and starts it.
func (m *Manager) Connect(opts Options) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		settle := m.current.tr.SettleDelay()
		m.current.Close()
		m.current = nil
		if settle > 0 {
			m.lg.Debug("settle delay %s before reconnect", settle)
			m.sleep(settle)
		}
	}

	if opts.Logger == nil {
		opts.Logger = m.lg
	}
	s := NewSession(opts)
	if err := s.Start(); err != nil {
		return nil, err
	}
	m.current = s
	return s, nil
}

// Current returns the active session, or nil.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Close tears down the active session, if any.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.Close()
		m.current = nil
	}
}
