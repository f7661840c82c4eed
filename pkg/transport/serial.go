package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
)

var errNoDevice = errors.New("serial device path required")

// SerialConfig holds serial backend configuration.
type SerialConfig struct {
	// Device path (e.g., /dev/ttyUSB0, /dev/ttyACM0, COM3)
	Device string

	// Baud rate (default: 115200)
	BaudRate int

	// Read timeout for individual reads; bounds reader shutdown latency
	// (default: 100ms)
	ReadTimeout time.Duration
}

// serialSettleDelay is the pause between closing a serial device and
// reopening it. USB CDC drivers drop the port briefly after close.
const serialSettleDelay = 500 * time.Millisecond

// Serial is a serial-port transport.
type Serial struct {
	cfg SerialConfig

	mu     sync.Mutex
	port   serial.Port
	open   bool
	closed chan struct{}
	done   chan struct{}
}

// NewSerial creates a serial transport for the given device.
func NewSerial(cfg SerialConfig) *Serial {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 115200
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 100 * time.Millisecond
	}
	return &Serial{cfg: cfg}
}

// Kind implements Transport.
func (s *Serial) Kind() string { return "serial" }

// SettleDelay implements Transport.
func (s *Serial) SettleDelay() time.Duration { return serialSettleDelay }

// Open implements Transport.
func (s *Serial) Open(ev Events) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open {
		return ErrAlreadyOpen
	}
	if s.cfg.Device == "" {
		return fmt.Errorf("transport: %w", errNoDevice)
	}

	// Mark the device low-latency before opening (no-op off Linux).
	setLowLatency(s.cfg.Device)

	mode := &serial.Mode{BaudRate: s.cfg.BaudRate}
	port, err := serial.Open(s.cfg.Device, mode)
	if err != nil {
		return fmt.Errorf("transport: open serial %s: %w", s.cfg.Device, err)
	}
	if err := port.SetReadTimeout(s.cfg.ReadTimeout); err != nil {
		port.Close()
		return fmt.Errorf("transport: set read timeout: %w", err)
	}

	s.port = port
	s.open = true
	s.closed = make(chan struct{})
	s.done = make(chan struct{})
	go s.readLoop(port, ev, s.closed, s.done)
	return nil
}

// readLoop pumps received bytes into ev until close or fatal error.
func (s *Serial) readLoop(port serial.Port, ev Events, closed, done chan struct{}) {
	defer close(done)
	buf := make([]byte, 4096)
	for {
		n, err := port.Read(buf)
		select {
		case <-closed:
			return
		default:
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
		if n == 0 {
			// Read timeout tick; lets shutdown checks run.
			continue
		}
		if ev.Data != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			ev.Data(chunk)
		}
	}
}

// Write implements Transport.
func (s *Serial) Write(p []byte) error {
	s.mu.Lock()
	port := s.port
	open := s.open
	s.mu.Unlock()
	if !open {
		return ErrNotOpen
	}
	_, err := port.Write(p)
	return err
}

// Close implements Transport.
func (s *Serial) Close() error {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return nil
	}
	s.open = false
	port := s.port
	closed, done := s.closed, s.done
	s.port = nil
	s.mu.Unlock()

	close(closed)
	err := port.Close()
	<-done
	return err
}
