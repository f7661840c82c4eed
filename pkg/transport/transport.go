// Package transport provides the raw byte-duplex backends the link
// engine runs over: serial port, TCP client and UDP endpoint, plus a
// channel-driven mock for tests. The engine treats every backend as an
// opaque ordered byte stream with open/close/write and data/error/close
// events.
package transport

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrNotOpen     = errors.New("transport: not open")
	ErrAlreadyOpen = errors.New("transport: already open")
	ErrClosed      = errors.New("transport: closed")
)

// Events receives transport callbacks. Callbacks are invoked from the
// transport's reader goroutine; after Close returns, no further callback
// is delivered (the listener set dies with the connection).
type Events struct {
	// Data delivers one received chunk. The slice is owned by the
	// receiver.
	Data func(chunk []byte)

	// Error reports a fatal I/O error. The transport is dead afterwards.
	Error func(err error)

	// Closed reports an orderly remote close or local Close.
	Closed func()
}

// Transport is an opaque ordered byte duplex.
type Transport interface {
	// Open establishes the connection and starts event delivery to ev.
	Open(ev Events) error

	// Close tears the connection down, stops event delivery, and waits
	// for the reader goroutine to exit.
	Close() error

	// Write sends bytes in order.
	Write(p []byte) error

	// Kind names the backend ("serial", "tcp", "udp", "mock").
	Kind() string

	// SettleDelay is the pause a caller must insert between closing
	// this transport and reopening the same device. Zero for network
	// backends; serial drivers need time to release the port.
	SettleDelay() time.Duration
}
