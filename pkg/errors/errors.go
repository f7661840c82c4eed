// Unified error handling for the GCLink engine
//
// Copyright (C) 2026  GCLink Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package errors

import "fmt"

// ErrorCode represents the category of error
type ErrorCode string

const (
	// Transport errors: I/O failure; force-closes the session.
	ErrTransport     ErrorCode = "TRANSPORT"
	ErrTransportOpen ErrorCode = "TRANSPORT_OPEN"

	// Protocol detection: no heartbeat and no MSP response in time.
	ErrDetectTimeout ErrorCode = "DETECT_TIMEOUT"

	// Session state errors.
	ErrSessionState  ErrorCode = "SESSION_STATE"
	ErrSessionClosed ErrorCode = "SESSION_CLOSED"

	// Bulk transfer errors: fail the job, never the session.
	ErrTransferTimeout  ErrorCode = "TRANSFER_TIMEOUT"
	ErrTransferRejected ErrorCode = "TRANSFER_REJECTED"
	ErrTransferBusy     ErrorCode = "TRANSFER_BUSY"
	ErrTransferCancel   ErrorCode = "TRANSFER_CANCELLED"

	// Config errors.
	ErrConfigParse      ErrorCode = "CONFIG_PARSE"
	ErrConfigValidation ErrorCode = "CONFIG_VALIDATION"
)

// LinkError is the unified error type for the link engine.
type LinkError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// JobKind names the transfer kind for transfer errors
	JobKind string

	// Expected and Received carry transfer progress counts so the
	// caller can present an actionable message
	Expected int
	Received int

	// Err wraps the underlying error
	Err error
}

// Error implements the error interface
func (e *LinkError) Error() string {
	if e.JobKind != "" {
		return fmt.Sprintf("[%s:%s] %s", e.Code, e.JobKind, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *LinkError) Unwrap() error {
	return e.Err
}

// SetCounts attaches transfer progress to the error
func (e *LinkError) SetCounts(expected, received int) *LinkError {
	e.Expected = expected
	e.Received = received
	return e
}

// New creates a new LinkError
func New(code ErrorCode, message string) *LinkError {
	return &LinkError{Code: code, Message: message}
}

// Wrap wraps an existing error with a category and message
func Wrap(err error, code ErrorCode, message string) *LinkError {
	return &LinkError{Code: code, Message: message, Err: err}
}

// TransportError wraps an I/O failure from the transport layer
func TransportError(op string, err error) *LinkError {
	return Wrap(err, ErrTransport, fmt.Sprintf("transport %s failed", op))
}

// DetectTimeoutError reports failed protocol detection
func DetectTimeoutError(grace string) *LinkError {
	return New(ErrDetectTimeout, fmt.Sprintf("no heartbeat or MSP response within %s", grace))
}

// SessionStateError reports an operation invalid in the current state
func SessionStateError(op, state string) *LinkError {
	return New(ErrSessionState, fmt.Sprintf("cannot %s while %s", op, state))
}

// TransferTimeoutError reports an inactivity timeout for one job
func TransferTimeoutError(kind string, expected, received int) *LinkError {
	return New(ErrTransferTimeout,
		fmt.Sprintf("inactivity timeout after %d of %d items", received, expected)).
		withKind(kind).SetCounts(expected, received)
}

// TransferRejectedError reports an explicit device rejection
func TransferRejectedError(kind string, reason string) *LinkError {
	return New(ErrTransferRejected, fmt.Sprintf("device rejected transfer: %s", reason)).
		withKind(kind)
}

// TransferBusyError reports a second job of an already-active kind
func TransferBusyError(kind string) *LinkError {
	return New(ErrTransferBusy, "a transfer of this kind is already active").withKind(kind)
}

// TransferCancelledError reports caller- or disconnect-driven cancellation
func TransferCancelledError(kind string, expected, received int) *LinkError {
	return New(ErrTransferCancel, "transfer cancelled").
		withKind(kind).SetCounts(expected, received)
}

func (e *LinkError) withKind(kind string) *LinkError {
	e.JobKind = kind
	return e
}

// Is checks whether err carries the given error code
func Is(err error, code ErrorCode) bool {
	if le, ok := err.(*LinkError); ok {
		return le.Code == code
	}
	return false
}

// IsTransfer checks whether err belongs to the transfer taxonomy
func IsTransfer(err error) bool {
	return Is(err, ErrTransferTimeout) || Is(err, ErrTransferRejected) ||
		Is(err, ErrTransferBusy) || Is(err, ErrTransferCancel)
}
