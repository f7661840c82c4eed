package errors

import (
	stderrors "errors"
	"strings"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	err := TransferTimeoutError("mission", 5, 3)
	msg := err.Error()
	if !strings.Contains(msg, "TRANSFER_TIMEOUT") || !strings.Contains(msg, "mission") {
		t.Errorf("Error() = %q", msg)
	}
	if err.Expected != 5 || err.Received != 3 {
		t.Errorf("counts = %d/%d", err.Received, err.Expected)
	}
}

func TestWrapUnwrap(t *testing.T) {
	inner := stderrors.New("read: connection reset")
	err := TransportError("read", inner)
	if !stderrors.Is(err, inner) {
		t.Error("wrapped error not reachable via errors.Is")
	}
	if !Is(err, ErrTransport) {
		t.Error("Is(ErrTransport) = false")
	}
}

func TestIsTransfer(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{TransferTimeoutError("fence", 10, 2), true},
		{TransferRejectedError("rally", "no space"), true},
		{TransferBusyError("parameters"), true},
		{TransferCancelledError("mission", 4, 1), true},
		{DetectTimeoutError("4s"), false},
		{stderrors.New("plain"), false},
	}
	for _, tt := range tests {
		if got := IsTransfer(tt.err); got != tt.want {
			t.Errorf("IsTransfer(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
