//go:build linux

package transport

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// asyncLowLatency is the serial_struct flag that makes the kernel flush
// the driver's receive FIFO to userspace per character instead of per
// jiffy. Without it, high-rate telemetry arrives in bursty lumps.
const asyncLowLatency = 0x2000

// serialStruct mirrors struct serial_struct from <linux/serial.h>.
type serialStruct struct {
	Type          int32
	Line          int32
	Port          uint32
	Irq           int32
	Flags         int32
	XmitFifoSize  int32
	CustomDivisor int32
	BaudBase      int32
	CloseDelay    uint16
	IOType        byte
	ReservedChar  byte
	Hub6          int32
	ClosingWait   uint16
	ClosingWait2  uint16
	IomemBase     uintptr
	IomemRegShift uint16
	PortHigh      uint32
	IomapBase     uint64
}

// setLowLatency sets ASYNC_LOW_LATENCY on the device. The flag lives in
// driver state, so setting it through a short-lived fd persists for the
// subsequent open. Errors are ignored: not every driver implements
// TIOCSSERIAL and the link works (slower) without it.
func setLowLatency(device string) {
	fd, err := unix.Open(device, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return
	}
	defer unix.Close(fd)

	var ss serialStruct
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd),
		uintptr(unix.TIOCGSERIAL), uintptr(unsafe.Pointer(&ss))); errno != 0 {
		return
	}
	ss.Flags |= asyncLowLatency
	unix.Syscall(unix.SYS_IOCTL, uintptr(fd),
		uintptr(unix.TIOCSSERIAL), uintptr(unsafe.Pointer(&ss)))
}
