// Package mavlink implements the MAVLink v1/v2 wire format: frame
// encode/decode with CRC-16/X.25 validation, the per-message crc extra
// tables, a resynchronizing stream scanner, and pack/unpack helpers for
// the heartbeat, parameter and mission message families.
//
// The codec is deliberately dumb about payload field order: for messages
// whose layout differs between conformant and quirky firmwares it exposes
// one helper per layout and leaves the choice to the caller.
package mavlink

import (
	"errors"
	"fmt"
)

// Wire constants.
const (
	MagicV1 = 0xfe
	MagicV2 = 0xfd

	HeaderLenV1 = 6  // magic len seq sysid compid msgid
	HeaderLenV2 = 10 // magic len incompat compat seq sysid compid msgid[3]

	ChecksumLen  = 2
	SignatureLen = 13

	MaxPayloadLen = 255

	// IncompatFlagSigned marks a v2 frame carrying a signature block.
	IncompatFlagSigned = 0x01

	// maxFrameLen is the largest possible wire frame (v2, signed).
	maxFrameLen = HeaderLenV2 + MaxPayloadLen + ChecksumLen + SignatureLen
)

// Common errors
var (
	ErrBadVersion   = errors.New("mavlink: unsupported wire version")
	ErrBadMagic     = errors.New("mavlink: bad start marker")
	ErrBadCRC       = errors.New("mavlink: checksum mismatch")
	ErrUnknownMsg   = errors.New("mavlink: unknown message id")
	ErrShortFrame   = errors.New("mavlink: truncated frame")
	ErrBadIncompat  = errors.New("mavlink: unsupported incompat flags")
	ErrPayloadLimit = errors.New("mavlink: payload too long")
)

// Frame is one decoded MAVLink packet. Payload semantics are opaque at
// this layer; the length field on the wire always matches len(Payload).
type Frame struct {
	// Version is the wire version, 1 or 2.
	Version int

	// IncompatFlags / CompatFlags are v2-only header bytes (zero on v1).
	IncompatFlags byte
	CompatFlags   byte

	// Seq is the mod-256 link sequence counter (loss detection only).
	Seq byte

	// SysID and CompID identify the sender.
	SysID  byte
	CompID byte

	// MsgID is the message id (8-bit on v1, 24-bit on v2).
	MsgID uint32

	// Payload is the raw, possibly v2-trimmed payload.
	Payload []byte

	// Signature is the raw 13-byte signature block, nil when absent.
	Signature []byte
}

// Signed reports whether the frame carries a v2 signature block.
func (f *Frame) Signed() bool {
	return f.Version == 2 && f.IncompatFlags&IncompatFlagSigned != 0
}

// Encode serializes the frame for the wire. The payload is trimmed of
// trailing zero bytes on v2 (never below one byte); v1 payloads go out
// verbatim. Outbound frames are never signed.
func Encode(f *Frame) ([]byte, error) {
	if f.Version != 1 && f.Version != 2 {
		return nil, ErrBadVersion
	}
	if len(f.Payload) > MaxPayloadLen {
		return nil, ErrPayloadLimit
	}
	extra, ok := crcExtra(f.MsgID, f.Version)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMsg, f.MsgID)
	}

	payload := f.Payload
	if f.Version == 2 {
		payload = trimPayload(payload)
	}

	var out []byte
	if f.Version == 1 {
		if f.MsgID > 0xff {
			return nil, fmt.Errorf("%w: %d does not fit a v1 frame", ErrUnknownMsg, f.MsgID)
		}
		out = make([]byte, 0, HeaderLenV1+len(payload)+ChecksumLen)
		out = append(out, MagicV1, byte(len(payload)), f.Seq, f.SysID, f.CompID, byte(f.MsgID))
	} else {
		out = make([]byte, 0, HeaderLenV2+len(payload)+ChecksumLen)
		out = append(out, MagicV2, byte(len(payload)), 0, 0, f.Seq, f.SysID, f.CompID,
			byte(f.MsgID), byte(f.MsgID>>8), byte(f.MsgID>>16))
	}
	out = append(out, payload...)

	crc := crcBytes(crcInit, out[1:])
	crc = crcAccumulate(crc, extra)
	out = append(out, byte(crc), byte(crc>>8))
	return out, nil
}

// trimPayload drops trailing zero bytes, keeping at least one byte.
func trimPayload(p []byte) []byte {
	n := len(p)
	for n > 1 && p[n-1] == 0 {
		n--
	}
	return p[:n]
}

// Decode parses and validates exactly one frame from buf. buf must begin
// at a start marker and contain the complete frame; extra trailing bytes
// are ignored. The returned frame aliases buf.
func Decode(buf []byte) (*Frame, int, error) {
	if len(buf) == 0 {
		return nil, 0, ErrShortFrame
	}
	switch buf[0] {
	case MagicV1:
		return decodeV1(buf)
	case MagicV2:
		return decodeV2(buf)
	default:
		return nil, 0, ErrBadMagic
	}
}

func decodeV1(buf []byte) (*Frame, int, error) {
	if len(buf) < HeaderLenV1+ChecksumLen {
		return nil, 0, ErrShortFrame
	}
	plen := int(buf[1])
	total := HeaderLenV1 + plen + ChecksumLen
	if len(buf) < total {
		return nil, 0, ErrShortFrame
	}

	f := &Frame{
		Version: 1,
		Seq:     buf[2],
		SysID:   buf[3],
		CompID:  buf[4],
		MsgID:   uint32(buf[5]),
		Payload: buf[HeaderLenV1 : HeaderLenV1+plen],
	}
	if err := verifyCRC(f, buf[1:HeaderLenV1+plen], buf[HeaderLenV1+plen:total]); err != nil {
		return nil, 0, err
	}
	return f, total, nil
}

func decodeV2(buf []byte) (*Frame, int, error) {
	if len(buf) < HeaderLenV2+ChecksumLen {
		return nil, 0, ErrShortFrame
	}
	plen := int(buf[1])
	incompat := buf[2]
	if incompat&^byte(IncompatFlagSigned) != 0 {
		return nil, 0, ErrBadIncompat
	}
	total := HeaderLenV2 + plen + ChecksumLen
	if incompat&IncompatFlagSigned != 0 {
		total += SignatureLen
	}
	if len(buf) < total {
		return nil, 0, ErrShortFrame
	}

	f := &Frame{
		Version:       2,
		IncompatFlags: incompat,
		CompatFlags:   buf[3],
		Seq:           buf[4],
		SysID:         buf[5],
		CompID:        buf[6],
		MsgID:         uint32(buf[7]) | uint32(buf[8])<<8 | uint32(buf[9])<<16,
		Payload:       buf[HeaderLenV2 : HeaderLenV2+plen],
	}
	crcEnd := HeaderLenV2 + plen + ChecksumLen
	if err := verifyCRC(f, buf[1:HeaderLenV2+plen], buf[HeaderLenV2+plen:crcEnd]); err != nil {
		return nil, 0, err
	}
	if incompat&IncompatFlagSigned != 0 {
		f.Signature = buf[crcEnd:total]
	}
	return f, total, nil
}

func verifyCRC(f *Frame, covered, sum []byte) error {
	extra, ok := crcExtra(f.MsgID, f.Version)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownMsg, f.MsgID)
	}
	crc := crcBytes(crcInit, covered)
	crc = crcAccumulate(crc, extra)
	if byte(crc) != sum[0] || byte(crc>>8) != sum[1] {
		return ErrBadCRC
	}
	return nil
}

// ExpandPayload zero-extends a (possibly v2-trimmed) payload to the full
// declared length of the message, so fixed-offset unpackers can read it.
// The input is returned unchanged when already long enough.
func ExpandPayload(p []byte, msgID uint32, version int) []byte {
	full, ok := PayloadLen(msgID, version)
	if !ok || len(p) >= full {
		return p
	}
	out := make([]byte, full)
	copy(out, p)
	return out
}
