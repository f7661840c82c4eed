// Package msp implements the MultiWii Serial Protocol v1 frame codec used
// by the Betaflight/iNav firmware family: '$M' marker, direction byte,
// XOR checksum, plus a resynchronizing stream scanner and the command id
// catalog needed for device identification.
package msp

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Frame layout: '$' 'M' dir len cmd payload[len] ck
// ck is the running XOR of len, cmd and every payload byte.
const (
	headerLen  = 5 // $ M dir len cmd
	trailerLen = 1 // ck

	// MaxPayloadLen is bounded by the one-byte length field.
	MaxPayloadLen = 255

	markerDollar = '$'
	markerM      = 'M'

	// Direction bytes.
	DirRequest  = '<'
	DirResponse = '>'
	DirError    = '!'
)

// Common errors
var (
	ErrShortFrame   = errors.New("msp: truncated frame")
	ErrBadMarker    = errors.New("msp: bad frame marker")
	ErrBadDirection = errors.New("msp: bad direction byte")
	ErrBadChecksum  = errors.New("msp: checksum mismatch")
	ErrPayloadLimit = errors.New("msp: payload too long")
)

// Frame is one decoded MSP packet.
type Frame struct {
	// Cmd is the MSP command id.
	Cmd byte

	// Payload is the raw payload (semantics depend on Cmd).
	Payload []byte

	// Err is set when the device answered with the '!' direction,
	// an explicit rejection rather than line noise.
	Err bool
}

// checksum XORs the length, command and payload bytes.
func checksum(length, cmd byte, payload []byte) byte {
	ck := length ^ cmd
	for _, b := range payload {
		ck ^= b
	}
	return ck
}

// EncodeRequest builds a host→device request frame.
func EncodeRequest(cmd byte, payload []byte) ([]byte, error) {
	return encode(DirRequest, cmd, payload)
}

// EncodeResponse builds a device→host response frame (simulators).
func EncodeResponse(cmd byte, payload []byte) ([]byte, error) {
	return encode(DirResponse, cmd, payload)
}

// EncodeError builds a device→host rejection frame (simulators).
func EncodeError(cmd byte) ([]byte, error) {
	return encode(DirError, cmd, nil)
}

func encode(dir, cmd byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadLen {
		return nil, ErrPayloadLimit
	}
	out := make([]byte, 0, headerLen+len(payload)+trailerLen)
	out = append(out, markerDollar, markerM, dir, byte(len(payload)), cmd)
	out = append(out, payload...)
	out = append(out, checksum(byte(len(payload)), cmd, payload))
	return out, nil
}

// Decode parses one device→host frame from buf, which must begin at the
// '$' marker. Returns the frame and the number of bytes consumed.
func Decode(buf []byte) (*Frame, int, error) {
	return decode(buf, false)
}

// DecodeRequest parses one host→device frame. Only device simulators
// need this side of the protocol.
func DecodeRequest(buf []byte) (*Frame, int, error) {
	return decode(buf, true)
}

func decode(buf []byte, request bool) (*Frame, int, error) {
	if len(buf) < headerLen {
		return nil, 0, ErrShortFrame
	}
	if buf[0] != markerDollar || buf[1] != markerM {
		return nil, 0, ErrBadMarker
	}
	dir := buf[2]
	if request {
		if dir != DirRequest {
			return nil, 0, ErrBadDirection
		}
	} else if dir != DirResponse && dir != DirError {
		return nil, 0, ErrBadDirection
	}
	plen := int(buf[3])
	total := headerLen + plen + trailerLen
	if len(buf) < total {
		return nil, 0, ErrShortFrame
	}
	cmd := buf[4]
	payload := buf[headerLen : headerLen+plen]
	if checksum(byte(plen), cmd, payload) != buf[total-1] {
		return nil, 0, ErrBadChecksum
	}
	return &Frame{Cmd: cmd, Payload: payload, Err: dir == DirError}, total, nil
}

// Identity is the device description assembled from the probe responses.
type Identity struct {
	APIVersion string // e.g. "1.46"
	Variant    string // 4-char firmware id, e.g. "BTFL", "INAV"
	Version    string // e.g. "4.5.1"
	BoardID    string
}

// DecodeAPIVersion parses an MSP_API_VERSION response payload.
func DecodeAPIVersion(p []byte) (string, error) {
	if len(p) < 3 {
		return "", fmt.Errorf("msp: API_VERSION payload too short (%d bytes)", len(p))
	}
	return fmt.Sprintf("%d.%d", p[1], p[2]), nil
}

// DecodeFCVariant parses an MSP_FC_VARIANT response payload.
func DecodeFCVariant(p []byte) (string, error) {
	if len(p) < 4 {
		return "", fmt.Errorf("msp: FC_VARIANT payload too short (%d bytes)", len(p))
	}
	return string(p[:4]), nil
}

// DecodeFCVersion parses an MSP_FC_VERSION response payload.
func DecodeFCVersion(p []byte) (string, error) {
	if len(p) < 3 {
		return "", fmt.Errorf("msp: FC_VERSION payload too short (%d bytes)", len(p))
	}
	return fmt.Sprintf("%d.%d.%d", p[0], p[1], p[2]), nil
}

// DecodeBoardInfo parses the leading board identifier of an
// MSP_BOARD_INFO response payload.
func DecodeBoardInfo(p []byte) (string, error) {
	if len(p) < 4 {
		return "", fmt.Errorf("msp: BOARD_INFO payload too short (%d bytes)", len(p))
	}
	return string(p[:4]), nil
}

// DecodeIdent parses the legacy MSP_IDENT response payload.
func DecodeIdent(p []byte) (version, multitype byte, capability uint32, err error) {
	if len(p) < 7 {
		return 0, 0, 0, fmt.Errorf("msp: IDENT payload too short (%d bytes)", len(p))
	}
	return p[0], p[1], binary.LittleEndian.Uint32(p[3:7]), nil
}
