package mavlink

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		version int
		msgID   uint32
		payload []byte
	}{
		{"v1 heartbeat", 1, MsgIDHeartbeat, (&Heartbeat{CustomMode: 7, Type: 2, Autopilot: 3, BaseMode: 81, SystemStatus: 4, MavlinkVersion: 3}).Pack()},
		{"v2 heartbeat", 2, MsgIDHeartbeat, (&Heartbeat{CustomMode: 7, Type: 2, Autopilot: 3, BaseMode: 81, SystemStatus: 4, MavlinkVersion: 3}).Pack()},
		{"v1 request list", 1, MsgIDParamRequestList, []byte{1, 1}},
		{"v2 request list", 2, MsgIDParamRequestList, []byte{1, 1}},
		{"v1 empty payload", 1, MsgIDParamRequestList, nil},
		{"v1 mission count", 1, MsgIDMissionCount, []byte{1, 1, 5, 0}},
		{"v2 mission count", 2, MsgIDMissionCount, []byte{5, 0, 1, 1, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := &Frame{
				Version: tt.version,
				Seq:     42,
				SysID:   255,
				CompID:  190,
				MsgID:   tt.msgID,
				Payload: tt.payload,
			}
			raw, err := Encode(in)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}

			out, n, err := Decode(raw)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if n != len(raw) {
				t.Errorf("Decode consumed %d bytes, want %d", n, len(raw))
			}
			if out.Version != tt.version || out.Seq != 42 || out.SysID != 255 || out.CompID != 190 {
				t.Errorf("header mismatch: %+v", out)
			}
			if out.MsgID != tt.msgID {
				t.Errorf("MsgID = %d, want %d", out.MsgID, tt.msgID)
			}
			got := ExpandPayload(out.Payload, tt.msgID, tt.version)
			want := ExpandPayload(tt.payload, tt.msgID, tt.version)
			if !bytes.Equal(got, want) {
				t.Errorf("payload = %v, want %v", got, want)
			}
		})
	}
}

func TestEncodeV2TrimsTrailingZeros(t *testing.T) {
	hb := &Heartbeat{Type: 1} // everything after offset 4 is zero
	f := &Frame{Version: 2, MsgID: MsgIDHeartbeat, Payload: hb.Pack()}
	raw, err := Encode(f)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if plen := int(raw[1]); plen != 5 {
		t.Errorf("wire payload length = %d, want 5 (trimmed)", plen)
	}

	out, _, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got := UnpackHeartbeat(out.Payload)
	if got.Type != 1 || got.MavlinkVersion != 0 {
		t.Errorf("unpacked heartbeat = %+v", got)
	}
}

func TestEncodeV2TrimKeepsOneByte(t *testing.T) {
	f := &Frame{Version: 2, MsgID: MsgIDParamRequestList, Payload: []byte{0, 0}}
	raw, err := Encode(f)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if plen := int(raw[1]); plen != 1 {
		t.Errorf("wire payload length = %d, want 1", plen)
	}
}

func TestEncodeV1Keeps8BitMsgID(t *testing.T) {
	f := &Frame{Version: 1, MsgID: 0x10000 | MsgIDHeartbeat, Payload: make([]byte, 9)}
	if _, err := Encode(f); err == nil {
		t.Error("Encode accepted a 24-bit message id in a v1 frame")
	}
}

func TestEncodeUnknownMessage(t *testing.T) {
	f := &Frame{Version: 1, MsgID: 222, Payload: []byte{1}}
	if _, err := Encode(f); err == nil {
		t.Error("Encode accepted a message id without a crc extra entry")
	}
}

// Mutating any single byte of a frame must cause rejection.
func TestSingleByteMutationRejected(t *testing.T) {
	for _, version := range []int{1, 2} {
		f := &Frame{
			Version: version,
			Seq:     9,
			SysID:   1,
			CompID:  1,
			MsgID:   MsgIDMissionCount,
			Payload: []byte{1, 1, 5, 1},
		}
		raw, err := Encode(f)
		if err != nil {
			t.Fatalf("Encode v%d: %v", version, err)
		}

		for i := range raw {
			mut := append([]byte(nil), raw...)
			mut[i] ^= 0x20
			if _, _, err := Decode(mut); err == nil {
				t.Errorf("v%d: mutation at byte %d was not rejected", version, i)
			}
		}
	}
}

func TestMissionFamilyCRCDiffersByVersion(t *testing.T) {
	x1, ok1 := crcExtra(MsgIDMissionCount, 1)
	x2, ok2 := crcExtra(MsgIDMissionCount, 2)
	if !ok1 || !ok2 {
		t.Fatal("missing crc extra for MISSION_COUNT")
	}
	if x1 == x2 {
		t.Error("MISSION_COUNT crc extra must differ between v1 and v2")
	}

	h1, _ := crcExtra(MsgIDHeartbeat, 1)
	h2, _ := crcExtra(MsgIDHeartbeat, 2)
	if h1 != h2 {
		t.Error("HEARTBEAT crc extra must be version independent")
	}
}

func TestDecodeSignedV2Frame(t *testing.T) {
	f := &Frame{Version: 2, SysID: 1, CompID: 1, MsgID: MsgIDHeartbeat, Payload: (&Heartbeat{Type: 2, MavlinkVersion: 3}).Pack()}
	raw, err := Encode(f)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// Rebuild as a signed frame: set the incompat flag, recompute the
	// checksum, append a 13-byte signature block.
	signed := append([]byte(nil), raw[:len(raw)-2]...)
	signed[2] = IncompatFlagSigned
	extra, _ := crcExtra(MsgIDHeartbeat, 2)
	crc := crcBytes(crcInit, signed[1:])
	crc = crcAccumulate(crc, extra)
	signed = append(signed, byte(crc), byte(crc>>8))
	sig := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13}
	signed = append(signed, sig...)

	out, n, err := Decode(signed)
	if err != nil {
		t.Fatalf("Decode signed: %v", err)
	}
	if n != len(signed) {
		t.Errorf("consumed %d bytes, want %d", n, len(signed))
	}
	if !out.Signed() || !bytes.Equal(out.Signature, sig) {
		t.Errorf("signature not carried: %+v", out)
	}
}

func TestDecodeRejectsUnknownIncompatFlags(t *testing.T) {
	f := &Frame{Version: 2, MsgID: MsgIDHeartbeat, Payload: (&Heartbeat{Type: 2}).Pack()}
	raw, _ := Encode(f)
	raw[2] = 0x40
	if _, _, err := Decode(raw); err == nil {
		t.Error("Decode accepted unknown incompat flags")
	}
}
