package mavlink

import (
	"encoding/binary"
	"math"
)

// Message ids for the supported catalog.
const (
	MsgIDHeartbeat          uint32 = 0
	MsgIDSysStatus          uint32 = 1
	MsgIDParamRequestRead   uint32 = 20
	MsgIDParamRequestList   uint32 = 21
	MsgIDParamValue         uint32 = 22
	MsgIDParamSet           uint32 = 23
	MsgIDGPSRawInt          uint32 = 24
	MsgIDAttitude           uint32 = 30
	MsgIDGlobalPositionInt  uint32 = 33
	MsgIDMissionItem        uint32 = 39
	MsgIDMissionRequest     uint32 = 40
	MsgIDMissionSetCurrent  uint32 = 41
	MsgIDMissionCurrent     uint32 = 42
	MsgIDMissionRequestList uint32 = 43
	MsgIDMissionCount       uint32 = 44
	MsgIDMissionClearAll    uint32 = 45
	MsgIDMissionItemReached uint32 = 46
	MsgIDMissionAck         uint32 = 47
	MsgIDMissionRequestInt  uint32 = 51
	MsgIDMissionItemInt     uint32 = 73
	MsgIDVFRHUD             uint32 = 74
	MsgIDCommandLong        uint32 = 76
	MsgIDCommandAck         uint32 = 77
	MsgIDRadioStatus        uint32 = 109
	MsgIDBatteryStatus      uint32 = 147
	MsgIDAutopilotVersion   uint32 = 148
	MsgIDStatustext         uint32 = 253
)

// Mission types for the mission-family selector byte.
const (
	MissionTypeMission = 0
	MissionTypeFence   = 1
	MissionTypeRally   = 2
)

// Mission ack result codes (MAV_MISSION_RESULT).
const (
	MissionAccepted           = 0
	MissionError              = 1
	MissionUnsupported        = 3
	MissionNoSpace            = 4
	MissionInvalid            = 5
	MissionInvalidSeq         = 13
	MissionDenied             = 14
	MissionOperationCancelled = 15
)

// PayloadLayout selects how multi-byte fields are arranged inside a
// payload. LayoutSorted is the widest-first order used by v2 frames (and,
// on some firmwares, inside v1 frames too); LayoutLegacy is the field
// declaration order of the old v1 definitions.
type PayloadLayout int

const (
	LayoutSorted PayloadLayout = iota
	LayoutLegacy
)

// Heartbeat is the periodic presence/identity message.
type Heartbeat struct {
	CustomMode     uint32
	Type           byte
	Autopilot      byte
	BaseMode       byte
	SystemStatus   byte
	MavlinkVersion byte
}

// Pack serializes the heartbeat payload.
//
//	Offset | Type | Name
//	     0 | u32  | custom_mode
//	     4 | u8   | type
//	     5 | u8   | autopilot
//	     6 | u8   | base_mode
//	     7 | u8   | system_status
//	     8 | u8   | mavlink_version
func (h *Heartbeat) Pack() []byte {
	p := make([]byte, 9)
	binary.LittleEndian.PutUint32(p[0:4], h.CustomMode)
	p[4] = h.Type
	p[5] = h.Autopilot
	p[6] = h.BaseMode
	p[7] = h.SystemStatus
	p[8] = h.MavlinkVersion
	return p
}

// UnpackHeartbeat decodes a heartbeat payload (short payloads are
// zero-extended).
func UnpackHeartbeat(payload []byte) Heartbeat {
	p := ExpandPayload(payload, MsgIDHeartbeat, 2)
	return Heartbeat{
		CustomMode:     binary.LittleEndian.Uint32(p[0:4]),
		Type:           p[4],
		Autopilot:      p[5],
		BaseMode:       p[6],
		SystemStatus:   p[7],
		MavlinkVersion: p[8],
	}
}

// ParamValue is one entry of the parameter stream.
type ParamValue struct {
	Value float32
	Count uint16
	Index uint16
	ID    string
	Type  byte
}

// UnpackParamValue decodes a PARAM_VALUE payload.
func UnpackParamValue(payload []byte) ParamValue {
	p := ExpandPayload(payload, MsgIDParamValue, 2)
	return ParamValue{
		Value: math.Float32frombits(binary.LittleEndian.Uint32(p[0:4])),
		Count: binary.LittleEndian.Uint16(p[4:6]),
		Index: binary.LittleEndian.Uint16(p[6:8]),
		ID:    paramID(p[8:24]),
		Type:  p[24],
	}
}

// PackParamValue serializes a PARAM_VALUE payload (used by simulators).
func PackParamValue(v ParamValue) []byte {
	p := make([]byte, 25)
	binary.LittleEndian.PutUint32(p[0:4], math.Float32bits(v.Value))
	binary.LittleEndian.PutUint16(p[4:6], v.Count)
	binary.LittleEndian.PutUint16(p[6:8], v.Index)
	copy(p[8:24], v.ID)
	p[24] = v.Type
	return p
}

// PackParamRequestList serializes a PARAM_REQUEST_LIST payload.
func PackParamRequestList(targetSys, targetComp byte) []byte {
	return []byte{targetSys, targetComp}
}

// PackParamRequestRead serializes a PARAM_REQUEST_READ payload for a
// named parameter (index -1 per convention).
func PackParamRequestRead(targetSys, targetComp byte, id string) []byte {
	p := make([]byte, 20)
	binary.LittleEndian.PutUint16(p[0:2], 0xffff) // param_index = -1
	p[2] = targetSys
	p[3] = targetComp
	copy(p[4:20], id)
	return p
}

// UnpackParamRequestRead decodes a PARAM_REQUEST_READ payload (used by
// simulators). index is 0xffff when the request is by name.
func UnpackParamRequestRead(payload []byte) (id string, index uint16) {
	p := ExpandPayload(payload, MsgIDParamRequestRead, 2)
	index = binary.LittleEndian.Uint16(p[0:2])
	id = paramID(p[4:20])
	return id, index
}

// PackParamSet serializes a PARAM_SET payload.
func PackParamSet(targetSys, targetComp byte, id string, value float32, ptype byte) []byte {
	p := make([]byte, 23)
	binary.LittleEndian.PutUint32(p[0:4], math.Float32bits(value))
	p[4] = targetSys
	p[5] = targetComp
	copy(p[6:22], id)
	p[22] = ptype
	return p
}

// UnpackParamSet decodes a PARAM_SET payload (used by simulators).
func UnpackParamSet(payload []byte) (id string, value float32, ptype byte) {
	p := ExpandPayload(payload, MsgIDParamSet, 2)
	value = math.Float32frombits(binary.LittleEndian.Uint32(p[0:4]))
	id = paramID(p[6:22])
	ptype = p[22]
	return id, value, ptype
}

// paramID trims a fixed 16-byte field at the first NUL.
func paramID(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// MissionItem is one waypoint / fence point / rally point.
type MissionItem struct {
	Params       [4]float32
	X, Y, Z      float32 // lat, lon, alt for global frames
	Seq          uint16
	Command      uint16
	TargetSys    byte
	TargetComp   byte
	Frame        byte
	Current      byte
	AutoContinue byte
	MissionType  byte
}

// PackMissionItem serializes a MISSION_ITEM payload in the given layout.
// The mission-type selector byte is appended only when withType is set.
func PackMissionItem(it MissionItem, layout PayloadLayout, withType bool) []byte {
	var p []byte
	if layout == LayoutSorted {
		p = make([]byte, 37, 38)
		for i, v := range it.Params {
			binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(v))
		}
		binary.LittleEndian.PutUint32(p[16:], math.Float32bits(it.X))
		binary.LittleEndian.PutUint32(p[20:], math.Float32bits(it.Y))
		binary.LittleEndian.PutUint32(p[24:], math.Float32bits(it.Z))
		binary.LittleEndian.PutUint16(p[28:], it.Seq)
		binary.LittleEndian.PutUint16(p[30:], it.Command)
		p[32] = it.TargetSys
		p[33] = it.TargetComp
		p[34] = it.Frame
		p[35] = it.Current
		p[36] = it.AutoContinue
	} else {
		p = make([]byte, 37, 38)
		p[0] = it.TargetSys
		p[1] = it.TargetComp
		binary.LittleEndian.PutUint16(p[2:], it.Seq)
		p[4] = it.Frame
		binary.LittleEndian.PutUint16(p[5:], it.Command)
		p[7] = it.Current
		p[8] = it.AutoContinue
		for i, v := range it.Params {
			binary.LittleEndian.PutUint32(p[9+i*4:], math.Float32bits(v))
		}
		binary.LittleEndian.PutUint32(p[25:], math.Float32bits(it.X))
		binary.LittleEndian.PutUint32(p[29:], math.Float32bits(it.Y))
		binary.LittleEndian.PutUint32(p[33:], math.Float32bits(it.Z))
	}
	if withType {
		p = append(p, it.MissionType)
	}
	return p
}

// UnpackMissionItem decodes a MISSION_ITEM payload in the given layout.
func UnpackMissionItem(payload []byte, layout PayloadLayout) MissionItem {
	p := ExpandPayload(payload, MsgIDMissionItem, 2)
	var it MissionItem
	if layout == LayoutSorted {
		for i := range it.Params {
			it.Params[i] = math.Float32frombits(binary.LittleEndian.Uint32(p[i*4:]))
		}
		it.X = math.Float32frombits(binary.LittleEndian.Uint32(p[16:]))
		it.Y = math.Float32frombits(binary.LittleEndian.Uint32(p[20:]))
		it.Z = math.Float32frombits(binary.LittleEndian.Uint32(p[24:]))
		it.Seq = binary.LittleEndian.Uint16(p[28:])
		it.Command = binary.LittleEndian.Uint16(p[30:])
		it.TargetSys = p[32]
		it.TargetComp = p[33]
		it.Frame = p[34]
		it.Current = p[35]
		it.AutoContinue = p[36]
	} else {
		it.TargetSys = p[0]
		it.TargetComp = p[1]
		it.Seq = binary.LittleEndian.Uint16(p[2:])
		it.Frame = p[4]
		it.Command = binary.LittleEndian.Uint16(p[5:])
		it.Current = p[7]
		it.AutoContinue = p[8]
		for i := range it.Params {
			it.Params[i] = math.Float32frombits(binary.LittleEndian.Uint32(p[9+i*4:]))
		}
		it.X = math.Float32frombits(binary.LittleEndian.Uint32(p[25:]))
		it.Y = math.Float32frombits(binary.LittleEndian.Uint32(p[29:]))
		it.Z = math.Float32frombits(binary.LittleEndian.Uint32(p[33:]))
	}
	if len(p) > 37 {
		it.MissionType = p[37]
	}
	return it
}

// MissionItemInt is the integer-scaled variant of MissionItem: X and Y
// are degrees * 1e7, avoiding float truncation of coordinates.
type MissionItemInt struct {
	Params       [4]float32
	X, Y         int32
	Z            float32
	Seq          uint16
	Command      uint16
	TargetSys    byte
	TargetComp   byte
	Frame        byte
	Current      byte
	AutoContinue byte
	MissionType  byte
}

// PackMissionItemInt serializes a MISSION_ITEM_INT payload. Field
// positions match MISSION_ITEM per layout; only the X/Y encoding differs.
func PackMissionItemInt(it MissionItemInt, layout PayloadLayout, withType bool) []byte {
	f := MissionItem{
		Params: it.Params, Z: it.Z,
		Seq: it.Seq, Command: it.Command,
		TargetSys: it.TargetSys, TargetComp: it.TargetComp,
		Frame: it.Frame, Current: it.Current, AutoContinue: it.AutoContinue,
		MissionType: it.MissionType,
	}
	p := PackMissionItem(f, layout, withType)
	if layout == LayoutSorted {
		binary.LittleEndian.PutUint32(p[16:], uint32(it.X))
		binary.LittleEndian.PutUint32(p[20:], uint32(it.Y))
	} else {
		binary.LittleEndian.PutUint32(p[25:], uint32(it.X))
		binary.LittleEndian.PutUint32(p[29:], uint32(it.Y))
	}
	return p
}

// UnpackMissionItemInt decodes a MISSION_ITEM_INT payload in the given
// layout.
func UnpackMissionItemInt(payload []byte, layout PayloadLayout) MissionItemInt {
	p := ExpandPayload(payload, MsgIDMissionItemInt, 2)
	f := UnpackMissionItem(p, layout)
	it := MissionItemInt{
		Params: f.Params, Z: f.Z,
		Seq: f.Seq, Command: f.Command,
		TargetSys: f.TargetSys, TargetComp: f.TargetComp,
		Frame: f.Frame, Current: f.Current, AutoContinue: f.AutoContinue,
		MissionType: f.MissionType,
	}
	if layout == LayoutSorted {
		it.X = int32(binary.LittleEndian.Uint32(p[16:]))
		it.Y = int32(binary.LittleEndian.Uint32(p[20:]))
	} else {
		it.X = int32(binary.LittleEndian.Uint32(p[25:]))
		it.Y = int32(binary.LittleEndian.Uint32(p[29:]))
	}
	return it
}

// MissionCount carries the declared item total for a transfer.
//
// Sorted layout:  count u16 @0, target_system @2, target_component @3
// Legacy layout:  target_system @0, target_component @1, count u16 @2
type MissionCount struct {
	Count       uint16
	TargetSys   byte
	TargetComp  byte
	MissionType byte
}

// PackMissionCount serializes a MISSION_COUNT payload.
func PackMissionCount(c MissionCount, layout PayloadLayout, withType bool) []byte {
	p := make([]byte, 4, 5)
	if layout == LayoutSorted {
		binary.LittleEndian.PutUint16(p[0:], c.Count)
		p[2] = c.TargetSys
		p[3] = c.TargetComp
	} else {
		p[0] = c.TargetSys
		p[1] = c.TargetComp
		binary.LittleEndian.PutUint16(p[2:], c.Count)
	}
	if withType {
		p = append(p, c.MissionType)
	}
	return p
}

// UnpackMissionCount decodes a MISSION_COUNT payload in the given layout.
func UnpackMissionCount(payload []byte, layout PayloadLayout) MissionCount {
	p := ExpandPayload(payload, MsgIDMissionCount, 2)
	var c MissionCount
	if layout == LayoutSorted {
		c.Count = binary.LittleEndian.Uint16(p[0:])
		c.TargetSys = p[2]
		c.TargetComp = p[3]
	} else {
		c.TargetSys = p[0]
		c.TargetComp = p[1]
		c.Count = binary.LittleEndian.Uint16(p[2:])
	}
	if len(p) > 4 {
		c.MissionType = p[4]
	}
	return c
}

// MissionRequest asks for one item by sequence index.
//
// Sorted layout:  seq u16 @0, target_system @2, target_component @3
// Legacy layout:  target_system @0, target_component @1, seq u16 @2
type MissionRequest struct {
	Seq         uint16
	TargetSys   byte
	TargetComp  byte
	MissionType byte
}

// PackMissionRequest serializes a MISSION_REQUEST payload.
func PackMissionRequest(r MissionRequest, layout PayloadLayout, withType bool) []byte {
	p := make([]byte, 4, 5)
	if layout == LayoutSorted {
		binary.LittleEndian.PutUint16(p[0:], r.Seq)
		p[2] = r.TargetSys
		p[3] = r.TargetComp
	} else {
		p[0] = r.TargetSys
		p[1] = r.TargetComp
		binary.LittleEndian.PutUint16(p[2:], r.Seq)
	}
	if withType {
		p = append(p, r.MissionType)
	}
	return p
}

// UnpackMissionRequest decodes a MISSION_REQUEST payload in the given
// layout.
func UnpackMissionRequest(payload []byte, layout PayloadLayout) MissionRequest {
	p := ExpandPayload(payload, MsgIDMissionRequest, 2)
	var r MissionRequest
	if layout == LayoutSorted {
		r.Seq = binary.LittleEndian.Uint16(p[0:])
		r.TargetSys = p[2]
		r.TargetComp = p[3]
	} else {
		r.TargetSys = p[0]
		r.TargetComp = p[1]
		r.Seq = binary.LittleEndian.Uint16(p[2:])
	}
	if len(p) > 4 {
		r.MissionType = p[4]
	}
	return r
}

// PackMissionRequestList serializes a MISSION_REQUEST_LIST payload.
func PackMissionRequestList(targetSys, targetComp, missionType byte, withType bool) []byte {
	p := []byte{targetSys, targetComp}
	if withType {
		p = append(p, missionType)
	}
	return p
}

// PackMissionClearAll serializes a MISSION_CLEAR_ALL payload.
func PackMissionClearAll(targetSys, targetComp, missionType byte, withType bool) []byte {
	p := []byte{targetSys, targetComp}
	if withType {
		p = append(p, missionType)
	}
	return p
}

// MissionAck terminates a transfer with a result code.
type MissionAck struct {
	TargetSys   byte
	TargetComp  byte
	Result      byte
	MissionType byte
}

// PackMissionAck serializes a MISSION_ACK payload.
func PackMissionAck(a MissionAck, withType bool) []byte {
	p := []byte{a.TargetSys, a.TargetComp, a.Result}
	if withType {
		p = append(p, a.MissionType)
	}
	return p
}

// UnpackMissionAck decodes a MISSION_ACK payload. All fields are single
// bytes, so the layout ambiguity does not arise.
func UnpackMissionAck(payload []byte) MissionAck {
	p := ExpandPayload(payload, MsgIDMissionAck, 2)
	a := MissionAck{TargetSys: p[0], TargetComp: p[1], Result: p[2]}
	if len(p) > 3 {
		a.MissionType = p[3]
	}
	return a
}

// MissionResultString names a MAV_MISSION_RESULT code for error reporting.
func MissionResultString(code byte) string {
	switch code {
	case MissionAccepted:
		return "accepted"
	case MissionError:
		return "generic error"
	case MissionUnsupported:
		return "unsupported"
	case MissionNoSpace:
		return "no space"
	case MissionInvalid:
		return "invalid item"
	case MissionInvalidSeq:
		return "invalid sequence"
	case MissionDenied:
		return "denied"
	case MissionOperationCancelled:
		return "operation cancelled"
	default:
		return "unknown result"
	}
}

// Statustext carries a severity byte and a NUL-padded text field.
func UnpackStatustext(payload []byte) (severity byte, text string) {
	p := ExpandPayload(payload, MsgIDStatustext, 2)
	return p[0], paramID(p[1:])
}
