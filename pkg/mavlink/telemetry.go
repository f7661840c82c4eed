package mavlink

import (
	"encoding/binary"
	"math"
)

// GPS fix types (GPS_FIX_TYPE).
const (
	GPSFixNone = 1
	GPSFix2D   = 2
	GPSFix3D   = 3
)

// GPSRawInt is the raw GNSS solution. Lat/Lon are degrees * 1e7, Alt is
// millimeters above MSL.
type GPSRawInt struct {
	TimeUsec   uint64
	Lat        int32
	Lon        int32
	Alt        int32
	EPH        uint16
	EPV        uint16
	Vel        uint16
	COG        uint16
	FixType    byte
	Satellites byte
}

// UnpackGPSRawInt decodes a GPS_RAW_INT payload.
func UnpackGPSRawInt(payload []byte) GPSRawInt {
	p := ExpandPayload(payload, MsgIDGPSRawInt, 2)
	return GPSRawInt{
		TimeUsec:   binary.LittleEndian.Uint64(p[0:8]),
		Lat:        int32(binary.LittleEndian.Uint32(p[8:12])),
		Lon:        int32(binary.LittleEndian.Uint32(p[12:16])),
		Alt:        int32(binary.LittleEndian.Uint32(p[16:20])),
		EPH:        binary.LittleEndian.Uint16(p[20:22]),
		EPV:        binary.LittleEndian.Uint16(p[22:24]),
		Vel:        binary.LittleEndian.Uint16(p[24:26]),
		COG:        binary.LittleEndian.Uint16(p[26:28]),
		FixType:    p[28],
		Satellites: p[29],
	}
}

// PackGPSRawInt serializes a GPS_RAW_INT payload (used by simulators).
func PackGPSRawInt(g GPSRawInt) []byte {
	p := make([]byte, 30)
	binary.LittleEndian.PutUint64(p[0:8], g.TimeUsec)
	binary.LittleEndian.PutUint32(p[8:12], uint32(g.Lat))
	binary.LittleEndian.PutUint32(p[12:16], uint32(g.Lon))
	binary.LittleEndian.PutUint32(p[16:20], uint32(g.Alt))
	binary.LittleEndian.PutUint16(p[20:22], g.EPH)
	binary.LittleEndian.PutUint16(p[22:24], g.EPV)
	binary.LittleEndian.PutUint16(p[24:26], g.Vel)
	binary.LittleEndian.PutUint16(p[26:28], g.COG)
	p[28] = g.FixType
	p[29] = g.Satellites
	return p
}

// Attitude is the vehicle orientation in radians.
type Attitude struct {
	TimeBootMs uint32
	Roll       float32
	Pitch      float32
	Yaw        float32
	RollSpeed  float32
	PitchSpeed float32
	YawSpeed   float32
}

// UnpackAttitude decodes an ATTITUDE payload.
func UnpackAttitude(payload []byte) Attitude {
	p := ExpandPayload(payload, MsgIDAttitude, 2)
	f := func(off int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(p[off:]))
	}
	return Attitude{
		TimeBootMs: binary.LittleEndian.Uint32(p[0:4]),
		Roll:       f(4),
		Pitch:      f(8),
		Yaw:        f(12),
		RollSpeed:  f(16),
		PitchSpeed: f(20),
		YawSpeed:   f(24),
	}
}

// PackAttitude serializes an ATTITUDE payload (used by simulators).
func PackAttitude(a Attitude) []byte {
	p := make([]byte, 28)
	binary.LittleEndian.PutUint32(p[0:4], a.TimeBootMs)
	for i, v := range []float32{a.Roll, a.Pitch, a.Yaw, a.RollSpeed, a.PitchSpeed, a.YawSpeed} {
		binary.LittleEndian.PutUint32(p[4+i*4:], math.Float32bits(v))
	}
	return p
}

// VFRHUD is the head-up display summary.
type VFRHUD struct {
	Airspeed    float32
	GroundSpeed float32
	Alt         float32
	Climb       float32
	Heading     int16
	Throttle    uint16
}

// UnpackVFRHUD decodes a VFR_HUD payload.
func UnpackVFRHUD(payload []byte) VFRHUD {
	p := ExpandPayload(payload, MsgIDVFRHUD, 2)
	f := func(off int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(p[off:]))
	}
	return VFRHUD{
		Airspeed:    f(0),
		GroundSpeed: f(4),
		Alt:         f(8),
		Climb:       f(12),
		Heading:     int16(binary.LittleEndian.Uint16(p[16:18])),
		Throttle:    binary.LittleEndian.Uint16(p[18:20]),
	}
}

// PackVFRHUD serializes a VFR_HUD payload (used by simulators).
func PackVFRHUD(v VFRHUD) []byte {
	p := make([]byte, 20)
	binary.LittleEndian.PutUint32(p[0:4], math.Float32bits(v.Airspeed))
	binary.LittleEndian.PutUint32(p[4:8], math.Float32bits(v.GroundSpeed))
	binary.LittleEndian.PutUint32(p[8:12], math.Float32bits(v.Alt))
	binary.LittleEndian.PutUint32(p[12:16], math.Float32bits(v.Climb))
	binary.LittleEndian.PutUint16(p[16:18], uint16(v.Heading))
	binary.LittleEndian.PutUint16(p[18:20], v.Throttle)
	return p
}

// BatteryStatus is one battery's state. Voltage is millivolts per cell
// (0xffff marks an unused slot), current is centiamperes, Remaining is
// percent (-1 when unreported).
type BatteryStatus struct {
	CurrentConsumed int32
	Temperature     int16
	Voltages        [10]uint16
	CurrentBattery  int16
	ID              byte
	Remaining       int8
}

// UnpackBatteryStatus decodes a BATTERY_STATUS payload.
func UnpackBatteryStatus(payload []byte) BatteryStatus {
	p := ExpandPayload(payload, MsgIDBatteryStatus, 2)
	var b BatteryStatus
	b.CurrentConsumed = int32(binary.LittleEndian.Uint32(p[0:4]))
	b.Temperature = int16(binary.LittleEndian.Uint16(p[8:10]))
	for i := range b.Voltages {
		b.Voltages[i] = binary.LittleEndian.Uint16(p[10+i*2:])
	}
	b.CurrentBattery = int16(binary.LittleEndian.Uint16(p[30:32]))
	b.ID = p[32]
	b.Remaining = int8(p[35])
	return b
}

// PackBatteryStatus serializes a BATTERY_STATUS payload (used by
// simulators).
func PackBatteryStatus(b BatteryStatus) []byte {
	p := make([]byte, 36)
	binary.LittleEndian.PutUint32(p[0:4], uint32(b.CurrentConsumed))
	binary.LittleEndian.PutUint16(p[8:10], uint16(b.Temperature))
	for i, v := range b.Voltages {
		binary.LittleEndian.PutUint16(p[10+i*2:], v)
	}
	binary.LittleEndian.PutUint16(p[30:32], uint16(b.CurrentBattery))
	p[32] = b.ID
	p[35] = byte(b.Remaining)
	return p
}

// AutopilotVersion identifies the firmware build.
type AutopilotVersion struct {
	Capabilities    uint64
	UID             uint64
	FlightSWVersion uint32
	BoardVersion    uint32
	VendorID        uint16
	ProductID       uint16
}

// UnpackAutopilotVersion decodes an AUTOPILOT_VERSION payload.
func UnpackAutopilotVersion(payload []byte) AutopilotVersion {
	p := ExpandPayload(payload, MsgIDAutopilotVersion, 2)
	return AutopilotVersion{
		Capabilities:    binary.LittleEndian.Uint64(p[0:8]),
		UID:             binary.LittleEndian.Uint64(p[8:16]),
		FlightSWVersion: binary.LittleEndian.Uint32(p[16:20]),
		BoardVersion:    binary.LittleEndian.Uint32(p[28:32]),
		VendorID:        binary.LittleEndian.Uint16(p[32:34]),
		ProductID:       binary.LittleEndian.Uint16(p[34:36]),
	}
}

// UnpackMissionCurrent decodes a MISSION_CURRENT payload.
func UnpackMissionCurrent(payload []byte) uint16 {
	p := ExpandPayload(payload, MsgIDMissionCurrent, 2)
	return binary.LittleEndian.Uint16(p[0:2])
}

// CommandLong is a one-shot command with up to seven float parameters.
type CommandLong struct {
	Params       [7]float32
	Command      uint16
	TargetSys    byte
	TargetComp   byte
	Confirmation byte
}

// PackCommandLong serializes a COMMAND_LONG payload.
func PackCommandLong(c CommandLong) []byte {
	p := make([]byte, 33)
	for i, v := range c.Params {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(v))
	}
	binary.LittleEndian.PutUint16(p[28:30], c.Command)
	p[30] = c.TargetSys
	p[31] = c.TargetComp
	p[32] = c.Confirmation
	return p
}

// CommandAck is the device's reply to a COMMAND_LONG.
type CommandAck struct {
	Command uint16
	Result  byte
}

// UnpackCommandAck decodes a COMMAND_ACK payload.
func UnpackCommandAck(payload []byte) CommandAck {
	p := ExpandPayload(payload, MsgIDCommandAck, 2)
	return CommandAck{
		Command: binary.LittleEndian.Uint16(p[0:2]),
		Result:  p[2],
	}
}
