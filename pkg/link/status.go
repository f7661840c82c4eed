package link

import (
	"time"

	"gclink/pkg/mavlink"
	"gclink/pkg/msp"
)

const baseModeArmed = 0x80

// Telemetry is the loop-owned running view of the vehicle, refreshed
// from inbound frames while the session is connected.
type Telemetry struct {
	LastHeartbeat time.Time
	VehicleType   byte
	Autopilot     byte
	BaseMode      byte
	CustomMode    uint32
	SystemStatus  byte
	Armed         bool

	LastStatusSeverity byte
	LastStatusText     string

	GPS      mavlink.GPSRawInt
	Attitude mavlink.Attitude
	HUD      mavlink.VFRHUD
	Battery  mavlink.BatteryStatus
	HasGPS   bool
	HasHUD   bool
	HasBatt  bool
}

func (t *Telemetry) update(f *mavlink.Frame) {
	switch f.MsgID {
	case mavlink.MsgIDHeartbeat:
		hb := mavlink.UnpackHeartbeat(f.Payload)
		t.LastHeartbeat = time.Now()
		t.VehicleType = hb.Type
		t.Autopilot = hb.Autopilot
		t.BaseMode = hb.BaseMode
		t.CustomMode = hb.CustomMode
		t.SystemStatus = hb.SystemStatus
		t.Armed = hb.BaseMode&baseModeArmed != 0
	case mavlink.MsgIDStatustext:
		t.LastStatusSeverity, t.LastStatusText = mavlink.UnpackStatustext(f.Payload)
	case mavlink.MsgIDGPSRawInt:
		t.GPS = mavlink.UnpackGPSRawInt(f.Payload)
		t.HasGPS = true
	case mavlink.MsgIDAttitude:
		t.Attitude = mavlink.UnpackAttitude(f.Payload)
	case mavlink.MsgIDVFRHUD:
		t.HUD = mavlink.UnpackVFRHUD(f.Payload)
		t.HasHUD = true
	case mavlink.MsgIDBatteryStatus:
		t.Battery = mavlink.UnpackBatteryStatus(f.Payload)
		t.HasBatt = true
	}
}

// Status is an externally readable snapshot of the session.
type Status struct {
	State       State
	Protocol    Protocol
	PeerSystem  byte
	PeerComp    byte
	Frames      uint64
	LostFrames  uint64
	LastError   error
	Telemetry   Telemetry
	MspIdentity msp.Identity
}

// publishStatus refreshes the snapshot. Runs on the loop.
func (s *Session) publishStatus() {
	s.statusMu.Lock()
	s.status = Status{
		State:       s.state,
		Protocol:    s.proto,
		PeerSystem:  s.peerSys,
		PeerComp:    s.peerComp,
		Frames:      s.frames,
		LostFrames:  s.lost,
		Telemetry:   s.telemetry,
		MspIdentity: s.identity,
		LastError:   s.lastErr,
	}
	s.statusMu.Unlock()
}

// Status returns the latest published snapshot. Callable from any
// goroutine; counters refresh on state transitions and on demand below.
func (s *Session) Status() Status {
	// Best effort refresh: when the loop is alive, fold in the live
	// counters before reading the snapshot.
	done := make(chan struct{})
	if s.loop.Post(func() { s.publishStatus(); close(done) }) == nil {
		<-done
	}
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.status
}

// requestIdentity queues the MSP identification queries once the device
// is confirmed to speak MSP. Runs on the loop.
func (s *Session) requestIdentity() {
	for _, cmd := range []byte{
		msp.CmdAPIVersion, msp.CmdFCVariant, msp.CmdFCVersion, msp.CmdBoardInfo,
	} {
		raw, err := msp.EncodeRequest(cmd, nil)
		if err != nil {
			continue
		}
		if err := s.tr.Write(raw); err != nil {
			return
		}
	}
}

// updateIdentity folds one identification response into the identity
// record. Malformed payloads are skipped, not fatal.
func (s *Session) updateIdentity(f *msp.Frame) {
	if f.Err {
		return
	}
	switch f.Cmd {
	case msp.CmdAPIVersion:
		if v, err := msp.DecodeAPIVersion(f.Payload); err == nil {
			s.identity.APIVersion = v
		}
	case msp.CmdFCVariant:
		if v, err := msp.DecodeFCVariant(f.Payload); err == nil {
			s.identity.Variant = v
		}
	case msp.CmdFCVersion:
		if v, err := msp.DecodeFCVersion(f.Payload); err == nil {
			s.identity.Version = v
		}
	case msp.CmdBoardInfo:
		if v, err := msp.DecodeBoardInfo(f.Payload); err == nil {
			s.identity.BoardID = v
		}
	}
}

// OnMspResponse registers a waiter for responses to cmd. With oneshot
// set the waiter is removed after its first match. Must be called from
// the loop.
func (s *Session) OnMspResponse(cmd byte, oneshot bool, fn func(*msp.Frame)) func() {
	w := &mspWaiter{cmd: cmd, fn: fn, oneshot: oneshot}
	s.mspWaiters = append(s.mspWaiters, w)
	return func() { w.removed = true }
}

// compactMspWaiters drops removed waiters. Runs on the loop after
// dispatch so removal during a callback stays safe.
func (s *Session) compactMspWaiters() {
	kept := s.mspWaiters[:0]
	for _, w := range s.mspWaiters {
		if !w.removed {
			kept = append(kept, w)
		}
	}
	s.mspWaiters = kept
}
