// Package link owns the active transport session: protocol/version
// detection via the heartbeat/probe policy, inbound frame routing, and
// outbound serialization at the captured wire version.
//
// All session state is mutated on a single eventloop; transports post
// their chunks and events there, so frame handling is strictly ordered
// with no concurrent interleaving.
package link

import (
	"sync"
	"time"

	"gclink/pkg/errors"
	"gclink/pkg/eventloop"
	"gclink/pkg/log"
	"gclink/pkg/mavlink"
	"gclink/pkg/msp"
	"gclink/pkg/transport"
)

// Protocol identifies the detected wire protocol.
type Protocol int

const (
	ProtocolNone Protocol = iota
	ProtocolMavlinkV1
	ProtocolMavlinkV2
	ProtocolMSP
)

// String returns the protocol name.
func (p Protocol) String() string {
	switch p {
	case ProtocolMavlinkV1:
		return "mavlink-v1"
	case ProtocolMavlinkV2:
		return "mavlink-v2"
	case ProtocolMSP:
		return "msp"
	default:
		return "none"
	}
}

// State is the session lifecycle state.
type State int

const (
	StateOpening State = iota
	StateAwaitingHeartbeat
	StateConnectedMavlink
	StateConnectedMsp
	StateFailed
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateAwaitingHeartbeat:
		return "awaiting-heartbeat"
	case StateConnectedMavlink:
		return "connected-mavlink"
	case StateConnectedMsp:
		return "connected-msp"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Options configures a session.
type Options struct {
	// Transport is the byte duplex, exclusively owned by the session.
	Transport transport.Transport

	// ForceProtocol pins the protocol and skips detection.
	// ProtocolNone enables autodetection.
	ForceProtocol Protocol

	// HeartbeatGrace is how long to wait for a MAVLink heartbeat before
	// probing MSP (default 4s).
	HeartbeatGrace time.Duration

	// ProbeWindow is how long the MSP probe phase may run before the
	// session fails (default 2s).
	ProbeWindow time.Duration

	// ProbeInterval spaces the repeated MSP probe queries (default 500ms).
	ProbeInterval time.Duration

	// SystemID / ComponentID are our own MAVLink identity
	// (defaults 255 / 190, the conventional GCS ids).
	SystemID    byte
	ComponentID byte

	// Logger for session events. A default is created when nil.
	Logger *log.Logger

	// OnStateChange observes lifecycle transitions (called on the loop).
	OnStateChange func(State, error)

	// OnFrame taps every inbound MAVLink frame after routing.
	OnFrame func(*mavlink.Frame)

	// OnMspFrame taps every inbound MSP response frame.
	OnMspFrame func(*msp.Frame)
}

func (o *Options) defaults() {
	if o.HeartbeatGrace == 0 {
		o.HeartbeatGrace = 4 * time.Second
	}
	if o.ProbeWindow == 0 {
		o.ProbeWindow = 2 * time.Second
	}
	if o.ProbeInterval == 0 {
		o.ProbeInterval = 500 * time.Millisecond
	}
	if o.SystemID == 0 {
		o.SystemID = 255
	}
	if o.ComponentID == 0 {
		o.ComponentID = 190
	}
	if o.Logger == nil {
		o.Logger = log.New("link")
	}
}

// Session is the single active connection.
type Session struct {
	opts Options
	loop *eventloop.Loop
	tr   transport.Transport
	lg   *log.Logger

	// Loop-owned state. External readers go through the status mutex.
	state    State
	proto    Protocol
	peerSys  byte
	peerComp byte
	seq      byte
	lastSeq  int // -1 until first frame
	lost     uint64
	frames   uint64
	lastErr  error

	mavScan *mavlink.Scanner
	mspScan *msp.Scanner

	graceTimer *eventloop.Timer
	probeTimer *eventloop.Timer
	probeUntil time.Time

	handlers   map[uint32][]*handlerReg
	mspWaiters []*mspWaiter
	closeHooks []func(error)

	identity  msp.Identity
	telemetry Telemetry

	statusMu sync.Mutex
	status   Status
}

type handlerReg struct {
	fn      func(*mavlink.Frame)
	removed bool
}

type mspWaiter struct {
	cmd     byte
	fn      func(*msp.Frame)
	oneshot bool
	removed bool
}

// NewSession creates a session over tr. The transport must be unopened;
// the session opens and owns it from Start to Close.
func NewSession(opts Options) *Session {
	opts.defaults()
	return &Session{
		opts:     opts,
		loop:     eventloop.New(),
		tr:       opts.Transport,
		lg:       opts.Logger,
		state:    StateOpening,
		lastSeq:  -1,
		mavScan:  mavlink.NewScanner(),
		mspScan:  msp.NewScanner(),
		handlers: make(map[uint32][]*handlerReg),
	}
}

// Loop exposes the session's event loop so collaborators (the transfer
// engine) schedule their work on the same thread of control.
func (s *Session) Loop() *eventloop.Loop { return s.loop }

// Start opens the transport and begins protocol detection.
func (s *Session) Start() error {
	s.loop.Start()

	ev := transport.Events{
		Data: func(chunk []byte) {
			s.loop.Post(func() { s.handleChunk(chunk) })
		},
		Error: func(err error) {
			s.loop.Post(func() { s.down(StateFailed, errors.TransportError("read", err)) })
		},
		Closed: func() {
			s.loop.Post(func() { s.down(StateClosed, nil) })
		},
	}
	if err := s.tr.Open(ev); err != nil {
		s.loop.Stop()
		return errors.Wrap(err, errors.ErrTransportOpen, "open transport")
	}

	s.loop.Post(s.beginDetection)
	return nil
}

// beginDetection runs on the loop right after transport open.
func (s *Session) beginDetection() {
	switch s.opts.ForceProtocol {
	case ProtocolMSP:
		s.lg.Info("protocol pinned to MSP, probing")
		s.setState(StateAwaitingHeartbeat, nil)
		s.startProbing()
	case ProtocolMavlinkV1, ProtocolMavlinkV2:
		// Pinned MAVLink: usable immediately, but a dead line must
		// still fail once the grace period passes without traffic.
		s.proto = s.opts.ForceProtocol
		s.setState(StateConnectedMavlink, nil)
		s.peerSys, s.peerComp = 1, 1
		s.graceTimer = s.loop.AfterFunc(s.opts.HeartbeatGrace, s.graceExpired)
	default:
		s.setState(StateAwaitingHeartbeat, nil)
		s.graceTimer = s.loop.AfterFunc(s.opts.HeartbeatGrace, s.graceExpired)
	}
}

// graceExpired fires when no heartbeat arrived in time.
func (s *Session) graceExpired() {
	if s.state == StateConnectedMavlink && s.frames > 0 {
		return // pinned session saw traffic
	}
	if s.state != StateAwaitingHeartbeat && s.state != StateConnectedMavlink {
		return
	}
	if s.opts.ForceProtocol == ProtocolMavlinkV1 || s.opts.ForceProtocol == ProtocolMavlinkV2 {
		s.down(StateFailed, errors.DetectTimeoutError(s.opts.HeartbeatGrace.String()))
		return
	}
	s.lg.Info("no heartbeat within %s, probing MSP", s.opts.HeartbeatGrace)
	s.startProbing()
}

// startProbing sends the MSP identification queries until a response
// arrives or the probe window closes.
func (s *Session) startProbing() {
	s.probeUntil = time.Now().Add(s.opts.ProbeWindow)
	s.sendProbe()
}

func (s *Session) sendProbe() {
	if s.state != StateAwaitingHeartbeat {
		return
	}
	if time.Now().After(s.probeUntil) {
		s.down(StateFailed, errors.DetectTimeoutError(
			(s.opts.HeartbeatGrace + s.opts.ProbeWindow).String()))
		return
	}
	for _, cmd := range msp.ProbeCommands {
		raw, err := msp.EncodeRequest(cmd, nil)
		if err != nil {
			continue
		}
		if err := s.tr.Write(raw); err != nil {
			s.down(StateFailed, errors.TransportError("write", err))
			return
		}
	}
	s.probeTimer = s.loop.AfterFunc(s.opts.ProbeInterval, s.sendProbe)
}

// handleChunk feeds one received chunk through the scanners.
func (s *Session) handleChunk(chunk []byte) {
	switch s.state {
	case StateAwaitingHeartbeat:
		// Detection phase: both protocols are candidates.
		if s.opts.ForceProtocol != ProtocolMSP {
			for _, f := range s.mavScan.Push(chunk) {
				s.handleMavlinkFrame(f)
			}
		}
		for _, f := range s.mspScan.Push(chunk) {
			s.handleMspFrame(f)
		}
	case StateConnectedMavlink:
		for _, f := range s.mavScan.Push(chunk) {
			s.handleMavlinkFrame(f)
		}
	case StateConnectedMsp:
		for _, f := range s.mspScan.Push(chunk) {
			s.handleMspFrame(f)
		}
	}
}

// handleMavlinkFrame routes one validated MAVLink frame.
func (s *Session) handleMavlinkFrame(f *mavlink.Frame) {
	s.frames++
	s.trackLoss(f.Seq)

	if f.MsgID == mavlink.MsgIDHeartbeat && f.CompID != s.opts.ComponentID {
		s.sawHeartbeat(f)
	}
	if s.state != StateConnectedMavlink {
		return
	}

	s.telemetry.update(f)

	for _, reg := range s.handlers[f.MsgID] {
		if !reg.removed {
			reg.fn(f)
		}
	}
	if s.opts.OnFrame != nil {
		s.opts.OnFrame(f)
	}
}

// sawHeartbeat captures peer identity and wire version. The version is
// inferred from which framing produced the message, not from a payload
// field.
func (s *Session) sawHeartbeat(f *mavlink.Frame) {
	if s.state == StateAwaitingHeartbeat {
		if f.Version == 2 {
			s.proto = ProtocolMavlinkV2
		} else {
			s.proto = ProtocolMavlinkV1
		}
		s.peerSys, s.peerComp = f.SysID, f.CompID
		s.stopDetectTimers()
		s.lg.Info("heartbeat from %d/%d, %s", f.SysID, f.CompID, s.proto)
		s.setState(StateConnectedMavlink, nil)
		return
	}
	// Refresh peer identity on a pinned or established session.
	s.peerSys, s.peerComp = f.SysID, f.CompID
}

// handleMspFrame routes one validated MSP response frame.
func (s *Session) handleMspFrame(f *msp.Frame) {
	if s.state == StateAwaitingHeartbeat {
		s.stopDetectTimers()
		s.proto = ProtocolMSP
		s.lg.Info("MSP response (cmd %d), device speaks MSP", f.Cmd)
		s.setState(StateConnectedMsp, nil)
		s.requestIdentity()
	}
	if s.state != StateConnectedMsp {
		return
	}

	s.updateIdentity(f)
	for _, w := range s.mspWaiters {
		if !w.removed && w.cmd == f.Cmd {
			if w.oneshot {
				w.removed = true
			}
			w.fn(f)
		}
	}
	s.compactMspWaiters()
	if s.opts.OnMspFrame != nil {
		s.opts.OnMspFrame(f)
	}
}

// trackLoss uses the mod-256 sequence counter for loss statistics only.
func (s *Session) trackLoss(seq byte) {
	if s.lastSeq >= 0 {
		expect := byte(s.lastSeq + 1)
		if seq != expect {
			s.lost += uint64(seq - expect)
		}
	}
	s.lastSeq = int(seq)
}

// stopDetectTimers cancels the grace and probe timers synchronously.
func (s *Session) stopDetectTimers() {
	if s.graceTimer != nil {
		s.graceTimer.Stop()
		s.graceTimer = nil
	}
	if s.probeTimer != nil {
		s.probeTimer.Stop()
		s.probeTimer = nil
	}
}

// SendMessage serializes and writes one MAVLink message at the captured
// wire version. Callable from any goroutine except the session loop;
// loop-resident collaborators use Send directly.
func (s *Session) SendMessage(msgID uint32, payload []byte) error {
	done := make(chan error, 1)
	err := s.loop.Post(func() { done <- s.Send(msgID, payload) })
	if err != nil {
		return errors.New(errors.ErrSessionClosed, "session loop stopped")
	}
	return <-done
}

// Send is the loop-side form of SendMessage. Must be called from the
// loop.
func (s *Session) Send(msgID uint32, payload []byte) error {
	if s.state != StateConnectedMavlink {
		return errors.SessionStateError("send mavlink", s.state.String())
	}
	version := 1
	if s.proto == ProtocolMavlinkV2 {
		version = 2
	}
	raw, err := mavlink.Encode(&mavlink.Frame{
		Version: version,
		Seq:     s.seq,
		SysID:   s.opts.SystemID,
		CompID:  s.opts.ComponentID,
		MsgID:   msgID,
		Payload: payload,
	})
	if err != nil {
		return err
	}
	s.seq++
	if err := s.tr.Write(raw); err != nil {
		s.down(StateFailed, errors.TransportError("write", err))
		return errors.TransportError("write", err)
	}
	return nil
}

// SendRaw writes pre-encoded bytes to the transport unchanged.
func (s *Session) SendRaw(raw []byte) error {
	done := make(chan error, 1)
	err := s.loop.Post(func() {
		if s.state == StateClosed || s.state == StateFailed {
			done <- errors.SessionStateError("send raw", s.state.String())
			return
		}
		done <- s.tr.Write(raw)
	})
	if err != nil {
		return errors.New(errors.ErrSessionClosed, "session loop stopped")
	}
	return <-done
}

// SendMsp writes one MSP request. Callable from any goroutine.
func (s *Session) SendMsp(cmd byte, payload []byte) error {
	done := make(chan error, 1)
	err := s.loop.Post(func() {
		if s.state != StateConnectedMsp {
			done <- errors.SessionStateError("send msp", s.state.String())
			return
		}
		raw, err := msp.EncodeRequest(cmd, payload)
		if err != nil {
			done <- err
			return
		}
		done <- s.tr.Write(raw)
	})
	if err != nil {
		return errors.New(errors.ErrSessionClosed, "session loop stopped")
	}
	return <-done
}

// RegisterHandler subscribes fn to inbound frames with the given message
// id. Must be called from the loop. The returned function removes the
// subscription.
func (s *Session) RegisterHandler(msgID uint32, fn func(*mavlink.Frame)) func() {
	reg := &handlerReg{fn: fn}
	s.handlers[msgID] = append(s.handlers[msgID], reg)
	return func() {
		reg.removed = true
		regs := s.handlers[msgID]
		for i, r := range regs {
			if r == reg {
				s.handlers[msgID] = append(regs[:i], regs[i+1:]...)
				break
			}
		}
	}
}

// OnClose registers a teardown hook, called on the loop exactly once
// when the session goes down. Must be called from the loop.
func (s *Session) OnClose(fn func(error)) {
	s.closeHooks = append(s.closeHooks, fn)
}

// Version returns the negotiated MAVLink wire version (1 or 2), or 0.
func (s *Session) Version() int {
	switch s.proto {
	case ProtocolMavlinkV1:
		return 1
	case ProtocolMavlinkV2:
		return 2
	default:
		return 0
	}
}

// LocalIDs returns our own system/component identity.
func (s *Session) LocalIDs() (byte, byte) {
	return s.opts.SystemID, s.opts.ComponentID
}

// PeerIDs returns the captured peer identity.
func (s *Session) PeerIDs() (byte, byte) {
	return s.peerSys, s.peerComp
}

// setState applies a state transition and publishes it.
func (s *Session) setState(st State, err error) {
	s.state = st
	if err != nil {
		s.lastErr = err
	}
	s.publishStatus()
	if s.opts.OnStateChange != nil {
		s.opts.OnStateChange(st, err)
	}
}

// down tears the session down from the loop: timers first, then the
// close hooks (which fail in-flight transfer jobs), then the transport.
func (s *Session) down(st State, err error) {
	if s.state == StateClosed || s.state == StateFailed {
		return
	}
	s.stopDetectTimers()
	hooks := s.closeHooks
	s.closeHooks = nil
	for _, h := range hooks {
		h(err)
	}
	s.mavScan.Reset()
	s.mspScan.Reset()
	if err != nil {
		s.lg.WithError(err).Error("session down")
	} else {
		s.lg.Info("session closed")
	}
	s.setState(st, err)
	go s.tr.Close()
}

// Close shuts the session down from outside the loop and waits for the
// loop to stop. The transport's settle delay (if any) is honored by the
// Manager on reconnect, not here.
func (s *Session) Close() {
	done := make(chan struct{})
	err := s.loop.Post(func() {
		s.down(StateClosed, nil)
		close(done)
	})
	if err == nil {
		<-done
	}
	s.tr.Close()
	s.loop.Stop()
}
