// Package transfer implements the bulk transfer engine: parameter
// downloads, parameter writes, and mission/fence/rally plan transfers
// over an established MAVLink session.
//
// Every transfer runs as a job on the session's event loop. Progress is
// reported per received item and each job invokes exactly one terminal
// callback. A failing job never takes the session down; only transport
// errors do that.
package transfer

import (
	"time"

	"gclink/pkg/eventloop"
	"gclink/pkg/log"
	"gclink/pkg/mavlink"
)

// Kind identifies a transfer job family.
type Kind int

const (
	KindParams Kind = iota
	KindMission
	KindFence
	KindRally
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindParams:
		return "params"
	case KindMission:
		return "mission"
	case KindFence:
		return "fence"
	case KindRally:
		return "rally"
	default:
		return "unknown"
	}
}

// missionType maps the kind onto the MAV_MISSION_TYPE selector.
func (k Kind) missionType() byte {
	switch k {
	case KindFence:
		return mavlink.MissionTypeFence
	case KindRally:
		return mavlink.MissionTypeRally
	default:
		return mavlink.MissionTypeMission
	}
}

// Progress is one per-item progress report.
type Progress struct {
	Kind     Kind
	Received int
	Expected int
}

// Link is the slice of the session the engine depends on.
type Link interface {
	Loop() *eventloop.Loop
	Send(msgID uint32, payload []byte) error
	Version() int
	LocalIDs() (byte, byte)
	PeerIDs() (byte, byte)
	RegisterHandler(msgID uint32, fn func(*mavlink.Frame)) func()
	OnClose(fn func(error))
}

const (
	// missionInactivity bounds the gap between mission-family messages.
	missionInactivity = 3 * time.Second

	// paramInactivity bounds the gap between PARAM_VALUE messages. The
	// parameter stream has no completion handshake, so this is also the
	// only way a stalled download ends.
	paramInactivity = 5 * time.Second
)

// Engine runs bulk transfers over one session. All mutable state is
// owned by the session's event loop.
type Engine struct {
	l  Link
	lg *log.Logger

	missionTimeout time.Duration
	paramTimeout   time.Duration

	quirk quirkState

	param   *paramJob
	mission *missionJob

	unsubs []func()
}

// NewEngine creates an engine bound to l. Attach must be called before
// starting jobs.
func NewEngine(l Link, lg *log.Logger) *Engine {
	if lg == nil {
		lg = log.New("transfer")
	}
	return &Engine{
		l:              l,
		lg:             lg,
		missionTimeout: missionInactivity,
		paramTimeout:   paramInactivity,
	}
}

// Attach subscribes the engine to the transfer message ids and the
// session close hook. Runs on the loop.
func (e *Engine) Attach() error {
	return e.l.Loop().Post(func() {
		e.unsubs = append(e.unsubs,
			e.l.RegisterHandler(mavlink.MsgIDParamValue, e.onParamValue),
			e.l.RegisterHandler(mavlink.MsgIDMissionCount, e.onMissionCount),
			e.l.RegisterHandler(mavlink.MsgIDMissionRequest, e.onMissionRequest),
			e.l.RegisterHandler(mavlink.MsgIDMissionRequestInt, e.onMissionRequest),
			e.l.RegisterHandler(mavlink.MsgIDMissionItem, e.onMissionItem),
			e.l.RegisterHandler(mavlink.MsgIDMissionAck, e.onMissionAck),
		)
		e.l.OnClose(e.onSessionDown)
	})
}

// Detach removes the engine's subscriptions. Runs on the loop.
func (e *Engine) Detach() {
	e.l.Loop().Post(func() {
		for _, u := range e.unsubs {
			u()
		}
		e.unsubs = nil
	})
}

// onSessionDown fails every in-flight job when the session goes away.
func (e *Engine) onSessionDown(error) {
	if e.param != nil {
		e.param.fail(cancelError(KindParams, e.param.expected, len(e.param.byIndex)))
	}
	if e.mission != nil {
		j := e.mission
		j.fail(cancelError(j.kind, j.expected, j.received()))
	}
}

// armTimer (re)arms a job inactivity timer.
func (e *Engine) armTimer(t **eventloop.Timer, d time.Duration, fn func()) {
	if *t != nil {
		(*t).Stop()
	}
	*t = e.l.Loop().AfterFunc(d, fn)
}
