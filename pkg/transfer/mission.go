package transfer

import (
	"gclink/pkg/errors"
	"gclink/pkg/eventloop"
	"gclink/pkg/mavlink"
)

type missionDir int

const (
	missionDownload missionDir = iota
	missionUpload
	missionClear
)

// missionRetryMax bounds how often a stalled download re-issues its
// pending request before giving up. Uploads are device-paced, so they
// get no retries on our side.
const missionRetryMax = 3

// missionJob is one mission-family transfer. The mission, fence and
// rally kinds share the wire messages, so only one of them runs at a
// time; the kind is carried in the mission-type selector byte.
type missionJob struct {
	e      *Engine
	kind   Kind
	dir    missionDir
	layout mavlink.PayloadLayout
	timer  *eventloop.Timer

	counted  bool
	expected int
	next     int
	retries  int
	items    []mavlink.MissionItem

	pendingClear bool

	onProgress func(Progress)
	done       func([]mavlink.MissionItem, error)

	finished bool
}

func (j *missionJob) received() int {
	if j.dir == missionUpload {
		return j.next
	}
	return len(j.items)
}

// withType reports whether outgoing mission-family payloads carry the
// mission-type selector byte. Fence and rally plans always need it;
// plain mission transfers include it only on v2 links.
func (e *Engine) withType(kind Kind) bool {
	if kind != KindMission {
		return true
	}
	return e.l.Version() == 2
}

// DownloadMission pulls the full plan of the given kind: request the
// count, then each item by index, then acknowledge. Callbacks run on
// the session loop.
func (e *Engine) DownloadMission(kind Kind, onProgress func(Progress), done func([]mavlink.MissionItem, error)) {
	err := e.l.Loop().Post(func() {
		if e.mission != nil {
			done(nil, errors.TransferBusyError(kind.String()))
			return
		}
		j := &missionJob{e: e, kind: kind, dir: missionDownload, onProgress: onProgress, done: done}
		j.layout = e.quirk.layoutFor(e.l.Version())
		e.mission = j
		sys, comp := e.l.PeerIDs()
		if err := e.l.Send(mavlink.MsgIDMissionRequestList,
			mavlink.PackMissionRequestList(sys, comp, kind.missionType(), e.withType(kind))); err != nil {
			j.fail(err)
			return
		}
		e.armTimer(&j.timer, e.missionTimeout, j.timeout)
	})
	if err != nil {
		done(nil, cancelError(kind, 0, 0))
	}
}

// UploadMission pushes items as the new plan of the given kind. The
// device drives the pace by requesting each index; the final ack is the
// commit. Callback runs on the session loop.
func (e *Engine) UploadMission(kind Kind, items []mavlink.MissionItem, onProgress func(Progress), done func(error)) {
	err := e.l.Loop().Post(func() {
		if e.mission != nil {
			done(errors.TransferBusyError(kind.String()))
			return
		}
		j := &missionJob{
			e: e, kind: kind, dir: missionUpload,
			items: items, expected: len(items), counted: true,
			onProgress: onProgress,
			done:       func(_ []mavlink.MissionItem, err error) { done(err) },
		}
		j.layout = e.quirk.layoutFor(e.l.Version())
		e.mission = j
		sys, comp := e.l.PeerIDs()
		count := mavlink.MissionCount{
			Count: uint16(len(items)), TargetSys: sys, TargetComp: comp,
			MissionType: kind.missionType(),
		}
		if err := e.l.Send(mavlink.MsgIDMissionCount,
			mavlink.PackMissionCount(count, j.layout, e.withType(kind))); err != nil {
			j.fail(err)
			return
		}
		e.armTimer(&j.timer, e.missionTimeout, j.timeout)
	})
	if err != nil {
		done(cancelError(kind, len(items), 0))
	}
}

// ClearMission erases the stored plan of the given kind. There is no
// count phase; the device answers the clear request with a single ack.
// Callback runs on the session loop.
func (e *Engine) ClearMission(kind Kind, done func(error)) {
	err := e.l.Loop().Post(func() {
		if e.mission != nil {
			done(errors.TransferBusyError(kind.String()))
			return
		}
		j := &missionJob{
			e: e, kind: kind, dir: missionClear, pendingClear: true,
			done: func(_ []mavlink.MissionItem, err error) { done(err) },
		}
		e.mission = j
		sys, comp := e.l.PeerIDs()
		if err := e.l.Send(mavlink.MsgIDMissionClearAll,
			mavlink.PackMissionClearAll(sys, comp, kind.missionType(), e.withType(kind))); err != nil {
			j.fail(err)
			return
		}
		e.armTimer(&j.timer, e.missionTimeout, j.timeout)
	})
	if err != nil {
		done(cancelError(kind, 0, 0))
	}
}

// CancelMission aborts the active mission-family job, telling the
// device the operation was cancelled.
func (e *Engine) CancelMission() {
	e.l.Loop().Post(func() {
		j := e.mission
		if j == nil {
			return
		}
		j.sendAck(mavlink.MissionOperationCancelled)
		j.fail(cancelError(j.kind, j.expected, j.received()))
	})
}

// onMissionCount starts the item request loop of a download.
func (e *Engine) onMissionCount(f *mavlink.Frame) {
	j := e.mission
	if j == nil || j.dir != missionDownload || j.counted {
		return
	}
	c, layout := e.resolveCountLayout(f.Payload)
	j.layout = layout
	j.counted = true
	j.retries = 0
	j.expected = int(c.Count)
	e.lg.Info("%s download: %d items (%s layout)", j.kind, j.expected, layoutName(layout))

	if j.expected == 0 {
		j.sendAck(mavlink.MissionAccepted)
		j.finish(func() { j.done(nil, nil) })
		return
	}
	j.requestNext()
}

// requestNext asks for the item at j.next.
func (j *missionJob) requestNext() {
	sys, comp := j.e.l.PeerIDs()
	req := mavlink.MissionRequest{
		Seq: uint16(j.next), TargetSys: sys, TargetComp: comp,
		MissionType: j.kind.missionType(),
	}
	if err := j.e.l.Send(mavlink.MsgIDMissionRequest,
		mavlink.PackMissionRequest(req, j.layout, j.e.withType(j.kind))); err != nil {
		j.fail(err)
		return
	}
	j.e.armTimer(&j.timer, j.e.missionTimeout, j.timeout)
}

// onMissionItem accepts the next expected item of a download.
func (e *Engine) onMissionItem(f *mavlink.Frame) {
	j := e.mission
	if j == nil || j.dir != missionDownload || !j.counted {
		return
	}
	it := mavlink.UnpackMissionItem(f.Payload, j.layout)
	if int(it.Seq) != j.next {
		// Duplicate or stale retransmission; the request loop stays
		// positioned on j.next.
		return
	}
	j.items = append(j.items, it)
	j.next++
	j.retries = 0
	if j.onProgress != nil {
		j.onProgress(Progress{Kind: j.kind, Received: len(j.items), Expected: j.expected})
	}
	if j.next >= j.expected {
		j.sendAck(mavlink.MissionAccepted)
		items := j.items
		j.finish(func() { j.done(items, nil) })
		return
	}
	j.requestNext()
}

// onMissionRequest serves one item of an upload.
func (e *Engine) onMissionRequest(f *mavlink.Frame) {
	j := e.mission
	if j == nil || j.dir != missionUpload {
		return
	}
	r, layout := e.resolveRequestLayout(f.Payload, len(j.items), j.layout)
	j.layout = layout
	if int(r.Seq) >= len(j.items) {
		return
	}
	it := j.items[r.Seq]
	sys, comp := e.l.PeerIDs()
	it.TargetSys, it.TargetComp = sys, comp
	it.MissionType = j.kind.missionType()
	if err := e.l.Send(mavlink.MsgIDMissionItem,
		mavlink.PackMissionItem(it, j.layout, e.withType(j.kind))); err != nil {
		j.fail(err)
		return
	}
	if int(r.Seq)+1 > j.next {
		j.next = int(r.Seq) + 1
	}
	if j.onProgress != nil {
		j.onProgress(Progress{Kind: j.kind, Received: j.next, Expected: j.expected})
	}
	e.armTimer(&j.timer, e.missionTimeout, j.timeout)
}

// onMissionAck terminates uploads and clears, and surfaces mid-transfer
// rejections of downloads.
func (e *Engine) onMissionAck(f *mavlink.Frame) {
	j := e.mission
	if j == nil {
		return
	}
	a := mavlink.UnpackMissionAck(f.Payload)

	switch j.dir {
	case missionClear, missionUpload:
		if a.Result == mavlink.MissionAccepted {
			j.finish(func() { j.done(nil, nil) })
		} else {
			j.fail(errors.TransferRejectedError(j.kind.String(),
				mavlink.MissionResultString(a.Result)))
		}
	case missionDownload:
		if a.Result != mavlink.MissionAccepted {
			j.fail(errors.TransferRejectedError(j.kind.String(),
				mavlink.MissionResultString(a.Result)).
				SetCounts(j.expected, len(j.items)))
		}
	}
}

// sendAck tells the device how the transfer ended on our side.
func (j *missionJob) sendAck(result byte) {
	sys, comp := j.e.l.PeerIDs()
	ack := mavlink.MissionAck{
		TargetSys: sys, TargetComp: comp, Result: result,
		MissionType: j.kind.missionType(),
	}
	j.e.l.Send(mavlink.MsgIDMissionAck,
		mavlink.PackMissionAck(ack, j.e.withType(j.kind)))
}

// timeout fires when the exchange stalls. Downloads re-issue the pending
// request a few times; the device may simply have dropped it.
func (j *missionJob) timeout() {
	if j.dir == missionDownload && j.retries < missionRetryMax {
		j.retries++
		j.e.lg.Debug("%s download stalled, retry %d/%d", j.kind, j.retries, missionRetryMax)
		if j.counted {
			j.requestNext()
			return
		}
		sys, comp := j.e.l.PeerIDs()
		if err := j.e.l.Send(mavlink.MsgIDMissionRequestList,
			mavlink.PackMissionRequestList(sys, comp, j.kind.missionType(), j.e.withType(j.kind))); err != nil {
			j.fail(err)
			return
		}
		j.e.armTimer(&j.timer, j.e.missionTimeout, j.timeout)
		return
	}
	j.fail(errors.TransferTimeoutError(j.kind.String(), j.expected, j.received()))
}

// finish runs the terminal callback exactly once and releases the slot.
func (j *missionJob) finish(deliver func()) {
	if j.finished {
		return
	}
	j.finished = true
	if j.timer != nil {
		j.timer.Stop()
	}
	j.e.mission = nil
	deliver()
}

func (j *missionJob) fail(err error) {
	j.finish(func() { j.done(nil, err) })
}
