package transfer

import (
	"sort"

	"gclink/pkg/errors"
	"gclink/pkg/eventloop"
	"gclink/pkg/mavlink"
)

// unsequencedIndex marks PARAM_VALUE messages outside the bulk stream
// (e.g. the echo after a PARAM_SET).
const unsequencedIndex = 0xffff

// paramJob is either a full parameter download or a single PARAM_SET
// round trip. Both occupy the params kind.
type paramJob struct {
	e        *Engine
	timer    *eventloop.Timer
	byIndex  map[uint16]mavlink.ParamValue
	expected int

	onProgress func(Progress)
	done       func([]mavlink.ParamValue, error)

	// echoID/echoDone serve the single-parameter jobs (set, read): the
	// job completes on the PARAM_VALUE whose name matches.
	echoID   string
	echoDone func(mavlink.ParamValue, error)

	finished bool
}

// DownloadParams starts a full parameter download. The stream is
// self-terminating: each PARAM_VALUE carries the total count and its own
// index, and completion is reached when every index has been seen.
// Callbacks run on the session loop.
func (e *Engine) DownloadParams(onProgress func(Progress), done func([]mavlink.ParamValue, error)) {
	err := e.l.Loop().Post(func() {
		if e.param != nil {
			done(nil, errors.TransferBusyError(KindParams.String()))
			return
		}
		j := &paramJob{
			e:          e,
			byIndex:    make(map[uint16]mavlink.ParamValue),
			onProgress: onProgress,
			done:       done,
		}
		e.param = j
		sys, comp := e.l.PeerIDs()
		if err := e.l.Send(mavlink.MsgIDParamRequestList,
			mavlink.PackParamRequestList(sys, comp)); err != nil {
			j.fail(err)
			return
		}
		e.armTimer(&j.timer, e.paramTimeout, j.timeout)
	})
	if err != nil {
		done(nil, cancelError(KindParams, 0, 0))
	}
}

// SetParam writes one parameter and waits for the device to echo the
// stored value back. The echo is the only confirmation the protocol
// offers. Callback runs on the session loop.
func (e *Engine) SetParam(id string, value float32, ptype byte, done func(mavlink.ParamValue, error)) {
	err := e.l.Loop().Post(func() {
		if e.param != nil {
			done(mavlink.ParamValue{}, errors.TransferBusyError(KindParams.String()))
			return
		}
		j := &paramJob{e: e, echoID: id, echoDone: done}
		e.param = j
		sys, comp := e.l.PeerIDs()
		if err := e.l.Send(mavlink.MsgIDParamSet,
			mavlink.PackParamSet(sys, comp, id, value, ptype)); err != nil {
			j.fail(err)
			return
		}
		e.armTimer(&j.timer, e.paramTimeout, j.timeout)
	})
	if err != nil {
		done(mavlink.ParamValue{}, cancelError(KindParams, 0, 0))
	}
}

// GetParam reads one named parameter without pulling the full list.
// Callback runs on the session loop.
func (e *Engine) GetParam(id string, done func(mavlink.ParamValue, error)) {
	err := e.l.Loop().Post(func() {
		if e.param != nil {
			done(mavlink.ParamValue{}, errors.TransferBusyError(KindParams.String()))
			return
		}
		j := &paramJob{e: e, echoID: id, echoDone: done}
		e.param = j
		sys, comp := e.l.PeerIDs()
		if err := e.l.Send(mavlink.MsgIDParamRequestRead,
			mavlink.PackParamRequestRead(sys, comp, id)); err != nil {
			j.fail(err)
			return
		}
		e.armTimer(&j.timer, e.paramTimeout, j.timeout)
	})
	if err != nil {
		done(mavlink.ParamValue{}, cancelError(KindParams, 0, 0))
	}
}

// CancelParams aborts the active params job, if any.
func (e *Engine) CancelParams() {
	e.l.Loop().Post(func() {
		if e.param != nil {
			e.param.fail(cancelError(KindParams, e.param.expected, len(e.param.byIndex)))
		}
	})
}

// onParamValue routes one PARAM_VALUE into the active job.
func (e *Engine) onParamValue(f *mavlink.Frame) {
	j := e.param
	if j == nil {
		return
	}
	v := mavlink.UnpackParamValue(f.Payload)

	if j.echoID != "" {
		if v.ID == j.echoID {
			j.finish(func() { j.echoDone(v, nil) })
		}
		return
	}

	if v.Index == unsequencedIndex || v.Count == 0 {
		return
	}
	j.byIndex[v.Index] = v
	j.expected = int(v.Count)
	e.armTimer(&j.timer, e.paramTimeout, j.timeout)

	if j.onProgress != nil {
		j.onProgress(Progress{Kind: KindParams, Received: len(j.byIndex), Expected: j.expected})
	}
	if len(j.byIndex) >= j.expected {
		out := make([]mavlink.ParamValue, 0, len(j.byIndex))
		for _, p := range j.byIndex {
			out = append(out, p)
		}
		sort.Slice(out, func(a, b int) bool { return out[a].Index < out[b].Index })
		j.finish(func() { j.done(out, nil) })
	}
}

// timeout fires when the stream stalls.
func (j *paramJob) timeout() {
	j.fail(errors.TransferTimeoutError(KindParams.String(), j.expected, len(j.byIndex)))
}

// finish runs the terminal callback exactly once and releases the slot.
func (j *paramJob) finish(deliver func()) {
	if j.finished {
		return
	}
	j.finished = true
	if j.timer != nil {
		j.timer.Stop()
	}
	j.e.param = nil
	deliver()
}

func (j *paramJob) fail(err error) {
	j.finish(func() {
		if j.echoDone != nil {
			j.echoDone(mavlink.ParamValue{}, err)
			return
		}
		j.done(nil, err)
	})
}
