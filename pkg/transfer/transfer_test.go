package transfer

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"gclink/pkg/errors"
	"gclink/pkg/eventloop"
	"gclink/pkg/mavlink"
)

type sentMsg struct {
	id      uint32
	payload []byte
}

// fakeLink is a scriptable stand-in for the session: sends are
// recorded, inbound frames are injected with feed.
type fakeLink struct {
	loop    *eventloop.Loop
	version int

	mu       sync.Mutex
	sends    []sentMsg
	handlers map[uint32][]func(*mavlink.Frame)
	hooks    []func(error)
}

func newFakeLink(t *testing.T, version int) *fakeLink {
	t.Helper()
	l := &fakeLink{
		loop:     eventloop.New(),
		version:  version,
		handlers: make(map[uint32][]func(*mavlink.Frame)),
	}
	l.loop.Start()
	t.Cleanup(l.loop.Stop)
	return l
}

func (l *fakeLink) Loop() *eventloop.Loop { return l.loop }
func (l *fakeLink) Version() int          { return l.version }
func (l *fakeLink) LocalIDs() (byte, byte) {
	return 255, 190
}
func (l *fakeLink) PeerIDs() (byte, byte) {
	return 1, 1
}

func (l *fakeLink) Send(msgID uint32, payload []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sends = append(l.sends, sentMsg{id: msgID, payload: append([]byte(nil), payload...)})
	return nil
}

func (l *fakeLink) RegisterHandler(msgID uint32, fn func(*mavlink.Frame)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[msgID] = append(l.handlers[msgID], fn)
	return func() {}
}

func (l *fakeLink) OnClose(fn func(error)) {
	l.hooks = append(l.hooks, fn)
}

// feed injects one inbound frame on the loop.
func (l *fakeLink) feed(msgID uint32, payload []byte) {
	l.loop.Post(func() {
		l.mu.Lock()
		fns := append([]func(*mavlink.Frame){}, l.handlers[msgID]...)
		l.mu.Unlock()
		f := &mavlink.Frame{Version: l.version, SysID: 1, CompID: 1, MsgID: msgID, Payload: payload}
		for _, fn := range fns {
			fn(f)
		}
	})
}

// down simulates the session closing underneath the engine.
func (l *fakeLink) down(err error) {
	l.loop.Post(func() {
		for _, h := range l.hooks {
			h(err)
		}
	})
}

func (l *fakeLink) sent() []sentMsg {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]sentMsg(nil), l.sends...)
}

// waitSends polls until at least n messages have been sent.
func (l *fakeLink) waitSends(t *testing.T, n int) []sentMsg {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		s := l.sent()
		if len(s) >= n {
			return s
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d sends, have %d", n, len(s))
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func newTestEngine(t *testing.T, version int) (*Engine, *fakeLink) {
	t.Helper()
	l := newFakeLink(t, version)
	e := NewEngine(l, nil)
	if err := e.Attach(); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	return e, l
}

func paramPayload(id string, index, count uint16, value float32) []byte {
	return mavlink.PackParamValue(mavlink.ParamValue{
		Value: value, Count: count, Index: index, ID: id, Type: 9,
	})
}

func TestParamDownload(t *testing.T) {
	e, l := newTestEngine(t, 2)

	var progress []Progress
	result := make(chan []mavlink.ParamValue, 1)
	e.DownloadParams(
		func(p Progress) { progress = append(progress, p) },
		func(params []mavlink.ParamValue, err error) {
			if err != nil {
				t.Errorf("download failed: %v", err)
			}
			result <- params
		})

	sends := l.waitSends(t, 1)
	if sends[0].id != mavlink.MsgIDParamRequestList {
		t.Fatalf("first send = msg %d, want PARAM_REQUEST_LIST", sends[0].id)
	}

	// Out of order on purpose; completion is index-set based.
	l.feed(mavlink.MsgIDParamValue, paramPayload("RATE_PIT", 2, 3, 0.15))
	l.feed(mavlink.MsgIDParamValue, paramPayload("RATE_RLL", 0, 3, 0.12))
	l.feed(mavlink.MsgIDParamValue, paramPayload("RATE_YAW", 1, 3, 0.2))

	select {
	case params := <-result:
		if len(params) != 3 {
			t.Fatalf("got %d params, want 3", len(params))
		}
		for i, p := range params {
			if int(p.Index) != i {
				t.Errorf("params[%d].Index = %d, not sorted", i, p.Index)
			}
		}
		if params[0].ID != "RATE_RLL" {
			t.Errorf("params[0] = %q, want RATE_RLL", params[0].ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("download never completed")
	}
	if len(progress) != 3 || progress[2].Received != 3 || progress[2].Expected != 3 {
		t.Errorf("progress = %+v", progress)
	}
}

func TestParamDownloadInactivityTimeout(t *testing.T) {
	e, l := newTestEngine(t, 2)
	e.paramTimeout = 30 * time.Millisecond

	errc := make(chan error, 1)
	e.DownloadParams(nil, func(_ []mavlink.ParamValue, err error) { errc <- err })
	l.waitSends(t, 1)
	l.feed(mavlink.MsgIDParamValue, paramPayload("ONLY_ONE", 0, 3, 1))

	select {
	case err := <-errc:
		if !errors.Is(err, errors.ErrTransferTimeout) {
			t.Fatalf("err = %v, want transfer timeout", err)
		}
		le := err.(*errors.LinkError)
		if le.Expected != 3 || le.Received != 1 {
			t.Errorf("counts = %d/%d, want 1/3", le.Received, le.Expected)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout never fired")
	}
}

func TestSecondParamJobIsBusy(t *testing.T) {
	e, l := newTestEngine(t, 2)

	e.DownloadParams(nil, func(_ []mavlink.ParamValue, err error) {})
	l.waitSends(t, 1)

	errc := make(chan error, 1)
	e.DownloadParams(nil, func(_ []mavlink.ParamValue, err error) { errc <- err })
	select {
	case err := <-errc:
		if !errors.Is(err, errors.ErrTransferBusy) {
			t.Errorf("err = %v, want busy", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("busy rejection never delivered")
	}
}

func TestSetParamWaitsForEcho(t *testing.T) {
	e, l := newTestEngine(t, 2)

	result := make(chan mavlink.ParamValue, 1)
	e.SetParam("ANGLE_MAX", 45, 9, func(v mavlink.ParamValue, err error) {
		if err != nil {
			t.Errorf("set failed: %v", err)
		}
		result <- v
	})

	sends := l.waitSends(t, 1)
	if sends[0].id != mavlink.MsgIDParamSet {
		t.Fatalf("sent msg %d, want PARAM_SET", sends[0].id)
	}
	id, value, _ := mavlink.UnpackParamSet(sends[0].payload)
	if id != "ANGLE_MAX" || value != 45 {
		t.Errorf("sent %q=%v", id, value)
	}

	// Unrelated echo must not complete the job.
	l.feed(mavlink.MsgIDParamValue, paramPayload("OTHER", 0xffff, 0, 1))
	l.feed(mavlink.MsgIDParamValue, paramPayload("ANGLE_MAX", 0xffff, 0, 45))

	select {
	case v := <-result:
		if v.ID != "ANGLE_MAX" || v.Value != 45 {
			t.Errorf("echo = %+v", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("echo never delivered")
	}
}

func missionItemPayload(seq uint16, layout mavlink.PayloadLayout, withType bool, mtype byte) []byte {
	return mavlink.PackMissionItem(mavlink.MissionItem{
		Seq: seq, Command: 16, TargetSys: 255, TargetComp: 190,
		X: 47.39, Y: 8.54, Z: 50, MissionType: mtype,
	}, layout, withType)
}

func TestMissionDownloadV2(t *testing.T) {
	e, l := newTestEngine(t, 2)

	result := make(chan []mavlink.MissionItem, 1)
	e.DownloadMission(KindMission, nil, func(items []mavlink.MissionItem, err error) {
		if err != nil {
			t.Errorf("download failed: %v", err)
		}
		result <- items
	})

	sends := l.waitSends(t, 1)
	if sends[0].id != mavlink.MsgIDMissionRequestList {
		t.Fatalf("first send = msg %d, want MISSION_REQUEST_LIST", sends[0].id)
	}
	if len(sends[0].payload) != 3 {
		t.Errorf("request list payload %v, want mission_type byte on v2", sends[0].payload)
	}

	l.feed(mavlink.MsgIDMissionCount, mavlink.PackMissionCount(
		mavlink.MissionCount{Count: 2, TargetSys: 255, TargetComp: 190},
		mavlink.LayoutSorted, true))

	sends = l.waitSends(t, 2)
	req := mavlink.UnpackMissionRequest(sends[1].payload, mavlink.LayoutSorted)
	if sends[1].id != mavlink.MsgIDMissionRequest || req.Seq != 0 {
		t.Fatalf("send[1] = msg %d seq %d, want request for 0", sends[1].id, req.Seq)
	}

	l.feed(mavlink.MsgIDMissionItem, missionItemPayload(0, mavlink.LayoutSorted, true, 0))
	sends = l.waitSends(t, 3)
	req = mavlink.UnpackMissionRequest(sends[2].payload, mavlink.LayoutSorted)
	if req.Seq != 1 {
		t.Fatalf("send[2] seq = %d, want 1", req.Seq)
	}

	l.feed(mavlink.MsgIDMissionItem, missionItemPayload(1, mavlink.LayoutSorted, true, 0))
	sends = l.waitSends(t, 4)
	if sends[3].id != mavlink.MsgIDMissionAck {
		t.Fatalf("send[3] = msg %d, want MISSION_ACK", sends[3].id)
	}
	ack := mavlink.UnpackMissionAck(sends[3].payload)
	if ack.Result != mavlink.MissionAccepted {
		t.Errorf("ack result = %d, want accepted", ack.Result)
	}

	select {
	case items := <-result:
		if len(items) != 2 || items[0].Seq != 0 || items[1].Seq != 1 {
			t.Errorf("items = %+v", items)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("download never completed")
	}
}

func TestMissionDownloadEmptyPlan(t *testing.T) {
	e, l := newTestEngine(t, 2)

	result := make(chan []mavlink.MissionItem, 1)
	e.DownloadMission(KindMission, nil, func(items []mavlink.MissionItem, err error) {
		if err != nil {
			t.Errorf("download failed: %v", err)
		}
		result <- items
	})
	l.waitSends(t, 1)

	l.feed(mavlink.MsgIDMissionCount, mavlink.PackMissionCount(
		mavlink.MissionCount{Count: 0, TargetSys: 255}, mavlink.LayoutSorted, true))

	select {
	case items := <-result:
		if len(items) != 0 {
			t.Errorf("items = %+v, want empty", items)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("empty download never completed")
	}
	sends := l.sent()
	last := sends[len(sends)-1]
	if last.id != mavlink.MsgIDMissionAck {
		t.Errorf("empty plan not acknowledged, last send = msg %d", last.id)
	}
}

func TestSortedPayloadQuirkInsideV1Frames(t *testing.T) {
	e, l := newTestEngine(t, 1)

	result := make(chan []mavlink.MissionItem, 1)
	e.DownloadMission(KindMission, nil, func(items []mavlink.MissionItem, err error) {
		if err != nil {
			t.Errorf("download failed: %v", err)
		}
		result <- items
	})
	l.waitSends(t, 1)

	// A quirked firmware: v1 framing, v2 size-sorted payload, no
	// mission_type byte. Read legacy-first this declares 48895 items.
	l.feed(mavlink.MsgIDMissionCount, mavlink.PackMissionCount(
		mavlink.MissionCount{Count: 1, TargetSys: 255, TargetComp: 190},
		mavlink.LayoutSorted, false))

	sends := l.waitSends(t, 2)
	req := mavlink.UnpackMissionRequest(sends[1].payload, mavlink.LayoutSorted)
	if req.Seq != 0 || req.TargetSys != 1 {
		t.Fatalf("request not sorted-layout: %+v (payload %v)", req, sends[1].payload)
	}

	l.feed(mavlink.MsgIDMissionItem, missionItemPayload(0, mavlink.LayoutSorted, false, 0))
	select {
	case items := <-result:
		if len(items) != 1 || items[0].Command != 16 {
			t.Errorf("items = %+v", items)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("quirked download never completed")
	}

	// The layout stays latched for later jobs on this session.
	if got := e.quirk.layoutFor(1); got != mavlink.LayoutSorted {
		t.Errorf("latched layout = %v, want sorted", got)
	}
}

func TestLegacyLayoutRetainedOnV1(t *testing.T) {
	e, l := newTestEngine(t, 1)

	done := make(chan struct{}, 1)
	e.DownloadMission(KindMission, nil, func(items []mavlink.MissionItem, err error) {
		done <- struct{}{}
	})
	l.waitSends(t, 1)

	l.feed(mavlink.MsgIDMissionCount, mavlink.PackMissionCount(
		mavlink.MissionCount{Count: 1, TargetSys: 255, TargetComp: 190},
		mavlink.LayoutLegacy, false))

	sends := l.waitSends(t, 2)
	want := mavlink.PackMissionRequest(mavlink.MissionRequest{
		Seq: 0, TargetSys: 1, TargetComp: 1,
	}, mavlink.LayoutLegacy, false)
	if string(sends[1].payload) != string(want) {
		t.Fatalf("request payload = %v, want legacy %v", sends[1].payload, want)
	}
	l.feed(mavlink.MsgIDMissionItem, missionItemPayload(0, mavlink.LayoutLegacy, false, 0))
	<-done
}

func TestMissionUpload(t *testing.T) {
	e, l := newTestEngine(t, 2)

	items := []mavlink.MissionItem{
		{Seq: 0, Command: 22, Z: 30},
		{Seq: 1, Command: 16, X: 47.4, Y: 8.5, Z: 50},
	}
	errc := make(chan error, 1)
	e.UploadMission(KindMission, items, nil, func(err error) { errc <- err })

	sends := l.waitSends(t, 1)
	if sends[0].id != mavlink.MsgIDMissionCount {
		t.Fatalf("first send = msg %d, want MISSION_COUNT", sends[0].id)
	}
	c := mavlink.UnpackMissionCount(sends[0].payload, mavlink.LayoutSorted)
	if c.Count != 2 {
		t.Fatalf("count = %d, want 2", c.Count)
	}

	for seq := uint16(0); seq < 2; seq++ {
		l.feed(mavlink.MsgIDMissionRequest, mavlink.PackMissionRequest(
			mavlink.MissionRequest{Seq: seq, TargetSys: 255, TargetComp: 190},
			mavlink.LayoutSorted, true))
		sends = l.waitSends(t, int(seq)+2)
		it := mavlink.UnpackMissionItem(sends[seq+1].payload, mavlink.LayoutSorted)
		if sends[seq+1].id != mavlink.MsgIDMissionItem || it.Seq != seq {
			t.Fatalf("send[%d] = msg %d seq %d", seq+1, sends[seq+1].id, it.Seq)
		}
		if it.Command != items[seq].Command {
			t.Errorf("item %d command = %d, want %d", seq, it.Command, items[seq].Command)
		}
	}

	l.feed(mavlink.MsgIDMissionAck, mavlink.PackMissionAck(
		mavlink.MissionAck{TargetSys: 255, Result: mavlink.MissionAccepted}, true))
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("upload failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("upload never completed")
	}
}

func TestMissionUploadRejected(t *testing.T) {
	e, l := newTestEngine(t, 2)

	errc := make(chan error, 1)
	e.UploadMission(KindMission, []mavlink.MissionItem{{Seq: 0, Command: 16}}, nil,
		func(err error) { errc <- err })
	l.waitSends(t, 1)

	l.feed(mavlink.MsgIDMissionAck, mavlink.PackMissionAck(
		mavlink.MissionAck{TargetSys: 255, Result: mavlink.MissionNoSpace}, true))

	select {
	case err := <-errc:
		if !errors.Is(err, errors.ErrTransferRejected) {
			t.Fatalf("err = %v, want rejected", err)
		}
		if !strings.Contains(err.Error(), "no space") {
			t.Errorf("err = %v, want result name in message", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("rejection never delivered")
	}
}

func TestMissionDownloadRejectedMidTransfer(t *testing.T) {
	e, l := newTestEngine(t, 2)

	errc := make(chan error, 1)
	e.DownloadMission(KindMission, nil, func(_ []mavlink.MissionItem, err error) { errc <- err })
	l.waitSends(t, 1)

	l.feed(mavlink.MsgIDMissionCount, mavlink.PackMissionCount(
		mavlink.MissionCount{Count: 5, TargetSys: 255}, mavlink.LayoutSorted, true))
	l.waitSends(t, 2)
	l.feed(mavlink.MsgIDMissionAck, mavlink.PackMissionAck(
		mavlink.MissionAck{TargetSys: 255, Result: mavlink.MissionDenied}, true))

	select {
	case err := <-errc:
		if !errors.Is(err, errors.ErrTransferRejected) {
			t.Fatalf("err = %v, want rejected", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("rejection never delivered")
	}
}

func TestFenceClearCarriesTypeByte(t *testing.T) {
	e, l := newTestEngine(t, 1)

	errc := make(chan error, 1)
	e.ClearMission(KindFence, func(err error) { errc <- err })

	sends := l.waitSends(t, 1)
	if sends[0].id != mavlink.MsgIDMissionClearAll {
		t.Fatalf("sent msg %d, want MISSION_CLEAR_ALL", sends[0].id)
	}
	want := []byte{1, 1, mavlink.MissionTypeFence}
	if string(sends[0].payload) != string(want) {
		t.Errorf("payload = %v, want %v", sends[0].payload, want)
	}

	l.feed(mavlink.MsgIDMissionAck, mavlink.PackMissionAck(
		mavlink.MissionAck{TargetSys: 255, Result: mavlink.MissionAccepted}, true))
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("clear failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("clear never completed")
	}
}

func TestMissionInactivityTimeout(t *testing.T) {
	e, l := newTestEngine(t, 2)
	e.missionTimeout = 30 * time.Millisecond

	errc := make(chan error, 1)
	e.DownloadMission(KindRally, nil, func(_ []mavlink.MissionItem, err error) { errc <- err })
	l.waitSends(t, 1)

	select {
	case err := <-errc:
		if !errors.Is(err, errors.ErrTransferTimeout) {
			t.Fatalf("err = %v, want timeout", err)
		}
		if le := err.(*errors.LinkError); le.JobKind != "rally" {
			t.Errorf("kind = %q, want rally", le.JobKind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout never fired")
	}
}

func TestCancelMissionNotifiesDevice(t *testing.T) {
	e, l := newTestEngine(t, 2)

	errc := make(chan error, 1)
	e.DownloadMission(KindMission, nil, func(_ []mavlink.MissionItem, err error) { errc <- err })
	l.waitSends(t, 1)
	l.feed(mavlink.MsgIDMissionCount, mavlink.PackMissionCount(
		mavlink.MissionCount{Count: 4, TargetSys: 255}, mavlink.LayoutSorted, true))
	l.waitSends(t, 2)

	e.CancelMission()
	select {
	case err := <-errc:
		if !errors.Is(err, errors.ErrTransferCancel) {
			t.Fatalf("err = %v, want cancelled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancel never delivered")
	}
	sends := l.sent()
	last := sends[len(sends)-1]
	if last.id != mavlink.MsgIDMissionAck {
		t.Fatalf("last send = msg %d, want MISSION_ACK", last.id)
	}
	if ack := mavlink.UnpackMissionAck(last.payload); ack.Result != mavlink.MissionOperationCancelled {
		t.Errorf("ack result = %d, want operation cancelled", ack.Result)
	}
}

func TestSessionDownFailsActiveJobs(t *testing.T) {
	e, l := newTestEngine(t, 2)

	paramErr := make(chan error, 1)
	e.DownloadParams(nil, func(_ []mavlink.ParamValue, err error) { paramErr <- err })
	missionErr := make(chan error, 1)
	e.DownloadMission(KindMission, nil, func(_ []mavlink.MissionItem, err error) { missionErr <- err })
	l.waitSends(t, 2)

	l.down(fmt.Errorf("serial gone"))

	for name, ch := range map[string]chan error{"params": paramErr, "mission": missionErr} {
		select {
		case err := <-ch:
			if !errors.Is(err, errors.ErrTransferCancel) {
				t.Errorf("%s err = %v, want cancelled", name, err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("%s job never failed", name)
		}
	}
}

func TestMissionDownloadRetriesBeforeTimeout(t *testing.T) {
	e, l := newTestEngine(t, 2)
	e.missionTimeout = 20 * time.Millisecond

	errc := make(chan error, 1)
	e.DownloadMission(KindMission, nil, func(_ []mavlink.MissionItem, err error) { errc <- err })

	// Never answer: the request list is re-issued missionRetryMax times
	// before the job fails.
	sends := l.waitSends(t, 1+missionRetryMax)
	for i, s := range sends {
		if s.id != mavlink.MsgIDMissionRequestList {
			t.Errorf("send %d = msg %d, want MISSION_REQUEST_LIST", i, s.id)
		}
	}

	select {
	case err := <-errc:
		if !errors.Is(err, errors.ErrTransferTimeout) {
			t.Fatalf("err = %v, want timeout", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout never fired")
	}
}

func TestMissionDownloadRetriesCurrentIndex(t *testing.T) {
	e, l := newTestEngine(t, 2)
	e.missionTimeout = 50 * time.Millisecond

	done := make(chan error, 1)
	e.DownloadMission(KindMission, nil, func(_ []mavlink.MissionItem, err error) { done <- err })
	l.waitSends(t, 1)
	l.feed(mavlink.MsgIDMissionCount, mavlink.PackMissionCount(
		mavlink.MissionCount{Count: 2, TargetSys: 255}, mavlink.LayoutSorted, true))

	// Drop the first MISSION_ITEM; the request for seq 0 must be
	// re-issued, and answering the retry completes the transfer.
	sends := l.waitSends(t, 3)
	for _, s := range sends[1:] {
		if s.id != mavlink.MsgIDMissionRequest {
			t.Fatalf("send = msg %d, want MISSION_REQUEST", s.id)
		}
		if req := mavlink.UnpackMissionRequest(s.payload, mavlink.LayoutSorted); req.Seq != 0 {
			t.Fatalf("retry requested seq %d, want 0", req.Seq)
		}
	}

	for seq := uint16(0); seq < 2; seq++ {
		l.feed(mavlink.MsgIDMissionItem, mavlink.PackMissionItem(
			mavlink.MissionItem{Seq: seq, Command: 16}, mavlink.LayoutSorted, true))
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("download failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("download never completed")
	}
}

func TestMissionUploadServesRepeatedAndOutOfOrderRequests(t *testing.T) {
	e, l := newTestEngine(t, 2)

	items := []mavlink.MissionItem{
		{Seq: 0, Command: 22, Z: 30},
		{Seq: 1, Command: 16, X: 47.4, Y: 8.5, Z: 50},
		{Seq: 2, Command: 21, Z: 0},
	}
	errc := make(chan error, 1)
	e.UploadMission(KindMission, items, nil, func(err error) { errc <- err })
	l.waitSends(t, 1)

	// The device may ask in any order and repeat itself; every request
	// gets the item it named.
	for i, seq := range []uint16{1, 0, 1, 2} {
		l.feed(mavlink.MsgIDMissionRequest, mavlink.PackMissionRequest(
			mavlink.MissionRequest{Seq: seq, TargetSys: 255, TargetComp: 190},
			mavlink.LayoutSorted, true))
		sends := l.waitSends(t, i+2)
		got := sends[i+1]
		if got.id != mavlink.MsgIDMissionItem {
			t.Fatalf("send[%d] = msg %d, want MISSION_ITEM", i+1, got.id)
		}
		it := mavlink.UnpackMissionItem(got.payload, mavlink.LayoutSorted)
		if it.Seq != seq || it.Command != items[seq].Command {
			t.Fatalf("request %d answered with seq %d command %d, want seq %d command %d",
				i, it.Seq, it.Command, seq, items[seq].Command)
		}
	}

	// Every item served, but no ack yet: the job must still be pending.
	select {
	case err := <-errc:
		t.Fatalf("upload finished before the ack: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	l.feed(mavlink.MsgIDMissionAck, mavlink.PackMissionAck(
		mavlink.MissionAck{TargetSys: 255, Result: mavlink.MissionAccepted}, true))
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("upload failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("upload never completed")
	}
}

func TestGetParamSingleRead(t *testing.T) {
	e, l := newTestEngine(t, 2)

	result := make(chan mavlink.ParamValue, 1)
	e.GetParam("RATE_PIT", func(v mavlink.ParamValue, err error) {
		if err != nil {
			t.Errorf("get failed: %v", err)
		}
		result <- v
	})

	sends := l.waitSends(t, 1)
	if sends[0].id != mavlink.MsgIDParamRequestRead {
		t.Fatalf("sent msg %d, want PARAM_REQUEST_READ", sends[0].id)
	}
	id, index := mavlink.UnpackParamRequestRead(sends[0].payload)
	if id != "RATE_PIT" || index != 0xffff {
		t.Errorf("request = %q index %d, want RATE_PIT by name", id, index)
	}

	// A stray value for another parameter must not complete the read.
	l.feed(mavlink.MsgIDParamValue, paramPayload("RATE_RLL", 0, 30, 0.12))
	l.feed(mavlink.MsgIDParamValue, paramPayload("RATE_PIT", 1, 30, 0.15))

	select {
	case v := <-result:
		if v.ID != "RATE_PIT" || v.Value != 0.15 {
			t.Errorf("value = %+v", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("read never completed")
	}
}
