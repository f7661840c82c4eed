package transfer

import (
	"gclink/pkg/errors"
	"gclink/pkg/mavlink"
)

// implausibleCount is the cutoff above which a decoded item count is
// treated as evidence of the wrong payload layout. Real plans stay far
// below it; a misread layout puts identity bytes into the count field
// and produces values in the tens of thousands.
const implausibleCount = 1000

// quirkState remembers which payload layout the connected device uses
// for the mission family. Some v1 firmwares emit v2 size-sorted
// payloads inside v1 frames; once detected, the choice is latched for
// the rest of the session.
type quirkState struct {
	latched bool
	layout  mavlink.PayloadLayout
}

func (q *quirkState) latch(layout mavlink.PayloadLayout) {
	q.latched = true
	q.layout = layout
}

// layoutFor returns the layout to assume before any evidence arrives:
// the latched one if known, otherwise the wire version's default.
func (q *quirkState) layoutFor(version int) mavlink.PayloadLayout {
	if q.latched {
		return q.layout
	}
	if version == 2 {
		return mavlink.LayoutSorted
	}
	return mavlink.LayoutLegacy
}

func otherLayout(l mavlink.PayloadLayout) mavlink.PayloadLayout {
	if l == mavlink.LayoutSorted {
		return mavlink.LayoutLegacy
	}
	return mavlink.LayoutSorted
}

// countPlausible judges one MISSION_COUNT decode: the count must be
// small and the message must target us (or broadcast).
func (e *Engine) countPlausible(c mavlink.MissionCount) bool {
	ourSys, _ := e.l.LocalIDs()
	if c.Count >= implausibleCount {
		return false
	}
	return c.TargetSys == ourSys || c.TargetSys == 0
}

// resolveCountLayout decodes a MISSION_COUNT under the expected layout
// and falls back to the alternate when the result is implausible. The
// winning layout is latched for the session.
func (e *Engine) resolveCountLayout(payload []byte) (mavlink.MissionCount, mavlink.PayloadLayout) {
	pref := e.quirk.layoutFor(e.l.Version())
	c := mavlink.UnpackMissionCount(payload, pref)
	if e.countPlausible(c) {
		e.quirk.latch(pref)
		return c, pref
	}

	alt := otherLayout(pref)
	ca := mavlink.UnpackMissionCount(payload, alt)
	if e.countPlausible(ca) {
		e.lg.Warn("mission count implausible under %s layout, switching (count %d vs %d)",
			layoutName(pref), c.Count, ca.Count)
		e.quirk.latch(alt)
		return ca, alt
	}

	// Both readings look wrong; keep the version default and let the
	// transfer fail on its own terms.
	return c, pref
}

// resolveRequestLayout decodes a device-side MISSION_REQUEST during an
// upload, re-checking the layout against the known item count.
func (e *Engine) resolveRequestLayout(payload []byte, count int, layout mavlink.PayloadLayout) (mavlink.MissionRequest, mavlink.PayloadLayout) {
	r := mavlink.UnpackMissionRequest(payload, layout)
	if int(r.Seq) < count {
		return r, layout
	}
	alt := otherLayout(layout)
	ra := mavlink.UnpackMissionRequest(payload, alt)
	if int(ra.Seq) < count {
		e.lg.Warn("mission request seq %d out of range, %s layout fits (seq %d)",
			r.Seq, layoutName(alt), ra.Seq)
		e.quirk.latch(alt)
		return ra, alt
	}
	return r, layout
}

func layoutName(l mavlink.PayloadLayout) string {
	if l == mavlink.LayoutSorted {
		return "sorted"
	}
	return "legacy"
}

func cancelError(kind Kind, expected, received int) error {
	return errors.TransferCancelledError(kind.String(), expected, received)
}
