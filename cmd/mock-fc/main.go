// mock-fc is a simulated flight controller for exercising the link
// engine without hardware. It listens on TCP and speaks either MAVLink
// (v1 or v2) or MSP:
// - Periodic heartbeats
// - Parameter download and PARAM_SET echo
// - Mission/fence/rally download, upload and clear
// - MSP identification queries
//
// The -quirk flag reproduces firmwares that put v2 size-sorted payloads
// inside v1 frames, for testing the layout heuristic. The -drop flag
// withholds every Nth parameter value, for testing the inactivity
// timeout.
//
// Usage:
//
//	mock-fc -listen :5760 [-protocol mavlink2] [-params 30] [-mission 8] [-quirk] [-drop N]
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"gclink/pkg/mavlink"
	"gclink/pkg/msp"
)

var trace *bool

func main() {
	listen := flag.String("listen", ":5760", "TCP address to listen on")
	protocol := flag.String("protocol", "mavlink2", "Protocol to speak: mavlink1, mavlink2, msp")
	paramCount := flag.Int("params", 30, "Number of parameters to expose")
	missionCount := flag.Int("mission", 8, "Number of mission items to expose")
	heartbeat := flag.Duration("heartbeat", 500*time.Millisecond, "Heartbeat interval")
	quirk := flag.Bool("quirk", false, "Send v2 size-sorted payloads inside v1 frames")
	drop := flag.Int("drop", 0, "Drop every Nth parameter value (0 = off)")
	trace = flag.Bool("trace", false, "Print every handled message")
	flag.Parse()

	version := 0
	switch *protocol {
	case "mavlink1":
		version = 1
	case "mavlink2":
		version = 2
	case "msp":
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown protocol %q\n", *protocol)
		os.Exit(1)
	}
	if *quirk && version != 1 {
		fmt.Fprintln(os.Stderr, "Error: -quirk only makes sense with -protocol mavlink1")
		os.Exit(1)
	}

	ln, err := net.Listen("tcp", *listen)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("mock-fc: %s on %s (%d params, %d mission items)\n",
		*protocol, ln.Addr(), *paramCount, *missionCount)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigc
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		fmt.Printf("mock-fc: client %s connected\n", conn.RemoteAddr())
		d := newDevice(conn, version, *quirk, *paramCount, *missionCount, *heartbeat)
		d.drop = *drop
		go d.run()
	}
}

// device is one connected client's view of the simulated FC.
type device struct {
	conn    net.Conn
	writeMu sync.Mutex

	version int // 0 = MSP
	quirk   bool
	drop    int // drop every Nth PARAM_VALUE
	seq     byte

	heartbeat time.Duration

	params []mavlink.ParamValue
	plans  map[byte][]mavlink.MissionItem

	// Download-side (GCS pulls from us): nothing to track, each
	// request is answered statelessly. Upload-side (GCS pushes):
	upload *uploadState
}

type uploadState struct {
	missionType byte
	expected    int
	next        int
	items       []mavlink.MissionItem
}

func newDevice(conn net.Conn, version int, quirk bool, paramCount, missionCount int, hb time.Duration) *device {
	d := &device{
		conn:      conn,
		version:   version,
		quirk:     quirk,
		heartbeat: hb,
		plans:     make(map[byte][]mavlink.MissionItem),
	}
	for i := 0; i < paramCount; i++ {
		d.params = append(d.params, mavlink.ParamValue{
			ID:    fmt.Sprintf("SIM_PARAM_%02d", i),
			Value: float32(i) * 1.5,
			Index: uint16(i),
			Count: uint16(paramCount),
			Type:  9,
		})
	}
	for i := 0; i < missionCount; i++ {
		d.plans[mavlink.MissionTypeMission] = append(d.plans[mavlink.MissionTypeMission],
			mavlink.MissionItem{
				Seq: uint16(i), Command: 16, Frame: 3,
				X: 47.3977 + float32(i)*0.0001,
				Y: 8.5456 + float32(i)*0.0001,
				Z: 50,
			})
	}
	return d
}

// layout is the payload layout this device emits and expects.
func (d *device) layout() mavlink.PayloadLayout {
	if d.version == 2 || d.quirk {
		return mavlink.LayoutSorted
	}
	return mavlink.LayoutLegacy
}

// withType reports whether this device appends the mission-type byte.
// The quirked firmware it imitates does not.
func (d *device) withType() bool {
	return d.version == 2
}

func (d *device) run() {
	defer d.conn.Close()
	if d.version == 0 {
		d.runMsp()
		return
	}
	d.runMavlink()
}

func (d *device) runMavlink() {
	stop := make(chan struct{})
	defer close(stop)
	go d.heartbeatLoop(stop)

	scanner := mavlink.NewScanner()
	buf := make([]byte, 4096)
	for {
		n, err := d.conn.Read(buf)
		if err != nil {
			fmt.Printf("mock-fc: client %s gone\n", d.conn.RemoteAddr())
			return
		}
		for _, f := range scanner.Push(buf[:n]) {
			d.handleMavlink(f)
		}
	}
}

func (d *device) heartbeatLoop(stop chan struct{}) {
	ticker := time.NewTicker(d.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			hb := mavlink.Heartbeat{Type: 2, Autopilot: 3, BaseMode: 0x51, SystemStatus: 4, MavlinkVersion: 3}
			d.send(mavlink.MsgIDHeartbeat, hb.Pack())
			d.send(mavlink.MsgIDGPSRawInt, mavlink.PackGPSRawInt(mavlink.GPSRawInt{
				Lat: 473977420, Lon: 85455940, Alt: 500000,
				FixType: mavlink.GPSFix3D, Satellites: 12,
			}))
			d.send(mavlink.MsgIDVFRHUD, mavlink.PackVFRHUD(mavlink.VFRHUD{
				GroundSpeed: 4.2, Alt: 50, Heading: 90, Throttle: 35,
			}))
			batt := mavlink.BatteryStatus{CurrentBattery: 850, Remaining: 87}
			batt.Voltages[0] = 11800
			d.send(mavlink.MsgIDBatteryStatus, mavlink.PackBatteryStatus(batt))
		}
	}
}

// send serializes one frame at the device's version.
func (d *device) send(msgID uint32, payload []byte) {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	raw, err := mavlink.Encode(&mavlink.Frame{
		Version: d.version,
		Seq:     d.seq,
		SysID:   1,
		CompID:  1,
		MsgID:   msgID,
		Payload: payload,
	})
	if err != nil {
		return
	}
	d.seq++
	d.conn.Write(raw)
}

func (d *device) handleMavlink(f *mavlink.Frame) {
	if *trace {
		fmt.Printf("mock-fc: <- msg %d (%d bytes)\n", f.MsgID, len(f.Payload))
	}
	switch f.MsgID {
	case mavlink.MsgIDParamRequestList:
		for i, p := range d.params {
			if d.drop > 0 && (i+1)%d.drop == 0 {
				continue
			}
			d.send(mavlink.MsgIDParamValue, mavlink.PackParamValue(p))
		}
	case mavlink.MsgIDParamRequestRead:
		id, index := mavlink.UnpackParamRequestRead(f.Payload)
		for _, p := range d.params {
			if p.ID == id || (index != 0xffff && p.Index == index) {
				d.send(mavlink.MsgIDParamValue, mavlink.PackParamValue(p))
				return
			}
		}
		d.send(mavlink.MsgIDParamValue, mavlink.PackParamValue(mavlink.ParamValue{
			ID: id, Index: 0xffff,
		}))
	case mavlink.MsgIDParamSet:
		id, value, ptype := mavlink.UnpackParamSet(f.Payload)
		for i := range d.params {
			if d.params[i].ID == id {
				d.params[i].Value = value
				d.params[i].Type = ptype
				d.send(mavlink.MsgIDParamValue, mavlink.PackParamValue(d.params[i]))
				return
			}
		}
		// Unknown parameter: echo back unsequenced, the way most
		// firmwares confirm a store.
		d.send(mavlink.MsgIDParamValue, mavlink.PackParamValue(mavlink.ParamValue{
			ID: id, Value: value, Type: ptype, Index: 0xffff,
		}))
	case mavlink.MsgIDMissionRequestList:
		mtype := missionTypeOf(f.Payload, 2)
		plan := d.plans[mtype]
		d.send(mavlink.MsgIDMissionCount, mavlink.PackMissionCount(mavlink.MissionCount{
			Count: uint16(len(plan)), TargetSys: 255, TargetComp: 190, MissionType: mtype,
		}, d.layout(), d.withType()))
	case mavlink.MsgIDMissionRequest, mavlink.MsgIDMissionRequestInt:
		req := mavlink.UnpackMissionRequest(f.Payload, d.layout())
		mtype := req.MissionType
		plan := d.plans[mtype]
		if int(req.Seq) >= len(plan) {
			d.send(mavlink.MsgIDMissionAck, mavlink.PackMissionAck(mavlink.MissionAck{
				TargetSys: 255, TargetComp: 190, Result: mavlink.MissionInvalidSeq,
				MissionType: mtype,
			}, d.withType()))
			return
		}
		it := plan[req.Seq]
		it.TargetSys, it.TargetComp = 255, 190
		it.MissionType = mtype
		d.send(mavlink.MsgIDMissionItem, mavlink.PackMissionItem(it, d.layout(), d.withType()))
	case mavlink.MsgIDMissionCount:
		c := mavlink.UnpackMissionCount(f.Payload, d.layout())
		d.upload = &uploadState{missionType: c.MissionType, expected: int(c.Count)}
		if d.upload.expected == 0 {
			d.plans[c.MissionType] = nil
			d.sendAck(c.MissionType, mavlink.MissionAccepted)
			d.upload = nil
			return
		}
		d.requestUploadItem()
	case mavlink.MsgIDMissionItem:
		if d.upload == nil {
			return
		}
		it := mavlink.UnpackMissionItem(f.Payload, d.layout())
		if int(it.Seq) != d.upload.next {
			return
		}
		d.upload.items = append(d.upload.items, it)
		d.upload.next++
		if d.upload.next >= d.upload.expected {
			d.plans[d.upload.missionType] = d.upload.items
			d.sendAck(d.upload.missionType, mavlink.MissionAccepted)
			d.upload = nil
			return
		}
		d.requestUploadItem()
	case mavlink.MsgIDMissionClearAll:
		mtype := missionTypeOf(f.Payload, 2)
		d.plans[mtype] = nil
		d.sendAck(mtype, mavlink.MissionAccepted)
	case mavlink.MsgIDMissionAck:
		// GCS finished a download; nothing to track.
	}
}

func (d *device) requestUploadItem() {
	d.send(mavlink.MsgIDMissionRequest, mavlink.PackMissionRequest(mavlink.MissionRequest{
		Seq: uint16(d.upload.next), TargetSys: 255, TargetComp: 190,
		MissionType: d.upload.missionType,
	}, d.layout(), d.withType()))
}

func (d *device) sendAck(mtype, result byte) {
	d.send(mavlink.MsgIDMissionAck, mavlink.PackMissionAck(mavlink.MissionAck{
		TargetSys: 255, TargetComp: 190, Result: result, MissionType: mtype,
	}, d.withType()))
}

// missionTypeOf extracts the trailing mission-type byte when present.
func missionTypeOf(payload []byte, fixedLen int) byte {
	if len(payload) > fixedLen {
		return payload[fixedLen]
	}
	return mavlink.MissionTypeMission
}

// runMsp answers identification queries and rejects everything else.
func (d *device) runMsp() {
	scanner := msp.NewRequestScanner()
	buf := make([]byte, 4096)
	for {
		n, err := d.conn.Read(buf)
		if err != nil {
			fmt.Printf("mock-fc: client %s gone\n", d.conn.RemoteAddr())
			return
		}
		for _, f := range scanner.Push(buf[:n]) {
			d.handleMsp(f)
		}
	}
}

func (d *device) handleMsp(f *msp.Frame) {
	if *trace {
		fmt.Printf("mock-fc: <- msp cmd %d\n", f.Cmd)
	}
	var payload []byte
	switch f.Cmd {
	case msp.CmdAPIVersion:
		payload = []byte{0, 1, 46}
	case msp.CmdFCVariant:
		payload = []byte("BTFL")
	case msp.CmdFCVersion:
		payload = []byte{4, 5, 1}
	case msp.CmdBoardInfo:
		payload = []byte("S405")
	case msp.CmdIdent:
		payload = []byte{231, 3, 0, 0, 0, 0, 0}
	default:
		raw, err := msp.EncodeError(f.Cmd)
		if err == nil {
			d.writeMu.Lock()
			d.conn.Write(raw)
			d.writeMu.Unlock()
		}
		return
	}
	raw, err := msp.EncodeResponse(f.Cmd, payload)
	if err != nil {
		return
	}
	d.writeMu.Lock()
	d.conn.Write(raw)
	d.writeMu.Unlock()
}
