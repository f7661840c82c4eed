// gclink is the ground-control link engine CLI. It connects to a flight
// controller over serial, TCP or UDP, detects the wire protocol
// (MAVLink v1/v2 or MSP) and runs bulk transfers against it.
//
// Usage:
//
//	gclink [options] <command>
//
// Commands:
//
//	monitor        Connect and print link state and telemetry (default)
//	params         Download and print the full parameter list
//	param-get      Read one parameter: gclink param-get NAME
//	param-set      Write one parameter: gclink param-set NAME VALUE
//	mission        Download and print the mission plan
//	fence          Download and print the fence plan
//	rally          Download and print the rally points
//	clear-mission  Erase the stored mission (also clear-fence, clear-rally)
//
// Options:
//
//	-config string    Configuration file (TOML)
//	-device string    Serial device path (overrides config)
//	-baud int         Serial baud rate (overrides config)
//	-tcp string       TCP endpoint host:port (overrides config)
//	-udp string       UDP endpoint host:port (overrides config)
//	-protocol string  Pin the protocol: mavlink1, mavlink2, msp
//	-gateway string   Serve the status API on this address (monitor only)
//	-loglevel string  debug, info, warn, error
//	-logfile string   Log file path with rotation (default: stderr)
//
// Examples:
//
//	# Watch a flight controller on a serial port
//	gclink -device /dev/ttyACM0 -baud 115200 monitor
//
//	# Pull all parameters from a SITL instance
//	gclink -tcp 127.0.0.1:5760 params
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"gclink/pkg/config"
	"gclink/pkg/gateway"
	"gclink/pkg/link"
	"gclink/pkg/log"
	"gclink/pkg/mavlink"
	"gclink/pkg/transfer"
	"gclink/pkg/transport"
)

func main() {
	configFile := flag.String("config", "", "Configuration file (TOML)")
	device := flag.String("device", "", "Serial device path")
	baud := flag.Int("baud", 0, "Serial baud rate")
	tcpAddr := flag.String("tcp", "", "TCP endpoint host:port")
	udpAddr := flag.String("udp", "", "UDP endpoint host:port")
	protocol := flag.String("protocol", "", "Pin the protocol: mavlink1, mavlink2, msp")
	gatewayAddr := flag.String("gateway", "", "Serve the status API on this address")
	logLevel := flag.String("loglevel", "", "Log level: debug, info, warn, error")
	logFile := flag.String("logfile", "", "Log file path (default: stderr)")
	flag.Parse()

	cmd := flag.Arg(0)
	if cmd == "" {
		cmd = "monitor"
	}

	cfg := config.Default()
	if *configFile != "" {
		var err error
		cfg, err = config.Load(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	applyOverrides(&cfg, *device, *baud, *tcpAddr, *udpAddr, *protocol, *gatewayAddr, *logLevel, *logFile)

	lg := log.New("gclink")
	lg.SetLevel(log.ParseLevel(cfg.Log.Level))
	if cfg.Log.Format == "json" {
		lg.SetFormat(log.FormatJSON)
	}
	if cfg.Log.File != "" {
		w, err := log.NewRotatingFileWriter(log.RotationConfig{
			Filename:   cfg.Log.File,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
			os.Exit(1)
		}
		defer w.Close()
		lg.SetWriter(w)
		lg.SetColorize(false)
	}

	tr, err := buildTransport(cfg.Transport)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	states := make(chan link.State, 32)
	opts := link.Options{
		Transport:      tr,
		ForceProtocol:  forceProtocol(cfg.Link.ForceProtocol),
		HeartbeatGrace: cfg.Link.HeartbeatGrace.Duration,
		ProbeWindow:    cfg.Link.ProbeWindow.Duration,
		SystemID:       byte(cfg.Link.SystemID),
		ComponentID:    byte(cfg.Link.ComponentID),
		Logger:         lg.WithPrefix("link"),
		OnStateChange: func(st link.State, err error) {
			select {
			case states <- st:
			default:
			}
		},
	}

	mgr := link.NewManager(lg.WithPrefix("link"))
	sess, err := mgr.Connect(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer mgr.Close()

	engine := transfer.NewEngine(sess, lg.WithPrefix("transfer"))
	if err := engine.Attach(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	detectBudget := cfg.Link.HeartbeatGrace.Duration + cfg.Link.ProbeWindow.Duration + 2*time.Second
	if !waitConnected(states, detectBudget) {
		st := sess.Status()
		fmt.Fprintf(os.Stderr, "Error: no device detected (%v)\n", st.LastError)
		os.Exit(1)
	}
	st := sess.Status()
	fmt.Printf("Connected: %s, peer %d/%d\n", st.Protocol, st.PeerSystem, st.PeerComp)

	if err := runCommand(cmd, mgr, sess, engine, cfg, lg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func applyOverrides(cfg *config.Config, device string, baud int, tcpAddr, udpAddr, protocol, gatewayAddr, logLevel, logFile string) {
	if device != "" {
		cfg.Transport.Kind = "serial"
		cfg.Transport.Device = device
	}
	if baud > 0 {
		cfg.Transport.Baud = baud
	}
	if tcpAddr != "" {
		cfg.Transport.Kind = "tcp"
		cfg.Transport.Addr = tcpAddr
	}
	if udpAddr != "" {
		cfg.Transport.Kind = "udp"
		cfg.Transport.Addr = udpAddr
	}
	if protocol != "" {
		cfg.Link.ForceProtocol = protocol
	}
	if gatewayAddr != "" {
		cfg.Gateway.Enabled = true
		cfg.Gateway.Addr = gatewayAddr
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFile != "" {
		cfg.Log.File = logFile
	}
}

func buildTransport(tc config.TransportConfig) (transport.Transport, error) {
	switch tc.Kind {
	case "serial":
		if tc.Device == "" {
			return nil, fmt.Errorf("no serial device given (use -device or a config file)")
		}
		return transport.NewSerial(transport.SerialConfig{
			Device:   tc.Device,
			BaudRate: tc.Baud,
		}), nil
	case "tcp":
		return transport.NewTCP(tc.Addr), nil
	case "udp":
		return transport.NewUDP(tc.Addr), nil
	default:
		return nil, fmt.Errorf("unknown transport kind %q", tc.Kind)
	}
}

func forceProtocol(name string) link.Protocol {
	switch name {
	case "mavlink1":
		return link.ProtocolMavlinkV1
	case "mavlink2":
		return link.ProtocolMavlinkV2
	case "msp":
		return link.ProtocolMSP
	default:
		return link.ProtocolNone
	}
}

func waitConnected(states chan link.State, budget time.Duration) bool {
	deadline := time.After(budget)
	for {
		select {
		case st := <-states:
			switch st {
			case link.StateConnectedMavlink, link.StateConnectedMsp:
				return true
			case link.StateFailed, link.StateClosed:
				return false
			}
		case <-deadline:
			return false
		}
	}
}

func runCommand(cmd string, mgr *link.Manager, sess *link.Session, engine *transfer.Engine, cfg config.Config, lg *log.Logger) error {
	switch cmd {
	case "monitor":
		return runMonitor(mgr, sess, cfg, lg)
	case "params":
		return runParams(engine)
	case "param-get":
		if flag.NArg() < 2 {
			return fmt.Errorf("usage: gclink param-get NAME")
		}
		return runParamGet(engine, flag.Arg(1))
	case "param-set":
		if flag.NArg() < 3 {
			return fmt.Errorf("usage: gclink param-set NAME VALUE")
		}
		value, err := strconv.ParseFloat(flag.Arg(2), 32)
		if err != nil {
			return fmt.Errorf("bad value %q: %v", flag.Arg(2), err)
		}
		return runParamSet(engine, flag.Arg(1), float32(value))
	case "mission":
		return runMissionDownload(engine, transfer.KindMission)
	case "fence":
		return runMissionDownload(engine, transfer.KindFence)
	case "rally":
		return runMissionDownload(engine, transfer.KindRally)
	case "clear-mission":
		return runMissionClear(engine, transfer.KindMission)
	case "clear-fence":
		return runMissionClear(engine, transfer.KindFence)
	case "clear-rally":
		return runMissionClear(engine, transfer.KindRally)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// runMonitor prints telemetry until interrupted.
func runMonitor(mgr *link.Manager, sess *link.Session, cfg config.Config, lg *log.Logger) error {
	if cfg.Gateway.Enabled {
		gw := gateway.New(gateway.Config{
			Addr:   cfg.Gateway.Addr,
			Link:   mgr,
			Logger: lg.WithPrefix("gateway"),
		})
		go func() {
			if err := gw.Start(); err != nil {
				lg.WithError(err).Error("gateway stopped")
			}
		}()
		defer gw.Stop()
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var lastText string
	for {
		select {
		case <-sigc:
			fmt.Println()
			return nil
		case <-ticker.C:
			st := sess.Status()
			if st.State == link.StateFailed || st.State == link.StateClosed {
				return fmt.Errorf("link down: %v", st.LastError)
			}
			line := fmt.Sprintf("%s armed=%v mode=%d frames=%d lost=%d",
				st.Protocol, st.Telemetry.Armed, st.Telemetry.CustomMode,
				st.Frames, st.LostFrames)
			if st.Telemetry.HasGPS {
				line += fmt.Sprintf(" sats=%d fix=%d", st.Telemetry.GPS.Satellites, st.Telemetry.GPS.FixType)
			}
			if st.Telemetry.HasBatt {
				line += fmt.Sprintf(" batt=%.1fV", float64(st.Telemetry.Battery.Voltages[0])/1000)
			}
			fmt.Printf("\r%s   ", line)
			if st.Telemetry.LastStatusText != "" && st.Telemetry.LastStatusText != lastText {
				lastText = st.Telemetry.LastStatusText
				fmt.Printf("\n[%d] %s\n", st.Telemetry.LastStatusSeverity, lastText)
			}
		}
	}
}

func runParams(engine *transfer.Engine) error {
	type result struct {
		params []mavlink.ParamValue
		err    error
	}
	done := make(chan result, 1)
	engine.DownloadParams(
		func(p transfer.Progress) {
			fmt.Printf("\r%d/%d parameters   ", p.Received, p.Expected)
		},
		func(params []mavlink.ParamValue, err error) {
			done <- result{params, err}
		})
	r := <-done
	fmt.Println()
	if r.err != nil {
		return r.err
	}
	for _, p := range r.params {
		fmt.Printf("%-16s %g\n", p.ID, p.Value)
	}
	return nil
}

func runParamGet(engine *transfer.Engine, name string) error {
	type result struct {
		v   mavlink.ParamValue
		err error
	}
	done := make(chan result, 1)
	engine.GetParam(name, func(v mavlink.ParamValue, err error) {
		done <- result{v, err}
	})
	r := <-done
	if r.err != nil {
		return r.err
	}
	fmt.Printf("%s = %g\n", r.v.ID, r.v.Value)
	return nil
}

func runParamSet(engine *transfer.Engine, name string, value float32) error {
	type result struct {
		v   mavlink.ParamValue
		err error
	}
	done := make(chan result, 1)
	engine.SetParam(name, value, 9, func(v mavlink.ParamValue, err error) {
		done <- result{v, err}
	})
	r := <-done
	if r.err != nil {
		return r.err
	}
	fmt.Printf("%s = %g\n", r.v.ID, r.v.Value)
	return nil
}

func runMissionDownload(engine *transfer.Engine, kind transfer.Kind) error {
	type result struct {
		items []mavlink.MissionItem
		err   error
	}
	done := make(chan result, 1)
	engine.DownloadMission(kind,
		func(p transfer.Progress) {
			fmt.Printf("\r%d/%d items   ", p.Received, p.Expected)
		},
		func(items []mavlink.MissionItem, err error) {
			done <- result{items, err}
		})
	r := <-done
	fmt.Println()
	if r.err != nil {
		return r.err
	}
	if len(r.items) == 0 {
		fmt.Printf("no %s items stored\n", kind)
		return nil
	}
	for _, it := range r.items {
		fmt.Printf("%3d cmd=%-3d frame=%d cur=%d  %11.7f %12.7f %8.2f\n",
			it.Seq, it.Command, it.Frame, it.Current, it.X, it.Y, it.Z)
	}
	return nil
}

func runMissionClear(engine *transfer.Engine, kind transfer.Kind) error {
	done := make(chan error, 1)
	engine.ClearMission(kind, func(err error) { done <- err })
	if err := <-done; err != nil {
		return err
	}
	fmt.Printf("%s cleared\n", kind)
	return nil
}
