// Package gateway exposes the link engine over HTTP and WebSocket so
// frontends can watch the session and follow transfer progress.
package gateway

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"gclink/pkg/link"
	"gclink/pkg/log"
)

// Version is reported by /server/info.
const Version = "1.0.0"

// statusInterval paces the periodic status push to WebSocket clients.
const statusInterval = time.Second

// LinkView is the slice of the session manager the gateway reads.
type LinkView interface {
	// Current returns the active session, or nil when disconnected.
	Current() *link.Session
}

// Config holds server configuration.
type Config struct {
	// Addr is the HTTP address to listen on (e.g. ":8455").
	Addr string

	// Link provides the session to report on.
	Link LinkView

	// Logger for server events. A default is created when nil.
	Logger *log.Logger
}

// Server serves the status API and the WebSocket event stream.
type Server struct {
	linkView LinkView
	addr     string
	lg       *log.Logger

	httpServer *http.Server
	upgrader   websocket.Upgrader

	clientMu sync.Mutex
	clients  map[int64]*wsClient
	nextID   int64

	running   atomic.Bool
	startTime time.Time
}

// New creates a gateway server.
func New(cfg Config) *Server {
	lg := cfg.Logger
	if lg == nil {
		lg = log.New("gateway")
	}
	s := &Server{
		linkView:  cfg.Link,
		addr:      cfg.Addr,
		lg:        lg,
		clients:   make(map[int64]*wsClient),
		startTime: time.Now(),
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	return s
}

// Handler builds the route table. Split out so tests can drive the
// server without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/server/info", s.handleServerInfo)
	mux.HandleFunc("/link/status", s.handleLinkStatus)
	mux.HandleFunc("/websocket", s.handleWebSocket)
	return mux
}

// Start runs the server until Stop or a listen error.
func (s *Server) Start() error {
	s.httpServer = &http.Server{Addr: s.addr, Handler: s.Handler()}
	s.running.Store(true)
	s.lg.Info("gateway listening on %s", s.addr)

	go s.statusBroadcastLoop()

	return s.httpServer.ListenAndServe()
}

// Stop shuts the server down and disconnects every client.
func (s *Server) Stop() error {
	s.running.Store(false)

	s.clientMu.Lock()
	for _, c := range s.clients {
		c.close()
	}
	s.clients = make(map[int64]*wsClient)
	s.clientMu.Unlock()

	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) writeResult(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"result": result})
}

// handleServerInfo reports gateway identity and uptime.
func (s *Server) handleServerInfo(w http.ResponseWriter, r *http.Request) {
	s.clientMu.Lock()
	clients := len(s.clients)
	s.clientMu.Unlock()

	s.writeResult(w, map[string]any{
		"version":    Version,
		"uptime":     time.Since(s.startTime).Seconds(),
		"ws_clients": clients,
	})
}

// handleLinkStatus reports the current session snapshot.
func (s *Server) handleLinkStatus(w http.ResponseWriter, r *http.Request) {
	s.writeResult(w, s.statusView())
}

// statusView flattens the session status for JSON consumers.
func (s *Server) statusView() map[string]any {
	sess := s.linkView.Current()
	if sess == nil {
		return map[string]any{"state": "disconnected"}
	}
	st := sess.Status()
	view := map[string]any{
		"state":       st.State.String(),
		"protocol":    st.Protocol.String(),
		"peer_system": st.PeerSystem,
		"peer_comp":   st.PeerComp,
		"frames":      st.Frames,
		"lost_frames": st.LostFrames,
	}
	if st.LastError != nil {
		view["last_error"] = st.LastError.Error()
	}
	if !st.Telemetry.LastHeartbeat.IsZero() {
		tel := map[string]any{
			"armed":         st.Telemetry.Armed,
			"vehicle_type":  st.Telemetry.VehicleType,
			"autopilot":     st.Telemetry.Autopilot,
			"custom_mode":   st.Telemetry.CustomMode,
			"system_status": st.Telemetry.SystemStatus,
			"status_text":   st.Telemetry.LastStatusText,
		}
		if st.Telemetry.HasGPS {
			tel["gps"] = map[string]any{
				"fix_type":   st.Telemetry.GPS.FixType,
				"satellites": st.Telemetry.GPS.Satellites,
				"lat":        float64(st.Telemetry.GPS.Lat) / 1e7,
				"lon":        float64(st.Telemetry.GPS.Lon) / 1e7,
				"alt_m":      float64(st.Telemetry.GPS.Alt) / 1e3,
			}
		}
		if st.Telemetry.HasHUD {
			tel["hud"] = map[string]any{
				"ground_speed": st.Telemetry.HUD.GroundSpeed,
				"alt":          st.Telemetry.HUD.Alt,
				"climb":        st.Telemetry.HUD.Climb,
				"heading":      st.Telemetry.HUD.Heading,
				"throttle":     st.Telemetry.HUD.Throttle,
			}
		}
		if st.Telemetry.HasBatt {
			tel["battery"] = map[string]any{
				"voltage_mv": st.Telemetry.Battery.Voltages[0],
				"current_ca": st.Telemetry.Battery.CurrentBattery,
				"remaining":  st.Telemetry.Battery.Remaining,
			}
		}
		view["telemetry"] = tel
	}
	if st.Protocol == link.ProtocolMSP {
		view["msp"] = map[string]any{
			"api_version": st.MspIdentity.APIVersion,
			"variant":     st.MspIdentity.Variant,
			"version":     st.MspIdentity.Version,
			"board":       st.MspIdentity.BoardID,
		}
	}
	return view
}

// notification is the WebSocket push format.
type notification struct {
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// Broadcast pushes one event to every connected WebSocket client.
func (s *Server) Broadcast(method string, params any) {
	data, err := json.Marshal(notification{Method: method, Params: params})
	if err != nil {
		return
	}
	s.clientMu.Lock()
	defer s.clientMu.Unlock()
	for _, c := range s.clients {
		c.send(data)
	}
}

// statusBroadcastLoop pushes the status snapshot once a second while
// clients are connected.
func (s *Server) statusBroadcastLoop() {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()
	for range ticker.C {
		if !s.running.Load() {
			return
		}
		s.clientMu.Lock()
		n := len(s.clients)
		s.clientMu.Unlock()
		if n > 0 {
			s.Broadcast("notify_link_status", s.statusView())
		}
	}
}

// wsClient is one connected WebSocket consumer.
type wsClient struct {
	conn    *websocket.Conn
	out     chan []byte
	closeMu sync.Mutex
	closed  bool
}

func (c *wsClient) send(data []byte) {
	select {
	case c.out <- data:
	default:
		// Slow consumer; drop rather than stall the broadcaster.
	}
}

func (c *wsClient) close() {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.out)
		c.conn.Close()
	}
}

// handleWebSocket upgrades the connection and streams notifications.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.lg.WithError(err).Warn("websocket upgrade failed")
		return
	}
	c := &wsClient{conn: conn, out: make(chan []byte, 32)}

	s.clientMu.Lock()
	s.nextID++
	id := s.nextID
	s.clients[id] = c
	s.clientMu.Unlock()
	s.lg.Debug("websocket client %d connected from %s", id, r.RemoteAddr)

	// Immediate snapshot so the client does not wait a full tick.
	if data, err := json.Marshal(notification{
		Method: "notify_link_status", Params: s.statusView(),
	}); err == nil {
		c.send(data)
	}

	go c.writePump()
	c.readPump()

	s.clientMu.Lock()
	delete(s.clients, id)
	s.clientMu.Unlock()
	c.close()
	s.lg.Debug("websocket client %d disconnected", id)
}

// writePump drains the outbound queue to the socket.
func (c *wsClient) writePump() {
	for data := range c.out {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// readPump consumes inbound messages until the peer goes away. The
// gateway has no client-initiated commands yet, so reads only detect
// disconnects.
func (c *wsClient) readPump() {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
