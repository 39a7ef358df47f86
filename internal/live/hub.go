package live

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"

	"gps_flyover_video/internal/animation"
	"gps_flyover_video/internal/metrics"
	"gps_flyover_video/internal/surface"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 256
)

// Controller is the player surface exposed to remote clients.
type Controller interface {
	Start()
	Pause()
	Reset()
	SetAnimationProgress(progress float64)
	SetAnimationSpeed(multiplier float64) error
	SetFollowPreset(name string) error
	SetColorMode(mode animation.ColorMode)
	State() animation.AnimationState
}

// Dispatcher runs fn on the engine goroutine.
type Dispatcher interface {
	Do(fn func()) bool
}

type CameraMessage struct {
	Center     [2]float64 `json:"center"`
	Zoom       float64    `json:"zoom"`
	Pitch      float64    `json:"pitch"`
	Bearing    float64    `json:"bearing"`
	DurationMs int64      `json:"durationMs"`
}

type StateMessage struct {
	Progress  float64 `json:"progress"`
	ElapsedMs int64   `json:"elapsedMs"`
	Animating bool    `json:"animating"`
	Speed     float64 `json:"speed"`
	Loop      string  `json:"loop"`
}

// Message is sent from the hub to clients.
type Message struct {
	Type   string                     `json:"type"`
	Camera *CameraMessage             `json:"camera,omitempty"`
	Source string                     `json:"source,omitempty"`
	Data   *geojson.FeatureCollection `json:"data,omitempty"`
	State  *StateMessage              `json:"state,omitempty"`
	Error  string                     `json:"error,omitempty"`
}

// Command is sent from clients to the hub.
type Command struct {
	Type     string  `json:"type"`
	Progress float64 `json:"progress,omitempty"`
	Speed    float64 `json:"speed,omitempty"`
	Preset   string  `json:"preset,omitempty"`
	Mode     string  `json:"mode,omitempty"`
}

// Hub is a surface.Surface that fans commands out to WebSocket clients.
// The latest camera and geometry are replayed to clients joining late.
type Hub struct {
	upgrader websocket.Upgrader
	log      logrus.FieldLogger

	mu       sync.RWMutex
	clients  map[*Client]struct{}
	camera   []byte
	geometry map[string][]byte
	sources  []string

	ctrl     Controller
	dispatch Dispatcher
}

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

var _ surface.Surface = (*Hub)(nil)

func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log:      log.WithField("component", "live"),
		clients:  make(map[*Client]struct{}),
		geometry: make(map[string][]byte),
	}
}

// Attach wires client commands to a player running behind dispatch.
func (h *Hub) Attach(ctrl Controller, dispatch Dispatcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ctrl = ctrl
	h.dispatch = dispatch
}

func (h *Hub) SetCamera(pose surface.CameraPose) {
	data, err := json.Marshal(Message{
		Type: "camera",
		Camera: &CameraMessage{
			Center:     [2]float64{pose.Center.Lon(), pose.Center.Lat()},
			Zoom:       pose.Zoom,
			Pitch:      pose.Pitch,
			Bearing:    pose.Bearing,
			DurationMs: pose.Duration.Milliseconds(),
		},
	})
	if err != nil {
		h.log.WithError(err).Error("Failed to marshal camera message")
		return
	}
	h.mu.Lock()
	h.camera = data
	h.mu.Unlock()
	h.broadcast("camera", data)
}

func (h *Hub) SetGeometry(sourceID string, fc *geojson.FeatureCollection) {
	data, err := json.Marshal(Message{Type: "geometry", Source: sourceID, Data: fc})
	if err != nil {
		h.log.WithError(err).WithField("source", sourceID).Error("Failed to marshal geometry message")
		return
	}
	h.mu.Lock()
	if _, ok := h.geometry[sourceID]; !ok {
		h.sources = append(h.sources, sourceID)
	}
	h.geometry[sourceID] = data
	h.mu.Unlock()
	h.broadcast("geometry", data)
}

// broadcast never blocks the engine: a client whose buffer is full misses
// the message.
func (h *Hub) broadcast(kind string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			metrics.WebSocketErrors.Inc()
			h.log.WithField("type", kind).Debug("Client send buffer full, dropping message")
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and registers the client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithField("error", err).Error("Failed to upgrade to WebSocket")
		return
	}

	client := &Client{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.camera != nil {
		client.send <- h.camera
	}
	for _, id := range h.sources {
		client.send <- h.geometry[id]
	}
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	h.log.WithFields(logrus.Fields{
		"remote":  r.RemoteAddr,
		"clients": h.ClientCount(),
	}).Info("WebSocket client connected")
	metrics.WebSocketConnections.Inc()

	go client.writePump()
	go client.readPump()
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
		metrics.WebSocketConnections.Dec()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.WithField("error", err).Error("WebSocket read error")
			}
			break
		}
		c.handleMessage(message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.log.WithField("error", err).Error("WebSocket write error")
				metrics.WebSocketErrors.Inc()
				return
			}
			metrics.WebSocketMessagesOut.WithLabelValues("update").Inc()

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.log.WithField("error", err).Error("Ping write error")
				metrics.WebSocketErrors.Inc()
				return
			}
			metrics.WebSocketMessagesOut.WithLabelValues("ping").Inc()
		}
	}
}

func (c *Client) handleMessage(message []byte) {
	var cmd Command
	if err := json.Unmarshal(message, &cmd); err != nil {
		c.reply(Message{Type: "error", Error: "invalid command"})
		return
	}

	c.hub.mu.RLock()
	ctrl, dispatch := c.hub.ctrl, c.hub.dispatch
	c.hub.mu.RUnlock()
	if ctrl == nil || dispatch == nil {
		c.reply(Message{Type: "error", Error: "no animation attached"})
		return
	}

	c.hub.log.WithField("command", cmd.Type).Debug("Received command")
	ok := dispatch.Do(func() {
		if err := apply(ctrl, cmd); err != nil {
			c.reply(Message{Type: "error", Error: err.Error()})
			return
		}
		c.reply(stateMessage(ctrl.State()))
	})
	if !ok {
		c.reply(Message{Type: "error", Error: "animation stopped"})
	}
}

func apply(ctrl Controller, cmd Command) error {
	switch cmd.Type {
	case "start":
		ctrl.Start()
	case "pause":
		ctrl.Pause()
	case "reset":
		ctrl.Reset()
	case "seek":
		ctrl.SetAnimationProgress(cmd.Progress)
	case "speed":
		return ctrl.SetAnimationSpeed(cmd.Speed)
	case "preset":
		return ctrl.SetFollowPreset(cmd.Preset)
	case "colorMode":
		mode, err := animation.ParseColorMode(cmd.Mode)
		if err != nil {
			return err
		}
		ctrl.SetColorMode(mode)
	case "state":
	default:
		return fmt.Errorf("unknown command %q", cmd.Type)
	}
	return nil
}

func stateMessage(st animation.AnimationState) Message {
	return Message{
		Type: "state",
		State: &StateMessage{
			Progress:  st.Progress,
			ElapsedMs: st.ElapsedTime.Milliseconds(),
			Animating: st.IsAnimating,
			Speed:     st.SpeedMultiplier,
			Loop:      st.Loop.String(),
		},
	}
}

// reply sends to this client only. The client may already be gone.
func (c *Client) reply(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
		metrics.WebSocketErrors.Inc()
	}
}
