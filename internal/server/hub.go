package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"fieldmic/internal/domain"
	"fieldmic/internal/logging"
)

// Event types pushed to websocket clients.
const (
	EventSession  = "session"
	EventElapsed  = "elapsed"
	EventLevels   = "levels"
	EventPlayback = "playback"
	EventReport   = "report"
	EventError    = "error"
)

const (
	clientBuffer = 64
	writeWait    = 5 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
)

// Envelope is the wire form of every pushed event.
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub broadcasts session events to connected websocket clients. It implements the event
// sink port so it can be attached next to the desktop host.
type Hub struct {
	logger logging.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
	done      chan struct{}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func NewHub(logger logging.Logger) *Hub {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Hub{logger: logger, clients: make(map[*client]struct{})}
}

// ServeWS upgrades the request and streams events until the client goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnf("websocket upgrade failed: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer), done: make(chan struct{})}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Debugf("websocket client connected remote=%s clients=%d", r.RemoteAddr, count)

	go h.writePump(c)
	h.readPump(c)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

// readPump only services control frames; clients never send commands over the socket.
func (h *Hub) readPump(c *client) {
	defer h.remove(c)

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

func (h *Hub) broadcast(eventType string, payload any) {
	msg, err := json.Marshal(Envelope{Type: eventType, Payload: payload})
	if err != nil {
		h.logger.Errorf("failed to encode %s event: %v", eventType, err)
		return
	}

	h.mu.Lock()
	var slow []*client
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			// Level frames are lossy; anything else means the client fell behind.
			if eventType != EventLevels {
				slow = append(slow, c)
			}
		}
	}
	for _, c := range slow {
		delete(h.clients, c)
	}
	h.mu.Unlock()

	for _, c := range slow {
		h.logger.Warnf("dropping slow websocket client")
		c.close()
	}
}

func (h *Hub) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	h.broadcast(EventSession, map[string]string{"state": string(state), "reason": string(reason)})
}

func (h *Hub) ElapsedChanged(seconds int) {
	h.broadcast(EventElapsed, map[string]any{"seconds": seconds, "elapsed": domain.FormatElapsed(seconds)})
}

func (h *Hub) LevelsChanged(frame domain.LevelFrame) {
	h.broadcast(EventLevels, map[string]any{"levels": frame})
}

func (h *Hub) PlaybackChanged(slot string, state domain.PlaybackState) {
	h.broadcast(EventPlayback, map[string]string{"slot": slot, "state": string(state)})
}

func (h *Hub) ReportReady(report domain.Report) {
	h.broadcast(EventReport, report.View())
}

func (h *Hub) SessionError(code domain.ErrorCode, detail string) {
	h.broadcast(EventError, map[string]string{"code": string(code), "detail": detail})
}
