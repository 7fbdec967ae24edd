package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/stats"
)

// broadcastHub fans out the realtime engine snapshot to every connected
// WebSocket subscriber, fed by the realtime ticker (spec.md §4.9).
type broadcastHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	log     *zap.Logger

	upgrader websocket.Upgrader
}

func newBroadcastHub(log *zap.Logger) *broadcastHub {
	return &broadcastHub{
		clients: make(map[*websocket.Conn]struct{}),
		log:     log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// wsMessage is the envelope every broadcast frame carries: {"type":"data","data":...}.
type wsMessage struct {
	Type string             `json:"type"`
	Data stats.DataSnapshot `json:"data"`
}

func (h *broadcastHub) add(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()
}

func (h *broadcastHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
}

// Broadcast pushes one snapshot to every connected client, dropping any
// connection that fails to keep up rather than blocking the ticker.
func (h *broadcastHub) Broadcast(snap stats.DataSnapshot) {
	msg := wsMessage{Type: "data", Data: snap}

	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(time.Second))
		if err := conn.WriteJSON(msg); err != nil {
			h.remove(conn)
		}
	}
}

// ServeWS handles GET /ws, upgrading the connection and registering it
// with the broadcast hub until the client disconnects.
func (h *Handler) ServeWS(c echo.Context) error {
	conn, err := h.hub.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	h.hub.add(conn)

	// Drain and discard anything the client sends; this socket is
	// broadcast-only. The read loop's only job is to notice disconnects.
	go func() {
		defer h.hub.remove(conn)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	return nil
}

// OnTick is passed to Engine.RunRealtimeTicker so every 100ms refresh also
// reaches WebSocket subscribers.
func (h *Handler) OnTick(snap stats.DataSnapshot) {
	h.hub.Broadcast(snap)
}
