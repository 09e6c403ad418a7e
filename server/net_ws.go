package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// ClientConn is the lightweight send side of one websocket session.
type ClientConn struct {
	ws        *websocket.Conn
	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func NewClientConn(ws *websocket.Conn) *ClientConn {
	return &ClientConn{
		ws:     ws,
		send:   make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

// Enqueue queues an outbound frame. Non-blocking: a full queue means a slow
// client, and dropping beats stalling the room loop.
func (c *ClientConn) Enqueue(b []byte) {
	select {
	case <-c.closed:
	case c.send <- b:
	default:
	}
}

// Close tears down the connection. Safe to call from any goroutine, any
// number of times.
func (c *ClientConn) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.ws.Close()
	})
}

// writePump drains the send queue onto the socket and keeps the connection
// alive with periodic pings.
func (c *ClientConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.ws.Close()
	for {
		select {
		case <-c.closed:
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump feeds inbound frames to the room until the connection dies, then
// reports the disconnect. A normal or going-away close counts as consented.
func (c *ClientConn) readPump(room *Room, sessionID string) {
	defer c.ws.Close()
	c.ws.SetReadLimit(1 << 16)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			consented := websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
			room.Leave(sessionID, consented)
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		room.Deliver(sessionID, payload)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The game is served same-origin in production; tighten when the
		// frontend origin is pinned down.
		return true
	},
}

// HandleWS accepts a websocket client: ?room=town&user=u1&name=Ash&sprite=brendan
func (m *Manager) HandleWS(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	opts := JoinOptions{
		UserID:       q.Get("user"),
		DisplayName:  q.Get("name"),
		AvatarSprite: q.Get("sprite"),
	}

	ws, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		m.log.Warnf("websocket upgrade failed: %v", err)
		return
	}

	room := m.GetOrCreateRoom(q.Get("room"))
	sessionID := uuid.NewString()
	client := NewClientConn(ws)

	go client.writePump()
	room.Join(sessionID, client, opts)
	go client.readPump(room, sessionID)
}
